package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"hivemind.app/conduit/common/llm"
	"hivemind.app/conduit/core/config"
	"hivemind.app/conduit/internal/model"
)

// BuiltinEndpoint is the pseudo-endpoint routing to locally implemented
// tools instead of an MCP server.
const BuiltinEndpoint = "builtin"

var (
	ipv4Pattern   = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	domainPattern = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}\b`)
	hashPattern   = regexp.MustCompile(`\b[a-fA-F0-9]{32}(?:[a-fA-F0-9]{8})?(?:[a-fA-F0-9]{24})?\b`)
	emailPattern  = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
)

type extractObservablesArgs struct {
	Text string `json:"text" jsonschema:"description=Text to scan for indicators"`
}

type observables struct {
	IPs     []string `json:"ips"`
	Domains []string `json:"domains"`
	Hashes  []string `json:"hashes"`
	Emails  []string `json:"emails"`
}

// BuiltinService implements tools that need no external backend. Currently
// a single tool: extracting indicators (IPs, domains, hashes, email
// addresses) from free text, a cheap local step before any case tooling is
// involved.
type BuiltinService struct{}

func NewBuiltinService() *BuiltinService {
	return &BuiltinService{}
}

// ListTools satisfies the registry's CatalogSource for the builtin service.
func (s *BuiltinService) ListTools(_ context.Context, _ config.ToolServiceConfig) ([]model.ToolDescriptor, error) {
	schema, err := json.Marshal(llm.GenerateSchemaFrom(extractObservablesArgs{}))
	if err != nil {
		return nil, fmt.Errorf("generating builtin schema: %w", err)
	}

	return []model.ToolDescriptor{
		{
			Name:        "extract_observables",
			Description: "Extract observables (IP addresses, domains, file hashes, email addresses) from text.",
			Schema:      schema,
		},
	}, nil
}

// Call executes a builtin tool.
func (s *BuiltinService) Call(_ context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "extract_observables":
		raw, err := json.Marshal(args)
		if err != nil {
			return "", err
		}
		parsed, err := llm.ParseToolArguments[extractObservablesArgs](string(raw))
		if err != nil {
			return "", err
		}
		return extractObservables(parsed.Text)
	default:
		return "", fmt.Errorf("unknown builtin tool: %s", name)
	}
}

func extractObservables(text string) (string, error) {
	found := observables{
		IPs:     dedupe(ipv4Pattern.FindAllString(text, -1)),
		Domains: dedupe(domainPattern.FindAllString(text, -1)),
		Hashes:  dedupe(hashPattern.FindAllString(text, -1)),
		Emails:  dedupe(emailPattern.FindAllString(text, -1)),
	}

	// Emails match the domain pattern on their host part; drop those.
	found.Domains = subtractHosts(found.Domains, found.Emails)

	data, err := json.Marshal(found)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	sort.Strings(result)
	return result
}

func subtractHosts(domains, emails []string) []string {
	hosts := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		for i := len(email) - 1; i >= 0; i-- {
			if email[i] == '@' {
				hosts[email[i+1:]] = struct{}{}
				break
			}
		}
	}

	result := domains[:0]
	for _, d := range domains {
		if _, ok := hosts[d]; !ok {
			result = append(result, d)
		}
	}
	return result
}
