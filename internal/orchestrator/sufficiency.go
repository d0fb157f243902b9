package orchestrator

import "strings"

// SufficiencyPredicate decides, after a batch completes, whether the
// aggregated results already answer the user's query. When it returns true
// the loop forces a no-tools conclusion instead of allowing another tool
// round. This is a heuristic policy layer, not a correctness requirement;
// swap it out freely.
type SufficiencyPredicate func(query string, outcomes []ToolOutcome, depth int) bool

var informationalPrefixes = []string{
	"what", "who", "when", "where", "which", "how many", "how much",
	"lookup", "look up", "find", "check", "is ", "does ", "did ",
}

// DefaultSufficiency treats a single clean result for a short informational
// query as already sufficient. Anything with errors, multiple tool rounds'
// worth of nuance, or a long query falls through to the model's judgement.
func DefaultSufficiency(query string, outcomes []ToolOutcome, depth int) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, outcome := range outcomes {
		if outcome.Err != nil || outcome.Cancelled || strings.TrimSpace(outcome.Result) == "" {
			return false
		}
	}

	trimmed := strings.ToLower(strings.TrimSpace(query))
	if len(strings.Fields(trimmed)) > 12 {
		return false
	}
	for _, prefix := range informationalPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
