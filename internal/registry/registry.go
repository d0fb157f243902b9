// Package registry aggregates the tool catalogs of all configured services
// into the flat function list exposed to the model.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"hivemind.app/conduit/core/config"
	"hivemind.app/conduit/internal/model"
)

// ErrDuplicateTool is returned when two enabled services expose the same
// tool name. The collision is surfaced, never resolved silently.
var ErrDuplicateTool = errors.New("duplicate tool name across services")

// CatalogSource fetches the tool list of one service.
type CatalogSource interface {
	ListTools(ctx context.Context, svc config.ToolServiceConfig) ([]model.ToolDescriptor, error)
}

// Registry caches the aggregated catalog. The cache is read-mostly and
// refreshed wholesale; readers never observe a partially rebuilt catalog.
type Registry struct {
	source   CatalogSource
	services []config.ToolServiceConfig
	enabled  map[string]bool

	mu        sync.RWMutex
	cached    []model.ToolService
	catalog   []model.ToolDescriptor
	collision error
}

func New(source CatalogSource, services []config.ToolServiceConfig, enabled map[string]bool) *Registry {
	if enabled == nil {
		enabled = map[string]bool{}
	}
	return &Registry{
		source:   source,
		services: services,
		enabled:  enabled,
	}
}

// Refresh fetches every enabled service's tool list and swaps in the new
// catalog atomically. A service that fails to list keeps the registry
// usable: its previous tools are dropped and the error is returned.
func (r *Registry) Refresh(ctx context.Context) error {
	var services []model.ToolService
	var errs []error

	for _, svc := range r.services {
		if !svc.Enabled {
			continue
		}

		tools, err := r.source.ListTools(ctx, svc)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing tools for %s: %w", svc.ID, err))
			continue
		}

		auto := make(map[string]struct{}, len(svc.AutoExec))
		for _, name := range svc.AutoExec {
			auto[name] = struct{}{}
		}
		for i := range tools {
			tools[i].ServiceID = svc.ID
			tools[i].Enabled = true
			_, tools[i].AutoExecute = auto[tools[i].Name]
		}

		services = append(services, model.ToolService{
			ID:       svc.ID,
			Name:     svc.Name,
			Endpoint: svc.Endpoint,
			Enabled:  true,
			Tools:    tools,
		})
	}

	catalog, collision := Aggregate(services, r.enabled)

	r.mu.Lock()
	r.cached = services
	r.catalog = catalog
	r.collision = collision
	r.mu.Unlock()

	slog.InfoContext(ctx, "tool catalog refreshed",
		"services", len(services),
		"tools", len(catalog),
		"errors", len(errs))

	return errors.Join(errs...)
}

// Catalog returns the flattened descriptor list. A name collision is
// reported as an error alongside the list so the caller decides whether to
// proceed.
func (r *Registry) Catalog() ([]model.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog, r.collision
}

// Services returns the cached per-service view (for UI labeling).
func (r *Registry) Services() []model.ToolService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cached
}

// FindOwner resolves a tool name to its descriptor. Routing and labeling
// both go through this lookup, so they cannot disagree.
func (r *Registry) FindOwner(toolName string) (model.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, desc := range r.catalog {
		if desc.Name == toolName {
			return desc, true
		}
	}
	return model.ToolDescriptor{}, false
}

// Endpoint resolves a service ID to its configured endpoint.
func (r *Registry) Endpoint(serviceID string) (string, bool) {
	for _, svc := range r.services {
		if svc.ID == serviceID {
			return svc.Endpoint, true
		}
	}
	return "", false
}

// Aggregate flattens enabled services into one catalog. A tool is included
// unless the enabled map explicitly disables "serviceID:toolName"
// (default-enabled semantics). The first occurrence of a duplicated name is
// kept so the catalog stays usable; the collision is reported.
func Aggregate(services []model.ToolService, enabled map[string]bool) ([]model.ToolDescriptor, error) {
	var catalog []model.ToolDescriptor
	seen := make(map[string]string) // tool name -> owning service
	var duplicates []string

	for _, svc := range services {
		if !svc.Enabled {
			continue
		}
		for _, tool := range svc.Tools {
			if state, ok := enabled[svc.ID+":"+tool.Name]; ok && !state {
				continue
			}
			if owner, ok := seen[tool.Name]; ok {
				duplicates = append(duplicates, fmt.Sprintf("%s (%s, %s)", tool.Name, owner, svc.ID))
				continue
			}
			seen[tool.Name] = svc.ID
			catalog = append(catalog, tool)
		}
	}

	if len(duplicates) > 0 {
		sort.Strings(duplicates)
		return catalog, fmt.Errorf("%w: %s", ErrDuplicateTool, strings.Join(duplicates, "; "))
	}
	return catalog, nil
}
