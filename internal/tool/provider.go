package tool

import (
	"context"
	"fmt"
	"strings"
)

// Provider is an asynchronous source of tools, e.g. an MCP server. Dynamic
// providers may return a different tool set on every Refresh; static ones
// report IsDynamic() == false and are fetched only once.
type Provider interface {
	Name() string
	GetTools(ctx context.Context) ([]Tool, error)
	IsDynamic() bool
}

// dynamicPrefix returns the namespace prefix a provider's tools are
// registered under, e.g. "filesystem__" for a provider named "filesystem".
func dynamicPrefix(providerName string) string {
	return providerName + "__"
}

// AddProvider fetches the provider's current tools once and registers
// each of them. Returns a conflict error without registering anything if
// any tool name collides with one already present.
func (r *Registry) AddProvider(ctx context.Context, p Provider) error {
	tools, err := p.GetTools(ctx)
	if err != nil {
		return fmt.Errorf("tool registry: fetch tools from provider %q: %w", p.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		if _, exists := r.tools[t.ID()]; exists {
			return fmt.Errorf("tool registry: provider %q tool %q conflicts with an existing registration", p.Name(), t.ID())
		}
	}
	for _, t := range tools {
		r.tools[t.ID()] = t
	}
	r.providers = append(r.providers, p)
	return nil
}

// RefreshProviders re-fetches tools from every dynamic provider, removing
// their previously-registered tools (identified by the provider's
// namespace prefix) before re-adding the current batch.
func (r *Registry) RefreshProviders(ctx context.Context) error {
	r.mu.Lock()
	providers := append([]Provider(nil), r.providers...)
	r.mu.Unlock()

	for _, p := range providers {
		if !p.IsDynamic() {
			continue
		}

		prefix := dynamicPrefix(p.Name())
		r.mu.Lock()
		for id := range r.tools {
			if strings.HasPrefix(id, prefix) {
				delete(r.tools, id)
			}
		}
		r.mu.Unlock()

		tools, err := p.GetTools(ctx)
		if err != nil {
			return fmt.Errorf("tool registry: refresh provider %q: %w", p.Name(), err)
		}
		r.mu.Lock()
		for _, t := range tools {
			r.tools[t.ID()] = t
		}
		r.mu.Unlock()
	}
	return nil
}
