// Package provider abstracts a fuel-portal data source behind a slug so the
// serving layer can route /api/:provider/... without knowing which portal
// backs it.
package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/rmacedof/fuelsync/internal/models"
)

// Provider is one portal integration
type Provider interface {
	// Slug is the URL-safe identifier ("profrotas")
	Slug() string
	// Name is the human-readable portal name
	Name() string
	// Stations lists the provider's registered stations
	Stations() ([]*models.Station, error)
	// Sales returns a station's sales for [from, to] (plain yyyy-mm-dd).
	// When storage has nothing for the window the provider may fetch from
	// the portal on demand.
	Sales(ctx context.Context, cnpj, from, to string) ([]*models.Sale, error)
	// Reimbursements returns a station's reimbursements for [from, to].
	// byPayment selects the payment-date window instead of the refuel-date
	// window.
	Reimbursements(ctx context.Context, cnpj, from, to string, byPayment bool) ([]*models.Refuel, error)
}

// Registry maps slugs to providers
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry holding the given providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Slug()] = p
	}
	return r
}

// Get resolves a slug; unknown slugs are an error the serving layer maps to
// a 404.
func (r *Registry) Get(slug string) (Provider, error) {
	p, ok := r.providers[slug]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", slug)
	}
	return p, nil
}

// List returns all registered providers sorted by slug
func (r *Registry) List() []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug() < out[j].Slug() })
	return out
}
