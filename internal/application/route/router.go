// Package route decides which sources serve a selected instrument.
package route

import "pricedeck/internal/domain"

// Credentials maps a gated source to its bearer token. A missing or empty
// entry deterministically disables that source; this is configuration, not
// an error.
type Credentials map[domain.Source]string

func (c Credentials) Token(s domain.Source) string {
	if c == nil {
		return ""
	}
	return c[s]
}

// SourceInfo describes one source's routing facts. The vendor packages
// publish these through the feed catalog; the router itself stays a pure
// function of (selection, credentials).
type SourceInfo struct {
	Source       domain.Source
	Categories   []domain.Category
	RequiresAuth bool
	Supports     func(domain.Symbol) bool
}

func (i SourceInfo) serves(cat domain.Category) bool {
	for _, c := range i.Categories {
		if c == cat {
			return true
		}
	}
	return false
}

type Router struct {
	catalog []SourceInfo
}

func New(catalog []SourceInfo) *Router {
	return &Router{catalog: catalog}
}

// Eligible returns, in catalog order, every source that can serve symbol:
// category match, vendor symbol mapping present, and credential available
// when the source is gated.
func (r *Router) Eligible(symbol domain.Symbol, creds Credentials) []domain.Source {
	var out []domain.Source
	for _, info := range r.catalog {
		if !info.serves(symbol.Category()) {
			continue
		}
		if info.Supports != nil && !info.Supports(symbol) {
			continue
		}
		if info.RequiresAuth && creds.Token(info.Source) == "" {
			continue
		}
		out = append(out, info.Source)
	}
	return out
}
