// Package feed hosts the adapter registry and the per-adapter runtime
// plumbing (coalescing, emission gating, supervisor wiring). Vendor packages
// self-register a Descriptor from init(), mirroring how each one owns its
// own wire protocol and symbol-code table.
package feed

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"pricedeck/internal/application/port"
	"pricedeck/internal/application/route"
	"pricedeck/internal/domain"
)

// Deps is what a factory gets to build one adapter instance for one
// activation. Adapters hold these explicitly instead of capturing mutable
// outer state.
type Deps struct {
	Symbol domain.Symbol
	Emit   port.Emit
	Rate   port.RateSource
	Token  string
}

// Descriptor declares one source's routing facts and construction hooks.
type Descriptor struct {
	Source     domain.Source
	Categories []domain.Category

	// DefaultURL is the vendor endpoint; config may override the base.
	DefaultURL string
	// URL derives the final dial URL (stream path, token query). nil keeps
	// the base as-is. Returning "" means the activation cannot proceed
	// (fail closed, no subscription).
	URL func(base string, d Deps) string
	// Header supplies dial headers (bearer auth). nil means none.
	Header func(d Deps) http.Header

	// Coalesce marks feeds that push faster than consumers need.
	Coalesce bool
	// RequiresAuth gates the source on a credential at routing time.
	RequiresAuth bool

	Supports func(domain.Symbol) bool
	New      func(d Deps) port.FeedAdapter
}

var registry = make(map[domain.Source]Descriptor)
var order []domain.Source

// Register 注册一个数据源的 Descriptor，由各 vendor 包的 init() 自行调用。
func Register(d Descriptor) {
	if d.New == nil || d.Supports == nil {
		log.Warn().Str("source", string(d.Source)).Msg("invalid feed descriptor")
		return
	}
	if _, exists := registry[d.Source]; exists {
		log.Warn().Str("source", string(d.Source)).Msg("feed descriptor already registered, overwriting")
	} else {
		order = append(order, d.Source)
	}
	registry[d.Source] = d
}

// Get 获取给定数据源的 Descriptor。
func Get(source domain.Source) (Descriptor, bool) {
	d, ok := registry[source]
	return d, ok
}

// Catalog exposes the registered sources as routing facts, in registration
// order. Pass a filter to drop config-disabled sources; nil keeps all.
func Catalog(enabled func(domain.Source) bool) []route.SourceInfo {
	out := make([]route.SourceInfo, 0, len(order))
	for _, src := range order {
		if enabled != nil && !enabled(src) {
			continue
		}
		d := registry[src]
		out = append(out, route.SourceInfo{
			Source:       d.Source,
			Categories:   d.Categories,
			RequiresAuth: d.RequiresAuth,
			Supports:     d.Supports,
		})
	}
	return out
}

// MustCodes validates a vendor symbol-code table at startup: every key must
// be a known instrument and no two instruments may share a vendor code.
func MustCodes(source domain.Source, codes map[domain.Symbol]string) map[domain.Symbol]string {
	seen := make(map[string]domain.Symbol, len(codes))
	for sym, code := range codes {
		if !sym.Known() {
			panic("feed: " + string(source) + " maps unknown symbol " + string(sym))
		}
		if code == "" {
			panic("feed: " + string(source) + " maps empty code for " + string(sym))
		}
		if prev, dup := seen[code]; dup {
			panic("feed: " + string(source) + " code " + code + " mapped by both " + string(prev) + " and " + string(sym))
		}
		seen[code] = sym
	}
	return codes
}

// ReverseCodes builds the vendor-code -> symbol direction of a table.
func ReverseCodes(codes map[domain.Symbol]string) map[string]domain.Symbol {
	out := make(map[string]domain.Symbol, len(codes))
	for sym, code := range codes {
		out[code] = sym
	}
	return out
}
