package port

import (
	"time"

	"pricedeck/internal/domain"
)

// SendFunc writes one outbound control frame (subscribe, heartbeat) as JSON.
type SendFunc func(v any) error

// Emit delivers a normalized price sample downstream.
type Emit func(symbol domain.Symbol, sample domain.PriceSample)

// FeedAdapter knows one vendor's wire protocol. Adapters hold their own
// state explicitly and never touch the socket except through SendFunc.
//
// OnOpen runs once per successful connect and must emit the subscription
// request(s) for the adapter's symbol; if the symbol has no vendor mapping
// it sends nothing (fail closed). OnMessage parses one raw frame; malformed
// or unrecognized payloads are dropped, never surfaced as connection errors.
type FeedAdapter interface {
	Source() domain.Source
	OnOpen(send SendFunc) error
	OnMessage(raw []byte)
}

// Heartbeater is implemented by adapters whose upstream terminates idle
// connections. The supervisor drives the timer; it is torn down and
// restarted with every (re)connect.
type Heartbeater interface {
	HeartbeatEvery() time.Duration
	Heartbeat(send SendFunc) error
}

// RateSource provides the current unit conversion rate (e.g. USDT->USD).
// ok is false only before the first successful fetch.
type RateSource interface {
	Rate() (rate float64, ok bool)
}
