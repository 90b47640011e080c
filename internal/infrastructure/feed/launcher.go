package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"pricedeck/internal/application/port"
	"pricedeck/internal/domain"
	"pricedeck/internal/infrastructure/ws"
)

// ErrNoMapping means the source has no vendor code for the requested symbol
// or is missing a required credential; the activation produces nothing.
var ErrNoMapping = errors.New("feed: source cannot serve symbol")

// Config carries the wiring knobs every runner shares.
type Config struct {
	URLOverrides   map[domain.Source]string
	Tokens         map[domain.Source]string
	Rate           port.RateSource
	CoalesceWindow time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
}

// Launcher turns a (source, symbol) activation into a running adapter:
// registry factory -> emission gate -> optional coalescer -> supervisor.
type Launcher struct {
	cfg Config
}

func NewLauncher(cfg Config) *Launcher {
	if cfg.CoalesceWindow <= 0 {
		cfg.CoalesceWindow = 50 * time.Millisecond
	}
	return &Launcher{cfg: cfg}
}

// Start activates source for symbol. The returned stop function closes the
// connection, cancels the heartbeat and coalescer timers, and guarantees no
// further emissions for this activation, even from frames already in flight.
func (l *Launcher) Start(
	ctx context.Context,
	source domain.Source,
	symbol domain.Symbol,
	emit port.Emit,
	onStatus func(state domain.ConnState),
) (stop func(), err error) {
	desc, ok := Get(source)
	if !ok {
		return nil, errors.New("feed: no descriptor for source " + string(source))
	}
	if !desc.Supports(symbol) {
		return nil, ErrNoMapping
	}

	var closed atomic.Bool
	gated := func(sym domain.Symbol, sample domain.PriceSample) {
		if closed.Load() {
			return
		}
		emit(sym, sample)
	}

	out := port.Emit(gated)
	var co *Coalescer
	if desc.Coalesce {
		co = NewCoalescer(l.cfg.CoalesceWindow, gated)
		out = co.Offer
	}

	deps := Deps{
		Symbol: symbol,
		Emit:   out,
		Rate:   l.cfg.Rate,
		Token:  l.cfg.Tokens[source],
	}
	if desc.RequiresAuth && deps.Token == "" {
		return nil, ErrNoMapping
	}

	base := desc.DefaultURL
	if u := l.cfg.URLOverrides[source]; u != "" {
		base = u
	}
	dialURL := base
	if desc.URL != nil {
		dialURL = desc.URL(base, deps)
	}
	if dialURL == "" {
		return nil, ErrNoMapping
	}

	adapter := desc.New(deps)

	handlers := ws.Handlers{
		OnOpen: func(send func(v any) error) error {
			return adapter.OnOpen(send)
		},
		OnMessage: adapter.OnMessage,
		OnStatus:  onStatus,
	}
	opts := ws.Options{
		MinRetryInterval: l.cfg.ReconnectMin,
		MaxRetryInterval: l.cfg.ReconnectMax,
	}
	if desc.Header != nil {
		opts.Header = desc.Header(deps)
	}
	if hb, ok := adapter.(port.Heartbeater); ok {
		opts.HeartbeatEvery = hb.HeartbeatEvery()
		opts.Heartbeat = func(send func(v any) error) error {
			return hb.Heartbeat(send)
		}
	}

	sup, err := ws.Open(ctx, string(source), dialURL, handlers, opts)
	if err != nil {
		if co != nil {
			co.Stop()
		}
		return nil, err
	}

	return func() {
		closed.Store(true)
		if co != nil {
			co.Stop()
		}
		sup.Close()
	}, nil
}
