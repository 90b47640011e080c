// Package ticker owns the active-adapter set for the current instrument
// selection and exposes the consumer-facing API: latest metrics, update
// subscriptions and per-source connection status.
package ticker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"pricedeck/internal/application/port"
	"pricedeck/internal/application/route"
	"pricedeck/internal/application/store"
	"pricedeck/internal/domain"
)

// Launcher activates one (source, symbol) feed. The stop function must
// guarantee that no emission reaches the store after it returns.
type Launcher interface {
	Start(
		ctx context.Context,
		source domain.Source,
		symbol domain.Symbol,
		emit port.Emit,
		onStatus func(state domain.ConnState),
	) (stop func(), err error)
}

// StatusListener observes per-source connection state transitions.
type StatusListener func(source domain.Source, state domain.ConnState)

type ServiceDeps struct {
	Store    *store.Store
	Router   *route.Router
	Launcher Launcher
	Repo     port.Repository
	Creds    route.Credentials
}

type Service struct {
	deps ServiceDeps

	mu       sync.Mutex
	selected domain.Symbol
	active   map[domain.Source]func() // source -> stop

	stMu     sync.Mutex
	statuses map[domain.Source]domain.ConnState
	stSubs   map[int]StatusListener
	stNextID int

	storeCancel func()
}

func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Store == nil || deps.Router == nil || deps.Launcher == nil {
		return nil, errors.New("ticker: store, router and launcher are required")
	}
	if deps.Repo == nil {
		deps.Repo = NewNoopRepo()
	}
	s := &Service{
		deps:     deps,
		active:   make(map[domain.Source]func()),
		statuses: make(map[domain.Source]domain.ConnState),
		stSubs:   make(map[int]StatusListener),
	}

	// Best-effort persistence of every accepted update; recorder failures
	// never reach consumers.
	s.storeCancel = deps.Store.Subscribe(func(key domain.SourceKey, m domain.PriceMetric) {
		ctx := context.Background()
		if err := deps.Repo.UpsertLatestPrice(ctx, string(key.Source), string(key.Symbol), m.Price, m.Ts); err != nil {
			log.Debug().Err(err).Str("key", key.String()).Msg("latest price persist failed")
		}
		if err := deps.Repo.InsertSample(ctx, string(key.Source), string(key.Symbol), m.Price, m.Ts); err != nil {
			log.Debug().Err(err).Str("key", key.String()).Msg("sample persist failed")
		}
	})
	return s, nil
}

// Select switches the active instrument: every previously active adapter is
// cancelled (connection closed, timers cleared, emissions gated off) and the
// sources eligible for the new symbol are started.
func (s *Service) Select(ctx context.Context, symbol domain.Symbol) error {
	if !symbol.Known() {
		return errors.New("ticker: unknown symbol " + string(symbol))
	}
	eligible := s.deps.Router.Eligible(symbol, s.deps.Creds)

	s.mu.Lock()
	defer s.mu.Unlock()

	for src, stop := range s.active {
		stop()
		delete(s.active, src)
		s.setStatus(src, domain.ConnClosed)
	}
	s.selected = symbol

	for _, src := range eligible {
		src := src
		stop, err := s.deps.Launcher.Start(ctx, src, symbol,
			func(sym domain.Symbol, sample domain.PriceSample) {
				s.deps.Store.Record(src, sym, sample)
			},
			func(state domain.ConnState) {
				s.setStatus(src, state)
			},
		)
		if err != nil {
			log.Warn().Str("source", string(src)).Str("symbol", string(symbol)).Err(err).Msg("feed activation skipped")
			continue
		}
		s.active[src] = stop
		log.Info().Str("source", string(src)).Str("symbol", string(symbol)).Msg("feed started")
	}
	return nil
}

// Selected returns the current instrument.
func (s *Service) Selected() domain.Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Active returns the currently running sources.
func (s *Service) Active() []domain.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Source, 0, len(s.active))
	for src := range s.active {
		out = append(out, src)
	}
	return out
}

// Latest returns the current metric for (source, symbol), if any.
func (s *Service) Latest(source domain.Source, symbol domain.Symbol) (domain.PriceMetric, bool) {
	return s.deps.Store.Latest(source, symbol)
}

// Subscribe registers a listener for every accepted price update.
func (s *Service) Subscribe(fn store.Listener) (cancel func()) {
	return s.deps.Store.Subscribe(fn)
}

// Status returns the connection state of one source.
func (s *Service) Status(source domain.Source) domain.ConnState {
	s.stMu.Lock()
	defer s.stMu.Unlock()
	return s.statuses[source]
}

// SubscribeStatus registers a listener for connection state transitions.
func (s *Service) SubscribeStatus(fn StatusListener) (cancel func()) {
	s.stMu.Lock()
	id := s.stNextID
	s.stNextID++
	s.stSubs[id] = fn
	s.stMu.Unlock()

	return func() {
		s.stMu.Lock()
		delete(s.stSubs, id)
		s.stMu.Unlock()
	}
}

func (s *Service) setStatus(source domain.Source, state domain.ConnState) {
	s.stMu.Lock()
	s.statuses[source] = state
	listeners := make([]StatusListener, 0, len(s.stSubs))
	for _, fn := range s.stSubs {
		listeners = append(listeners, fn)
	}
	s.stMu.Unlock()

	for _, fn := range listeners {
		fn(source, state)
	}
}

// Close stops every active adapter and the persistence forwarder.
func (s *Service) Close() {
	s.mu.Lock()
	for src, stop := range s.active {
		stop()
		delete(s.active, src)
	}
	s.mu.Unlock()
	s.storeCancel()
	_ = s.deps.Repo.Close()
}
