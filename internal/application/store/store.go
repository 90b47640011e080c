// Package store holds the shared aggregate state: for every (source, symbol)
// pair the ordered sample history and the latest derived metric. It is the
// only place concurrent feed workers converge.
package store

import (
	"sync"

	"pricedeck/internal/domain"
)

// Listener receives every accepted update in per-key arrival order.
// Listeners run on the recording goroutine and must return quickly; they
// must not call back into the store.
type Listener func(key domain.SourceKey, metric domain.PriceMetric)

type entry struct {
	mu      sync.Mutex
	history []domain.PriceSample
	latest  domain.PriceMetric
	has     bool
}

// Store linearizes records per SourceKey: the read-previous / compute /
// write-latest step happens under one per-key mutex, so two concurrent
// records on the same key can never derive from the same previous price.
// Records on different keys do not serialize against each other.
type Store struct {
	mu        sync.RWMutex
	keys      map[domain.SourceKey]*entry
	retention int // max history per key, 0 = unbounded

	subMu  sync.Mutex
	subs   map[int]Listener
	nextID int
}

func New(retention int) *Store {
	if retention < 0 {
		retention = 0
	}
	return &Store{
		keys:      make(map[domain.SourceKey]*entry),
		retention: retention,
		subs:      make(map[int]Listener),
	}
}

func (s *Store) entryFor(key domain.SourceKey) *entry {
	s.mu.RLock()
	e := s.keys[key]
	s.mu.RUnlock()
	if e != nil {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.keys[key]; e == nil {
		e = &entry{}
		s.keys[key] = e
	}
	return e
}

// Record folds one sample into the aggregate for (source, symbol) and
// notifies subscribers. Out-of-order timestamps are accepted; the sample
// simply becomes the new latest.
func (s *Store) Record(source domain.Source, symbol domain.Symbol, sample domain.PriceSample) {
	key := domain.SourceKey{Source: source, Symbol: symbol}
	e := s.entryFor(key)

	e.mu.Lock()
	metric := sample.MetricAfter(e.latest.Price, e.has)
	e.latest = metric
	e.has = true
	if s.retention > 0 && len(e.history) >= s.retention {
		copy(e.history, e.history[1:])
		e.history[len(e.history)-1] = sample
	} else {
		e.history = append(e.history, sample)
	}
	// Notify while still holding the entry lock so listeners observe
	// same-key updates in arrival order.
	s.notify(key, metric)
	e.mu.Unlock()
}

// Latest returns the current metric for (source, symbol), if any.
func (s *Store) Latest(source domain.Source, symbol domain.Symbol) (domain.PriceMetric, bool) {
	s.mu.RLock()
	e := s.keys[domain.SourceKey{Source: source, Symbol: symbol}]
	s.mu.RUnlock()
	if e == nil {
		return domain.PriceMetric{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest, e.has
}

// History returns a copy of the retained samples for (source, symbol).
func (s *Store) History(source domain.Source, symbol domain.Symbol) []domain.PriceSample {
	s.mu.RLock()
	e := s.keys[domain.SourceKey{Source: source, Symbol: symbol}]
	s.mu.RUnlock()
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.PriceSample, len(e.history))
	copy(out, e.history)
	return out
}

// Subscribe registers a listener for all future updates. The returned
// function removes it.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(key domain.SourceKey, metric domain.PriceMetric) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(key, metric)
	}
}
