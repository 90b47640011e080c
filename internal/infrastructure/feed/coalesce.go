package feed

import (
	"sync"
	"time"

	"pricedeck/internal/application/port"
	"pricedeck/internal/domain"
)

// Coalescer bounds how often a noisy feed propagates downstream: within one
// window only the newest sample survives (last-value-wins, no averaging).
type Coalescer struct {
	window time.Duration
	emit   port.Emit

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	symbol  domain.Symbol
	sample  domain.PriceSample
	stopped bool
}

func NewCoalescer(window time.Duration, emit port.Emit) *Coalescer {
	return &Coalescer{window: window, emit: emit}
}

// Offer replaces the pending sample and arms the flush timer if idle.
func (c *Coalescer) Offer(symbol domain.Symbol, sample domain.PriceSample) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.symbol, c.sample = symbol, sample
	if !c.pending {
		c.pending = true
		c.timer = time.AfterFunc(c.window, c.flush)
	}
	c.mu.Unlock()
}

func (c *Coalescer) flush() {
	c.mu.Lock()
	if c.stopped || !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	symbol, sample := c.symbol, c.sample
	c.mu.Unlock()

	c.emit(symbol, sample)
}

// Stop cancels the flush timer and discards any pending sample.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.pending = false
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
}
