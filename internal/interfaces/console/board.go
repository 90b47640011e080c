// Package console is a thin demo consumer: it tails price updates and
// connection state transitions onto stdout. It depends only on the ticker
// service's public surface.
package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"pricedeck/internal/domain"
)

type Board struct {
	mu  sync.Mutex
	out io.Writer
}

func NewBoard(out io.Writer) *Board {
	return &Board{out: out}
}

// OnUpdate prints one tape line per accepted price update.
func (b *Board) OnUpdate(key domain.SourceKey, m domain.PriceMetric) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.out, "%s  %-9s %-8s %12.4f  %+10.4f (%+.3f%%)\n",
		time.UnixMilli(m.Ts).Format("15:04:05.000"),
		key.Source, key.Symbol, m.Price, m.Change, m.ChangePercent)
}

// OnStatus prints connection state transitions.
func (b *Board) OnStatus(source domain.Source, state domain.ConnState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.out, "%s  %-9s -- %s\n",
		time.Now().Format("15:04:05.000"), source, state)
}
