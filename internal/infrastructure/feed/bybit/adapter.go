// Package bybit streams the level-1 orderbook and quotes the mid of the best
// bid/ask. Prices arrive in USDT and are converted to USD.
package bybit

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"pricedeck/internal/application/port"
	"pricedeck/internal/domain"
	"pricedeck/internal/infrastructure/feed"
)

const wsURL = "wss://stream.bybit.com/v5/public/spot"

var symbolCodes = feed.MustCodes(domain.SourceBybit, map[domain.Symbol]string{
	domain.SymbolBTCUSDT: "BTCUSDT",
	domain.SymbolETHUSDT: "ETHUSDT",
})

func init() {
	feed.Register(feed.Descriptor{
		Source:     domain.SourceBybit,
		Categories: []domain.Category{domain.CategoryCrypto},
		DefaultURL: wsURL,
		Coalesce:   true,
		Supports: func(sym domain.Symbol) bool {
			_, ok := symbolCodes[sym]
			return ok
		},
		New: func(d feed.Deps) port.FeedAdapter {
			return &Adapter{deps: d, topic: "orderbook.1." + symbolCodes[d.Symbol]}
		},
	})
}

type Adapter struct {
	deps      feed.Deps
	topic     string
	confirmed bool
}

func (a *Adapter) Source() domain.Source { return domain.SourceBybit }

type subReq struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func (a *Adapter) OnOpen(send port.SendFunc) error {
	a.confirmed = false
	return send(subReq{Op: "subscribe", Args: []string{a.topic}})
}

type orderbookMsg struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
	} `json:"data"`

	// Command acknowledgements.
	Op      string `json:"op,omitempty"`
	Success *bool  `json:"success,omitempty"`
}

func (a *Adapter) OnMessage(raw []byte) {
	var msg orderbookMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Str("feed", "bybit").Err(err).Msg("frame dropped")
		return
	}

	// subscribe/ping acks never carry a price.
	if msg.Success != nil {
		if *msg.Success {
			a.confirmed = true
		}
		return
	}
	if msg.Topic != a.topic {
		return
	}
	if msg.Type != "snapshot" && msg.Type != "delta" {
		return
	}
	if len(msg.Data.Bids) == 0 || len(msg.Data.Asks) == 0 ||
		len(msg.Data.Bids[0]) == 0 || len(msg.Data.Asks[0]) == 0 {
		return
	}

	bid, err1 := strconv.ParseFloat(msg.Data.Bids[0][0], 64)
	ask, err2 := strconv.ParseFloat(msg.Data.Asks[0][0], 64)
	if err1 != nil || err2 != nil {
		return
	}
	rate, ok := a.deps.Rate.Rate()
	if !ok {
		return
	}

	ts := msg.Ts
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	a.deps.Emit(a.deps.Symbol, domain.PriceSample{
		Price: (bid + ask) / 2 * rate,
		Ts:    ts,
	})
}
