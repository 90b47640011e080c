// Package coinbase streams the ticker channel; each frame carries the last
// trade price, already quoted in USD.
package coinbase

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"pricedeck/internal/application/port"
	"pricedeck/internal/domain"
	"pricedeck/internal/infrastructure/feed"
)

const wsURL = "wss://ws-feed.exchange.coinbase.com"

var symbolCodes = feed.MustCodes(domain.SourceCoinbase, map[domain.Symbol]string{
	domain.SymbolBTCUSDT: "BTC-USD",
	domain.SymbolETHUSDT: "ETH-USD",
})

func init() {
	feed.Register(feed.Descriptor{
		Source:     domain.SourceCoinbase,
		Categories: []domain.Category{domain.CategoryCrypto},
		DefaultURL: wsURL,
		Coalesce:   true,
		Supports: func(sym domain.Symbol) bool {
			_, ok := symbolCodes[sym]
			return ok
		},
		New: func(d feed.Deps) port.FeedAdapter {
			return &Adapter{deps: d, productID: symbolCodes[d.Symbol]}
		},
	})
}

type Adapter struct {
	deps      feed.Deps
	productID string
	confirmed bool
}

func (a *Adapter) Source() domain.Source { return domain.SourceCoinbase }

type subReq struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

func (a *Adapter) OnOpen(send port.SendFunc) error {
	a.confirmed = false
	return send(subReq{
		Type:       "subscribe",
		ProductIDs: []string{a.productID},
		Channels:   []string{"ticker"},
	})
}

type tickerMsg struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Time      string `json:"time"`
}

func (a *Adapter) OnMessage(raw []byte) {
	var msg tickerMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Str("feed", "coinbase").Err(err).Msg("frame dropped")
		return
	}

	switch msg.Type {
	case "subscriptions":
		a.confirmed = true
		return
	case "ticker":
	default:
		return
	}
	if msg.ProductID != a.productID {
		return
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		return
	}
	ts := time.Now().UnixMilli()
	if t, err := time.Parse(time.RFC3339Nano, msg.Time); err == nil {
		ts = t.UnixMilli()
	}
	a.deps.Emit(a.deps.Symbol, domain.PriceSample{Price: price, Ts: ts})
}
