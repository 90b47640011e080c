// Package binance streams the book-ticker channel and quotes the mid of the
// best bid/ask. Prices arrive in USDT and are converted to USD.
package binance

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pricedeck/internal/application/port"
	"pricedeck/internal/domain"
	"pricedeck/internal/infrastructure/feed"
)

const wsBase = "wss://stream.binance.com:9443"

// 交易对映射：内部符号 -> Binance stream 代码（小写）
var symbolCodes = feed.MustCodes(domain.SourceBinance, map[domain.Symbol]string{
	domain.SymbolBTCUSDT: "btcusdt",
	domain.SymbolETHUSDT: "ethusdt",
})

func init() {
	feed.Register(feed.Descriptor{
		Source:     domain.SourceBinance,
		Categories: []domain.Category{domain.CategoryCrypto},
		DefaultURL: wsBase,
		Coalesce:   true,
		Supports: func(sym domain.Symbol) bool {
			_, ok := symbolCodes[sym]
			return ok
		},
		// The subscription rides in the stream path; no onOpen frame.
		URL: func(base string, d feed.Deps) string {
			code, ok := symbolCodes[d.Symbol]
			if !ok {
				return ""
			}
			return strings.TrimRight(base, "/") + "/ws/" + code + "@bookTicker"
		},
		New: func(d feed.Deps) port.FeedAdapter {
			return &Adapter{deps: d, code: strings.ToUpper(symbolCodes[d.Symbol])}
		},
	})
}

type Adapter struct {
	deps feed.Deps
	code string // vendor code as it appears in frames, e.g. "BTCUSDT"
}

func (a *Adapter) Source() domain.Source { return domain.SourceBinance }

func (a *Adapter) OnOpen(send port.SendFunc) error {
	// Subscribed via the stream URL.
	return nil
}

type bookTickerMsg struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

func (a *Adapter) OnMessage(raw []byte) {
	var msg bookTickerMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Str("feed", "binance").Err(err).Msg("frame dropped")
		return
	}
	if !strings.EqualFold(msg.Symbol, a.code) {
		return
	}
	bid, err1 := strconv.ParseFloat(msg.Bid, 64)
	ask, err2 := strconv.ParseFloat(msg.Ask, 64)
	if err1 != nil || err2 != nil {
		return
	}
	rate, ok := a.deps.Rate.Rate()
	if !ok {
		// No USDT->USD rate yet; suppressing beats emitting a wrong price.
		return
	}
	mid := (bid + ask) / 2
	a.deps.Emit(a.deps.Symbol, domain.PriceSample{
		Price: mid * rate,
		Ts:    time.Now().UnixMilli(),
	})
}
