// Package pyth consumes the Hermes price-update stream. Prices are encoded
// as an integer mantissa plus a decimal exponent.
package pyth

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"pricedeck/internal/application/port"
	"pricedeck/internal/domain"
	"pricedeck/internal/infrastructure/feed"
)

const wsURL = "wss://hermes.pyth.network/ws"

// Price feed ids (hex, no 0x prefix) as Hermes expects them.
var feedIDs = feed.MustCodes(domain.SourcePyth, map[domain.Symbol]string{
	domain.SymbolBTCUSDT: "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
	domain.SymbolETHUSDT: "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
})

func init() {
	feed.Register(feed.Descriptor{
		Source:     domain.SourcePyth,
		Categories: []domain.Category{domain.CategoryCrypto},
		DefaultURL: wsURL,
		Supports: func(sym domain.Symbol) bool {
			_, ok := feedIDs[sym]
			return ok
		},
		New: func(d feed.Deps) port.FeedAdapter {
			return &Adapter{deps: d, feedID: feedIDs[d.Symbol]}
		},
	})
}

type Adapter struct {
	deps      feed.Deps
	feedID    string
	confirmed bool
}

func (a *Adapter) Source() domain.Source { return domain.SourcePyth }

type subReq struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

func (a *Adapter) OnOpen(send port.SendFunc) error {
	a.confirmed = false
	return send(subReq{Type: "subscribe", IDs: []string{a.feedID}})
}

type updateMsg struct {
	Type      string `json:"type"`
	Result    string `json:"result,omitempty"` // subscription ack
	PriceFeed struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Expo        int    `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"price_feed"`
}

func (a *Adapter) OnMessage(raw []byte) {
	var msg updateMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Str("feed", "pyth").Err(err).Msg("frame dropped")
		return
	}

	if msg.Result == "success" {
		a.confirmed = true
		return
	}
	if msg.Type != "price_update" || msg.PriceFeed.ID != a.feedID {
		return
	}

	mantissa, err := strconv.ParseFloat(msg.PriceFeed.Price.Price, 64)
	if err != nil {
		return
	}
	price := mantissa * math.Pow(10, float64(msg.PriceFeed.Price.Expo))
	if price <= 0 {
		return
	}

	ts := msg.PriceFeed.Price.PublishTime * 1000
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	a.deps.Emit(a.deps.Symbol, domain.PriceSample{Price: price, Ts: ts})
}
