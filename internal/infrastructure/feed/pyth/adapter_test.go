package pyth

import (
	"testing"

	"pricedeck/internal/domain"
	"pricedeck/internal/infrastructure/feed"
)

func newTestAdapter(emitted *[]domain.PriceSample) *Adapter {
	return &Adapter{
		deps: feed.Deps{
			Symbol: domain.SymbolBTCUSDT,
			Emit: func(sym domain.Symbol, s domain.PriceSample) {
				*emitted = append(*emitted, s)
			},
		},
		feedID: feedIDs[domain.SymbolBTCUSDT],
	}
}

func TestExponentDecoding(t *testing.T) {
	var emitted []domain.PriceSample
	a := newTestAdapter(&emitted)

	// 5012345678901 * 10^-8 = 50123.45678901
	a.OnMessage([]byte(`{
		"type":"price_update",
		"price_feed":{
			"id":"` + feedIDs[domain.SymbolBTCUSDT] + `",
			"price":{"price":"5012345678901","expo":-8,"publish_time":1700000000}
		}
	}`))

	if len(emitted) != 1 {
		t.Fatalf("emitted %d samples, want 1", len(emitted))
	}
	got := emitted[0].Price
	if got < 50123.4567 || got > 50123.4568 {
		t.Errorf("price = %v, want ~50123.45678901", got)
	}
	if emitted[0].Ts != 1700000000000 {
		t.Errorf("ts = %v, want publish_time in ms", emitted[0].Ts)
	}
}

func TestSubscriptionAck(t *testing.T) {
	var emitted []domain.PriceSample
	a := newTestAdapter(&emitted)

	a.OnMessage([]byte(`{"type":"response","result":"success"}`))

	if !a.confirmed {
		t.Error("ack did not mark the subscription confirmed")
	}
	if len(emitted) != 0 {
		t.Errorf("ack emitted %d samples, want 0", len(emitted))
	}
}

func TestIgnoresForeignFeedIDs(t *testing.T) {
	var emitted []domain.PriceSample
	a := newTestAdapter(&emitted)

	a.OnMessage([]byte(`{
		"type":"price_update",
		"price_feed":{
			"id":"` + feedIDs[domain.SymbolETHUSDT] + `",
			"price":{"price":"250000000000","expo":-8,"publish_time":1700000000}
		}
	}`))

	if len(emitted) != 0 {
		t.Fatalf("emitted %d samples for foreign feed id, want 0", len(emitted))
	}
}

func TestRejectsNonPositivePrices(t *testing.T) {
	var emitted []domain.PriceSample
	a := newTestAdapter(&emitted)

	a.OnMessage([]byte(`{
		"type":"price_update",
		"price_feed":{
			"id":"` + feedIDs[domain.SymbolBTCUSDT] + `",
			"price":{"price":"0","expo":-8,"publish_time":1700000000}
		}
	}`))

	if len(emitted) != 0 {
		t.Fatalf("emitted %d samples for zero price, want 0", len(emitted))
	}
}
