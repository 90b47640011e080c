package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pricedeck/internal/application/port"
	"pricedeck/internal/domain"
)

var testUpgrader = websocket.Upgrader{}

// streamServer pushes a bare numeric price frame every interval, forever.
func streamServer(t *testing.T, interval time.Duration) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		price := 100.0
		for {
			price++
			msg := strconv.FormatFloat(price, 'f', -1, 64)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
			time.Sleep(interval)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type numericAdapter struct {
	deps Deps
}

func (a *numericAdapter) Source() domain.Source           { return "TEST" }
func (a *numericAdapter) OnOpen(send port.SendFunc) error { return nil }
func (a *numericAdapter) OnMessage(raw []byte) {
	price, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return
	}
	a.deps.Emit(a.deps.Symbol, domain.PriceSample{Price: price, Ts: time.Now().UnixMilli()})
}

func registerNumericSource(source domain.Source, url string, requiresAuth bool) {
	Register(Descriptor{
		Source:       source,
		Categories:   []domain.Category{domain.CategoryCrypto},
		DefaultURL:   url,
		RequiresAuth: requiresAuth,
		Supports:     func(sym domain.Symbol) bool { return sym == domain.SymbolBTCUSDT },
		New:          func(d Deps) port.FeedAdapter { return &numericAdapter{deps: d} },
	})
}

func TestStopGatesOffEmissions(t *testing.T) {
	url := streamServer(t, 5*time.Millisecond)
	registerNumericSource("TEST_STOP", url, false)

	var mu sync.Mutex
	var count int
	emit := func(sym domain.Symbol, s domain.PriceSample) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	l := NewLauncher(Config{ReconnectMin: 10 * time.Millisecond})
	stop, err := l.Start(context.Background(), "TEST_STOP", domain.SymbolBTCUSDT, emit, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := count
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The server keeps pushing after stop; nothing may reach the sink.
	stop()
	mu.Lock()
	after := count
	mu.Unlock()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	final := count
	mu.Unlock()
	if final != after {
		t.Errorf("emissions after stop: %d -> %d", after, final)
	}
	if after == 0 {
		t.Error("no emissions before stop")
	}
}

func TestUnsupportedSymbolFailsClosed(t *testing.T) {
	registerNumericSource("TEST_UNSUP", "ws://example.invalid", false)

	l := NewLauncher(Config{})
	if _, err := l.Start(context.Background(), "TEST_UNSUP", domain.SymbolEURUSD, func(domain.Symbol, domain.PriceSample) {}, nil); err == nil {
		t.Fatal("Start accepted an unsupported symbol")
	}
}

func TestMissingTokenFailsClosed(t *testing.T) {
	registerNumericSource("TEST_AUTH", "ws://example.invalid", true)

	l := NewLauncher(Config{})
	if _, err := l.Start(context.Background(), "TEST_AUTH", domain.SymbolBTCUSDT, func(domain.Symbol, domain.PriceSample) {}, nil); err == nil {
		t.Fatal("Start accepted a gated source without a token")
	}
}

func TestUnknownSourceRejected(t *testing.T) {
	l := NewLauncher(Config{})
	if _, err := l.Start(context.Background(), "NO_SUCH", domain.SymbolBTCUSDT, func(domain.Symbol, domain.PriceSample) {}, nil); err == nil {
		t.Fatal("Start accepted an unregistered source")
	}
}

func TestURLOverrideWins(t *testing.T) {
	url := streamServer(t, 5*time.Millisecond)
	registerNumericSource("TEST_OVERRIDE", "ws://example.invalid", false)

	got := make(chan struct{}, 1)
	emit := func(sym domain.Symbol, s domain.PriceSample) {
		select {
		case got <- struct{}{}:
		default:
		}
	}

	l := NewLauncher(Config{
		URLOverrides: map[domain.Source]string{"TEST_OVERRIDE": url},
		ReconnectMin: 10 * time.Millisecond,
	})
	stop, err := l.Start(context.Background(), "TEST_OVERRIDE", domain.SymbolBTCUSDT, emit, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stop()

	select {
	case <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("no emission via overridden endpoint")
	}
}
