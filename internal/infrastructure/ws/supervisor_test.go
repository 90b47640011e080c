package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pricedeck/internal/domain"
)

var upgrader = websocket.Upgrader{}

// echoServer tracks connections and lets the test kill them.
type echoServer struct {
	srv *httptest.Server

	mu    sync.Mutex
	conns []*websocket.Conn
	count atomic.Int32
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	es := &echoServer{}
	es.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		es.count.Add(1)
		es.mu.Lock()
		es.conns = append(es.conns, conn)
		es.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(es.srv.Close)
	return es
}

func (es *echoServer) url() string {
	return "ws" + strings.TrimPrefix(es.srv.URL, "http")
}

func (es *echoServer) dropAll() {
	es.mu.Lock()
	defer es.mu.Unlock()
	for _, c := range es.conns {
		_ = c.Close()
	}
	es.conns = nil
}

func fastOpts() Options {
	return Options{
		MinRetryInterval: 10 * time.Millisecond,
		MaxRetryInterval: 50 * time.Millisecond,
	}
}

func TestOpenRejectsMalformedURL(t *testing.T) {
	if _, err := Open(context.Background(), "test", "http://not-a-ws", Handlers{}, Options{}); err == nil {
		t.Fatal("expected error for non-ws scheme")
	}
	if _, err := Open(context.Background(), "test", "://bad", Handlers{}, Options{}); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestReconnectRerunsOnOpen(t *testing.T) {
	es := newEchoServer(t)

	var opens atomic.Int32
	var mu sync.Mutex
	var states []domain.ConnState

	h := Handlers{
		OnOpen: func(send func(v any) error) error {
			opens.Add(1)
			return nil
		},
		OnStatus: func(st domain.ConnState) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		},
	}

	sup, err := Open(context.Background(), "test", es.url(), h, fastOpts())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sup.Close()

	waitFor(t, func() bool { return opens.Load() == 1 })

	// Abrupt server-side close: supervisor must redial and re-run the
	// subscription hook exactly once for the new connection.
	es.dropAll()
	waitFor(t, func() bool { return opens.Load() == 2 })

	if es.count.Load() != 2 {
		t.Errorf("server saw %d connections, want 2", es.count.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	if !containsState(states, domain.ConnReconnecting) {
		t.Errorf("status stream %v missing reconnecting", states)
	}
	if !containsState(states, domain.ConnConnected) {
		t.Errorf("status stream %v missing connected", states)
	}
}

func TestCloseStopsRedialing(t *testing.T) {
	es := newEchoServer(t)

	sup, err := Open(context.Background(), "test", es.url(), Handlers{}, fastOpts())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitFor(t, func() bool { return es.count.Load() == 1 })

	sup.Close()
	if st := sup.Status(); st != domain.ConnClosed {
		t.Errorf("status after Close = %v, want closed", st)
	}

	time.Sleep(100 * time.Millisecond)
	if es.count.Load() != 1 {
		t.Errorf("server saw %d connections after Close, want 1", es.count.Load())
	}
}

func TestForcedReconnect(t *testing.T) {
	es := newEchoServer(t)

	var opens atomic.Int32
	h := Handlers{OnOpen: func(send func(v any) error) error {
		opens.Add(1)
		return nil
	}}

	sup, err := Open(context.Background(), "test", es.url(), h, fastOpts())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sup.Close()

	waitFor(t, func() bool { return opens.Load() == 1 })
	sup.Reconnect()
	waitFor(t, func() bool { return opens.Load() == 2 })
}

func TestMessagesArriveInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, m := range []string{"one", "two", "three"} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(m))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	h := Handlers{OnMessage: func(raw []byte) {
		mu.Lock()
		got = append(got, string(raw))
		mu.Unlock()
	}}
	sup, err := Open(context.Background(), "test", "ws"+strings.TrimPrefix(srv.URL, "http"), h, fastOpts())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sup.Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Errorf("frames out of order: %v", got)
	}
}

func TestHeartbeatFiresWhileConnected(t *testing.T) {
	es := newEchoServer(t)

	var beats atomic.Int32
	opts := fastOpts()
	opts.HeartbeatEvery = 20 * time.Millisecond
	opts.Heartbeat = func(send func(v any) error) error {
		beats.Add(1)
		return send(map[string]any{"op": "ping"})
	}

	sup, err := Open(context.Background(), "test", es.url(), Handlers{}, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	waitFor(t, func() bool { return beats.Load() >= 2 })

	// After Close the heartbeat timer must be gone.
	sup.Close()
	n := beats.Load()
	time.Sleep(100 * time.Millisecond)
	if beats.Load() != n {
		t.Errorf("heartbeat still firing after Close")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func containsState(states []domain.ConnState, want domain.ConnState) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}
