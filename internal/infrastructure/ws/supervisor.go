// Package ws wraps a websocket connection in a reconnect/heartbeat/backoff
// state machine. Adapters never touch the socket directly; they send
// subscription and heartbeat payloads through the supervisor and receive raw
// frames in arrival order.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"pricedeck/internal/domain"
)

// ErrNotConnected is returned by sends attempted between connections.
var ErrNotConnected = errors.New("ws: not connected")

// Handlers are the adapter-facing hooks. OnOpen re-runs on every successful
// (re)connect because server-side subscription state does not survive a
// reconnect. OnStatus observes every state transition.
type Handlers struct {
	OnOpen    func(send func(v any) error) error
	OnMessage func(raw []byte)
	OnStatus  func(state domain.ConnState)
}

type Options struct {
	Header      http.Header // e.g. bearer token
	DialTimeout time.Duration

	// MinRetryInterval is the floor between two dial attempts, enforced
	// even after a clean drop so a flapping peer cannot hot-loop us.
	// Failed dials additionally back off exponentially up to
	// MaxRetryInterval.
	MinRetryInterval time.Duration
	MaxRetryInterval time.Duration

	// Application-level heartbeat (vendor liveness frame). Zero disables.
	HeartbeatEvery time.Duration
	Heartbeat      func(send func(v any) error) error

	// Transport-level ping + read deadline.
	PingEvery   time.Duration
	ReadTimeout time.Duration
}

func (o *Options) defaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.MinRetryInterval <= 0 {
		o.MinRetryInterval = 500 * time.Millisecond
	}
	if o.MaxRetryInterval <= 0 {
		o.MaxRetryInterval = 10 * time.Second
	}
	if o.PingEvery <= 0 {
		o.PingEvery = 25 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
}

// Supervisor owns exactly one physical connection at a time and redials
// forever until Close (or the parent context) stops it.
type Supervisor struct {
	name    string
	url     string
	h       Handlers
	opts    Options
	limiter *rate.Limiter

	mu   sync.Mutex // guards conn; also serializes outbound writes
	conn *websocket.Conn

	stateMu sync.Mutex
	state   domain.ConnState

	cancel context.CancelFunc
	done   chan struct{}
}

// Open validates the URL, starts the supervision loop and returns a handle.
// A malformed URL is a fatal configuration error and is never retried;
// network-level failures after this point are always retried.
func Open(ctx context.Context, name, rawURL string, h Handlers, opts Options) (*Supervisor, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("ws: invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("ws: unsupported scheme %q in %q", u.Scheme, rawURL)
	}
	opts.defaults()

	runCtx, cancel := context.WithCancel(ctx)
	s := &Supervisor{
		name:    name,
		url:     rawURL,
		h:       h,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.MinRetryInterval), 1),
		state:   domain.ConnClosed,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(runCtx)
	return s, nil
}

// Close tears the connection down and stops all timers. Idempotent.
func (s *Supervisor) Close() {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.Unlock()
	<-s.done
}

// Reconnect forces the current connection to drop; the supervision loop
// redials and re-runs OnOpen as for any other disconnect.
func (s *Supervisor) Reconnect() {
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.Unlock()
}

// Status returns the current connection state.
func (s *Supervisor) Status() domain.ConnState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Supervisor) setStatus(st domain.ConnState) {
	s.stateMu.Lock()
	changed := s.state != st
	s.state = st
	s.stateMu.Unlock()
	if changed && s.h.OnStatus != nil {
		s.h.OnStatus(st)
	}
}

func (s *Supervisor) sendJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.WriteJSON(v)
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer s.setStatus(domain.ConnClosed)

	backoff := s.opts.MinRetryInterval
	first := true

	for {
		if ctx.Err() != nil {
			return
		}
		if first {
			s.setStatus(domain.ConnConnecting)
			first = false
		} else {
			s.setStatus(domain.ConnReconnecting)
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		dctx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
		conn, _, err := websocket.DefaultDialer.DialContext(dctx, s.url, s.opts.Header)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Str("feed", s.name).Err(err).Msg("ws dial failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = minDur(backoff*2, s.opts.MaxRetryInterval)
			continue
		}
		backoff = s.opts.MinRetryInterval

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.setStatus(domain.ConnConnected)
		log.Info().Str("feed", s.name).Msg("ws connected")

		if s.h.OnOpen != nil {
			if err := s.h.OnOpen(s.sendJSON); err != nil {
				log.Warn().Str("feed", s.name).Err(err).Msg("onOpen hook failed")
			}
		}

		err = s.readLoop(ctx, conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("feed", s.name).Err(err).Msg("ws disconnected, reconnecting")
	}
}

// readLoop pumps frames until the connection dies. The heartbeat and ping
// tickers live here so they are torn down and recreated with every connect.
func (s *Supervisor) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.opts.PingEvery)
	defer pingTicker.Stop()

	var hbC <-chan time.Time
	if s.opts.HeartbeatEvery > 0 && s.opts.Heartbeat != nil {
		hbTicker := time.NewTicker(s.opts.HeartbeatEvery)
		defer hbTicker.Stop()
		hbC = hbTicker.C
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
			if s.h.OnMessage != nil {
				s.h.OnMessage(b)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		case <-hbC:
			if err := s.opts.Heartbeat(s.sendJSON); err != nil {
				log.Debug().Str("feed", s.name).Err(err).Msg("heartbeat send failed")
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
