package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

var (
	// ErrNotConnected is returned by Emit while no connection is open.
	ErrNotConnected = errors.New("realtime socket not connected")
	// ErrReconnectExhausted is returned by Run once every dial attempt failed.
	ErrReconnectExhausted = errors.New("realtime reconnect attempts exhausted")
)

// SocketConfig tunes the realtime connection.
type SocketConfig struct {
	URL string
	// Attempts bounds consecutive failed dials. Zero retries forever.
	Attempts int
	Backoff  time.Duration
	Dialer   *websocket.Dialer
	// OnState is told when the connection opens and drops.
	OnState func(connected bool)
}

// Socket keeps one websocket open against the gateway, replays room
// subscriptions on every connect and hands inbound envelopes to a handler.
type Socket struct {
	cfg     SocketConfig
	subs    *Subscriptions
	handler func(realtime.Envelope)
	opts    options

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex
}

// WebsocketURL derives the gateway endpoint from the API base URL.
func WebsocketURL(baseURL, token string) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http", "":
		parsed.Scheme = "ws"
	}
	parsed.Path += "/api/v2/realtime/ws"
	query := parsed.Query()
	query.Set("access_token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func NewSocket(cfg SocketConfig, subs *Subscriptions, handler func(realtime.Envelope), opts ...Option) *Socket {
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if subs == nil {
		subs = NewSubscriptions()
	}
	return &Socket{
		cfg:     cfg,
		subs:    subs,
		handler: handler,
		opts:    buildOptions("realtime_socket", opts),
	}
}

// Run dials and redials until ctx ends or the attempt budget runs out.
// The budget resets after every successful connect.
func (s *Socket) Run(ctx context.Context) error {
	failures := 0
	for {
		conn, _, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			s.opts.logger.Warn().Err(err).Int("attempt", failures).Msg("realtime dial failed")
			if s.cfg.Attempts > 0 && failures >= s.cfg.Attempts {
				return fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
			}
			if !s.wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		failures = 0
		s.session(ctx, conn)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.wait(ctx) {
			return ctx.Err()
		}
	}
}

func (s *Socket) session(ctx context.Context, conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.notify(true)
	s.subs.Attach(s)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.opts.logger.Debug().Err(err).Msg("realtime connection dropped")
			break
		}
		var envelope realtime.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Event == "" {
			s.opts.logger.Warn().Msg("ignoring malformed realtime frame")
			continue
		}
		if s.handler != nil {
			s.handler(envelope)
		}
	}
	close(done)

	s.subs.Detach()
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	_ = conn.Close()
	s.notify(false)
}

// Emit sends an event on the live connection.
func (s *Socket) Emit(event string, payload interface{}) error {
	envelope, err := realtime.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	frame, err := envelope.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Connected reports whether a connection is currently open.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close drops the current connection. Run redials unless its context ended.
func (s *Socket) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return conn.Close()
}

func (s *Socket) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.cfg.Backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Socket) notify(connected bool) {
	if s.cfg.OnState != nil {
		s.cfg.OnState(connected)
	}
}
