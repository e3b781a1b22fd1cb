package chatclient

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

// Config describes how a client reaches the messaging API.
type Config struct {
	BaseURL           string
	Token             string
	UserID            string
	Timeout           time.Duration
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	Dialer            *websocket.Dialer
	OnConnection      func(connected bool)
}

type dispatcher struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(realtime.Envelope)
}

func (d *dispatcher) on(handler func(realtime.Envelope)) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.handlers[d.next] = handler
	return d.next
}

func (d *dispatcher) off(id int) {
	d.mu.Lock()
	delete(d.handlers, id)
	d.mu.Unlock()
}

func (d *dispatcher) dispatch(envelope realtime.Envelope) {
	d.mu.RLock()
	handlers := make([]func(realtime.Envelope), 0, len(d.handlers))
	for _, handler := range d.handlers {
		handlers = append(handlers, handler)
	}
	d.mu.RUnlock()

	for _, handler := range handlers {
		handler(envelope)
	}
}

// Client wires the REST store, the realtime socket and the state containers
// of one signed-in user.
type Client struct {
	cfg      Config
	store    Store
	subs     *Subscriptions
	socket   *Socket
	handlers *dispatcher
	opts     []Option
	logger   zerolog.Logger
}

// New builds a client. Call Run to open the realtime connection.
func New(cfg Config, opts ...Option) (*Client, error) {
	wsURL, err := WebsocketURL(cfg.BaseURL, cfg.Token)
	if err != nil {
		return nil, err
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 2 * time.Second
	}

	client := &Client{
		cfg:      cfg,
		store:    NewRESTClient(cfg.BaseURL, cfg.Token, cfg.Timeout),
		subs:     NewSubscriptions(),
		handlers: &dispatcher{handlers: make(map[int]func(realtime.Envelope))},
		opts:     opts,
		logger:   buildOptions("chat_client", opts).logger,
	}
	client.socket = NewSocket(SocketConfig{
		URL:      wsURL,
		Attempts: cfg.ReconnectAttempts,
		Backoff:  cfg.ReconnectBackoff,
		Dialer:   cfg.Dialer,
		OnState:  cfg.OnConnection,
	}, client.subs, client.handle, opts...)
	return client, nil
}

// Run keeps the realtime connection open until ctx ends.
func (c *Client) Run(ctx context.Context) error {
	return c.socket.Run(ctx)
}

// Store exposes the REST store.
func (c *Client) Store() Store { return c.store }

// Socket exposes the realtime connection.
func (c *Client) Socket() *Socket { return c.socket }

// Subscriptions exposes the rooms currently held.
func (c *Client) Subscriptions() *Subscriptions { return c.subs }

// OnEvent registers a handler for every inbound envelope except gateway
// errors. The returned func removes it.
func (c *Client) OnEvent(handler func(realtime.Envelope)) func() {
	id := c.handlers.on(handler)
	return func() { c.handlers.off(id) }
}

// OpenConversation loads a conversation and keeps it live until the returned
// func is called.
func (c *Client) OpenConversation(ctx context.Context, courseID, counterpartID string) (*Conversation, func(), error) {
	conversation := NewConversation(c.cfg.UserID, courseID, counterpartID, c.store, c.socket, c.opts...)
	sub := ChatSubscription(courseID, c.cfg.UserID)
	closer := c.attach(sub, func(envelope realtime.Envelope) { conversation.Apply(envelope) })

	if err := conversation.Load(ctx); err != nil {
		closer()
		return nil, nil, err
	}
	return conversation, closer, nil
}

// OpenInbox loads the instructor inbox, optionally scoped to one course.
func (c *Client) OpenInbox(ctx context.Context, courseID string) (*Inbox, func(), error) {
	inbox := NewInbox(c.cfg.UserID, courseID, c.store, c.opts...)
	closer := c.attach(InboxSubscription(c.cfg.UserID), func(envelope realtime.Envelope) { inbox.Apply(envelope) })

	if err := inbox.Load(ctx); err != nil {
		closer()
		return nil, nil, err
	}
	return inbox, closer, nil
}

// OpenThread loads a lecture's discussions. Expanded discussions join their
// own rooms until collapsed or closed.
func (c *Client) OpenThread(ctx context.Context, lectureID string) (*Thread, func(), error) {
	thread := NewThread(lectureID, c.store, c.socket, c.subs, c.opts...)
	release := c.attach(LectureSubscription(lectureID), func(envelope realtime.Envelope) { thread.Apply(envelope) })
	closer := func() {
		thread.Close()
		release()
	}

	if err := thread.Load(ctx); err != nil {
		closer()
		return nil, nil, err
	}
	return thread, closer, nil
}

// Notifications loads the notification feed. The user room is joined by the
// gateway on connect, so no subscription is taken.
func (c *Client) Notifications(ctx context.Context, cue func(delta int)) (*NotificationFeed, func(), error) {
	feed := NewNotificationFeed(c.cfg.UserID, c.store, cue, c.opts...)
	id := c.handlers.on(func(envelope realtime.Envelope) { feed.Apply(envelope) })
	closer := func() { c.handlers.off(id) }

	if err := feed.Load(ctx); err != nil {
		closer()
		return nil, nil, err
	}
	return feed, closer, nil
}

func (c *Client) attach(sub Subscription, handler func(realtime.Envelope)) func() {
	id := c.handlers.on(handler)
	c.subs.Acquire(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.handlers.off(id)
			c.subs.Release(sub.Room)
		})
	}
}

func (c *Client) handle(envelope realtime.Envelope) {
	if envelope.Event == realtime.EventError {
		var payload realtime.ErrorPayload
		if err := envelope.Decode(&payload); err == nil {
			c.logger.Warn().Str("event", payload.Event).Str("reason", payload.Message).Msg("realtime gateway rejected event")
		}
		return
	}
	c.handlers.dispatch(envelope)
}
