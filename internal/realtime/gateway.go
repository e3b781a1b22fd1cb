package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

const resolveTimeout = 5 * time.Second

// Resolver re-reads a client relayed entity from the store and decides where it
// fans out. Only the stored record is ever broadcast.
type Resolver interface {
	Resolve(ctx context.Context, actor Identity, envelope Envelope) (Publication, error)
}

// Conn is the subset of a websocket connection the gateway drives.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// GatewayOptions tunes websocket sessions.
type GatewayOptions struct {
	PingInterval time.Duration
	SendBuffer   int
}

// Gateway runs websocket sessions against the hub.
type Gateway struct {
	broadcaster *Broadcaster
	hub         *Hub
	resolver    Resolver
	opts        GatewayOptions
	logger      zerolog.Logger
}

// NewGateway constructs a gateway. A nil resolver disables client relays.
func NewGateway(broadcaster *Broadcaster, resolver Resolver, opts GatewayOptions, logger zerolog.Logger) *Gateway {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}

	return &Gateway{
		broadcaster: broadcaster,
		hub:         broadcaster.Hub(),
		resolver:    resolver,
		opts:        opts,
		logger:      logger.With().Str("component", "realtime_gateway").Logger(),
	}
}

// Serve blocks for the lifetime of the connection.
func (g *Gateway) Serve(ctx context.Context, conn Conn, identity Identity) {
	if ctx == nil {
		ctx = context.Background()
	}

	sub := g.hub.Attach(identity, g.opts.SendBuffer)
	g.hub.Join(sub, UserRoom(identity.UserID))

	readTimeout := 2*g.opts.PingInterval + 5*time.Second
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.writeLoop(conn, sub)
	}()

	// Unblock ReadMessage when the server shuts down. The watcher must be
	// gone before Serve returns: the upgrader recycles conn afterwards.
	readDone := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-sub.Done():
		case <-readDone:
		}
	}()

	g.readLoop(ctx, conn, sub, readTimeout)
	close(readDone)

	g.hub.Detach(sub)
	_ = conn.Close()
	<-writerDone
	<-watcherDone
}

func (g *Gateway) readLoop(ctx context.Context, conn Conn, sub *Subscriber, readTimeout time.Duration) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			g.logger.Debug().Err(err).Str("user_id", sub.identity.UserID).Msg("realtime read loop ended")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if messageType != websocket.TextMessage {
			continue
		}

		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Event == "" {
			g.replyError(sub, "", ErrInvalidPayload)
			continue
		}

		g.handle(ctx, sub, envelope)
	}
}

func (g *Gateway) writeLoop(conn Conn, sub *Subscriber) {
	ticker := time.NewTicker(g.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-sub.Frames():
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				g.logger.Debug().Err(err).Msg("realtime write loop terminated")
				g.hub.Detach(sub)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				g.logger.Debug().Err(err).Msg("realtime ping failed")
				g.hub.Detach(sub)
				_ = conn.Close()
				return
			}
		case <-sub.Done():
			return
		}
	}
}

func (g *Gateway) handle(ctx context.Context, sub *Subscriber, envelope Envelope) {
	switch envelope.Event {
	case EventPing:
		g.reply(sub, EventPong, nil)
	case EventJoinChatRoom, EventJoinInstructorRoom, EventJoinDiscussionRoom, EventJoinLectureRoom:
		room, err := RoomFor(sub.identity, envelope)
		if err != nil {
			g.replyError(sub, envelope.Event, err)
			return
		}
		g.hub.Join(sub, room)
		g.reply(sub, EventJoined, RoomAck{Room: room})
	case EventLeaveChatRoom, EventLeaveInstructorRoom, EventLeaveDiscussionRoom, EventLeaveLectureRoom:
		room, err := RoomFor(sub.identity, envelope)
		if err != nil {
			g.replyError(sub, envelope.Event, err)
			return
		}
		g.hub.Leave(sub, room)
		g.reply(sub, EventLeft, RoomAck{Room: room})
	default:
		if !IsRelayable(envelope.Event) || g.resolver == nil {
			g.replyError(sub, envelope.Event, ErrUnsupportedEvent)
			return
		}
		g.relay(ctx, sub, envelope)
	}
}

func (g *Gateway) relay(ctx context.Context, sub *Subscriber, envelope Envelope) {
	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	publication, err := g.resolver.Resolve(resolveCtx, sub.identity, envelope)
	if err != nil {
		g.replyError(sub, envelope.Event, err)
		return
	}

	if err := g.broadcaster.publish(resolveCtx, publication, sub); err != nil {
		g.replyError(sub, envelope.Event, err)
	}
}

// RoomFor validates a join or leave request and returns the room key.
func RoomFor(identity Identity, envelope Envelope) (string, error) {
	switch envelope.Event {
	case EventJoinChatRoom, EventLeaveChatRoom:
		var payload JoinChatRoomPayload
		if err := decodeOptional(envelope, &payload); err != nil {
			return "", err
		}
		if payload.CourseID == "" {
			return "", ErrInvalidPayload
		}
		if payload.UserID == "" {
			payload.UserID = identity.UserID
		}
		if payload.UserID != identity.UserID && !identity.IsAdmin() {
			return "", ErrForbidden
		}
		return ChatRoom(payload.CourseID, payload.UserID), nil
	case EventJoinInstructorRoom, EventLeaveInstructorRoom:
		var payload JoinInstructorRoomPayload
		if err := decodeOptional(envelope, &payload); err != nil {
			return "", err
		}
		if payload.InstructorID == "" {
			payload.InstructorID = identity.UserID
		}
		if payload.InstructorID != identity.UserID && !identity.IsAdmin() {
			return "", ErrForbidden
		}
		return InboxRoom(payload.InstructorID), nil
	case EventJoinDiscussionRoom, EventLeaveDiscussionRoom:
		var payload JoinDiscussionRoomPayload
		if err := envelope.Decode(&payload); err != nil {
			return "", err
		}
		if payload.DiscussionID == 0 {
			return "", ErrInvalidPayload
		}
		return DiscussionRoom(payload.DiscussionID), nil
	case EventJoinLectureRoom, EventLeaveLectureRoom:
		var payload JoinLectureRoomPayload
		if err := envelope.Decode(&payload); err != nil {
			return "", err
		}
		if payload.LectureID == "" {
			return "", ErrInvalidPayload
		}
		return LectureRoom(payload.LectureID), nil
	default:
		return "", ErrUnsupportedEvent
	}
}

// decodeOptional decodes envelope data when present. Joins that default to
// the token subject may be sent without a payload.
func decodeOptional(envelope Envelope, target interface{}) error {
	if len(envelope.Data) == 0 {
		return nil
	}
	return envelope.Decode(target)
}

func (g *Gateway) reply(sub *Subscriber, event string, payload interface{}) {
	envelope, err := NewEnvelope(event, payload)
	if err != nil {
		g.logger.Warn().Err(err).Str("event", event).Msg("failed to encode reply")
		return
	}
	frame, err := envelope.Encode()
	if err != nil {
		g.logger.Warn().Err(err).Str("event", event).Msg("failed to encode reply")
		return
	}
	if !g.hub.Reply(sub, frame) {
		g.logger.Debug().Str("event", event).Msg("reply dropped")
	}
}

func (g *Gateway) replyError(sub *Subscriber, event string, err error) {
	message := "unable to process event"
	switch {
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrEntityNotFound),
		errors.Is(err, ErrUnsupportedEvent), errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrNotCommitted):
		message = err.Error()
	default:
		g.logger.Warn().Err(err).Str("event", event).Str("user_id", sub.identity.UserID).Msg("realtime event rejected")
	}
	g.reply(sub, EventError, ErrorPayload{Event: event, Message: message})
}
