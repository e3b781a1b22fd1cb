package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/newlearn-go-api/internal/observability"
)

// Publisher fans a committed entity out to rooms.
type Publisher interface {
	Publish(ctx context.Context, event string, rooms []string, payload interface{}) error
}

// Publication is a resolved event ready for fan-out.
type Publication struct {
	Event   string
	Rooms   []string
	Payload interface{}
}

type relayEvent struct {
	ID     string          `json:"id"`
	Source string          `json:"source"`
	Event  string          `json:"event"`
	Rooms  []string        `json:"rooms"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sent_at"`
}

// Broadcaster delivers events to local subscribers and relays them to other
// nodes through Redis pub/sub and NATS when configured.
type Broadcaster struct {
	hub          *Hub
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
	tracer       trace.Tracer
	seen         *relaySeen
}

// relaySeen remembers recently relayed event ids so an event arriving over both
// Redis and NATS is delivered once.
type relaySeen struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	limit int
}

func newRelaySeen(limit int) *relaySeen {
	return &relaySeen{ids: make(map[string]struct{}, limit), limit: limit}
}

func (r *relaySeen) firstTime(id string) bool {
	if id == "" {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	r.order = append(r.order, id)
	if len(r.order) > r.limit {
		delete(r.ids, r.order[0])
		r.order = r.order[1:]
	}
	return true
}

// NewBroadcaster wires a broadcaster around the hub. Either relay client may be nil.
func NewBroadcaster(hub *Hub, redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *Broadcaster {
	redisChannel := ""
	natsSubject := ""
	if channelBase != "" {
		redisChannel = channelBase + ":events"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &Broadcaster{
		hub:          hub,
		redis:        redisClient,
		redisChannel: redisChannel,
		nats:         natsConn,
		natsSubject:  natsSubject,
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "realtime_broadcaster").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/newlearn-go-api/internal/realtime"),
		seen:         newRelaySeen(1024),
	}
}

// Hub returns the local hub.
func (b *Broadcaster) Hub() *Hub { return b.hub }

// NodeID identifies this process in relayed events.
func (b *Broadcaster) NodeID() string { return b.nodeID }

// Publish delivers payload to the rooms on this node and relays it to peers.
func (b *Broadcaster) Publish(ctx context.Context, event string, rooms []string, payload interface{}) error {
	return b.publish(ctx, Publication{Event: event, Rooms: rooms, Payload: payload}, nil)
}

func (b *Broadcaster) publish(ctx context.Context, pub Publication, except *Subscriber) error {
	ctx, span := b.tracer.Start(ctx, "realtime.publish", trace.WithAttributes(
		attribute.String("realtime.event", pub.Event),
		attribute.StringSlice("realtime.rooms", pub.Rooms),
	))
	defer span.End()

	envelope, err := NewEnvelope(pub.Event, pub.Payload)
	if err != nil {
		span.RecordError(err)
		return err
	}
	frame, err := envelope.Encode()
	if err != nil {
		span.RecordError(err)
		return err
	}

	delivered := b.hub.Deliver(pub.Rooms, pub.Event, frame, except)
	observability.RealtimeEvents().WithLabelValues(pub.Event).Inc()
	b.logger.Debug().Str("event", pub.Event).Strs("rooms", pub.Rooms).Int("delivered", delivered).Msg("event published")

	if err := b.relay(ctx, pub.Event, pub.Rooms, envelope.Data); err != nil {
		span.RecordError(err)
		b.logger.Warn().Err(err).Str("event", pub.Event).Msg("failed to relay event")
	}

	return nil
}

func (b *Broadcaster) relay(ctx context.Context, event string, rooms []string, data json.RawMessage) error {
	if (b.redis == nil || b.redisChannel == "") && (b.nats == nil || b.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(relayEvent{
		ID:     uuid.NewString(),
		Source: b.nodeID,
		Event:  event,
		Rooms:  rooms,
		Data:   data,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	var errs []error
	if b.redis != nil && b.redisChannel != "" {
		if err := b.redis.Publish(ctx, b.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Start subscribes to the configured relays until ctx is cancelled.
func (b *Broadcaster) Start(ctx context.Context) {
	if b.redis != nil && b.redisChannel != "" {
		pubsub := b.redis.Subscribe(ctx, b.redisChannel)
		go b.consumeRedis(ctx, pubsub)
	}
	if b.nats != nil && b.natsSubject != "" {
		b.consumeNATS(ctx)
	}
}

func (b *Broadcaster) consumeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer func() {
		_ = pubsub.Close()
	}()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			b.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		b.handleRelay("redis", []byte(msg.Payload))
	}
}

func (b *Broadcaster) consumeNATS(ctx context.Context) {
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handleRelay("nats", msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats realtime subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

func (b *Broadcaster) handleRelay(transport string, data []byte) {
	var event relayEvent
	if err := json.Unmarshal(data, &event); err != nil {
		b.logger.Warn().Err(err).Str("transport", transport).Msg("invalid realtime relay event")
		return
	}

	if event.Source == b.nodeID || !b.seen.firstTime(event.ID) {
		return
	}

	frame, err := Envelope{Event: event.Event, Data: event.Data}.Encode()
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to encode relayed event")
		return
	}

	observability.RealtimeRelayed().WithLabelValues(transport).Inc()
	b.hub.Deliver(event.Rooms, event.Event, frame, nil)
}
