package realtime

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/newlearn-go-api/internal/observability"
)

const defaultSendBuffer = 64

// Subscriber is a single consumer attached to the hub, usually a websocket
// connection or an SSE stream.
type Subscriber struct {
	id       string
	identity Identity
	send     chan []byte
	closed   chan struct{}
	once     sync.Once
	rooms    map[string]struct{}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// Identity returns the user bound to the subscriber.
func (s *Subscriber) Identity() Identity { return s.identity }

// Frames returns the queue of encoded frames to deliver.
func (s *Subscriber) Frames() <-chan []byte { return s.send }

// Done is closed once the subscriber has been removed from the hub.
func (s *Subscriber) Done() <-chan struct{} { return s.closed }

// Hub tracks room membership for the subscribers connected to this node.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]map[*Subscriber]struct{}
	subscribers map[*Subscriber]struct{}
	log         zerolog.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:       make(map[string]map[*Subscriber]struct{}),
		subscribers: make(map[*Subscriber]struct{}),
		log:         logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// Attach registers a new subscriber with a bounded send queue.
func (h *Hub) Attach(identity Identity, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}

	sub := &Subscriber{
		id:       uuid.NewString(),
		identity: identity,
		send:     make(chan []byte, buffer),
		closed:   make(chan struct{}),
		rooms:    make(map[string]struct{}),
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	observability.RealtimeConnections().Inc()
	h.log.Debug().Str("subscriber_id", sub.id).Str("user_id", identity.UserID).Msg("subscriber attached")
	return sub
}

// Detach removes the subscriber from every room and closes it. Safe to call twice.
func (h *Hub) Detach(sub *Subscriber) {
	sub.once.Do(func() {
		h.mu.Lock()
		for room := range sub.rooms {
			h.leaveLocked(sub, room)
		}
		delete(h.subscribers, sub)
		close(sub.closed)
		h.mu.Unlock()

		observability.RealtimeConnections().Dec()
		h.log.Debug().Str("subscriber_id", sub.id).Str("user_id", sub.identity.UserID).Msg("subscriber detached")
	})
}

// Join adds the subscriber to a room.
func (h *Hub) Join(sub *Subscriber, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub]; !ok {
		return
	}

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Subscriber]struct{})
		h.rooms[room] = members
	}
	members[sub] = struct{}{}
	sub.rooms[room] = struct{}{}
}

// Leave removes the subscriber from a room.
func (h *Hub) Leave(sub *Subscriber, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sub, room)
}

func (h *Hub) leaveLocked(sub *Subscriber, room string) {
	delete(sub.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Rooms lists the rooms the subscriber belongs to, sorted.
func (h *Hub) Rooms(sub *Subscriber) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(sub.rooms))
	for room := range sub.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// RoomSize returns the number of subscribers in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Deliver queues frame for every subscriber in any of rooms, once per subscriber,
// skipping except. Full queues drop the frame. It returns the number of subscribers
// the frame was queued for.
func (h *Hub) Deliver(rooms []string, event string, frame []byte, except *Subscriber) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Subscriber]struct{})
	delivered := 0
	for _, room := range rooms {
		for sub := range h.rooms[room] {
			if sub == except {
				continue
			}
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}

			if sub.offer(frame) {
				delivered++
				continue
			}
			observability.RealtimeDropped().WithLabelValues(event).Inc()
			h.log.Warn().Str("room", room).Str("event", event).Str("user_id", sub.identity.UserID).Msg("dropping event for slow subscriber")
		}
	}

	return delivered
}

// Reply queues a frame for a single subscriber.
func (h *Hub) Reply(sub *Subscriber, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.subscribers[sub]; !ok {
		return false
	}
	return sub.offer(frame)
}

func (s *Subscriber) offer(frame []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}

	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}
