package chatclient

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

const defaultNotificationLimit = 50

// NotificationFeed tracks a user's notifications and calls cue whenever the
// unread count grows. The first load only establishes the baseline.
type NotificationFeed struct {
	self  string
	store NotificationStore
	cue   func(delta int)
	opts  options

	mu       sync.Mutex
	items    []dto.NotificationResponse
	unread   int
	baseline bool
}

func NewNotificationFeed(self string, store NotificationStore, cue func(delta int), opts ...Option) *NotificationFeed {
	return &NotificationFeed{
		self:  self,
		store: store,
		cue:   cue,
		opts:  buildOptions("notification_feed", opts),
	}
}

// Load replaces the feed with the latest notifications.
func (f *NotificationFeed) Load(ctx context.Context) error {
	items, err := f.store.Notifications(ctx, defaultNotificationLimit)
	if err != nil {
		f.opts.logger.Error().Err(err).Msg("failed to load notifications")
		return err
	}

	f.mu.Lock()
	f.items = append([]dto.NotificationResponse(nil), items...)
	sortNotifications(f.items)
	delta := f.recountLocked()
	first := !f.baseline
	f.baseline = true
	f.mu.Unlock()

	if !first {
		f.signal(delta)
	}
	return nil
}

// Apply folds a pushed notification into the feed.
func (f *NotificationFeed) Apply(envelope realtime.Envelope) bool {
	if envelope.Event != realtime.EventNewNotification {
		return false
	}
	var item dto.NotificationResponse
	if err := envelope.Decode(&item); err != nil {
		f.opts.logger.Warn().Err(err).Msg("dropping undecodable notification")
		return false
	}
	if item.UserID != f.self {
		return false
	}

	f.mu.Lock()
	for _, existing := range f.items {
		if existing.ID == item.ID {
			f.mu.Unlock()
			return false
		}
	}
	f.items = append(f.items, item)
	sortNotifications(f.items)
	delta := f.recountLocked()
	f.mu.Unlock()

	f.signal(delta)
	return true
}

// MarkRead acknowledges one notification.
func (f *NotificationFeed) MarkRead(ctx context.Context, id uint) error {
	item, err := f.store.MarkNotificationRead(ctx, id)
	if err != nil {
		f.opts.logger.Error().Err(err).Uint("notification_id", id).Msg("mark notification read failed")
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == item.ID {
			f.items[i].Read = true
		}
	}
	f.recountLocked()
	return nil
}

// MarkAllRead acknowledges every notification.
func (f *NotificationFeed) MarkAllRead(ctx context.Context) error {
	if err := f.store.MarkAllNotificationsRead(ctx); err != nil {
		f.opts.logger.Error().Err(err).Msg("mark all notifications read failed")
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		f.items[i].Read = true
	}
	f.unread = 0
	return nil
}

// Unread returns the current unread count.
func (f *NotificationFeed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// Items returns the notifications, newest first.
func (f *NotificationFeed) Items() []dto.NotificationResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dto.NotificationResponse(nil), f.items...)
}

func (f *NotificationFeed) recountLocked() int {
	previous := f.unread
	f.unread = 0
	for _, item := range f.items {
		if !item.Read {
			f.unread++
		}
	}
	return f.unread - previous
}

func (f *NotificationFeed) signal(delta int) {
	if delta > 0 && f.cue != nil {
		f.cue(delta)
	}
}

func sortNotifications(items []dto.NotificationResponse) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
