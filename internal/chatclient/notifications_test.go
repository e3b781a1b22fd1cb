package chatclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

func TestNotificationFeedCuesOnNetIncrease(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	backend.notify("i1", "before load")

	var cues []int
	feed := NewNotificationFeed("i1", backend.as("i1"), func(delta int) { cues = append(cues, delta) })
	require.NoError(t, feed.Load(ctx))
	require.Equal(t, 1, feed.Unread())
	require.Empty(t, cues)

	backend.listen(func(envelope realtime.Envelope) { feed.Apply(envelope) })
	pushed := backend.notify("i1", "new comment")
	backend.notify("s1", "not mine")
	require.Equal(t, []int{1}, cues)
	require.Equal(t, 2, feed.Unread())
	require.Equal(t, pushed.ID, feed.Items()[0].ID)

	require.False(t, feed.Apply(envelopeFor(t, realtime.EventNewNotification, pushed)))
	require.Equal(t, []int{1}, cues)

	require.NoError(t, feed.MarkRead(ctx, pushed.ID))
	require.Equal(t, 1, feed.Unread())

	// Reloading after missed pushes cues once for the net difference.
	backend.mu.Lock()
	for _, title := range []string{"missed one", "missed two"} {
		id := backend.id()
		backend.notifications[id] = dto.NotificationResponse{ID: id, UserID: "i1", Title: title, CreatedAt: backend.tick()}
	}
	backend.mu.Unlock()
	require.NoError(t, feed.Load(ctx))
	require.Equal(t, []int{1, 2}, cues)
	require.Equal(t, 3, feed.Unread())

	require.NoError(t, feed.MarkAllRead(ctx))
	require.Equal(t, 0, feed.Unread())
	require.NoError(t, feed.Load(ctx))
	require.Equal(t, []int{1, 2}, cues)
}

func TestNotificationFeedIgnoresOtherEvents(t *testing.T) {
	feed := NewNotificationFeed("i1", newMemoryBackend().as("i1"), nil)
	require.False(t, feed.Apply(envelopeFor(t, realtime.EventNewMessage, dto.ChatMessageResponse{ID: 1})))
	require.False(t, feed.Apply(realtime.Envelope{Event: realtime.EventNewNotification}))
	require.True(t, feed.Apply(envelopeFor(t, realtime.EventNewNotification, dto.NotificationResponse{ID: 2, UserID: "i1"})))
	require.Equal(t, 1, feed.Unread())
}
