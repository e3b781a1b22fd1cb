package chatclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

// TestStudentInstructorConversation walks a student and an instructor through
// send, read, edit and delete with each side fed only by broadcasts.
func TestStudentInstructorConversation(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()

	student := NewConversation("s1", "C123", "i1", backend.as("s1"), nil, WithSpawn(syncSpawn))
	inbox := NewInbox("i1", "", backend.as("i1"))
	require.NoError(t, inbox.Load(ctx))
	backend.listen(func(envelope realtime.Envelope) {
		student.Apply(envelope)
		inbox.Apply(envelope)
	})

	// Sending shows up in the instructor inbox as unread.
	m1, err := student.Send(ctx, "Hello", "")
	require.NoError(t, err)
	require.False(t, m1.IsRead)

	previews := inbox.Previews()
	require.Len(t, previews, 1)
	require.Equal(t, Preview{
		CounterpartID: "s1",
		CourseID:      "C123",
		LastMessage:   "Hello",
		LastMessageAt: m1.CreatedAt,
		LastMessageID: m1.ID,
		UnreadCount:   1,
	}, previews[0])

	// Opening the conversation acknowledges it.
	instructor := NewConversation("i1", "C123", "s1", backend.as("i1"), nil, WithSpawn(syncSpawn))
	backend.listen(func(envelope realtime.Envelope) { instructor.Apply(envelope) })
	require.NoError(t, instructor.Load(ctx))
	instructor.WaitReceipts()

	history, err := backend.as("i1").Conversation(ctx, "C123", "s1")
	require.NoError(t, err)
	require.True(t, history[0].IsRead)
	require.Equal(t, 0, inbox.Unread("s1", "C123"))
	require.True(t, student.Entries()[0].Message.IsRead)

	// Editing updates the open view in place.
	require.NoError(t, student.Edit(ctx, m1.ID, "Hello there"))
	entries := instructor.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, m1.ID, entries[0].Message.ID)
	require.True(t, entries[0].Message.IsEdited)
	require.Equal(t, "Hello there", entries[0].Text())
	require.Equal(t, "Hello there", inbox.Previews()[0].LastMessage)

	// Deleting tombstones both views at the same position.
	reply, err := instructor.Send(ctx, "Hi!", "")
	require.NoError(t, err)
	require.NoError(t, student.Delete(ctx, m1.ID))
	for _, view := range []*Conversation{student, instructor} {
		entries := view.Entries()
		require.Len(t, entries, 2)
		require.Equal(t, m1.ID, entries[0].Message.ID)
		require.Equal(t, StateTombstoned, entries[0].State)
		require.Equal(t, dto.DeletedMessagePlaceholder, entries[0].Text())
		require.Equal(t, reply.ID, entries[1].Message.ID)
	}

	// A second delete leaves the same tombstone.
	require.NoError(t, student.Delete(ctx, m1.ID))
	require.Len(t, student.Entries(), 2)
	require.Equal(t, StateTombstoned, student.Entries()[0].State)
}

func TestTwoInboxSessionsConverge(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	backend.seedMessage("s1", "i1", "C123", "earlier")

	first := NewInbox("i1", "", backend.as("i1"))
	second := NewInbox("i1", "", backend.as("i1"))
	require.NoError(t, first.Load(ctx))
	backend.listen(func(envelope realtime.Envelope) { first.Apply(envelope) })

	_, err := backend.as("s2").SendMessage(ctx, dto.ChatSendRequest{CourseID: "C123", RecipientID: "i1", Content: "new question"})
	require.NoError(t, err)

	// The second session loads late and then receives the same events twice.
	require.NoError(t, second.Load(ctx))
	backend.listen(func(envelope realtime.Envelope) {
		second.Apply(envelope)
		second.Apply(envelope)
	})

	_, err = backend.as("s1").SendMessage(ctx, dto.ChatSendRequest{CourseID: "C123", RecipientID: "i1", Content: "follow up"})
	require.NoError(t, err)

	require.Equal(t, first.Previews(), second.Previews())
	require.Len(t, first.Previews(), 2)
	require.Equal(t, 2, first.Unread("s1", "C123"))
	require.Equal(t, 1, second.Unread("s2", "C123"))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	message := backend.seedMessage("s1", "i1", "C123", "Hello")

	var events int
	backend.listen(func(realtime.Envelope) { events++ })

	store := backend.as("i1")
	first, err := store.MarkRead(ctx, message.ID)
	require.NoError(t, err)
	second, err := store.MarkRead(ctx, message.ID)
	require.NoError(t, err)

	require.True(t, first.IsRead)
	require.Equal(t, first, second)
	require.Equal(t, 1, events)
}
