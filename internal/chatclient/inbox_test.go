package chatclient

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

func TestBuildPreviewsGroupsByCounterpartAndCourse(t *testing.T) {
	backend := newMemoryBackend()
	backend.seedMessage("s1", "i1", "C1", "question one")
	backend.seedMessage("s2", "i1", "C1", "from s2")
	backend.seedMessage("s1", "i1", "C2", "other course")
	backend.seedMessage("i1", "s1", "C1", "answer one")
	backend.seedMessage("s3", "i2", "C1", "not mine")

	previews := BuildPreviews("i1", backend.allMessages())
	require.Len(t, previews, 3)

	require.Equal(t, "s1", previews[0].CounterpartID)
	require.Equal(t, "C1", previews[0].CourseID)
	require.Equal(t, "answer one", previews[0].LastMessage)
	require.Equal(t, 1, previews[0].UnreadCount)

	require.Equal(t, "C2", previews[1].CourseID)
	require.Equal(t, "s2", previews[2].CounterpartID)
}

func TestInboxApplyMovesGroupToFront(t *testing.T) {
	backend := newMemoryBackend()
	backend.seedMessage("s1", "i1", "C1", "first")
	backend.seedMessage("s2", "i1", "C1", "second")

	inbox := NewInbox("i1", "", backend.as("i1"))
	require.NoError(t, inbox.Load(context.Background()))
	require.Equal(t, "s2", inbox.Previews()[0].CounterpartID)

	backend.listen(func(envelope realtime.Envelope) { inbox.Apply(envelope) })
	_, err := backend.as("s1").SendMessage(context.Background(), dto.ChatSendRequest{CourseID: "C1", RecipientID: "i1", Content: "again"})
	require.NoError(t, err)

	previews := inbox.Previews()
	require.Equal(t, "s1", previews[0].CounterpartID)
	require.Equal(t, "again", previews[0].LastMessage)
	require.Equal(t, 2, previews[0].UnreadCount)
	require.Equal(t, 2, inbox.Unread("s1", "C1"))
	require.Equal(t, 0, inbox.Unread("s9", "C1"))
}

func TestInboxScopedToCourse(t *testing.T) {
	backend := newMemoryBackend()
	backend.seedMessage("s1", "i1", "C1", "in scope")
	other := backend.seedMessage("s1", "i1", "C2", "out of scope")

	inbox := NewInbox("i1", "C1", backend.as("i1"))
	require.NoError(t, inbox.Load(context.Background()))
	require.Len(t, inbox.Previews(), 1)

	require.False(t, inbox.Apply(envelopeFor(t, realtime.EventNewMessage, other)))
	stranger := dto.ChatMessageResponse{ID: 99, CourseID: "C1", SenderID: "s2", RecipientID: "i2", Content: "x"}
	require.False(t, inbox.Apply(envelopeFor(t, realtime.EventNewMessage, stranger)))
	require.False(t, inbox.Apply(envelopeFor(t, realtime.EventNewComment, dto.CommentResponse{ID: 1})))
	require.Len(t, inbox.Previews(), 1)
}

// Every step of a random workload must leave the incrementally maintained
// inbox equal to a from-scratch aggregation, and every unread count equal to
// a direct count over the stored messages.
func TestInboxIncrementalMatchesRebuild(t *testing.T) {
	const self = "i1"
	rng := rand.New(rand.NewSource(42))
	backend := newMemoryBackend()

	inbox := NewInbox(self, "", backend.as(self))
	require.NoError(t, inbox.Load(context.Background()))
	backend.listen(func(envelope realtime.Envelope) { inbox.Apply(envelope) })

	users := []string{self, "s1", "s2", "s3", "i2"}
	courses := []string{"C1", "C2"}
	ctx := context.Background()

	for step := 0; step < 300; step++ {
		messages := backend.allMessages()
		op := rng.Intn(4)
		if len(messages) == 0 {
			op = 0
		}

		switch op {
		case 0:
			sender := users[rng.Intn(len(users))]
			recipient := users[rng.Intn(len(users))]
			if sender == recipient {
				continue
			}
			_, err := backend.as(sender).SendMessage(ctx, dto.ChatSendRequest{
				CourseID:    courses[rng.Intn(len(courses))],
				RecipientID: recipient,
				Content:     fmt.Sprintf("message %d", step),
			})
			require.NoError(t, err)
		case 1:
			target := messages[rng.Intn(len(messages))]
			if target.IsDeleted {
				continue
			}
			_, err := backend.as(target.SenderID).EditMessage(ctx, target.ID, dto.ChatEditRequest{Content: fmt.Sprintf("edited %d", step)})
			require.NoError(t, err)
		case 2:
			target := messages[rng.Intn(len(messages))]
			_, err := backend.as(target.SenderID).DeleteMessage(ctx, target.ID)
			require.NoError(t, err)
		case 3:
			target := messages[rng.Intn(len(messages))]
			_, err := backend.as(target.RecipientID).MarkRead(ctx, target.ID)
			require.NoError(t, err)
		}

		require.Equal(t, BuildPreviews(self, backend.allMessages()), inbox.Previews(), "step %d", step)
	}

	for _, preview := range inbox.Previews() {
		expected := 0
		for _, message := range backend.allMessages() {
			if message.CourseID != preview.CourseID || !message.Involves(preview.CounterpartID) {
				continue
			}
			if message.RecipientID == self && !message.IsRead && !message.IsDeleted {
				expected++
			}
		}
		require.Equal(t, expected, preview.UnreadCount)
	}
}
