package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func pendingEntry(tempID, content string, at time.Time) Entry {
	return Entry{
		Message: dto.ChatMessageResponse{TempID: tempID, CourseID: "C123", SenderID: "s1", RecipientID: "i1", Content: content, CreatedAt: at},
		TempID:  tempID,
		State:   StatePending,
	}
}

func confirmed(id uint, content string, at time.Time) dto.ChatMessageResponse {
	return dto.ChatMessageResponse{ID: id, CourseID: "C123", SenderID: "s1", RecipientID: "i1", Content: content, CreatedAt: at}
}

func TestMergeConfirmsPendingByTempID(t *testing.T) {
	entries := []Entry{pendingEntry("temp-1", "Hello", epoch), pendingEntry("temp-2", "Hello", epoch.Add(time.Millisecond))}

	incoming := confirmed(7, "Hello", epoch.Add(time.Second))
	incoming.TempID = "temp-2"
	merged := Merge(entries, incoming)

	require.Len(t, merged, 2)
	require.Equal(t, StatePending, merged[0].State)
	require.Equal(t, StateConfirmed, merged[1].State)
	require.Equal(t, uint(7), merged[1].Message.ID)
	require.Equal(t, "temp-2", merged[1].TempID)
}

func TestMergeByIDClearsPendingWithSameTempID(t *testing.T) {
	// A reload inserted the stored row before the send response came back;
	// the server trimmed the body so content matching could not pair them.
	entries := []Entry{
		{Message: confirmed(7, "Hello", epoch.Add(time.Second)), State: StateConfirmed},
		pendingEntry("temp-1", "Hello\n", epoch),
	}

	response := confirmed(7, "Hello", epoch.Add(time.Second))
	response.TempID = "temp-1"
	merged := Merge(entries, response)

	require.Len(t, merged, 1)
	require.Equal(t, StateConfirmed, merged[0].State)
	require.Equal(t, uint(7), merged[0].Message.ID)
	require.Equal(t, "temp-1", merged[0].TempID)
	require.Len(t, entries, 2, "input slice stays untouched")
}

func TestMergeConfirmsOldestPendingByContent(t *testing.T) {
	entries := []Entry{pendingEntry("temp-1", "Hello", epoch), pendingEntry("temp-2", "Hello", epoch.Add(time.Millisecond))}

	merged := Merge(entries, confirmed(7, "Hello", epoch.Add(time.Second)))

	require.Len(t, merged, 2)
	require.Equal(t, StateConfirmed, merged[0].State)
	require.Equal(t, "temp-1", merged[0].TempID)
	require.Equal(t, StatePending, merged[1].State)
}

func TestMergeReplacesByIDWithMonotonicFlags(t *testing.T) {
	read := confirmed(3, "Hello", epoch)
	read.IsRead = true
	entries := Merge(nil, read)

	stale := confirmed(3, "Hello there", epoch)
	stale.IsEdited = true
	merged := Merge(entries, stale)

	require.Len(t, merged, 1)
	require.True(t, merged[0].Message.IsRead)
	require.True(t, merged[0].Message.IsEdited)
	require.Equal(t, "Hello there", merged[0].Text())

	deleted := confirmed(3, "", epoch)
	deleted.IsDeleted = true
	merged = Merge(merged, deleted)
	merged = Merge(merged, confirmed(3, "Hello there", epoch))

	require.Len(t, merged, 1)
	require.Equal(t, StateTombstoned, merged[0].State)
	require.Equal(t, dto.DeletedMessagePlaceholder, merged[0].Text())
	require.Empty(t, merged[0].Message.Content)
}

func TestMergeInsertsByCreationTime(t *testing.T) {
	var entries []Entry
	entries = Merge(entries, confirmed(2, "second", epoch.Add(2*time.Second)))
	entries = Merge(entries, confirmed(3, "third", epoch.Add(3*time.Second)))
	entries = Merge(entries, confirmed(1, "first", epoch.Add(time.Second)))
	entries = append(entries, pendingEntry("temp-9", "draft", epoch.Add(3*time.Second)))
	entries = Merge(entries, confirmed(4, "tie", epoch.Add(3*time.Second)))

	var texts []string
	for _, entry := range entries {
		texts = append(texts, entry.Text())
	}
	require.Equal(t, []string{"first", "second", "third", "tie", "draft"}, texts)
}

func TestMergeLeavesInputUntouched(t *testing.T) {
	entries := []Entry{pendingEntry("temp-1", "Hello", epoch)}
	snapshot := append([]Entry(nil), entries...)

	merged := Merge(entries, confirmed(5, "Hello", epoch))

	require.Equal(t, snapshot, entries)
	require.Equal(t, StateConfirmed, merged[0].State)
}

func TestEntryStateString(t *testing.T) {
	require.Equal(t, "pending", StatePending.String())
	require.Equal(t, "confirmed", StateConfirmed.String())
	require.Equal(t, "tombstoned", StateTombstoned.String())
	require.Equal(t, "unknown", EntryState(9).String())
}
