package chatclient

import (
	"github.com/noah-isme/newlearn-go-api/internal/dto"
)

// EntryState is the reconciliation state of one conversation entry.
type EntryState int

const (
	// StatePending is an optimistic local send without a server id yet.
	StatePending EntryState = iota
	// StateConfirmed is a server-issued record.
	StateConfirmed
	// StateTombstoned is a confirmed record that has been soft-deleted.
	StateTombstoned
)

func (s EntryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateTombstoned:
		return "tombstoned"
	default:
		return "unknown"
	}
}

// Entry is one message in a conversation as the client currently sees it.
type Entry struct {
	Message dto.ChatMessageResponse
	TempID  string
	State   EntryState
}

// Text is what the entry renders as.
func (e Entry) Text() string {
	return e.Message.DisplayText()
}

func stateOf(message dto.ChatMessageResponse) EntryState {
	if message.IsDeleted {
		return StateTombstoned
	}
	return StateConfirmed
}

// mergeMessage applies incoming over existing for the same id. Payloads are
// full records so the latest one wins, except that the read, edited and
// deleted flags never go back to false.
func mergeMessage(existing, incoming dto.ChatMessageResponse) dto.ChatMessageResponse {
	merged := incoming
	merged.IsRead = existing.IsRead || incoming.IsRead
	merged.IsEdited = existing.IsEdited || incoming.IsEdited
	merged.IsDeleted = existing.IsDeleted || incoming.IsDeleted
	if merged.IsDeleted {
		merged.Content = ""
		merged.MediaURL = ""
	}
	if merged.TempID == "" {
		merged.TempID = existing.TempID
	}
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = existing.CreatedAt
	}
	return merged
}

func sameContent(pending, incoming dto.ChatMessageResponse) bool {
	return pending.CourseID == incoming.CourseID &&
		pending.SenderID == incoming.SenderID &&
		pending.RecipientID == incoming.RecipientID &&
		pending.Content == incoming.Content &&
		pending.MediaURL == incoming.MediaURL
}

// Merge folds a server record into entries and returns the new slice. The
// input slice is not modified. Matching runs in order: server id, then the
// temp id of a pending entry, then content against the oldest pending entry;
// anything unmatched is inserted by creation time.
func Merge(entries []Entry, incoming dto.ChatMessageResponse) []Entry {
	out := make([]Entry, len(entries), len(entries)+1)
	copy(out, entries)

	if incoming.ID != 0 {
		for i, entry := range out {
			if entry.State != StatePending && entry.Message.ID == incoming.ID {
				merged := mergeMessage(entry.Message, incoming)
				tempID := entry.TempID
				if tempID == "" {
					tempID = merged.TempID
				}
				out[i] = Entry{Message: merged, TempID: tempID, State: stateOf(merged)}
				return dropPending(out, merged.TempID)
			}
		}
	}

	if incoming.TempID != "" {
		for i, entry := range out {
			if entry.State == StatePending && entry.TempID == incoming.TempID {
				out[i] = Entry{Message: incoming, TempID: entry.TempID, State: stateOf(incoming)}
				return out
			}
		}
	}

	for i, entry := range out {
		if entry.State == StatePending && sameContent(entry.Message, incoming) {
			confirmed := incoming
			if confirmed.TempID == "" {
				confirmed.TempID = entry.TempID
			}
			out[i] = Entry{Message: confirmed, TempID: entry.TempID, State: stateOf(confirmed)}
			return out
		}
	}

	entry := Entry{Message: incoming, TempID: incoming.TempID, State: stateOf(incoming)}
	idx := len(out)
	for i, existing := range out {
		if before(incoming, existing.Message) {
			idx = i
			break
		}
	}
	out = append(out, Entry{})
	copy(out[idx+1:], out[idx:])
	out[idx] = entry
	return out
}

// dropPending removes the pending entry a confirmed record already stands
// for. A reload can confirm a send by id before its own response arrives.
func dropPending(entries []Entry, tempID string) []Entry {
	if tempID == "" {
		return entries
	}
	out := entries[:0]
	for _, entry := range entries {
		if entry.State == StatePending && entry.TempID == tempID {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// before orders messages by creation time, then id. Pending entries have no
// id and sort after confirmed ones created at the same instant.
func before(a, b dto.ChatMessageResponse) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.ID == 0 || b.ID == 0 {
		return a.ID != 0 && b.ID == 0
	}
	return a.ID < b.ID
}
