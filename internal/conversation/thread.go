// Package conversation keeps an optimistic local view of a direct conversation:
// outgoing messages show up immediately under a temporary id and are replaced by
// the server copy on acknowledgement or marked failed.
package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/snapcircle/dmsocket/internal/chat"

	"github.com/google/uuid"
)

// TempIDPrefix marks ids assigned locally before the server acknowledged.
const TempIDPrefix = "tmp-"

// Status of an entry.
type Status int

const (
	StatusSent Status = iota
	StatusPending
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is a message in the view.
type Entry struct {
	Message chat.Message
	Status  Status
	// Err is set for failed entries.
	Err error
}

// Key of the entry, temporary id for pending and failed ones.
func (e Entry) Key() string {
	return string(e.Message.ID)
}

// IsTemp reports whether id was assigned locally.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Sender sends messages, chat.Manager implements it.
type Sender interface {
	SendMessage(ctx context.Context, req chat.SendRequest) (chat.Message, error)
}

// Thread is the view of the conversation between self and peer.
type Thread struct {
	selfID int64
	peerID int64

	mu      sync.Mutex
	entries []*Entry
	index   map[string]*Entry
}

// NewThread creates Thread.
func NewThread(selfID, peerID int64) *Thread {
	return &Thread{
		selfID: selfID,
		peerID: peerID,
		index:  make(map[string]*Entry),
	}
}

// PeerID ...
func (t *Thread) PeerID() int64 {
	return t.peerID
}

// Belongs reports whether msg is part of this conversation.
func (t *Thread) Belongs(msg chat.Message) bool {
	return (msg.SenderID == t.selfID && msg.ReceiverID == t.peerID) ||
		(msg.SenderID == t.peerID && msg.ReceiverID == t.selfID)
}

// AddPending adds an outgoing message and returns its temporary id.
func (t *Thread) AddPending(content string, imageURL string) string {
	now := time.Now()
	text := content
	e := &Entry{
		Message: chat.Message{
			ID:         chat.MessageID(TempIDPrefix + uuid.NewString()),
			SenderID:   t.selfID,
			ReceiverID: t.peerID,
			Content:    &text,
			ImageURL:   imageURL,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		Status: StatusPending,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
	t.index[e.Key()] = e
	return e.Key()
}

// Confirm replaces the pending entry with the acknowledged server message. When
// the server message is already in the view (delivered by the live feed before
// the ack) the pending entry is dropped instead. It returns false for an unknown
// temporary id or a message without id, leaving the entry untouched.
func (t *Thread) Confirm(tempID string, msg chat.Message) bool {
	if msg.ID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.index[tempID]
	if !ok {
		return false
	}
	delete(t.index, tempID)
	if _, exists := t.index[string(msg.ID)]; exists {
		t.removeLocked(e)
		return true
	}
	e.Message = msg
	e.Status = StatusSent
	e.Err = nil
	t.index[e.Key()] = e
	t.sortLocked()
	return true
}

// Fail marks a pending entry failed. Failed entries stay in the view until removed.
func (t *Thread) Fail(tempID string, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.index[tempID]
	if !ok || e.Status != StatusPending {
		return false
	}
	e.Status = StatusFailed
	e.Err = err
	return true
}

// Remove drops the entry with the key.
func (t *Thread) Remove(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.index[key]
	if !ok {
		return false
	}
	delete(t.index, key)
	t.removeLocked(e)
	return true
}

func (t *Thread) removeLocked(e *Entry) {
	for i, entry := range t.entries {
		if entry == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// Apply adds an inbound message unless it belongs to another conversation or is
// already present. It returns true when the view changed.
func (t *Thread) Apply(msg chat.Message) bool {
	if !t.Belongs(msg) || msg.ID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.index[string(msg.ID)]; ok {
		if e.Message.UpdatedAt.After(msg.UpdatedAt) {
			return false
		}
		e.Message = msg
		return true
	}
	t.insertLocked(msg)
	return true
}

func (t *Thread) insertLocked(msg chat.Message) {
	e := &Entry{Message: msg, Status: StatusSent}
	t.entries = append(t.entries, e)
	t.index[e.Key()] = e
	t.sortLocked()
}

// MarkReadBy marks messages sent to readerID as read. It returns the number of
// changed entries.
func (t *Thread) MarkReadBy(readerID int64) int {
	if readerID != t.peerID {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int
	for _, e := range t.entries {
		if e.Status == StatusSent && e.Message.SenderID == t.selfID && !e.Message.IsRead {
			e.Message.IsRead = true
			n++
		}
	}
	return n
}

// MergeHistory adds a page of history messages not yet present in the view.
func (t *Thread) MergeHistory(page []chat.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int
	for _, msg := range page {
		if msg.ID == "" || !t.Belongs(msg) {
			continue
		}
		if _, ok := t.index[string(msg.ID)]; ok {
			continue
		}
		e := &Entry{Message: msg, Status: StatusSent}
		t.entries = append(t.entries, e)
		t.index[e.Key()] = e
		n++
	}
	if n > 0 {
		t.sortLocked()
	}
	return n
}

// sortLocked orders entries by creation time, keeping insertion order for ties.
func (t *Thread) sortLocked() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].Message.CreatedAt.Before(t.entries[j].Message.CreatedAt)
	})
}

// Entries returns a copy of the view, oldest first.
func (t *Thread) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		res = append(res, *e)
	}
	return res
}

// Len returns number of entries.
func (t *Thread) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Send runs the optimistic send flow: add pending entry, send, then confirm or
// mark failed. The resulting entry is returned along with the send error.
func (t *Thread) Send(ctx context.Context, s Sender, content string) (Entry, error) {
	tempID := t.AddPending(content, "")
	msg, err := s.SendMessage(ctx, chat.SendRequest{ReceiverID: t.peerID, Content: content})
	if err != nil {
		t.Fail(tempID, err)
		e, _ := t.entry(tempID)
		return e, err
	}
	if msg.ID == "" {
		err = fmt.Errorf("%w: message without id", chat.ErrMalformedAck)
		t.Fail(tempID, err)
		e, _ := t.entry(tempID)
		return e, err
	}
	t.Confirm(tempID, msg)
	e, ok := t.entry(string(msg.ID))
	if !ok {
		e = Entry{Message: msg, Status: StatusSent}
	}
	return e, nil
}

func (t *Thread) entry(key string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.index[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}
