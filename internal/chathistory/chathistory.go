// Package chathistory keeps a bounded in-memory window of the most recent
// messages per chat. Entries live for the process lifetime only.
package chathistory

import (
	"sync"
	"time"
)

const DefaultLimit = 20

// Entry is one remembered chat message. Author fields are denormalized here
// so context labels can be rendered without a registry lookup.
type Entry struct {
	MessageID     int64
	FromUserID    int64
	FromFirstName string
	FromLastName  string
	FromUsername  string
	FromIsBot     bool
	Text          string
	SentAt        time.Time
}

// Store holds one FIFO ring per chat identifier. All mutation goes through
// the store mutex, so concurrent appends for the same chat keep arrival order
// and never exceed the limit.
type Store struct {
	mu    sync.Mutex
	limit int
	chats map[int64][]Entry
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit: limit,
		chats: make(map[int64][]Entry),
	}
}

// Append records an entry for the chat, evicting the oldest one at capacity.
func (s *Store) Append(chatID int64, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.chats[chatID], e)
	if len(entries) > s.limit {
		entries = entries[len(entries)-s.limit:]
	}
	s.chats[chatID] = entries
}

// Recent returns a copy of the chat's window, oldest first.
func (s *Store) Recent(chatID int64) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.chats[chatID]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

func (s *Store) Len(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats[chatID])
}
