// Package registry persists the identity maps the bot accumulates while it
// runs: chats it has joined and users it has seen. Both are whole-file JSON
// arrays rewritten atomically on every change; a missing file is an empty
// collection.
package registry

import (
	"sort"
	"sync"

	"github.com/cherrynik/tg-ai-bot/internal/fsstore"
)

// ChatStore records every chat the bot has ever joined. Membership only grows
// in the steady state; a "left chat" event is logged by the caller and the
// chat stays registered.
type ChatStore struct {
	path string
	mu   sync.Mutex
}

func NewChatStore(path string) *ChatStore {
	return &ChatStore{path: path}
}

// MarkKnown adds the chat to the registry and persists it. Re-marking a known
// chat rewrites the same content and is not an error.
func (s *ChatStore) MarkKnown(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats, err := s.loadLocked()
	if err != nil {
		return err
	}
	for _, id := range chats {
		if id == chatID {
			return nil
		}
	}
	chats = append(chats, chatID)
	sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
	return fsstore.WriteJSONAtomic(s.path, chats)
}

// LoadAll returns the current snapshot of registered chat identifiers.
func (s *ChatStore) LoadAll() ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *ChatStore) Known(chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	for _, id := range chats {
		if id == chatID {
			return true, nil
		}
	}
	return false, nil
}

func (s *ChatStore) loadLocked() ([]int64, error) {
	var chats []int64
	if _, err := fsstore.ReadJSON(s.path, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}
