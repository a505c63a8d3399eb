package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/cherrynik/tg-ai-bot/internal/fsstore"
)

// User is the last-known profile of a chat participant. Upserts overwrite the
// whole record: most recent write wins, nothing is merged.
type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name,omitempty"`
	Username  string    `json:"username,omitempty"`
	IsBot     bool      `json:"is_bot,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
}

type UserStore struct {
	path  string
	mu    sync.Mutex
	nowFn func() time.Time
}

func NewUserStore(path string) *UserStore {
	return &UserStore{path: path, nowFn: time.Now}
}

// Upsert records the user's current profile and refreshes LastSeen.
func (s *UserStore) Upsert(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadLocked()
	if err != nil {
		return err
	}
	u.LastSeen = s.nowFn().UTC()

	replaced := false
	for i := range users {
		if users[i].ID == u.ID {
			users[i] = u
			replaced = true
			break
		}
	}
	if !replaced {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return fsstore.WriteJSONAtomic(s.path, users)
}

// LoadAll returns the current snapshot of known users.
func (s *UserStore) LoadAll() ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *UserStore) Get(id int64) (User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadLocked()
	if err != nil {
		return User{}, false, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (s *UserStore) loadLocked() ([]User, error) {
	var users []User
	if _, err := fsstore.ReadJSON(s.path, &users); err != nil {
		return nil, err
	}
	return users, nil
}
