package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. It backs tests and the daemon's
// offline mode, where no database URL is configured.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*User
	watchers map[string][]chan int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		watchers: make(map[string][]chan int64),
	}
}

func (s *MemoryStore) user(userID string) *User {
	u, ok := s.users[userID]
	if !ok {
		u = &User{ID: userID}
		s.users[userID] = u
	}
	return u
}

// Seed installs a user record, replacing any existing one.
func (s *MemoryStore) Seed(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := u
	s.users[u.ID] = &copied
}

func (s *MemoryStore) CallRequest(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return "", nil
	}
	return u.CallRequest, nil
}

func (s *MemoryStore) SetCallRequest(ctx context.Context, userID, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).CallRequest = value
	return nil
}

func (s *MemoryStore) Duration(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, nil
	}
	return u.Duration, nil
}

func (s *MemoryStore) SetDuration(ctx context.Context, userID string, seconds int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.user(userID).Duration = seconds
	watchers := append([]chan int64(nil), s.watchers[userID]...)
	s.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- seconds:
		default:
		}
	}
	return nil
}

func (s *MemoryStore) WatchDuration(ctx context.Context, userID string) (<-chan int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan int64, 8)

	s.mu.Lock()
	u, ok := s.users[userID]
	if ok {
		ch <- u.Duration
	} else {
		ch <- 0
	}
	s.watchers[userID] = append(s.watchers[userID], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		remaining := s.watchers[userID][:0]
		for _, w := range s.watchers[userID] {
			if w != ch {
				remaining = append(remaining, w)
			}
		}
		s.watchers[userID] = remaining
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (s *MemoryStore) Users(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	return users, nil
}
