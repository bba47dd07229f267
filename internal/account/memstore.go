package account

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store. It backs tests and single-process runs
// without a database path configured.
type MemStore struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]User
	byEmail map[string]uuid.UUID
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:   make(map[uuid.UUID]User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *MemStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.byEmail[key]; ok {
		return ErrEmailTaken
	}
	s.users[u.ID] = *u
	s.byEmail[key] = u.ID
	return nil
}

func (s *MemStore) Get(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := u
	return &out, nil
}

func (s *MemStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *MemStore) Update(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	s.users[u.ID] = *u
	return nil
}
