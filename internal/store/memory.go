package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/offsetx/carbon-tracker/internal/models"
)

// MemoryStore keeps users in process memory. It backs the "memory" driver
// and the handler tests.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]*models.User
	byUsername map[string]string
	order      []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*models.User),
		byUsername: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[user.Username]; taken {
		return fmt.Errorf("create user %q: %w", user.Username, ErrDuplicateUsername)
	}
	user.ID = uuid.NewString()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Normalize()

	s.users[user.ID] = clone(user)
	s.byUsername[user.Username] = user.ID
	s.order = append(s.order, user.ID)
	return nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s.users[id]), nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (s *MemoryStore) AppendLog(ctx context.Context, id string, entry models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Append(entry)
	return nil
}

// ListUsers returns every user in registration order.
func (s *MemoryStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.User, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(s.users[id]))
	}
	return out, nil
}

// clone copies the log arrays so callers never alias stored state.
func clone(u *models.User) *models.User {
	c := *u
	c.FoodLogs = slices.Clone(u.FoodLogs)
	c.TravelLogs = slices.Clone(u.TravelLogs)
	c.ElectricityLogs = slices.Clone(u.ElectricityLogs)
	c.LifestyleLogs = slices.Clone(u.LifestyleLogs)
	c.Normalize()
	return &c
}
