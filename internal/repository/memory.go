package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/wishday/wishday/internal/birthday"
	"github.com/wishday/wishday/internal/model"
)

// Memory is an in-process Store used for local runs and tests.
type Memory struct {
	mu    sync.RWMutex
	users []model.User

	// PingErr, when set, is returned by Ping.
	PingErr error
	// FindErr, when set, is returned by FindBirthdays.
	FindErr error
	// CreateErr, when set, is returned by CreateUser.
	CreateErr error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// CreateUser stores a copy of user.
func (m *Memory) CreateUser(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.users = append(m.users, *user)
	return nil
}

// GetUserByEmail returns the newest record with email.
func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *model.User
	for i := range m.users {
		u := m.users[i]
		if u.Email != email {
			continue
		}
		if found == nil || !u.CreatedAt.Before(found.CreatedAt) {
			found = &u
		}
	}
	if found == nil {
		return nil, ErrUserNotFound
	}
	return found, nil
}

// FindBirthdays filters stored users with q.Matches.
func (m *Memory) FindBirthdays(ctx context.Context, q birthday.Query) ([]*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FindErr != nil {
		return nil, m.FindErr
	}

	var users []*model.User
	for i := range m.users {
		if q.Matches(m.users[i].DateOfBirth) {
			u := m.users[i]
			users = append(users, &u)
		}
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// Ping returns PingErr.
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PingErr
}

// Close is a no-op.
func (m *Memory) Close(ctx context.Context) error {
	return nil
}
