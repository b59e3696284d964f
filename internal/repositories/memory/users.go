package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
)

// UserStore is an in-memory repositories.UserRepository.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
	now   func() time.Time
}

// NewUserStore returns an empty directory.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*models.User), now: time.Now}
}

func copyUser(u *models.User) models.User {
	out := *u
	if u.ConnectionID != nil {
		conn := *u.ConnectionID
		out.ConnectionID = &conn
	}
	if u.LastSeenAt != nil {
		seen := *u.LastSeenAt
		out.LastSeenAt = &seen
	}
	return out
}

func (s *UserStore) Get(_ context.Context, userID string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (s *UserStore) Bind(_ context.Context, userID, username, connID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		user = &models.User{ID: userID, CreatedAt: s.now().UTC()}
		s.users[userID] = user
	}
	previous, _ := user.ActiveConnection()
	conn := connID
	user.Username = username
	user.Connected = true
	user.ConnectionID = &conn
	if previous == connID {
		return "", nil
	}
	return previous, nil
}

func (s *UserStore) Unbind(_ context.Context, connID string, at time.Time) (models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if current, ok := user.ActiveConnection(); ok && current == connID {
			seen := at
			user.Connected = false
			user.ConnectionID = nil
			user.LastSeenAt = &seen
			return copyUser(user), true, nil
		}
	}
	return models.User{}, false, nil
}

func (s *UserStore) SetConnected(_ context.Context, userID string, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.Connected = connected
	return nil
}

func (s *UserStore) List(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

var _ repositories.UserRepository = (*UserStore)(nil)
