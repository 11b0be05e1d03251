package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GHutch55/fastzero/api/v1/database"
	"github.com/GHutch55/fastzero/api/v1/models"
)

// MemStore is an in-memory user store with the same uniqueness and
// not-found semantics as database.UserStore.
type MemStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]database.UserWithPassword

	// PingErr is returned by Ping when set
	PingErr error
	// Err, when set, is returned by every store call
	Err error
}

func NewMemStore() *MemStore {
	return &MemStore{
		nextID: 1,
		users:  make(map[int64]database.UserWithPassword),
	}
}

func (s *MemStore) conflicts(username, email string, excludeID int64) error {
	var usernameTaken, emailTaken bool
	for id, u := range s.users {
		if id == excludeID {
			continue
		}
		if u.Username == username {
			usernameTaken = true
		}
		if u.Email == email {
			emailTaken = true
		}
	}
	return database.NewConflictError(username, email, usernameTaken, emailTaken)
}

func (s *MemStore) CreateUser(_ context.Context, user *database.UserWithPassword) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	if err := s.conflicts(user.Username, user.Email, 0); err != nil {
		return err
	}

	now := time.Now()
	user.ID = s.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	s.nextID++
	s.users[user.ID] = *user
	return nil
}

func (s *MemStore) GetUser(_ context.Context, userID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user with ID %d not found: %w", userID, database.ErrUserNotFound)
	}
	user := u.User
	return &user, nil
}

func (s *MemStore) GetUserByEmail(_ context.Context, email string) (*database.UserWithPassword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with email '%s' not found: %w", email, database.ErrUserNotFound)
}

func (s *MemStore) GetUsers(_ context.Context, skip, limit int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	users := []models.User{}
	for i := skip; i < len(ids) && len(users) < limit; i++ {
		users = append(users, s.users[ids[i]].User)
	}
	return users, nil
}

func (s *MemStore) UpdateUser(_ context.Context, userID int64, user *database.UserWithPassword) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	current, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user with ID %d does not exist: %w", userID, database.ErrUserNotFound)
	}
	if err := s.conflicts(user.Username, user.Email, userID); err != nil {
		return err
	}

	user.ID = userID
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = time.Now()
	s.users[userID] = *user
	return nil
}

func (s *MemStore) DeleteUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("user with ID %d does not exist: %w", userID, database.ErrUserNotFound)
	}
	delete(s.users, userID)
	return nil
}

func (s *MemStore) Ping(context.Context) error {
	return s.PingErr
}

// Password returns the stored hash for a user, for assertions
func (s *MemStore) Password(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID].Password
}
