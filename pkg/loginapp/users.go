package loginapp

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"dev/bravebird/login-e2e-go/pkg/models"
)

// UserStore looks up accounts by username. Implementations return nil, nil
// when the user does not exist.
type UserStore interface {
	UserByName(ctx context.Context, username string) (*models.User, error)
}

// UserCreator persists new accounts
type UserCreator interface {
	CreateUser(ctx context.Context, user *models.User) error
}

// demoAccounts are the credentials shown on the login page
var demoAccounts = []struct {
	username string
	password string
	email    string
}{
	{"admin", "admin123", "admin@example.com"},
	{"usuario", "usuario123", "usuario@example.com"},
}

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// DefaultUsers returns the demo accounts with hashed passwords
func DefaultUsers() ([]models.User, error) {
	users := make([]models.User, 0, len(demoAccounts))
	for i, acct := range demoAccounts {
		hash, err := HashPassword(acct.password)
		if err != nil {
			return nil, err
		}
		users = append(users, models.User{
			ID:           int64(i + 1),
			Username:     acct.username,
			Email:        acct.email,
			PasswordHash: hash,
		})
	}
	return users, nil
}

// Seed inserts the demo accounts that store does not already have
func Seed(ctx context.Context, store interface {
	UserStore
	UserCreator
}) error {
	users, err := DefaultUsers()
	if err != nil {
		return err
	}
	for i := range users {
		existing, err := store.UserByName(ctx, users[i].Username)
		if err != nil {
			return fmt.Errorf("failed to look up user %s: %w", users[i].Username, err)
		}
		if existing != nil {
			continue
		}
		if err := store.CreateUser(ctx, &users[i]); err != nil {
			return fmt.Errorf("failed to create user %s: %w", users[i].Username, err)
		}
	}
	return nil
}

// MemoryStore is an in-memory UserStore
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// NewMemoryStore creates a store holding users
func NewMemoryStore(users ...models.User) *MemoryStore {
	s := &MemoryStore{users: make(map[string]models.User, len(users))}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

// NewDemoStore creates a MemoryStore holding the demo accounts
func NewDemoStore() (*MemoryStore, error) {
	users, err := DefaultUsers()
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(users...), nil
}

func (s *MemoryStore) UserByName(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Username]; ok {
		return fmt.Errorf("user %s already exists", user.Username)
	}
	if user.ID == 0 {
		user.ID = int64(len(s.users) + 1)
	}
	s.users[user.Username] = *user
	return nil
}
