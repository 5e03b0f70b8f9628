package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"

	"github.com/haasonsaas/codeteam/pkg/models"
)

// ErrInvalidCredentials is returned when a username/password pair does not
// match any known user.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore authenticates a username/password pair against a user
// directory and returns the matched identity.
type UserStore interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
}

// OAuthProvider exchanges a provider-issued authorization code for a user
// identity. No provider is wired by default; RegisterProvider adds one.
type OAuthProvider interface {
	Name() string
	Exchange(ctx context.Context, code string) (*models.User, error)
}

// StaticUserStore authenticates against a fixed in-memory credential table,
// hashed the same way ValidateAPIKey compares keys: sha256 plus a
// constant-time comparison so a failed lookup costs the same as a match.
type StaticUserStore struct {
	mu    sync.RWMutex
	users map[string]staticUser
}

type staticUser struct {
	user         models.User
	passwordHash string
}

// NewStaticUserStore returns an empty credential table.
func NewStaticUserStore() *StaticUserStore {
	return &StaticUserStore{users: map[string]staticUser{}}
}

// AddUser registers or replaces a user's credentials, keyed by email.
func (s *StaticUserStore) AddUser(user models.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(user.Email)] = staticUser{
		user:         user,
		passwordHash: hashPassword(password),
	}
}

// Authenticate implements UserStore.
func (s *StaticUserStore) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	s.mu.RLock()
	entry, ok := s.users[strings.ToLower(strings.TrimSpace(username))]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(hashPassword(password)), []byte(entry.passwordHash)) != 1 {
		return nil, ErrInvalidCredentials
	}
	clone := entry.user
	return &clone, nil
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Login authenticates username/password against the configured UserStore
// and, if a JWT signer is configured, issues a bearer token for the result.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	if s == nil {
		return nil, "", ErrAuthDisabled
	}
	s.mu.RLock()
	users := s.users
	jwt := s.jwt
	s.mu.RUnlock()
	if users == nil {
		return nil, "", ErrAuthDisabled
	}
	user, err := users.Authenticate(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	if jwt == nil {
		return user, "", nil
	}
	token, err := jwt.Generate(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// RegisterProvider makes an OAuth provider available by name. No lookup
// surface consumes this yet; it exists so a provider can be wired in
// without changing Service's shape.
func (s *Service) RegisterProvider(p OAuthProvider) {
	if s == nil || p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.providers == nil {
		s.providers = map[string]OAuthProvider{}
	}
	s.providers[p.Name()] = p
}
