// Package auth is the credential gate: it registers accounts, logs them in
// and turns a presented bearer token into an authenticated identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"roomchat/backend/internal/config"
	"roomchat/backend/internal/models"
	"roomchat/backend/internal/storage"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid registration data")
	ErrAccountNotFound    = errors.New("account no longer exists")
	ErrAccountBlocked     = errors.New("account is blocked")
)

// UserStore is the part of storage.Storage the gate needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	IsUserBanned(ctx context.Context, userID string) (bool, error)
}

// RegisterInput is the data of a new account.
type RegisterInput struct {
	Email    string
	Password string
	Nickname string
}

// Service issues tokens for accounts and verifies presented tokens.
type Service struct {
	Users  UserStore
	Tokens *JWTManager
	Hasher *PasswordHasher
	Now    func() time.Time
}

// NewService creates the credential gate.
func NewService(users UserStore, tokens *JWTManager, hasher *PasswordHasher) *Service {
	return &Service{
		Users:  users,
		Tokens: tokens,
		Hasher: hasher,
		Now:    time.Now,
	}
}

// Register creates a plain user account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	nickname := strings.TrimSpace(in.Nickname)

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if len(in.Password) < config.MinPasswordLength {
		return nil, fmt.Errorf("%w: password shorter than %d characters", ErrInvalidInput, config.MinPasswordLength)
	}
	if nickname == "" || utf8.RuneCountInString(nickname) > config.MaxNicknameLength {
		return nil, fmt.Errorf("%w: nickname", ErrInvalidInput)
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Nickname:     nickname,
		Role:         models.RoleUser,
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("INFO: New user %s registered (%s).", user.ID, user.Email)
	return user, nil
}

// Login checks the password and returns a fresh token for the account.
// Unknown emails and wrong passwords yield the same error.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.Users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, storage.ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if !s.Hasher.Verify(password, user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}
	if user.BlockedAt(s.Now()) {
		return "", nil, ErrAccountBlocked
	}

	token, err := s.Tokens.Generate(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// VerifyToken resolves a bearer token into the identity of a live account.
// Role and nickname come from the stored account, not from the token, so a
// demotion takes effect on the next connection.
func (s *Service) VerifyToken(ctx context.Context, token string) (models.Identity, error) {
	claims, err := s.Tokens.Validate(token)
	if err != nil {
		return models.Identity{}, err
	}

	user, err := s.Users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return models.Identity{}, ErrAccountNotFound
	}
	if err != nil {
		return models.Identity{}, err
	}

	if user.BlockedAt(s.Now()) {
		return models.Identity{}, ErrAccountBlocked
	}
	banned, err := s.Users.IsUserBanned(ctx, user.ID)
	if err != nil {
		// the database flag above is authoritative; the cache is a fast path only
		log.Printf("WARNING: Ban cache lookup failed for %s: %v", user.ID, err)
	} else if banned {
		return models.Identity{}, ErrAccountBlocked
	}

	return user.Identity(), nil
}
