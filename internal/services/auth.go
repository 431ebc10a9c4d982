package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fileforge/internal/auth"
	"fileforge/internal/models"
	"fileforge/internal/storage"
)

// UserStore is the slice of the users repository the services need.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, fullName, username *string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Auth implements registration, login and token lifecycle.
type Auth struct {
	log    *logrus.Logger
	users  UserStore
	tokens *auth.Manager
}

// NewAuth wires the auth service.
func NewAuth(log *logrus.Logger, users UserStore, tokens *auth.Manager) *Auth {
	return &Auth{log: log, users: users, tokens: tokens}
}

// Register creates an account and issues its first token pair.
func (s *Auth) Register(ctx context.Context, email, username, password string, fullName *string) (*models.User, *auth.TokenPair, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &models.User{
		ID:             uuid.New(),
		Email:          email,
		Username:       username,
		HashedPassword: hash,
		FullName:       fullName,
		Role:           models.RoleUser,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, nil, fmt.Errorf("email or username already registered: %w", ErrDuplicate)
		}
		return nil, nil, err
	}

	pair, err := s.tokens.NewPair(u.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("issuing tokens: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username}).Info("account registered")
	return u, pair, nil
}

// Login verifies credentials and issues a token pair. Unknown email,
// wrong password and a deactivated account all report the same error.
func (s *Auth) Login(ctx context.Context, email, password string) (*models.User, *auth.TokenPair, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	}
	if err != nil {
		return nil, nil, err
	}
	if !auth.CheckPassword(u.HashedPassword, password) {
		return nil, nil, fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	}
	if !u.IsActive {
		return nil, nil, fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	}

	pair, err := s.tokens.NewPair(u.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("issuing tokens: %w", err)
	}

	now := time.Now()
	if err := s.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		s.log.WithField("user_id", u.ID).WithError(err).Warn("last login not recorded")
	} else {
		u.LastLoginAt = &now
	}

	s.log.WithField("user_id", u.ID).Info("login")
	return u, pair, nil
}

// Refresh exchanges a valid refresh token for a fresh pair.
func (s *Auth) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	userID, err := s.tokens.Parse(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", ErrUnauthorized)
	}

	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("invalid refresh token: %w", ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("invalid refresh token: %w", ErrUnauthorized)
	}

	pair, err := s.tokens.NewPair(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing tokens: %w", err)
	}
	return pair, nil
}

// Me loads the account behind an access token's subject.
func (s *Auth) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return u, err
}

// GuestToken mints an anonymous bearer capability. Nothing is stored;
// the token itself scopes whatever gets created under it.
func (s *Auth) GuestToken() (string, error) {
	token, err := auth.NewGuestToken()
	if err != nil {
		return "", fmt.Errorf("minting guest token: %w", err)
	}
	return token, nil
}
