// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login and bearer token checks.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/cryptox"
	"github.com/dmitrijs2005/shelfsync/internal/server/auth"
	"github.com/dmitrijs2005/shelfsync/internal/server/config"
	"github.com/dmitrijs2005/shelfsync/internal/server/models"
	"github.com/dmitrijs2005/shelfsync/internal/server/repositories/repomanager"
)

const saltSize = 32

// UserService provides authentication-related operations:
//   - Register / EnsureUser: create accounts
//   - Login: verify a password and mint an access token
//   - Authenticate: resolve a bearer token to its user id
type UserService struct {
	store         repomanager.Store
	jwtSecret     []byte
	tokenValidity time.Duration
	now           func() time.Time
}

// NewUserService constructs a UserService using the store and server config.
func NewUserService(store repomanager.Store, cfg *config.Config) *UserService {
	return &UserService{
		store:         store,
		jwtSecret:     []byte(cfg.SecretKey),
		tokenValidity: cfg.TokenValidity,
		now:           time.Now,
	}
}

// Session is an issued access token.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Register creates a user. The password itself is never stored, only an
// argon2 verifier derived from it with a random salt.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, common.ErrorBadRequest
	}

	salt := common.GenerateRandByteArray(saltSize)
	key := cryptox.DeriveMasterKey([]byte(password), salt)
	defer common.WipeByteArray(key)

	user := &models.User{UserName: username, Salt: salt, Verifier: cryptox.MakeVerifier(key)}
	err := s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		user, err = r.Users.Create(ctx, user)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return user, nil
}

// EnsureUser registers username unless it already exists. It reports
// whether an account was created.
func (s *UserService) EnsureUser(ctx context.Context, username, password string) (bool, error) {
	_, err := s.Register(ctx, username, password)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrorAlreadyExists):
		return false, nil
	default:
		return false, err
	}
}

// Login verifies the password and, on success, returns a new Session.
// Unknown users and wrong passwords both yield common.ErrInvalidCredential
// after the same amount of key derivation work.
func (s *UserService) Login(ctx context.Context, username, password, device string) (*Session, error) {
	var user *models.User
	err := s.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		user, err = r.Users.GetUserByLogin(ctx, strings.TrimSpace(username))
		return err
	})
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorInternal
	}

	salt := common.GenerateRandByteArray(saltSize)
	var want []byte
	if user != nil {
		salt, want = user.Salt, user.Verifier
	}

	key := cryptox.DeriveMasterKey([]byte(password), salt)
	defer common.WipeByteArray(key)

	if user == nil || !s.checkVerifier(want, cryptox.MakeVerifier(key)) {
		return nil, common.ErrInvalidCredential
	}

	token, expiresAt, err := auth.GenerateToken(user.ID, device, s.jwtSecret, s.now(), s.tokenValidity)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}

// Authenticate returns the user id a valid token was issued to.
func (s *UserService) Authenticate(token string) (string, error) {
	return auth.GetUserIDFromToken(token, s.jwtSecret)
}

func (s *UserService) checkVerifier(verifier []byte, candidate []byte) bool {
	return subtle.ConstantTimeCompare(verifier, candidate) == 1
}
