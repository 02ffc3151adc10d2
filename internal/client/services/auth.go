package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/client"
	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenLeeway is how long before expiry a cached token stops being
// trusted.
const DefaultTokenLeeway = 2 * time.Minute

// fallbackTokenTTL applies when neither expiresAt nor an exp claim is known.
const fallbackTokenTTL = 10 * time.Minute

// Sealer protects the sync password at rest.
type Sealer interface {
	Seal(plaintext []byte) (ciphertext, iv []byte, err error)
	Unseal(ciphertext, iv []byte) ([]byte, error)
}

// ConfigSaver persists the device's ServerConfig.
type ConfigSaver interface {
	SaveServerConfig(ctx context.Context, cfg models.ServerConfig) error
}

// Dialer builds a wire client for a server base URL.
type Dialer func(server string) client.Client

// AuthSession owns the server configuration and the live bearer token.
type AuthSession interface {
	// GetToken returns a cached token, logging in when needed. ok is false
	// when synchronization is currently impossible.
	GetToken(ctx context.Context) (token string, ok bool)
	// UpdateConfig replaces the configuration if it differs by value,
	// dropping the cached token and persisting the new value.
	UpdateConfig(ctx context.Context, cfg models.ServerConfig) (changed bool, err error)
	Config() models.ServerConfig
	// Client is the wire client for the configured server, nil if none.
	Client() client.Client
	// IsConnected reports a valid cached token. It never calls the network.
	IsConnected() bool
	// Invalidate drops the cached token.
	Invalidate()
}

type SessionOptions struct {
	Version string
	Device  string
	Leeway  time.Duration
	Now     func() time.Time
}

type session struct {
	dial  Dialer
	vault Sealer
	saver ConfigSaver
	log   logging.Logger
	opts  SessionOptions

	// loginMu serializes logins; mu guards the fields below.
	loginMu sync.Mutex
	mu      sync.RWMutex
	cfg     models.ServerConfig
	wc      client.Client
	token   string
	expiry  time.Time
}

// NewSession builds an AuthSession starting from cfg. saver may be nil.
func NewSession(cfg models.ServerConfig, dial Dialer, vault Sealer, saver ConfigSaver, log logging.Logger, opts SessionOptions) AuthSession {
	if opts.Leeway <= 0 {
		opts.Leeway = DefaultTokenLeeway
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &session{dial: dial, vault: vault, saver: saver, log: log.With("component", "auth"), opts: opts}
	s.setConfig(cfg)
	return s
}

func (s *session) setConfig(cfg models.ServerConfig) {
	s.cfg = cfg
	s.wc = nil
	if cfg.Server != "" && s.dial != nil {
		s.wc = s.dial(cfg.Server)
	}
	s.token = ""
	s.expiry = time.Time{}
}

func (s *session) cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", false
	}
	if !s.opts.Now().Before(s.expiry.Add(-s.opts.Leeway)) {
		return "", false
	}
	return s.token, true
}

func (s *session) GetToken(ctx context.Context) (string, bool) {
	if tok, ok := s.cached(); ok {
		return tok, true
	}

	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	if tok, ok := s.cached(); ok {
		return tok, true
	}

	s.mu.RLock()
	cfg, wc := s.cfg, s.wc
	s.mu.RUnlock()

	if !cfg.Usable() || wc == nil {
		return "", false
	}

	password, err := s.vault.Unseal(cfg.PasswordCiphertext, cfg.PasswordIV)
	if err != nil {
		s.log.Warn(ctx, "cannot unseal sync password", "error", err)
		return "", false
	}
	defer common.WipeByteArray(password)

	resp, err := wc.Login(ctx, wire.LoginRequest{
		Username: cfg.User,
		Password: string(password),
		Version:  s.opts.Version,
		Device:   s.opts.Device,
	})
	if err != nil {
		s.log.Warn(ctx, "login failed", "server", cfg.Server, "user", cfg.User, "error", err)
		return "", false
	}

	expiry := s.expiryOf(resp)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Equal(cfg) {
		// Configuration changed while logging in; the token belongs to the old one.
		return "", false
	}
	s.token, s.expiry = resp.Token, expiry
	s.log.Info(ctx, "logged in", "server", cfg.Server, "expires_at", expiry)
	return resp.Token, true
}

func (s *session) expiryOf(resp *wire.LoginResponse) time.Time {
	if resp.ExpiresAt > 0 {
		return time.UnixMilli(resp.ExpiresAt)
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.Token, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return s.opts.Now().Add(fallbackTokenTTL)
}

func (s *session) UpdateConfig(ctx context.Context, cfg models.ServerConfig) (bool, error) {
	s.mu.Lock()
	if s.cfg.Equal(cfg) {
		s.mu.Unlock()
		return false, nil
	}
	s.setConfig(cfg)
	s.mu.Unlock()

	if s.saver != nil {
		if err := s.saver.SaveServerConfig(ctx, cfg); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (s *session) Config() models.ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *session) Client() client.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wc
}

func (s *session) IsConnected() bool {
	_, ok := s.cached()
	return ok
}

func (s *session) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiry = time.Time{}
	s.mu.Unlock()
}
