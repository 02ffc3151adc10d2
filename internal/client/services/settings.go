package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/client/store"
)

// DefaultConfigPollInterval is used by Watch when no interval is given.
const DefaultConfigPollInterval = 5 * time.Second

// Settings keeps the device's ServerConfig singleton in the metadata table.
type Settings struct {
	store *store.Store
	vault Sealer

	mu      sync.Mutex
	signals []chan struct{}
}

func NewSettings(st *store.Store, vault Sealer) *Settings {
	return &Settings{store: st, vault: vault}
}

// Load returns the stored configuration, or the zero value when none was
// saved yet.
func (s *Settings) Load(ctx context.Context) (models.ServerConfig, error) {
	var cfg models.ServerConfig
	if _, err := s.store.Read().Metadata.GetJSON(ctx, models.ServerConfigKey, &cfg); err != nil {
		return models.ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}
	return cfg, nil
}

// SaveServerConfig persists cfg and wakes in-process watchers.
func (s *Settings) SaveServerConfig(ctx context.Context, cfg models.ServerConfig) error {
	err := s.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		return tx.Metadata.SetJSON(ctx, models.ServerConfigKey, cfg)
	})
	if err != nil {
		return fmt.Errorf("save server config: %w", err)
	}
	s.notify()
	return nil
}

// Configure seals password and stores a full configuration. An empty
// password keeps the one already stored.
func (s *Settings) Configure(ctx context.Context, server, user string, password []byte, freq models.SyncFrequency) (models.ServerConfig, error) {
	cfg, err := s.Load(ctx)
	if err != nil {
		return models.ServerConfig{}, err
	}
	cfg.Server, cfg.User, cfg.Frequency = server, user, freq

	if len(password) > 0 {
		ct, iv, err := s.vault.Seal(password)
		if err != nil {
			return models.ServerConfig{}, fmt.Errorf("seal password: %w", err)
		}
		cfg.PasswordCiphertext, cfg.PasswordIV = ct, iv
	}
	if err := s.SaveServerConfig(ctx, cfg); err != nil {
		return models.ServerConfig{}, err
	}
	return cfg, nil
}

// Clear removes the stored configuration.
func (s *Settings) Clear(ctx context.Context) error {
	err := s.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		return tx.Metadata.Delete(ctx, models.ServerConfigKey)
	})
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Settings) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.signals {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Settings) subscribe() (chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.signals = append(s.signals, ch)
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, c := range s.signals {
			if c == ch {
				s.signals = append(s.signals[:i], s.signals[i+1:]...)
				return
			}
		}
	}
}

// Watch emits the current configuration and then every value that differs
// from the previous one. Edits from this process are seen immediately,
// edits from other processes on the next poll. The channel closes when ctx
// is done.
func (s *Settings) Watch(ctx context.Context, interval time.Duration) <-chan models.ServerConfig {
	if interval <= 0 {
		interval = DefaultConfigPollInterval
	}
	out := make(chan models.ServerConfig)
	signal, cancel := s.subscribe()

	go func() {
		defer close(out)
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last models.ServerConfig
		first := true
		for {
			cfg, err := s.Load(ctx)
			if err == nil && (first || !cfg.Equal(last)) {
				select {
				case out <- cfg:
				case <-ctx.Done():
					return
				}
				last, first = cfg, false
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-signal:
			}
		}
	}()
	return out
}
