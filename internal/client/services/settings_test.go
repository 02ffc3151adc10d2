package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_LoadEmpty(t *testing.T) {
	s := NewSettings(openTestStore(t), testVault(t))
	cfg, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, cfg.Usable())
	assert.True(t, cfg.Frequency.IsNever())
}

func TestSettings_ConfigureSealsPassword(t *testing.T) {
	ctx := context.Background()
	v := testVault(t)
	s := NewSettings(openTestStore(t), v)

	cfg, err := s.Configure(ctx, "https://shelf.example", "ann", []byte("pw"), models.Every(30))
	require.NoError(t, err)
	assert.True(t, cfg.Usable())
	assert.NotContains(t, string(cfg.PasswordCiphertext), "pw")

	plain, err := v.Unseal(cfg.PasswordCiphertext, cfg.PasswordIV)
	require.NoError(t, err)
	assert.Equal(t, "pw", string(plain))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.Equal(cfg))

	// An empty password keeps the sealed one.
	again, err := s.Configure(ctx, "https://shelf.example", "ann", nil, models.Never())
	require.NoError(t, err)
	assert.Equal(t, cfg.PasswordCiphertext, again.PasswordCiphertext)
	assert.True(t, again.Frequency.IsNever())

	require.NoError(t, s.Clear(ctx))
	cleared, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, cleared.Usable())
}

func nextConfig(t *testing.T, ch <-chan models.ServerConfig) models.ServerConfig {
	t.Helper()
	select {
	case cfg, ok := <-ch:
		require.True(t, ok, "watch closed")
		return cfg
	case <-time.After(2 * time.Second):
		t.Fatal("no config emitted")
		return models.ServerConfig{}
	}
}

func TestSettings_WatchEmitsCurrentThenChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewSettings(openTestStore(t), testVault(t))

	ch := s.Watch(ctx, time.Hour)
	first := nextConfig(t, ch)
	assert.False(t, first.Usable())

	_, err := s.Configure(ctx, "https://a", "ann", []byte("pw"), models.Every(5))
	require.NoError(t, err)
	got := nextConfig(t, ch)
	assert.Equal(t, "https://a", got.Server)

	cancel()
	for range ch {
	}
}

func TestSettings_WatchPollsForOutsideEdits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := openTestStore(t)
	writer := NewSettings(st, testVault(t))
	reader := NewSettings(st, testVault(t))

	ch := reader.Watch(ctx, 20*time.Millisecond)
	nextConfig(t, ch)

	require.NoError(t, writer.SaveServerConfig(ctx, models.ServerConfig{Server: "https://b", User: "bo"}))
	got := nextConfig(t, ch)
	assert.Equal(t, "bo", got.User)
}
