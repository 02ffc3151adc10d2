package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/client"
	"github.com/dmitrijs2005/shelfsync/internal/client/jobs"
	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/client/services"
	"github.com/dmitrijs2005/shelfsync/internal/client/store"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*store.Store, *jobs.Queue) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, jobs.NewQueue(st.DB())
}

type fakeSession struct {
	mu          sync.Mutex
	cfg         models.ServerConfig
	loginOK     bool
	logins      int
	invalidated int
	connected   bool
}

func (f *fakeSession) GetToken(context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	f.connected = f.loginOK && f.cfg.Usable()
	if !f.connected {
		return "", false
	}
	return "tok", true
}

func (f *fakeSession) UpdateConfig(_ context.Context, cfg models.ServerConfig) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg.Equal(cfg) {
		return false, nil
	}
	f.cfg = cfg
	f.connected = false
	return true, nil
}

func (f *fakeSession) Config() models.ServerConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeSession) Client() client.Client { return nil }

func (f *fakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	f.connected = false
}

var _ services.AuthSession = (*fakeSession)(nil)

// fakeConfig is a ConfigSource and ConfigLoader driven by the test.
type fakeConfig struct {
	mu  sync.Mutex
	cfg models.ServerConfig
	ch  chan models.ServerConfig
}

func newFakeConfig(cfg models.ServerConfig) *fakeConfig {
	return &fakeConfig{cfg: cfg, ch: make(chan models.ServerConfig)}
}

func (f *fakeConfig) Load(context.Context) (models.ServerConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, nil
}

func (f *fakeConfig) Watch(ctx context.Context, _ time.Duration) <-chan models.ServerConfig {
	out := make(chan models.ServerConfig)
	go func() {
		defer close(out)
		cur, _ := f.Load(ctx)
		for {
			select {
			case out <- cur:
			case <-ctx.Done():
				return
			}
			select {
			case cur = <-f.ch:
				f.mu.Lock()
				f.cfg = cur
				f.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// set pushes a new value and returns once the watcher consumed it.
func (f *fakeConfig) set(t *testing.T, cfg models.ServerConfig) {
	t.Helper()
	select {
	case f.ch <- cfg:
	case <-time.After(2 * time.Second):
		t.Fatal("config not consumed")
	}
}

type fakeSyncer struct {
	mu    sync.Mutex
	calls [][]wire.Table
	err   error
	block chan struct{}
}

func (f *fakeSyncer) SyncTables(ctx context.Context, tables []wire.Table) ([]services.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tables)
	return []services.Result{{Table: wire.TableBookData, OK: true}}, f.err
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func usableConfig(freq models.SyncFrequency) models.ServerConfig {
	return models.ServerConfig{
		Server:             "https://shelf.example",
		User:               "ann",
		PasswordCiphertext: []byte{1},
		PasswordIV:         []byte{2},
		Frequency:          freq,
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msg)
}

