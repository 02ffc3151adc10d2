package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/shelfsync/internal/client/client"
	"github.com/dmitrijs2005/shelfsync/internal/client/config"
	"github.com/dmitrijs2005/shelfsync/internal/client/services"
	"github.com/dmitrijs2005/shelfsync/internal/client/store"
	"github.com/dmitrijs2005/shelfsync/internal/client/vault"
	"github.com/dmitrijs2005/shelfsync/internal/filex"
	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/gofrs/flock"
)

// App owns the client's long-lived objects for one command invocation.
type App struct {
	cfg      *config.Config
	log      *logging.ZapLogger
	store    *store.Store
	vault    *vault.Vault
	settings *services.Settings
	library  *services.Library
	resolver *services.IdentityResolver
}

// NewApp prepares the data directory, opens the store and builds the local
// services. console, when not nil, mirrors log output.
func NewApp(ctx context.Context, cfg *config.Config, console io.Writer) (*App, error) {
	dataDir, err := filex.EnsureDir(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	cfg.DataDir = dataDir

	log, err := logging.NewFileZapLogger(logging.FileOptions{
		Path:       cfg.LogPath(),
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Level:      cfg.LogLevel,
		Console:    console,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	v, err := vault.Load(dataDir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &App{
		cfg:      cfg,
		log:      log,
		store:    st,
		vault:    v,
		settings: services.NewSettings(st, v),
		library:  services.NewLibrary(st),
		resolver: services.NewIdentityResolver(st, log),
	}, nil
}

func (a *App) Close() error {
	_ = a.log.Sync()
	return a.store.Close()
}

func (a *App) dial(server string) client.Client {
	return client.NewHTTPClient(server, client.Options{
		APITimeout:        a.cfg.APITimeout,
		TransferTimeout:   a.cfg.TransferTimeout,
		RequestsPerSecond: a.cfg.RequestsPerSecond,
		RequestBurst:      a.cfg.RequestBurst,
	})
}

// session builds an AuthSession from the stored ServerConfig.
func (a *App) session(ctx context.Context) (services.AuthSession, error) {
	cfg, err := a.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	return services.NewSession(cfg, a.dial, a.vault, a.settings, a.log, services.SessionOptions{
		Version: a.cfg.ClientVersion,
		Device:  a.cfg.DeviceLabel,
		Leeway:  a.cfg.TokenLeeway,
	}), nil
}

// syncLock is the cross-process lock held for the duration of a sync.
func (a *App) syncLock() *flock.Flock {
	return flock.New(a.cfg.SyncLockPath())
}

func (a *App) reconciler(session services.AuthSession) (*services.Reconciler, error) {
	opts := services.ReconcilerOptions{PageLimit: a.cfg.PageLimit, DownloadMissing: a.cfg.DownloadMissing}
	if a.cfg.DownloadMissing {
		dir, err := filex.EnsureDir(a.cfg.Library())
		if err != nil {
			return nil, fmt.Errorf("library dir: %w", err)
		}
		opts.LibraryDir = dir
	}
	return services.NewReconciler(a.store, session, a.resolver, a.log, opts), nil
}

// connect logs in and returns a client plus a context carrying the token.
func (a *App) connect(ctx context.Context) (context.Context, client.Client, error) {
	session, err := a.session(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !session.Config().Usable() {
		return nil, nil, errNotConfigured
	}
	token, ok := session.GetToken(ctx)
	if !ok {
		return nil, nil, fmt.Errorf("cannot log in to %s", session.Config().Server)
	}
	return client.WithAccessToken(ctx, token), session.Client(), nil
}
