package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vietddude/streamkeeper/internal/archive"
	"github.com/vietddude/streamkeeper/internal/core/config"
	"github.com/vietddude/streamkeeper/internal/core/worker"
	"github.com/vietddude/streamkeeper/internal/failure"
	"github.com/vietddude/streamkeeper/internal/health"
	redisclient "github.com/vietddude/streamkeeper/internal/infra/redis"
	"github.com/vietddude/streamkeeper/internal/infra/storage"
	"github.com/vietddude/streamkeeper/internal/infra/storage/sqlstore"
)

// ErrArchiveNotConfigured is returned by archive operations when no archive
// database is configured.
var ErrArchiveNotConfigured = errors.New("archive database not configured")

// App wires the failure handler and the archiver to their backing stores.
type App struct {
	cfg         *config.AppConfig
	redisClient *redisclient.Client
	db          *sqlstore.DB
	ledger      *redisclient.Ledger
	archiveRepo storage.ArchiveRepository
	receivers   *failure.Registry
	handler     *failure.Handler
	archiver    *archive.Archiver
	log         *slog.Logger

	healthServer *health.Server
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewApp connects to Redis and the archive database and builds the core
// components. Receivers declared in cfg are added to receivers.
func NewApp(ctx context.Context, cfg *config.AppConfig, receivers *failure.Registry) (*App, error) {
	if receivers == nil {
		receivers = failure.NewRegistry()
	}
	for _, rc := range cfg.Receivers {
		if err := receivers.RegisterReceiver(rc.Name, failure.NewHTTPReceiver(rc.URL, rc.Timeout)); err != nil {
			return nil, fmt.Errorf("failed to register receiver: %w", err)
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	app := &App{
		cfg:         cfg,
		redisClient: redisClient,
		ledger:      redisClient.Ledger(cfg.Failed.LedgerKey),
		receivers:   receivers,
		log:         slog.Default().With("component", "control"),
	}

	if cfg.Database.URL != "" {
		db, err := sqlstore.NewDB(ctx, cfg.Database)
		if err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			_ = redisClient.Close()
			return nil, err
		}
		app.db = db
		app.archiveRepo = sqlstore.NewArchiveRepo(db)
		app.log.Debug("Using SQL archive storage", "driver", cfg.Database.Driver)
		app.archiver = archive.NewArchiver(app.archiveRepo, redisClient)
	} else {
		app.log.Debug("No archive database configured, archive commands are disabled")
	}

	app.handler = failure.NewHandler(app.ledger, redisClient, receivers)

	return app, nil
}

// Handler returns the failed message handler.
func (a *App) Handler() *failure.Handler { return a.handler }

// Archiver returns the archiver. Messages are only ever moved into a durable
// store, so it fails with ErrArchiveNotConfigured when no database is set.
func (a *App) Archiver() (*archive.Archiver, error) {
	if a.archiver == nil {
		return nil, ErrArchiveNotConfigured
	}
	return a.archiver, nil
}

// ArchiveRepo returns the archive store, or ErrArchiveNotConfigured.
func (a *App) ArchiveRepo() (storage.ArchiveRepository, error) {
	if a.archiveRepo == nil {
		return nil, ErrArchiveNotConfigured
	}
	return a.archiveRepo, nil
}

// Streams returns the stream factory backed by Redis.
func (a *App) Streams() storage.StreamFactory { return a.redisClient }

// Receivers returns the receiver registry.
func (a *App) Receivers() *failure.Registry { return a.receivers }

// Start launches the scheduled retry worker and the health server.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	monitor := health.NewMonitor(a.ledger)
	monitor.Register("redis", a.redisClient)
	if a.db != nil {
		monitor.Register("database", a.db)
	}
	a.healthServer = health.NewServer(monitor, a.cfg.Server.Port)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.log.Info("Health server listening", "port", a.cfg.Server.Port)
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server stopped", "error", err)
		}
	}()

	retrier := worker.NewRetrier(a.handler, a.cfg.Retry.Interval, a.cfg.Retry.Timeout, slog.Default())
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		retrier.Start(ctx)
	}()

	a.log.Info("Retry worker started", "interval", a.cfg.Retry.Interval, "ledger", a.cfg.Failed.LedgerKey)
	return nil
}

// Stop halts background work and closes connections.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if a.cancel != nil {
		a.cancel()
	}
	if a.healthServer != nil {
		if err := a.healthServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("health server: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases the store connections.
func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
		a.db = nil
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		a.redisClient = nil
	}
	return errors.Join(errs...)
}
