// Package cli is the operator console: an interactive shell over the local
// store, the sync engine and the audit log.
package cli

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/advocatech/lexsync/internal/audit"
	"github.com/advocatech/lexsync/internal/backend"
	"github.com/advocatech/lexsync/internal/config"
	"github.com/advocatech/lexsync/internal/connectivity"
	"github.com/advocatech/lexsync/internal/logging"
	"github.com/advocatech/lexsync/internal/merkle"
	"github.com/advocatech/lexsync/internal/quota"
	"github.com/advocatech/lexsync/internal/repositories/auditevents"
	"github.com/advocatech/lexsync/internal/repositories/auditsummaries"
	"github.com/advocatech/lexsync/internal/repositories/merkletrees"
	"github.com/advocatech/lexsync/internal/repositories/metadata"
	"github.com/advocatech/lexsync/internal/repositories/records"
	"github.com/advocatech/lexsync/internal/repositories/syncqueue"
	"github.com/advocatech/lexsync/internal/storage"
	"github.com/advocatech/lexsync/internal/store"
	"github.com/advocatech/lexsync/internal/syncx"
)

type App struct {
	config  *config.Config
	db      *sql.DB
	client  backend.Client
	store   *store.Store
	engine  *syncx.Engine
	audit   *audit.Service
	merkle  *merkle.Engine
	monitor *connectivity.Monitor
	usage   *quota.DailyCounter
	log     logging.Logger
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	db, err := storage.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	client := backend.NewHTTPClient(cfg.ServerEndpointAddr)
	schema := storage.DefaultSchema()

	queue := syncqueue.NewSQLiteRepository(db)
	st := store.NewStore(records.NewSQLiteRepository(db, schema), queue, schema, log)

	engine := syncx.NewEngine(queue, st, client,
		cfg.MaxSyncAttempts, cfg.CleanupAfterDays, cfg.SyncInterval, log)
	usage := quota.NewDailyCounter(metadata.NewSQLiteRepository(db), "api_calls")
	engine.SetUsageCounter(usage)

	auditSvc := audit.NewService(
		auditevents.NewSQLiteRepository(db),
		merkletrees.NewSQLiteRepository(db),
		auditsummaries.NewSQLiteRepository(db),
		audit.NewSanitizer(cfg.SensitiveFieldPatterns),
		audit.NewFallbackBuffer(cfg.FallbackBufferSize),
		cfg.AuditRetentionDays,
		log,
	)

	var ts merkle.Timestamper
	if cfg.TimestampAuthorityURL != "" {
		ts = merkle.NewHTTPTimestamper(cfg.TimestampAuthorityURL)
	}
	merkleEngine := merkle.NewEngine(
		auditevents.NewSQLiteRepository(db),
		merkletrees.NewSQLiteRepository(db),
		metadata.NewSQLiteRepository(db),
		ts,
		cfg.MerkleBatchSize,
		cfg.MerkleInterval,
		log,
	)

	monitor := connectivity.NewMonitor(client, cfg.OnlineCheckInterval, log)
	monitor.Subscribe(engine.SetOnline)

	return &App{
		config:  cfg,
		db:      db,
		client:  client,
		store:   st,
		engine:  engine,
		audit:   auditSvc,
		merkle:  merkleEngine,
		monitor: monitor,
		usage:   usage,
		log:     log,
	}, nil
}

// Run starts the background loops and hands control to the shell. Everything
// winds down when the shell returns.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.monitor.Run(ctx)
	go a.engine.Run(ctx)
	go a.merkle.Run(ctx)

	a.Root(ctx)

	cancel()
	_ = a.client.Close()
	_ = a.db.Close()
}
