package cmd

import (
	"errors"
	"fmt"

	"record-sync/core/config"
	"record-sync/core/database"
	"record-sync/core/logger"
	"record-sync/core/reconcile"
	"record-sync/core/runlock"
	"record-sync/core/storage"
	"record-sync/feature/records"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime holds the shared resources of a command.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	repo    *records.Repository
	sources *records.SourceRegistry
}

// bootstrap loads configuration, builds the logger and connects to the local database.
func bootstrap() (*runtime, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(l)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := records.EnsureSchema(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("%w: %v", reconcile.ErrConfiguration, err)
	}
	l.Debug("Connected to local database",
		zap.String("driver", cfg.Database.Driver),
		zap.String("host", cfg.Database.Host))

	return &runtime{
		cfg:     cfg,
		logger:  l,
		db:      db,
		repo:    records.NewRepository(db).WithLogger(l),
		sources: records.NewSourceRegistry(cfg.Sync, cfg.Sources, cfg.Database, l),
	}, nil
}

// engine builds a reconciliation engine reporting to observer.
func (r *runtime) engine(observer reconcile.Observer) (*reconcile.Engine, error) {
	transfer, err := storage.NewTransfer(storage.Mode(r.cfg.Sync.TransferMode), r.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", reconcile.ErrConfiguration, err)
	}

	locker := records.NewTaskLocker(
		r.db,
		runlock.New(r.cfg.Sync.LockDir, r.cfg.Sync.LockWait()),
		r.cfg.Sync.TaskStaleAfter(),
		r.logger,
	)

	return reconcile.NewEngine(reconcile.Deps{
		Streams:  r.repo,
		Node:     records.NewParameters(r.db, r.cfg.Sync.ServerID),
		Local:    r.repo,
		Sources:  r.sources,
		Transfer: transfer,
		Locker:   locker,
		Observer: observer,
		Logger:   r.logger,
	}, r.cfg.Sync.Policy())
}

func (r *runtime) Close() {
	if err := errors.Join(r.sources.Close(), closeErr(r.db)); err != nil {
		r.logger.Warn("Failed to close databases", zap.Error(err))
	}
	_ = r.logger.Sync()
}

func closeErr(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeDB(db *gorm.DB) {
	_ = closeErr(db)
}
