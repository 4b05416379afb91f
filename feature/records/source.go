package records

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"record-sync/core/config"
	"record-sync/core/database"
	"record-sync/core/reconcile"
	"record-sync/feature/records/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Connector opens a database handle.
type Connector func(cfg database.Config) (*gorm.DB, error)

// SourceRegistry resolves server ids to record sources. Remote databases are
// opened on first use and kept for the life of the registry.
type SourceRegistry struct {
	settings config.SyncConfig
	base     database.Config
	configs  map[reconcile.SourceID]config.SourceConfig
	connect  Connector
	logger   *zap.Logger

	group singleflight.Group
	mu    sync.Mutex
	open  map[reconcile.SourceID]*dbSource
}

var _ reconcile.SourceRegistry = (*SourceRegistry)(nil)

// NewSourceRegistry builds a registry over the configured sources. base is the local
// database configuration; it provides credentials for sources derived from
// settings.SourceHostTemplate.
func NewSourceRegistry(settings config.SyncConfig, sources []config.SourceConfig, base database.Config, logger *zap.Logger) *SourceRegistry {
	configs := make(map[reconcile.SourceID]config.SourceConfig, len(sources))
	for _, s := range sources {
		configs[reconcile.SourceID(s.ID)] = s
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SourceRegistry{
		settings: settings,
		base:     base,
		configs:  configs,
		connect:  database.Connect,
		logger:   logger,
		open:     make(map[reconcile.SourceID]*dbSource),
	}
}

// WithConnector replaces the function used to open source databases.
func (r *SourceRegistry) WithConnector(c Connector) *SourceRegistry {
	r.connect = c
	return r
}

// Source returns the handle of server id, connecting on first use. Concurrent
// callers share a single connection attempt.
func (r *SourceRegistry) Source(ctx context.Context, id reconcile.SourceID) (reconcile.Source, error) {
	r.mu.Lock()
	if s, ok := r.open[id]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(strconv.Itoa(int(id)), func() (any, error) {
		r.mu.Lock()
		if s, ok := r.open[id]; ok {
			r.mu.Unlock()
			return s, nil
		}
		r.mu.Unlock()

		cfg, err := r.databaseConfig(id)
		if err != nil {
			return nil, err
		}
		db, err := r.connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to server %d: %w", id, err)
		}
		r.logger.Info("Connected to source database",
			zap.Int("source", int(id)), zap.String("host", cfg.Host))

		s := &dbSource{id: id, db: db, timeout: r.settings.QueryTimeout()}
		r.mu.Lock()
		r.open[id] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*dbSource), nil
}

func (r *SourceRegistry) databaseConfig(id reconcile.SourceID) (database.Config, error) {
	if s, ok := r.configs[id]; ok && s.Database.Host != "" {
		cfg := s.Database
		if cfg.Driver == "" {
			cfg.Driver = r.base.Driver
		}
		return cfg, nil
	}
	if r.settings.SourceHostTemplate == "" {
		return database.Config{}, fmt.Errorf("%w: no database configured for server %d", reconcile.ErrConfiguration, id)
	}
	cfg := r.base
	cfg.Host = fmt.Sprintf(r.settings.SourceHostTemplate, int(id))
	return cfg, nil
}

// PathPrefix returns the blob root of server id.
func (r *SourceRegistry) PathPrefix(id reconcile.SourceID) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("%w: invalid server id %d", reconcile.ErrConfiguration, id)
	}
	if s, ok := r.configs[id]; ok && s.Root != "" {
		return s.Root, nil
	}
	return fmt.Sprintf(r.settings.RootTemplate, int(id)), nil
}

// Close releases every opened source database.
func (r *SourceRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, s := range r.open {
		sqlDB, err := s.db.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close server %d: %w", id, err)
		}
		delete(r.open, id)
	}
	return firstErr
}

// dbSource reads finished records from one server's database.
type dbSource struct {
	id      reconcile.SourceID
	db      *gorm.DB
	timeout time.Duration
}

// NewSource wraps an open database as a record source.
func NewSource(id reconcile.SourceID, db *gorm.DB, timeout time.Duration) reconcile.Source {
	return &dbSource{id: id, db: db, timeout: timeout}
}

func (s *dbSource) ID() reconcile.SourceID { return s.id }

func (s *dbSource) query(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if s.timeout <= 0 {
		return s.db.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

func (s *dbSource) Candidates(ctx context.Context, q reconcile.CandidateQuery) ([]reconcile.Record, error) {
	db, cancel := s.query(ctx)
	defer cancel()

	var rows []models.Record
	if err := db.Scopes(candidates(q)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query candidates on server %d: %w", s.id, err)
	}
	return keepMatching(q, toDomain(rows)), nil
}

func (s *dbSource) AnyRecords(ctx context.Context, q reconcile.AnyQuery) ([]reconcile.Record, error) {
	db, cancel := s.query(ctx)
	defer cancel()

	var rows []models.Record
	if err := db.Scopes(anyRecords(q)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query records on server %d: %w", s.id, err)
	}
	return toDomain(rows), nil
}
