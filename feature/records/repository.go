package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"record-sync/core/database"
	"record-sync/core/reconcile"
	"record-sync/feature/records/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repository is the local record store. It serves both the stream registry and the
// local repository of a reconciliation run.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

var (
	_ reconcile.LocalRepository = (*Repository)(nil)
	_ reconcile.StreamRegistry  = (*Repository)(nil)
)

// NewRepository creates a repository on db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, logger: zap.NewNop()}
}

// WithLogger sets the logger used for data quality warnings.
func (r *Repository) WithLogger(l *zap.Logger) *Repository {
	if l != nil {
		r.logger = l
	}
	return r
}

func sourceIDs(order []reconcile.SourceID) []int {
	ids := make([]int, len(order))
	for i, id := range order {
		ids[i] = int(id)
	}
	return ids
}

// EnsureSchema fails when a table the sync depends on lacks a column.
func EnsureSchema(db *gorm.DB) error {
	required := map[string][]string{
		models.Record{}.TableName(): models.RecordColumns,
		models.Stream{}.TableName(): {"id", "name", "enabled", "stream_type", "server_import_order"},
		models.Result{}.TableName(): {"record_id", "is_approved", "active_status"},
	}
	for _, table := range []string{"records", "streams", "results"} {
		missing, err := database.MissingColumns(db, table, required[table])
		if err != nil {
			return fmt.Errorf("inspect %s: %w", table, err)
		}
		if len(missing) > 0 {
			return fmt.Errorf("table %s is missing columns %v", table, missing)
		}
	}
	return nil
}

func (r *Repository) ListStreams(ctx context.Context, kind reconcile.Kind, streamID int) ([]reconcile.Stream, error) {
	var rows []models.Stream
	q := r.db.WithContext(ctx).Where("enabled = ?", true)
	if code := kind.Code(); code > 0 {
		q = q.Where("stream_type = ?", code)
	}
	if streamID >= 0 {
		q = q.Where("id = ?", streamID)
	}
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}

	streams := make([]reconcile.Stream, 0, len(rows))
	for _, row := range rows {
		s, err := row.ToDomain()
		if err != nil {
			r.logger.Warn("Malformed server_import_order, dropping invalid entries",
				zap.Int("stream_id", row.ID),
				zap.String("server_import_order", row.ServerImportOrder),
				zap.Ints("kept", sourceIDs(s.SourceOrder)),
				zap.Error(err))
		}
		streams = append(streams, s)
	}
	return streams, nil
}

func (r *Repository) WeakRecords(ctx context.Context, filter reconcile.RecordFilter) ([]reconcile.Record, error) {
	var rows []models.Record
	q := r.db.WithContext(ctx).
		Scopes(approved, inStreams(filter), startedWithin(filter.After, filter.Before))

	switch {
	case filter.MaxDuration > 0 && filter.MinRate > 0:
		q = q.Where("(duration < ? OR record_rate < ?)", filter.MaxDuration, filter.MinRate)
	case filter.MaxDuration > 0:
		q = q.Where("duration < ?", filter.MaxDuration)
	case filter.MinRate > 0:
		q = q.Where("record_rate < ?", filter.MinRate)
	}

	if err := q.Order("started_at").Order("stream_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load weak records: %w", err)
	}
	return toDomain(rows), nil
}

func (r *Repository) ApprovedRecords(ctx context.Context, streamID int, after, before time.Time) ([]reconcile.Record, error) {
	var rows []models.Record
	err := r.db.WithContext(ctx).
		Scopes(approved, startedWithin(after, before)).
		Where("stream_id = ?", streamID).
		Order("started_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load approved records of stream %d: %w", streamID, err)
	}
	return toDomain(rows), nil
}

func (r *Repository) ImportedRecords(ctx context.Context, filter reconcile.RecordFilter) ([]reconcile.Record, error) {
	var rows []models.Record
	err := r.db.WithContext(ctx).
		Scopes(inStreams(filter), startedWithin(filter.After, filter.Before)).
		Where("(is_record_approved = ? OR is_record_checked = ?)", true, true).
		Where("imported_record_id > ?", 0).
		Order("started_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load imported records: %w", err)
	}
	return toDomain(rows), nil
}

func (r *Repository) IsImported(ctx context.Context, source reconcile.SourceID, remoteID int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Record{}).
		Scopes(approved).
		Where("imported_source_id = ? AND imported_record_id = ?", int(source), remoteID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check import of %d/%d: %w", source, remoteID, err)
	}
	return count > 0, nil
}

func (r *Repository) HasEquivalent(ctx context.Context, rec reconcile.Record, tolerance time.Duration, rateTolerance float64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Record{}).
		Scopes(approved).
		Where("stream_id = ?", rec.StreamID).
		Where("started_at BETWEEN ? AND ?", rec.StartedAt.Add(-tolerance), rec.StartedAt.Add(tolerance)).
		Where("ended_at BETWEEN ? AND ?", rec.EndedAt.Add(-tolerance), rec.EndedAt.Add(tolerance)).
		Where("record_rate BETWEEN ? AND ?", rec.Rate-rateTolerance, rec.Rate+rateTolerance).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look for equivalent records: %w", err)
	}
	return count > 0, nil
}

func (r *Repository) CoveredRecords(ctx context.Context, rec reconcile.Record, tolerance time.Duration) ([]int, error) {
	var ids []int
	err := r.db.WithContext(ctx).Model(&models.Record{}).
		Scopes(approved).
		Where("stream_id = ?", rec.StreamID).
		Where("started_at > ? AND ended_at < ?", rec.StartedAt.Add(-tolerance), rec.EndedAt.Add(tolerance)).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load covered records: %w", err)
	}
	return ids, nil
}

// Import inserts the imported row first and then revokes the superseded records
// and disables their results, all in one transaction.
func (r *Repository) Import(ctx context.Context, req reconcile.ImportRequest) (int, error) {
	if req.Record.ID <= 0 || req.Source <= 0 {
		return 0, errors.New("import needs a remote record id and a source")
	}

	row := models.NewImport(req.Record, req.Source)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		if len(req.Supersede) == 0 {
			return nil
		}

		err := tx.Model(&models.Record{}).
			Where("id IN ?", req.Supersede).
			Update("is_record_approved", false).Error
		if err != nil {
			return fmt.Errorf("revoke approval: %w", err)
		}

		err = tx.Model(&models.Result{}).
			Where("record_id IN ?", req.Supersede).
			Updates(map[string]any{
				"is_approved":   false,
				"active_status": models.ResultStatusSuperseded,
			}).Error
		if err != nil {
			return fmt.Errorf("disable results: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to import record %d from server %d: %w", req.Record.ID, req.Source, err)
	}
	return row.ID, nil
}
