package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"record-sync/core/reconcile"
	"record-sync/core/runlock"
	"record-sync/feature/records/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TaskType is the task_type of sync runs.
const TaskType = "records_sync"

// TaskLocker grants run leases backed by a file lock and a row in the tasks table.
// The file lock excludes runs on this host; the row makes the run visible to other
// tools and excludes runs that share the database.
type TaskLocker struct {
	db     *gorm.DB
	files  *runlock.Locker
	logger *zap.Logger
	// staleAfter marks running rows older than this as abandoned. Zero keeps them.
	staleAfter time.Duration
	now        func() time.Time
}

var _ reconcile.Locker = (*TaskLocker)(nil)

// NewTaskLocker creates a locker. files may be nil to rely on the tasks table only.
func NewTaskLocker(db *gorm.DB, files *runlock.Locker, staleAfter time.Duration, logger *zap.Logger) *TaskLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskLocker{db: db, files: files, logger: logger, staleAfter: staleAfter, now: time.Now}
}

func (l *TaskLocker) Acquire(ctx context.Context, kind reconcile.Kind) (reconcile.Lease, error) {
	var handle *runlock.Handle
	if l.files != nil {
		h, err := l.files.Acquire(ctx, TaskType)
		if errors.Is(err, runlock.ErrLocked) {
			return nil, fmt.Errorf("%w: %s is locked", reconcile.ErrAlreadyRunning, TaskType)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", reconcile.ErrConfiguration, err)
		}
		handle = h
	}

	task, err := l.start(ctx, kind)
	if err != nil {
		if relErr := handle.Release(); relErr != nil {
			l.logger.Warn("Failed to release run lock", zap.Error(relErr))
		}
		return nil, err
	}

	l.logger.Debug("Run lock acquired", zap.Int("task_id", task.ID), zap.String("stream_type", string(kind)))
	return &taskLease{db: l.db, task: task, handle: handle, now: l.now}, nil
}

// start inserts the running task unless another one is active.
func (l *TaskLocker) start(ctx context.Context, kind reconcile.Kind) (models.Task, error) {
	now := l.now()
	task := models.Task{
		TaskType:  TaskType,
		Status:    models.TaskRunning,
		Message:   string(kind),
		StartedAt: now,
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if l.staleAfter > 0 {
			err := tx.Model(&models.Task{}).
				Where("task_type = ? AND status = ? AND started_at < ?", TaskType, models.TaskRunning, now.Add(-l.staleAfter)).
				Updates(map[string]any{"status": models.TaskFailed, "message": "abandoned", "finished_at": now}).Error
			if err != nil {
				return fmt.Errorf("expire stale tasks: %w", err)
			}
		}

		var running int64
		err := tx.Model(&models.Task{}).
			Where("task_type = ? AND status = ?", TaskType, models.TaskRunning).
			Count(&running).Error
		if err != nil {
			return fmt.Errorf("check running tasks: %w", err)
		}
		if running > 0 {
			return fmt.Errorf("%w: %d %s task(s) running", reconcile.ErrAlreadyRunning, running, TaskType)
		}
		if err := tx.Create(&task).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return nil
	})
	return task, err
}

type taskLease struct {
	db     *gorm.DB
	task   models.Task
	handle *runlock.Handle
	now    func() time.Time
}

func (l *taskLease) TaskID() int { return l.task.ID }

func (l *taskLease) Progress(ctx context.Context, percent float64) error {
	err := l.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", l.task.ID).
		Update("completion_percentage", percent).Error
	if err != nil {
		return fmt.Errorf("failed to update task %d progress: %w", l.task.ID, err)
	}
	return nil
}

// Release records the final state of the run and frees the file lock.
func (l *taskLease) Release(ctx context.Context, runErr error) error {
	status, message := models.TaskFinished, ""
	if runErr != nil {
		status, message = models.TaskFailed, runErr.Error()
	}

	err := l.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", l.task.ID).
		Updates(map[string]any{"status": status, "message": message, "finished_at": l.now()}).Error
	if err != nil {
		err = fmt.Errorf("failed to finish task %d: %w", l.task.ID, err)
	}
	return errors.Join(err, l.handle.Release())
}
