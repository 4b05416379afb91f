package records

import (
	"context"
	"testing"
	"time"

	"record-sync/core/reconcile"
	"record-sync/core/runlock"
	"record-sync/feature/records/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTask(t *testing.T, l *TaskLocker, id int) models.Task {
	t.Helper()
	var task models.Task
	require.NoError(t, l.db.First(&task, id).Error)
	return task
}

func TestTaskLocker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	locker := NewTaskLocker(newTestDB(t), runlock.New(t.TempDir(), 0), 0, nil)

	lease, err := locker.Acquire(ctx, reconcile.KindAudio)
	require.NoError(t, err)
	require.Positive(t, lease.TaskID())

	task := loadTask(t, locker, lease.TaskID())
	assert.Equal(t, TaskType, task.TaskType)
	assert.Equal(t, models.TaskRunning, task.Status)
	assert.Equal(t, "audio", task.Message)

	_, err = locker.Acquire(ctx, reconcile.KindVideo)
	assert.ErrorIs(t, err, reconcile.ErrAlreadyRunning)

	require.NoError(t, lease.Progress(ctx, 50))
	assert.Equal(t, 50.0, loadTask(t, locker, lease.TaskID()).CompletionPercentage)

	require.NoError(t, lease.Release(ctx, nil))
	task = loadTask(t, locker, lease.TaskID())
	assert.Equal(t, models.TaskFinished, task.Status)
	require.NotNil(t, task.FinishedAt)

	next, err := locker.Acquire(ctx, reconcile.KindAudio)
	require.NoError(t, err)
	assert.NotEqual(t, lease.TaskID(), next.TaskID())

	require.NoError(t, next.Release(ctx, errBoom))
	task = loadTask(t, locker, next.TaskID())
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Equal(t, "boom", task.Message)
}

func TestTaskLocker_RunningRowBlocks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Task{TaskType: TaskType, Status: models.TaskRunning, StartedAt: time.Now()}).Error)

	locker := NewTaskLocker(db, runlock.New(t.TempDir(), 0), 0, nil)
	_, err := locker.Acquire(ctx, reconcile.KindAudio)
	assert.ErrorIs(t, err, reconcile.ErrAlreadyRunning)

	// the file lock is released when the task row blocks the run
	other := NewTaskLocker(newTestDB(t), locker.files, 0, nil)
	lease, err := other.Acquire(ctx, reconcile.KindAudio)
	require.NoError(t, err)
	assert.NoError(t, lease.Release(ctx, nil))
}

func TestTaskLocker_ExpiresStaleRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	stale := models.Task{TaskType: TaskType, Status: models.TaskRunning, StartedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, db.Create(&stale).Error)

	locker := NewTaskLocker(db, nil, 12*time.Hour, nil)
	lease, err := locker.Acquire(ctx, reconcile.KindAudio)
	require.NoError(t, err)

	old := loadTask(t, locker, stale.ID)
	assert.Equal(t, models.TaskFailed, old.Status)
	assert.Equal(t, "abandoned", old.Message)
	assert.NoError(t, lease.Release(ctx, nil))
}
