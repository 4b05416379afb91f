package records

import (
	"context"
	"testing"
	"time"

	"record-sync/core/reconcile"
	"record-sync/feature/records/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func audioFilter(after, before time.Time, streams ...int) reconcile.RecordFilter {
	return reconcile.RecordFilter{Kind: reconcile.KindAudio, StreamIDs: streams, After: after, Before: before}
}

func ids(recs []reconcile.Record) []int {
	out := make([]int, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestRepository_ListStreams(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create([]models.Stream{
		{ID: 7, Name: "Radio 7", Enabled: true, StreamType: 1, ServerImportOrder: "3,2"},
		{ID: 8, Name: "Radio 8", Enabled: false, StreamType: 1},
		{ID: 9, Name: "TV 9", Enabled: true, StreamType: 2},
	}).Error)
	repo := NewRepository(db)
	ctx := context.Background()

	streams, err := repo.ListStreams(ctx, reconcile.KindAudio, -1)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, "Radio 7", streams[0].Name)
	assert.Equal(t, []reconcile.SourceID{3, 2}, streams[0].SourceOrder)

	streams, err = repo.ListStreams(ctx, reconcile.KindVideo, 9)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, reconcile.KindVideo, streams[0].Kind)

	streams, err = repo.ListStreams(ctx, reconcile.KindAudio, 9)
	require.NoError(t, err)
	assert.Empty(t, streams)

}

// TestRepository_ListStreams_MalformedOrder tests that a bad import order only affects its own stream.
func TestRepository_ListStreams_MalformedOrder(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create([]models.Stream{
		{ID: 7, Name: "Radio 7", Enabled: true, StreamType: 1, ServerImportOrder: "3,2"},
		{ID: 10, Name: "Radio 10", Enabled: true, StreamType: 1, ServerImportOrder: "2,x"},
		{ID: 11, Name: "Radio 11", Enabled: true, StreamType: 1, ServerImportOrder: "y"},
	}).Error)

	core, logs := observer.New(zapcore.WarnLevel)
	repo := NewRepository(db).WithLogger(zap.New(core))

	streams, err := repo.ListStreams(context.Background(), reconcile.KindAudio, -1)
	require.NoError(t, err)
	require.Len(t, streams, 3)
	assert.Equal(t, []reconcile.SourceID{3, 2}, streams[0].SourceOrder)
	assert.Equal(t, []reconcile.SourceID{2}, streams[1].SourceOrder)
	assert.Empty(t, streams[2].SourceOrder, "falls back to the node-wide order")

	entries := logs.FilterMessageSnippet("server_import_order").All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(10), entries[0].ContextMap()["stream_id"])
	assert.Equal(t, int64(11), entries[1].ContextMap()["stream_id"])
}

func TestRepository_WeakRecords(t *testing.T) {
	db := newTestDB(t)
	short := row(at(10, 0), 30, 1)
	full := row(at(11, 0), 61, 1)
	lowRate := row(at(12, 0), 61, 0.8)
	revoked := row(at(13, 0), 30, 1)
	revoked.IsRecordApproved = false
	onBoundary := row(at(9, 0), 30, 1)
	otherStream := row(at(10, 30), 30, 1)
	otherStream.StreamID = 8
	insert(t, db, &short, &full, &lowRate, &revoked, &onBoundary, &otherStream)

	filter := audioFilter(at(9, 0), at(14, 0), 7)
	filter.MaxDuration, filter.MinRate = 61, 1

	recs, err := NewRepository(db).WeakRecords(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, []int{short.ID, lowRate.ID}, ids(recs))
	assert.Equal(t, 0.8, recs[1].Rate)
	assert.True(t, recs[1].Approved)

	filter.StreamIDs = nil
	recs, err = NewRepository(db).WeakRecords(context.Background(), filter)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRepository_Imports(t *testing.T) {
	db := newTestDB(t)
	approvedImport := row(at(10, 30), 61, 1)
	approvedImport.ImportedSourceID, approvedImport.ImportedRecordID = 2, 100
	checkedImport := row(at(11, 30), 61, 1)
	checkedImport.ImportedSourceID, checkedImport.ImportedRecordID = 2, 101
	checkedImport.IsRecordApproved, checkedImport.IsRecordChecked = false, true
	dropped := row(at(12, 30), 61, 1)
	dropped.ImportedSourceID, dropped.ImportedRecordID = 2, 102
	dropped.IsRecordApproved = false
	local := row(at(13, 0), 61, 1)
	insert(t, db, &approvedImport, &checkedImport, &dropped, &local)

	repo := NewRepository(db)
	ctx := context.Background()

	recs, err := repo.ImportedRecords(ctx, audioFilter(at(9, 0), at(15, 0), 7))
	require.NoError(t, err)
	assert.Equal(t, []int{approvedImport.ID, checkedImport.ID}, ids(recs))
	assert.Equal(t, reconcile.SourceID(2), recs[0].ImportedSourceID)
	assert.Equal(t, 100, recs[0].ImportedRecordID)

	tests := []struct {
		source   reconcile.SourceID
		remoteID int
		want     bool
	}{
		{2, 100, true},
		{2, 101, false},
		{3, 100, false},
	}
	for _, tt := range tests {
		got, err := repo.IsImported(ctx, tt.source, tt.remoteID)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%d/%d", tt.source, tt.remoteID)
	}
}

func TestRepository_EquivalentAndCovered(t *testing.T) {
	db := newTestDB(t)
	short := row(at(10, 0), 30, 1)
	full := row(at(11, 0), 61, 1)
	imported := row(at(10, 30), 61, 1)
	imported.ImportedSourceID, imported.ImportedRecordID = 3, 200
	later := row(at(12, 0), 61, 1)
	insert(t, db, &short, &full, &imported, &later)

	repo := NewRepository(db)
	ctx := context.Background()

	candidate := reconcile.Record{StreamID: 7, StartedAt: at(11, 0).Add(5 * time.Second), EndedAt: at(12, 1).Add(5 * time.Second), Rate: 0.995}
	ok, err := repo.HasEquivalent(ctx, candidate, 10*time.Second, 0.01)
	require.NoError(t, err)
	assert.True(t, ok)

	candidate.Rate = 0.95
	ok, err = repo.HasEquivalent(ctx, candidate, 10*time.Second, 0.01)
	require.NoError(t, err)
	assert.False(t, ok)

	covered, err := repo.CoveredRecords(ctx, reconcile.Record{StreamID: 7, StartedAt: at(10, 0), EndedAt: at(12, 1)}, 15*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []int{short.ID, full.ID, imported.ID}, covered)
}

func TestRepository_ApprovedRecords(t *testing.T) {
	db := newTestDB(t)
	first := row(at(9, 30), 61, 1)
	second := row(at(10, 45), 61, 1)
	revoked := row(at(11, 0), 61, 1)
	revoked.IsRecordApproved = false
	insert(t, db, &second, &first, &revoked)

	recs, err := NewRepository(db).ApprovedRecords(context.Background(), 7, at(8, 59), at(12, 0))
	require.NoError(t, err)
	assert.Equal(t, []int{first.ID, second.ID}, ids(recs))
}

func TestRepository_Import(t *testing.T) {
	db := newTestDB(t)
	weak := row(at(10, 0), 30, 0.5)
	keep := row(at(12, 0), 61, 1)
	insert(t, db, &weak, &keep)
	require.NoError(t, db.Create([]models.Result{
		{RecordID: weak.ID, IsApproved: true, ActiveStatus: 1},
		{RecordID: keep.ID, IsApproved: true, ActiveStatus: 1},
	}).Error)

	remote := row(at(10, 0), 61, 1)
	remote.ID = 900
	remote.SamplingRate = 44100

	id, err := NewRepository(db).Import(context.Background(), reconcile.ImportRequest{
		Record:    remote.ToDomain(),
		Source:    3,
		Supersede: []int{weak.ID},
	})
	require.NoError(t, err)
	require.Positive(t, id)

	var inserted models.Record
	require.NoError(t, db.First(&inserted, id).Error)
	assert.True(t, inserted.IsRecordApproved)
	assert.False(t, inserted.Processed)
	assert.Equal(t, 900, inserted.ImportedRecordID)
	assert.Equal(t, 3, inserted.ImportedSourceID)
	assert.Equal(t, 44100, inserted.SamplingRate)
	assert.Equal(t, remote.Path, inserted.Path)

	var revoked, kept models.Record
	require.NoError(t, db.First(&revoked, weak.ID).Error)
	require.NoError(t, db.First(&kept, keep.ID).Error)
	assert.False(t, revoked.IsRecordApproved)
	assert.True(t, kept.IsRecordApproved)

	var results []models.Result
	require.NoError(t, db.Order("record_id").Find(&results).Error)
	require.Len(t, results, 2)
	assert.False(t, results[0].IsApproved)
	assert.Equal(t, models.ResultStatusSuperseded, results[0].ActiveStatus)
	assert.True(t, results[1].IsApproved)
}

func TestRepository_ImportRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `records`").WillReturnResult(sqlmockResult(41))
	mock.ExpectExec("UPDATE `records` SET `is_record_approved`=").WillReturnError(errBoom)
	mock.ExpectRollback()

	_, err := NewRepository(db).Import(context.Background(), reconcile.ImportRequest{
		Record:    reconcile.Record{ID: 900, StreamID: 7, StartedAt: at(10, 0), EndedAt: at(11, 1)},
		Source:    3,
		Supersede: []int{5},
	})
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorContains(t, err, "revoke approval")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ImportRejectsLocalRecords(t *testing.T) {
	_, err := NewRepository(newTestDB(t)).Import(context.Background(), reconcile.ImportRequest{
		Record: reconcile.Record{StreamID: 7},
		Source: 3,
	})
	assert.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, EnsureSchema(db))

	require.NoError(t, db.Exec("DROP TABLE results").Error)
	require.NoError(t, db.Exec("CREATE TABLE results (id INTEGER PRIMARY KEY, record_id INTEGER)").Error)

	err := EnsureSchema(db)
	assert.ErrorContains(t, err, "table results is missing columns [is_approved active_status]")
}
