package records

import (
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"record-sync/core/database"
	"record-sync/feature/records/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// newTestDB opens an in-memory database with the recording schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Record{}, &models.Stream{}, &models.Result{}, &models.Parameter{}, &models.Task{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// setupMockDB creates a gorm handle on sqlmock with the mysql dialect.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      conn,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 10, hour, minute, 0, 0, time.UTC)
}

// row builds an approved, fully converted audio record of stream 7.
func row(start time.Time, minutes, rate float64) models.Record {
	return models.Record{
		StreamID:         7,
		Path:             "./recorded/radio7/" + start.Format("2006-01-02_15-04") + ".mp3",
		StartedAt:        start,
		EndedAt:          start.Add(time.Duration(minutes * float64(time.Minute))),
		Duration:         minutes,
		DurationRecorded: minutes * rate,
		RecordRate:       rate,
		StreamType:       1,
		IsRecordApproved: true,
		ConvertedToMP3:   true,
	}
}

func insert(t *testing.T, db *gorm.DB, rows ...*models.Record) {
	t.Helper()
	for _, r := range rows {
		require.NoError(t, db.Create(r).Error)
	}
}

var errBoom = errors.New("boom")

func sqlmockResult(id int64) driver.Result {
	return sqlmock.NewResult(id, 1)
}
