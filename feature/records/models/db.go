package models

import (
	"time"

	"record-sync/core/reconcile"
	"record-sync/core/utils"
)

// Record represents the 'records' table shared by every recording server.
type Record struct {
	ID               int       `gorm:"column:id;primaryKey;autoIncrement"`
	StreamID         int       `gorm:"column:stream_id;index"`
	Path             string    `gorm:"column:path"`
	StartedAt        time.Time `gorm:"column:started_at;index"`
	EndedAt          time.Time `gorm:"column:ended_at"`
	Duration         float64   `gorm:"column:duration"`          // minutes
	DurationRecorded float64   `gorm:"column:duration_recorded"` // minutes
	ReturnCode       int       `gorm:"column:return_code"`
	StreamType       int       `gorm:"column:stream_type"` // 1 audio, 2 video
	URLIndex         int       `gorm:"column:url_index"`

	IsRecordApproved bool    `gorm:"column:is_record_approved"`
	IsRecordChecked  bool    `gorm:"column:is_record_checked"`
	IsDeleted        bool    `gorm:"column:is_deleted"`
	Processed        bool    `gorm:"column:processed"`
	ConvertedToMP3   bool    `gorm:"column:converted_to_mp3"`
	ConvertedToLow   bool    `gorm:"column:converted_to_low"`
	IsPreprocessed   bool    `gorm:"column:is_preprocessed"`
	RecordRate       float64 `gorm:"column:record_rate"`

	ImportedRecordID int `gorm:"column:imported_record_id"`
	ImportedSourceID int `gorm:"column:imported_source_id"`

	SamplingRate int     `gorm:"column:sampling_rate"`
	FrameWidth   int     `gorm:"column:frame_width"`
	Shape        string  `gorm:"column:shape"`
	FPS          float64 `gorm:"column:fps"`
	FrameStep    float64 `gorm:"column:frame_step"`
	VShape       string  `gorm:"column:v_shape"`
}

// TableName overrides the table name.
func (Record) TableName() string {
	return "records"
}

// RecordColumns are the columns the sync reads and writes.
var RecordColumns = []string{
	"id", "stream_id", "path", "started_at", "ended_at", "duration", "duration_recorded",
	"return_code", "stream_type", "url_index", "is_record_approved", "is_record_checked",
	"is_deleted", "processed", "converted_to_mp3", "converted_to_low", "is_preprocessed",
	"record_rate", "imported_record_id", "imported_source_id", "sampling_rate",
	"frame_width", "shape", "fps", "frame_step", "v_shape",
}

// ToDomain converts the row to a reconcile record.
func (r Record) ToDomain() reconcile.Record {
	return reconcile.Record{
		ID:               r.ID,
		StreamID:         r.StreamID,
		Path:             r.Path,
		StartedAt:        r.StartedAt,
		EndedAt:          r.EndedAt,
		Duration:         r.Duration,
		DurationRecorded: r.DurationRecorded,
		Rate:             r.RecordRate,
		Approved:         r.IsRecordApproved,
		Checked:          r.IsRecordChecked,
		Deleted:          r.IsDeleted,
		ReturnCode:       r.ReturnCode,
		ConvertedToMP3:   r.ConvertedToMP3,
		ConvertedToLow:   r.ConvertedToLow,
		Preprocessed:     r.IsPreprocessed,
		ImportedSourceID: reconcile.SourceID(r.ImportedSourceID),
		ImportedRecordID: r.ImportedRecordID,
		Media: reconcile.MediaAttributes{
			StreamType:   r.StreamType,
			URLIndex:     r.URLIndex,
			SamplingRate: r.SamplingRate,
			FrameWidth:   r.FrameWidth,
			Shape:        r.Shape,
			FPS:          r.FPS,
			FrameStep:    r.FrameStep,
			VShape:       r.VShape,
		},
	}
}

// NewImport builds the local row for a record copied from source. The row is
// approved, not yet processed and stamped with its origin.
func NewImport(rec reconcile.Record, source reconcile.SourceID) Record {
	return Record{
		StreamID:         rec.StreamID,
		Path:             rec.Path,
		StartedAt:        rec.StartedAt,
		EndedAt:          rec.EndedAt,
		Duration:         rec.Duration,
		DurationRecorded: rec.DurationRecorded,
		ReturnCode:       rec.ReturnCode,
		StreamType:       rec.Media.StreamType,
		URLIndex:         rec.Media.URLIndex,
		IsRecordApproved: true,
		Processed:        false,
		ConvertedToMP3:   rec.ConvertedToMP3,
		ConvertedToLow:   rec.ConvertedToLow,
		IsPreprocessed:   rec.Preprocessed,
		RecordRate:       rec.Rate,
		ImportedRecordID: rec.ID,
		ImportedSourceID: int(source),
		SamplingRate:     rec.Media.SamplingRate,
		FrameWidth:       rec.Media.FrameWidth,
		Shape:            rec.Media.Shape,
		FPS:              rec.Media.FPS,
		FrameStep:        rec.Media.FrameStep,
		VShape:           rec.Media.VShape,
	}
}

// Stream represents the 'streams' table.
type Stream struct {
	ID                int    `gorm:"column:id;primaryKey"`
	Name              string `gorm:"column:name"`
	Enabled           bool   `gorm:"column:enabled"`
	StreamType        int    `gorm:"column:stream_type"`
	ServerImportOrder string `gorm:"column:server_import_order"` // comma separated server ids
}

// TableName overrides the table name.
func (Stream) TableName() string {
	return "streams"
}

// ToDomain converts the row. Malformed entries of the import order are dropped and
// reported through the error; the stream is returned with the valid ids either way.
func (s Stream) ToDomain() (reconcile.Stream, error) {
	ids, err := utils.ParseIDList(s.ServerImportOrder)
	order := make([]reconcile.SourceID, len(ids))
	for i, id := range ids {
		order[i] = reconcile.SourceID(id)
	}
	return reconcile.Stream{
		ID:          s.ID,
		Name:        s.Name,
		Kind:        reconcile.KindFromCode(s.StreamType),
		Enabled:     s.Enabled,
		SourceOrder: order,
	}, err
}

// Result represents the 'results' table of analysis rows derived from a record.
type Result struct {
	ID           int  `gorm:"column:id;primaryKey;autoIncrement"`
	RecordID     int  `gorm:"column:record_id;index"`
	IsApproved   bool `gorm:"column:is_approved"`
	ActiveStatus int  `gorm:"column:active_status"`
}

// TableName overrides the table name.
func (Result) TableName() string {
	return "results"
}

// ResultStatusSuperseded marks results whose record lost its approval to an import.
const ResultStatusSuperseded = 7

// Parameter represents the 'parameters' key/value table.
type Parameter struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value string `gorm:"column:value"`
}

// TableName overrides the table name.
func (Parameter) TableName() string {
	return "parameters"
}

// Task states.
const (
	TaskRunning  = "running"
	TaskFinished = "finished"
	TaskFailed   = "failed"
)

// Task represents the 'tasks' table used to track long running jobs.
type Task struct {
	ID                   int        `gorm:"column:id;primaryKey;autoIncrement"`
	TaskType             string     `gorm:"column:task_type;index"`
	Status               string     `gorm:"column:status"`
	CompletionPercentage float64    `gorm:"column:completion_percentage"`
	Message              string     `gorm:"column:message"`
	StartedAt            time.Time  `gorm:"column:started_at"`
	FinishedAt           *time.Time `gorm:"column:finished_at"`
}

// TableName overrides the table name.
func (Task) TableName() string {
	return "tasks"
}
