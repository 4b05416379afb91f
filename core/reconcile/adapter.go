package reconcile

import (
	"context"
	"time"
)

// StreamRegistry lists the streams a run iterates over.
type StreamRegistry interface {
	// ListStreams returns enabled streams of the given kind. A non-negative streamID
	// restricts the result to that stream.
	ListStreams(ctx context.Context, kind Kind, streamID int) ([]Stream, error)
}

// NodeSettings exposes the node-level parameters a run depends on.
type NodeSettings interface {
	// LocalServerID returns the id of the server the run executes on.
	LocalServerID(ctx context.Context) (SourceID, error)
	// SourcePriority returns the node-wide server order for the kind. An empty
	// result means the parameter is not configured.
	SourcePriority(ctx context.Context, kind Kind) ([]SourceID, error)
	// ProcessingEnabled reports whether the node records and processes the kind.
	ProcessingEnabled(ctx context.Context, kind Kind) (bool, error)
}

// RecordFilter selects local records for a stream set and window.
type RecordFilter struct {
	Kind Kind
	// StreamIDs restricts the query. An empty list matches nothing.
	StreamIDs []int
	// After and Before bound started_at exclusively.
	After  time.Time
	Before time.Time
	// MaxDuration and MinRate describe a weak record: duration below MaxDuration
	// minutes or rate below MinRate. Ignored when zero.
	MaxDuration float64
	MinRate     float64
}

// ImportRequest carries everything needed to persist one imported record.
type ImportRequest struct {
	// Record is the remote record; its ID is the remote id.
	Record Record
	Source SourceID
	// Supersede lists local record ids whose approval is revoked in the same transaction.
	Supersede []int
}

// LocalRepository is the node's own record store.
type LocalRepository interface {
	// WeakRecords returns approved records matching the weak-record filter.
	WeakRecords(ctx context.Context, filter RecordFilter) ([]Record, error)
	// ApprovedRecords returns approved records of one stream started inside (after, before).
	ApprovedRecords(ctx context.Context, streamID int, after, before time.Time) ([]Record, error)
	// ImportedRecords returns local imports that are approved or checked.
	ImportedRecords(ctx context.Context, filter RecordFilter) ([]Record, error)
	// IsImported reports whether a remote record was already imported.
	IsImported(ctx context.Context, source SourceID, remoteID int) (bool, error)
	// HasEquivalent reports whether an approved local record matches rec within tolerances.
	HasEquivalent(ctx context.Context, rec Record, tolerance time.Duration, rateTolerance float64) (bool, error)
	// CoveredRecords returns approved local records inside rec's range widened by tolerance.
	CoveredRecords(ctx context.Context, rec Record, tolerance time.Duration) ([]int, error)
	// Import inserts the record, revokes the superseded ones and disables their results
	// atomically. It returns the new local id.
	Import(ctx context.Context, req ImportRequest) (int, error)
}

// Source is a read-only handle on a remote server's records.
type Source interface {
	ID() SourceID
	// Candidates returns finished records matching the query, ordered by duration desc.
	Candidates(ctx context.Context, query CandidateQuery) ([]Record, error)
	// AnyRecords returns finished records started inside the query window.
	AnyRecords(ctx context.Context, query AnyQuery) ([]Record, error)
}

// SourceRegistry resolves server ids to record handles and blob locations.
type SourceRegistry interface {
	Source(ctx context.Context, id SourceID) (Source, error)
	// PathPrefix returns the blob root of a server, the local one included.
	PathPrefix(id SourceID) (string, error)
}

// Transfer copies every blob whose name starts with the stem of srcPath into dstDir
// without overwriting existing files.
type Transfer interface {
	Copy(ctx context.Context, srcPath, dstDir string) error
}

// Lease is a held run lock.
type Lease interface {
	// TaskID identifies the run in the task table; -1 when untracked.
	TaskID() int
	// Progress publishes the completion percentage.
	Progress(ctx context.Context, percent float64) error
	// Release frees the lock and records the final state of the run.
	Release(ctx context.Context, runErr error) error
}

// Locker grants exclusive run leases.
type Locker interface {
	// Acquire returns ErrAlreadyRunning when another run holds the lock.
	Acquire(ctx context.Context, kind Kind) (Lease, error)
}

// Observer receives progress and per-item reports.
type Observer interface {
	Progress(percent float64)
	Item(report ItemReport)
	Finished(summary Summary)
}
