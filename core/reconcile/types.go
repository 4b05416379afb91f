package reconcile

import (
	"fmt"
	"time"

	"record-sync/core/timeline"
)

// Kind is the media kind of a stream.
type Kind string

const (
	// KindAudio marks radio/audio streams.
	KindAudio Kind = "audio"
	// KindVideo marks video streams.
	KindVideo Kind = "video"
)

// ParseKind validates a media kind given on the command line or in a request.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAudio, KindVideo:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: stream type must be `audio` or `video`, got %q", ErrValidation, s)
	}
}

// Code returns the numeric stream_type stored in the streams and records tables.
func (k Kind) Code() int {
	switch k {
	case KindAudio:
		return 1
	case KindVideo:
		return 2
	default:
		return 0
	}
}

// KindFromCode maps a stored stream_type back to a Kind.
func KindFromCode(code int) Kind {
	switch code {
	case 1:
		return KindAudio
	case 2:
		return KindVideo
	default:
		return ""
	}
}

// SourceID identifies a recording server.
type SourceID int

// Stream is a logical feed recorded by every server.
type Stream struct {
	ID      int
	Name    string
	Kind    Kind
	Enabled bool
	// SourceOrder overrides the node-wide source priority when non-empty.
	SourceOrder []SourceID
}

// MediaAttributes are carried verbatim from a remote record onto its local import.
type MediaAttributes struct {
	StreamType   int
	URLIndex     int
	SamplingRate int
	FrameWidth   int
	Shape        string
	FPS          float64
	FrameStep    float64
	VShape       string
}

// Record is one persisted recording segment.
type Record struct {
	ID       int
	StreamID int
	Path     string

	StartedAt time.Time
	EndedAt   time.Time
	// Duration is the nominal length in minutes.
	Duration float64
	// DurationRecorded is the captured length in minutes.
	DurationRecorded float64
	// Rate is the fraction of Duration actually captured, in [0,1].
	Rate float64

	Approved   bool
	Checked    bool
	Deleted    bool
	ReturnCode int

	ConvertedToMP3 bool
	ConvertedToLow bool
	Preprocessed   bool

	ImportedSourceID SourceID
	ImportedRecordID int

	Media MediaAttributes
}

// Period returns the record's time range tagged with its stream.
func (r Record) Period() timeline.Period {
	return timeline.Period{Start: r.StartedAt, End: r.EndedAt, StreamID: r.StreamID}
}

// EffectiveEnd is the earlier of ended_at and started_at plus the nominal duration.
func (r Record) EffectiveEnd() time.Time {
	nominal := r.StartedAt.Add(time.Duration(r.Duration * float64(time.Minute)))
	if nominal.Before(r.EndedAt) {
		return nominal
	}
	return r.EndedAt
}

// IsImport reports whether the record was copied from another server.
func (r Record) IsImport() bool {
	return r.ImportedRecordID > 0
}

func (r Record) String() string {
	return fmt.Sprintf("#%d %s %.0fmin rate=%.2f %s", r.ID, r.Path, r.Duration, r.Rate, r.Period())
}

// Mode selects how candidates are matched against a target.
type Mode int

const (
	// ModeGap fills a period with no approved local coverage.
	ModeGap Mode = iota
	// ModeUpgrade replaces a weak local record with a better remote copy.
	ModeUpgrade
)

func (m Mode) String() string {
	if m == ModeUpgrade {
		return "upgrade"
	}
	return "gap"
}

// Target is one unit of work for the CandidateSelector.
type Target struct {
	Mode     Mode
	StreamID int
	Kind     Kind
	Period   timeline.Period
	// Local is the weak record being upgraded. Nil in ModeGap.
	Local *Record
	// Sources is the priority-ordered list of servers to consult.
	Sources []SourceID
}

// CandidateQuery is what a source is asked for a single target.
type CandidateQuery struct {
	Mode     Mode
	StreamID int
	Kind     Kind
	Start    time.Time
	End      time.Time
	// NotBefore bounds candidate start times to the target's hour.
	NotBefore time.Time
	// Tolerance is the allowed start/end drift in ModeUpgrade.
	Tolerance time.Duration
}

// AnyQuery asks a source for every finished record inside a window (add mode).
type AnyQuery struct {
	StreamID int
	Kind     Kind
	After    time.Time
	Before   time.Time
}

// Candidate is a scored remote record.
type Candidate struct {
	Source SourceID
	Record Record
	Score  float64
}

// Selection is the result of SelectBest.
type Selection struct {
	// Best is nil when no source produced a positive score.
	Best *Candidate
	// Redundant is set when a candidate was skipped because it is already imported.
	Redundant bool
	// Considered counts candidates returned by all sources.
	Considered int
}

// Outcome is the terminal classification of a processed item.
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeNoNeed    Outcome = "no_need"
	OutcomeNoFind    Outcome = "no_find"
	OutcomeNoSuccess Outcome = "no_success"
)

// ItemKind tells which pass produced an item.
type ItemKind string

const (
	ItemWeakRecord ItemKind = "weak_record"
	ItemGap        ItemKind = "gap"
)

// ItemReport describes how one weak record or gap was resolved.
type ItemReport struct {
	Kind     ItemKind
	StreamID int
	Period   timeline.Period
	// LocalRecordID is set for weak records.
	LocalRecordID int
	Outcome       Outcome
	Reason        string

	Source         SourceID
	RemoteRecordID int
	Score          float64
	// ImportedID is the id of the inserted local record.
	ImportedID int
	Superseded []int
	// AddMode marks items resolved by the any-source fallback.
	AddMode bool
	Err     error
}

// Options control a reconciliation run.
type Options struct {
	Start time.Time
	End   time.Time
	Kind  Kind
	// StreamID restricts the run to one stream; negative means all enabled streams.
	StreamID int
	// Sync applies transfers and repository writes. Without it the run only reports.
	Sync bool
	// AddMode enables the any-source fallback for unresolved gaps.
	AddMode bool
	// NoTask skips run locking.
	NoTask bool
}

// Validate rejects malformed windows before any processing begins.
func (o Options) Validate() error {
	if o.Start.IsZero() || o.End.IsZero() {
		return fmt.Errorf("%w: sync window start and end are required", ErrValidation)
	}
	if !o.End.After(o.Start) {
		return fmt.Errorf("%w: sync window end %s must be after start %s", ErrValidation,
			o.End.Format(time.DateTime), o.Start.Format(time.DateTime))
	}
	if _, err := ParseKind(string(o.Kind)); err != nil {
		return err
	}
	return nil
}

// Summary aggregates outcome counts for a run.
type Summary struct {
	RunID  string
	TaskID int
	NodeID SourceID
	Kind   Kind
	Start  time.Time
	End    time.Time
	Sync   bool

	WeakRecords int
	Gaps        int
	Total       int
	Updated     int
	NoNeed      int
	NoFind      int
	NoSuccess   int

	StartedAt  time.Time
	FinishedAt time.Time
}

// Add counts one outcome.
func (s *Summary) Add(o Outcome) {
	s.Total++
	switch o {
	case OutcomeUpdated:
		s.Updated++
	case OutcomeNoNeed:
		s.NoNeed++
	case OutcomeNoFind:
		s.NoFind++
	case OutcomeNoSuccess:
		s.NoSuccess++
	}
}

// Duration returns the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
