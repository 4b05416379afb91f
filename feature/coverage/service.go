package coverage

import (
	"context"
	"fmt"
	"time"

	"record-sync/core/reconcile"
	"record-sync/core/timeline"

	"go.uber.org/zap"
)

// Span is a period in a report.
type Span struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Seconds float64   `json:"seconds"`
	// Actionable is set on gaps long enough for a sync run to search for.
	Actionable bool `json:"actionable,omitempty"`
}

// StreamReport is the coverage of one stream over the window.
type StreamReport struct {
	StreamID       int     `json:"stream_id"`
	Name           string  `json:"name"`
	Covered        []Span  `json:"covered"`
	Gaps           []Span  `json:"gaps"`
	CoveredSeconds float64 `json:"covered_seconds"`
	Ratio          float64 `json:"ratio"`
	WeakRecords    int     `json:"weak_records"`
}

// Report is the coverage of every stream of a kind over a window.
type Report struct {
	Kind    reconcile.Kind `json:"stream_type"`
	Start   time.Time      `json:"start"`
	End     time.Time      `json:"end"`
	Streams []StreamReport `json:"streams"`
}

// Service computes coverage reports from the local records without changing them.
type Service struct {
	streams reconcile.StreamRegistry
	local   reconcile.LocalRepository
	policy  reconcile.Policy
	logger  *zap.Logger
}

// NewService creates a coverage service.
func NewService(streams reconcile.StreamRegistry, local reconcile.LocalRepository, policy reconcile.Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{streams: streams, local: local, policy: policy, logger: logger}
}

// Report computes coverage and gaps for streams of kind in [start, end). A negative
// streamID reports every enabled stream.
func (s *Service) Report(ctx context.Context, kind reconcile.Kind, streamID int, start, end time.Time) (*Report, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: window end %s is not after start %s", reconcile.ErrValidation, end, start)
	}

	streams, err := s.streams.ListStreams(ctx, kind, streamID)
	if err != nil {
		return nil, err
	}
	if streamID >= 0 && len(streams) == 0 {
		return nil, fmt.Errorf("%w: %s stream %d not found or disabled", reconcile.ErrValidation, kind, streamID)
	}

	report := &Report{Kind: kind, Start: start, End: end, Streams: make([]StreamReport, 0, len(streams))}
	for _, stream := range streams {
		sr, err := s.stream(ctx, kind, stream, start, end)
		if err != nil {
			return nil, err
		}
		report.Streams = append(report.Streams, sr)
	}

	s.logger.Debug("Coverage report built",
		zap.String("stream_type", string(kind)),
		zap.Int("streams", len(report.Streams)))
	return report, nil
}

func (s *Service) stream(ctx context.Context, kind reconcile.Kind, stream reconcile.Stream, start, end time.Time) (StreamReport, error) {
	records, err := s.local.ApprovedRecords(ctx, stream.ID, start.Add(-s.policy.CoverageLookback), end)
	if err != nil {
		return StreamReport{}, err
	}

	periods := make([]timeline.Period, 0, len(records))
	weak := 0
	for _, r := range records {
		periods = append(periods, r.Period())
		if r.StartedAt.After(start) && s.policy.IsWeak(r) {
			weak++
		}
	}
	merged := timeline.Merge(periods)
	covered := timeline.Clip(merged, start, end)

	sr := StreamReport{
		StreamID:       stream.ID,
		Name:           stream.Name,
		Covered:        make([]Span, 0, len(covered)),
		Gaps:           []Span{},
		CoveredSeconds: covered.Duration().Seconds(),
		Ratio:          float64(covered.Duration()) / float64(end.Sub(start)),
		WeakRecords:    weak,
	}
	for _, p := range covered {
		sr.Covered = append(sr.Covered, Span{Start: p.Start, End: p.End, Seconds: p.Duration().Seconds()})
	}
	for _, g := range timeline.Gaps(merged, stream.ID, start, end) {
		sr.Gaps = append(sr.Gaps, Span{
			Start:      g.Start,
			End:        g.End,
			Seconds:    g.Duration().Seconds(),
			Actionable: g.Duration() >= s.policy.MinGap,
		})
	}
	return sr, nil
}
