package reconcile

import (
	"context"
	"fmt"
	"sort"

	"record-sync/core/timeline"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Selector queries remote sources for a target and picks the best candidate.
type Selector struct {
	sources SourceRegistry
	tracker *ImportTracker
	policy  Policy
	logger  *zap.Logger
}

// NewSelector creates a selector that skips anything known to tracker.
func NewSelector(sources SourceRegistry, tracker *ImportTracker, policy Policy, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{sources: sources, tracker: tracker, policy: policy, logger: logger}
}

// Query builds the per-source query for a target.
func (s *Selector) Query(target Target) CandidateQuery {
	q := CandidateQuery{
		Mode:      target.Mode,
		StreamID:  target.StreamID,
		Kind:      target.Kind,
		Start:     target.Period.Start,
		End:       target.Period.End,
		NotBefore: timeline.BeginOfHour(target.Period.Start),
	}
	if target.Mode == ModeUpgrade {
		q.Tolerance = s.policy.MatchTolerance
	}
	return q
}

// SelectBest queries all sources of the target concurrently and ranks the answers in
// priority order. A later source only wins with a strictly higher score. Failing sources
// are logged and skipped. Ranked candidates already present in the persisted import
// index are passed over in favor of the next one.
func (s *Selector) SelectBest(ctx context.Context, target Target) (Selection, error) {
	if target.Mode == ModeUpgrade && target.Local == nil {
		return Selection{}, fmt.Errorf("%w: upgrade target without local record", ErrValidation)
	}

	query := s.Query(target)
	results := make([][]Record, len(target.Sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range target.Sources {
		g.Go(func() error {
			records, err := s.fetch(gctx, id, query)
			if err != nil {
				s.logger.Warn("Skipping source",
					zap.Int("source", int(id)),
					zap.Int("stream_id", target.StreamID),
					zap.String("mode", target.Mode.String()),
					zap.Error(err))
				return nil
			}
			results[i] = records
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Selection{}, err
	}

	var (
		sel    Selection
		ranked []Candidate
	)
	for i, id := range target.Sources {
		for _, rec := range results[i] {
			sel.Considered++
			if s.tracker != nil && s.tracker.Contains(id, rec.ID) {
				sel.Redundant = true
				continue
			}
			if target.Mode == ModeUpgrade && !s.policy.IsBetter(rec, *target.Local) {
				continue
			}
			score := Score(rec, target.Period)
			if score <= 0 {
				continue
			}
			ranked = append(ranked, Candidate{Source: id, Record: rec, Score: score})
		}
	}

	// Stable order keeps the earlier source first among equal scores.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	for i := range ranked {
		cand := ranked[i]
		if s.tracker != nil {
			imported, err := s.tracker.AlreadyImported(ctx, cand.Source, cand.Record.ID)
			if err != nil {
				s.logger.Warn("Import lookup failed, keeping candidate",
					zap.Int("source", int(cand.Source)),
					zap.Int("remote_id", cand.Record.ID),
					zap.Error(err))
			} else if imported {
				sel.Redundant = true
				continue
			}
		}
		sel.Best = &cand
		break
	}
	return sel, nil
}

func (s *Selector) fetch(ctx context.Context, id SourceID, query CandidateQuery) ([]Record, error) {
	src, err := s.sources.Source(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve source %d: %w", ErrSourceQuery, id, err)
	}
	records, err := src.Candidates(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: source %d: %w", ErrSourceQuery, id, err)
	}
	return records, nil
}
