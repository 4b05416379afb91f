package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"record-sync/core/timeline"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Deps are the collaborators of an Engine.
type Deps struct {
	Streams  StreamRegistry
	Node     NodeSettings
	Local    LocalRepository
	Sources  SourceRegistry
	Transfer Transfer
	// Locker may be nil when every run is started with NoTask or without Sync.
	Locker   Locker
	Observer Observer
	Logger   *zap.Logger
}

// Engine runs reconciliation passes over a time window.
type Engine struct {
	streams  StreamRegistry
	node     NodeSettings
	local    LocalRepository
	sources  SourceRegistry
	transfer Transfer
	locker   Locker
	observer Observer
	policy   Policy
	logger   *zap.Logger

	now      func() time.Time
	newRunID func() string
}

// NewEngine validates deps and builds an engine.
func NewEngine(deps Deps, policy Policy) (*Engine, error) {
	switch {
	case deps.Streams == nil:
		return nil, errors.New("reconcile: stream registry is required")
	case deps.Node == nil:
		return nil, errors.New("reconcile: node settings are required")
	case deps.Local == nil:
		return nil, errors.New("reconcile: local repository is required")
	case deps.Sources == nil:
		return nil, errors.New("reconcile: source registry is required")
	case deps.Transfer == nil:
		return nil, errors.New("reconcile: transfer is required")
	}

	observer := deps.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		streams:  deps.Streams,
		node:     deps.Node,
		local:    deps.Local,
		sources:  deps.Sources,
		transfer: deps.Transfer,
		locker:   deps.Locker,
		observer: observer,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
	}, nil
}

// run is the mutable state of one Engine.Run call.
type run struct {
	id       string
	opts     Options
	nodeID   SourceID
	orders   map[int][]SourceID
	tracker  *ImportTracker
	selector *Selector
	lease    Lease
	logger   *zap.Logger
	observer Observer

	// superseded holds local ids whose approval was revoked during this run.
	superseded   map[int]struct{}
	lastProgress int
	summary      Summary
}

func (r *run) streamIDs() []int {
	ids := make([]int, 0, len(r.orders))
	for id := range r.orders {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (r *run) record(report ItemReport) {
	r.summary.Add(report.Outcome)
	r.observer.Item(report)
}

// progress publishes whole percentages and never goes backwards.
func (r *run) progress(ctx context.Context, percent float64) {
	p := int(percent)
	if p > 100 {
		p = 100
	}
	if p <= r.lastProgress {
		return
	}
	r.lastProgress = p
	r.observer.Progress(float64(p))
	if err := r.lease.Progress(ctx, float64(p)); err != nil {
		r.logger.Warn("Failed to publish progress", zap.Int("percent", p), zap.Error(err))
	}
}

// Run reconciles the window described by opts. Configuration, validation and lock errors
// abort before any item is processed. Once items are processed the summary is always
// returned, together with the context error when the run was interrupted.
func (e *Engine) Run(ctx context.Context, opts Options) (summary *Summary, err error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r, err := e.prepare(ctx, opts)
	if err != nil {
		return nil, err
	}

	lease, err := e.acquire(ctx, opts)
	if err != nil {
		return nil, err
	}
	r.lease = lease
	r.summary.TaskID = lease.TaskID()
	defer func() {
		if relErr := lease.Release(context.WithoutCancel(ctx), err); relErr != nil {
			r.logger.Warn("Failed to release run lock", zap.Error(relErr))
		}
	}()

	r.logger.Info("Records sync started",
		zap.Time("start", opts.Start),
		zap.Time("end", opts.End),
		zap.Int("streams", len(r.orders)),
		zap.Bool("sync", opts.Sync),
		zap.Bool("add_mode", opts.AddMode),
		zap.Int("task_id", lease.TaskID()))
	r.progress(ctx, 0)

	if err = e.loadImported(ctx, r); err != nil {
		return nil, err
	}

	weak, err := e.local.WeakRecords(ctx, RecordFilter{
		Kind:        opts.Kind,
		StreamIDs:   r.streamIDs(),
		After:       opts.Start,
		Before:      opts.End,
		MaxDuration: e.policy.WeakDuration,
		MinRate:     e.policy.WeakRate,
	})
	if err != nil {
		return nil, fmt.Errorf("load weak records: %w", err)
	}
	r.summary.WeakRecords = len(weak)

	if err = e.upgradePass(ctx, r, weak); err == nil {
		err = e.gapPass(ctx, r)
	}
	if err == nil {
		r.progress(ctx, 100)
	}

	r.summary.FinishedAt = e.now()
	e.observer.Finished(r.summary)
	return &r.summary, err
}

func (e *Engine) prepare(ctx context.Context, opts Options) (*run, error) {
	enabled, err := e.node.ProcessingEnabled(ctx, opts.Kind)
	if err != nil {
		return nil, fmt.Errorf("read %s processing flag: %w", opts.Kind, err)
	}
	if !enabled {
		return nil, fmt.Errorf("%w: this server does not process %s records", ErrConfiguration, opts.Kind)
	}

	nodeID, err := e.node.LocalServerID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read local server id: %w", err)
	}

	streams, err := e.streams.ListStreams(ctx, opts.Kind, opts.StreamID)
	if err != nil {
		return nil, fmt.Errorf("list %s streams: %w", opts.Kind, err)
	}
	if opts.StreamID >= 0 && len(streams) == 0 {
		return nil, fmt.Errorf("%w: %s stream %d not found or disabled", ErrValidation, opts.Kind, opts.StreamID)
	}

	orders, err := e.resolvePriority(ctx, opts.Kind, nodeID, streams)
	if err != nil {
		return nil, err
	}

	id := e.newRunID()
	logger := e.logger.With(zap.String("run_id", id), zap.String("stream_type", string(opts.Kind)))
	tracker := NewImportTracker(e.local)

	return &run{
		id:           id,
		opts:         opts,
		nodeID:       nodeID,
		orders:       orders,
		tracker:      tracker,
		selector:     NewSelector(e.sources, tracker, e.policy, logger),
		lease:        noLease{},
		logger:       logger,
		observer:     e.observer,
		superseded:   make(map[int]struct{}),
		lastProgress: -1,
		summary: Summary{
			RunID:     id,
			TaskID:    -1,
			NodeID:    nodeID,
			Kind:      opts.Kind,
			Start:     opts.Start,
			End:       opts.End,
			Sync:      opts.Sync,
			StartedAt: e.now(),
		},
	}, nil
}

// resolvePriority returns the source order per stream: the stream override, else the
// node-wide order. The local server is never a source.
func (e *Engine) resolvePriority(ctx context.Context, kind Kind, nodeID SourceID, streams []Stream) (map[int][]SourceID, error) {
	global, err := e.node.SourcePriority(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("read %s source priority: %w", kind, err)
	}

	orders := make(map[int][]SourceID, len(streams))
	for _, s := range streams {
		order := s.SourceOrder
		if len(order) == 0 {
			order = global
		}
		order = withoutSource(order, nodeID)
		if len(order) == 0 {
			e.logger.Warn("No source priority for stream, skipping",
				zap.Int("stream_id", s.ID), zap.String("stream", s.Name))
			continue
		}
		orders[s.ID] = order
	}

	if len(streams) > 0 && len(orders) == 0 {
		return nil, fmt.Errorf("%w: no source priority configured for %s records", ErrConfiguration, kind)
	}
	return orders, nil
}

func withoutSource(order []SourceID, id SourceID) []SourceID {
	out := make([]SourceID, 0, len(order))
	seen := make(map[SourceID]struct{}, len(order))
	for _, s := range order {
		if s == id {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (e *Engine) acquire(ctx context.Context, opts Options) (Lease, error) {
	if !opts.Sync || opts.NoTask {
		return noLease{}, nil
	}
	if e.locker == nil {
		return nil, fmt.Errorf("%w: run lock is not configured, use no_task to skip locking", ErrConfiguration)
	}
	lease, err := e.locker.Acquire(ctx, opts.Kind)
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// loadImported seeds the tracker with every import that the run can meet again.
func (e *Engine) loadImported(ctx context.Context, r *run) error {
	records, err := e.local.ImportedRecords(ctx, RecordFilter{
		Kind:      r.opts.Kind,
		StreamIDs: r.streamIDs(),
		After:     r.opts.Start.Add(-e.policy.CoverageLookback),
		Before:    r.opts.End.Add(time.Hour + e.policy.AddModeSlack),
	})
	if err != nil {
		return fmt.Errorf("load imported records: %w", err)
	}
	seeded := r.tracker.Seed(records)
	r.logger.Debug("Import index seeded", zap.Int("records", seeded), zap.Int("tracked", r.tracker.Len()))
	return nil
}

// upgradePass tries to replace every weak record and covers progress 0-50.
func (e *Engine) upgradePass(ctx context.Context, r *run, weak []Record) error {
	for i, rec := range weak {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.record(e.upgradeRecord(ctx, r, rec))
		r.progress(ctx, 50*float64(i+1)/float64(len(weak)))
	}
	r.progress(ctx, 50)
	return nil
}

func (e *Engine) upgradeRecord(ctx context.Context, r *run, rec Record) ItemReport {
	report := ItemReport{
		Kind:          ItemWeakRecord,
		StreamID:      rec.StreamID,
		Period:        rec.Period(),
		LocalRecordID: rec.ID,
	}
	if _, ok := r.superseded[rec.ID]; ok {
		report.Outcome = OutcomeNoNeed
		report.Reason = "superseded earlier in this run"
		return report
	}

	local := rec
	sel, err := r.selector.SelectBest(ctx, Target{
		Mode:     ModeUpgrade,
		StreamID: rec.StreamID,
		Kind:     r.opts.Kind,
		Period:   rec.Period(),
		Local:    &local,
		Sources:  r.orders[rec.StreamID],
	})
	if err != nil {
		report.Outcome = OutcomeNoFind
		report.Reason = "candidate search failed"
		report.Err = err
		return report
	}
	e.resolve(ctx, r, sel, rec.ID, &report)
	return report
}

// gapPass recomputes coverage, extracts gaps and fills them. It covers progress 50-100.
func (e *Engine) gapPass(ctx context.Context, r *run) error {
	gaps, err := e.collectGaps(ctx, r)
	if err != nil {
		return err
	}
	r.summary.Gaps = len(gaps)

	for j, gap := range gaps {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.record(e.fillGap(ctx, r, gap))
		r.progress(ctx, 50+50*float64(j+1)/float64(len(gaps)))
	}
	return nil
}

func (e *Engine) collectGaps(ctx context.Context, r *run) ([]timeline.Period, error) {
	var gaps []timeline.Period
	for _, id := range r.streamIDs() {
		records, err := e.local.ApprovedRecords(ctx, id, r.opts.Start.Add(-e.policy.CoverageLookback), r.opts.End)
		if err != nil {
			return nil, fmt.Errorf("load coverage of stream %d: %w", id, err)
		}
		periods := make([]timeline.Period, 0, len(records))
		for _, rec := range records {
			periods = append(periods, rec.Period())
		}
		gaps = append(gaps, timeline.Gaps(timeline.Merge(periods), id, r.opts.Start, r.opts.End)...)
	}
	timeline.SortByStart(gaps)
	return gaps, nil
}

func (e *Engine) fillGap(ctx context.Context, r *run, gap timeline.Period) ItemReport {
	report := ItemReport{Kind: ItemGap, StreamID: gap.StreamID, Period: gap}
	if gap.Duration() < e.policy.MinGap {
		report.Outcome = OutcomeNoNeed
		report.Reason = fmt.Sprintf("gap shorter than %s", e.policy.MinGap)
		return report
	}

	sel, err := r.selector.SelectBest(ctx, Target{
		Mode:     ModeGap,
		StreamID: gap.StreamID,
		Kind:     r.opts.Kind,
		Period:   gap,
		Sources:  r.orders[gap.StreamID],
	})
	if err != nil {
		report.Outcome = OutcomeNoFind
		report.Reason = "candidate search failed"
		report.Err = err
		return report
	}
	e.resolve(ctx, r, sel, 0, &report)

	if report.Outcome == OutcomeNoFind && r.opts.AddMode {
		e.addMode(ctx, r, gap, &report)
	}
	return report
}

func (e *Engine) resolve(ctx context.Context, r *run, sel Selection, replaceID int, report *ItemReport) {
	if sel.Best == nil {
		if sel.Redundant {
			report.Outcome = OutcomeNoNeed
			report.Reason = "candidate already imported"
		} else {
			report.Outcome = OutcomeNoFind
			report.Reason = fmt.Sprintf("no candidate among %d records", sel.Considered)
		}
		return
	}
	e.materialize(ctx, r, *sel.Best, replaceID, report)
}

// addMode imports every record the first answering source holds around the gap's hour.
func (e *Engine) addMode(ctx context.Context, r *run, gap timeline.Period, report *ItemReport) {
	after := timeline.BeginOfHour(gap.Start)
	query := AnyQuery{
		StreamID: gap.StreamID,
		Kind:     r.opts.Kind,
		After:    after,
		Before:   after.Add(time.Hour + e.policy.AddModeSlack),
	}

	for _, id := range r.orders[gap.StreamID] {
		src, err := e.sources.Source(ctx, id)
		if err != nil {
			r.logger.Warn("Skipping source in add mode", zap.Int("source", int(id)), zap.Error(err))
			continue
		}
		records, err := src.AnyRecords(ctx, query)
		if err != nil {
			r.logger.Warn("Skipping source in add mode", zap.Int("source", int(id)),
				zap.Error(fmt.Errorf("%w: %w", ErrSourceQuery, err)))
			continue
		}
		if len(records) == 0 {
			continue
		}

		report.AddMode = true
		report.Source = id
		var updated, failed int
		for _, rec := range records {
			item := ItemReport{}
			e.materialize(ctx, r, Candidate{Source: id, Record: rec, Score: Score(rec, gap)}, 0, &item)
			switch item.Outcome {
			case OutcomeUpdated:
				updated++
				report.RemoteRecordID = item.RemoteRecordID
				report.ImportedID = item.ImportedID
				report.Superseded = append(report.Superseded, item.Superseded...)
			case OutcomeNoSuccess:
				failed++
				report.Err = errors.Join(report.Err, item.Err)
			}
		}

		switch {
		case updated > 0:
			report.Outcome = OutcomeUpdated
			report.Reason = fmt.Sprintf("add mode imported %d of %d records", updated, len(records))
		case failed > 0:
			report.Outcome = OutcomeNoSuccess
			report.Reason = fmt.Sprintf("add mode failed for %d of %d records", failed, len(records))
		default:
			report.Outcome = OutcomeNoNeed
			report.Reason = "add mode records already present"
		}
		return
	}
	report.Reason = "no record in any source"
}

type noLease struct{}

func (noLease) TaskID() int                             { return -1 }
func (noLease) Progress(context.Context, float64) error { return nil }
func (noLease) Release(context.Context, error) error    { return nil }
