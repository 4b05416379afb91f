package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	nodeID  SourceID = 1
	sourceA SourceID = 2
	sourceB SourceID = 3
)

var day = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func newRecord(id, stream int, start time.Time, minutes, rate float64) Record {
	return Record{
		ID:             id,
		StreamID:       stream,
		Path:           fmt.Sprintf("./recorded/stream%d/%d.mp3", stream, id),
		StartedAt:      start,
		EndedAt:        start.Add(time.Duration(minutes * float64(time.Minute))),
		Duration:       minutes,
		Rate:           rate,
		Approved:       true,
		ConvertedToMP3: true,
	}
}

func inWindow(t, after, before time.Time) bool {
	return t.After(after) && t.Before(before)
}

// fakeLocal is an in-memory LocalRepository.
type fakeLocal struct {
	mu        sync.Mutex
	records   []Record
	nextID    int
	imports   []ImportRequest
	importErr error
	loadErr   error
}

func newFakeLocal(records ...Record) *fakeLocal {
	next := 1000
	for _, r := range records {
		if r.ID >= next {
			next = r.ID + 1
		}
	}
	return &fakeLocal{records: records, nextID: next}
}

func (f *fakeLocal) filter(filter RecordFilter, match func(Record) bool) []Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Record
	for _, r := range f.records {
		if !slices.Contains(filter.StreamIDs, r.StreamID) || !inWindow(r.StartedAt, filter.After, filter.Before) {
			continue
		}
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeLocal) WeakRecords(_ context.Context, filter RecordFilter) ([]Record, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := f.filter(filter, func(r Record) bool {
		return r.Approved && (r.Duration < filter.MaxDuration || r.Rate < filter.MinRate)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (f *fakeLocal) ApprovedRecords(_ context.Context, streamID int, after, before time.Time) ([]Record, error) {
	return f.filter(RecordFilter{StreamIDs: []int{streamID}, After: after, Before: before}, func(r Record) bool {
		return r.Approved
	}), nil
}

func (f *fakeLocal) ImportedRecords(_ context.Context, filter RecordFilter) ([]Record, error) {
	return f.filter(filter, func(r Record) bool {
		return r.IsImport() && (r.Approved || r.Checked)
	}), nil
}

func (f *fakeLocal) IsImported(_ context.Context, source SourceID, remoteID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ImportedSourceID == source && r.ImportedRecordID == remoteID && (r.Approved || r.Checked) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLocal) HasEquivalent(_ context.Context, rec Record, tol time.Duration, rateTol float64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if !r.Approved || r.StreamID != rec.StreamID {
			continue
		}
		if absDuration(r.StartedAt.Sub(rec.StartedAt)) <= tol &&
			absDuration(r.EndedAt.Sub(rec.EndedAt)) <= tol &&
			math.Abs(r.Rate-rec.Rate) <= rateTol {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLocal) CoveredRecords(_ context.Context, rec Record, tol time.Duration) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int
	for _, r := range f.records {
		if r.Approved && r.StreamID == rec.StreamID &&
			!r.StartedAt.Before(rec.StartedAt.Add(-tol)) && !r.EndedAt.After(rec.EndedAt.Add(tol)) {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (f *fakeLocal) Import(_ context.Context, req ImportRequest) (int, error) {
	if f.importErr != nil {
		return 0, f.importErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.records {
		if slices.Contains(req.Supersede, f.records[i].ID) {
			f.records[i].Approved = false
		}
	}
	imported := req.Record
	imported.ID = f.nextID
	imported.Approved = true
	imported.ImportedSourceID = req.Source
	imported.ImportedRecordID = req.Record.ID
	f.nextID++
	f.records = append(f.records, imported)
	f.imports = append(f.imports, req)
	return imported.ID, nil
}

func (f *fakeLocal) approved(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			return r.Approved
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// fakeSource answers queries from a fixed record list.
type fakeSource struct {
	id      SourceID
	records []Record
	err     error
}

func (s *fakeSource) ID() SourceID { return s.id }

func (s *fakeSource) Candidates(_ context.Context, q CandidateQuery) ([]Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Record
	for _, r := range s.records {
		if r.StreamID != q.StreamID || r.StartedAt.Before(q.NotBefore) {
			continue
		}
		switch q.Mode {
		case ModeGap:
			if r.StartedAt.Before(q.End) && r.EndedAt.After(q.Start) {
				out = append(out, r)
			}
		case ModeUpgrade:
			if r.StartedAt.Before(q.Start.Add(q.Tolerance)) && !r.EffectiveEnd().Before(q.End.Add(-q.Tolerance)) {
				out = append(out, r)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Duration > out[j].Duration })
	return out, nil
}

func (s *fakeSource) AnyRecords(_ context.Context, q AnyQuery) ([]Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Record
	for _, r := range s.records {
		if r.StreamID == q.StreamID && !r.StartedAt.Before(q.After) && !r.StartedAt.After(q.Before) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeRegistry struct {
	sources map[SourceID]*fakeSource
}

func newFakeRegistry(sources ...*fakeSource) *fakeRegistry {
	reg := &fakeRegistry{sources: make(map[SourceID]*fakeSource)}
	for _, s := range sources {
		reg.sources[s.id] = s
	}
	return reg
}

func (r *fakeRegistry) Source(_ context.Context, id SourceID) (Source, error) {
	s, ok := r.sources[id]
	if !ok {
		return nil, fmt.Errorf("unknown source %d", id)
	}
	return s, nil
}

func (r *fakeRegistry) PathPrefix(id SourceID) (string, error) {
	return fmt.Sprintf("/mnt/fs_svr%d/recording", id), nil
}

type copyCall struct {
	src string
	dst string
}

type fakeTransfer struct {
	mu    sync.Mutex
	calls []copyCall
	err   error
}

func (t *fakeTransfer) Copy(_ context.Context, src, dst string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, copyCall{src: src, dst: dst})
	return t.err
}

type fakeNode struct {
	id       SourceID
	priority []SourceID
	disabled bool
}

func (n *fakeNode) LocalServerID(context.Context) (SourceID, error) { return n.id, nil }

func (n *fakeNode) SourcePriority(context.Context, Kind) ([]SourceID, error) {
	return n.priority, nil
}

func (n *fakeNode) ProcessingEnabled(context.Context, Kind) (bool, error) {
	return !n.disabled, nil
}

type fakeStreams struct {
	streams []Stream
}

func (s *fakeStreams) ListStreams(_ context.Context, kind Kind, streamID int) ([]Stream, error) {
	var out []Stream
	for _, st := range s.streams {
		if st.Kind == kind && (streamID < 0 || st.ID == streamID) {
			out = append(out, st)
		}
	}
	return out, nil
}

type fakeLease struct {
	locker   *fakeLocker
	progress []float64
	released bool
	runErr   error
}

func (l *fakeLease) TaskID() int { return 42 }

func (l *fakeLease) Progress(_ context.Context, percent float64) error {
	l.progress = append(l.progress, percent)
	return nil
}

func (l *fakeLease) Release(_ context.Context, runErr error) error {
	l.released = true
	l.runErr = runErr
	l.locker.held = false
	return nil
}

type fakeLocker struct {
	held  bool
	lease *fakeLease
}

func (l *fakeLocker) Acquire(context.Context, Kind) (Lease, error) {
	if l.held {
		return nil, ErrAlreadyRunning
	}
	l.held = true
	l.lease = &fakeLease{locker: l}
	return l.lease, nil
}

type recordingObserver struct {
	progress  []float64
	items     []ItemReport
	summaries []Summary
}

func (o *recordingObserver) Progress(p float64) { o.progress = append(o.progress, p) }
func (o *recordingObserver) Item(r ItemReport)  { o.items = append(o.items, r) }
func (o *recordingObserver) Finished(s Summary) { o.summaries = append(o.summaries, s) }

func (o *recordingObserver) itemsOf(kind ItemKind) []ItemReport {
	var out []ItemReport
	for _, it := range o.items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}

type harness struct {
	local    *fakeLocal
	sources  *fakeRegistry
	transfer *fakeTransfer
	node     *fakeNode
	streams  *fakeStreams
	locker   *fakeLocker
	observer *recordingObserver
	engine   *Engine
}

func newHarness(t *testing.T, local *fakeLocal, sources ...*fakeSource) *harness {
	t.Helper()
	h := &harness{
		local:    local,
		sources:  newFakeRegistry(sources...),
		transfer: &fakeTransfer{},
		node:     &fakeNode{id: nodeID, priority: []SourceID{sourceA, sourceB}},
		streams:  &fakeStreams{streams: []Stream{{ID: 7, Name: "Radio 7", Kind: KindAudio, Enabled: true}}},
		locker:   &fakeLocker{},
		observer: &recordingObserver{},
	}
	engine, err := NewEngine(Deps{
		Streams:  h.streams,
		Node:     h.node,
		Local:    h.local,
		Sources:  h.sources,
		Transfer: h.transfer,
		Locker:   h.locker,
		Observer: h.observer,
		Logger:   zap.NewNop(),
	}, DefaultPolicy())
	require.NoError(t, err)
	engine.newRunID = func() string { return "run-1" }
	h.engine = engine
	return h
}

func syncOptions(start, end time.Time) Options {
	return Options{Start: start, End: end, Kind: KindAudio, StreamID: -1, Sync: true}
}

var errBoom = errors.New("boom")
