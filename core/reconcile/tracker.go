package reconcile

import (
	"context"
	"sync"
)

// ImportLookup is the persisted side of the import index.
type ImportLookup interface {
	IsImported(ctx context.Context, source SourceID, remoteID int) (bool, error)
}

// ImportTracker remembers which remote records are already present locally. It is seeded
// from the repository, extended by every import of the run and falls back to the
// persisted lookup for records outside the seeded window.
type ImportTracker struct {
	mu       sync.RWMutex
	imported map[SourceID]map[int]struct{}
	lookup   ImportLookup
}

// NewImportTracker creates an empty tracker. lookup may be nil.
func NewImportTracker(lookup ImportLookup) *ImportTracker {
	return &ImportTracker{
		imported: make(map[SourceID]map[int]struct{}),
		lookup:   lookup,
	}
}

// Seed records every approved or checked import found in records.
func (t *ImportTracker) Seed(records []Record) int {
	seeded := 0
	for _, r := range records {
		if !r.IsImport() || !(r.Approved || r.Checked) {
			continue
		}
		t.MarkImported(r.ImportedSourceID, r.ImportedRecordID)
		seeded++
	}
	return seeded
}

// MarkImported adds a (source, remote id) pair.
func (t *ImportTracker) MarkImported(source SourceID, remoteID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids, ok := t.imported[source]
	if !ok {
		ids = make(map[int]struct{})
		t.imported[source] = ids
	}
	ids[remoteID] = struct{}{}
}

// Contains checks the in-memory index only.
func (t *ImportTracker) Contains(source SourceID, remoteID int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.imported[source][remoteID]
	return ok
}

// AlreadyImported checks memory first, then the persisted lookup. Hits from the lookup
// are cached.
func (t *ImportTracker) AlreadyImported(ctx context.Context, source SourceID, remoteID int) (bool, error) {
	if t.Contains(source, remoteID) {
		return true, nil
	}
	if t.lookup == nil {
		return false, nil
	}

	found, err := t.lookup.IsImported(ctx, source, remoteID)
	if err != nil {
		return false, err
	}
	if found {
		t.MarkImported(source, remoteID)
	}
	return found, nil
}

// Len returns the number of tracked pairs.
func (t *ImportTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, ids := range t.imported {
		n += len(ids)
	}
	return n
}
