package reconcile

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// materialize imports a selected candidate and fills report with the outcome.
// Order matters: duplicate checks, blob transfer, then one repository transaction.
// A failed transfer leaves the repository untouched.
func (e *Engine) materialize(ctx context.Context, r *run, cand Candidate, replaceID int, report *ItemReport) {
	report.Source = cand.Source
	report.RemoteRecordID = cand.Record.ID
	report.Score = cand.Score

	log := r.logger.With(
		zap.Int("source", int(cand.Source)),
		zap.Int("remote_id", cand.Record.ID),
		zap.Int("stream_id", cand.Record.StreamID))

	imported, err := r.tracker.AlreadyImported(ctx, cand.Source, cand.Record.ID)
	if err != nil {
		fail(report, "import index lookup failed", err)
		return
	}
	if imported {
		report.Outcome = OutcomeNoNeed
		report.Reason = "record already imported"
		return
	}

	equivalent, err := e.local.HasEquivalent(ctx, cand.Record, e.policy.EquivalenceTolerance, e.policy.RateTolerance)
	if err != nil {
		fail(report, "equivalence check failed", err)
		return
	}
	if equivalent {
		report.Outcome = OutcomeNoNeed
		report.Reason = "similar local record exists"
		return
	}

	if !r.opts.Sync {
		r.tracker.MarkImported(cand.Source, cand.Record.ID)
		report.Outcome = OutcomeUpdated
		report.Reason = "report only"
		return
	}

	srcPath, dstDir, err := e.blobPaths(r.nodeID, cand)
	if err != nil {
		fail(report, "cannot resolve blob path", err)
		return
	}
	if err := e.transfer.Copy(ctx, srcPath, dstDir); err != nil {
		log.Warn("Blob transfer failed", zap.String("src", srcPath), zap.String("dst", dstDir), zap.Error(err))
		fail(report, "blob transfer failed", fmt.Errorf("%w: %w", ErrTransfer, err))
		return
	}

	covered, err := e.local.CoveredRecords(ctx, cand.Record, e.policy.SupersedeTolerance)
	if err != nil {
		fail(report, "cannot list covered records", err)
		return
	}
	supersede := mergeIDs(covered, replaceID)

	newID, err := e.local.Import(ctx, ImportRequest{Record: cand.Record, Source: cand.Source, Supersede: supersede})
	if err != nil {
		fail(report, "import transaction failed", err)
		return
	}

	r.tracker.MarkImported(cand.Source, cand.Record.ID)
	for _, id := range supersede {
		r.superseded[id] = struct{}{}
	}

	report.Outcome = OutcomeUpdated
	report.ImportedID = newID
	report.Superseded = supersede
	log.Info("Record imported", zap.Int("local_id", newID), zap.Ints("superseded", supersede))
}

func fail(report *ItemReport, reason string, err error) {
	report.Outcome = OutcomeNoSuccess
	report.Reason = reason
	report.Err = err
}

// blobPaths maps a remote record to its source blob and the local target directory.
func (e *Engine) blobPaths(local SourceID, cand Candidate) (string, string, error) {
	rel := relativeBlobPath(cand.Record.Path)
	if rel == "" {
		return "", "", fmt.Errorf("record %d has no path", cand.Record.ID)
	}
	srcRoot, err := e.sources.PathPrefix(cand.Source)
	if err != nil {
		return "", "", err
	}
	dstRoot, err := e.sources.PathPrefix(local)
	if err != nil {
		return "", "", err
	}
	return path.Join(srcRoot, rel), path.Dir(path.Join(dstRoot, rel)), nil
}

// relativeBlobPath normalizes stored paths such as "./recorded/a.mp3" and refuses to
// climb above the root.
func relativeBlobPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func mergeIDs(ids []int, extra int) []int {
	set := make(map[int]struct{}, len(ids)+1)
	for _, id := range ids {
		if id > 0 {
			set[id] = struct{}{}
		}
	}
	if extra > 0 {
		set[extra] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
