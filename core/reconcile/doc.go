// Package reconcile keeps a recording server's archive complete by importing records
// from the other servers that capture the same streams.
//
// A run works on one media kind and a time window and goes through two passes:
//
//  1. Weak records (shorter than an hour or not fully captured) are matched against
//     remote records covering the same range. A strictly better remote record is
//     imported and the weak one loses its approval.
//  2. Coverage is recomputed from approved records, the uncovered parts of the window
//     are cut into hour-aligned gaps and each gap is filled with the best scoring
//     remote record. With add mode, a gap nobody can fill is retried with every record
//     the first answering source holds around that hour.
//
// # Selection
//
// Sources are consulted in the priority order configured for the stream, concurrently.
// A candidate scores rate x covered share of the target. A later source only wins with
// a strictly higher score, so ties go to the preferred server. Remote records already
// imported are skipped and turn an empty selection into "no_need".
//
// # Materialization
//
// A selected record is copied with all its companion blobs, inserted as approved, and
// every approved local record it covers is revoked in the same transaction. The run
// keeps an in-memory import index so that nothing is imported twice within a run, and
// the persisted import columns make restarts idempotent.
//
// # Usage
//
//	engine, err := reconcile.NewEngine(reconcile.Deps{
//	    Streams:  repo,
//	    Node:     settings,
//	    Local:    repo,
//	    Sources:  registry,
//	    Transfer: transfer,
//	    Locker:   locker,
//	    Observer: reconcile.NewLogObserver(logger),
//	    Logger:   logger,
//	}, reconcile.DefaultPolicy())
//
//	summary, err := engine.Run(ctx, reconcile.Options{
//	    Start: start, End: end, Kind: reconcile.KindAudio, StreamID: -1, Sync: true,
//	})
package reconcile
