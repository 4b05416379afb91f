// Package timeline provides the interval arithmetic behind coverage reconciliation.
//
// Recordings of a stream are reduced to a CoverageSet: sorted, disjoint periods of approved
// recorded time. The complement of a CoverageSet inside a sync window yields the gaps that
// still need a recording from another server.
//
// # Merging
//
// Merge accepts periods in any order and coalesces overlapping or touching ones with a
// sort-and-sweep, so a single wide period absorbs every later period it reaches:
//
//	coverage := timeline.Merge(periods)
//
// # Gaps
//
// Gaps clips a CoverageSet to a window and returns the uncovered parts. Long gaps are cut at
// wall-clock hours into chunks of at most 61 minutes so each one lines up with a single
// hourly recording on a remote server:
//
//	gaps := timeline.Gaps(coverage, streamID, start, end)
//
// CoverageRatio scores how much of a target period a candidate recording covers.
package timeline
