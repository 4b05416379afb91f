package timeline

import (
	"sort"
	"time"
)

// MaxGapLength is the longest gap emitted by Gaps. Recordings run hourly with a one
// minute overlap, so an hour-aligned 61 minute window matches one remote record.
const MaxGapLength = 61 * time.Minute

// CoverageSet is a sorted list of disjoint, non-touching periods for one stream.
type CoverageSet []Period

// Merge coalesces periods into a CoverageSet. Input order is irrelevant; empty periods are
// dropped. Overlapping or touching periods are joined and the sweep keeps extending the
// current period, so one wide period swallows every later period it reaches.
func Merge(periods []Period) CoverageSet {
	sorted := make([]Period, 0, len(periods))
	for _, p := range periods {
		if !p.IsEmpty() {
			sorted = append(sorted, p)
		}
	}
	if len(sorted) == 0 {
		return CoverageSet{}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := CoverageSet{sorted[0]}
	for _, p := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !p.Start.After(last.End) {
			if p.End.After(last.End) {
				last.End = p.End
			}
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// Clip restricts the coverage set to [start, end).
func Clip(coverage CoverageSet, start, end time.Time) CoverageSet {
	window := Period{Start: start, End: end}
	clipped := make(CoverageSet, 0, len(coverage))
	for _, p := range coverage {
		part := p.Intersect(window)
		if part.IsEmpty() {
			continue
		}
		part.StreamID = p.StreamID
		clipped = append(clipped, part)
	}
	return clipped
}

// Duration returns the total covered time.
func (c CoverageSet) Duration() time.Duration {
	var total time.Duration
	for _, p := range c {
		total += p.Duration()
	}
	return total
}

// Gaps returns the parts of [start, end) not covered by coverage, split into hour-aligned
// chunks of at most MaxGapLength. Each gap is tagged with streamID.
func Gaps(coverage CoverageSet, streamID int, start, end time.Time) []Period {
	if !end.After(start) {
		return nil
	}

	var gaps []Period
	cursor := start
	for _, p := range Clip(coverage, start, end) {
		if p.Start.After(cursor) {
			gaps = appendChunks(gaps, streamID, cursor, p.Start)
		}
		if p.End.After(cursor) {
			cursor = p.End
		}
	}
	if end.After(cursor) {
		gaps = appendChunks(gaps, streamID, cursor, end)
	}
	return gaps
}

// appendChunks splits [from, to) at hour boundaries. A chunk starts at the later of the
// interval start, its hour start and the previous chunk end, and stops 61 minutes after
// that hour start. Intervals that already fit in MaxGapLength are kept whole.
func appendChunks(gaps []Period, streamID int, from, to time.Time) []Period {
	cursor := from
	for to.Sub(cursor) > MaxGapLength {
		chunkEnd := BeginOfHour(cursor).Add(MaxGapLength)
		if !chunkEnd.After(cursor) {
			chunkEnd = cursor.Add(MaxGapLength)
		}
		gaps = append(gaps, Period{Start: cursor, End: chunkEnd, StreamID: streamID})
		cursor = chunkEnd
	}
	if to.After(cursor) {
		gaps = append(gaps, Period{Start: cursor, End: to, StreamID: streamID})
	}
	return gaps
}

// SortByStart orders periods of several streams by start time, then stream id.
func SortByStart(periods []Period) {
	sort.SliceStable(periods, func(i, j int) bool {
		if periods[i].Start.Equal(periods[j].Start) {
			return periods[i].StreamID < periods[j].StreamID
		}
		return periods[i].Start.Before(periods[j].Start)
	})
}
