package timeline

import (
	"fmt"
	"time"
)

// Period is a half-open time range [Start, End) optionally owned by a stream.
type Period struct {
	Start    time.Time
	End      time.Time
	StreamID int
}

// Duration returns the length of the period, or zero for empty/inverted periods.
func (p Period) Duration() time.Duration {
	if !p.End.After(p.Start) {
		return 0
	}
	return p.End.Sub(p.Start)
}

// IsEmpty reports whether the period covers no time.
func (p Period) IsEmpty() bool {
	return !p.End.After(p.Start)
}

// Overlaps reports whether both periods share a non-zero amount of time.
func (p Period) Overlaps(o Period) bool {
	return p.Start.Before(o.End) && o.Start.Before(p.End)
}

// Contains reports whether o lies entirely inside p.
func (p Period) Contains(o Period) bool {
	return !o.Start.Before(p.Start) && !o.End.After(p.End)
}

// Intersect returns the common part of p and o. The result is empty when they are disjoint.
func (p Period) Intersect(o Period) Period {
	start := maxTime(p.Start, o.Start)
	end := minTime(p.End, o.End)
	if end.Before(start) {
		end = start
	}
	return Period{Start: start, End: end, StreamID: p.StreamID}
}

func (p Period) String() string {
	return fmt.Sprintf("[%s, %s)", p.Start.Format(time.DateTime), p.End.Format(time.DateTime))
}

// CoverageRatio returns the fraction of target covered by candidate, clamped to [0,1].
// Disjoint periods and empty targets yield 0.
func CoverageRatio(candidate, target Period) float64 {
	total := target.Duration()
	if total <= 0 {
		return 0
	}
	covered := candidate.Intersect(target).Duration()
	ratio := float64(covered) / float64(total)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// BeginOfHour truncates t to the top of its wall-clock hour in t's location. The result
// is computed on the absolute instant, so a repeated hour after a DST fall-back keeps
// t's offset instead of resolving to the first occurrence.
func BeginOfHour(t time.Time) time.Time {
	elapsed := time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return t.Add(-elapsed)
}

// BeginOfDay truncates t to local midnight.
func BeginOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
