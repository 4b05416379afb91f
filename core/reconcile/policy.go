package reconcile

import (
	"math"
	"time"

	"record-sync/core/timeline"
)

// Policy holds the thresholds and tolerances of the reconciliation rules.
type Policy struct {
	// WeakDuration is the nominal duration, in minutes, below which a record is weak.
	WeakDuration float64
	// WeakRate is the rate below which a record is weak.
	WeakRate float64
	// MinGap is the shortest gap worth searching for.
	MinGap time.Duration
	// CoverageLookback widens the coverage query before the window start.
	CoverageLookback time.Duration
	// MatchTolerance is the start/end drift allowed for upgrade candidates.
	MatchTolerance time.Duration
	// EquivalenceTolerance is the start/end drift under which a local record is a duplicate.
	EquivalenceTolerance time.Duration
	// RateTolerance is the rate difference under which a local record is a duplicate.
	RateTolerance float64
	// SupersedeTolerance widens the range of local records revoked by an import.
	SupersedeTolerance time.Duration
	// QualityMargin is the minimum rate improvement of an upgrade.
	QualityMargin float64
	// QualityCeiling caps the rate an upgrade has to beat.
	QualityCeiling float64
	// DurationCeiling caps, in minutes, the duration an upgrade has to beat.
	DurationCeiling float64
	// AddModeSlack extends the one hour add mode window.
	AddModeSlack time.Duration
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		WeakDuration:         61,
		WeakRate:             1,
		MinGap:               20 * time.Second,
		CoverageLookback:     timeline.MaxGapLength,
		MatchTolerance:       10 * time.Second,
		EquivalenceTolerance: 10 * time.Second,
		RateTolerance:        0.01,
		SupersedeTolerance:   15 * time.Second,
		QualityMargin:        0.001,
		QualityCeiling:       0.999,
		DurationCeiling:      60,
		AddModeSlack:         3 * time.Minute,
	}
}

// Score is the rate weighted by the share of target covered by the candidate,
// rounded to two decimals.
func Score(candidate Record, target timeline.Period) float64 {
	rate := math.Max(0, math.Min(1, candidate.Rate))
	ratio := timeline.CoverageRatio(candidate.Period(), target)
	return math.Round(rate*ratio*100) / 100
}

// IsBetter reports whether candidate is a strict improvement over the local record.
func (p Policy) IsBetter(candidate, local Record) bool {
	if candidate.Rate <= math.Min(p.QualityCeiling, local.Rate+p.QualityMargin) {
		return false
	}
	return candidate.Duration > math.Min(p.DurationCeiling, local.Duration)
}

// IsWeak reports whether a record is short or incomplete.
func (p Policy) IsWeak(r Record) bool {
	return r.Duration < p.WeakDuration || r.Rate < p.WeakRate
}
