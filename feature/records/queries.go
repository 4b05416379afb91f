package records

import (
	"time"

	"record-sync/core/reconcile"
	"record-sync/feature/records/models"

	"gorm.io/gorm"
)

// approved keeps records that currently cover their stream.
func approved(db *gorm.DB) *gorm.DB {
	return db.Where("is_record_approved = ?", true)
}

// finished keeps approved records whose media is ready to be served. Video also
// needs its low resolution rendition.
func finished(kind reconcile.Kind) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = approved(db).
			Where("converted_to_mp3 = ?", true).
			Where("is_deleted = ?", false).
			Where("return_code = ?", 0)
		if kind == reconcile.KindVideo {
			db = db.Where("converted_to_low = ?", true)
		}
		return db
	}
}

// startedWithin bounds started_at exclusively on both sides.
func startedWithin(after, before time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("started_at > ? AND started_at < ?", after, before)
	}
}

// inStreams restricts to the filter's streams and media kind. An empty stream list
// matches nothing.
func inStreams(filter reconcile.RecordFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(filter.StreamIDs) == 0 {
			return db.Where("1 = 0")
		}
		db = db.Where("stream_id IN ?", filter.StreamIDs)
		if code := filter.Kind.Code(); code > 0 {
			db = db.Where("stream_type = ?", code)
		}
		return db
	}
}

// candidates selects remote records for one target. Gap mode takes anything that
// overlaps the period. Upgrade mode takes records that start no later than the
// tolerance after the target and may end up to the tolerance before it; the
// effective end is refined in memory since it depends on the nominal duration.
func candidates(q reconcile.CandidateQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Scopes(finished(q.Kind)).
			Where("stream_id = ?", q.StreamID).
			Where("started_at >= ?", q.NotBefore)

		switch q.Mode {
		case reconcile.ModeUpgrade:
			db = db.Where("started_at <= ?", q.Start.Add(q.Tolerance)).
				Where("ended_at > ?", q.End.Add(-q.Tolerance)).
				Where("duration > ?", 0)
		default:
			db = db.Where("started_at < ? AND ended_at > ?", q.End, q.Start)
		}
		return db.Order("duration DESC").Order("started_at")
	}
}

// keepMatching drops upgrade candidates whose effective end falls short of the target.
func keepMatching(q reconcile.CandidateQuery, recs []reconcile.Record) []reconcile.Record {
	if q.Mode != reconcile.ModeUpgrade {
		return recs
	}
	out := recs[:0]
	for _, r := range recs {
		if r.EffectiveEnd().After(q.End.Add(-q.Tolerance)) {
			out = append(out, r)
		}
	}
	return out
}

// anyRecords selects every finished record strictly inside the add-mode window.
func anyRecords(q reconcile.AnyQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = approved(db).
			Where("converted_to_mp3 = ?", true).
			Where("stream_id = ?", q.StreamID).
			Where("started_at > ? AND ended_at < ?", q.After, q.Before).
			Where("duration > ?", 0)
		if q.Kind == reconcile.KindVideo {
			db = db.Where("converted_to_low = ?", true)
		}
		return db.Order("started_at")
	}
}

func toDomain(rows []models.Record) []reconcile.Record {
	out := make([]reconcile.Record, len(rows))
	for i, row := range rows {
		out[i] = row.ToDomain()
	}
	return out
}
