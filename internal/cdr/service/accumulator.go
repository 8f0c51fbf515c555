package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cdrbill/internal/cdr/domain"
	customerdomain "github.com/smallbiznis/cdrbill/internal/customer/domain"
	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
)

// Outcome is what the fold did with one record.
type Outcome string

const (
	OutcomeRated            Outcome = "rated"
	OutcomeSkippedDirection Outcome = "skipped_direction"
	OutcomeSkippedUnmapped  Outcome = "skipped_unmapped"
	OutcomeSkippedEmpty     Outcome = "skipped_empty"
)

// Counters tracks the fold's progress over one download.
type Counters struct {
	Total     int64
	Outbound  int64
	Rated     int64
	Unmapped  int64
	EmptyCall int64
}

// Accumulator folds CDRs into per-customer monthly summaries. It is owned by
// a single run and is not safe for concurrent use.
type Accumulator struct {
	resolver *customerdomain.Resolver
	rater    ratingdomain.Service
	rows     map[snowflake.ID]*domain.MonthlySummary
	counters Counters
}

func NewAccumulator(resolver *customerdomain.Resolver, rater ratingdomain.Service) *Accumulator {
	return &Accumulator{
		resolver: resolver,
		rater:    rater,
		rows:     make(map[snowflake.ID]*domain.MonthlySummary),
	}
}

// Add folds one record. Records that are not outbound, come from an unknown
// line, or carry no duration or rate are skipped. A field that cannot be
// parsed fails with ErrMalformedRecord.
func (a *Accumulator) Add(rec domain.Record) (Outcome, error) {
	a.counters.Total++
	if !rec.IsOutbound() {
		return OutcomeSkippedDirection, nil
	}
	a.counters.Outbound++

	mapping, ok := a.resolver.Lookup(rec.LineID())
	if !ok {
		a.counters.Unmapped++
		return OutcomeSkippedUnmapped, nil
	}

	duration, err := rec.Duration.Seconds()
	if err != nil || duration < 0 {
		return "", a.malformed("duration", rec.Duration.String())
	}
	rate, err := rec.Rate.Rate.Micros()
	if err != nil {
		return "", a.malformed("rate", rec.Rate.Rate.String())
	}
	if duration == 0 || rate == 0 {
		a.counters.EmptyCall++
		return OutcomeSkippedEmpty, nil
	}
	cost, err := rec.Cost.Micros()
	if err != nil {
		return "", a.malformed("cost", rec.Cost.String())
	}

	rated, err := a.rater.Rate(ratingdomain.Call{
		Attributes:  rec.CallAttributes(),
		DurationSec: duration,
		RatePerMin:  rate,
	}, mapping.Profile)
	if err != nil {
		return "", fmt.Errorf("%w: record %d: %v", domain.ErrMalformedRecord, a.counters.Total, err)
	}

	row, ok := a.rows[mapping.CustomerID]
	if !ok {
		row = &domain.MonthlySummary{
			CustomerID:   mapping.CustomerID,
			CustomerName: mapping.CustomerName,
		}
		a.rows[mapping.CustomerID] = row
	}
	row.Add(rated.Category, duration, cost, rated.Billed)
	a.counters.Rated++
	return OutcomeRated, nil
}

func (a *Accumulator) malformed(field, raw string) error {
	return fmt.Errorf("%w: record %d: %s %q", domain.ErrMalformedRecord, a.counters.Total, field, raw)
}

func (a *Accumulator) Counters() Counters {
	return a.counters
}

// Summaries returns one row per customer with at least one rated call,
// ordered by customer id and stamped with month and run.
func (a *Accumulator) Summaries(month time.Time, runID snowflake.ID, genID func() snowflake.ID, now time.Time) []domain.MonthlySummary {
	out := make([]domain.MonthlySummary, 0, len(a.rows))
	for _, row := range a.rows {
		r := *row
		r.ID = genID()
		r.Month = month
		r.RunID = runID
		r.UpdatedAt = now
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}
