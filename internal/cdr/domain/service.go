package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// RunRequest triggers one pipeline run. An empty CustomerIDs means all
// customers with SIP lines.
type RunRequest struct {
	CustomerIDs []snowflake.ID
}

// Notifier is told about every finished run. err is nil on success.
type Notifier interface {
	RunFinished(ctx context.Context, report Report, err error)
}

// Report summarises a successful run.
type Report struct {
	RunID               snowflake.ID   `json:"run_id"`
	Month               string         `json:"month"`
	StartDate           string         `json:"start_date"`
	StopDate            string         `json:"stop_date"`
	TotalRecords        int64          `json:"total_cdr"`
	OutboundRecords     int64          `json:"outbound_cdr"`
	RatedRecords        int64          `json:"rated_cdr"`
	CustomersAggregated int            `json:"customers_aggregated"`
	FilteredCustomers   []snowflake.ID `json:"filtered_customers,omitempty"`
	FileReference       string         `json:"file_reference"`
}

// Period is the invoicing month a run targets.
type Period struct {
	Month     time.Time
	StartDate string
	StopDate  string
}

// Key returns the month as YYYY-MM.
func (p Period) Key() string {
	return p.Month.Format("2006-01")
}

// ParseMonth parses YYYY-MM into the first day of that month at UTC midnight.
func ParseMonth(s string) (time.Time, error) {
	m, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return m.UTC(), nil
}

// ParseCustomerIDs reads a comma separated customer filter. Blank entries
// are ignored and duplicates collapse, keeping first-seen order.
func ParseCustomerIDs(value string) ([]snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	seen := make(map[snowflake.ID]struct{})
	var ids []snowflake.ID
	for _, part := range strings.Split(trimmed, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := snowflake.ParseString(part)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCustomerIDs, part)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

type Service interface {
	Run(context.Context, RunRequest) (Report, error)
	ListSummaries(ctx context.Context, month string) ([]MonthlySummary, error)
	MonthSummaries(ctx context.Context, month time.Time, customerIDs []snowflake.ID) ([]MonthlySummary, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	TargetPeriod() Period
}

type Repository interface {
	ReplaceMonth(ctx context.Context, db *gorm.DB, month time.Time, scope []snowflake.ID, rows []MonthlySummary) error
	ListByMonth(ctx context.Context, db *gorm.DB, month time.Time, customerIDs []snowflake.ID) ([]MonthlySummary, error)
	InsertRun(ctx context.Context, db *gorm.DB, run *Run) error
	FinishRun(ctx context.Context, db *gorm.DB, run *Run) error
	ListRuns(ctx context.Context, db *gorm.DB, limit int) ([]Run, error)
}

var (
	ErrInvalidMonth       = errors.New("invalid_month")
	ErrInvalidCustomerIDs = errors.New("invalid_customers")
	ErrMalformedRecord    = errors.New("malformed_record")
	ErrUnbalanced         = errors.New("unbalanced_summary")
)
