package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cdrbill/internal/money"
	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
	"gorm.io/datatypes"
)

// MonthlySummary is the per-customer aggregate for one calendar month.
// Base amounts are carrier-reported costs, bill amounts are marked-up prices.
type MonthlySummary struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID       snowflake.ID `gorm:"not null;uniqueIndex:ux_monthly_cdr_summaries_customer_month" json:"customer_id"`
	Month            time.Time    `gorm:"type:date;not null;uniqueIndex:ux_monthly_cdr_summaries_customer_month" json:"month"`
	CustomerName     string       `gorm:"not null;default:''" json:"customer_name"`
	CallCount        int64        `gorm:"not null;default:0" json:"call_count"`
	TotalDurationSec int64        `gorm:"not null;default:0" json:"total_duration_sec"`
	TotalBaseCost    money.Micros `gorm:"type:numeric(18,6);not null;default:0" json:"total_base_cost"`
	TotalBilledCost  money.Micros `gorm:"type:numeric(18,6);not null;default:0" json:"total_billed_cost"`

	BaseNatioMob money.Micros `gorm:"column:base_natio_mob;type:numeric(18,6);not null;default:0" json:"base_natio_mob"`
	BaseNatioFix money.Micros `gorm:"column:base_natio_fix;type:numeric(18,6);not null;default:0" json:"base_natio_fix"`
	BaseInterMob money.Micros `gorm:"column:base_inter_mob;type:numeric(18,6);not null;default:0" json:"base_inter_mob"`
	BaseInterFix money.Micros `gorm:"column:base_inter_fix;type:numeric(18,6);not null;default:0" json:"base_inter_fix"`

	BillNatioMob money.Micros `gorm:"column:bill_natio_mob;type:numeric(18,6);not null;default:0" json:"bill_natio_mob"`
	BillNatioFix money.Micros `gorm:"column:bill_natio_fix;type:numeric(18,6);not null;default:0" json:"bill_natio_fix"`
	BillInterMob money.Micros `gorm:"column:bill_inter_mob;type:numeric(18,6);not null;default:0" json:"bill_inter_mob"`
	BillInterFix money.Micros `gorm:"column:bill_inter_fix;type:numeric(18,6);not null;default:0" json:"bill_inter_fix"`

	CountNatioMob int64 `gorm:"column:count_natio_mob;not null;default:0" json:"count_natio_mob"`
	CountNatioFix int64 `gorm:"column:count_natio_fix;not null;default:0" json:"count_natio_fix"`
	CountInterMob int64 `gorm:"column:count_inter_mob;not null;default:0" json:"count_inter_mob"`
	CountInterFix int64 `gorm:"column:count_inter_fix;not null;default:0" json:"count_inter_fix"`

	TimeNatioMob int64 `gorm:"column:time_natio_mob;not null;default:0" json:"time_natio_mob"`
	TimeNatioFix int64 `gorm:"column:time_natio_fix;not null;default:0" json:"time_natio_fix"`
	TimeInterMob int64 `gorm:"column:time_inter_mob;not null;default:0" json:"time_inter_mob"`
	TimeInterFix int64 `gorm:"column:time_inter_fix;not null;default:0" json:"time_inter_fix"`

	RunID     snowflake.ID `gorm:"not null;default:0" json:"run_id"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (MonthlySummary) TableName() string { return "monthly_cdr_summaries" }

// CategoryTotals is one category slice of a summary.
type CategoryTotals struct {
	Count       int64
	DurationSec int64
	Base        money.Micros
	Billed      money.Micros
}

// Category returns the totals recorded for one billing category.
func (s MonthlySummary) Category(c ratingdomain.Category) CategoryTotals {
	switch c {
	case ratingdomain.CategoryNationalMobile:
		return CategoryTotals{s.CountNatioMob, s.TimeNatioMob, s.BaseNatioMob, s.BillNatioMob}
	case ratingdomain.CategoryNationalFixed:
		return CategoryTotals{s.CountNatioFix, s.TimeNatioFix, s.BaseNatioFix, s.BillNatioFix}
	case ratingdomain.CategoryInternationalMobile:
		return CategoryTotals{s.CountInterMob, s.TimeInterMob, s.BaseInterMob, s.BillInterMob}
	default:
		return CategoryTotals{s.CountInterFix, s.TimeInterFix, s.BaseInterFix, s.BillInterFix}
	}
}

// Add records one rated call under its category and in the totals.
func (s *MonthlySummary) Add(c ratingdomain.Category, durationSec int64, base, billed money.Micros) {
	s.CallCount++
	s.TotalDurationSec += durationSec
	s.TotalBaseCost += base
	s.TotalBilledCost += billed

	switch c {
	case ratingdomain.CategoryNationalMobile:
		s.CountNatioMob++
		s.TimeNatioMob += durationSec
		s.BaseNatioMob += base
		s.BillNatioMob += billed
	case ratingdomain.CategoryNationalFixed:
		s.CountNatioFix++
		s.TimeNatioFix += durationSec
		s.BaseNatioFix += base
		s.BillNatioFix += billed
	case ratingdomain.CategoryInternationalMobile:
		s.CountInterMob++
		s.TimeInterMob += durationSec
		s.BaseInterMob += base
		s.BillInterMob += billed
	default:
		s.CountInterFix++
		s.TimeInterFix += durationSec
		s.BaseInterFix += base
		s.BillInterFix += billed
	}
}

// Balanced reports whether the totals equal the sum of the category fields.
func (s MonthlySummary) Balanced() bool {
	return s.TotalBilledCost == s.BillNatioMob+s.BillNatioFix+s.BillInterMob+s.BillInterFix &&
		s.TotalBaseCost == s.BaseNatioMob+s.BaseNatioFix+s.BaseInterMob+s.BaseInterFix &&
		s.CallCount == s.CountNatioMob+s.CountNatioFix+s.CountInterMob+s.CountInterFix &&
		s.TotalDurationSec == s.TimeNatioMob+s.TimeNatioFix+s.TimeInterMob+s.TimeInterFix
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the audit entry written for every pipeline run.
type Run struct {
	ID                  snowflake.ID   `gorm:"primaryKey" json:"id"`
	Month               time.Time      `gorm:"type:date;not null;index" json:"month"`
	StartDate           string         `gorm:"not null" json:"start_date"`
	StopDate            string         `gorm:"not null" json:"stop_date"`
	Status              RunStatus      `gorm:"type:text;not null" json:"status"`
	FileReference       string         `gorm:"not null;default:''" json:"file_reference"`
	TotalRecords        int64          `gorm:"not null;default:0" json:"total_records"`
	OutboundRecords     int64          `gorm:"not null;default:0" json:"outbound_records"`
	RatedRecords        int64          `gorm:"not null;default:0" json:"rated_records"`
	CustomersAggregated int64          `gorm:"not null;default:0" json:"customers_aggregated"`
	CustomerFilter      datatypes.JSON `gorm:"type:json" json:"customer_filter,omitempty"`
	Error               string         `gorm:"not null;default:''" json:"error,omitempty"`
	StartedAt           time.Time      `gorm:"not null" json:"started_at"`
	FinishedAt          *time.Time     `json:"finished_at,omitempty"`
}

func (Run) TableName() string { return "cdr_runs" }
