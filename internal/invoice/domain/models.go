package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
)

// Invoice is one customer's bill for a month, computed from the stored
// summary. Amounts are rounded to cents.
type Invoice struct {
	CustomerID      snowflake.ID
	CustomerName    string
	CustomerAddress string
	Month           time.Time

	Subscriptions []Line
	DDICount      int
	DDIPrice      decimal.Decimal
	Consumption   []ConsumptionLine

	SubscriptionTotal decimal.Decimal
	ConsumptionTotal  decimal.Decimal
	TotalExclVAT      decimal.Decimal
	VATRate           decimal.Decimal
	VAT               decimal.Decimal
	TotalInclVAT      decimal.Decimal
}

type Line struct {
	Description string
	Amount      decimal.Decimal
}

type ConsumptionLine struct {
	Category    ratingdomain.Category
	Label       string
	Calls       int64
	DurationSec int64
	Minutes     decimal.Decimal
	Amount      decimal.Decimal
}

// PeriodStart is the first day of the invoiced month.
func (i Invoice) PeriodStart() time.Time {
	return time.Date(i.Month.Year(), i.Month.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd is the last day of the invoiced month.
func (i Invoice) PeriodEnd() time.Time {
	return i.PeriodStart().AddDate(0, 1, -1)
}
