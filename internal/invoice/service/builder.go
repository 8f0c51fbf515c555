package service

import (
	"time"

	"github.com/shopspring/decimal"
	cdrdomain "github.com/smallbiznis/cdrbill/internal/cdr/domain"
	customerdomain "github.com/smallbiznis/cdrbill/internal/customer/domain"
	"github.com/smallbiznis/cdrbill/internal/invoice/domain"
	"github.com/smallbiznis/cdrbill/internal/invoice/format"
	"github.com/smallbiznis/cdrbill/internal/providers/carrier"
	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
)

var consumptionLabels = map[ratingdomain.Category]string{
	ratingdomain.CategoryNationalFixed:       "National calls (fixe)",
	ratingdomain.CategoryNationalMobile:      "National calls (mobile)",
	ratingdomain.CategoryInternationalFixed:  "International calls (fixe)",
	ratingdomain.CategoryInternationalMobile: "International calls (mobile)",
}

var sixty = decimal.NewFromInt(60)

// CountDDIs counts carrier DIDs whose description is one of the customer's
// DDI names.
func CountDDIs(customer customerdomain.Customer, dids []carrier.DID) int {
	if len(customer.DdiNames) == 0 {
		return 0
	}
	wanted := make(map[string]struct{}, len(customer.DdiNames))
	for _, d := range customer.DdiNames {
		wanted[d.DescriptionName] = struct{}{}
	}
	n := 0
	for _, did := range dids {
		if did.Description == "" {
			continue
		}
		if _, ok := wanted[did.Description]; ok {
			n++
		}
	}
	return n
}

// Build computes a customer's invoice. A nil summary bills no consumption.
// Each consumption amount is rounded to cents before it is totalled.
func Build(
	customer customerdomain.Customer,
	summary *cdrdomain.MonthlySummary,
	month time.Time,
	ddiCount int,
	defaultDDIPrice decimal.Decimal,
	vatRate decimal.Decimal,
) domain.Invoice {
	inv := domain.Invoice{
		CustomerID:      customer.ID,
		CustomerName:    customer.Name,
		CustomerAddress: format.Address(customer.Address, customer.PostalCode, customer.City, customer.Province),
		Month:           month,
		DDICount:        ddiCount,
		DDIPrice:        defaultDDIPrice,
		VATRate:         vatRate,
	}
	if customer.DdiPrice != nil {
		inv.DDIPrice = customer.DdiPrice.Decimal()
	}

	for _, s := range customer.Subscriptions {
		amount := s.Price.Decimal().Round(2)
		inv.Subscriptions = append(inv.Subscriptions, domain.Line{Description: s.Definition, Amount: amount})
		inv.SubscriptionTotal = inv.SubscriptionTotal.Add(amount)
	}
	if ddiCount > 0 {
		amount := inv.DDIPrice.Mul(decimal.NewFromInt(int64(ddiCount))).Round(2)
		inv.Subscriptions = append(inv.Subscriptions, domain.Line{
			Description: format.DDIs(ddiCount),
			Amount:      amount,
		})
		inv.SubscriptionTotal = inv.SubscriptionTotal.Add(amount)
	}

	for _, c := range ratingdomain.Categories {
		var totals cdrdomain.CategoryTotals
		if summary != nil {
			totals = summary.Category(c)
		}
		amount := totals.Billed.Decimal().Round(2)
		inv.Consumption = append(inv.Consumption, domain.ConsumptionLine{
			Category:    c,
			Label:       consumptionLabels[c],
			Calls:       totals.Count,
			DurationSec: totals.DurationSec,
			Minutes:     decimal.NewFromInt(totals.DurationSec).Div(sixty).Round(2),
			Amount:      amount,
		})
		inv.ConsumptionTotal = inv.ConsumptionTotal.Add(amount)
	}

	inv.TotalExclVAT = inv.SubscriptionTotal.Add(inv.ConsumptionTotal)
	inv.VAT = inv.TotalExclVAT.Mul(vatRate).Round(2)
	inv.TotalInclVAT = inv.TotalExclVAT.Add(inv.VAT)
	return inv
}
