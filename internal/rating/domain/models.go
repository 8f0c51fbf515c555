// Package domain holds the billing categories and rate profiles used to price calls.
package domain

import "github.com/smallbiznis/cdrbill/internal/money"

// Category is one of the four billing classes a call is rated under.
type Category string

const (
	CategoryNationalMobile      Category = "natio_mob"
	CategoryNationalFixed       Category = "natio_fix"
	CategoryInternationalMobile Category = "inter_mob"
	CategoryInternationalFixed  Category = "inter_fix"
)

// Categories lists every category in invoice order.
var Categories = []Category{
	CategoryNationalFixed,
	CategoryNationalMobile,
	CategoryInternationalFixed,
	CategoryInternationalMobile,
}

func (c Category) Valid() bool {
	switch c {
	case CategoryNationalMobile, CategoryNationalFixed, CategoryInternationalMobile, CategoryInternationalFixed:
		return true
	default:
		return false
	}
}

// RateProfile carries one markup percentage per category (12.5 means +12.5%).
type RateProfile struct {
	NatioMob float64 `json:"natio_mob"`
	NatioFix float64 `json:"natio_fix"`
	InterMob float64 `json:"inter_mob"`
	InterFix float64 `json:"inter_fix"`
}

// Percent returns the markup configured for a category.
func (p RateProfile) Percent(c Category) float64 {
	switch c {
	case CategoryNationalMobile:
		return p.NatioMob
	case CategoryNationalFixed:
		return p.NatioFix
	case CategoryInternationalMobile:
		return p.InterMob
	default:
		return p.InterFix
	}
}

// CallAttributes are the free-text carrier labels used for classification.
// A nil field means the carrier did not send it.
type CallAttributes struct {
	Category        *string
	BillingCategory *string
	NumberType      *string
}

// Call is the billable part of one outbound call.
type Call struct {
	Attributes  CallAttributes
	DurationSec int64
	RatePerMin  money.Micros
}

// RatedCall is the priced outcome for one call.
type RatedCall struct {
	Category Category
	Minutes  int64
	Base     money.Micros
	Percent  float64
	Billed   money.Micros
}
