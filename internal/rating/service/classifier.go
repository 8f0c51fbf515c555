package service

import (
	"strings"

	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
)

type region int

const (
	regionUnknown region = iota
	regionNational
	regionInternational
)

type numberType int

const (
	numberUnknown numberType = iota
	numberMobile
	numberFixed
)

var internationalBillingPrefixes = []string{"international", "europe", "expensive"}

// Classify maps carrier labels to a billing category. It never fails.
//
// When neither the category nor the billing category names a region and the
// number type is not recognised, the call is rated as international fixed.
func Classify(attrs ratingdomain.CallAttributes) ratingdomain.Category {
	r := classifyRegion(lower(attrs.Category), lower(attrs.BillingCategory))
	n := classifyNumber(upper(attrs.NumberType))

	switch {
	case r == regionNational && n == numberMobile:
		return ratingdomain.CategoryNationalMobile
	case r == regionNational:
		return ratingdomain.CategoryNationalFixed
	case r == regionInternational && n == numberMobile:
		return ratingdomain.CategoryInternationalMobile
	case r == regionInternational:
		return ratingdomain.CategoryInternationalFixed
	case n == numberMobile:
		return ratingdomain.CategoryNationalMobile
	case n == numberFixed:
		return ratingdomain.CategoryNationalFixed
	default:
		return ratingdomain.CategoryInternationalFixed
	}
}

func classifyRegion(category, billing string) region {
	if category == "national" || strings.HasPrefix(billing, "national") {
		return regionNational
	}
	if category == "international" || category == "expensive" {
		return regionInternational
	}
	for _, prefix := range internationalBillingPrefixes {
		if strings.HasPrefix(billing, prefix) {
			return regionInternational
		}
	}
	return regionUnknown
}

func classifyNumber(v string) numberType {
	switch v {
	case "MOBILE":
		return numberMobile
	case "FIXED_LINE":
		return numberFixed
	default:
		return numberUnknown
	}
}

func lower(v *string) string {
	if v == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*v))
}

func upper(v *string) string {
	if v == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(*v))
}
