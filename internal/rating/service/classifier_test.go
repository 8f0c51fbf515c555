package service

import (
	"testing"

	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
	"github.com/stretchr/testify/assert"
)

func str(v string) *string { return &v }

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		attrs ratingdomain.CallAttributes
		want  ratingdomain.Category
	}{
		{"national mobile", ratingdomain.CallAttributes{Category: str("national"), NumberType: str("MOBILE")}, ratingdomain.CategoryNationalMobile},
		{"national fixed", ratingdomain.CallAttributes{Category: str("National"), NumberType: str("FIXED_LINE")}, ratingdomain.CategoryNationalFixed},
		{"billing national prefix", ratingdomain.CallAttributes{BillingCategory: str("National Mobile"), NumberType: str("mobile")}, ratingdomain.CategoryNationalMobile},
		{"international category", ratingdomain.CallAttributes{Category: str("INTERNATIONAL"), NumberType: str("MOBILE")}, ratingdomain.CategoryInternationalMobile},
		{"expensive category", ratingdomain.CallAttributes{Category: str("expensive"), NumberType: str("FIXED_LINE")}, ratingdomain.CategoryInternationalFixed},
		{"europe billing", ratingdomain.CallAttributes{BillingCategory: str("Europe zone 1"), NumberType: str("MOBILE")}, ratingdomain.CategoryInternationalMobile},
		{"expensive billing", ratingdomain.CallAttributes{BillingCategory: str("expensive-destinations")}, ratingdomain.CategoryInternationalFixed},
		{"national wins over international", ratingdomain.CallAttributes{Category: str("international"), BillingCategory: str("national"), NumberType: str("MOBILE")}, ratingdomain.CategoryNationalMobile},
		{"national with unknown number", ratingdomain.CallAttributes{Category: str("national"), NumberType: str("VOIP")}, ratingdomain.CategoryNationalFixed},
		{"international with unknown number", ratingdomain.CallAttributes{Category: str("international")}, ratingdomain.CategoryInternationalFixed},
		{"nothing known", ratingdomain.CallAttributes{}, ratingdomain.CategoryInternationalFixed},
		{"unknown region mobile", ratingdomain.CallAttributes{Category: str("local"), NumberType: str("MOBILE")}, ratingdomain.CategoryNationalMobile},
		{"unknown region fixed", ratingdomain.CallAttributes{NumberType: str("FIXED_LINE")}, ratingdomain.CategoryNationalFixed},
		{"unknown region unknown number", ratingdomain.CallAttributes{Category: str("special"), NumberType: str("SHARED_COST")}, ratingdomain.CategoryInternationalFixed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.attrs))
		})
	}
}

func TestClassifyIsTotal(t *testing.T) {
	labels := []*string{nil, str(""), str("national"), str("NATIONAL"), str("international"), str("expensive"), str("europe"), str("national-premium"), str("??"), str("MOBILE"), str("FIXED_LINE"), str("mobile ")}
	for _, c := range labels {
		for _, b := range labels {
			for _, n := range labels {
				got := Classify(ratingdomain.CallAttributes{Category: c, BillingCategory: b, NumberType: n})
				assert.True(t, got.Valid())
			}
		}
	}
}
