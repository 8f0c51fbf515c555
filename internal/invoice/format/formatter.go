// Package format turns invoice values into the strings printed on the PDF.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

// FileName returns "<slug>_YYYY-MM.pdf" for a customer and month key.
func FileName(customerName, month string) string {
	s := slug.Make(customerName)
	if s == "" {
		s = "customer"
	}
	return fmt.Sprintf("%s_%s.pdf", s, month)
}

// Amount renders a value with exactly two decimals.
func Amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Percent renders a rate such as 0.21 as "21%".
func Percent(rate decimal.Decimal) string {
	return rate.Shift(2).String() + "%"
}

func DateDash(t time.Time) string {
	return t.Format("02-01-2006")
}

func DateSlash(t time.Time) string {
	return t.Format("02/01/2006")
}

// Period renders "from DD/MM/YYYY to DD/MM/YYYY".
func Period(from, to time.Time) string {
	return fmt.Sprintf("from %s to %s", DateSlash(from), DateSlash(to))
}

// Address joins the street line and "postal city, province" into lines,
// dropping empty ones.
func Address(street, postalCode, city, province string) string {
	locality := strings.TrimSpace(strings.TrimSpace(postalCode) + " " + strings.TrimSpace(city))
	if p := strings.TrimSpace(province); p != "" {
		if locality != "" {
			locality += ", " + p
		} else {
			locality = p
		}
	}

	lines := make([]string, 0, 2)
	for _, l := range []string{strings.TrimSpace(street), locality} {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

// DDIs labels the DDI subscription line.
func DDIs(count int) string {
	return fmt.Sprintf("%d DDIs", count)
}
