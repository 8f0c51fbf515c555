// Package export renders monthly summaries as a spreadsheet.
package export

import (
	"fmt"
	"io"

	"github.com/smallbiznis/cdrbill/internal/cdr/domain"
	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
	"github.com/xuri/excelize/v2"
)

// ContentType is the media type of the rendered workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var categoryLabels = map[ratingdomain.Category]string{
	ratingdomain.CategoryNationalFixed:       "National fixe",
	ratingdomain.CategoryNationalMobile:      "National mobile",
	ratingdomain.CategoryInternationalFixed:  "International fixe",
	ratingdomain.CategoryInternationalMobile: "International mobile",
}

// Headings returns the column titles in sheet order.
func Headings() []string {
	out := []string{"Customer", "Customer ID", "Calls", "Duration (s)", "Base cost", "Billed cost"}
	for _, c := range ratingdomain.Categories {
		label := categoryLabels[c]
		out = append(out,
			label+" calls",
			label+" duration (s)",
			label+" base",
			label+" billed",
		)
	}
	return out
}

// FileName returns the attachment name for a month.
func FileName(month string) string {
	return fmt.Sprintf("cdr_summaries_%s.xlsx", month)
}

// Write renders one sheet named after the month with a row per summary.
func Write(w io.Writer, month string, rows []domain.MonthlySummary) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := month
	if sheet == "" {
		sheet = "Summaries"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	headings := Headings()
	if err := f.SetSheetRow(sheet, "A1", &headings); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headings), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return err
	}

	for i, row := range rows {
		values := []interface{}{
			row.CustomerName,
			row.CustomerID.String(),
			row.CallCount,
			row.TotalDurationSec,
			row.TotalBaseCost.Decimal().InexactFloat64(),
			row.TotalBilledCost.Decimal().InexactFloat64(),
		}
		for _, c := range ratingdomain.Categories {
			totals := row.Category(c)
			values = append(values,
				totals.Count,
				totals.DurationSec,
				totals.Base.Decimal().InexactFloat64(),
				totals.Billed.Decimal().InexactFloat64(),
			)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	return f.Write(w)
}
