package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/smallbiznis/cdrbill/internal/cdr/domain"
	"github.com/smallbiznis/cdrbill/internal/money"
	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteSummaries(t *testing.T) {
	row := domain.MonthlySummary{
		ID:           1,
		CustomerID:   7,
		CustomerName: "Acme",
		Month:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	row.Add(ratingdomain.CategoryNationalMobile, 90, money.MustParse("4.3"), money.MustParse("0.11"))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "2024-01", []domain.MonthlySummary{row}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"2024-01"}, f.GetSheetList())
	rows, err := f.GetRows("2024-01")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Headings(), rows[0])
	assert.Equal(t, "Acme", rows[1][0])
	assert.Equal(t, "7", rows[1][1])
	assert.Equal(t, "1", rows[1][2])
	assert.Equal(t, "90", rows[1][3])
	assert.Equal(t, "4.3", rows[1][4])
	assert.Equal(t, "0.11", rows[1][5])

	// national mobile is the second category block
	assert.Equal(t, "National mobile calls", rows[0][10])
	assert.Equal(t, "1", rows[1][10])
	assert.Equal(t, "0.11", rows[1][13])
}

func TestWriteEmptyMonth(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "", nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Summaries")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "cdr_summaries_2024-01.xlsx", FileName("2024-01"))
}
