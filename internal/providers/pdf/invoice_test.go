package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInvoice(t *testing.T) {
	doc, err := New().GenerateInvoice(context.Background(), InvoiceData{
		IssuerName:      "Axians SA",
		IssuerAddress:   "Kruiskouter 1\n1730 Asse\nBELGIUM",
		LogoPath:        "does-not-exist.png",
		CustomerName:    "Acme",
		CustomerAddress: "Main street 1\n1000 Brussels",
		PeriodFrom:      "01-01-2024",
		PeriodTo:        "31-01-2024",
		Period:          "from 01/01/2024 to 31/01/2024",
		Subscriptions: []SubscriptionLine{
			{Description: "Trunk SIP", Amount: "25.00"},
			{Description: "3 DDIs", Amount: "3.00"},
		},
		SubscriptionTotal: "28.00",
		Consumption: []ConsumptionLine{
			{Label: "National calls (mobile)", Calls: "1", Minutes: "2", Amount: "0.11"},
		},
		ConsumptionTotal: "0.11",
		TotalExclVAT:     "28.11",
		VATLabel:         "VAT 21%",
		VATAmount:        "5.90",
		TotalInclVAT:     "34.01",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestGenerateInvoiceHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().GenerateInvoice(ctx, InvoiceData{})
	assert.ErrorIs(t, err, context.Canceled)
}
