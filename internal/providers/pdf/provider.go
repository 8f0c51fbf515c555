package pdf

import (
	"context"
)

// Provider renders one customer invoice into a PDF document.
type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
}

var _ Provider = (*PDFProvider)(nil)
