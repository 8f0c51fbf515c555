package pdf

import (
	"context"
	"os"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// InvoiceData is a fully formatted monthly invoice. Amounts are already
// rendered with two decimals.
type InvoiceData struct {
	IssuerName    string
	IssuerAddress string
	LogoPath      string

	CustomerName    string
	CustomerAddress string

	PeriodFrom string
	PeriodTo   string
	Period     string

	Subscriptions     []SubscriptionLine
	SubscriptionTotal string

	Consumption      []ConsumptionLine
	ConsumptionTotal string

	TotalExclVAT string
	VATLabel     string
	VATAmount    string
	TotalInclVAT string
}

type SubscriptionLine struct {
	Description string
	Amount      string
}

type ConsumptionLine struct {
	Label   string
	Calls   string
	Minutes string
	Amount  string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

var (
	small  = props.Text{Size: 9}
	right  = props.Text{Size: 9, Align: align.Right}
	header = props.Text{Size: 9, Style: fontstyle.Bold}
	rule   = props.Line{Thickness: 0.3}
)

func (p *PDFProvider) GenerateInvoice(ctx context.Context, invoice InvoiceData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithTitle("Billing", true).
		WithAuthor(invoice.IssuerName, true).
		WithSubject("Billing of the month", true).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	logo := col.New(6)
	if invoice.LogoPath != "" {
		if _, err := os.Stat(invoice.LogoPath); err == nil {
			logo = image.NewFromFileCol(6, invoice.LogoPath, props.Rect{Percent: 80})
		}
	}
	m.AddRow(25,
		logo,
		col.New(6).Add(
			text.New("Invoice:", props.Text{Size: 20, Style: fontstyle.Bold}),
			text.New("FROM: "+invoice.PeriodFrom, props.Text{Size: 12, Top: 10}),
			text.New("TO: "+invoice.PeriodTo, props.Text{Size: 12, Top: 16}),
		),
	)

	m.AddRow(25,
		col.New(6).Add(addressBlock(invoice.IssuerName, invoice.IssuerAddress)...),
		col.New(6).Add(addressBlock(invoice.CustomerName, invoice.CustomerAddress)...),
	)

	// Subscriptions
	m.AddRow(10, text.NewCol(12, "Subscription:", props.Text{Size: 15, Style: fontstyle.Bold}))
	m.AddRow(2, line.NewCol(12, rule))
	m.AddRow(7,
		text.NewCol(6, "Item", header),
		text.NewCol(4, "Period", header),
		text.NewCol(2, "Amount", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12, rule))
	for _, s := range invoice.Subscriptions {
		m.AddRow(6,
			text.NewCol(6, s.Description, small),
			text.NewCol(4, invoice.Period, small),
			text.NewCol(2, s.Amount, right),
		)
	}
	m.AddRow(2, line.NewCol(12, rule))
	m.AddRow(8,
		text.NewCol(10, "Total amount:", small),
		text.NewCol(2, invoice.SubscriptionTotal+" EUR", right),
	)

	// Consumption
	m.AddRow(12, text.NewCol(12, "Bill consumption:", props.Text{Size: 15, Style: fontstyle.Bold, Top: 2}))
	m.AddRow(2, line.NewCol(12, rule))
	m.AddRow(7,
		col.New(5),
		text.NewCol(2, "Number", header),
		text.NewCol(3, "Time (minute)", header),
		text.NewCol(2, "Amount", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12, rule))
	for _, c := range invoice.Consumption {
		m.AddRow(6,
			text.NewCol(5, c.Label, small),
			text.NewCol(2, c.Calls+" calls", small),
			text.NewCol(3, c.Minutes, small),
			text.NewCol(2, c.Amount, right),
		)
	}
	m.AddRow(2, line.NewCol(12, rule))
	m.AddRow(8,
		text.NewCol(10, "Total amount:", small),
		text.NewCol(2, invoice.ConsumptionTotal+" EUR", right),
	)

	// Totals
	m.AddRow(12,
		text.NewCol(8, "Total Amount (excluding VAT)", props.Text{Size: 15, Top: 3}),
		text.NewCol(4, invoice.TotalExclVAT+" EUR", props.Text{Size: 15, Top: 3, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12, rule))
	m.AddRow(8,
		text.NewCol(8, invoice.VATLabel, props.Text{Size: 12}),
		text.NewCol(4, "+ "+invoice.VATAmount+" EUR", props.Text{Size: 12, Align: align.Right}),
	)
	m.AddRow(8,
		text.NewCol(8, "Total Amount (including VAT)", props.Text{Size: 12, Style: fontstyle.Bold}),
		text.NewCol(4, invoice.TotalInclVAT+" EUR", props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func addressBlock(name, address string) []core.Component {
	out := []core.Component{text.New(name, props.Text{Size: 10, Style: fontstyle.Bold})}
	for i, l := range strings.Split(address, "\n") {
		out = append(out, text.New(l, props.Text{Size: 10, Top: float64(5 * (i + 1))}))
	}
	return out
}
