package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	cdrdomain "github.com/smallbiznis/cdrbill/internal/cdr/domain"
	"github.com/smallbiznis/cdrbill/internal/config"
	customerdomain "github.com/smallbiznis/cdrbill/internal/customer/domain"
	"github.com/smallbiznis/cdrbill/internal/invoice/domain"
	"github.com/smallbiznis/cdrbill/internal/invoice/format"
	"github.com/smallbiznis/cdrbill/internal/observability/metrics"
	"github.com/smallbiznis/cdrbill/internal/observability/tracing"
	"github.com/smallbiznis/cdrbill/internal/providers/carrier"
	"github.com/smallbiznis/cdrbill/internal/providers/pdf"
	"github.com/smallbiznis/cdrbill/internal/providers/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const contentTypePDF = "application/pdf"

// Carrier opens sessions used to list DIDs.
type Carrier interface {
	Login(ctx context.Context) (*carrier.Session, error)
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	Pipeline  *config.PipelineHolder
	CDR       cdrdomain.Service
	Customers customerdomain.Service
	Carrier   Carrier
	PDF       pdf.Provider
	Storage   storage.Provider
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	cfg       config.InvoiceConfig
	pipeline  *config.PipelineHolder
	cdr       cdrdomain.Service
	customers customerdomain.Service
	carrier   Carrier
	pdf       pdf.Provider
	storage   storage.Provider
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("invoice.service"),
		cfg:       p.Config.Invoice,
		pipeline:  p.Pipeline,
		cdr:       p.CDR,
		customers: p.Customers,
		carrier:   p.Carrier,
		pdf:       p.PDF,
		storage:   p.Storage,
		metrics:   p.Metrics,
	}
}

// Generate renders one PDF per customer from the stored monthly summaries,
// writes it under OutputDir/YYYY-MM and archives it. A failed upload is
// reported on the customer's entry and does not fail the batch.
func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (result domain.Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.generate")
	defer func() { tracing.EndSpan(span, err) }()

	pipeline := s.pipeline.Get()
	vatRate, err := decimal.NewFromString(pipeline.VATRate)
	if err != nil || vatRate.IsNegative() {
		return domain.Result{}, fmt.Errorf("%w: %q", domain.ErrInvalidVAT, pipeline.VATRate)
	}
	ddiPrice, err := decimal.NewFromString(s.cfg.DefaultDDIPrice)
	if err != nil {
		ddiPrice = decimal.NewFromInt(1)
	}

	month := req.Month
	if month.IsZero() {
		month = s.cdr.TargetPeriod().Month
	}
	month = time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthKey := month.Format("2006-01")
	span.SetAttributes(attribute.String("month", monthKey))

	list, err := s.customers.List(ctx, customerdomain.ListCustomerRequest{CustomerIDs: req.CustomerIDs})
	if err != nil {
		return domain.Result{}, err
	}
	if len(list.Customers) == 0 {
		return domain.Result{}, domain.ErrNoCustomers
	}

	ids := make([]snowflake.ID, 0, len(list.Customers))
	for _, c := range list.Customers {
		ids = append(ids, c.ID)
	}
	summaries, err := s.cdr.MonthSummaries(ctx, month, ids)
	if err != nil {
		return domain.Result{}, err
	}
	byCustomer := make(map[snowflake.ID]*cdrdomain.MonthlySummary, len(summaries))
	for i := range summaries {
		byCustomer[summaries[i].CustomerID] = &summaries[i]
	}

	dids, err := s.listDIDs(ctx, list.Customers)
	if err != nil {
		return domain.Result{}, err
	}

	outDir := filepath.Join(s.cfg.OutputDir, monthKey)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return domain.Result{}, fmt.Errorf("create invoice dir: %w", err)
	}

	generated := make([]domain.Generated, len(list.Customers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pipeline.InvoiceConcurrency)
	for i, customer := range list.Customers {
		g.Go(func() error {
			inv := Build(customer, byCustomer[customer.ID], month, CountDDIs(customer, dids), ddiPrice, vatRate)
			out, err := s.render(gctx, inv, outDir, monthKey)
			s.metrics.RecordInvoice(gctx, err)
			if err != nil {
				return fmt.Errorf("invoice %s: %w", customer.Name, err)
			}
			generated[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Result{}, err
	}

	s.log.Info("invoice.generated",
		zap.String("month", monthKey),
		zap.Int("count", len(generated)),
		zap.String("out_dir", outDir),
	)
	return domain.Result{Month: monthKey, OutDir: outDir, Generated: generated}, nil
}

func (s *Service) render(ctx context.Context, inv domain.Invoice, outDir, monthKey string) (domain.Generated, error) {
	doc, err := s.pdf.GenerateInvoice(ctx, s.pdfData(inv))
	if err != nil {
		return domain.Generated{}, err
	}

	name := format.FileName(inv.CustomerName, monthKey)
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return domain.Generated{}, err
	}

	out := domain.Generated{
		CustomerID:   inv.CustomerID,
		Name:         inv.CustomerName,
		PDFPath:      path,
		TotalExclVAT: format.Amount(inv.TotalExclVAT),
		TotalInclVAT: format.Amount(inv.TotalInclVAT),
	}

	uri, err := s.storage.Put(ctx, monthKey+"/"+name, doc, contentTypePDF)
	if err != nil {
		s.log.Warn("invoice.archive_failed", zap.String("path", path), zap.Error(err))
		out.UploadError = err.Error()
	}
	out.RemoteURI = uri
	return out, nil
}

func (s *Service) pdfData(inv domain.Invoice) pdf.InvoiceData {
	data := pdf.InvoiceData{
		IssuerName:        s.cfg.IssuerName,
		IssuerAddress:     s.cfg.IssuerAddress,
		LogoPath:          s.cfg.LogoPath,
		CustomerName:      inv.CustomerName,
		CustomerAddress:   inv.CustomerAddress,
		PeriodFrom:        format.DateDash(inv.PeriodStart()),
		PeriodTo:          format.DateDash(inv.PeriodEnd()),
		Period:            format.Period(inv.PeriodStart(), inv.PeriodEnd()),
		SubscriptionTotal: format.Amount(inv.SubscriptionTotal),
		ConsumptionTotal:  format.Amount(inv.ConsumptionTotal),
		TotalExclVAT:      format.Amount(inv.TotalExclVAT),
		VATLabel:          "VAT " + format.Percent(inv.VATRate),
		VATAmount:         format.Amount(inv.VAT),
		TotalInclVAT:      format.Amount(inv.TotalInclVAT),
	}
	for _, l := range inv.Subscriptions {
		data.Subscriptions = append(data.Subscriptions, pdf.SubscriptionLine{
			Description: l.Description,
			Amount:      format.Amount(l.Amount),
		})
	}
	for _, c := range inv.Consumption {
		data.Consumption = append(data.Consumption, pdf.ConsumptionLine{
			Label:   c.Label,
			Calls:   fmt.Sprintf("%d", c.Calls),
			Minutes: c.Minutes.String(),
			Amount:  format.Amount(c.Amount),
		})
	}
	return data
}

// listDIDs asks the carrier for DIDs only when some customer has DDI names.
func (s *Service) listDIDs(ctx context.Context, customers []customerdomain.Customer) ([]carrier.DID, error) {
	needed := false
	for _, c := range customers {
		if len(c.DdiNames) > 0 {
			needed = true
			break
		}
	}
	if !needed {
		return nil, nil
	}

	session, err := s.carrier.Login(ctx)
	if err != nil {
		return nil, err
	}
	return session.ListDIDs(ctx)
}
