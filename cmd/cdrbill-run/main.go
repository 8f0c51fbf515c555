package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cdrbill/internal/cdr"
	cdrdomain "github.com/smallbiznis/cdrbill/internal/cdr/domain"
	cdrservice "github.com/smallbiznis/cdrbill/internal/cdr/service"
	"github.com/smallbiznis/cdrbill/internal/clock"
	"github.com/smallbiznis/cdrbill/internal/config"
	"github.com/smallbiznis/cdrbill/internal/customer"
	"github.com/smallbiznis/cdrbill/internal/invoice"
	invoicedomain "github.com/smallbiznis/cdrbill/internal/invoice/domain"
	"github.com/smallbiznis/cdrbill/internal/migration"
	"github.com/smallbiznis/cdrbill/internal/observability"
	"github.com/smallbiznis/cdrbill/internal/providers"
	"github.com/smallbiznis/cdrbill/internal/rating"
	"github.com/smallbiznis/cdrbill/internal/runlock"
	"github.com/smallbiznis/cdrbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// cdrbill-run executes one pipeline run for the previous month and exits.
// The report is written to stdout as JSON.
func main() {
	customers := flag.String("customers", "", "Comma separated customer ids; empty runs every customer")
	withInvoices := flag.Bool("invoices", false, "Render invoices after a successful run")
	timeout := flag.Duration("timeout", 30*time.Minute, "Overall deadline for the run")
	flag.Parse()

	ids, err := cdrdomain.ParseCustomerIDs(*customers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var (
		cdrSvc     cdrdomain.Service
		invoiceSvc invoicedomain.Service
		log        *zap.Logger
	)
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.NodeID)
		}),
		db.Module,
		migration.Module,
		clock.Module,
		runlock.Module,
		providers.Module,
		rating.Module,
		customer.Module,
		cdr.Module,
		invoice.Module,
		fx.Populate(&cdrSvc, &invoiceSvc, &log),
		fx.NopLogger,
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(1)
	}

	code := run(cdrSvc, invoiceSvc, log, ids, *withInvoices, *timeout)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		log.Warn("shutdown failed", zap.Error(err))
	}
	os.Exit(code)
}

func run(
	cdrSvc cdrdomain.Service,
	invoiceSvc invoicedomain.Service,
	log *zap.Logger,
	ids []snowflake.ID,
	withInvoices bool,
	timeout time.Duration,
) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out := struct {
		Report   cdrdomain.Report      `json:"report"`
		Invoices *invoicedomain.Result `json:"invoices,omitempty"`
	}{}

	report, err := cdrSvc.Run(ctx, cdrdomain.RunRequest{CustomerIDs: ids})
	if err != nil {
		log.Error("cdr run failed", zap.Bool("retryable", cdrservice.IsRetryable(err)), zap.Error(err))
		return 1
	}
	out.Report = report

	if withInvoices {
		month, err := cdrdomain.ParseMonth(report.Month)
		if err != nil {
			log.Error("invalid report month", zap.String("month", report.Month), zap.Error(err))
			return 1
		}
		result, err := invoiceSvc.Generate(ctx, invoicedomain.GenerateRequest{Month: month, CustomerIDs: ids})
		if err != nil {
			log.Error("invoice generation failed", zap.String("month", report.Month), zap.Error(err))
			return 1
		}
		out.Invoices = &result
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Error("write report", zap.Error(err))
		return 1
	}
	return 0
}
