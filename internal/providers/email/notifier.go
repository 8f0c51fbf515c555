package email

import (
	"context"

	cdrdomain "github.com/smallbiznis/cdrbill/internal/cdr/domain"
	"go.uber.org/zap"
)

const (
	TemplateRunSucceeded = "cdr_run_succeeded"
	TemplateRunFailed    = "cdr_run_failed"
)

// RunNotifier mails the outcome of every CDR run to a fixed list of
// recipients. Delivery failures are logged and never fail the run.
type RunNotifier struct {
	provider Provider
	to       []string
	log      *zap.Logger
}

func NewRunNotifier(provider Provider, to []string, log *zap.Logger) *RunNotifier {
	return &RunNotifier{provider: provider, to: to, log: log.Named("email.notifier")}
}

func (n *RunNotifier) RunFinished(ctx context.Context, report cdrdomain.Report, err error) {
	if len(n.to) == 0 {
		return
	}

	var sendErr error
	if err != nil {
		sendErr = n.provider.SendTemplate(ctx, n.to, TemplateRunFailed, map[string]any{
			"subject": "CDR run " + report.Month + " failed",
			"Month":   report.Month,
			"Error":   err.Error(),
		})
	} else {
		sendErr = n.provider.SendTemplate(ctx, n.to, TemplateRunSucceeded, map[string]any{
			"subject":             "CDR run " + report.Month + " completed",
			"Month":               report.Month,
			"RunID":               report.RunID.String(),
			"StartDate":           report.StartDate,
			"StopDate":            report.StopDate,
			"TotalRecords":        report.TotalRecords,
			"OutboundRecords":     report.OutboundRecords,
			"RatedRecords":        report.RatedRecords,
			"CustomersAggregated": report.CustomersAggregated,
			"FileReference":       report.FileReference,
		})
	}
	if sendErr != nil {
		n.log.Warn("email.notify_failed", zap.String("month", report.Month), zap.Error(sendErr))
	}
}
