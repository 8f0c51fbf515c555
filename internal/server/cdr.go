package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	cdrdomain "github.com/smallbiznis/cdrbill/internal/cdr/domain"
	"github.com/smallbiznis/cdrbill/internal/cdr/export"
	invoicedomain "github.com/smallbiznis/cdrbill/internal/invoice/domain"
	"go.uber.org/zap"
)

const defaultRunsLimit = 20

func (s *Server) GenerateCDR(c *gin.Context) {
	ids, err := cdrdomain.ParseCustomerIDs(c.Query("customers"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.cdrSvc.Run(c.Request.Context(), cdrdomain.RunRequest{CustomerIDs: ids})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) GenerateCDRWithInvoices(c *gin.Context) {
	ids, err := cdrdomain.ParseCustomerIDs(c.Query("customers"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	report, err := s.cdrSvc.Run(ctx, cdrdomain.RunRequest{CustomerIDs: ids})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	month, err := cdrdomain.ParseMonth(report.Month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoices, err := s.invoiceSvc.Generate(ctx, invoicedomain.GenerateRequest{
		Month:       month,
		CustomerIDs: ids,
	})
	if err != nil {
		s.log.Error("invoice generation failed after cdr run",
			zap.String("run_id", report.RunID.String()),
			zap.String("month", report.Month),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"report":   report,
		"invoices": invoices,
	}})
}

func (s *Server) GenerateInvoices(c *gin.Context) {
	month, err := parseOptionalMonth(c.Query("month"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ids, err := cdrdomain.ParseCustomerIDs(c.Query("customers"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.Generate(c.Request.Context(), invoicedomain.GenerateRequest{
		Month:       month,
		CustomerIDs: ids,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSummaries(c *gin.Context) {
	month := s.monthOrTarget(c.Query("month"))

	rows, err := s.cdrSvc.ListSummaries(c.Request.Context(), month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"month":     month,
		"summaries": rows,
	}})
}

func (s *Server) ExportSummaries(c *gin.Context) {
	month := s.monthOrTarget(c.Query("month"))

	rows, err := s.cdrSvc.ListSummaries(c.Request.Context(), month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, month, rows); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(month)))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

func (s *Server) ListRuns(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"), defaultRunsLimit)
	if err != nil || limit <= 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	runs, err := s.cdrSvc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func (s *Server) monthOrTarget(value string) string {
	if value != "" {
		return value
	}
	return s.cdrSvc.TargetPeriod().Key()
}
