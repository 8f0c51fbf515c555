package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// GenerateRequest renders invoices for one month. A zero Month means the
// month targeted by the CDR pipeline, empty CustomerIDs means every customer.
type GenerateRequest struct {
	Month       time.Time
	CustomerIDs []snowflake.ID
}

type Generated struct {
	CustomerID   snowflake.ID `json:"customer_id"`
	Name         string       `json:"name"`
	PDFPath      string       `json:"pdf_path"`
	RemoteURI    string       `json:"remote_uri,omitempty"`
	UploadError  string       `json:"upload_error,omitempty"`
	TotalExclVAT string       `json:"total_excl_vat"`
	TotalInclVAT string       `json:"total_incl_vat"`
}

type Result struct {
	Month     string      `json:"month"`
	OutDir    string      `json:"out_dir"`
	Generated []Generated `json:"generated"`
}

type Service interface {
	Generate(context.Context, GenerateRequest) (Result, error)
}

var (
	ErrNoCustomers = errors.New("no_customers")
	ErrInvalidVAT  = errors.New("invalid_vat_rate")
)
