package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	cdrdomain "github.com/smallbiznis/cdrbill/internal/cdr/domain"
	customerdomain "github.com/smallbiznis/cdrbill/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/cdrbill/internal/invoice/domain"
	"github.com/smallbiznis/cdrbill/internal/providers/carrier"
	"github.com/smallbiznis/cdrbill/internal/runlock"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

var internalError = errorPayload{Type: "internal_error", Message: "internal server error"}

// errorRule maps one class of pipeline error to a status and payload. Rules
// are checked in order, the first match wins.
type errorRule struct {
	match   func(error) bool
	status  int
	payload func(error) errorPayload
}

func is(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

func fixed(typ, message string) func(error) errorPayload {
	return func(error) errorPayload { return errorPayload{Type: typ, Message: message} }
}

func withMessage(typ string) func(error) errorPayload {
	return func(err error) errorPayload { return errorPayload{Type: typ, Message: err.Error()} }
}

var errorRules = []errorRule{
	{
		match:  func(err error) bool { return asValidationErrors(err) != nil },
		status: http.StatusBadRequest,
		payload: func(err error) errorPayload {
			return errorPayload{Type: "validation_error", Message: "validation error", Errors: asValidationErrors(err).Errors}
		},
	},
	{
		match:  isValidationError,
		status: http.StatusBadRequest,
		payload: func(err error) errorPayload {
			code := validationErrorCode(err)
			return errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors:  []ValidationError{{Field: validationErrorField(code), Code: code, Message: err.Error()}},
			}
		},
	},
	{match: is(ErrUnauthorized), status: http.StatusUnauthorized, payload: fixed("unauthorized", "unauthorized")},
	{
		match:   is(customerdomain.ErrNoLineMappings, carrier.ErrMissingCredentials, invoicedomain.ErrInvalidVAT),
		status:  http.StatusUnprocessableEntity,
		payload: withMessage("configuration_error"),
	},
	{match: is(runlock.ErrLocked), status: http.StatusConflict, payload: fixed("run_in_progress", "a run is already in progress")},
	{
		match:   is(customerdomain.ErrCustomerExists, customerdomain.ErrDuplicateSipLine),
		status:  http.StatusConflict,
		payload: withMessage("conflict"),
	},
	{
		match:   is(carrier.ErrExportTimeout, context.DeadlineExceeded),
		status:  http.StatusGatewayTimeout,
		payload: fixed("timeout", "carrier export did not complete in time"),
	},
	{
		match: func(err error) bool {
			var perr *carrier.ProtocolError
			return errors.As(err, &perr)
		},
		status: http.StatusBadGateway,
		payload: func(err error) errorPayload {
			var perr *carrier.ProtocolError
			errors.As(err, &perr)
			return errorPayload{Type: "carrier_error", Message: protocolErrorMessage(perr)}
		},
	},
	{
		match:   is(ErrNotFound, customerdomain.ErrCustomerNotFound, invoicedomain.ErrNoCustomers, gorm.ErrRecordNotFound),
		status:  http.StatusNotFound,
		payload: fixed("not_found", "not found"),
	},
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalError
	}
	for _, rule := range errorRules {
		if rule.match(err) {
			return rule.status, rule.payload(err)
		}
	}
	return http.StatusInternalServerError, internalError
}

func protocolErrorMessage(perr *carrier.ProtocolError) string {
	if perr.StatusCode != 0 {
		return fmt.Sprintf("carrier %s failed with status %d", perr.Phase, perr.StatusCode)
	}
	return fmt.Sprintf("carrier %s failed", perr.Phase)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, cdrdomain.ErrInvalidCustomerIDs),
		errors.Is(err, cdrdomain.ErrInvalidMonth):
		return true
	case isCustomerValidationError(err):
		return true
	default:
		return false
	}
}

// validationErrorCode returns the sentinel text of err, dropping any
// wrapped detail.
func validationErrorCode(err error) string {
	code, _, _ := strings.Cut(err.Error(), ":")
	return strings.TrimSpace(code)
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_rate_profile":
		return "rate_profile"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, validationErrorCode(err)
}
