package carrier

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingCredentials = errors.New("carrier_missing_credentials")
	ErrExportTimeout      = errors.New("carrier_export_timeout")
	ErrMalformedPayload   = errors.New("carrier_malformed_payload")
)

// Phase names the protocol step that failed.
type Phase string

const (
	PhaseLogin    Phase = "login"
	PhaseExport   Phase = "export_request"
	PhasePoll     Phase = "export_poll"
	PhaseDownload Phase = "download"
	PhaseDIDs     Phase = "did_list"
)

// ProtocolError is a failed exchange with the carrier API. StatusCode is 0
// when no HTTP response was received.
type ProtocolError struct {
	Phase      Phase
	StatusCode int
	Body       string
	Err        error
}

func (e *ProtocolError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("carrier %s failed (%d): %s", e.Phase, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("carrier %s failed (%d)", e.Phase, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("carrier %s failed: %v", e.Phase, e.Err)
	default:
		return fmt.Sprintf("carrier %s failed", e.Phase)
	}
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a later run could succeed without operator
// action: timeouts, transport failures, 429 and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrExportTimeout) {
		return true
	}
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		return false
	}
	if errors.Is(perr.Err, ErrMalformedPayload) {
		return false
	}
	switch {
	case perr.StatusCode == 0:
		return true
	case perr.StatusCode == http.StatusTooManyRequests:
		return true
	case perr.StatusCode >= 500:
		return true
	default:
		return false
	}
}

func malformed(phase Phase, format string, args ...any) error {
	return &ProtocolError{
		Phase: phase,
		Err:   fmt.Errorf("%w: "+format, append([]any{ErrMalformedPayload}, args...)...),
	}
}
