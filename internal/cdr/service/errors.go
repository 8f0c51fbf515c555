package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/cdrbill/internal/providers/carrier"
	"github.com/smallbiznis/cdrbill/internal/runlock"
	"github.com/smallbiznis/cdrbill/pkg/db"
)

// IsRetryable reports whether repeating a failed run could succeed without
// operator action.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, runlock.ErrLocked), errors.Is(err, context.DeadlineExceeded):
		return true
	case carrier.IsRetryable(err):
		return true
	default:
		return db.IsRetryable(err)
	}
}
