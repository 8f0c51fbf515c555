package domain

import "errors"

// Service classifies and prices individual calls. It is pure and safe for
// concurrent use.
type Service interface {
	Classify(CallAttributes) Category
	Rate(Call, RateProfile) (RatedCall, error)
}

var (
	ErrInvalidDuration = errors.New("invalid_duration")
	ErrInvalidRate     = errors.New("invalid_rate")
)
