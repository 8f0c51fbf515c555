package service

import (
	"fmt"

	"github.com/smallbiznis/cdrbill/internal/money"
	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	log *zap.Logger
}

type ServiceParam struct {
	fx.In

	Log *zap.Logger
}

func NewService(p ServiceParam) ratingdomain.Service {
	return &Service{
		log: p.Log.Named("rating.service"),
	}
}

func (s *Service) Classify(attrs ratingdomain.CallAttributes) ratingdomain.Category {
	return Classify(attrs)
}

// Rate prices a call: minutes are rounded up, the base is rate * minutes and
// the billed amount is the base with the category markup applied.
func (s *Service) Rate(call ratingdomain.Call, profile ratingdomain.RateProfile) (ratingdomain.RatedCall, error) {
	if call.DurationSec <= 0 {
		return ratingdomain.RatedCall{}, fmt.Errorf("%w: %d", ratingdomain.ErrInvalidDuration, call.DurationSec)
	}
	if call.RatePerMin == 0 {
		return ratingdomain.RatedCall{}, ratingdomain.ErrInvalidRate
	}

	category := Classify(call.Attributes)
	minutes := BilledMinutes(call.DurationSec)
	base := call.RatePerMin.Mul(minutes)
	pct := profile.Percent(category)
	billed, err := money.ApplyMarkup(base, pct)
	if err != nil {
		return ratingdomain.RatedCall{}, err
	}

	return ratingdomain.RatedCall{
		Category: category,
		Minutes:  minutes,
		Base:     base,
		Percent:  pct,
		Billed:   billed,
	}, nil
}

// BilledMinutes rounds a duration in seconds up to whole minutes.
func BilledMinutes(durationSec int64) int64 {
	if durationSec <= 0 {
		return 0
	}
	return (durationSec + 59) / 60
}
