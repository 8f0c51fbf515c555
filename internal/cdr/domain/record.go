package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/smallbiznis/cdrbill/internal/money"
	ratingdomain "github.com/smallbiznis/cdrbill/internal/rating/domain"
)

// DirectionOutbound is the only billable call direction.
const DirectionOutbound = "outbound"

// Record is one call detail record as exported by the carrier. Optional
// fields are nil or unset when the carrier omits them.
type Record struct {
	BeginTime      string         `json:"begin_time"`
	Duration       Number         `json:"duration"`
	Rate           Rate           `json:"rate"`
	Cost           Number         `json:"cost"`
	Category       *string        `json:"category,omitempty"`
	AdditionalInfo AdditionalInfo `json:"additional_info"`
	Description    *string        `json:"description,omitempty"`
	Attributes     Attributes     `json:"cdr_attr"`
}

type Rate struct {
	Direction *string `json:"direction,omitempty"`
	Rate      Number  `json:"rate"`
}

type AdditionalInfo struct {
	NumberType      *string `json:"NumberType,omitempty"`
	BillingCategory *string `json:"billing_category,omitempty"`
}

type Attributes struct {
	SipUser *string `json:"X-sipuser,omitempty"`
}

// IsOutbound reports whether the carrier flagged the call as outbound.
func (r Record) IsOutbound() bool {
	return r.Rate.Direction != nil && *r.Rate.Direction == DirectionOutbound
}

// LineID returns the originating line identifier, or "" when absent.
func (r Record) LineID() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}

// CallAttributes returns the labels used for classification.
func (r Record) CallAttributes() ratingdomain.CallAttributes {
	return ratingdomain.CallAttributes{
		Category:        r.Category,
		BillingCategory: r.AdditionalInfo.BillingCategory,
		NumberType:      r.AdditionalInfo.NumberType,
	}
}

// Number is an optional numeric field that keeps its JSON literal so money
// values never pass through float64. It accepts numbers, numeric strings and
// null.
type Number struct {
	raw string
}

// NewNumber builds a Number from a literal; "" means unset.
func NewNumber(literal string) Number {
	return Number{raw: strings.TrimSpace(literal)}
}

func (n Number) IsSet() bool {
	return n.raw != ""
}

func (n Number) String() string {
	return n.raw
}

// Micros converts the literal to micro-units; unset is zero.
func (n Number) Micros() (money.Micros, error) {
	return money.Parse(n.raw)
}

// Seconds returns a whole number of seconds, rounding fractional values up.
func (n Number) Seconds() (int64, error) {
	if n.raw == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(n.raw, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(n.raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid seconds %q", n.raw)
	}
	return int64(math.Ceil(f)), nil
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		n.raw = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n.raw = strings.TrimSpace(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	n.raw = num.String()
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if n.raw == "" {
		return []byte("null"), nil
	}
	if !json.Valid([]byte(n.raw)) {
		return json.Marshal(n.raw)
	}
	return []byte(n.raw), nil
}
