package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of micro-units in one currency unit.
const Scale = 1_000_000

const fractionDigits = 6

const maxMarkupBasisPoints = 1 << 53

var ErrInvalidAmount = errors.New("invalid_amount")

// Micros is an exact money amount with 6 implied decimal digits.
type Micros int64

// Parse converts a decimal string to micro-units. The fractional part is
// padded or truncated to 6 digits. An empty string is zero.
func Parse(s string) (Micros, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.ContainsAny(s, "eE") {
		return parseExponent(s)
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if len(fracPart) > fractionDigits {
		fracPart = fracPart[:fractionDigits]
	} else {
		fracPart += strings.Repeat("0", fractionDigits-len(fracPart))
	}

	var whole int64
	if intPart != "" {
		v, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		whole = v
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if whole > (math.MaxInt64-frac)/Scale {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, s)
	}

	v := whole*Scale + frac
	if negative {
		v = -v
	}
	return Micros(v), nil
}

func parseExponent(s string) (Micros, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	scaled := d.Shift(fractionDigits).Truncate(0)
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, s)
	}
	return Micros(scaled.IntPart()), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Micros {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseOptional returns zero for a nil value.
func ParseOptional(s *string) (Micros, error) {
	if s == nil {
		return 0, nil
	}
	return Parse(*s)
}

// FromNumber converts a JSON number literal without going through float64.
func FromNumber(n json.Number) (Micros, error) {
	return Parse(n.String())
}

// String formats the amount as sign, integer part and a 6-digit fraction.
func (m Micros) String() string {
	v := int64(m)
	sign := ""
	var mag uint64
	if v < 0 {
		sign = "-"
		mag = uint64(-(v + 1)) + 1
	} else {
		mag = uint64(v)
	}
	return fmt.Sprintf("%s%d.%06d", sign, mag/Scale, mag%Scale)
}

// Mul multiplies the amount by an integer quantity.
func (m Micros) Mul(n int64) Micros {
	return m * Micros(n)
}

// Decimal exposes the amount as a decimal for presentation math.
func (m Micros) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -fractionDigits)
}

// FromDecimal truncates d to micro precision.
func FromDecimal(d decimal.Decimal) Micros {
	return Micros(d.Shift(fractionDigits).Truncate(0).IntPart())
}

// ApplyMarkup returns base * (10000 + round(percent*100)) / 10000. Basis
// points round half toward +inf; the division truncates toward zero. A
// result outside the Micros range is an error.
func ApplyMarkup(base Micros, percent float64) (Micros, error) {
	bps := math.Floor(percent*100 + 0.5)
	if math.IsNaN(bps) || math.Abs(bps) > maxMarkupBasisPoints {
		return 0, fmt.Errorf("%w: markup %v%%", ErrInvalidAmount, percent)
	}
	factor := big.NewInt(10000 + int64(bps))
	product := new(big.Int).Mul(big.NewInt(int64(base)), factor)
	product.Quo(product, big.NewInt(10000))
	if !product.IsInt64() {
		return 0, fmt.Errorf("%w: %s with %v%% markup overflows", ErrInvalidAmount, base, percent)
	}
	return Micros(product.Int64()), nil
}

// Sum adds amounts.
func Sum(values ...Micros) Micros {
	var total Micros
	for _, v := range values {
		total += v
	}
	return total
}

func (m Micros) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Micros) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Value stores the amount as a decimal string.
func (m Micros) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan reads decimal columns returned as strings, bytes, integers or floats.
func (m *Micros) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = 0
		return nil
	case string:
		return m.parseInto(v)
	case []byte:
		return m.parseInto(string(v))
	case int64:
		*m = Micros(v * Scale)
		return nil
	case float64:
		return m.parseInto(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}

func (m *Micros) parseInto(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
