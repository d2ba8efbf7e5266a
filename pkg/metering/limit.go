package metering

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const unlimitedLiteral = "unlimited"

var hundred = decimal.NewFromInt(100)

// Limit is a quota value: either a finite, non-negative amount or unlimited.
// The zero value is Limited(0), which permits no usage at all.
type Limit struct {
	amount    decimal.Decimal
	unlimited bool
}

// Limited returns a finite limit. Negative amounts are clamped to zero;
// use NewLimit to get an error instead.
func Limited(amount decimal.Decimal) Limit {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return Limit{amount: amount}
}

// LimitedInt is a shorthand for Limited(decimal.NewFromInt(n)).
func LimitedInt(n int64) Limit {
	return Limited(decimal.NewFromInt(n))
}

// Unlimited returns a limit that never denies.
func Unlimited() Limit {
	return Limit{unlimited: true}
}

// NewLimit validates amount and returns a finite limit.
func NewLimit(amount decimal.Decimal) (Limit, error) {
	if amount.IsNegative() {
		return Limit{}, ErrNegativeLimit
	}
	return Limit{amount: amount}, nil
}

// IsUnlimited reports whether the limit never denies.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Amount returns the finite amount and false for unlimited limits.
func (l Limit) Amount() (decimal.Decimal, bool) {
	if l.unlimited {
		return decimal.Zero, false
	}
	return l.amount, true
}

// Exceeded reports whether projected usage goes over the limit.
// Reaching the limit exactly is allowed.
func (l Limit) Exceeded(projected decimal.Decimal) bool {
	if l.unlimited {
		return false
	}
	return projected.GreaterThan(l.amount)
}

// Percent returns projected/limit*100 without clamping; values above 100 are
// expected when usage is over quota. Unlimited limits report 0. A zero limit
// reports 0 for zero usage and 100 for anything above it.
func (l Limit) Percent(projected decimal.Decimal) float64 {
	if l.unlimited {
		return 0
	}
	if l.amount.IsZero() {
		if projected.IsPositive() {
			return 100
		}
		return 0
	}
	return projected.Div(l.amount).Mul(hundred).InexactFloat64()
}

// Remaining returns how much is left before the limit is reached, never negative.
// The boolean is false for unlimited limits.
func (l Limit) Remaining(used decimal.Decimal) (decimal.Decimal, bool) {
	if l.unlimited {
		return decimal.Zero, false
	}
	rest := l.amount.Sub(used)
	if rest.IsNegative() {
		return decimal.Zero, true
	}
	return rest, true
}

// Equal reports whether both limits are identical.
func (l Limit) Equal(other Limit) bool {
	if l.unlimited || other.unlimited {
		return l.unlimited == other.unlimited
	}
	return l.amount.Equal(other.amount)
}

func (l Limit) String() string {
	if l.unlimited {
		return unlimitedLiteral
	}
	return l.amount.String()
}

// ParseLimit parses "unlimited" or a non-negative decimal number.
func ParseLimit(s string) (Limit, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, unlimitedLiteral) {
		return Unlimited(), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Limit{}, fmt.Errorf("%w: %q", ErrInvalidLimit, s)
	}
	return NewLimit(d)
}

// MarshalJSON encodes unlimited as the string "unlimited" and finite limits as numbers.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return json.Marshal(unlimitedLiteral)
	}
	return []byte(l.amount.String()), nil
}

func (l *Limit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	parsed, err := ParseLimit(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l Limit) MarshalYAML() (any, error) {
	return l.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Limit) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseLimit(value.Value)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
