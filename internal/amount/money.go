package amount

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Money is a currency amount with minor-unit (2 decimal) precision.
type Money struct {
	decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{decimal.Zero}

// NewMoney wraps d.
func NewMoney(d decimal.Decimal) Money { return Money{d} }

// FromFloat converts f, rounding to minor units.
func FromFloat(f float64) Money { return Money{decimal.NewFromFloat(f).Round(2)} }

// FromPaise converts an amount in minor units.
func FromPaise(p int64) Money { return Money{decimal.New(p, -2)} }

// Parse parses a decimal string such as "499.17".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Money{d}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Paise returns the amount in minor units.
func (m Money) Paise() int64 { return m.Shift(2).Round(0).IntPart() }

// HasMinorPrecision reports whether m has at most two decimals.
func (m Money) HasMinorPrecision() bool { return m.Equal(m.Round(2)) }

// Float64 returns the amount as a float, for metrics.
func (m Money) Float64() float64 {
	f, _ := m.Decimal.Float64()
	return f
}

func (m Money) String() string { return m.StringFixed(2) }

// MarshalJSON renders a bare JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) { return []byte(m.StringFixed(2)), nil }

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(b []byte) error { return m.Decimal.UnmarshalJSON(b) }

// MarshalDynamoDBAttributeValue stores the amount as a number attribute.
func (m Money) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: m.StringFixed(2)}, nil
}

// UnmarshalDynamoDBAttributeValue reads a number (or legacy string) attribute.
func (m *Money) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	case *types.AttributeValueMemberNULL:
		m.Decimal = decimal.Zero
		return nil
	default:
		return fmt.Errorf("unsupported attribute type %T for amount", av)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("decode amount %q: %w", raw, err)
	}
	m.Decimal = d
	return nil
}
