package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in currency minor units (cents). Totals are always summed
// as Money; decimal.Decimal is only used when reading from or writing to
// storage and API payloads.
type Money int64

const moneyScale = 2

// MoneyFromDecimal converts a major-unit decimal (45.99) into minor units.
// Amounts with more precision than the currency allows are rejected rather than
// rounded.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return 0, &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if !d.Equal(d.Truncate(moneyScale)) {
		return 0, &ValidationError{Field: "price", Reason: fmt.Sprintf("%s has more than %d decimal places", d.String(), moneyScale)}
	}
	return Money(d.Shift(moneyScale).IntPart()), nil
}

// ParseMoney parses a major-unit string such as "32.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &ValidationError{Field: "price", Reason: fmt.Sprintf("%q is not a number", s)}
	}
	return MoneyFromDecimal(d)
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -moneyScale)
}

// MinorUnits is the value payment processors expect (unit_amount).
func (m Money) MinorUnits() int64 {
	return int64(m)
}

func (m Money) Mul(quantity int) Money {
	return m * Money(quantity)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(moneyScale)
}

// MarshalJSON renders money as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}
