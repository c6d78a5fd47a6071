package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
	CNY Currency = "CNY" // Chinese Yuan
)

// DefaultCurrency is used when a payment does not carry one
const DefaultCurrency = USD

// AmountScale is the number of decimal places stored for every ledger amount
const AmountScale int32 = 4

// CentScale is the precision amounts are rounded to when they are split
const CentScale int32 = 2

// Tolerance is the largest difference treated as equal when comparing sums
var Tolerance = decimal.New(1, -2)

// Money is a value object representing a monetary amount in a currency.
// It is immutable - all operations return new Money instances.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{
		amount:   NormalizeAmount(amount),
		currency: currency,
	}, nil
}

// NewMoneyFromString creates Money from a string representation
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d, currency)
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// Add returns a new Money with the sum of both amounts
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Subtract returns a new Money with the difference
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot subtract money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Equals returns true if both Money values are equal (same amount and currency)
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String returns a string representation of the Money
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(CentScale), m.currency)
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}{
		Amount:   m.amount.StringFixed(AmountScale),
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	m.amount = NormalizeAmount(amount)
	m.currency = v.Currency
	return nil
}

// NormalizeAmount rounds d to the stored ledger scale
func NormalizeAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// WithinTolerance reports whether |a - b| <= Tolerance
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// IsNegligible reports whether amount is within Tolerance of zero
func IsNegligible(amount decimal.Decimal) bool {
	return WithinTolerance(amount, decimal.Zero)
}

// MinorUnits converts amount to integer cents, truncating sub-cent digits
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(CentScale).IntPart()
}

// SplitWithinCaps divides total across caps in proportion to each cap. Each
// share is rounded down to cents and the last share absorbs the rounding
// residue. Residue that would push the last share past its cap moves on to
// the share before it, so no share exceeds its cap and the shares still sum
// exactly to total.
func SplitWithinCaps(total decimal.Decimal, caps []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(caps) == 0 {
		return nil, errors.New("caps cannot be empty")
	}
	if total.IsNegative() {
		return nil, errors.New("total cannot be negative")
	}
	sum := decimal.Zero
	for _, c := range caps {
		if c.IsNegative() {
			return nil, errors.New("caps cannot be negative")
		}
		sum = sum.Add(c)
	}
	if !sum.IsPositive() {
		return nil, errors.New("caps must sum to a positive amount")
	}
	if total.GreaterThan(sum) {
		return nil, fmt.Errorf("total %s exceeds caps %s", total.String(), sum.String())
	}

	shares := make([]decimal.Decimal, len(caps))
	residue := total
	for i, c := range caps {
		shares[i] = total.Mul(c).Div(sum).Truncate(CentScale)
		residue = residue.Sub(shares[i])
	}

	for i := len(caps) - 1; i >= 0 && residue.IsPositive(); i-- {
		step := decimal.Min(residue, caps[i].Sub(shares[i]))
		shares[i] = shares[i].Add(step)
		residue = residue.Sub(step)
	}
	return shares, nil
}
