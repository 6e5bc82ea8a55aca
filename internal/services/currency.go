package services

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	maxCurrency        = decimal.NewFromInt(10_000_000_000)
	errInvalidCurrency = errors.New("invalid currency format")
)

// CurrencyInput accepts a JSON number or a formatted string such as "₦1,250.00".
type CurrencyInput struct {
	raw string
	set bool
}

func NewCurrencyInput(raw string) CurrencyInput {
	return CurrencyInput{raw: raw, set: true}
}

func (c *CurrencyInput) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = CurrencyInput{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = NewCurrencyInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = NewCurrencyInput(n.String())
	return nil
}

func (c CurrencyInput) MarshalJSON() ([]byte, error) {
	if !c.set {
		return []byte("null"), nil
	}
	return json.Marshal(c.raw)
}

// Provided reports whether a non-blank value was sent.
func (c CurrencyInput) Provided() bool {
	return c.set && strings.TrimSpace(c.raw) != ""
}

func (c CurrencyInput) Value() (decimal.Decimal, error) {
	return cleanCurrency(c.raw)
}

// ValueOr returns fallback when nothing was sent.
func (c CurrencyInput) ValueOr(fallback decimal.Decimal) (decimal.Decimal, error) {
	if !c.Provided() {
		return fallback, nil
	}
	return c.Value()
}

// cleanCurrency keeps only digits and the decimal point, then rounds to
// two places. Values above ten billion are rejected.
func cleanCurrency(raw string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || strings.Count(cleaned, ".") > 1 {
		return decimal.Zero, errInvalidCurrency
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, errInvalidCurrency
	}
	if value.IsNegative() || value.GreaterThan(maxCurrency) {
		return decimal.Zero, errInvalidCurrency
	}
	return value.Round(2), nil
}

// currencyField validates a required money field and names it on failure.
func currencyField(name string, in CurrencyInput) (decimal.Decimal, error) {
	if !in.Provided() {
		return decimal.Zero, newValidationError("%s is required", name)
	}
	value, err := in.Value()
	if err != nil {
		return decimal.Zero, newValidationError("Invalid %s format", name)
	}
	return value, nil
}
