package services

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanCurrency(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "1250", want: "1250"},
		{raw: "₦1,250.50", want: "1250.5"},
		{raw: " 99.999 ", want: "100"},
		{raw: "0", want: "0"},
		{raw: "10000000000", want: "10000000000"},
		{raw: "10000000000.01", wantErr: true},
		{raw: "1.2.3", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := cleanCurrency(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, errInvalidCurrency)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestCurrencyInput_UnmarshalJSON(t *testing.T) {
	var body struct {
		Number  CurrencyInput `json:"number"`
		String  CurrencyInput `json:"string"`
		Null    CurrencyInput `json:"null"`
		Missing CurrencyInput `json:"missing"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"number": 12.5, "string": "₦3,000", "null": null}`), &body))

	number, err := body.Number.Value()
	require.NoError(t, err)
	assert.Equal(t, "12.5", number.String())

	str, err := body.String.Value()
	require.NoError(t, err)
	assert.Equal(t, "3000", str.String())

	assert.False(t, body.Null.Provided())
	assert.False(t, body.Missing.Provided())

	fallback, err := body.Missing.ValueOr(decimal.NewFromInt(7))
	require.NoError(t, err)
	assert.Equal(t, "7", fallback.String())

	var bad CurrencyInput
	assert.Error(t, json.Unmarshal([]byte(`true`), &bad))
}

func TestCurrencyInput_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(NewCurrencyInput("12.50"))
	require.NoError(t, err)
	assert.JSONEq(t, `"12.50"`, string(data))

	data, err = json.Marshal(CurrencyInput{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestCurrencyField(t *testing.T) {
	_, err := currencyField("amount", CurrencyInput{})
	assert.EqualError(t, err, "amount is required")

	_, err = currencyField("amount", NewCurrencyInput("   "))
	assert.EqualError(t, err, "amount is required")

	_, err = currencyField("amount", NewCurrencyInput("1.2.3"))
	assert.EqualError(t, err, "Invalid amount format")
	assert.ErrorIs(t, err, ErrValidation)

	value, err := currencyField("amount", NewCurrencyInput("45.678"))
	require.NoError(t, err)
	assert.Equal(t, "45.68", value.StringFixed(2))
}
