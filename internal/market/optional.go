package market

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
)

// Float is a JSON number field that keeps track of absent, null and
// non-numeric values. The zero value means the key was absent.
type Float struct {
	Present bool
	Null    bool
	Valid   bool
	Value   float64
}

// NewFloat returns a present, valid Float.
func NewFloat(v float64) Float {
	return Float{Present: true, Valid: true, Value: v}
}

func (f *Float) UnmarshalJSON(b []byte) error {
	*f = Float{Present: true}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	if string(b) == "null" {
		f.Null = true
		return nil
	}
	if !isNumberLiteral(b) {
		return nil
	}
	if err := json.Unmarshal(b, &f.Value); err != nil {
		return nil
	}
	f.Valid = true
	return nil
}

// Finite reports the value when it is a finite number.
func (f Float) Finite() (float64, bool) {
	if !f.Valid || math.IsNaN(f.Value) || math.IsInf(f.Value, 0) {
		return 0, false
	}
	return f.Value, true
}

// Amount is a price that arrives either as a bare number or as a money
// object {"cents": 7234, "currency_iso": "USD"}.
type Amount struct {
	Present  bool
	Number   *decimal.Decimal
	Cents    *decimal.Decimal
	Currency string
}

// NewAmount returns an Amount in bare numeric form.
func NewAmount(v float64) Amount {
	d := decimal.NewFromFloat(v)
	return Amount{Present: true, Number: &d}
}

// NewCents returns an Amount in minor-unit form.
func NewCents(cents int64, currency string) Amount {
	d := decimal.NewFromInt(cents)
	return Amount{Present: true, Cents: &d, Currency: currency}
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	*a = Amount{Present: true}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}

	if isNumberLiteral(b) {
		if d, err := decimal.NewFromString(string(b)); err == nil {
			a.Number = &d
		}
		return nil
	}
	if b[0] != '{' {
		return nil
	}

	var money struct {
		Cents       json.RawMessage `json:"cents"`
		CurrencyISO string          `json:"currency_iso"`
		Currency    string          `json:"currency"`
	}
	if err := json.Unmarshal(b, &money); err != nil {
		return nil
	}
	a.Currency = money.CurrencyISO
	if a.Currency == "" {
		a.Currency = money.Currency
	}
	cents := bytes.TrimSpace(money.Cents)
	if isNumberLiteral(cents) {
		if d, err := decimal.NewFromString(string(cents)); err == nil {
			a.Cents = &d
		}
	}
	return nil
}

// Resolve returns the amount in major units. Minor units are divided by 100.
func (a Amount) Resolve() (float64, bool) {
	switch {
	case a.Number != nil:
		v, _ := a.Number.Float64()
		return v, true
	case a.Cents != nil:
		v, _ := a.Cents.Shift(-2).Float64()
		return v, true
	default:
		return 0, false
	}
}

func isNumberLiteral(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	c := b[0]
	return c == '-' || (c >= '0' && c <= '9')
}
