// Package money carries rupee amounts across the JSON and BSON boundaries.
// Arithmetic happens on decimal.Decimal; Amount only fixes how a value is
// rendered and stored.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Places is the number of decimal places a rupee amount is settled at (paise)
const Places = 2

var hundred = decimal.NewFromInt(100)

// Amount is a rupee value. It marshals to JSON as a number with two
// decimals and to BSON as Decimal128.
type Amount struct {
	decimal.Decimal
}

// New wraps d
func New(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// Zero returns a zero amount
func Zero() Amount {
	return Amount{Decimal: decimal.Zero}
}

// FromPaise builds an amount from an integer number of paise
func FromPaise(paise int64) Amount {
	return Amount{Decimal: decimal.New(paise, -Places)}
}

// MustParse parses s or panics. Intended for constants and tests.
func MustParse(s string) Amount {
	return Amount{Decimal: decimal.RequireFromString(s)}
}

// Settle rounds d half away from zero to paise. Applied when a charge becomes a
// wallet movement; intermediate sums are never rounded.
func Settle(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Paise returns the settled amount as an integer count of paise
func (a Amount) Paise() int64 {
	return Settle(a.Decimal).Mul(hundred).IntPart()
}

// String renders the amount with exactly two decimals
func (a Amount) String() string {
	return a.Decimal.StringFixed(Places)
}

// MarshalJSON renders a JSON number with two decimals
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.StringFixed(Places)), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string
func (a *Amount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	return a.Decimal.UnmarshalJSON(data)
}

// MarshalBSONValue stores the amount as Decimal128
func (a Amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d128, err := primitive.ParseDecimal128(a.Decimal.String())
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode amount %s: %w", a.Decimal.String(), err)
	}
	return bson.MarshalValue(d128)
}

// UnmarshalBSONValue reads Decimal128, double, int32, int64 or string values
func (a *Amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}

	switch t {
	case bsontype.Null, bsontype.Undefined:
		a.Decimal = decimal.Zero
		return nil
	case bsontype.Decimal128:
		d, err := decimal.NewFromString(raw.Decimal128().String())
		if err != nil {
			return fmt.Errorf("failed to decode decimal128 amount: %w", err)
		}
		a.Decimal = d
	case bsontype.Double:
		a.Decimal = decimal.NewFromFloat(raw.Double())
	case bsontype.Int32:
		a.Decimal = decimal.NewFromInt32(raw.Int32())
	case bsontype.Int64:
		a.Decimal = decimal.NewFromInt(raw.Int64())
	case bsontype.String:
		d, err := decimal.NewFromString(raw.StringValue())
		if err != nil {
			return fmt.Errorf("failed to decode string amount: %w", err)
		}
		a.Decimal = d
	default:
		return fmt.Errorf("cannot decode %s into money.Amount", t)
	}
	return nil
}
