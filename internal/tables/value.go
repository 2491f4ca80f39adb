package tables

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/soltixdb/pvratio/internal/analytics"
)

// Value is a float that may be non-finite. In CSV, NaN is an empty cell and
// infinities are written as +Inf or -Inf. JSON has no infinities, so every
// non-finite value is null there and reads back as NaN.
type Value float64

// NaN is the missing Value.
var NaN = Value(math.NaN())

// Float returns v as float64.
func (v Value) Float() float64 {
	return float64(v)
}

// Defined reports whether v is finite.
func (v Value) Defined() bool {
	return analytics.IsFinite(float64(v))
}

func (v Value) String() string {
	if math.IsNaN(float64(v)) {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'g', -1, 64)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Defined() {
		return []byte("null"), nil
	}
	return []byte(v.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = NaN
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Value(f)
	return nil
}

func parseValue(s string) (Value, error) {
	if s == "" {
		return NaN, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NaN, err
	}
	return Value(f), nil
}
