// Package decimalx carries high-precision numeric fields through the
// pipeline without ever routing them through a binary float. Per the
// "string-typed decimals" design note, a Number keeps both the parsed
// decimal.Decimal (for comparisons and arithmetic) and the exchange's
// original textual form (for re-serialization), so round-tripping never
// loses or adds precision.
package decimalx

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Number is a decimal value plus its canonical textual form.
type Number struct {
	value decimal.Decimal
	text  string
}

// Zero is the zero-valued Number, printing as "0".
var Zero = Number{value: decimal.Zero, text: "0"}

// Parse builds a Number from an exchange-supplied string, preserving the
// string verbatim for re-serialization.
func Parse(s string) (Number, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{}, fmt.Errorf("decimalx: invalid decimal %q: %w", s, err)
	}
	return Number{value: d, text: s}, nil
}

// MustParse is Parse but panics on error; reserved for constants and test
// fixtures where the input is known-good at compile time.
func MustParse(s string) Number {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// FromDecimal wraps a decimal.Decimal computed in-process (not parsed from
// exchange text), using its canonical decimal string as the text form.
func FromDecimal(d decimal.Decimal) Number {
	return Number{value: d, text: d.String()}
}

// Decimal returns the underlying arbitrary-precision value.
func (n Number) Decimal() decimal.Decimal { return n.value }

// String returns the original textual form, not a re-derived one, so
// trailing zeros the exchange sent are preserved on re-encoding.
func (n Number) String() string {
	if n.text == "" {
		return n.value.String()
	}
	return n.text
}

// IsPositive reports whether the value is strictly greater than zero.
func (n Number) IsPositive() bool { return n.value.IsPositive() }

// IsZero reports whether the value is exactly zero, used by the
// order-book apply-update algorithm to detect level removal.
func (n Number) IsZero() bool { return n.value.IsZero() }

// Cmp compares two Numbers, delegating to decimal.Decimal.Cmp.
func (n Number) Cmp(other Number) int { return n.value.Cmp(other.value) }

func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}

func (n *Number) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
