package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency describes how minor units map to a decimal amount. The ledger
// stores and compares minor units only; decimals exist at the edges.
type Currency struct {
	Code     string
	Exponent int32
}

// Format renders minor units as a fixed-point decimal string.
func (c Currency) Format(minor int64) string {
	return decimal.New(minor, -c.Exponent).StringFixed(c.Exponent)
}

// Parse converts a decimal string to minor units. Amounts with more
// precision than the currency allows are rejected rather than rounded.
func (c Currency) Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, validationError("parse amount", "%q is not a decimal amount", s)
	}
	minor := d.Shift(c.Exponent)
	if !minor.IsInteger() {
		return 0, validationError("parse amount", "%s allows at most %d decimal places", c.Code, c.Exponent)
	}
	bi := minor.BigInt()
	if !bi.IsInt64() {
		return 0, validationError("parse amount", "amount %s is out of range", s)
	}
	return bi.Int64(), nil
}

func (c Currency) String() string {
	return fmt.Sprintf("%s(%d)", c.Code, c.Exponent)
}
