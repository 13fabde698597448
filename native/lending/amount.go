package lending

import (
	"errors"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is the fixed-point scale used by WOORT and every amount the
// vault and the indexer report.
const DefaultDecimals uint8 = 18

var (
	ErrEmptyAmount    = errors.New("lending: amount is empty")
	ErrInvalidAmount  = errors.New("lending: amount is not a non-negative decimal")
	ErrAmountOverflow = errors.New("lending: amount exceeds 256 bits")
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
)

// compactFractionDigits bounds the fractional digits shown for sub-unit
// amounts in the compact format.
const compactFractionDigits = 6

// ZeroDecimalString returns the zero value rendered with decimals fractional
// digits.
func ZeroDecimalString(decimals uint8) string {
	if decimals == 0 {
		return "0"
	}
	return "0." + strings.Repeat("0", int(decimals))
}

// ToDecimalString renders v with exactly decimals zero-padded fractional
// digits. Nothing is rounded and the integer part is never abbreviated. A nil
// amount renders as zero.
func ToDecimalString(v TokenAmount, decimals uint8) string {
	if v == nil {
		return ZeroDecimalString(decimals)
	}
	return placeDecimalPoint(v.ToBig().String(), decimals)
}

// RawToDecimalString is ToDecimalString for the decimal-string encoding used
// by the indexer. Malformed or negative input renders as zero.
func RawToDecimalString(raw string, decimals uint8) string {
	v, ok := ParseRaw(raw)
	if !ok {
		return ZeroDecimalString(decimals)
	}
	return ToDecimalString(v, decimals)
}

// FormatIndex renders an 18-decimal interest index at full precision.
func FormatIndex(index TokenAmount) string {
	return ToDecimalString(index, DefaultDecimals)
}

func placeDecimalPoint(digits string, decimals uint8) string {
	if decimals == 0 {
		return digits
	}
	scale := int(decimals)
	if len(digits) <= scale {
		return "0." + strings.Repeat("0", scale-len(digits)) + digits
	}
	cut := len(digits) - scale
	return digits[:cut] + "." + digits[cut:]
}

// ParseRaw decodes an unscaled base-10 integer such as "1500000000000000000".
func ParseRaw(raw string) (TokenAmount, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !allDigits(trimmed) {
		return new(uint256.Int), false
	}
	n, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return new(uint256.Int), false
	}
	return FromBig(n)
}

// ToAbbreviatedString renders v for compact display. Integer parts of at
// least one million or one thousand are shortened to two rounded fractional
// digits with an M or K suffix. Smaller amounts show the integer part, or up
// to six fractional digits when below one. Precision is lost by design; use
// ToDecimalString wherever the exact value matters.
func ToAbbreviatedString(v TokenAmount, decimals uint8) string {
	if v == nil || v.IsZero() {
		return "0"
	}
	value := decimal.NewFromBigInt(v.ToBig(), -int32(decimals))
	whole := value.Truncate(0)
	switch {
	case whole.GreaterThanOrEqual(million):
		return whole.Div(million).StringFixed(2) + "M"
	case whole.GreaterThanOrEqual(thousand):
		return whole.Div(thousand).StringFixed(2) + "K"
	case whole.IsZero():
		fraction := ToDecimalString(v, decimals)
		if dot := strings.IndexByte(fraction, '.'); dot >= 0 {
			fraction = fraction[dot+1:]
		}
		if len(fraction) > compactFractionDigits {
			fraction = fraction[:compactFractionDigits]
		}
		fraction = strings.TrimRight(fraction, "0")
		if fraction == "" {
			return "0"
		}
		return "0." + fraction
	default:
		return whole.String()
	}
}

// ToFloat converts v into a float for chart axes. The result is inexact for
// amounts beyond float64 precision.
func ToFloat(v TokenAmount, decimals uint8) float64 {
	if v == nil || v.IsZero() {
		return 0
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).InexactFloat64()
}

// ToFixedString renders v rounded half away from zero to places fractional
// digits, as used for report columns.
func ToFixedString(v TokenAmount, decimals uint8, places int32) string {
	if v == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).StringFixed(places)
}

// ParseDecimalString parses user input such as "1,250.5" into its scaled
// integer form. Grouping commas are stripped and the fractional part is
// padded or truncated to decimals digits. Empty, malformed or overflowing
// input yields zero; the function never fails because it sits behind an
// interactive input field.
func ParseDecimalString(input string, decimals uint8) TokenAmount {
	v, err := ParseDecimalStrict(input, decimals)
	if err != nil {
		return new(uint256.Int)
	}
	return v
}

// ParseDecimalStrict implements the ParseDecimalString grammar but reports
// why the input was rejected.
func ParseDecimalStrict(input string, decimals uint8) (TokenAmount, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(input), ",", "")
	if clean == "" {
		return nil, ErrEmptyAmount
	}
	whole, fraction, _ := strings.Cut(clean, ".")
	if whole == "" && fraction == "" {
		return nil, ErrInvalidAmount
	}
	if !allDigits(whole) || !allDigits(fraction) {
		return nil, ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}
	scale := int(decimals)
	if len(fraction) > scale {
		fraction = fraction[:scale]
	} else {
		fraction += strings.Repeat("0", scale-len(fraction))
	}
	n, ok := new(big.Int).SetString(whole+fraction, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return v, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
