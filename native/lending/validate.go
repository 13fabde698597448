package lending

import (
	"errors"
	"strings"
)

// Validation messages shown next to the amount field.
const (
	MsgAmountRequired = "Amount must be greater than 0"
	MsgInvalidFormat  = "Invalid amount format"
	MsgExceedsMaximum = "Amount exceeds maximum"
)

// ValidationResult is the tagged outcome of ValidateAmount.
type ValidationResult struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
	// Amount is the parsed value when IsValid is true.
	Amount TokenAmount `json:"-"`
}

// ValidateAmount checks user input against an upper bound such as the wallet
// balance or the remaining borrow capacity. The rules apply in order:
//
//  1. empty input or the literal "0" is rejected as zero
//  2. input that does not parse is rejected as malformed
//  3. a parsed value strictly above maxAmount is rejected
//
// A value equal to maxAmount is accepted so "max" actions work exactly.
func ValidateAmount(input string, maxAmount TokenAmount, decimals uint8) ValidationResult {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || trimmed == "0" {
		return ValidationResult{Error: MsgAmountRequired}
	}
	amount, err := ParseDecimalStrict(trimmed, decimals)
	if err != nil {
		if errors.Is(err, ErrEmptyAmount) {
			return ValidationResult{Error: MsgAmountRequired}
		}
		return ValidationResult{Error: MsgInvalidFormat}
	}
	if amount.Gt(zeroIfNil(maxAmount)) {
		return ValidationResult{Error: MsgExceedsMaximum}
	}
	return ValidationResult{IsValid: true, Amount: amount}
}
