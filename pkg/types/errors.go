package types

import (
	"errors"
	"fmt"
	"strings"
)

// ————————————————————————————————————————————————————————————————————————
// Error taxonomy
// ————————————————————————————————————————————————————————————————————————
//
// ValidationError    — bad input or rejected payment; user-correctable (4xx)
// ExchangeError      — non-zero response code from the exchange
// NetworkError       — transport failure before a response was decoded
// ContractError      — chain call failure or revert; fatal for its step
// ConfigurationError — missing credentials or wrong operator; fatal, never retried

// ValidationError reports rejected user input. The reason is surfaced to the
// caller verbatim for operator debugging.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError builds a ValidationError with the given reason.
func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExchangeError is a non-zero {code, message} response from the exchange.
type ExchangeError struct {
	Method  string
	Code    int64
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange %s: code %d: %s", e.Method, e.Code, e.Message)
}

// NetworkError is a transport-level failure: the request never produced a
// decodable exchange response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ContractError is a failed or reverted on-chain call.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract %s: %v", e.Op, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

// ConfigurationError reports missing or wrong operator-side configuration.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// ————————————————————————————————————————————————————————————————————————
// User-facing error normalization
// ————————————————————————————————————————————————————————————————————————

// humanizeRules maps well-known error substrings to plain-language
// replacements shown to the admin UI. Checked in order.
var humanizeRules = []struct {
	substr  string
	message string
}{
	{"execution reverted", "the contract rejected the transaction"},
	{"insufficient funds", "the operator wallet has insufficient funds for gas"},
	{"user rejected", "the transaction was rejected in the wallet"},
	{"nonce too low", "a previous transaction is still pending, try again"},
	{"context deadline exceeded", "the request timed out"},
	{"connection refused", "the upstream service is unreachable"},
}

// humanizeMaxLen caps unrecognized error strings in API responses.
const humanizeMaxLen = 160

// Humanize converts an internal error into a short, user-visible string.
// Recognized failure modes get a plain-language equivalent; anything long
// and unrecognized is truncated with a pointer to the logs.
func Humanize(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, rule := range humanizeRules {
		if strings.Contains(lower, rule.substr) {
			return rule.message
		}
	}
	if len(msg) > humanizeMaxLen {
		return msg[:humanizeMaxLen] + "… (see operator logs)"
	}
	return msg
}
