// Package coreerr defines the coded hard-failure error shared by the receipt
// engines, the key codec and the collaborator clients.
package coreerr

import (
	"errors"
	"fmt"
)

// Error codes. Callers match on these, never on message text.
const (
	ErrInvalidKey           = "ERR_INVALID_KEY"
	ErrInvalidSPKI          = "ERR_INVALID_SPKI"
	ErrInvalidPEM           = "ERR_INVALID_PEM"
	ErrUnsupportedCanonical = "ERR_UNSUPPORTED_CANONICAL"
	ErrInvalidReceipt       = "ERR_INVALID_RECEIPT"
	ErrENSProvider          = "ERR_ENS_PROVIDER"
	ErrENSInvalidRecord     = "ERR_ENS_INVALID_RECORD"
	ErrENSNoSignerKey       = "ERR_ENS_NO_SIGNER_KEY"
	ErrENSNoResolver        = "ERR_ENS_NO_RESOLVER"
	ErrSchemaFetch          = "ERR_SCHEMA_FETCH"
	ErrSchemaCompile        = "ERR_SCHEMA_COMPILE"
	ErrInvalidRequest       = "ERR_INVALID_REQUEST"
)

// Error is a typed, non-recoverable failure carrying a short code and a
// human-readable message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New returns an Error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf returns an Error whose message is formatted with fmt.Sprintf.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error that keeps cause reachable through errors.Unwrap.
func Wrap(code string, cause error, message string) *Error {
	if cause != nil {
		message = message + ": " + cause.Error()
	}
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err, or anything it wraps, is an *Error with code.
func HasCode(err error, code string) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
