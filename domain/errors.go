package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a category of failure in the feed client.
//
// Codes are grouped:
//   - 100-199: frame decoding
//   - 200-299: subscriptions
//   - 300-399: authentication
//   - 400-499: transport
//   - 500-599: readiness
//   - 600-699: lifecycle
//   - 700-799: table store
//   - 800-899: configuration
//   - 900-999: state machine
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = 1

	ErrCodeMalformedFrame ErrorCode = 100

	ErrCodeSubscription ErrorCode = 200

	ErrCodeAuthentication ErrorCode = 300

	ErrCodeTransport ErrorCode = 400

	ErrCodeReadinessTimeout ErrorCode = 500

	ErrCodeClosed         ErrorCode = 600
	ErrCodeAlreadyOpened  ErrorCode = 601
	ErrCodeNotFound       ErrorCode = 602
	ErrCodeInvalidRequest ErrorCode = 603

	ErrCodeTableNotFound ErrorCode = 700
	ErrCodeKeylessTable  ErrorCode = 701
	ErrCodeMissingKey    ErrorCode = 702
	ErrCodeInvalidAction ErrorCode = 703

	ErrCodeConfiguration ErrorCode = 800

	ErrCodeInvalidTransition ErrorCode = 900
)

// Error is a coded error. Two errors match under errors.Is when their codes are equal,
// so the package level sentinels can be used to classify wrapped failures.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

var (
	ErrMalformedFrame    = New(ErrCodeMalformedFrame, "malformed frame")
	ErrSubscription      = New(ErrCodeSubscription, "subscription failed")
	ErrAuthentication    = New(ErrCodeAuthentication, "authentication failed")
	ErrTransport         = New(ErrCodeTransport, "transport failure")
	ErrReadinessTimeout  = New(ErrCodeReadinessTimeout, "initial data did not arrive in time")
	ErrClosed            = New(ErrCodeClosed, "connection closed")
	ErrAlreadyOpened     = New(ErrCodeAlreadyOpened, "connection already opened")
	ErrStreamNotFound    = New(ErrCodeNotFound, "stream not found")
	ErrInvalidRequest    = New(ErrCodeInvalidRequest, "invalid request")
	ErrTableNotFound     = New(ErrCodeTableNotFound, "table not found")
	ErrKeylessTable      = New(ErrCodeKeylessTable, "table has no keys")
	ErrMissingKey        = New(ErrCodeMissingKey, "record is missing a key field")
	ErrInvalidAction     = New(ErrCodeInvalidAction, "invalid table action")
	ErrConfiguration     = New(ErrCodeConfiguration, "invalid configuration")
	ErrInvalidTransition = New(ErrCodeInvalidTransition, "invalid state transition")
)

func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Code == e.Code
}

// GetCode extracts the code of the outermost *Error in err's chain.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// SubscriptionError carries the server's failure message verbatim in Message.
func SubscriptionError(message string) *Error {
	return New(ErrCodeSubscription, message)
}
