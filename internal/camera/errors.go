package camera

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a class of camera error.
type ErrorCode string

// Error codes returned by Device operations.
const (
	ErrCodeDeviceUnavailable ErrorCode = "DEVICE_UNAVAILABLE"
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeInvalidState      ErrorCode = "INVALID_STATE"
	ErrCodeInvalidMode       ErrorCode = "INVALID_MODE"
	ErrCodeInvalidFrame      ErrorCode = "INVALID_FRAME"
	ErrCodeBackendFailure    ErrorCode = "BACKEND_FAILURE"
	ErrCodeDisconnected      ErrorCode = "DISCONNECTED"
)

// Sentinels for use with errors.Is. Any *Error with the same code matches.
var (
	ErrDeviceUnavailable = &Error{Code: ErrCodeDeviceUnavailable}
	ErrUnsupportedFormat = &Error{Code: ErrCodeUnsupportedFormat}
	ErrInvalidState      = &Error{Code: ErrCodeInvalidState}
	ErrInvalidMode       = &Error{Code: ErrCodeInvalidMode}
	ErrInvalidFrame      = &Error{Code: ErrCodeInvalidFrame}
	ErrBackendFailure    = &Error{Code: ErrCodeBackendFailure}
	ErrDisconnected      = &Error{Code: ErrCodeDisconnected}
)

// ErrTimeout is returned by Backend.AcquireFrame when no frame arrived within
// the backend's bounded wait. It is not counted as a failure.
var ErrTimeout = errors.New("camera: acquire timed out")

// Error is a camera error carrying a code, the device it concerns and an
// optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Device  string
	Cause   error
}

func newError(code ErrorCode, device, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Device:  device,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Device != "" {
		fmt.Fprintf(&b, " [%s]", e.Device)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a camera error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first camera error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
