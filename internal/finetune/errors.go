package finetune

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can render an actionable message.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindQuotaExceeded  Kind = "quota_exceeded"
	KindInvalidState   Kind = "invalid_state"
	KindNetwork        Kind = "network"
	KindRemoteService  Kind = "remote_service"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrQuotaExceeded  = &Error{Kind: KindQuotaExceeded}
	ErrInvalidState   = &Error{Kind: KindInvalidState}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrRemoteService  = &Error{Kind: KindRemoteService}
)

// Error is returned by every Client operation. It never contains the credential.
type Error struct {
	Kind Kind
	// StatusCode is the provider's HTTP status, zero for local and transport failures.
	StatusCode int
	// Code is the provider's error code when it sent one.
	Code    string
	Message string
	// Line is the 1-based training file line that failed local validation.
	Line int
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s %d", msg, e.StatusCode)
	}
	if e.Line > 0 {
		msg = fmt.Sprintf("%s: line %d", msg, e.Line)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, or "" when err is not a classified error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func errMissingCredential() *Error {
	return &Error{Kind: KindAuthentication, Message: "API key is required"}
}

func validationErr(line int, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Line: line, Message: fmt.Sprintf(format, args...)}
}
