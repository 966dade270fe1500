// Package service holds the business rules of the exchange: the listing
// registry, the reservation engine, the document gate and account
// administration.  Services own their transactions; handlers only
// translate HTTP to calls and Error kinds to status codes.
package service

import (
	"errors"
	"fmt"
)

// Kind classifies a rule violation.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindEligibility   Kind = "eligibility"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindExpired       Kind = "expired"
)

// Error is returned for every expected failure.  Anything else reaching a
// handler is an internal error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

func newError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error { return newError(KindValidation, format, args...) }
func Forbidden(format string, args ...any) error  { return newError(KindAuthorization, format, args...) }
func Ineligible(format string, args ...any) error { return newError(KindEligibility, format, args...) }
func NotFound(format string, args ...any) error   { return newError(KindNotFound, format, args...) }
func Conflict(format string, args ...any) error   { return newError(KindConflict, format, args...) }
func Expired(format string, args ...any) error    { return newError(KindExpired, format, args...) }

// KindOf returns the kind of err, or "" when err is not a service Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is a service Error of kind k.
func Is(err error, k Kind) bool { return KindOf(err) == k }
