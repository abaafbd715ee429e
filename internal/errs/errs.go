// Package errs defines the error taxonomy shared by the mapping engine
// and its storage adapters.  Every error carries a Kind callers can test
// with Is, and wraps an errbuilder error carrying the status code.
package errs

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Kind classifies an engine failure.
type Kind string

const (
	KindUnknownType          Kind = "UnknownTypeError"
	KindNamespaceConflict    Kind = "NamespaceConflictError"
	KindMissingRequiredField Kind = "MissingRequiredFieldError"
	KindShapeConstraint      Kind = "ShapeConstraintError"
	KindTypeMismatch         Kind = "TypeMismatchError"
	KindNameCollision        Kind = "NameCollisionError"
	KindFormat               Kind = "FormatError"
	KindResourceClosed       Kind = "ResourceClosedError"
	KindWriteMode            Kind = "WriteModeError"
)

var kindCodes = map[Kind]errbuilder.ErrCode{
	KindUnknownType:          errbuilder.CodeNotFound,
	KindNamespaceConflict:    errbuilder.CodeAlreadyExists,
	KindMissingRequiredField: errbuilder.CodeInvalidArgument,
	KindShapeConstraint:      errbuilder.CodeInvalidArgument,
	KindTypeMismatch:         errbuilder.CodeInvalidArgument,
	KindNameCollision:        errbuilder.CodeAlreadyExists,
	KindFormat:               errbuilder.CodeInvalidArgument,
	KindResourceClosed:       errbuilder.CodeFailedPrecondition,
	KindWriteMode:            errbuilder.CodePermissionDenied,
}

// Error is a classified engine error.
type Error struct {
	Kind  Kind
	Code  errbuilder.ErrCode
	Field string
	err   *errbuilder.ErrBuilder
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

// Message returns the bare message without the kind prefix.
func (e *Error) Message() string {
	return e.err.Msg
}

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	code := kindCodes[kind]
	return &Error{
		Kind: kind,
		Code: code,
		err:  errbuilder.New().WithCode(code).WithMsg(msg),
	}
}

// Newf formats the message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap returns an error of the given kind caused by cause.
func Wrap(kind Kind, cause error, msg string) *Error {
	e := New(kind, msg)
	e.err = e.err.WithCause(cause)
	return e
}

// WithField records the container field the error is about.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// Is reports whether err is, or wraps, an error of the given kind.
func Is(err error, kind Kind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

// CodeOf returns the status code of err, falling back to errbuilder's
// own classification for errors raised outside the engine.
func CodeOf(err error) errbuilder.ErrCode {
	var target *Error
	if errors.As(err, &target) {
		return target.Code
	}
	return errbuilder.CodeOf(err)
}

func UnknownType(format string, args ...any) *Error {
	return Newf(KindUnknownType, format, args...)
}

func NamespaceConflict(format string, args ...any) *Error {
	return Newf(KindNamespaceConflict, format, args...)
}

func MissingRequiredField(field string, format string, args ...any) *Error {
	return Newf(KindMissingRequiredField, format, args...).WithField(field)
}

func ShapeConstraint(field string, format string, args ...any) *Error {
	return Newf(KindShapeConstraint, format, args...).WithField(field)
}

func TypeMismatch(format string, args ...any) *Error {
	return Newf(KindTypeMismatch, format, args...)
}

func NameCollision(format string, args ...any) *Error {
	return Newf(KindNameCollision, format, args...)
}

func Format(format string, args ...any) *Error {
	return Newf(KindFormat, format, args...)
}

func ResourceClosed(format string, args ...any) *Error {
	return Newf(KindResourceClosed, format, args...)
}

func WriteMode(format string, args ...any) *Error {
	return Newf(KindWriteMode, format, args...)
}
