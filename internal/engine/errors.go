package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/lexcache/internal/ir"
)

// Error is returned by every engine entry point that fails for a reason
// the engine itself detected.
//
// Structural errors (unregistered property, type mismatch, duplicate
// registration, load cycle, dangling reference) are programmer errors and
// abort the operation. PromotionFailed and NotWritable are recoverable:
// the caller may retry later or treat the property as absent.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Entity is the entity the operation was addressing, if any.
	Entity ir.EntityRef

	// Property is "Class.Field" or a raw tag name, if known.
	Property string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// CodeUnregisteredProperty means no handler or raw property is bound
	// for the requested (class, tag).
	CodeUnregisteredProperty ErrorCode = "UNREGISTERED_PROPERTY"

	// CodeTypeMismatch means a value does not fit the property's kind.
	CodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// CodeNotWritable means Set was called on a read-only property.
	CodeNotWritable ErrorCode = "NOT_WRITABLE"

	// CodePromotionFailed means no resolver produced a durable entity for
	// a request that had to succeed.
	CodePromotionFailed ErrorCode = "PROMOTION_FAILED"

	// CodeDanglingReference means a reference points at neither a live
	// real entity nor a tracked placeholder.
	CodeDanglingReference ErrorCode = "DANGLING_REFERENCE"

	// CodeDuplicateRegistration means a (class, field) or tag was bound twice.
	CodeDuplicateRegistration ErrorCode = "DUPLICATE_REGISTRATION"

	// CodeLoadCycle means a handler re-entered the load of its own slot.
	CodeLoadCycle ErrorCode = "LOAD_CYCLE"
)

// Sentinels for errors.Is. They match any *Error with the same code.
var (
	ErrUnregisteredProperty  = &Error{Code: CodeUnregisteredProperty}
	ErrTypeMismatch          = &Error{Code: CodeTypeMismatch}
	ErrNotWritable           = &Error{Code: CodeNotWritable}
	ErrPromotionFailed       = &Error{Code: CodePromotionFailed}
	ErrDanglingReference     = &Error{Code: CodeDanglingReference}
	ErrDuplicateRegistration = &Error{Code: CodeDuplicateRegistration}
	ErrLoadCycle             = &Error{Code: CodeLoadCycle}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	switch {
	case e.Property != "" && !e.Entity.IsZero():
		msg += fmt.Sprintf(" (entity=%s, property=%s)", e.Entity, e.Property)
	case e.Property != "":
		msg += fmt.Sprintf(" (property=%s)", e.Property)
	case !e.Entity.IsZero():
		msg += fmt.Sprintf(" (entity=%s)", e.Entity)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil
}

// IsStructural reports whether err is a programmer error that must abort
// the operation rather than be handled.
func IsStructural(err error) bool {
	var ee *Error
	if !errors.As(err, &ee) {
		return false
	}
	switch ee.Code {
	case CodeUnregisteredProperty, CodeTypeMismatch, CodeDuplicateRegistration, CodeLoadCycle, CodeDanglingReference:
		return true
	}
	return false
}

// IsRecoverable reports whether err is an ordinary result the caller can
// act on (retry later, or treat the property as absent).
func IsRecoverable(err error) bool {
	var ee *Error
	if !errors.As(err, &ee) {
		return false
	}
	return ee.Code == CodePromotionFailed || ee.Code == CodeNotWritable
}

// IsPromotionFailed reports whether err is a failed promotion.
func IsPromotionFailed(err error) bool {
	return errors.Is(err, ErrPromotionFailed)
}

func newError(code ErrorCode, ent ir.EntityRef, property, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Entity: ent, Property: property, Err: cause}
}
