package shared

import (
	"errors"
	"fmt"
)

// Kind classifies service errors for transport mapping.
type Kind int

const (
	// KindValidation indicates malformed or missing caller data.
	KindValidation Kind = iota + 1
	// KindNotFound indicates a referenced entity is absent.
	KindNotFound
	// KindAuthorization indicates the caller lacks permission.
	KindAuthorization
	// KindConsistency indicates corrupted internal state; the enclosing
	// transaction must roll back entirely.
	KindConsistency
)

// Error is a classified service error. Subject holds the offending field,
// identifier or caller depending on the kind.
type Error struct {
	Kind    Kind
	Subject string
	Detail  string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindValidation:
		if e.Detail != "" {
			return fmt.Sprintf("validation error: %s, %s", e.Subject, e.Detail)
		}
		return fmt.Sprintf("validation error: %s", e.Subject)
	case KindNotFound:
		return fmt.Sprintf("not found: %s", e.Subject)
	case KindAuthorization:
		return fmt.Sprintf("caller %q has no access to operation", e.Subject)
	case KindConsistency:
		return fmt.Sprintf("inconsistent state: %s", e.Detail)
	}
	return e.Detail
}

// ValidationError reports a missing or malformed field.
func ValidationError(field string) error {
	return &Error{Kind: KindValidation, Subject: field}
}

// ValidationErrorf reports a malformed field with extra detail.
func ValidationErrorf(field, format string, args ...any) error {
	return &Error{Kind: KindValidation, Subject: field, Detail: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an absent entity.
func NotFoundError(id string) error {
	return &Error{Kind: KindNotFound, Subject: id}
}

// AuthorizationError reports a denied caller.
func AuthorizationError(callerID string) error {
	return &Error{Kind: KindAuthorization, Subject: callerID}
}

// ConsistencyErrorf reports corrupted internal state. The caller must not
// attempt repair; the operation fails as a whole.
func ConsistencyErrorf(format string, args ...any) error {
	return &Error{Kind: KindConsistency, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, or zero when err is unclassified.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// FieldOf returns the subject of a classified error, or "".
func FieldOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Subject
	}
	return ""
}
