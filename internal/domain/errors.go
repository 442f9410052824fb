package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every rejection the intake layer can produce.
type Kind string

const (
	KindValidationFailure    Kind = "validation_failure"
	KindUnsupportedMediaType Kind = "unsupported_media_type"
	KindPayloadTooLarge      Kind = "payload_too_large"
	KindMalformedSubmission  Kind = "malformed_submission"
)

// Error is the typed failure shared by the rule engine, the classifier and the router.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Limit   int64
	Allowed []string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the taxonomy kind carried by err, or "" when err is not a *Error.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

func IsMalformed(err error) bool {
	return KindOf(err) == KindMalformedSubmission
}

func Malformed(format string, args ...any) error {
	return &Error{Kind: KindMalformedSubmission, Message: fmt.Sprintf(format, args...)}
}

func UnsupportedMediaType(contentType string, allowed []string) error {
	return &Error{
		Kind:    KindUnsupportedMediaType,
		Message: fmt.Sprintf("content type %q is not supported", contentType),
		Allowed: append([]string(nil), allowed...),
	}
}

func PayloadTooLarge(size, limit int64) error {
	return &Error{
		Kind:    KindPayloadTooLarge,
		Message: fmt.Sprintf("attachment is %d bytes, limit is %d", size, limit),
		Limit:   limit,
	}
}
