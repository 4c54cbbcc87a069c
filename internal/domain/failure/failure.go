// Package failure classifies the error states a client flow can end in.
//
// Components never propagate these as panics or process exits; they resolve
// them into a state flag plus a user-facing message and let the rendering
// layer decide presentation.
package failure

import (
	"errors"
	"fmt"
)

// Kind identifies a failure class.
type Kind int

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = iota
	// KindIndeterminate means the session has not resolved yet; callers wait.
	KindIndeterminate
	// KindUnauthenticated ends the current flow and sends the user to sign-in.
	KindUnauthenticated
	// KindNoData is the explicit empty result from the scoring service.
	KindNoData
	// KindFetch is a network or service error while loading the view model.
	KindFetch
	// KindValidation is a local admission check rejecting user input.
	KindValidation
	// KindSubmission is an upstream error during upload or report retrieval.
	KindSubmission
)

func (k Kind) String() string {
	switch k {
	case KindIndeterminate:
		return "indeterminate"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNoData:
		return "no_data"
	case KindFetch:
		return "fetch"
	case KindValidation:
		return "validation"
	case KindSubmission:
		return "submission"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
	default:
		return e.Kind.String() + " failure"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Indeterminate reports that the session is still resolving.
func Indeterminate(err error) *Error {
	return New(KindIndeterminate, "session is not resolved yet", err)
}

// Unauthenticated reports a missing or expired credential.
func Unauthenticated(err error) *Error {
	return New(KindUnauthenticated, "authentication required", err)
}

// Fetch reports a load failure with a user-facing message.
func Fetch(message string, err error) *Error {
	return New(KindFetch, message, err)
}

// Validation reports a local admission failure.
func Validation(message string) *Error {
	return New(KindValidation, message, nil)
}

// Submission reports an upstream failure during upload or report retrieval.
func Submission(message string, err error) *Error {
	return New(KindSubmission, message, err)
}

// KindOf extracts the classification of err, KindUnknown if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// MessageOf returns the user-facing message of a classified error, or
// fallback when err carries none.
func MessageOf(err error, fallback string) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return fallback
}

// IsUnauthenticated reports whether err is an authentication failure.
func IsUnauthenticated(err error) bool { return KindOf(err) == KindUnauthenticated }

// IsIndeterminate reports whether err means the session is still resolving.
func IsIndeterminate(err error) bool { return KindOf(err) == KindIndeterminate }

// IsValidation reports whether err is a local admission failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// DetailOf returns the first human-readable detail an upstream error in the
// chain of err offers through a UserMessage method.
func DetailOf(err error) string {
	var d interface{ UserMessage() string }
	if errors.As(err, &d) {
		return d.UserMessage()
	}
	return ""
}
