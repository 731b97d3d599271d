package domain

import (
	"errors"
	"fmt"
)

// Validation errors. They are returned synchronously to the caller of the
// mutating operation and are expected user-input rejections.
var (
	// ErrInvalidPhoneNumber is returned when a raw phone cannot be normalized.
	ErrInvalidPhoneNumber = errors.New("invalid phone number")

	// ErrDuplicatePhone is returned when another contact already holds the normalized phone.
	ErrDuplicatePhone = errors.New("duplicate phone number")

	// ErrContactNotFound is returned when a contact ID (or phone) is unknown.
	ErrContactNotFound = errors.New("contact not found")

	// ErrInvalidContact is returned when contact fields are missing or malformed.
	ErrInvalidContact = errors.New("invalid contact")

	// ErrInvalidTTL is returned when an expectation is registered with ttl <= 0.
	ErrInvalidTTL = errors.New("invalid ttl")

	// ErrInvalidExpectation is returned when an expectation kind or grammar is unusable.
	ErrInvalidExpectation = errors.New("invalid expectation")

	// ErrEmptyMessage is returned when a send carries no text, image or audio.
	ErrEmptyMessage = errors.New("message has no content")
)

// Transport errors.
var (
	// ErrAuthExpired is returned by a transport when its session is stale.
	ErrAuthExpired = errors.New("transport session expired")

	// ErrSendFailed is the sentinel matched by every SendError.
	ErrSendFailed = errors.New("send failed")

	// ErrTransportUnavailable marks a transient network or poll failure.
	ErrTransportUnavailable = errors.New("transport unavailable")
)

// ErrNotFound is returned by a StateStore when a document does not exist.
var ErrNotFound = errors.New("document not found")

// SendError describes a failed outbound delivery.
// errors.Is(err, ErrSendFailed) holds for every SendError.
type SendError struct {
	Channel Channel
	Reason  string
	Err     error
}

func (e *SendError) Error() string {
	msg := fmt.Sprintf("send failed (%s): %s", e.Channel, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SendError) Unwrap() error { return e.Err }

// Is reports ErrSendFailed as a match.
func (e *SendError) Is(target error) bool { return target == ErrSendFailed }

// IsValidation reports whether err is one of the user-input rejections.
// Callers use it to decide whether an error is worth logging as a fault.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPhoneNumber) ||
		errors.Is(err, ErrDuplicatePhone) ||
		errors.Is(err, ErrContactNotFound) ||
		errors.Is(err, ErrInvalidContact) ||
		errors.Is(err, ErrInvalidTTL) ||
		errors.Is(err, ErrInvalidExpectation) ||
		errors.Is(err, ErrEmptyMessage)
}
