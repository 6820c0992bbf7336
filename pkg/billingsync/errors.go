package billingsync

import (
	"errors"
	"net/http"
)

var (
	// ErrNotConfigured is returned when a required collaborator is missing
	ErrNotConfigured = errors.New("billingsync not configured")

	// ErrInvalidPayload is returned when an event body cannot be decoded
	ErrInvalidPayload = errors.New("invalid event payload")

	// ErrPayloadTooLarge is returned when the request body exceeds the size limit
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrMissingField is returned when an event lacks a field the handler cannot proceed without.
	// It is the only handler error that is reported back to the sender.
	ErrMissingField = errors.New("missing required field")

	// ErrUserNotFound is returned when the directory has no user for an email
	ErrUserNotFound = errors.New("user not found in directory")

	// ErrCustomerNotFound is returned when no customer record exists
	ErrCustomerNotFound = errors.New("customer record not found")

	// ErrCustomerExists is returned when creating a customer record that already exists
	ErrCustomerExists = errors.New("customer record already exists")

	// ErrSubscriptionExists is returned when creating a subscription record that already exists
	ErrSubscriptionExists = errors.New("subscription record already exists")

	// ErrSubscriptionNotFound is returned when reading a subscription record that does not exist
	ErrSubscriptionNotFound = errors.New("subscription record not found")
)

// IsFatal reports whether err must be surfaced to the event sender instead of
// being acknowledged.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrPayloadTooLarge)
}

// StatusFor maps a Receive error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrMissingField), errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorKind classifies an error for metrics labels.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrCustomerNotFound):
		return "lookup_miss"
	default:
		return "external_call"
	}
}
