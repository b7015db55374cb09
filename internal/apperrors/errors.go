package apperrors

import (
	"errors"
	"net/http"
)

// Sentinel errors checked with errors.Is. Call sites wrap them with context
// using fmt.Errorf("...: %w", ...) so the diagnostic text survives.
var (
	// ErrValidation indicates a form failed validation before submission.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the row does not exist or belongs to another operator.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized indicates a missing, invalid or revoked session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict indicates a duplicate submission or unique constraint clash.
	ErrConflict = errors.New("conflict")
	// ErrStore indicates the data store rejected or failed a query.
	ErrStore = errors.New("store error")

	// ErrMissingField indicates a required field is empty on a stored record.
	ErrMissingField = errors.New("missing required field")
	// ErrGatewayCall indicates the messaging gateway call failed.
	ErrGatewayCall = errors.New("messaging gateway call failed")
	// ErrPersistence indicates the gateway call succeeded but the new state could not be saved.
	ErrPersistence = errors.New("state persistence failed")

	// ErrPaymentConfig indicates the payment API key is not configured.
	ErrPaymentConfig = errors.New("payment api key missing")
	// ErrPaymentTransport indicates the payment gateway could not be reached.
	ErrPaymentTransport = errors.New("payment gateway unreachable")
	// ErrPaymentStatus indicates the payment gateway answered with a non-OK status.
	ErrPaymentStatus = errors.New("payment gateway returned an error status")
	// ErrPaymentDecode indicates the payment gateway body could not be parsed.
	ErrPaymentDecode = errors.New("payment gateway response unreadable")
	// ErrPaymentNoLink indicates the payment gateway response lacks a checkout link.
	ErrPaymentNoLink = errors.New("payment gateway response has no link")

	// ErrStorage indicates a file upload failed.
	ErrStorage = errors.New("storage upload failed")
)

// Kind returns a short machine-readable category for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrGatewayCall):
		return "gateway"
	case errors.Is(err, ErrPaymentConfig),
		errors.Is(err, ErrPaymentTransport),
		errors.Is(err, ErrPaymentStatus),
		errors.Is(err, ErrPaymentDecode),
		errors.Is(err, ErrPaymentNoLink):
		return "payment"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrStore):
		return "store"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to the response status used by the HTTP layer.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK
	case "validation", "missing_field":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	case "unauthorized":
		return http.StatusUnauthorized
	case "conflict":
		return http.StatusConflict
	case "gateway", "payment", "storage":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is or wraps ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnauthorized reports whether err is or wraps ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// Notification returns the user-visible message for err. Diagnostic text is
// kept for every known kind; unclassified failures get a generic message.
func Notification(err error) string {
	switch Kind(err) {
	case "":
		return ""
	case "internal":
		return "unexpected error, please try again"
	default:
		return err.Error()
	}
}
