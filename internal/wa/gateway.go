// Package wa talks to the WhatsApp messaging gateway that hosts the
// assistant instances.
package wa

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"wa-dashboard/internal/apperrors"
)

// ErrMalformedResponse indicates the gateway answered with an unreadable body.
var ErrMalformedResponse = errors.New("malformed gateway response")

// QRCode is a login QR code issued for an instance.
type QRCode struct {
	// Code is the raw payload encoded in the QR code.
	Code string `json:"code,omitempty"`
	// Image is a data URL or remote URL of a rendered QR image, when the
	// gateway provides one.
	Image string `json:"image,omitempty"`
	// Terminal is a text rendering of Code for terminals and <pre> blocks.
	Terminal string `json:"terminal,omitempty"`
}

// Gateway drives the connection lifecycle of gateway instances.
type Gateway interface {
	QRCode(ctx context.Context, instanceID string) (*QRCode, error)
	RequestPairingCode(ctx context.Context, instanceID, phoneNumber string) (string, error)
	Logout(ctx context.Context, instanceID string) error
	Reboot(ctx context.Context, instanceID string) error
}

// StatusError is a non-2xx gateway response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("gateway %s: %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// StatusText returns the HTTP status text of the response.
func (e *StatusError) StatusText() string {
	return http.StatusText(e.StatusCode)
}

// Unwrap makes StatusError match apperrors.ErrGatewayCall.
func (e *StatusError) Unwrap() error {
	return apperrors.ErrGatewayCall
}

func malformed(endpoint string, err error) error {
	return fmt.Errorf("gateway %s: %w: %w: %v", endpoint, apperrors.ErrGatewayCall, ErrMalformedResponse, err)
}
