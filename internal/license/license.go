// Package license sequences messaging-gateway calls for a license and
// persists the resulting connection state.
package license

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/metrics"
	"wa-dashboard/internal/repo"
	"wa-dashboard/internal/validator"
	"wa-dashboard/internal/wa"
)

// Status texts stored alongside each state.
const (
	TextQRIssued      = "QR code généré"
	TextPairingIssued = "Code d'appairage généré"
	TextLoggedOut     = "Déconnecté"
	TextRebooted      = "Redémarré"
)

// Records reads and creates license rows.
type Records interface {
	List(ctx context.Context, ownerID string) ([]repo.License, error)
	Get(ctx context.Context, ownerID string, id int64) (*repo.License, error)
	Insert(ctx context.Context, ownerID string, l repo.License) (*repo.License, error)
}

// StatusWriter persists a state change keyed by the license primary key.
type StatusWriter interface {
	UpdateLicenseStatus(ctx context.Context, ownerID string, licenseID int64, status, statusText string) error
}

// Options tune the orchestrator.
type Options struct {
	// OptimisticConnect marks a license connected as soon as a QR or
	// pairing code is issued instead of waiting in the connecting state.
	OptimisticConnect bool
	// GatewayTimeout bounds each gateway call.
	GatewayTimeout time.Duration
}

// Service is the license-connection orchestrator.
type Service struct {
	records Records
	status  StatusWriter
	gateway wa.Gateway
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService wires the orchestrator. m may be nil.
func NewService(records Records, status StatusWriter, gateway wa.Gateway, opts Options, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		records: records,
		status:  status,
		gateway: gateway,
		opts:    opts,
		logger:  logger.With("component", "license"),
		metrics: m,
	}
}

// Form creates a license record.
type Form struct {
	InstanceID string `json:"instance_id" validate:"required,max=128"`
	Label      string `json:"label" validate:"max=120"`
}

// View is a license as shown to the operator.
type View struct {
	repo.License
	// DisplayStatus folds the restarting state into connected.
	DisplayStatus string `json:"display_status"`
}

// NewView builds the operator-facing view of l.
func NewView(l repo.License) View {
	display := l.Status
	if display == repo.LicenseRestarting {
		display = repo.LicenseConnected
	}
	if display == "" {
		display = repo.LicenseDisconnected
	}
	return View{License: l, DisplayStatus: display}
}

// QRResult is the outcome of a QR request.
type QRResult struct {
	License View       `json:"license"`
	QR      *wa.QRCode `json:"qr"`
}

// PairingResult is the outcome of a pairing-code request.
type PairingResult struct {
	License View   `json:"license"`
	Code    string `json:"code"`
}

// List returns the operator's licenses newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]View, error) {
	rows, err := s.records.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(rows))
	for _, l := range rows {
		views = append(views, NewView(l))
	}
	return views, nil
}

// Create registers a gateway instance for the operator.
func (s *Service) Create(ctx context.Context, ownerID string, form Form) (*View, error) {
	form.InstanceID = strings.TrimSpace(form.InstanceID)
	form.Label = strings.TrimSpace(form.Label)
	if err := validator.Validate(form); err != nil {
		return nil, err
	}
	l, err := s.records.Insert(ctx, ownerID, repo.License{
		InstanceID: form.InstanceID,
		Label:      form.Label,
		Status:     repo.LicenseDisconnected,
	})
	if err != nil {
		return nil, err
	}
	v := NewView(*l)
	return &v, nil
}

// RequestQR asks the gateway for a login QR code. The returned result is
// non-nil whenever the gateway call succeeded, even if persisting the new
// state then failed with apperrors.ErrPersistence.
func (s *Service) RequestQR(ctx context.Context, ownerID string, licenseID int64) (*QRResult, error) {
	l, err := s.load(ctx, ownerID, licenseID)
	if err != nil {
		return nil, err
	}
	gctx, cancel := s.gatewayContext(ctx)
	defer cancel()
	qr, err := s.gateway.QRCode(gctx, l.InstanceID)
	if err != nil {
		return nil, s.gatewayFailed(l, "qr", s.connectState(), err)
	}
	err = s.transition(ctx, l, s.connectState(), TextQRIssued)
	return &QRResult{License: NewView(*l), QR: qr}, err
}

// RequestPairingCode asks the gateway for a phone pairing code.
func (s *Service) RequestPairingCode(ctx context.Context, ownerID string, licenseID int64, phoneNumber string) (*PairingResult, error) {
	phoneNumber = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phoneNumber))
	if err := validator.ValidateVar(phoneNumber, "required,phone"); err != nil {
		return nil, validator.FieldErrors{"phone_number": "must be a phone number with 8 to 15 digits"}
	}
	l, err := s.load(ctx, ownerID, licenseID)
	if err != nil {
		return nil, err
	}
	gctx, cancel := s.gatewayContext(ctx)
	defer cancel()
	code, err := s.gateway.RequestPairingCode(gctx, l.InstanceID, phoneNumber)
	if err != nil {
		return nil, s.gatewayFailed(l, "request-pairing-code", s.connectState(), err)
	}
	err = s.transition(ctx, l, s.connectState(), TextPairingIssued)
	return &PairingResult{License: NewView(*l), Code: code}, err
}

// Logout disconnects the instance from its WhatsApp account.
func (s *Service) Logout(ctx context.Context, ownerID string, licenseID int64) (*View, error) {
	l, err := s.load(ctx, ownerID, licenseID)
	if err != nil {
		return nil, err
	}
	gctx, cancel := s.gatewayContext(ctx)
	defer cancel()
	if err := s.gateway.Logout(gctx, l.InstanceID); err != nil {
		return nil, s.gatewayFailed(l, "logout", repo.LicenseDisconnected, err)
	}
	err = s.transition(ctx, l, repo.LicenseDisconnected, TextLoggedOut)
	v := NewView(*l)
	return &v, err
}

// Reboot restarts the instance.
func (s *Service) Reboot(ctx context.Context, ownerID string, licenseID int64) (*View, error) {
	l, err := s.load(ctx, ownerID, licenseID)
	if err != nil {
		return nil, err
	}
	gctx, cancel := s.gatewayContext(ctx)
	defer cancel()
	if err := s.gateway.Reboot(gctx, l.InstanceID); err != nil {
		return nil, s.gatewayFailed(l, "reboot", repo.LicenseRestarting, err)
	}
	err = s.transition(ctx, l, repo.LicenseRestarting, TextRebooted)
	v := NewView(*l)
	return &v, err
}

// load fetches the license and rejects an empty instance id before any
// gateway call.
func (s *Service) load(ctx context.Context, ownerID string, licenseID int64) (*repo.License, error) {
	l, err := s.records.Get(ctx, ownerID, licenseID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(l.InstanceID) == "" {
		return nil, fmt.Errorf("license %d has no gateway instance id: %w", licenseID, apperrors.ErrMissingField)
	}
	return l, nil
}

func (s *Service) connectState() string {
	if s.opts.OptimisticConnect {
		return repo.LicenseConnected
	}
	return repo.LicenseConnecting
}

func (s *Service) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.GatewayTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.GatewayTimeout)
}

func (s *Service) gatewayFailed(l *repo.License, op, target string, err error) error {
	s.logger.Error("gateway call failed", "license", l.ID, "instance", l.InstanceID, "op", op, "error", err)
	s.count(target, "gateway_error")
	return err
}

// transition persists the new state into l. On failure l keeps its
// previous state and the error wraps apperrors.ErrPersistence.
func (s *Service) transition(ctx context.Context, l *repo.License, status, text string) error {
	if err := s.status.UpdateLicenseStatus(ctx, l.OwnerID, l.ID, status, text); err != nil {
		s.logger.Error("persisting license state failed", "license", l.ID, "status", status, "error", err)
		s.count(status, "persistence_error")
		return fmt.Errorf("save license %d as %s: %w: %v", l.ID, status, apperrors.ErrPersistence, err)
	}
	l.Status = status
	l.StatusText = text
	s.logger.Info("license state changed", "license", l.ID, "status", status)
	s.count(status, "ok")
	return nil
}

func (s *Service) count(state, outcome string) {
	if s.metrics != nil {
		s.metrics.LicenseTransitions.WithLabelValues(state, outcome).Inc()
	}
}
