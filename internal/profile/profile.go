// Package profile manages the operator profile and its photo.
package profile

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"wa-dashboard/internal/repo"
	"wa-dashboard/internal/validator"
)

// Store persists profiles.
type Store interface {
	GetProfile(ctx context.Context, operatorID string) (*repo.Profile, error)
	UpdateProfile(ctx context.Context, operatorID string, upd repo.ProfileUpdate) (*repo.Profile, error)
	SetProfilePhoto(ctx context.Context, operatorID, photoURL string) (*repo.Profile, error)
}

// Uploader stores a file for an operator and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, ownerID, filename, contentType string, body io.Reader) (string, error)
}

// Form is the editable part of the profile.
type Form struct {
	Name                   string `json:"name" validate:"required,min=3"`
	WhatsAppBotNumber      string `json:"whatsapp_bot_number" validate:"omitempty,phone"`
	WhatsAppPersonalNumber string `json:"whatsapp_personal_number" validate:"omitempty,phone"`
}

// Normalize trims input and drops spaces, dashes and dots from the numbers.
func (f *Form) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.WhatsAppBotNumber = normalizePhone(f.WhatsAppBotNumber)
	f.WhatsAppPersonalNumber = normalizePhone(f.WhatsAppPersonalNumber)
}

func normalizePhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
}

// Service implements profile reads and edits.
type Service struct {
	store    Store
	uploader Uploader
	logger   *slog.Logger
}

// NewService builds a profile service.
func NewService(store Store, uploader Uploader, logger *slog.Logger) *Service {
	return &Service{store: store, uploader: uploader, logger: logger.With("component", "profile")}
}

// Get returns the operator profile.
func (s *Service) Get(ctx context.Context, ownerID string) (*repo.Profile, error) {
	return s.store.GetProfile(ctx, ownerID)
}

// Update validates and saves form.
func (s *Service) Update(ctx context.Context, ownerID string, form Form) (*repo.Profile, error) {
	form.Normalize()
	if err := validator.Validate(form); err != nil {
		return nil, err
	}
	p, err := s.store.UpdateProfile(ctx, ownerID, repo.ProfileUpdate{
		Name:                   form.Name,
		WhatsAppBotNumber:      form.WhatsAppBotNumber,
		WhatsAppPersonalNumber: form.WhatsAppPersonalNumber,
	})
	if err != nil {
		s.logger.Error("profile update failed", "operator", ownerID, "error", err)
		return nil, err
	}
	return p, nil
}

// UploadPhoto uploads the image and stores the returned URL unchanged.
func (s *Service) UploadPhoto(ctx context.Context, ownerID, filename, contentType string, body io.Reader) (*repo.Profile, error) {
	url, err := s.uploader.Upload(ctx, ownerID, filename, contentType, body)
	if err != nil {
		return nil, err
	}
	p, err := s.store.SetProfilePhoto(ctx, ownerID, url)
	if err != nil {
		s.logger.Error("saving photo url failed", "operator", ownerID, "url", url, "error", err)
		return nil, err
	}
	return p, nil
}
