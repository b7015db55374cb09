package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wa-dashboard/internal/apperrors"
)

const profileColumns = "id, created_at, name, whatsapp_bot_number, whatsapp_personal_number, photo_url, is_solvent"

func scanProfile(s scanner) (*Profile, error) {
	var p Profile
	if err := s.Scan(&p.ID, &p.CreatedAt, &p.Name, &p.WhatsAppBotNumber, &p.WhatsAppPersonalNumber, &p.PhotoURL, &p.IsSolvent); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile returns the profile of the operator.
func (r *Repository) GetProfile(ctx context.Context, operatorID string) (*Profile, error) {
	q := r.dialect.rebind(`SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`)
	var p *Profile
	err := r.scoped(ctx, operatorID, func(q0 querier) error {
		var err error
		p, err = scanProfile(q0.QueryRowContext(ctx, q, operatorID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("profile %s: %w", operatorID, apperrors.ErrNotFound)
		}
		return err
	})
	err = storeErr("get profile", err)
	r.observe("profiles", "get", err)
	return p, err
}

// UpdateProfile overwrites the editable profile fields.
func (r *Repository) UpdateProfile(ctx context.Context, operatorID string, upd ProfileUpdate) (*Profile, error) {
	q := r.dialect.rebind(`
UPDATE profiles
SET name = ?, whatsapp_bot_number = ?, whatsapp_personal_number = ?, updated_at = ` + r.dialect.now + `
WHERE id = ?
RETURNING ` + profileColumns)
	return r.updateProfile(ctx, operatorID, "update", q, upd.Name, upd.WhatsAppBotNumber, upd.WhatsAppPersonalNumber, operatorID)
}

// SetProfilePhoto stores the public URL of the operator's photo verbatim.
func (r *Repository) SetProfilePhoto(ctx context.Context, operatorID, photoURL string) (*Profile, error) {
	q := r.dialect.rebind(`
UPDATE profiles SET photo_url = ?, updated_at = ` + r.dialect.now + `
WHERE id = ?
RETURNING ` + profileColumns)
	return r.updateProfile(ctx, operatorID, "photo", q, photoURL, operatorID)
}

func (r *Repository) updateProfile(ctx context.Context, operatorID, op, q string, args ...any) (*Profile, error) {
	var p *Profile
	err := r.scoped(ctx, operatorID, func(q0 querier) error {
		var err error
		p, err = scanProfile(q0.QueryRowContext(ctx, q, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("profile %s: %w", operatorID, apperrors.ErrNotFound)
		}
		return err
	})
	err = storeErr(op+" profile", err)
	r.observe("profiles", op, err)
	return p, err
}
