package repo

import (
	"context"
	"fmt"

	"wa-dashboard/internal/apperrors"
)

// UpdateLicenseStatus persists a connection state change keyed by the
// license primary key.
func (r *Repository) UpdateLicenseStatus(ctx context.Context, ownerID string, licenseID int64, status, statusText string) error {
	q := r.dialect.rebind(`
UPDATE licenses SET status = ?, status_text = ?, updated_at = ` + r.dialect.now + `
WHERE id = ? AND profile_id = ?`)
	err := r.scoped(ctx, ownerID, func(q0 querier) error {
		res, err := q0.ExecContext(ctx, q, status, statusText, licenseID, ownerID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("license %d: %w", licenseID, apperrors.ErrNotFound)
		}
		return nil
	})
	err = storeErr("update license status", err)
	r.observe("licenses", "status", err)
	return err
}
