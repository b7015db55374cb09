package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"wa-dashboard/internal/apperrors"
)

const operatorColumns = "id, email, password_hash, provider, provider_subject, created_at"

func scanOperator(s scanner) (*Operator, error) {
	var op Operator
	if err := s.Scan(&op.ID, &op.Email, &op.PasswordHash, &op.Provider, &op.ProviderSubject, &op.CreatedAt); err != nil {
		return nil, err
	}
	return &op, nil
}

// CreateOperator inserts the operator and its empty profile in one transaction.
// A duplicate email is reported as apperrors.ErrConflict.
func (r *Repository) CreateOperator(ctx context.Context, op Operator, displayName string) (*Operator, error) {
	op.Email = strings.ToLower(strings.TrimSpace(op.Email))
	if op.ID == "" {
		op.ID = randomUUID()
	}

	var created *Operator
	err := r.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, r.dialect.rebind(`SELECT COUNT(*) FROM operators WHERE email = ?`), op.Email).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("operator %s: %w", op.Email, apperrors.ErrConflict)
		}

		row := tx.QueryRowContext(ctx, r.dialect.rebind(`
INSERT INTO operators (id, email, password_hash, provider, provider_subject)
VALUES (?, ?, ?, ?, ?)
RETURNING `+operatorColumns),
			op.ID, op.Email, op.PasswordHash, op.Provider, op.ProviderSubject,
		)
		created, err = scanOperator(row)
		if err != nil {
			return err
		}

		if r.dialect.name == postgres.name {
			if _, err := tx.ExecContext(ctx, `SELECT set_config('app.current_operator', $1, true)`, op.ID); err != nil {
				return fmt.Errorf("set operator scope: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, r.dialect.rebind(`INSERT INTO profiles (id, name) VALUES (?, ?)`), op.ID, displayName)
		return err
	})
	err = storeErr("create operator", err)
	r.observe("operators", "insert", err)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// OperatorByEmail looks up an operator by normalised email.
func (r *Repository) OperatorByEmail(ctx context.Context, email string) (*Operator, error) {
	q := r.dialect.rebind(`SELECT ` + operatorColumns + ` FROM operators WHERE email = ?`)
	op, err := scanOperator(r.db.QueryRowContext(ctx, q, strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("operator %s: %w", email, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get operator by email", err)
	}
	return op, nil
}

// OperatorByID looks up an operator by id.
func (r *Repository) OperatorByID(ctx context.Context, id string) (*Operator, error) {
	q := r.dialect.rebind(`SELECT ` + operatorColumns + ` FROM operators WHERE id = ?`)
	op, err := scanOperator(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("operator %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get operator by id", err)
	}
	return op, nil
}

// LinkProvider records the identity provider that last authenticated op.
func (r *Repository) LinkProvider(ctx context.Context, id, provider, subject string) error {
	q := r.dialect.rebind(`UPDATE operators SET provider = ?, provider_subject = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, q, provider, subject, id); err != nil {
		return storeErr("link provider", err)
	}
	return nil
}

func randomUUID() string {
	return uuid.NewString()
}
