package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wa-dashboard/internal/apperrors"
)

// InsertPaymentOrder records a pending checkout attempt.
func (r *Repository) InsertPaymentOrder(ctx context.Context, order PaymentOrder) (*PaymentOrder, error) {
	if order.Status == "" {
		order.Status = PaymentPending
	}
	q := r.dialect.rebind(`
INSERT INTO payment_orders (order_id, profile_id, amount, status, link)
VALUES (?, ?, ?, ?, ?)
RETURNING created_at`)
	err := r.scoped(ctx, order.OwnerID, func(q0 querier) error {
		return q0.QueryRowContext(ctx, q, order.OrderID, order.OwnerID, order.Amount, order.Status, order.Link).Scan(&order.CreatedAt)
	})
	err = storeErr("insert payment order", err)
	r.observe("payment_orders", "insert", err)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SetPaymentOrderLink stores the checkout link returned by the gateway.
func (r *Repository) SetPaymentOrderLink(ctx context.Context, ownerID, orderID, link string) error {
	q := r.dialect.rebind(`UPDATE payment_orders SET link = ?, updated_at = ` + r.dialect.now + ` WHERE order_id = ? AND profile_id = ?`)
	err := r.scoped(ctx, ownerID, func(q0 querier) error {
		_, err := q0.ExecContext(ctx, q, link, orderID, ownerID)
		return err
	})
	return storeErr("set payment order link", err)
}

// GetPaymentOrder returns one order of the operator.
func (r *Repository) GetPaymentOrder(ctx context.Context, ownerID, orderID string) (*PaymentOrder, error) {
	q := r.dialect.rebind(`
SELECT order_id, profile_id, amount, status, link, created_at
FROM payment_orders WHERE order_id = ? AND profile_id = ?`)
	var o PaymentOrder
	err := r.scoped(ctx, ownerID, func(q0 querier) error {
		err := q0.QueryRowContext(ctx, q, orderID, ownerID).Scan(&o.OrderID, &o.OwnerID, &o.Amount, &o.Status, &o.Link, &o.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("payment order %s: %w", orderID, apperrors.ErrNotFound)
		}
		return err
	})
	err = storeErr("get payment order", err)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// SettlePaymentOrder moves a pending order to paid and marks the operator
// solvent in the same transaction. It reports false when the order was not
// pending, so repeated returns change nothing.
func (r *Repository) SettlePaymentOrder(ctx context.Context, ownerID, orderID string) (bool, error) {
	settled := false
	err := r.scoped(ctx, ownerID, func(q0 querier) error {
		return r.inTx(ctx, q0, func(q1 querier) error {
			res, err := q1.ExecContext(ctx, r.dialect.rebind(`
UPDATE payment_orders SET status = ?, updated_at = `+r.dialect.now+`
WHERE order_id = ? AND profile_id = ? AND status = ?`),
				PaymentPaid, orderID, ownerID, PaymentPending,
			)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			if _, err := q1.ExecContext(ctx, r.dialect.rebind(`
UPDATE profiles SET is_solvent = ?, updated_at = `+r.dialect.now+` WHERE id = ?`),
				true, ownerID,
			); err != nil {
				return err
			}
			settled = true
			return nil
		})
	})
	err = storeErr("settle payment order", err)
	r.observe("payment_orders", "settle", err)
	return settled, err
}

// FailPaymentOrder moves a pending order to failed. It reports false when the
// order was not pending.
func (r *Repository) FailPaymentOrder(ctx context.Context, ownerID, orderID string) (bool, error) {
	q := r.dialect.rebind(`
UPDATE payment_orders SET status = ?, updated_at = ` + r.dialect.now + `
WHERE order_id = ? AND profile_id = ? AND status = ?`)
	changed := false
	err := r.scoped(ctx, ownerID, func(q0 querier) error {
		res, err := q0.ExecContext(ctx, q, PaymentFailed, orderID, ownerID, PaymentPending)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		changed = n > 0
		return err
	})
	err = storeErr("fail payment order", err)
	r.observe("payment_orders", "fail", err)
	return changed, err
}

// inTx reuses q when it already is a transaction and opens one otherwise.
func (r *Repository) inTx(ctx context.Context, q querier, fn func(querier) error) error {
	if tx, ok := q.(*sql.Tx); ok {
		return fn(tx)
	}
	return r.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(tx)
	})
}
