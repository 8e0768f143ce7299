package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/erarta/api.neucor.ai/internal/apperror"
	"github.com/erarta/api.neucor.ai/internal/models"
)

// InsertPayment appends an immutable payment record. Rows are never
// updated after insert.
//
// The charge id carries the external provider's charge identifier and is
// covered by a unique index; inserting a duplicate returns (false, nil)
// instead of an error. That makes the payment row the idempotency guard
// for at-least-once settlement callbacks: the caller grants credits only
// when inserted is true. An empty charge id (payments recorded without a
// provider reference) bypasses the uniqueness check.
func (db *PostgresDB) InsertPayment(ctx context.Context, payment *models.Payment) (inserted bool, err error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	query := `
        INSERT INTO payments (user_id, amount, gateway, status, charge_id)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (charge_id) WHERE charge_id <> '' DO NOTHING
        RETURNING id, created_at`

	err = db.pool.QueryRow(ctx, query,
		payment.UserID, payment.Amount, payment.Gateway, payment.Status, payment.ChargeID,
	).Scan(&payment.ID, &payment.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Duplicate charge id: already settled, treat as a no-op.
		db.logger.Warnw("Duplicate payment charge id, skipping insert",
			"user_id", payment.UserID, "charge_id", payment.ChargeID)
		return false, nil
	}
	if err != nil {
		return false, apperror.Storage("insert payment", err)
	}

	db.logger.Infow("Payment recorded",
		"user_id", payment.UserID, "amount", payment.Amount, "gateway", payment.Gateway)
	return true, nil
}

// TotalPaid sums succeeded payment amounts for a user. Storage errors are
// logged and 0 returned: this feeds non-critical reporting only and must
// not take a status screen down with it.
func (db *PostgresDB) TotalPaid(ctx context.Context, userID int64) float64 {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var total float64
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE user_id = $1 AND status = $2`,
		userID, models.PaymentSucceeded,
	).Scan(&total)
	if err != nil {
		db.logger.Errorw("Failed to calculate total paid", "user_id", userID, "error", err)
		return 0
	}

	return total
}
