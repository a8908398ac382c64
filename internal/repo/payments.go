package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const paymentColumns = `id, client_id, amount, upi_transaction_id, payer_name,
payment_timestamp, status, webhook_raw_data, created_at`

// SettlePayment atomically claims the client's pending payment and appends
// the payment ledger row. The client update is conditional on
// payment_status still being pending, so a losing concurrent writer gets
// ErrAlreadySettled and zero side effects. A payments row with the same
// provider transaction id trips the unique index and rolls the whole
// transaction back with ErrDuplicateTransaction.
func (r *PostgresRepository) SettlePayment(ctx context.Context, clientID string, settle PaymentSettlement) (*Payment, *Client, error) {
	var (
		payment Payment
		client  *Client
	)

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		claim := `
UPDATE clients
SET payment_status = $2,
    payment_amount = $3,
    transaction_id = $4,
    wallet_amount = wallet_amount + $3,
    state = $5,
    updated_at = NOW()
WHERE id = $1 AND payment_status = $6
RETURNING ` + clientColumns + `;`
		row := tx.QueryRow(ctx, claim,
			clientID,
			PaymentPaid,
			settle.Amount,
			settle.UPITransactionID,
			StatePaymentReceived,
			PaymentPending,
		)
		updated, err := scanClient(row)
		if err != nil {
			if errors.Is(err, ErrClientNotFound) {
				return ErrAlreadySettled
			}
			return err
		}
		client = updated

		ts := settle.PaymentTimestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}

		insert := `
INSERT INTO payments (client_id, amount, upi_transaction_id, payer_name, payment_timestamp, status, webhook_raw_data)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + paymentColumns + `;`
		err = tx.QueryRow(ctx, insert,
			clientID,
			settle.Amount,
			settle.UPITransactionID,
			settle.PayerName,
			ts,
			PaymentPaid,
			settle.RawPayload,
		).Scan(
			&payment.ID,
			&payment.ClientID,
			&payment.Amount,
			&payment.UPITransactionID,
			&payment.PayerName,
			&payment.PaymentTimestamp,
			&payment.Status,
			&payment.RawPayload,
			&payment.CreatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicateTransaction
			}
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &payment, client, nil
}

// InsertMessage stores a conversation turn for auditing purposes.
func (r *PostgresRepository) InsertMessage(ctx context.Context, msg MessageRecord) error {
	const q = `
INSERT INTO messages (client_id, direction, content, raw_payload)
VALUES ($1, $2, $3, $4);`
	_, err := r.pool.Exec(ctx, q, msg.ClientID, msg.Direction, msg.Content, msg.RawPayload)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListRecentMessages returns the latest turns exchanged with the client,
// newest first.
func (r *PostgresRepository) ListRecentMessages(ctx context.Context, clientID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT direction, content, created_at
FROM messages
WHERE client_id = $1
ORDER BY created_at DESC
LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	var records []MessageRecord
	for rows.Next() {
		var msg MessageRecord
		if err := rows.Scan(&msg.Direction, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		msg.ClientID = clientID
		records = append(records, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}
	return records, nil
}
