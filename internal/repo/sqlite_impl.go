package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLite stores timestamps as RFC3339 text. All writes set them explicitly
// from Go so scans round-trip without driver-level time support. The fraction
// is fixed-width so the text sorts the same as the instants; a trimmed
// fraction would break ordering at second boundaries ('Z' > '.').
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func sqliteNow() string {
	return time.Now().UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(val string) time.Time {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, val); err == nil {
			return ts
		}
	}
	return time.Time{}
}

const sqliteClientColumns = `id, whatsapp_number, client_name, selected_platform, state, payment_status,
payment_amount, transaction_id, wallet_amount, trading_id, trading_password, login_url,
admin_assigned, created_at, updated_at`

func scanSQLiteClient(row rowScanner) (*Client, error) {
	var (
		c                  Client
		createdAt, updated string
	)
	err := row.Scan(
		&c.ID,
		&c.WhatsAppNumber,
		&c.ClientName,
		&c.SelectedPlatform,
		&c.State,
		&c.PaymentStatus,
		&c.PaymentAmount,
		&c.TransactionID,
		&c.WalletAmount,
		&c.TradingID,
		&c.TradingPassword,
		&c.LoginURL,
		&c.AdminAssigned,
		&createdAt,
		&updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}
	c.CreatedAt = parseSQLiteTime(createdAt)
	c.UpdatedAt = parseSQLiteTime(updated)
	return &c, nil
}

// CreateClient inserts a fresh onboarding record for the number.
func (r *SQLiteRepository) CreateClient(ctx context.Context, whatsappNumber string) (*Client, error) {
	now := sqliteNow()
	q := `
INSERT INTO clients (id, whatsapp_number, state, payment_status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING ` + sqliteClientColumns + `;`
	row := r.db.QueryRowContext(ctx, q, uuid.NewString(), whatsappNumber, StateAwaitingPlatform, PaymentPending, now, now)
	client, err := scanSQLiteClient(row)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

// GetClientByID returns a client by identifier.
func (r *SQLiteRepository) GetClientByID(ctx context.Context, id string) (*Client, error) {
	q := `SELECT ` + sqliteClientColumns + ` FROM clients WHERE id = ? LIMIT 1;`
	return scanSQLiteClient(r.db.QueryRowContext(ctx, q, id))
}

// LatestClientByNumber returns the most recent onboarding attempt for the
// number, regardless of state.
func (r *SQLiteRepository) LatestClientByNumber(ctx context.Context, number string) (*Client, error) {
	q := `
SELECT ` + sqliteClientColumns + `
FROM clients
WHERE whatsapp_number = ?
ORDER BY created_at DESC
LIMIT 1;`
	return scanSQLiteClient(r.db.QueryRowContext(ctx, q, number))
}

// LatestPendingClientByNumber returns the most recent client for the number
// still awaiting its payment.
func (r *SQLiteRepository) LatestPendingClientByNumber(ctx context.Context, number string) (*Client, error) {
	q := `
SELECT ` + sqliteClientColumns + `
FROM clients
WHERE whatsapp_number = ? AND payment_status = ?
ORDER BY created_at DESC
LIMIT 1;`
	return scanSQLiteClient(r.db.QueryRowContext(ctx, q, number, PaymentPending))
}

// LatestPendingAwaitingPayment returns the most recent pending client parked
// in awaiting_payment, system-wide.
func (r *SQLiteRepository) LatestPendingAwaitingPayment(ctx context.Context) (*Client, error) {
	q := `
SELECT ` + sqliteClientColumns + `
FROM clients
WHERE payment_status = ? AND state = ?
ORDER BY created_at DESC
LIMIT 1;`
	return scanSQLiteClient(r.db.QueryRowContext(ctx, q, PaymentPending, StateAwaitingPayment))
}

// UpdateClientConversation applies a fully-computed conversation mutation in
// a single write.
func (r *SQLiteRepository) UpdateClientConversation(ctx context.Context, id string, mut ConversationMutation) (*Client, error) {
	q := `
UPDATE clients
SET client_name = COALESCE(?, client_name),
    selected_platform = COALESCE(?, selected_platform),
    state = ?,
    updated_at = ?
WHERE id = ?
RETURNING ` + sqliteClientColumns + `;`
	row := r.db.QueryRowContext(ctx, q, mut.ClientName, mut.SelectedPlatform, mut.State, sqliteNow(), id)
	client, err := scanSQLiteClient(row)
	if err != nil {
		return nil, fmt.Errorf("update client conversation: %w", err)
	}
	return client, nil
}

// ExpireStaleClients transitions non-terminal clients last touched before
// cutoff into the expired state.
func (r *SQLiteRepository) ExpireStaleClients(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
UPDATE clients
SET state = ?, updated_at = ?
WHERE state NOT IN (?, ?) AND updated_at < ?;`
	res, err := r.db.ExecContext(ctx, q, StateExpired, sqliteNow(), StateCompleted, StateExpired, cutoff.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("expire stale clients: %w", err)
	}
	return res.RowsAffected()
}

// SettlePayment atomically claims the client's pending payment and appends
// the payment ledger row, mirroring the Postgres semantics.
func (r *SQLiteRepository) SettlePayment(ctx context.Context, clientID string, settle PaymentSettlement) (*Payment, *Client, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin settle tx: %w", err)
	}
	defer tx.Rollback()

	claim := `
UPDATE clients
SET payment_status = ?,
    payment_amount = ?,
    transaction_id = ?,
    wallet_amount = wallet_amount + ?,
    state = ?,
    updated_at = ?
WHERE id = ? AND payment_status = ?
RETURNING ` + sqliteClientColumns + `;`
	row := tx.QueryRowContext(ctx, claim,
		PaymentPaid,
		settle.Amount,
		settle.UPITransactionID,
		settle.Amount,
		StatePaymentReceived,
		sqliteNow(),
		clientID,
		PaymentPending,
	)
	client, err := scanSQLiteClient(row)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, nil, ErrAlreadySettled
		}
		return nil, nil, err
	}

	ts := settle.PaymentTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	payment := Payment{
		ID:               uuid.NewString(),
		ClientID:         clientID,
		Amount:           settle.Amount,
		UPITransactionID: settle.UPITransactionID,
		PayerName:        settle.PayerName,
		PaymentTimestamp: ts,
		Status:           PaymentPaid,
		RawPayload:       settle.RawPayload,
		CreatedAt:        time.Now().UTC(),
	}

	const insert = `
INSERT INTO payments (id, client_id, amount, upi_transaction_id, payer_name, payment_timestamp, status, webhook_raw_data, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`
	_, err = tx.ExecContext(ctx, insert,
		payment.ID,
		payment.ClientID,
		payment.Amount,
		payment.UPITransactionID,
		payment.PayerName,
		payment.PaymentTimestamp.Format(sqliteTimeLayout),
		payment.Status,
		nullableBytes(payment.RawPayload),
		payment.CreatedAt.Format(sqliteTimeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, nil, ErrDuplicateTransaction
		}
		return nil, nil, fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit settle tx: %w", err)
	}
	return &payment, client, nil
}

// CompleteClient persists operator-issued credentials and marks the attempt
// completed.
func (r *SQLiteRepository) CompleteClient(ctx context.Context, id string, creds Credentials) (*Client, error) {
	q := `
UPDATE clients
SET trading_id = ?,
    trading_password = ?,
    login_url = ?,
    state = ?,
    admin_assigned = 1,
    updated_at = ?
WHERE id = ?
RETURNING ` + sqliteClientColumns + `;`
	row := r.db.QueryRowContext(ctx, q, creds.TradingID, creds.Password, creds.LoginURL, StateCompleted, sqliteNow(), id)
	return scanSQLiteClient(row)
}

// InsertMessage stores a conversation turn for auditing purposes.
func (r *SQLiteRepository) InsertMessage(ctx context.Context, msg MessageRecord) error {
	const q = `
INSERT INTO messages (id, client_id, direction, content, raw_payload, created_at)
VALUES (?, ?, ?, ?, ?, ?);`
	_, err := r.db.ExecContext(ctx, q,
		uuid.NewString(),
		msg.ClientID,
		msg.Direction,
		msg.Content,
		nullableBytes(msg.RawPayload),
		sqliteNow(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListRecentMessages returns the latest turns exchanged with the client,
// newest first.
func (r *SQLiteRepository) ListRecentMessages(ctx context.Context, clientID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT direction, content, created_at
FROM messages
WHERE client_id = ?
ORDER BY created_at DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	var records []MessageRecord
	for rows.Next() {
		var (
			msg       MessageRecord
			createdAt string
		)
		if err := rows.Scan(&msg.Direction, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		msg.ClientID = clientID
		msg.CreatedAt = parseSQLiteTime(createdAt)
		records = append(records, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}
	return records, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
