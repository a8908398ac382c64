package repo

import (
	"context"
	"fmt"
	"time"
)

// CreateClient inserts a fresh onboarding record for the number, starting in
// awaiting_platform_selection with a pending payment status.
func (r *PostgresRepository) CreateClient(ctx context.Context, whatsappNumber string) (*Client, error) {
	q := `
INSERT INTO clients (whatsapp_number, state, payment_status)
VALUES ($1, $2, $3)
RETURNING ` + clientColumns + `;`
	row := r.pool.QueryRow(ctx, q, whatsappNumber, StateAwaitingPlatform, PaymentPending)
	client, err := scanClient(row)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

// GetClientByID returns a client by identifier.
func (r *PostgresRepository) GetClientByID(ctx context.Context, id string) (*Client, error) {
	q := `
SELECT ` + clientColumns + `
FROM clients
WHERE id = $1
LIMIT 1;`
	return scanClient(r.pool.QueryRow(ctx, q, id))
}

// LatestClientByNumber returns the most recent onboarding attempt for the
// number, regardless of state.
func (r *PostgresRepository) LatestClientByNumber(ctx context.Context, number string) (*Client, error) {
	q := `
SELECT ` + clientColumns + `
FROM clients
WHERE whatsapp_number = $1
ORDER BY created_at DESC
LIMIT 1;`
	return scanClient(r.pool.QueryRow(ctx, q, number))
}

// LatestPendingClientByNumber returns the most recent client for the number
// still awaiting its payment.
func (r *PostgresRepository) LatestPendingClientByNumber(ctx context.Context, number string) (*Client, error) {
	q := `
SELECT ` + clientColumns + `
FROM clients
WHERE whatsapp_number = $1 AND payment_status = $2
ORDER BY created_at DESC
LIMIT 1;`
	return scanClient(r.pool.QueryRow(ctx, q, number, PaymentPending))
}

// LatestPendingAwaitingPayment returns the most recent client system-wide
// that is pending and parked in awaiting_payment. Used by the payment
// matcher's fallback path when the provider omits the payer number.
func (r *PostgresRepository) LatestPendingAwaitingPayment(ctx context.Context) (*Client, error) {
	q := `
SELECT ` + clientColumns + `
FROM clients
WHERE payment_status = $1 AND state = $2
ORDER BY created_at DESC
LIMIT 1;`
	return scanClient(r.pool.QueryRow(ctx, q, PaymentPending, StateAwaitingPayment))
}

// UpdateClientConversation applies a fully-computed conversation mutation in
// a single write. Nil fields keep their stored value; state and updated_at
// are always written.
func (r *PostgresRepository) UpdateClientConversation(ctx context.Context, id string, mut ConversationMutation) (*Client, error) {
	q := `
UPDATE clients
SET client_name = COALESCE($2, client_name),
    selected_platform = COALESCE($3, selected_platform),
    state = $4,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + clientColumns + `;`
	row := r.pool.QueryRow(ctx, q, id, mut.ClientName, mut.SelectedPlatform, mut.State)
	client, err := scanClient(row)
	if err != nil {
		return nil, fmt.Errorf("update client conversation: %w", err)
	}
	return client, nil
}

// ExpireStaleClients transitions non-terminal clients last touched before
// cutoff into the expired state. Rows are never deleted.
func (r *PostgresRepository) ExpireStaleClients(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
UPDATE clients
SET state = $1, updated_at = NOW()
WHERE state NOT IN ($2, $1) AND updated_at < $3;`
	ct, err := r.pool.Exec(ctx, q, StateExpired, StateCompleted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire stale clients: %w", err)
	}
	return ct.RowsAffected(), nil
}

// CompleteClient persists operator-issued credentials and marks the attempt
// completed.
func (r *PostgresRepository) CompleteClient(ctx context.Context, id string, creds Credentials) (*Client, error) {
	q := `
UPDATE clients
SET trading_id = $2,
    trading_password = $3,
    login_url = $4,
    state = $5,
    admin_assigned = TRUE,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + clientColumns + `;`
	row := r.pool.QueryRow(ctx, q, id, creds.TradingID, creds.Password, creds.LoginURL, StateCompleted)
	client, err := scanClient(row)
	if err != nil {
		return nil, err
	}
	return client, nil
}
