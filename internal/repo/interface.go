package repo

import (
	"context"
	"io/fs"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Clients
	CreateClient(ctx context.Context, whatsappNumber string) (*Client, error)
	GetClientByID(ctx context.Context, id string) (*Client, error)
	LatestClientByNumber(ctx context.Context, number string) (*Client, error)
	LatestPendingClientByNumber(ctx context.Context, number string) (*Client, error)
	LatestPendingAwaitingPayment(ctx context.Context) (*Client, error)
	UpdateClientConversation(ctx context.Context, id string, mut ConversationMutation) (*Client, error)
	ExpireStaleClients(ctx context.Context, cutoff time.Time) (int64, error)

	// Payments
	SettlePayment(ctx context.Context, clientID string, settle PaymentSettlement) (*Payment, *Client, error)

	// Credentials
	CompleteClient(ctx context.Context, id string, creds Credentials) (*Client, error)

	// Messages
	InsertMessage(ctx context.Context, msg MessageRecord) error
	ListRecentMessages(ctx context.Context, clientID string, limit int) ([]MessageRecord, error)
}
