package repo

import "time"

// State is a client's position in the fixed onboarding sequence.
type State string

// Onboarding states, in order. Expired is terminal and reachable from any
// non-completed state.
const (
	StateAwaitingPlatform State = "awaiting_platform_selection"
	StateAwaitingName     State = "awaiting_client_name"
	StateAwaitingPayment  State = "awaiting_payment"
	StatePaymentReceived  State = "payment_received"
	StateAdminProcessing  State = "admin_processing"
	StateCompleted        State = "completed"
	StateExpired          State = "expired"
)

// Terminal reports whether the state ends the onboarding attempt. A new
// inbound message for a number whose latest record is terminal creates a
// fresh record instead of mutating the old one.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateExpired
}

// rank orders the linear states for monotonicity checks. Expired sorts last
// since it is reachable from anywhere.
func (s State) rank() int {
	switch s {
	case StateAwaitingPlatform:
		return 0
	case StateAwaitingName:
		return 1
	case StateAwaitingPayment:
		return 2
	case StatePaymentReceived:
		return 3
	case StateAdminProcessing:
		return 4
	case StateCompleted:
		return 5
	default:
		return 6
	}
}

// After reports whether s comes strictly later than other in the onboarding
// order.
func (s State) After(other State) bool {
	return s.rank() > other.rank()
}

// Payment statuses for the clients.payment_status column.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Client represents one onboarding attempt for a WhatsApp number.
type Client struct {
	ID               string
	WhatsAppNumber   string
	ClientName       *string
	SelectedPlatform *string
	State            State
	PaymentStatus    string
	PaymentAmount    *float64
	TransactionID    *string
	WalletAmount     float64
	TradingID        *string
	TradingPassword  *string
	LoginURL         *string
	AdminAssigned    bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Name returns the client's name or a fallback for rendering.
func (c *Client) Name() string {
	if c.ClientName != nil && *c.ClientName != "" {
		return *c.ClientName
	}
	return "Sir"
}

// Platform returns the selected platform or a fallback for rendering.
func (c *Client) Platform() string {
	if c.SelectedPlatform != nil && *c.SelectedPlatform != "" {
		return *c.SelectedPlatform
	}
	return "trading"
}

// ConversationMutation is the full set of pre-payment fields a conversation
// turn may write. The engine computes it in full before persisting once;
// nil fields are left untouched, State is always written.
type ConversationMutation struct {
	ClientName       *string
	SelectedPlatform *string
	State            State
}

// Payment represents one reconciled inbound payment notification. Rows are
// append-only and never re-attached to a different client.
type Payment struct {
	ID               string
	ClientID         string
	Amount           float64
	UPITransactionID *string
	PayerName        *string
	PaymentTimestamp time.Time
	Status           string
	RawPayload       []byte
	CreatedAt        time.Time
}

// PaymentSettlement carries everything needed to attach a payment to a
// client and advance its state in one atomic write.
type PaymentSettlement struct {
	Amount           float64
	UPITransactionID *string
	PayerName        *string
	PaymentTimestamp time.Time
	RawPayload       []byte
}

// Credentials is the operator-supplied credential set for a client.
type Credentials struct {
	TradingID string
	Password  string
	LoginURL  string
}

// MessageRecord is an audit row for one inbound or outbound conversation
// turn.
type MessageRecord struct {
	ClientID   string
	Direction  string
	Content    *string
	RawPayload []byte
	CreatedAt  time.Time
}

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)
