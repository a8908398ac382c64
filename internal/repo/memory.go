package repo

import (
	"context"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository used by tests. It reproduces
// the conditional-write semantics of the SQL implementations (the pending ->
// paid claim, transaction-id uniqueness) under a mutex so race behaviour can
// be exercised without a database.
type MemoryRepository struct {
	mu       sync.Mutex
	clients  map[string]*Client
	payments map[string]*Payment
	messages []MessageRecord
	seq      int64

	// FailWrites makes every mutating call return this error, for testing
	// persistence failure paths.
	FailWrites error
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemory returns an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		clients:  map[string]*Client{},
		payments: map[string]*Payment{},
	}
}

func (r *MemoryRepository) Close() {}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) RunMigrations(context.Context, fs.FS) error { return nil }

// next returns a strictly increasing timestamp so recency ordering is
// deterministic even when calls land in the same nanosecond.
func (r *MemoryRepository) next() time.Time {
	r.seq++
	return time.Unix(1_700_000_000, 0).UTC().Add(time.Duration(r.seq) * time.Millisecond)
}

func (r *MemoryRepository) CreateClient(_ context.Context, whatsappNumber string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return nil, r.FailWrites
	}
	now := r.next()
	c := &Client{
		ID:             uuid.NewString(),
		WhatsAppNumber: whatsappNumber,
		State:          StateAwaitingPlatform,
		PaymentStatus:  PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.clients[c.ID] = c
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) GetClientByID(_ context.Context, id string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) latest(match func(*Client) bool) (*Client, error) {
	var candidates []*Client
	for _, c := range r.clients {
		if match(c) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrClientNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (r *MemoryRepository) LatestClientByNumber(_ context.Context, number string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest(func(c *Client) bool { return c.WhatsAppNumber == number })
}

func (r *MemoryRepository) LatestPendingClientByNumber(_ context.Context, number string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest(func(c *Client) bool {
		return c.WhatsAppNumber == number && c.PaymentStatus == PaymentPending
	})
}

func (r *MemoryRepository) LatestPendingAwaitingPayment(_ context.Context) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest(func(c *Client) bool {
		return c.PaymentStatus == PaymentPending && c.State == StateAwaitingPayment
	})
}

func (r *MemoryRepository) UpdateClientConversation(_ context.Context, id string, mut ConversationMutation) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return nil, r.FailWrites
	}
	c, ok := r.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	if mut.ClientName != nil {
		c.ClientName = mut.ClientName
	}
	if mut.SelectedPlatform != nil {
		c.SelectedPlatform = mut.SelectedPlatform
	}
	c.State = mut.State
	c.UpdatedAt = r.next()
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) ExpireStaleClients(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return 0, r.FailWrites
	}
	var n int64
	for _, c := range r.clients {
		if !c.State.Terminal() && c.UpdatedAt.Before(cutoff) {
			c.State = StateExpired
			c.UpdatedAt = r.next()
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) SettlePayment(_ context.Context, clientID string, settle PaymentSettlement) (*Payment, *Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return nil, nil, r.FailWrites
	}

	if settle.UPITransactionID != nil {
		for _, p := range r.payments {
			if p.UPITransactionID != nil && *p.UPITransactionID == *settle.UPITransactionID {
				return nil, nil, ErrDuplicateTransaction
			}
		}
	}

	c, ok := r.clients[clientID]
	if !ok || c.PaymentStatus != PaymentPending {
		return nil, nil, ErrAlreadySettled
	}

	amount := settle.Amount
	c.PaymentStatus = PaymentPaid
	c.PaymentAmount = &amount
	c.TransactionID = settle.UPITransactionID
	c.WalletAmount += amount
	c.State = StatePaymentReceived
	c.UpdatedAt = r.next()

	ts := settle.PaymentTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	p := &Payment{
		ID:               uuid.NewString(),
		ClientID:         clientID,
		Amount:           amount,
		UPITransactionID: settle.UPITransactionID,
		PayerName:        settle.PayerName,
		PaymentTimestamp: ts,
		Status:           PaymentPaid,
		RawPayload:       settle.RawPayload,
		CreatedAt:        r.next(),
	}
	r.payments[p.ID] = p

	pc, cc := *p, *c
	return &pc, &cc, nil
}

func (r *MemoryRepository) CompleteClient(_ context.Context, id string, creds Credentials) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return nil, r.FailWrites
	}
	c, ok := r.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	c.TradingID = &creds.TradingID
	c.TradingPassword = &creds.Password
	c.LoginURL = &creds.LoginURL
	c.State = StateCompleted
	c.AdminAssigned = true
	c.UpdatedAt = r.next()
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) InsertMessage(_ context.Context, msg MessageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return r.FailWrites
	}
	msg.CreatedAt = r.next()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *MemoryRepository) ListRecentMessages(_ context.Context, clientID string, limit int) ([]MessageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	var out []MessageRecord
	for i := len(r.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if r.messages[i].ClientID == clientID {
			out = append(out, r.messages[i])
		}
	}
	return out, nil
}

// PaymentCount reports the number of ledger rows, for assertions in tests.
func (r *MemoryRepository) PaymentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

// MessageCount reports the number of audit rows, for assertions in tests.
func (r *MemoryRepository) MessageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}
