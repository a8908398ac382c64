package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"tradeid-bot/internal/metrics"
	"tradeid-bot/internal/repo"
)

// ErrInvalidAmount indicates the notification's amount is missing, not
// finite, non-positive, or above the sanity ceiling.
var ErrInvalidAmount = errors.New("invalid payment amount")

// Deduper is the fast-path idempotency check for provider callbacks. The
// database unique index on the transaction id remains the source of truth.
type Deduper interface {
	Once(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Notification is a validated inbound payment callback.
type Notification struct {
	Amount           float64
	PayerName        string
	UPITransactionID string
	PhoneNumber      string
	Timestamp        time.Time
	Raw              []byte
}

// Outcome describes what the matcher did with a notification. Matched=false
// is a non-error result: the caller answers 200 with the message.
type Outcome struct {
	Matched            bool
	Message            string
	Payment            *repo.Payment
	Client             *repo.Client
	AdminNotification  string
	ClientNotification string
	UsedFallback       bool
}

// Matcher correlates an inbound payment notification with exactly one
// pending client, appends the ledger row and advances the client's state.
type Matcher struct {
	repo      repo.Repository
	dedupe    Deduper
	metrics   *metrics.Metrics
	logger    *slog.Logger
	maxAmount float64
}

// New creates a matcher. dedupe may be nil.
func New(repository repo.Repository, dedupe Deduper, metricRegistry *metrics.Metrics, logger *slog.Logger, maxAmount float64) *Matcher {
	if maxAmount <= 0 {
		maxAmount = 1_000_000
	}
	return &Matcher{
		repo:      repository,
		dedupe:    dedupe,
		metrics:   metricRegistry,
		logger:    logger.With("component", "payments"),
		maxAmount: maxAmount,
	}
}

const (
	msgNoMatch   = "No matching client found"
	msgDuplicate = "Transaction already recorded"
)

// Process runs the matching algorithm: phone-number match first, then the
// system-wide most-recent pending client in awaiting_payment. The settle
// write is conditional on the client still being pending, so a concurrent
// duplicate delivery loses cleanly and reports no match.
func (m *Matcher) Process(ctx context.Context, n Notification) (*Outcome, error) {
	if err := validateAmount(n.Amount, m.maxAmount); err != nil {
		return nil, err
	}

	if n.UPITransactionID != "" && m.dedupe != nil {
		first, err := m.dedupe.Once(ctx, "payments:txn:"+n.UPITransactionID, 24*time.Hour)
		if err != nil {
			// Fast path only; the DB unique index still guards.
			m.logger.Warn("dedupe check unavailable", "error", err)
		} else if !first {
			m.metrics.PaymentsMatched.WithLabelValues("duplicate").Inc()
			return &Outcome{Matched: false, Message: msgDuplicate}, nil
		}
	}

	client, usedFallback, err := m.findCandidate(ctx, n.PhoneNumber)
	if err != nil {
		if errors.Is(err, repo.ErrClientNotFound) {
			m.metrics.PaymentsMatched.WithLabelValues("no_match").Inc()
			return &Outcome{Matched: false, Message: msgNoMatch}, nil
		}
		return nil, fmt.Errorf("find payment candidate: %w", err)
	}

	payment, updated, err := m.repo.SettlePayment(ctx, client.ID, repo.PaymentSettlement{
		Amount:           n.Amount,
		UPITransactionID: optional(n.UPITransactionID),
		PayerName:        optional(n.PayerName),
		PaymentTimestamp: n.Timestamp,
		RawPayload:       n.Raw,
	})
	switch {
	case errors.Is(err, repo.ErrAlreadySettled):
		// A concurrent notification claimed this client first.
		m.metrics.PaymentsMatched.WithLabelValues("lost_race").Inc()
		return &Outcome{Matched: false, Message: msgNoMatch}, nil
	case errors.Is(err, repo.ErrDuplicateTransaction):
		m.metrics.PaymentsMatched.WithLabelValues("duplicate").Inc()
		return &Outcome{Matched: false, Message: msgDuplicate}, nil
	case err != nil:
		m.metrics.Errors.WithLabelValues("payments_settle").Inc()
		return nil, fmt.Errorf("settle payment: %w", err)
	}

	m.metrics.PaymentsMatched.WithLabelValues("matched").Inc()
	if usedFallback {
		// The fallback can misattribute when several clients are awaiting
		// payment at once; keep it visible to operators.
		m.metrics.FallbackMatches.Inc()
		m.logger.Warn("payment matched via system-wide fallback",
			"client_id", updated.ID, "amount", n.Amount, "txn_id", n.UPITransactionID)
	}

	return &Outcome{
		Matched:            true,
		Payment:            payment,
		Client:             updated,
		AdminNotification:  adminNotification(updated, n),
		ClientNotification: clientNotification(updated, n),
		UsedFallback:       usedFallback,
	}, nil
}

// findCandidate selects the client the payment belongs to. The second
// return value reports whether the system-wide fallback was used.
func (m *Matcher) findCandidate(ctx context.Context, phoneNumber string) (*repo.Client, bool, error) {
	if phoneNumber != "" {
		client, err := m.repo.LatestPendingClientByNumber(ctx, phoneNumber)
		if err == nil {
			return client, false, nil
		}
		if !errors.Is(err, repo.ErrClientNotFound) {
			return nil, false, err
		}
	}

	client, err := m.repo.LatestPendingAwaitingPayment(ctx)
	if err != nil {
		return nil, false, err
	}
	return client, true, nil
}

func validateAmount(amount, max float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ErrInvalidAmount
	}
	if amount <= 0 || amount > max {
		return ErrInvalidAmount
	}
	return nil
}

func optional(val string) *string {
	if val == "" {
		return nil
	}
	return &val
}
