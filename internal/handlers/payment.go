package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tradeid-bot/internal/metrics"
	"tradeid-bot/internal/payments"
)

// PaymentProcessor reconciles an inbound payment notification.
type PaymentProcessor interface {
	Process(ctx context.Context, n payments.Notification) (*payments.Outcome, error)
}

// paymentRequest is the payment webhook body. Providers attach extra fields
// freely; the raw payload is retained verbatim for audit, so unknown fields
// are tolerated here.
type paymentRequest struct {
	Amount           float64 `json:"amount"`
	PayerName        string  `json:"payer_name"`
	UPITransactionID string  `json:"upi_transaction_id"`
	PhoneNumber      string  `json:"phone_number"`
	Timestamp        string  `json:"timestamp"`
}

// PaymentHandler verifies and validates the payment webhook and forwards it
// to the matcher.
type PaymentHandler struct {
	processor PaymentProcessor
	secret    string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewPaymentHandler creates the payment webhook handler.
func NewPaymentHandler(processor PaymentProcessor, secret string, logger *slog.Logger, metricRegistry *metrics.Metrics) *PaymentHandler {
	return &PaymentHandler{
		processor: processor,
		secret:    secret,
		logger:    logger.With("component", "payment_webhook"),
		metrics:   metricRegistry,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *PaymentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	if !VerifySignature(h.secret, body, r.Header.Get(signatureHeader)) {
		h.metrics.WebhookRequests.WithLabelValues("payment", "unauthorized").Inc()
		writeError(w, http.StatusUnauthorized, "Unauthorized - invalid webhook signature")
		return
	}

	var req paymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.metrics.WebhookRequests.WithLabelValues("payment", "invalid").Inc()
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	notification := payments.Notification{
		Amount:           req.Amount,
		PayerName:        req.PayerName,
		UPITransactionID: req.UPITransactionID,
		PhoneNumber:      req.PhoneNumber,
		Timestamp:        parseTimestamp(req.Timestamp),
		Raw:              body,
	}

	outcome, err := h.processor.Process(r.Context(), notification)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidAmount) {
			h.metrics.WebhookRequests.WithLabelValues("payment", "invalid").Inc()
			writeError(w, http.StatusBadRequest, "Invalid payment amount")
			return
		}
		h.logger.Error("payment reconciliation failed", "error", err)
		h.metrics.WebhookRequests.WithLabelValues("payment", "error").Inc()
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !outcome.Matched {
		h.metrics.WebhookRequests.WithLabelValues("payment", "no_match").Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": outcome.Message,
		})
		return
	}

	h.metrics.WebhookRequests.WithLabelValues("payment", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"client_id":           outcome.Client.ID,
		"payment_id":          outcome.Payment.ID,
		"admin_notification":  outcome.AdminNotification,
		"client_notification": outcome.ClientNotification,
	})
}

func parseTimestamp(val string) time.Time {
	if val == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, val); err == nil {
			return ts
		}
	}
	return time.Time{}
}
