package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"

	"tradeid-bot/internal/convo"
	"tradeid-bot/internal/metrics"
)

// ConversationProcessor handles one inbound conversation turn.
type ConversationProcessor interface {
	Process(ctx context.Context, number, message string, rawPayload []byte) (*convo.Result, error)
}

var phonePattern = regexp.MustCompile(`^\+?[\d\s-]{10,20}$`)

// conversationRequest is the conversation webhook body. Unknown top-level
// fields are rejected rather than coerced.
type conversationRequest struct {
	Message        string          `json:"message"`
	WhatsAppNumber string          `json:"whatsapp_number"`
	WebhookData    json.RawMessage `json:"webhook_data,omitempty"`
}

// ConversationHandler verifies and validates the conversation webhook and
// forwards it to the engine.
type ConversationHandler struct {
	processor ConversationProcessor
	secret    string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewConversationHandler creates the conversation webhook handler.
func NewConversationHandler(processor ConversationProcessor, secret string, logger *slog.Logger, metricRegistry *metrics.Metrics) *ConversationHandler {
	return &ConversationHandler{
		processor: processor,
		secret:    secret,
		logger:    logger.With("component", "whatsapp_webhook"),
		metrics:   metricRegistry,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *ConversationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	// Raw bytes are verified before any parsing.
	if !VerifySignature(h.secret, body, r.Header.Get(signatureHeader)) {
		h.metrics.WebhookRequests.WithLabelValues("whatsapp", "unauthorized").Inc()
		writeError(w, http.StatusUnauthorized, "Unauthorized - invalid webhook signature")
		return
	}

	var req conversationRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.metrics.WebhookRequests.WithLabelValues("whatsapp", "invalid").Inc()
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Message == "" || len(req.Message) > 5000 {
		h.metrics.WebhookRequests.WithLabelValues("whatsapp", "invalid").Inc()
		writeError(w, http.StatusBadRequest, "Invalid message format")
		return
	}
	if !phonePattern.MatchString(req.WhatsAppNumber) {
		h.metrics.WebhookRequests.WithLabelValues("whatsapp", "invalid").Inc()
		writeError(w, http.StatusBadRequest, "Invalid WhatsApp number format")
		return
	}

	result, err := h.processor.Process(r.Context(), req.WhatsAppNumber, req.Message, body)
	if err != nil {
		h.logger.Error("conversation turn failed", "error", err)
		h.metrics.WebhookRequests.WithLabelValues("whatsapp", "error").Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":    "Internal server error",
			"response": "I'm experiencing technical difficulties. Please try again later or contact support.",
		})
		return
	}

	h.metrics.WebhookRequests.WithLabelValues("whatsapp", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"response":  result.Reply,
		"client_id": result.ClientID,
		"state":     result.State,
	})
}
