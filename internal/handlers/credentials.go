package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tradeid-bot/internal/creds"
	"tradeid-bot/internal/metrics"
	"tradeid-bot/internal/repo"
)

// CredentialIssuer performs the operator credential handoff.
type CredentialIssuer interface {
	Process(ctx context.Context, req creds.Request) (*creds.Result, error)
}

type credentialRequest struct {
	ClientID       string `json:"client_id"`
	TradingID      string `json:"trading_id"`
	Password       string `json:"password"`
	LoginURL       string `json:"login_url"`
	SupportContact string `json:"support_contact,omitempty"`
}

// CredentialHandler accepts operator-issued credentials for a client and
// returns the rendered outbound notification.
type CredentialHandler struct {
	issuer  CredentialIssuer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCredentialHandler creates the credential handoff handler.
func NewCredentialHandler(issuer CredentialIssuer, logger *slog.Logger, metricRegistry *metrics.Metrics) *CredentialHandler {
	return &CredentialHandler{
		issuer:  issuer,
		logger:  logger.With("component", "credentials"),
		metrics: metricRegistry,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *CredentialHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	var req credentialRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.metrics.WebhookRequests.WithLabelValues("credentials", "invalid").Inc()
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.issuer.Process(r.Context(), creds.Request{
		ClientID:       req.ClientID,
		TradingID:      req.TradingID,
		Password:       req.Password,
		LoginURL:       req.LoginURL,
		SupportContact: req.SupportContact,
	})
	if err != nil {
		switch {
		case errors.Is(err, creds.ErrMissingFields):
			h.metrics.WebhookRequests.WithLabelValues("credentials", "invalid").Inc()
			writeError(w, http.StatusBadRequest, "Missing required fields")
		case errors.Is(err, repo.ErrClientNotFound):
			h.metrics.WebhookRequests.WithLabelValues("credentials", "not_found").Inc()
			writeError(w, http.StatusNotFound, "Client not found")
		default:
			h.logger.Error("credential handoff failed", "error", err)
			h.metrics.WebhookRequests.WithLabelValues("credentials", "error").Inc()
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.metrics.WebhookRequests.WithLabelValues("credentials", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"whatsapp_message": result.Message,
		"whatsapp_number":  result.WhatsAppNumber,
	})
}
