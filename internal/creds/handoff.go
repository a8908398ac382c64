package creds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tradeid-bot/internal/metrics"
	"tradeid-bot/internal/repo"
)

// ErrMissingFields indicates a required credential field was empty.
var ErrMissingFields = errors.New("missing required credential fields")

// Request is the operator-supplied credential set for a client.
type Request struct {
	ClientID       string
	TradingID      string
	Password       string
	LoginURL       string
	SupportContact string
}

// Result carries the rendered notification and its destination. Delivery is
// the external transport's responsibility.
type Result struct {
	Client         *repo.Client
	Message        string
	WhatsAppNumber string
}

// Handoff persists operator-issued credentials and renders the outbound
// credential message.
type Handoff struct {
	repo           repo.Repository
	metrics        *metrics.Metrics
	logger         *slog.Logger
	supportContact string
}

// New creates a credential handoff.
func New(repository repo.Repository, metricRegistry *metrics.Metrics, logger *slog.Logger, supportContact string) *Handoff {
	if supportContact == "" {
		supportContact = "+91 99999 99999"
	}
	return &Handoff{
		repo:           repository,
		metrics:        metricRegistry,
		logger:         logger.With("component", "creds"),
		supportContact: supportContact,
	}
}

// Process validates the request, stores the credentials, marks the client
// completed and returns the rendered notification.
func (h *Handoff) Process(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.ClientID) == "" ||
		strings.TrimSpace(req.TradingID) == "" ||
		strings.TrimSpace(req.Password) == "" ||
		strings.TrimSpace(req.LoginURL) == "" {
		return nil, ErrMissingFields
	}

	// Existence check first so an unknown id surfaces as not-found rather
	// than a write failure.
	client, err := h.repo.GetClientByID(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	updated, err := h.repo.CompleteClient(ctx, client.ID, repo.Credentials{
		TradingID: req.TradingID,
		Password:  req.Password,
		LoginURL:  req.LoginURL,
	})
	if err != nil {
		h.metrics.Errors.WithLabelValues("creds_persist").Inc()
		return nil, fmt.Errorf("complete client: %w", err)
	}

	support := req.SupportContact
	if strings.TrimSpace(support) == "" {
		support = h.supportContact
	}

	h.metrics.CredentialIssued.Inc()
	h.logger.Info("credentials issued", "client_id", updated.ID, "platform", updated.Platform())

	return &Result{
		Client:         updated,
		Message:        credentialMessage(updated, req, support),
		WhatsAppNumber: updated.WhatsAppNumber,
	}, nil
}

func credentialMessage(client *repo.Client, req Request, support string) string {
	platform := "Trading"
	if client.SelectedPlatform != nil && *client.SelectedPlatform != "" {
		platform = *client.SelectedPlatform
	}
	return fmt.Sprintf(`Dear %s,

Your %s Account has been activated! 🎉

🔐 Trading ID: %s
🔑 Password: %s
🌐 Login Link: %s
📞 Support: %s

Happy Trading! 🚀

⚠️ Please change your password after first login for security.`,
		client.Name(), platform, req.TradingID, req.Password, req.LoginURL, support)
}
