package creds

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tradeid-bot/internal/logging"
	"tradeid-bot/internal/metrics"
	"tradeid-bot/internal/repo"
)

func newTestHandoff(t *testing.T) (*Handoff, *repo.MemoryRepository) {
	t.Helper()
	store := repo.NewMemory()
	logger := logging.NewLogger("error", "test")
	return New(store, metrics.Registry("test"), logger, "+91 11111 11111"), store
}

func seedPaymentReceived(t *testing.T, store *repo.MemoryRepository) *repo.Client {
	t.Helper()
	client, err := store.CreateClient(context.Background(), "+911234567890")
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	name := "Rahul Sharma"
	platform := "Quotex Pro"
	updated, err := store.UpdateClientConversation(context.Background(), client.ID, repo.ConversationMutation{
		ClientName:       &name,
		SelectedPlatform: &platform,
		State:            repo.StateAwaitingPayment,
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}
	if _, _, err := store.SettlePayment(context.Background(), updated.ID, repo.PaymentSettlement{Amount: 250}); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return updated
}

func TestHandoffCompletesClient(t *testing.T) {
	handoff, store := newTestHandoff(t)
	client := seedPaymentReceived(t, store)

	res, err := handoff.Process(context.Background(), Request{
		ClientID:  client.ID,
		TradingID: "TRD-42",
		Password:  "s3cret!",
		LoginURL:  "https://trade.example.com/login",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	reloaded, _ := store.GetClientByID(context.Background(), client.ID)
	if reloaded.State != repo.StateCompleted {
		t.Fatalf("expected completed, got %s", reloaded.State)
	}
	if !reloaded.AdminAssigned {
		t.Fatal("expected admin_assigned to be set")
	}

	for _, want := range []string{"TRD-42", "s3cret!", "https://trade.example.com/login", "Quotex Pro", "change your password"} {
		if !strings.Contains(res.Message, want) {
			t.Fatalf("expected message to contain %q, got %q", want, res.Message)
		}
	}
	if res.WhatsAppNumber != "+911234567890" {
		t.Fatalf("expected destination number, got %s", res.WhatsAppNumber)
	}
}

func TestHandoffDefaultsSupportContact(t *testing.T) {
	handoff, store := newTestHandoff(t)
	client := seedPaymentReceived(t, store)

	res, err := handoff.Process(context.Background(), Request{
		ClientID:  client.ID,
		TradingID: "TRD-42",
		Password:  "pw",
		LoginURL:  "https://x",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(res.Message, "+91 11111 11111") {
		t.Fatalf("expected default support contact, got %q", res.Message)
	}
}

func TestHandoffRejectsMissingFields(t *testing.T) {
	handoff, store := newTestHandoff(t)
	client := seedPaymentReceived(t, store)

	_, err := handoff.Process(context.Background(), Request{
		ClientID:  client.ID,
		TradingID: "TRD-42",
		LoginURL:  "https://x",
	})
	if !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}

	reloaded, _ := store.GetClientByID(context.Background(), client.ID)
	if reloaded.State == repo.StateCompleted {
		t.Fatal("expected no completion on validation failure")
	}
}

func TestHandoffUnknownClient(t *testing.T) {
	handoff, _ := newTestHandoff(t)

	_, err := handoff.Process(context.Background(), Request{
		ClientID:  "nope",
		TradingID: "TRD-42",
		Password:  "pw",
		LoginURL:  "https://x",
	})
	if !errors.Is(err, repo.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}
