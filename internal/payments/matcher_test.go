package payments

import (
	"context"
	"strings"
	"sync"
	"testing"

	"tradeid-bot/internal/logging"
	"tradeid-bot/internal/metrics"
	"tradeid-bot/internal/repo"
)

func newTestMatcher(t *testing.T) (*Matcher, *repo.MemoryRepository) {
	t.Helper()
	store := repo.NewMemory()
	logger := logging.NewLogger("error", "test")
	return New(store, nil, metrics.Registry("test"), logger, 1_000_000), store
}

func seedAwaitingPayment(t *testing.T, store *repo.MemoryRepository, number, name, platform string) *repo.Client {
	t.Helper()
	client, err := store.CreateClient(context.Background(), number)
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	updated, err := store.UpdateClientConversation(context.Background(), client.ID, repo.ConversationMutation{
		ClientName:       &name,
		SelectedPlatform: &platform,
		State:            repo.StateAwaitingPayment,
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}
	return updated
}

func TestPhoneMatchSettlesPayment(t *testing.T) {
	matcher, store := newTestMatcher(t)
	client := seedAwaitingPayment(t, store, "+911234567890", "Rahul Sharma", "ABC Index")

	outcome, err := matcher.Process(context.Background(), Notification{
		Amount:           250,
		PhoneNumber:      "+911234567890",
		UPITransactionID: "UTR-001",
		Raw:              []byte(`{"amount":250}`),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !outcome.Matched {
		t.Fatalf("expected a match, got %q", outcome.Message)
	}
	if outcome.UsedFallback {
		t.Fatal("expected phone match, not fallback")
	}
	if outcome.Payment.Amount != 250 {
		t.Fatalf("expected payment amount 250, got %v", outcome.Payment.Amount)
	}

	reloaded, _ := store.GetClientByID(context.Background(), client.ID)
	if reloaded.PaymentStatus != repo.PaymentPaid {
		t.Fatalf("expected paid, got %s", reloaded.PaymentStatus)
	}
	if reloaded.State != repo.StatePaymentReceived {
		t.Fatalf("expected payment_received, got %s", reloaded.State)
	}
	if reloaded.WalletAmount != 250 {
		t.Fatalf("expected wallet 250, got %v", reloaded.WalletAmount)
	}
	if reloaded.TransactionID == nil || *reloaded.TransactionID != "UTR-001" {
		t.Fatalf("expected transaction id recorded, got %v", reloaded.TransactionID)
	}

	if !strings.Contains(outcome.AdminNotification, "Rahul Sharma") ||
		!strings.Contains(outcome.AdminNotification, "UTR-001") {
		t.Fatalf("expected admin notification to carry client and txn, got %q", outcome.AdminNotification)
	}
	if !strings.Contains(outcome.ClientNotification, "ABC Index") {
		t.Fatalf("expected client notification to mention platform, got %q", outcome.ClientNotification)
	}
}

func TestFallbackMatchWithoutPhoneNumber(t *testing.T) {
	matcher, store := newTestMatcher(t)
	seedAwaitingPayment(t, store, "+911234567890", "Rahul Sharma", "Binex")

	outcome, err := matcher.Process(context.Background(), Notification{Amount: 300})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !outcome.Matched {
		t.Fatalf("expected fallback match, got %q", outcome.Message)
	}
	if !outcome.UsedFallback {
		t.Fatal("expected fallback path to be reported")
	}
}

func TestFallbackPrefersMostRecentAwaitingPayment(t *testing.T) {
	matcher, store := newTestMatcher(t)
	seedAwaitingPayment(t, store, "+911111111111", "First", "Binex")
	second := seedAwaitingPayment(t, store, "+912222222222", "Second", "Binex")

	outcome, err := matcher.Process(context.Background(), Notification{Amount: 250})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !outcome.Matched || outcome.Client.ID != second.ID {
		t.Fatalf("expected most recent client %s to win, got %+v", second.ID, outcome.Client)
	}
}

func TestNoMatchingClient(t *testing.T) {
	matcher, _ := newTestMatcher(t)

	outcome, err := matcher.Process(context.Background(), Notification{Amount: 250})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Matched {
		t.Fatal("expected no match")
	}
	if outcome.Message != msgNoMatch {
		t.Fatalf("expected %q, got %q", msgNoMatch, outcome.Message)
	}
}

func TestInvalidAmounts(t *testing.T) {
	matcher, store := newTestMatcher(t)
	seedAwaitingPayment(t, store, "+911234567890", "Rahul", "Binex")

	for _, amount := range []float64{0, -5, 2_000_000} {
		if _, err := matcher.Process(context.Background(), Notification{Amount: amount}); err != ErrInvalidAmount {
			t.Fatalf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if store.PaymentCount() != 0 {
		t.Fatal("expected no ledger rows for rejected amounts")
	}
}

func TestDuplicateTransactionIsRejected(t *testing.T) {
	matcher, store := newTestMatcher(t)
	seedAwaitingPayment(t, store, "+911111111111", "First", "Binex")

	first, err := matcher.Process(context.Background(), Notification{
		Amount:           250,
		PhoneNumber:      "+911111111111",
		UPITransactionID: "UTR-DUP",
	})
	if err != nil || !first.Matched {
		t.Fatalf("expected first delivery to match: %v %+v", err, first)
	}

	// A second pending client exists, but the replayed callback must not
	// credit it with the same provider transaction.
	seedAwaitingPayment(t, store, "+912222222222", "Second", "Binex")

	second, err := matcher.Process(context.Background(), Notification{
		Amount:           250,
		UPITransactionID: "UTR-DUP",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if second.Matched {
		t.Fatal("expected duplicate transaction to be rejected")
	}
	if second.Message != msgDuplicate {
		t.Fatalf("expected %q, got %q", msgDuplicate, second.Message)
	}
	if store.PaymentCount() != 1 {
		t.Fatalf("expected a single ledger row, got %d", store.PaymentCount())
	}
}

func TestConcurrentNotificationsSettleExactlyOnce(t *testing.T) {
	matcher, store := newTestMatcher(t)
	client := seedAwaitingPayment(t, store, "+911234567890", "Rahul", "Binex")

	const racers = 8
	outcomes := make([]*Outcome, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := matcher.Process(context.Background(), Notification{
				Amount:           250,
				PhoneNumber:      "+911234567890",
				UPITransactionID: "UTR-RACE-" + string(rune('A'+i)),
			})
			if err != nil {
				t.Errorf("racer %d: %v", i, err)
				return
			}
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	matched := 0
	for _, out := range outcomes {
		if out != nil && out.Matched {
			matched++
		} else if out != nil && out.Message != msgNoMatch {
			t.Fatalf("loser should observe no match, got %q", out.Message)
		}
	}
	if matched != 1 {
		t.Fatalf("expected exactly one winner, got %d", matched)
	}
	if store.PaymentCount() != 1 {
		t.Fatalf("expected one ledger row, got %d", store.PaymentCount())
	}

	reloaded, _ := store.GetClientByID(context.Background(), client.ID)
	if reloaded.WalletAmount != 250 {
		t.Fatalf("expected wallet credited exactly once, got %v", reloaded.WalletAmount)
	}
}
