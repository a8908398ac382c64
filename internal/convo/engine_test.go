package convo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tradeid-bot/internal/logging"
	"tradeid-bot/internal/metrics"
	"tradeid-bot/internal/nlu"
	"tradeid-bot/internal/repo"
)

type stubResolver struct {
	guess   *nlu.Guess
	err     error
	lastCtx nlu.Context
}

func (s *stubResolver) Resolve(_ context.Context, _ string, convoCtx nlu.Context) (*nlu.Guess, error) {
	s.lastCtx = convoCtx
	return s.guess, s.err
}

func newTestEngine(t *testing.T, resolver IntentResolver) (*Engine, *repo.MemoryRepository) {
	t.Helper()
	store := repo.NewMemory()
	logger := logging.NewLogger("error", "test")
	engine := New(store, resolver, nil, metrics.Registry("test"), logger, EngineConfig{MinDeposit: 250})
	return engine, store
}

func TestNewNumberGetsPlatformMenu(t *testing.T) {
	resolver := &stubResolver{guess: &nlu.Guess{DetectedIntent: nlu.IntentNewID}}
	engine, _ := newTestEngine(t, resolver)

	res, err := engine.Process(context.Background(), "+911234567890", "New ID", nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.State != repo.StateAwaitingPlatform {
		t.Fatalf("expected awaiting_platform_selection, got %s", res.State)
	}
	for _, platform := range Platforms {
		if !strings.Contains(res.Reply, platform) {
			t.Fatalf("expected menu to contain %s", platform)
		}
	}
	if res.ClientID == "" {
		t.Fatal("expected a client id")
	}
}

func TestPlatformSelectionByMenuDigit(t *testing.T) {
	resolver := &stubResolver{guess: &nlu.Guess{DetectedIntent: nlu.IntentGeneral}}
	engine, store := newTestEngine(t, resolver)

	seed, err := store.CreateClient(context.Background(), "+911234567890")
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}

	res, err := engine.Process(context.Background(), "+911234567890", "2", nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.ClientID != seed.ID {
		t.Fatalf("expected turn to reuse active client %s, got %s", seed.ID, res.ClientID)
	}
	if res.State != repo.StateAwaitingName {
		t.Fatalf("expected awaiting_client_name, got %s", res.State)
	}

	client, err := store.GetClientByID(context.Background(), seed.ID)
	if err != nil {
		t.Fatalf("reload client: %v", err)
	}
	if client.SelectedPlatform == nil || *client.SelectedPlatform != "ABC Index" {
		t.Fatalf("expected ABC Index selected, got %v", client.SelectedPlatform)
	}
	if !strings.Contains(res.Reply, "ABC Index") {
		t.Fatalf("expected confirmation to mention the platform, got %q", res.Reply)
	}
}

func TestNameCollectionAdvancesToPayment(t *testing.T) {
	resolver := &stubResolver{guess: &nlu.Guess{DetectedIntent: nlu.IntentGeneral}}
	engine, store := newTestEngine(t, resolver)

	seed, _ := store.CreateClient(context.Background(), "+911234567890")
	platform := "Binex"
	if _, err := store.UpdateClientConversation(context.Background(), seed.ID, repo.ConversationMutation{
		SelectedPlatform: &platform,
		State:            repo.StateAwaitingName,
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	res, err := engine.Process(context.Background(), "+911234567890", "Rahul Sharma", nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.State != repo.StateAwaitingPayment {
		t.Fatalf("expected awaiting_payment, got %s", res.State)
	}

	client, _ := store.GetClientByID(context.Background(), seed.ID)
	if client.ClientName == nil || *client.ClientName != "Rahul Sharma" {
		t.Fatalf("expected client name persisted, got %v", client.ClientName)
	}
	if !strings.Contains(res.Reply, "Rahul Sharma") || !strings.Contains(res.Reply, "₹250") {
		t.Fatalf("expected payment instructions with name and amount, got %q", res.Reply)
	}
}

func TestReplayAfterAdvanceIsNoOp(t *testing.T) {
	resolver := &stubResolver{guess: &nlu.Guess{DetectedIntent: nlu.IntentGeneral, Response: "noted"}}
	engine, store := newTestEngine(t, resolver)

	seed, _ := store.CreateClient(context.Background(), "+911234567890")
	platform := "ABC Index"
	name := "Rahul Sharma"
	if _, err := store.UpdateClientConversation(context.Background(), seed.ID, repo.ConversationMutation{
		SelectedPlatform: &platform,
		ClientName:       &name,
		State:            repo.StateAwaitingPayment,
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	// Re-sending the platform digit once past that step must change nothing.
	res, err := engine.Process(context.Background(), "+911234567890", "2", nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.State != repo.StateAwaitingPayment {
		t.Fatalf("expected state unchanged, got %s", res.State)
	}

	client, _ := store.GetClientByID(context.Background(), seed.ID)
	if *client.SelectedPlatform != "ABC Index" || *client.ClientName != "Rahul Sharma" {
		t.Fatal("expected platform and name untouched by replay")
	}
	if res.Reply != "noted" {
		t.Fatalf("expected resolver reply on no-op turn, got %q", res.Reply)
	}
}

func TestResolverGuessCannotDriveStateWrite(t *testing.T) {
	// The resolver claims a platform and a later state; with no
	// deterministic rule firing, nothing may be written.
	resolver := &stubResolver{guess: &nlu.Guess{
		DetectedIntent:    nlu.IntentPlatformSelection,
		ExtractedPlatform: "Binex",
		NewState:          string(repo.StateCompleted),
		Response:          "done!",
	}}
	engine, store := newTestEngine(t, resolver)

	seed, _ := store.CreateClient(context.Background(), "+911234567890")
	platform := "ABC Index"
	name := "Rahul Sharma"
	store.UpdateClientConversation(context.Background(), seed.ID, repo.ConversationMutation{
		SelectedPlatform: &platform,
		ClientName:       &name,
		State:            repo.StateAwaitingPayment,
	})

	res, err := engine.Process(context.Background(), "+911234567890", "make me completed", nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.State != repo.StateAwaitingPayment {
		t.Fatalf("expected resolver suggestion to be ignored, got %s", res.State)
	}
	client, _ := store.GetClientByID(context.Background(), seed.ID)
	if *client.SelectedPlatform != "ABC Index" {
		t.Fatal("expected platform untouched")
	}
}

func TestResolverFailureDegradesToFallback(t *testing.T) {
	resolver := &stubResolver{err: errors.New("gateway timeout")}
	engine, store := newTestEngine(t, resolver)

	seed, _ := store.CreateClient(context.Background(), "+911234567890")

	// "2" would normally select ABC Index; with the resolver down the turn
	// must answer the apology and advance nothing.
	res, err := engine.Process(context.Background(), "+911234567890", "2", nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Reply != FallbackReply {
		t.Fatalf("expected fallback reply, got %q", res.Reply)
	}
	if res.Intent != nlu.IntentGeneral {
		t.Fatalf("expected general intent, got %s", res.Intent)
	}
	if res.State != repo.StateAwaitingPlatform {
		t.Fatalf("expected state unchanged in result, got %s", res.State)
	}
	client, _ := store.GetClientByID(context.Background(), seed.ID)
	if client.State != repo.StateAwaitingPlatform {
		t.Fatalf("expected no state mutation on resolver failure, got %s", client.State)
	}
	if client.SelectedPlatform != nil {
		t.Fatalf("expected no platform written, got %v", *client.SelectedPlatform)
	}
}

func TestTerminalClientGetsFreshRecord(t *testing.T) {
	resolver := &stubResolver{guess: &nlu.Guess{DetectedIntent: nlu.IntentNewID}}
	engine, store := newTestEngine(t, resolver)

	old, _ := store.CreateClient(context.Background(), "+911234567890")
	if _, err := store.CompleteClient(context.Background(), old.ID, repo.Credentials{
		TradingID: "T1", Password: "p", LoginURL: "https://x",
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	res, err := engine.Process(context.Background(), "+911234567890", "New ID", nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.ClientID == old.ID {
		t.Fatal("expected a fresh record after a completed attempt")
	}
	if res.State != repo.StateAwaitingPlatform {
		t.Fatalf("expected fresh record in awaiting_platform_selection, got %s", res.State)
	}

	reloaded, _ := store.GetClientByID(context.Background(), old.ID)
	if reloaded.State != repo.StateCompleted {
		t.Fatal("expected completed record untouched")
	}
}

func TestResolverReceivesConversationContext(t *testing.T) {
	resolver := &stubResolver{guess: &nlu.Guess{DetectedIntent: nlu.IntentGeneral, Response: "ok"}}
	engine, store := newTestEngine(t, resolver)

	seed, _ := store.CreateClient(context.Background(), "+911234567890")
	platform := "Binex"
	store.UpdateClientConversation(context.Background(), seed.ID, repo.ConversationMutation{
		SelectedPlatform: &platform,
		State:            repo.StateAwaitingName,
	})

	if _, err := engine.Process(context.Background(), "+911234567890", "??", nil); err != nil {
		t.Fatalf("process: %v", err)
	}
	if resolver.lastCtx.State != string(repo.StateAwaitingName) {
		t.Fatalf("expected resolver to see awaiting_client_name, got %s", resolver.lastCtx.State)
	}
	if resolver.lastCtx.SelectedPlatform != "Binex" {
		t.Fatalf("expected resolver to see selected platform, got %q", resolver.lastCtx.SelectedPlatform)
	}
}

func TestTurnsAreAudited(t *testing.T) {
	resolver := &stubResolver{guess: &nlu.Guess{DetectedIntent: nlu.IntentGeneral, Response: "ok"}}
	engine, store := newTestEngine(t, resolver)

	if _, err := engine.Process(context.Background(), "+911234567890", "hello", nil); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := store.MessageCount(); got != 2 {
		t.Fatalf("expected inbound and outbound audit rows, got %d", got)
	}
}
