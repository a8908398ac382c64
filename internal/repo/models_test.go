package repo

import "testing"

func TestStateTerminal(t *testing.T) {
	terminal := map[State]bool{
		StateAwaitingPlatform: false,
		StateAwaitingName:     false,
		StateAwaitingPayment:  false,
		StatePaymentReceived:  false,
		StateAdminProcessing:  false,
		StateCompleted:        true,
		StateExpired:          true,
	}
	for state, want := range terminal {
		if got := state.Terminal(); got != want {
			t.Fatalf("%s: Terminal() = %v, want %v", state, got, want)
		}
	}
}

func TestStateOrdering(t *testing.T) {
	order := []State{
		StateAwaitingPlatform,
		StateAwaitingName,
		StateAwaitingPayment,
		StatePaymentReceived,
		StateAdminProcessing,
		StateCompleted,
	}
	for i := 1; i < len(order); i++ {
		if !order[i].After(order[i-1]) {
			t.Fatalf("expected %s to come after %s", order[i], order[i-1])
		}
		if order[i-1].After(order[i]) {
			t.Fatalf("did not expect %s to come after %s", order[i-1], order[i])
		}
	}
	if StateAwaitingPayment.After(StateAwaitingPayment) {
		t.Fatal("a state must not come after itself")
	}
	for _, state := range order {
		if !StateExpired.After(state) {
			t.Fatalf("expected expired to sort after %s", state)
		}
	}
}

func TestClientRenderingFallbacks(t *testing.T) {
	var c Client
	if c.Name() != "Sir" {
		t.Fatalf("expected fallback name, got %q", c.Name())
	}
	if c.Platform() != "trading" {
		t.Fatalf("expected fallback platform, got %q", c.Platform())
	}

	name := "Rahul Sharma"
	platform := "Binex"
	c.ClientName = &name
	c.SelectedPlatform = &platform
	if c.Name() != "Rahul Sharma" || c.Platform() != "Binex" {
		t.Fatalf("expected stored values, got %q / %q", c.Name(), c.Platform())
	}
}
