package cmd

import (
	"path/filepath"
	"testing"
)

func newTestPairingStore(t *testing.T) *pairingStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daemon-config.json")
	store, err := newPairingStore(path)
	if err != nil {
		t.Fatalf("newPairingStore: %v", err)
	}
	return store
}

func TestPairingGenerateAndRedeemCode(t *testing.T) {
	store := newTestPairingStore(t)

	out, err := store.GenerateCode()
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	code := out.(map[string]any)["code"].(string)
	if code == "" {
		t.Fatal("expected non-empty code")
	}

	if store.IsPaired("user-1") {
		t.Fatal("should not be paired before redeeming")
	}
	if !store.RedeemCode(code, "user-1", "alice") {
		t.Fatal("expected RedeemCode to succeed")
	}
	if !store.IsPaired("user-1") {
		t.Fatal("expected user-1 to be paired after redeeming")
	}

	// A code can only be redeemed once.
	if store.RedeemCode(code, "user-2", "bob") {
		t.Fatal("expected a second redemption of the same code to fail")
	}
}

func TestPairingRedeemCodeUnknown(t *testing.T) {
	store := newTestPairingStore(t)
	if store.RedeemCode("does-not-exist", "user-1", "alice") {
		t.Fatal("expected redeeming an unknown code to fail")
	}
}

func TestPairingLinkAndUnlink(t *testing.T) {
	store := newTestPairingStore(t)

	if store.IsLinked("chat-1") {
		t.Fatal("should not be linked yet")
	}
	if err := store.Link("chat-1"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !store.IsLinked("chat-1") {
		t.Fatal("expected chat-1 to be linked")
	}

	// Linking twice is a no-op, not a duplicate entry.
	if err := store.Link("chat-1"); err != nil {
		t.Fatalf("Link again: %v", err)
	}

	if err := store.Unlink("chat-1"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if store.IsLinked("chat-1") {
		t.Fatal("expected chat-1 to be unlinked")
	}
}

func TestPairingToggleThinking(t *testing.T) {
	store := newTestPairingStore(t)

	if on := store.ToggleThinking("chat-1"); !on {
		t.Fatal("expected first toggle to turn thinking on")
	}
	if on := store.ToggleThinking("chat-1"); on {
		t.Fatal("expected second toggle to turn thinking off")
	}
}

func TestPairingListChannels(t *testing.T) {
	store := newTestPairingStore(t)
	if err := store.Link("chat-1"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	out, err := store.ListChannels()
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	names := out.([]string)
	if len(names) != 1 || names[0] != "telegram" {
		t.Errorf("ListChannels = %v, want [telegram]", names)
	}
}
