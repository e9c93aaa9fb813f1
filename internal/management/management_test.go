package management

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://app.example.com")
	if cfg.AppURL != "https://app.example.com" {
		t.Fatalf("AppURL = %q", cfg.AppURL)
	}
	if cfg.PurgeAfter != 24*time.Hour {
		t.Fatalf("PurgeAfter = %v, want 24h", cfg.PurgeAfter)
	}
}

func TestDevLinkSenderNeverFails(t *testing.T) {
	sender := &DevLinkSender{Logger: slog.Default()}
	entry := DirectoryEntry{ExternalID: "U123", DisplayName: "Ada Lovelace"}

	if err := sender.Send(context.Background(), entry, "https://app/session?token=abc"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := sender.PurgeThread(context.Background(), entry.ExternalID); err != nil {
		t.Fatalf("PurgeThread: %v", err)
	}
}

// fakeLookup satisfies DirectoryLookup without a real workspace directory.
type fakeLookup struct {
	entries map[string]DirectoryEntry
}

func (f fakeLookup) Lookup(ctx context.Context, externalID string) (DirectoryEntry, bool, error) {
	entry, ok := f.entries[externalID]
	return entry, ok, nil
}

func TestFakeLookupRoundTrip(t *testing.T) {
	lookup := fakeLookup{entries: map[string]DirectoryEntry{
		"U123": {ExternalID: "U123", DisplayName: "Ada Lovelace"},
	}}

	entry, ok, err := lookup.Lookup(context.Background(), "U123")
	if err != nil || !ok {
		t.Fatalf("Lookup(U123) = %+v, %v, %v", entry, ok, err)
	}
	if entry.DisplayName != "Ada Lovelace" {
		t.Fatalf("DisplayName = %q", entry.DisplayName)
	}

	_, ok, err = lookup.Lookup(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("Lookup(unknown): %v", err)
	}
	if ok {
		t.Fatal("expected unknown external id to miss")
	}
}
