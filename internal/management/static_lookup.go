package management

import "context"

// StaticTokenLookup is a minimal DirectoryLookup for deployments that have
// not wired a real workspace-directory integration (the concrete
// Slack/messaging-platform client is out of scope per spec.md §1): any
// externalID is accepted once a shared workspace token is configured,
// echoing the externalID back as the display name. Swap in a real
// DirectoryLookup once an integration exists.
type StaticTokenLookup struct {
	Token string
}

func (l *StaticTokenLookup) Lookup(ctx context.Context, externalID string) (DirectoryEntry, bool, error) {
	if l.Token == "" || externalID == "" {
		return DirectoryEntry{}, false, nil
	}
	return DirectoryEntry{ExternalID: externalID, DisplayName: externalID}, true, nil
}
