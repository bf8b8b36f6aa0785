package striperepo

import "context"

// SessionRef is what the gateway hands back for a payable checkout
// session. Persisting it onto the payment is the caller's job, and only
// after the call succeeded.
type SessionRef struct {
	URL string
	ID  string
}

// WebhookEvent is the slice of a provider callback the ledger reacts to.
type WebhookEvent struct {
	Type      string
	SessionID string
}

type Repo interface {
	// OpenSession creates a checkout session for the given amount.
	// No local side effects.
	OpenSession(ctx context.Context, description string, amount float64, successURL, cancelURL string) (*SessionRef, error)

	// VerifyWebhook checks the provider signature and decodes the event.
	VerifyWebhook(payload []byte, sigHeader string) (*WebhookEvent, error)
}
