// notify/telegram.go
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/olga-kim7/library-service/util/httpx"
)

// Notifier is a fire-and-forget text channel. Delivery failures are the
// caller's to log; they are never retried.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type telegram struct {
	botToken string
	chatID   string
	base     string
	client   *http.Client
}

func NewTelegram(botToken, chatID string) Notifier {
	return &telegram{
		botToken: botToken,
		chatID:   chatID,
		base:     "https://api.telegram.org",
		client:   httpx.Client(),
	}
}

func (t *telegram) Notify(ctx context.Context, text string) error {
	u := fmt.Sprintf(
		"%s/bot%s/sendMessage?chat_id=%s&text=%s",
		t.base, t.botToken, url.QueryEscape(t.chatID), url.QueryEscape(text),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}

// Nop drops every message. Used when no bot token is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }
