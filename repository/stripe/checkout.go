package striperepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type checkoutRepo struct {
	sc            *client.API
	webhookSecret string
}

// New builds a gateway backed by Stripe Checkout. The key is injected,
// never read from the package-level stripe.Key.
func New(apiKey, webhookSecret string) Repo {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &checkoutRepo{sc: sc, webhookSecret: webhookSecret}
}

func (r *checkoutRepo) OpenSession(ctx context.Context, description string, amount float64, successURL, cancelURL string) (*SessionRef, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(int64(amount * 100)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx

	sess, err := r.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create session: %w", err)
	}
	if sess.ID == "" {
		return nil, errors.New("stripe: empty session id")
	}
	return &SessionRef{URL: sess.URL, ID: sess.ID}, nil
}

func (r *checkoutRepo) VerifyWebhook(payload []byte, sigHeader string) (*WebhookEvent, error) {
	ev, err := webhook.ConstructEvent(payload, sigHeader, r.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("stripe webhook: %w", err)
	}

	out := &WebhookEvent{Type: string(ev.Type)}
	if ev.Type == "checkout.session.completed" {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Data.Raw, &obj); err != nil {
			return nil, fmt.Errorf("stripe webhook payload: %w", err)
		}
		out.SessionID = obj.ID
	}
	return out, nil
}
