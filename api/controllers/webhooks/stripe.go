package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/identitywear/storefront-backend/api/responses"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

const (
	signatureHeader = "Stripe-Signature"
	// Stripe caps event bodies at 64 KiB.
	maxPayloadBytes = 64 << 10
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

var received = map[string]bool{"received": true}

// StripeWebhook verifies the signature, claims the event id and hands the
// event to svc. Duplicates are acknowledged without handling. A failed
// handling releases the claim and answers non-2xx so Stripe redelivers.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || client == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		event, err := verifiedEvent(w, r, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ctx = logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

		first, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		if !first {
			logg.Info(ctx, "stripe.webhook.duplicate")
			responses.WriteSuccess(w, received)
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if relErr := guard.Release(context.WithoutCancel(ctx), event.ID); relErr != nil {
				logg.Error(ctx, "stripe.webhook.release_failed", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(ctx, "stripe.webhook.processed")
		responses.WriteSuccess(w, received)
	}
}

func verifiedEvent(w http.ResponseWriter, r *http.Request, secret string) (stripe.Event, error) {
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body")
	}
	event, err := webhook.ConstructEventWithOptions(body, sig, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature")
	}
	return event, nil
}
