package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	stripewebhook "github.com/identitywear/storefront-backend/internal/webhooks/stripe"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
)

const signingSecret = "whsec_test"

type countingHandler struct {
	handled []string
	err     error
}

func (h *countingHandler) HandleEvent(_ context.Context, event *stripe.Event) error {
	h.handled = append(h.handled, event.ID)
	return h.err
}

type staticSecret string

func (s staticSecret) SigningSecret() string { return string(s) }

type claimMap struct {
	claims map[string]bool
	err    error
}

func (c *claimMap) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	if c.claims[key] {
		return false, nil
	}
	c.claims[key] = true
	return true, nil
}

func (c *claimMap) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.claims, k)
	}
	return nil
}

func (c *claimMap) IdempotencyKey(scope, id string) string { return scope + ":" + id }

type webhookFixture struct {
	handler http.Handler
	events  *countingHandler
	claims  *claimMap
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	claims := &claimMap{claims: map[string]bool{}}
	guard, err := stripewebhook.NewIdempotencyGuard(claims, time.Minute, "stripe_webhook")
	require.NoError(t, err)
	events := &countingHandler{}
	return &webhookFixture{
		handler: StripeWebhook(events, staticSecret(signingSecret), guard, nil),
		events:  events,
		claims:  claims,
	}
}

func (f *webhookFixture) post(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func sessionCompletedEvent(t *testing.T) (string, []byte) {
	t.Helper()
	rawSession, err := json.Marshal(&stripe.CheckoutSession{
		ID:                "cs_test_" + uuid.NewString(),
		ClientReferenceID: uuid.NewString(),
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
	})
	require.NoError(t, err)
	id := "evt_" + uuid.NewString()
	body, err := json.Marshal(&stripe.Event{
		ID:         id,
		Type:       stripe.EventTypeCheckoutSessionCompleted,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: rawSession},
	})
	require.NoError(t, err)
	return id, body
}

func sign(body []byte, secret string) string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(body)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestStripeWebhookHandlesEachEventOnce(t *testing.T) {
	f := newWebhookFixture(t)
	id, body := sessionCompletedEvent(t)
	sig := sign(body, signingSecret)

	rec := f.post(body, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.post(body, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []string{id}, f.events.handled)
	assert.True(t, f.claims.claims["stripe_webhook:"+id])
}

func TestStripeWebhookRejectsBadSignatures(t *testing.T) {
	f := newWebhookFixture(t)
	_, body := sessionCompletedEvent(t)

	assert.Equal(t, http.StatusBadRequest, f.post(body, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.post(body, "t=1,v1=invalid").Code)
	assert.Equal(t, http.StatusBadRequest, f.post(body, sign(body, "whsec_other")).Code)
	assert.Empty(t, f.events.handled)
	assert.Empty(t, f.claims.claims)
}

func TestStripeWebhookReleasesClaimWhenHandlingFails(t *testing.T) {
	f := newWebhookFixture(t)
	f.events.err = pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "transition order")
	_, body := sessionCompletedEvent(t)
	sig := sign(body, signingSecret)

	rec := f.post(body, sig)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, f.claims.claims)

	f.events.err = nil
	rec = f.post(body, sig)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.events.handled, 2)
}

func TestStripeWebhookClaimOutageIsRetryable(t *testing.T) {
	f := newWebhookFixture(t)
	f.claims.err = errors.New("redis down")
	_, body := sessionCompletedEvent(t)

	rec := f.post(body, sign(body, signingSecret))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, f.events.handled)
}

func TestStripeWebhookNotConfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	StripeWebhook(nil, nil, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
