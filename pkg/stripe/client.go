// Package stripe configures the Stripe SDK for hosted checkout and webhook
// verification.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/identitywear/storefront-backend/pkg/config"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

const (
	EnvTest = "test"
	EnvLive = "live"
)

var (
	ErrMissingAPIKey        = errors.New("stripe api key is required")
	ErrMissingSigningSecret = errors.New("stripe webhook signing secret is required")
	ErrUnknownEnvironment   = fmt.Errorf("stripe environment must be %q or %q", EnvTest, EnvLive)
)

// keyPrefixes lists the secret and restricted key prefixes each mode accepts.
var keyPrefixes = map[string][]string{
	EnvTest: {"sk_test_", "rk_test_"},
	EnvLive: {"sk_live_", "rk_live_"},
}

// Client holds the verified Stripe settings. The checkout session helpers in
// stripe-go read the package level key, so building a Client also sets it.
type Client struct {
	mode          string
	signingSecret string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode, apiKey, secret, err := settingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	stripe.Key = apiKey
	client := &Client{mode: mode, signingSecret: secret}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripeMode", mode), "stripe client initialized")
	}
	return client, nil
}

// Live reports whether real money moves through this client.
func (c *Client) Live() bool {
	return c != nil && c.mode == EnvLive
}

// SigningSecret is the whsec_ value used to verify webhook payloads.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func settingsFromConfig(cfg config.StripeConfig) (mode, apiKey, secret string, err error) {
	mode = cfg.Environment()
	if _, ok := keyPrefixes[mode]; !ok {
		return "", "", "", ErrUnknownEnvironment
	}
	apiKey = strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return "", "", "", ErrMissingAPIKey
	}
	secret = strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return "", "", "", ErrMissingSigningSecret
	}
	if !hasAnyPrefix(apiKey, keyPrefixes[mode]) {
		return "", "", "", fmt.Errorf("stripe %s mode needs a %s key", mode, strings.Join(keyPrefixes[mode], " or "))
	}
	return mode, apiKey, secret, nil
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
