package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketplace-checkout/pkg/config"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

// Environment is the Stripe account mode a key belongs to.
type Environment string

const (
	EnvTest Environment = "test"
	EnvLive Environment = "live"
)

// keyPrefixes lists the secret and restricted key prefixes per environment.
var keyPrefixes = map[Environment][]string{
	EnvTest: {"sk_test_", "rk_test_"},
	EnvLive: {"sk_live_", "rk_live_"},
}

var (
	ErrMissingAPIKey        = errors.New("stripe api key is required")
	ErrMissingSigningSecret = errors.New("stripe webhook signing secret is required")
)

// Client carries the validated Stripe credentials. The checkout/session and
// webhook packages read the process-wide key installed by NewClient.
type Client struct {
	env           Environment
	keyHint       string
	signingSecret string
}

// NewClient rejects keys from the wrong environment before installing them.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := ParseEnvironment(cfg.Env)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrMissingSigningSecret
	}
	if !env.accepts(key) {
		return nil, fmt.Errorf("stripe %s mode needs a key starting with %s", env, strings.Join(keyPrefixes[env], " or "))
	}

	stripe.Key = key
	stripe.SetAppInfo(&stripe.AppInfo{Name: "marketplace-checkout"})

	c := &Client{env: env, keyHint: hint(key), signingSecret: secret}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env": string(env),
			"stripe_key": c.keyHint,
		}), "stripe client initialized")
	}
	return c, nil
}

// ParseEnvironment defaults an empty value to test mode.
func ParseEnvironment(raw string) (Environment, error) {
	env := Environment(strings.ToLower(strings.TrimSpace(raw)))
	if env == "" {
		return EnvTest, nil
	}
	if _, ok := keyPrefixes[env]; !ok {
		return "", fmt.Errorf("stripe environment must be %q or %q, got %q", EnvTest, EnvLive, raw)
	}
	return env, nil
}

func (e Environment) accepts(key string) bool {
	for _, prefix := range keyPrefixes[e] {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.env)
}

// KeyHint is the redacted key suitable for logs.
func (c *Client) KeyHint() string {
	if c == nil {
		return ""
	}
	return c.keyHint
}

// SigningSecret returns the webhook endpoint secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func hint(key string) string {
	idx := strings.LastIndex(key, "_")
	if idx < 0 || len(key) < 4 {
		return "****"
	}
	return key[:idx+1] + "..." + key[len(key)-4:]
}
