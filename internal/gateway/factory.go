package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"exchlink/internal/config"
	"exchlink/internal/model"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// DefaultTimeout applies to exchanges configured without a timeout.
const DefaultTimeout = 10 * time.Second

// Endpoint configures how the gateway talks to one exchange.
type Endpoint struct {
	Credential         model.Credential
	Timeout            time.Duration
	AuthMode           string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

type endpoint struct {
	cred     model.Credential
	authMode string
	client   *resty.Client
	limiter  *rate.Limiter
}

// authenticate adds the credential fields to form. In body mode the secret
// key is sent as is; in hmac mode only a signature derived from it is sent.
func (e *endpoint) authenticate(form url.Values, now time.Time) {
	form.Set("api_key", e.cred.APIKey)
	if e.authMode == config.AuthModeHMAC {
		form.Set("timestamp", strconv.FormatInt(now.UnixMilli(), 10))
		form.Set("signature", Sign(form.Encode(), e.cred.SecretKey))
		return
	}
	form.Set("secret_key", e.cred.SecretKey)
}

// Sign returns the hex HMAC-SHA256 of payload keyed with secret.
func Sign(payload, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// New creates a Gateway routing to the given endpoints.
func New(logger *slog.Logger, endpoints ...Endpoint) (*Gateway, error) {
	g := &Gateway{
		logger:    logger,
		endpoints: make(map[model.ExchangeID]*endpoint, len(endpoints)),
		now:       time.Now,
	}
	for _, e := range endpoints {
		id := e.Credential.Exchange
		if !id.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, id)
		}
		if _, dup := g.endpoints[id]; dup {
			return nil, fmt.Errorf("exchange %s configured twice", id)
		}
		if e.Credential.BaseURL == "" {
			return nil, fmt.Errorf("exchange %s: base URL is required", id)
		}

		mode := e.AuthMode
		switch mode {
		case "":
			mode = config.AuthModeBody
		case config.AuthModeBody, config.AuthModeHMAC:
		default:
			return nil, fmt.Errorf("exchange %s: unsupported auth mode %q", id, mode)
		}
		if mode == config.AuthModeBody {
			logger.Warn("gateway: credentials are sent unsigned in the request body", "exchange", id.Key())
		}
		if e.Credential.APIKey == "" || e.Credential.SecretKey == "" {
			logger.Warn("gateway: exchange has no API credentials configured", "exchange", id.Key())
		}

		g.endpoints[id] = &endpoint{
			cred:     e.Credential,
			authMode: mode,
			client:   newRestyClient(e.Timeout),
			limiter:  rateLimiter(e.RateLimitPerSecond, e.RateLimitBurst),
		}
	}
	return g, nil
}

// NewFromConfig creates a Gateway for every exchange in cfg that has a base URL.
func NewFromConfig(logger *slog.Logger, cfg config.Config) (*Gateway, error) {
	creds := cfg.Credentials()
	endpoints := make([]Endpoint, 0, len(creds))
	for _, id := range model.Exchanges() {
		cred, ok := creds[id]
		if !ok {
			continue
		}
		ex := cfg.Exchanges[id.Key()]
		endpoints = append(endpoints, Endpoint{
			Credential:         cred,
			Timeout:            ex.Timeout,
			AuthMode:           ex.AuthMode,
			RateLimitPerSecond: ex.RateLimitPerSecond,
			RateLimitBurst:     ex.RateLimitBurst,
		})
	}
	return New(logger, endpoints...)
}
