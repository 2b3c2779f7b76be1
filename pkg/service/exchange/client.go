package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/utils/safe"
)

const (
	// DefaultAPITimeout bounds every token endpoint call
	DefaultAPITimeout = 10 * time.Second

	// assertionTTL is the lifetime of a signed assertion. Assertions are
	// minted per exchange and never reused, so a short window suffices.
	assertionTTL = 5 * time.Minute

	grantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// client implements Service interface
type client struct {
	tokenURL   string
	clientID   string
	signingKey jwk.Key
	httpClient *http.Client
	now        func() time.Time
}

// Option is a functional option for client configuration
type Option func(*options)

type options struct {
	timeout time.Duration
	now     func() time.Time
}

// WithAPITimeout sets the timeout applied to every token endpoint call
func WithAPITimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithNow sets the clock used for assertion claims and lease expiry
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates an exchange client for the given token endpoint. keyData is
// the RS256 signing key, either a PEM-encoded private key or a JWK.
func New(tokenURL, clientID string, keyData []byte, opts ...Option) (Service, error) {
	if tokenURL == "" {
		return nil, goerr.New("token endpoint URL is required")
	}
	if clientID == "" {
		return nil, goerr.New("exchange client ID is required")
	}

	key, err := parseSigningKey(keyData)
	if err != nil {
		return nil, err
	}

	o := &options{
		timeout: DefaultAPITimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &client{
		tokenURL:   tokenURL,
		clientID:   clientID,
		signingKey: key,
		httpClient: &http.Client{Timeout: o.timeout},
		now:        o.now,
	}, nil
}

func parseSigningKey(data []byte) (jwk.Key, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, goerr.New("signing key is required")
	}

	var parseOpts []jwk.ParseOption
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN")) {
		parseOpts = append(parseOpts, jwk.WithPEM(true))
	}

	key, err := jwk.ParseKey(data, parseOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse signing key")
	}
	return key, nil
}

// Exchange mints a fresh signed assertion scoped to the account's role and
// trades it for an access token at the token endpoint.
func (c *client) Exchange(ctx context.Context, account *model.Account) (*model.Lease, error) {
	assertion, err := c.buildAssertion()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("assertion", string(assertion))
	form.Set("scope", account.RoleRef)

	encoded := form.Encode()
	req, err := http.NewRequestWithContext(ctx, "POST", c.tokenURL, strings.NewReader(encoded))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.ContentLength = int64(len(encoded))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call token endpoint",
			goerr.V("account_key", account.Key))
	}
	defer safe.Close(ctx, resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read token response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("token endpoint refused the exchange",
			goerr.V("status", resp.StatusCode),
			goerr.V("account_key", account.Key),
			goerr.V("body", string(body)))
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, goerr.Wrap(err, "failed to parse token response")
	}
	if token.AccessToken == "" {
		return nil, goerr.New("token response carries no access token",
			goerr.V("account_key", account.Key))
	}
	if token.ExpiresIn <= 0 {
		return nil, goerr.New("token response carries no lifetime",
			goerr.V("account_key", account.Key),
			goerr.V("expires_in", token.ExpiresIn))
	}

	return &model.Lease{
		AccountKey: account.Key,
		Token:      token.AccessToken,
		Expiry:     c.now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}, nil
}

// buildAssertion signs the claims the token endpoint verifies: this client
// as issuer and subject, the endpoint itself as audience, and a unique jti.
func (c *client) buildAssertion() ([]byte, error) {
	now := c.now()
	tok, err := jwt.NewBuilder().
		Issuer(c.clientID).
		Subject(c.clientID).
		Audience([]string{c.tokenURL}).
		IssuedAt(now).
		Expiration(now.Add(assertionTTL)).
		JwtID(uuid.NewString()).
		Build()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build assertion claims")
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, c.signingKey))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to sign assertion")
	}
	return signed, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
