package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/service/exchange"
	"github.com/urfave/cli/v3"
)

// Exchange holds CLI flags for the identity exchange client
type Exchange struct {
	tokenURL       string
	clientID       string
	privateKeyFile string
	timeout        time.Duration
}

// Flags returns CLI flags for exchange configuration
func (x *Exchange) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "exchange-token-url",
			Usage:       "Identity exchange token endpoint URL",
			Category:    "Exchange",
			Sources:     cli.EnvVars("ORTHRUS_EXCHANGE_TOKEN_URL"),
			Destination: &x.tokenURL,
		},
		&cli.StringFlag{
			Name:        "exchange-client-id",
			Usage:       "Client ID used as issuer and subject of the signed assertion",
			Category:    "Exchange",
			Sources:     cli.EnvVars("ORTHRUS_EXCHANGE_CLIENT_ID"),
			Destination: &x.clientID,
		},
		&cli.StringFlag{
			Name:        "exchange-private-key-file",
			Usage:       "Path to the RS256 signing key (PEM or JWK)",
			Category:    "Exchange",
			Sources:     cli.EnvVars("ORTHRUS_EXCHANGE_PRIVATE_KEY_FILE"),
			Destination: &x.privateKeyFile,
		},
		&cli.DurationFlag{
			Name:        "exchange-timeout",
			Usage:       "HTTP timeout for token endpoint calls",
			Value:       exchange.DefaultAPITimeout,
			Category:    "Exchange",
			Sources:     cli.EnvVars("ORTHRUS_EXCHANGE_TIMEOUT"),
			Destination: &x.timeout,
		},
	}
}

// IsConfigured checks if exchange configuration is complete
func (x *Exchange) IsConfigured() bool {
	return x.tokenURL != "" && x.clientID != "" && x.privateKeyFile != ""
}

// Configure builds the identity exchange client. It returns nil when the
// exchange is not configured so the caller can run in ingest-only mode.
func (x *Exchange) Configure() (exchange.Service, error) {
	if !x.IsConfigured() {
		return nil, nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	keyData, err := os.ReadFile(x.privateKeyFile)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read exchange private key",
			goerr.V("path", x.privateKeyFile))
	}

	svc, err := exchange.New(x.tokenURL, x.clientID, keyData,
		exchange.WithAPITimeout(x.timeout))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize exchange client")
	}

	return svc, nil
}

func (x Exchange) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("token-url", x.tokenURL),
		slog.Int("client-id.len", len(x.clientID)),
		slog.String("private-key-file", x.privateKeyFile),
		slog.Duration("timeout", x.timeout),
	)
}
