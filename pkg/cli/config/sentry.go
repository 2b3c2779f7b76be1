package config

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Sentry holds CLI flags for error reporting
type Sentry struct {
	dsn         string
	environment string
}

// Flags returns CLI flags for Sentry configuration
func (x *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN (empty disables error reporting)",
			Category:    "Sentry",
			Sources:     cli.EnvVars("ORTHRUS_SENTRY_DSN"),
			Destination: &x.dsn,
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Sentry environment tag",
			Category:    "Sentry",
			Sources:     cli.EnvVars("ORTHRUS_SENTRY_ENV"),
			Destination: &x.environment,
		},
	}
}

// IsConfigured checks if error reporting is enabled
func (x *Sentry) IsConfigured() bool {
	return x.dsn != ""
}

// Configure initializes the Sentry client. The returned closer flushes
// buffered events on shutdown. Reporting stays disabled when no DSN is
// set and the closer is a no-op.
func (x *Sentry) Configure(version string) (func(), error) {
	if x.dsn == "" {
		return func() {}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         x.dsn,
		Environment: x.environment,
		Release:     version,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to initialize sentry")
	}

	logging.Default().Info("Sentry error reporting enabled", "environment", x.environment)

	return func() {
		if !sentry.Flush(2 * time.Second) {
			logging.Default().Warn("sentry flush timed out, some events may be lost")
		}
	}, nil
}

func (x Sentry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("dsn.len", len(x.dsn)),
		slog.String("environment", x.environment),
	)
}
