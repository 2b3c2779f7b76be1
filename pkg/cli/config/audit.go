package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/service/audit"
	"github.com/urfave/cli/v3"
)

// Audit holds CLI flags for the transition audit sink
type Audit struct {
	bucket string
	prefix string
}

// Flags returns CLI flags for audit configuration
func (x *Audit) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "audit-bucket",
			Usage:       "GCS bucket for expired transition exports (empty disables export)",
			Category:    "Audit",
			Sources:     cli.EnvVars("ORTHRUS_AUDIT_BUCKET"),
			Destination: &x.bucket,
		},
		&cli.StringFlag{
			Name:        "audit-prefix",
			Usage:       "Object name prefix inside the audit bucket",
			Value:       "transitions",
			Category:    "Audit",
			Sources:     cli.EnvVars("ORTHRUS_AUDIT_PREFIX"),
			Destination: &x.prefix,
		},
	}
}

// IsConfigured checks if the audit sink is enabled
func (x *Audit) IsConfigured() bool {
	return x.bucket != ""
}

// Configure builds the GCS audit sink. It returns nil when no bucket is
// set so the retention sweep prunes without exporting.
func (x *Audit) Configure(ctx context.Context) (audit.Service, error) {
	if x.bucket == "" {
		return nil, nil
	}

	svc, err := audit.New(ctx, x.bucket, x.prefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize audit sink")
	}

	return svc, nil
}

func (x Audit) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("bucket", x.bucket),
		slog.String("prefix", x.prefix),
	)
}
