package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/service/broker"
	"github.com/secmon-lab/orthrus/pkg/service/worker"
	"github.com/secmon-lab/orthrus/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Sync holds CLI flags for the engine tunables shared by the ingest path
// and the background workers.
type Sync struct {
	pollInterval    time.Duration
	dedupWindow     time.Duration
	gracePeriod     time.Duration
	warningLeadTime time.Duration
	scanInterval    time.Duration
	pollFanout      int
	safetyMargin    time.Duration
	retentionWindow time.Duration
}

// Flags returns CLI flags for sync configuration
func (x *Sync) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "poll-interval",
			Usage:       "Reconciliation poller cycle interval",
			Value:       worker.DefaultPollInterval,
			Category:    "Sync",
			Sources:     cli.EnvVars("ORTHRUS_POLL_INTERVAL"),
			Destination: &x.pollInterval,
		},
		&cli.DurationFlag{
			Name:        "dedup-window",
			Usage:       "Time bucket for collapsing duplicate event deliveries",
			Value:       usecase.DefaultDedupWindow,
			Category:    "Sync",
			Sources:     cli.EnvVars("ORTHRUS_DEDUP_WINDOW"),
			Destination: &x.dedupWindow,
		},
		&cli.DurationFlag{
			Name:        "grace-period",
			Usage:       "How long a resolved conversation lingers before archive",
			Value:       worker.DefaultGracePeriod,
			Category:    "Sync",
			Sources:     cli.EnvVars("ORTHRUS_GRACE_PERIOD"),
			Destination: &x.gracePeriod,
		},
		&cli.DurationFlag{
			Name:        "warning-lead-time",
			Usage:       "How long before the archive the warning is posted",
			Value:       worker.DefaultWarningLeadTime,
			Category:    "Sync",
			Sources:     cli.EnvVars("ORTHRUS_WARNING_LEAD_TIME"),
			Destination: &x.warningLeadTime,
		},
		&cli.DurationFlag{
			Name:        "scan-interval",
			Usage:       "Lifecycle scheduler sweep interval",
			Value:       worker.DefaultScanInterval,
			Category:    "Sync",
			Sources:     cli.EnvVars("ORTHRUS_SCAN_INTERVAL"),
			Destination: &x.scanInterval,
		},
		&cli.IntFlag{
			Name:        "poll-fanout",
			Usage:       "How many accounts the poller works concurrently",
			Value:       worker.DefaultPollFanout,
			Category:    "Sync",
			Sources:     cli.EnvVars("ORTHRUS_POLL_FANOUT"),
			Destination: &x.pollFanout,
		},
		&cli.DurationFlag{
			Name:        "renewal-safety-margin",
			Usage:       "How early a cached credential lease is renewed before expiry",
			Value:       broker.DefaultSafetyMargin,
			Category:    "Sync",
			Sources:     cli.EnvVars("ORTHRUS_RENEWAL_SAFETY_MARGIN"),
			Destination: &x.safetyMargin,
		},
		&cli.DurationFlag{
			Name:        "retention-window",
			Usage:       "How long transition records are kept before the audit sweep",
			Value:       worker.DefaultRetentionWindow,
			Category:    "Sync",
			Sources:     cli.EnvVars("ORTHRUS_RETENTION_WINDOW"),
			Destination: &x.retentionWindow,
		},
	}
}

// Validate checks that the tunables are coherent. The retention window
// must outlive both sync paths, otherwise records are pruned while they
// can still collapse redelivered or re-polled observations.
func (x *Sync) Validate() error {
	if x.pollInterval <= 0 {
		return goerr.New("poll-interval must be positive", goerr.V("value", x.pollInterval))
	}
	if x.dedupWindow <= 0 {
		return goerr.New("dedup-window must be positive", goerr.V("value", x.dedupWindow))
	}
	if x.scanInterval <= 0 {
		return goerr.New("scan-interval must be positive", goerr.V("value", x.scanInterval))
	}
	if x.gracePeriod <= 0 {
		return goerr.New("grace-period must be positive", goerr.V("value", x.gracePeriod))
	}
	if x.pollFanout < 1 {
		return goerr.New("poll-fanout must be at least 1", goerr.V("value", x.pollFanout))
	}
	if x.warningLeadTime < 0 || x.warningLeadTime >= x.gracePeriod {
		return goerr.New("warning-lead-time must be shorter than grace-period",
			goerr.V("lead", x.warningLeadTime), goerr.V("grace", x.gracePeriod))
	}
	if x.retentionWindow < 2*x.pollInterval {
		return goerr.New("retention-window must be at least twice poll-interval",
			goerr.V("retention", x.retentionWindow), goerr.V("poll_interval", x.pollInterval))
	}
	if x.retentionWindow < 2*x.dedupWindow {
		return goerr.New("retention-window must be at least twice dedup-window",
			goerr.V("retention", x.retentionWindow), goerr.V("dedup_window", x.dedupWindow))
	}
	return nil
}

// PollInterval returns the poller cycle interval
func (x *Sync) PollInterval() time.Duration {
	return x.pollInterval
}

// DedupWindow returns the duplicate delivery bucket
func (x *Sync) DedupWindow() time.Duration {
	return x.dedupWindow
}

// GracePeriod returns the post-resolution archive delay
func (x *Sync) GracePeriod() time.Duration {
	return x.gracePeriod
}

// WarningLeadTime returns the pre-archive warning lead
func (x *Sync) WarningLeadTime() time.Duration {
	return x.warningLeadTime
}

// ScanInterval returns the scheduler sweep interval
func (x *Sync) ScanInterval() time.Duration {
	return x.scanInterval
}

// PollFanout returns the per-cycle account concurrency bound
func (x *Sync) PollFanout() int {
	return x.pollFanout
}

// SafetyMargin returns the lease renewal margin
func (x *Sync) SafetyMargin() time.Duration {
	return x.safetyMargin
}

// RetentionWindow returns the transition record retention window
func (x *Sync) RetentionWindow() time.Duration {
	return x.retentionWindow
}

func (x Sync) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("poll-interval", x.pollInterval),
		slog.Duration("dedup-window", x.dedupWindow),
		slog.Duration("grace-period", x.gracePeriod),
		slog.Duration("warning-lead-time", x.warningLeadTime),
		slog.Duration("scan-interval", x.scanInterval),
		slog.Int("poll-fanout", x.pollFanout),
		slog.Duration("renewal-safety-margin", x.safetyMargin),
		slog.Duration("retention-window", x.retentionWindow),
	)
}
