package worker

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/service/audit"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
)

const (
	DefaultRetentionInterval = time.Hour
	DefaultRetentionWindow   = 24 * time.Hour
	DefaultRetentionBatch    = 500
)

// Retention prunes transition records once they age out of the dedup window
// with margin to spare. Expired records are exported to the audit sink first
// when one is configured.
type Retention struct {
	repo     interfaces.Repository
	audit    audit.Service
	window   time.Duration
	batch    int
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// RetentionOption is a functional option for Retention configuration
type RetentionOption func(*Retention)

// WithRetentionInterval sets the sweep cycle interval
func WithRetentionInterval(d time.Duration) RetentionOption {
	return func(w *Retention) {
		w.interval = d
	}
}

// WithRetentionWindow sets how long transition records are kept
func WithRetentionWindow(d time.Duration) RetentionOption {
	return func(w *Retention) {
		w.window = d
	}
}

// WithRetentionBatch sets how many records one prune pass handles
func WithRetentionBatch(n int) RetentionOption {
	return func(w *Retention) {
		w.batch = n
	}
}

// WithRetentionClock sets the clock used for the cutoff
func WithRetentionClock(now func() time.Time) RetentionOption {
	return func(w *Retention) {
		w.now = now
	}
}

// NewRetention creates a retention sweeper. auditSvc may be nil, in which
// case expired records are pruned without export.
func NewRetention(repo interfaces.Repository, auditSvc audit.Service, opts ...RetentionOption) *Retention {
	w := &Retention{
		repo:     repo,
		audit:    auditSvc,
		window:   DefaultRetentionWindow,
		batch:    DefaultRetentionBatch,
		interval: DefaultRetentionInterval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the background retention loop
func (w *Retention) Start(ctx context.Context) error {
	logging.Default().Info("retention sweeper starting",
		"interval", w.interval.String(),
		"window", w.window.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *Retention) Stop() {
	logging.Default().Info("retention sweeper stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("retention sweeper stopped")
}

func (w *Retention) run(ctx context.Context) {
	defer close(w.doneCh)

	if err := w.sweep(ctx); err != nil {
		logging.Default().Error("retention sweep failed (will retry next interval)",
			"error", err.Error())
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				logging.Default().Error("retention sweep failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			logging.Default().Info("retention sweeper received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("retention sweeper context cancelled")
			return
		}
	}
}

// sweep prunes expired transitions in batches until none remain
func (w *Retention) sweep(ctx context.Context) error {
	cutoff := w.now().UTC().Add(-w.window)

	for {
		records, err := w.repo.Transition().ListProcessedBefore(ctx, cutoff, w.batch)
		if err != nil {
			return goerr.Wrap(err, "failed to list expired transitions")
		}
		if len(records) == 0 {
			return nil
		}

		// Export before delete: an export failure leaves the records in
		// place for the next sweep.
		if w.audit != nil {
			if err := w.audit.Export(ctx, records); err != nil {
				return goerr.Wrap(err, "failed to export expired transitions",
					goerr.V("count", len(records)))
			}
		}

		keys := make([]model.DedupKey, len(records))
		for i, r := range records {
			keys[i] = r.DedupKey
		}
		if err := w.repo.Transition().Delete(ctx, keys); err != nil {
			return goerr.Wrap(err, "failed to prune expired transitions",
				goerr.V("count", len(keys)))
		}

		logging.From(ctx).Info("expired transitions pruned",
			"count", len(records),
			"cutoff", cutoff)

		if len(records) < w.batch {
			return nil
		}
	}
}
