package worker

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/service/backend"
	"github.com/secmon-lab/orthrus/pkg/service/broker"
	"github.com/secmon-lab/orthrus/pkg/service/slack"
	"github.com/secmon-lab/orthrus/pkg/usecase"
	"github.com/secmon-lab/orthrus/pkg/utils/errutil"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
)

const (
	DefaultScanInterval    = time.Minute
	DefaultGracePeriod     = 72 * time.Hour
	DefaultWarningLeadTime = 24 * time.Hour
)

// Scheduler walks resolved conversations toward archival: a warning once the
// grace period nears its end, then the archive itself. Every decision is
// recomputed from current store state on every cycle, so a reopen at any
// point before the archive pulls the conversation back out.
type Scheduler struct {
	repo     interfaces.Repository
	sync     *usecase.SyncUseCase
	broker   *broker.Broker
	reader   backend.Service
	notifier slack.Service
	grace    time.Duration
	lead     time.Duration
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// SchedulerOption is a functional option for Scheduler configuration
type SchedulerOption func(*Scheduler)

// WithScanInterval sets the sweep cycle interval
func WithScanInterval(d time.Duration) SchedulerOption {
	return func(w *Scheduler) {
		w.interval = d
	}
}

// WithGracePeriod sets how long a resolved conversation lingers before archive
func WithGracePeriod(d time.Duration) SchedulerOption {
	return func(w *Scheduler) {
		w.grace = d
	}
}

// WithWarningLeadTime sets how long before the archive the warning fires
func WithWarningLeadTime(d time.Duration) SchedulerOption {
	return func(w *Scheduler) {
		w.lead = d
	}
}

// WithClock sets the clock used for grace period arithmetic
func WithClock(now func() time.Time) SchedulerOption {
	return func(w *Scheduler) {
		w.now = now
	}
}

// NewScheduler creates a lifecycle scheduler
func NewScheduler(repo interfaces.Repository, syncUC *usecase.SyncUseCase, brk *broker.Broker, reader backend.Service, notifier slack.Service, opts ...SchedulerOption) *Scheduler {
	w := &Scheduler{
		repo:     repo,
		sync:     syncUC,
		broker:   brk,
		reader:   reader,
		notifier: notifier,
		grace:    DefaultGracePeriod,
		lead:     DefaultWarningLeadTime,
		interval: DefaultScanInterval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the background lifecycle loop
func (w *Scheduler) Start(ctx context.Context) error {
	logging.Default().Info("lifecycle scheduler starting",
		"interval", w.interval.String(),
		"grace_period", w.grace.String(),
		"warning_lead_time", w.lead.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *Scheduler) Stop() {
	logging.Default().Info("lifecycle scheduler stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("lifecycle scheduler stopped")
}

func (w *Scheduler) run(ctx context.Context) {
	defer close(w.doneCh)

	if err := w.sweep(ctx); err != nil {
		logging.Default().Error("lifecycle sweep failed (will retry next interval)",
			"error", err.Error())
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				logging.Default().Error("lifecycle sweep failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			logging.Default().Info("lifecycle scheduler received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("lifecycle scheduler context cancelled")
			return
		}
	}
}

// sweep runs one lifecycle cycle over all resolved unarchived conversations
func (w *Scheduler) sweep(ctx context.Context) error {
	convs, err := w.repo.Conversation().ListResolvedUnarchived(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list resolved conversations")
	}

	for _, conv := range convs {
		if err := w.sweepConversation(ctx, conv.ID); err != nil {
			_ = errutil.Handle(ctx, err, "lifecycle step failed")
		}
	}
	return nil
}

// sweepConversation advances one conversation through warn and archive. It
// re-reads the conversation first: the listing snapshot may predate a reopen.
func (w *Scheduler) sweepConversation(ctx context.Context, id types.ConversationID) error {
	conv, err := w.repo.Conversation().Get(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to read conversation",
			goerr.V("conversation_id", id))
	}
	if !conv.Live() || conv.ResolvedAt == nil {
		return nil
	}

	now := w.now()

	if conv.ArchiveDue(now, w.grace) {
		return w.archive(ctx, conv)
	}

	if conv.WarnDue(now, w.grace, w.lead) {
		return w.warn(ctx, conv)
	}

	return nil
}

func (w *Scheduler) warn(ctx context.Context, conv *model.Conversation) error {
	archiveAt := conv.ResolvedAt.Add(w.grace)

	// Dispatch before flagging: a crash in between re-warns next cycle,
	// and the stable dispatch identity collapses that into one message.
	if w.notifier != nil {
		if err := w.notifier.Warn(ctx, conv, archiveAt); err != nil {
			return goerr.Wrap(err, "failed to dispatch pre-archive warning",
				goerr.V("conversation_id", conv.ID))
		}
	}

	if err := w.repo.Conversation().MarkWarned(ctx, conv.ID); err != nil {
		return goerr.Wrap(err, "failed to record the warning",
			goerr.V("conversation_id", conv.ID))
	}

	logging.From(ctx).Info("pre-archive warning dispatched",
		"conversation_id", conv.ID,
		"case_id", conv.CaseID,
		"archive_at", archiveAt)
	return nil
}

// archive re-verifies the case against the backend and only then closes the
// conversation. A case that left RESOLVED upstream is reopened instead.
func (w *Scheduler) archive(ctx context.Context, conv *model.Conversation) error {
	lease, err := w.broker.GetCredential(ctx, conv.AccountKey)
	if err != nil {
		return goerr.Wrap(err, "failed to obtain a credential for re-verification",
			goerr.V("account_key", conv.AccountKey))
	}

	status, err := w.reader.FetchStatus(ctx, lease, conv.CaseID)
	if err != nil {
		if errors.Is(err, backend.ErrCredentialRejected) {
			w.broker.Invalidate(conv.AccountKey)
		}
		return goerr.Wrap(err, "failed to re-verify case before archive",
			goerr.V("case_id", conv.CaseID))
	}

	if status != types.CaseStatusResolved {
		logging.From(ctx).Info("archive aborted, case no longer resolved upstream",
			"conversation_id", conv.ID,
			"case_id", conv.CaseID,
			"upstream_status", status)

		// The unobserved exit from RESOLVED can only have passed through a
		// reopen; applying it clears the resolution state, and the poller
		// converges the registry to the exact upstream status afterwards.
		if _, err := w.sync.Observe(ctx, conv.AccountKey, conv.CaseID, types.CaseStatusReopened, types.TransitionSourcePoll, w.now()); err != nil {
			return goerr.Wrap(err, "failed to apply upstream reopen",
				goerr.V("case_id", conv.CaseID))
		}
		return nil
	}

	if w.notifier != nil {
		if err := w.notifier.Archive(ctx, conv); err != nil {
			return goerr.Wrap(err, "failed to archive the conversation channel",
				goerr.V("conversation_id", conv.ID))
		}
	}

	if err := w.repo.Conversation().MarkArchived(ctx, conv.ID); err != nil {
		return goerr.Wrap(err, "failed to mark the conversation archived",
			goerr.V("conversation_id", conv.ID))
	}

	logging.From(ctx).Info("conversation archived",
		"conversation_id", conv.ID,
		"case_id", conv.CaseID)
	return nil
}
