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
	"github.com/secmon-lab/orthrus/pkg/usecase"
	"github.com/secmon-lab/orthrus/pkg/utils/errutil"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollInterval = 10 * time.Minute
	DefaultPollFanout   = 4
	DefaultPollPageSize = 100
)

// Poller reconciles the registry against the authoritative backend. Push
// delivery can drop events; each cycle re-reads every tracked case and feeds
// divergent statuses through the same transition path the push side uses.
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - For future horizontal scaling, implement distributed locking or leader election
type Poller struct {
	repo     interfaces.Repository
	sync     *usecase.SyncUseCase
	broker   *broker.Broker
	reader   backend.Service
	accounts *model.AccountSet
	interval time.Duration
	fanout   int
	pageSize int
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// PollerOption is a functional option for Poller configuration
type PollerOption func(*Poller)

// WithPollInterval sets the cycle interval
func WithPollInterval(d time.Duration) PollerOption {
	return func(w *Poller) {
		w.interval = d
	}
}

// WithPollFanout bounds how many accounts are polled concurrently
func WithPollFanout(n int) PollerOption {
	return func(w *Poller) {
		w.fanout = n
	}
}

// WithPollPageSize sets the conversation page size per registry read
func WithPollPageSize(n int) PollerOption {
	return func(w *Poller) {
		w.pageSize = n
	}
}

// NewPoller creates a reconciliation poller over the configured accounts
func NewPoller(repo interfaces.Repository, syncUC *usecase.SyncUseCase, brk *broker.Broker, reader backend.Service, accounts *model.AccountSet, opts ...PollerOption) *Poller {
	w := &Poller{
		repo:     repo,
		sync:     syncUC,
		broker:   brk,
		reader:   reader,
		accounts: accounts,
		interval: DefaultPollInterval,
		fanout:   DefaultPollFanout,
		pageSize: DefaultPollPageSize,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the background reconciliation loop
func (w *Poller) Start(ctx context.Context) error {
	logging.Default().Info("reconciliation poller starting",
		"interval", w.interval.String(),
		"fanout", w.fanout,
		"accounts", w.accounts.Len())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *Poller) Stop() {
	logging.Default().Info("reconciliation poller stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("reconciliation poller stopped")
}

func (w *Poller) run(ctx context.Context) {
	defer close(w.doneCh)

	if err := w.poll(ctx); err != nil {
		logging.Default().Error("reconciliation cycle failed (will retry next interval)",
			"error", err.Error())
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				logging.Default().Error("reconciliation cycle failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			logging.Default().Info("reconciliation poller received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("reconciliation poller context cancelled")
			return
		}
	}
}

// poll runs one reconciliation cycle. Accounts are isolated: an account
// failure is reported and its siblings keep going.
func (w *Poller) poll(ctx context.Context) error {
	started := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.fanout)

	for _, account := range w.accounts.List() {
		g.Go(func() error {
			if err := w.pollAccount(ctx, account.Key); err != nil {
				_ = errutil.Handle(ctx, err, "account reconciliation failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logging.From(ctx).Debug("reconciliation cycle completed",
		"duration", time.Since(started).String())
	return nil
}

// pollAccount pages through one account's live conversations and checks each
// tracked case against the backend.
func (w *Poller) pollAccount(ctx context.Context, accountKey types.AccountKey) error {
	lease, err := w.broker.GetCredential(ctx, accountKey)
	if err != nil {
		return goerr.Wrap(err, "failed to obtain a credential",
			goerr.V("account_key", accountKey))
	}

	cursor := ""
	for {
		convs, next, err := w.repo.Conversation().ListLiveByAccount(ctx, accountKey, w.pageSize, cursor)
		if err != nil {
			return goerr.Wrap(err, "failed to list live conversations",
				goerr.V("account_key", accountKey))
		}

		for _, conv := range convs {
			if err := w.pollCase(ctx, lease, conv); err != nil {
				if errors.Is(err, backend.ErrCredentialRejected) {
					// Drop the lease once; the account retries with a
					// fresh credential next cycle.
					w.broker.Invalidate(accountKey)
					return goerr.Wrap(err, "credential rejected mid-cycle",
						goerr.V("account_key", accountKey))
				}
				_ = errutil.Handle(ctx, err, "case reconciliation failed")
			}
		}

		if next == "" {
			return nil
		}
		cursor = next
	}
}

// pollCase compares one case's backend status against the registry and
// proposes a poll-sourced transition when they diverge.
func (w *Poller) pollCase(ctx context.Context, lease *model.Lease, conv *model.Conversation) error {
	fetched, err := w.reader.FetchStatus(ctx, lease, conv.CaseID)
	if err != nil {
		if errors.Is(err, backend.ErrCaseNotFound) {
			logging.From(ctx).Warn("tracked case is gone from the backend",
				"account_key", conv.AccountKey, "case_id", conv.CaseID)
			return nil
		}
		return goerr.Wrap(err, "failed to fetch case status",
			goerr.V("case_id", conv.CaseID))
	}

	c, err := w.repo.Case().Get(ctx, conv.AccountKey, conv.CaseID)
	if err != nil {
		return goerr.Wrap(err, "failed to read registry case",
			goerr.V("case_id", conv.CaseID))
	}
	if c == nil {
		return goerr.New("conversation tracks a case with no registry record",
			goerr.V("conversation_id", conv.ID), goerr.V("case_id", conv.CaseID))
	}

	if fetched == c.Status {
		return nil
	}

	_, err = w.sync.Observe(ctx, conv.AccountKey, conv.CaseID, fetched, types.TransitionSourcePoll, time.Now().UTC())
	if err != nil {
		return goerr.Wrap(err, "failed to apply polled status",
			goerr.V("case_id", conv.CaseID), goerr.V("observed", fetched))
	}
	return nil
}
