package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/repository/memory"
	"github.com/secmon-lab/orthrus/pkg/service/backend"
	"github.com/secmon-lab/orthrus/pkg/service/broker"
	"github.com/secmon-lab/orthrus/pkg/service/worker"
	"github.com/secmon-lab/orthrus/pkg/usecase"
)

// fakeNotifier records warn and archive dispatches. Failed dispatches are
// not recorded, mirroring a transport that never delivered.
type fakeNotifier struct {
	mu         sync.Mutex
	warned     []types.ConversationID
	archived   []types.ConversationID
	archiveAts map[types.ConversationID]time.Time
	warnErr    error
	archiveErr error
}

func newSchedNotifier() *fakeNotifier {
	return &fakeNotifier{
		archiveAts: make(map[types.ConversationID]time.Time),
	}
}

func (n *fakeNotifier) NotifyTransition(ctx context.Context, outcome *interfaces.TransitionOutcome) error {
	return nil
}

func (n *fakeNotifier) NotifyCommunication(ctx context.Context, conv *model.Conversation, body string, eventTime time.Time) error {
	return nil
}

func (n *fakeNotifier) Warn(ctx context.Context, conv *model.Conversation, archiveAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.warnErr != nil {
		return n.warnErr
	}
	n.warned = append(n.warned, conv.ID)
	n.archiveAts[conv.ID] = archiveAt
	return nil
}

func (n *fakeNotifier) Archive(ctx context.Context, conv *model.Conversation) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.archiveErr != nil {
		return n.archiveErr
	}
	n.archived = append(n.archived, conv.ID)
	return nil
}

func (n *fakeNotifier) setWarnErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnErr = err
}

func (n *fakeNotifier) setArchiveErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.archiveErr = err
}

func (n *fakeNotifier) warnedIDs() []types.ConversationID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.ConversationID(nil), n.warned...)
}

func (n *fakeNotifier) archivedIDs() []types.ConversationID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.ConversationID(nil), n.archived...)
}

type schedulerEnv struct {
	repo     *memory.Memory
	uc       *usecase.UseCases
	reader   *fakeReader
	notifier *fakeNotifier
	exchange *countingExchange
	broker   *broker.Broker

	// now is read through the scheduler clock; tests move it forward.
	now time.Time
}

func newSchedulerEnv(t *testing.T) (*schedulerEnv, *worker.Scheduler) {
	t.Helper()

	repo := memory.New()
	uc := usecase.New(repo)

	accounts := model.NewAccountSet()
	accounts.Register(&model.Account{Key: "acct-0", RoleRef: "roles/support-reader", Name: "Primary"})

	ex := &countingExchange{}
	env := &schedulerEnv{
		repo:     repo,
		uc:       uc,
		reader:   newFakeReader(),
		notifier: newSchedNotifier(),
		exchange: ex,
		broker:   broker.New(ex, accounts),
		now:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}

	w := worker.NewScheduler(repo, uc.Sync, env.broker, env.reader, env.notifier,
		worker.WithGracePeriod(10*time.Hour),
		worker.WithWarningLeadTime(2*time.Hour),
		worker.WithClock(func() time.Time { return env.now }),
	)
	return env, w
}

// seedResolved maps a conversation and resolves its case at the given time.
// The backend fake agrees that the case is resolved.
func seedResolved(t *testing.T, env *schedulerEnv, caseID types.CaseID, convID types.ConversationID, resolvedAt time.Time) {
	t.Helper()

	seedMapping(t, env.uc, "acct-0", caseID, convID)
	_, err := env.uc.Sync.Observe(context.Background(), "acct-0", caseID, types.CaseStatusResolved, types.TransitionSourcePush, resolvedAt)
	gt.NoError(t, err).Required()
	env.reader.set(caseID, types.CaseStatusResolved)
}

func TestScheduler(t *testing.T) {
	t.Run("warning fires once inside the lead window", func(t *testing.T) {
		env, w := newSchedulerEnv(t)
		ctx := context.Background()
		base := env.now

		seedResolved(t, env, "case-1", "conv-1", base)

		// Grace 10h, lead 2h: nothing happens before 8h elapsed.
		env.now = base.Add(7 * time.Hour)
		gt.NoError(t, w.SweepOnce(ctx)).Required()
		gt.Array(t, env.notifier.warnedIDs()).Length(0)

		env.now = base.Add(8*time.Hour + time.Minute)
		gt.NoError(t, w.SweepOnce(ctx)).Required()
		gt.Array(t, env.notifier.warnedIDs()).Length(1)
		gt.Bool(t, env.notifier.archiveAts["conv-1"].Equal(base.Add(10*time.Hour))).True()

		conv, err := env.repo.Conversation().Get(ctx, "conv-1")
		gt.NoError(t, err).Required()
		gt.Bool(t, conv.Warned).True()

		// The flag suppresses a second warning.
		env.now = base.Add(9 * time.Hour)
		gt.NoError(t, w.SweepOnce(ctx)).Required()
		gt.Array(t, env.notifier.warnedIDs()).Length(1)
	})

	t.Run("archive after the grace period when still resolved upstream", func(t *testing.T) {
		env, w := newSchedulerEnv(t)
		ctx := context.Background()
		base := env.now

		seedResolved(t, env, "case-1", "conv-1", base)

		env.now = base.Add(10*time.Hour + time.Minute)
		gt.NoError(t, w.SweepOnce(ctx)).Required()

		gt.Array(t, env.notifier.archivedIDs()).Length(1)
		gt.Value(t, env.notifier.archivedIDs()[0]).Equal(types.ConversationID("conv-1"))

		conv, err := env.repo.Conversation().Get(ctx, "conv-1")
		gt.NoError(t, err).Required()
		gt.Bool(t, conv.Archived).True()

		// An archived conversation leaves the lifecycle entirely.
		remaining, err := env.repo.Conversation().ListResolvedUnarchived(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, remaining).Length(0)

		// Archive outranks a warning that never got its window.
		gt.Array(t, env.notifier.warnedIDs()).Length(0)
	})

	t.Run("upstream reopen aborts the archive", func(t *testing.T) {
		env, w := newSchedulerEnv(t)
		ctx := context.Background()
		base := env.now

		seedResolved(t, env, "case-1", "conv-1", base)
		// The case left RESOLVED upstream without a push reaching us.
		env.reader.set("case-1", types.CaseStatusOpen)

		env.now = base.Add(11 * time.Hour)
		gt.NoError(t, w.SweepOnce(ctx)).Required()

		gt.Array(t, env.notifier.archivedIDs()).Length(0)

		c, err := env.repo.Case().Get(ctx, "acct-0", "case-1")
		gt.NoError(t, err).Required()
		gt.Value(t, c.Status).Equal(types.CaseStatusReopened)

		conv, err := env.repo.Conversation().Get(ctx, "conv-1")
		gt.NoError(t, err).Required()
		gt.Value(t, conv.ResolvedAt).Nil()
		gt.Bool(t, conv.Archived).False()

		records, err := env.repo.Transition().ListByCase(ctx, "acct-0", "case-1")
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(2)
		gt.Value(t, records[1].To).Equal(types.CaseStatusReopened)
		gt.Value(t, records[1].Source).Equal(types.TransitionSourcePoll)

		// Back out of the lifecycle until it resolves again.
		remaining, err := env.repo.Conversation().ListResolvedUnarchived(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, remaining).Length(0)
	})

	t.Run("archive dispatch failure leaves the conversation for the next sweep", func(t *testing.T) {
		env, w := newSchedulerEnv(t)
		ctx := context.Background()
		base := env.now

		seedResolved(t, env, "case-1", "conv-1", base)
		env.notifier.setArchiveErr(errors.New("transport down"))

		env.now = base.Add(11 * time.Hour)
		gt.NoError(t, w.SweepOnce(ctx)).Required()

		conv, err := env.repo.Conversation().Get(ctx, "conv-1")
		gt.NoError(t, err).Required()
		gt.Bool(t, conv.Archived).False()

		env.notifier.setArchiveErr(nil)
		gt.NoError(t, w.SweepOnce(ctx)).Required()

		conv, err = env.repo.Conversation().Get(ctx, "conv-1")
		gt.NoError(t, err).Required()
		gt.Bool(t, conv.Archived).True()
		gt.Array(t, env.notifier.archivedIDs()).Length(1)
	})

	t.Run("warn dispatch failure leaves the warning pending", func(t *testing.T) {
		env, w := newSchedulerEnv(t)
		ctx := context.Background()
		base := env.now

		seedResolved(t, env, "case-1", "conv-1", base)
		env.notifier.setWarnErr(errors.New("transport down"))

		env.now = base.Add(9 * time.Hour)
		gt.NoError(t, w.SweepOnce(ctx)).Required()

		conv, err := env.repo.Conversation().Get(ctx, "conv-1")
		gt.NoError(t, err).Required()
		gt.Bool(t, conv.Warned).False()

		env.notifier.setWarnErr(nil)
		gt.NoError(t, w.SweepOnce(ctx)).Required()

		conv, err = env.repo.Conversation().Get(ctx, "conv-1")
		gt.NoError(t, err).Required()
		gt.Bool(t, conv.Warned).True()
		gt.Array(t, env.notifier.warnedIDs()).Length(1)
	})

	t.Run("credential trouble defers the archive", func(t *testing.T) {
		env, w := newSchedulerEnv(t)
		ctx := context.Background()
		base := env.now

		seedResolved(t, env, "case-1", "conv-1", base)
		env.reader.fail("case-1", backend.ErrCredentialRejected)

		env.now = base.Add(11 * time.Hour)
		gt.NoError(t, w.SweepOnce(ctx)).Required()

		gt.Array(t, env.notifier.archivedIDs()).Length(0)

		conv, err := env.repo.Conversation().Get(ctx, "conv-1")
		gt.NoError(t, err).Required()
		gt.Bool(t, conv.Archived).False()
		gt.Value(t, conv.ResolvedAt).NotNil()

		// The rejected lease was dropped; the next attempt re-exchanges.
		gt.Number(t, env.exchange.callCount()).Equal(1)
		_, err = env.broker.GetCredential(ctx, "acct-0")
		gt.NoError(t, err).Required()
		gt.Number(t, env.exchange.callCount()).Equal(2)
	})

	t.Run("conversations short of the warn window are untouched", func(t *testing.T) {
		env, w := newSchedulerEnv(t)
		ctx := context.Background()
		base := env.now

		seedResolved(t, env, "case-1", "conv-1", base)

		env.now = base.Add(time.Hour)
		gt.NoError(t, w.SweepOnce(ctx)).Required()

		gt.Array(t, env.notifier.warnedIDs()).Length(0)
		gt.Array(t, env.notifier.archivedIDs()).Length(0)
		gt.Number(t, env.reader.callCount()).Equal(0)
	})
}
