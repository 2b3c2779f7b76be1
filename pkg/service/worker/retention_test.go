package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/repository/memory"
	"github.com/secmon-lab/orthrus/pkg/service/worker"
	"github.com/secmon-lab/orthrus/pkg/usecase"
)

type fakeAudit struct {
	mu       sync.Mutex
	exported [][]*model.Transition
	err      error
}

func (a *fakeAudit) Export(ctx context.Context, records []*model.Transition) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return a.err
	}
	a.exported = append(a.exported, append([]*model.Transition(nil), records...))
	return nil
}

func (a *fakeAudit) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, batch := range a.exported {
		n += len(batch)
	}
	return n
}

func (a *fakeAudit) batchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.exported)
}

// seedRecords appends n same-status observations in distinct dedup buckets,
// each leaving one transition record.
func seedRecords(t *testing.T, uc *usecase.UseCases, caseID types.CaseID, n int) {
	t.Helper()

	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < n; i++ {
		_, err := uc.Sync.Observe(ctx, "acct-0", caseID, types.CaseStatusOpen,
			types.TransitionSourcePoll, base.Add(time.Duration(i)*10*time.Minute))
		gt.NoError(t, err).Required()
	}
}

func TestRetention(t *testing.T) {
	futureClock := func() func() time.Time {
		future := time.Now().Add(48 * time.Hour)
		return func() time.Time { return future }
	}

	t.Run("expired records are exported then pruned", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)
		ctx := context.Background()

		seedMapping(t, uc, "acct-0", "case-1", "conv-1")
		seedRecords(t, uc, "case-1", 3)

		sink := &fakeAudit{}
		w := worker.NewRetention(repo, sink,
			worker.WithRetentionWindow(24*time.Hour),
			worker.WithRetentionClock(futureClock()))

		gt.NoError(t, w.SweepOnce(ctx)).Required()

		gt.Number(t, sink.total()).Equal(3)
		records, err := repo.Transition().ListByCase(ctx, "acct-0", "case-1")
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(0)
	})

	t.Run("records inside the window survive", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)
		ctx := context.Background()

		seedMapping(t, uc, "acct-0", "case-1", "conv-1")
		seedRecords(t, uc, "case-1", 3)

		sink := &fakeAudit{}
		w := worker.NewRetention(repo, sink,
			worker.WithRetentionWindow(24*time.Hour))

		gt.NoError(t, w.SweepOnce(ctx)).Required()

		gt.Number(t, sink.total()).Equal(0)
		records, err := repo.Transition().ListByCase(ctx, "acct-0", "case-1")
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(3)
	})

	t.Run("export failure aborts the prune", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)
		ctx := context.Background()

		seedMapping(t, uc, "acct-0", "case-1", "conv-1")
		seedRecords(t, uc, "case-1", 3)

		sink := &fakeAudit{err: errors.New("bucket unavailable")}
		w := worker.NewRetention(repo, sink,
			worker.WithRetentionWindow(24*time.Hour),
			worker.WithRetentionClock(futureClock()))

		gt.Error(t, w.SweepOnce(ctx))

		// All records stay for the next sweep.
		records, err := repo.Transition().ListByCase(ctx, "acct-0", "case-1")
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(3)
	})

	t.Run("prunes without an audit sink", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)
		ctx := context.Background()

		seedMapping(t, uc, "acct-0", "case-1", "conv-1")
		seedRecords(t, uc, "case-1", 3)

		w := worker.NewRetention(repo, nil,
			worker.WithRetentionWindow(24*time.Hour),
			worker.WithRetentionClock(futureClock()))

		gt.NoError(t, w.SweepOnce(ctx)).Required()

		records, err := repo.Transition().ListByCase(ctx, "acct-0", "case-1")
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(0)
	})

	t.Run("large backlogs drain in batches", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)
		ctx := context.Background()

		seedMapping(t, uc, "acct-0", "case-1", "conv-1")
		seedRecords(t, uc, "case-1", 5)

		sink := &fakeAudit{}
		w := worker.NewRetention(repo, sink,
			worker.WithRetentionWindow(24*time.Hour),
			worker.WithRetentionBatch(2),
			worker.WithRetentionClock(futureClock()))

		gt.NoError(t, w.SweepOnce(ctx)).Required()

		gt.Number(t, sink.batchCount()).Equal(3)
		gt.Number(t, sink.total()).Equal(5)
		records, err := repo.Transition().ListByCase(ctx, "acct-0", "case-1")
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(0)
	})
}
