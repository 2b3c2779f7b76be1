package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

func runCaseRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Put and Get roundtrip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		now := time.Now().UTC().Truncate(time.Millisecond)
		c := &model.Case{
			AccountKey:      "acct-0",
			ID:              "case-1",
			DisplayID:       "1234",
			Status:          types.CaseStatusOpen,
			StatusChangedAt: now,
			CreatedAt:       now,
		}
		gt.NoError(t, repo.Case().Put(ctx, c)).Required()

		retrieved, err := repo.Case().Get(ctx, "acct-0", "case-1")
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved).NotNil()
		gt.Value(t, retrieved.AccountKey).Equal(c.AccountKey)
		gt.Value(t, retrieved.ID).Equal(c.ID)
		gt.Value(t, retrieved.DisplayID).Equal(c.DisplayID)
		gt.Value(t, retrieved.Status).Equal(types.CaseStatusOpen)
		gt.Bool(t, retrieved.StatusChangedAt.Equal(now)).True()
	})

	t.Run("Get returns nil for unknown case", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		retrieved, err := repo.Case().Get(ctx, "acct-0", "case-missing")
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved).Nil()
	})

	t.Run("same case ID under different accounts is distinct", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		now := time.Now().UTC()
		gt.NoError(t, repo.Case().Put(ctx, &model.Case{
			AccountKey: "acct-a", ID: "case-1", Status: types.CaseStatusOpen,
			StatusChangedAt: now, CreatedAt: now,
		})).Required()
		gt.NoError(t, repo.Case().Put(ctx, &model.Case{
			AccountKey: "acct-b", ID: "case-1", Status: types.CaseStatusResolved,
			StatusChangedAt: now, CreatedAt: now,
		})).Required()

		a, err := repo.Case().Get(ctx, "acct-a", "case-1")
		gt.NoError(t, err).Required()
		gt.Value(t, a.Status).Equal(types.CaseStatusOpen)

		b, err := repo.Case().Get(ctx, "acct-b", "case-1")
		gt.NoError(t, err).Required()
		gt.Value(t, b.Status).Equal(types.CaseStatusResolved)
	})

	t.Run("Put overwrites existing case", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		now := time.Now().UTC()
		c := &model.Case{
			AccountKey: "acct-0", ID: "case-1", Status: types.CaseStatusOpen,
			StatusChangedAt: now, CreatedAt: now,
		}
		gt.NoError(t, repo.Case().Put(ctx, c)).Required()

		c.Status = types.CaseStatusPending
		gt.NoError(t, repo.Case().Put(ctx, c)).Required()

		retrieved, err := repo.Case().Get(ctx, "acct-0", "case-1")
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.Status).Equal(types.CaseStatusPending)
	})
}

func TestCaseRepository_Memory(t *testing.T) {
	runCaseRepositoryTest(t, newMemoryRepo)
}

func TestCaseRepository_Firestore(t *testing.T) {
	runCaseRepositoryTest(t, newFirestoreRepo)
}
