package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/repository/firestore"
	"github.com/secmon-lab/orthrus/pkg/repository/memory"
)

func newMemoryRepo(t *testing.T) interfaces.Repository {
	return memory.New()
}

func newFirestoreRepo(t *testing.T) interfaces.Repository {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	repo, err := firestore.New(context.Background(), projectID, databaseID,
		firestore.WithCollectionPrefix(fmt.Sprintf("test_%d", time.Now().UnixNano())))
	gt.NoError(t, err).Required()
	return repo
}

// seedMapping stores a case and its live conversation through the public
// interface so the same fixture works for every backend.
func seedMapping(t *testing.T, repo interfaces.Repository, accountKey types.AccountKey, caseID types.CaseID, convID types.ConversationID, status types.CaseStatus) (*model.Case, *model.Conversation) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	c := &model.Case{
		AccountKey:      accountKey,
		ID:              caseID,
		DisplayID:       "1000",
		Status:          status,
		StatusChangedAt: now,
		CreatedAt:       now,
	}
	gt.NoError(t, repo.Case().Put(ctx, c)).Required()

	conv := &model.Conversation{
		ID:         convID,
		AccountKey: accountKey,
		CaseID:     caseID,
		Creator:    "user-a",
		CreatedAt:  now,
	}
	gt.NoError(t, repo.Conversation().Put(ctx, conv)).Required()

	return c, conv
}
