package memory

import (
	"context"
	"sync"

	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

type caseKey struct {
	accountKey types.AccountKey
	caseID     types.CaseID
}

type caseRepository struct {
	mu    sync.RWMutex
	cases map[caseKey]*model.Case
}

var _ interfaces.CaseRepository = &caseRepository{}

func newCaseRepository() *caseRepository {
	return &caseRepository{
		cases: make(map[caseKey]*model.Case),
	}
}

// copyCase creates a copy of a case
func copyCase(c *model.Case) *model.Case {
	copied := *c
	return &copied
}

func (r *caseRepository) Put(ctx context.Context, c *model.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cases[caseKey{accountKey: c.AccountKey, caseID: c.ID}] = copyCase(c)
	return nil
}

func (r *caseRepository) Get(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID) (*model.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.cases[caseKey{accountKey: accountKey, caseID: caseID}]
	if !exists {
		return nil, nil
	}
	return copyCase(c), nil
}
