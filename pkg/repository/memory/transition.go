package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

type transitionRepository struct {
	mu          sync.RWMutex
	transitions map[model.DedupKey]*model.Transition
}

var _ interfaces.TransitionRepository = &transitionRepository{}

func newTransitionRepository() *transitionRepository {
	return &transitionRepository{
		transitions: make(map[model.DedupKey]*model.Transition),
	}
}

// copyTransition creates a copy of a transition record
func copyTransition(tr *model.Transition) *model.Transition {
	copied := *tr
	return &copied
}

func (r *transitionRepository) exists(key model.DedupKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.transitions[key]
	return ok
}

func (r *transitionRepository) insert(tr *model.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transitions[tr.DedupKey] = copyTransition(tr)
}

func (r *transitionRepository) ListByCase(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID) ([]*model.Transition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Transition
	for _, tr := range r.transitions {
		if tr.AccountKey == accountKey && tr.CaseID == caseID {
			result = append(result, copyTransition(tr))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ProcessedAt.Before(result[j].ProcessedAt)
	})
	return result, nil
}

func (r *transitionRepository) ListProcessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.Transition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Transition
	for _, tr := range r.transitions {
		if tr.ProcessedAt.Before(cutoff) {
			result = append(result, copyTransition(tr))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ProcessedAt.Before(result[j].ProcessedAt)
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *transitionRepository) Delete(ctx context.Context, keys []model.DedupKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range keys {
		delete(r.transitions, key)
	}
	return nil
}
