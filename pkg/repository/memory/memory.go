package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

type Memory struct {
	conversation *conversationRepository
	caseRepo     *caseRepository
	transition   *transitionRepository

	lockMu    sync.Mutex
	caseLocks map[string]*sync.Mutex
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		conversation: newConversationRepository(),
		caseRepo:     newCaseRepository(),
		transition:   newTransitionRepository(),
		caseLocks:    make(map[string]*sync.Mutex),
	}
}

func (m *Memory) Conversation() interfaces.ConversationRepository {
	return m.conversation
}

func (m *Memory) Case() interfaces.CaseRepository {
	return m.caseRepo
}

func (m *Memory) Transition() interfaces.TransitionRepository {
	return m.transition
}

func (m *Memory) Close() error {
	return nil
}

// lockFor returns the mutex serializing applies for one (account, case)
// pair. Locks are created on demand and never released; the map only grows
// with the number of distinct cases this process touched.
func (m *Memory) lockFor(accountKey types.AccountKey, caseID types.CaseID) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	key := string(accountKey) + ":" + string(caseID)
	mu, ok := m.caseLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		m.caseLocks[key] = mu
	}
	return mu
}

// ApplyTransition settles one proposed transition under a per-(account,
// case) mutex. Unrelated cases proceed concurrently.
func (m *Memory) ApplyTransition(ctx context.Context, req *interfaces.TransitionRequest) (*interfaces.TransitionOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid transition request")
	}

	mu := m.lockFor(req.AccountKey, req.CaseID)
	mu.Lock()
	defer mu.Unlock()

	if m.transition.exists(req.DedupKey) {
		return &interfaces.TransitionOutcome{Result: types.ApplyResultDuplicateIgnored}, nil
	}

	conv, err := m.conversation.GetLiveByCase(ctx, req.AccountKey, req.CaseID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return &interfaces.TransitionOutcome{Result: types.ApplyResultNotFound}, nil
	}

	c, err := m.caseRepo.Get(ctx, req.AccountKey, req.CaseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, goerr.New("case record missing for live conversation",
			goerr.V("account_key", req.AccountKey), goerr.V("case_id", req.CaseID),
			goerr.V("conversation_id", conv.ID))
	}

	decision := model.EvaluateTransition(c, conv, req.Observed, req.Source, req.DedupKey, req.ObservedAt, time.Now().UTC())

	m.transition.insert(decision.Record)
	if decision.Case != nil {
		if err := m.caseRepo.Put(ctx, decision.Case); err != nil {
			return nil, err
		}
	}
	if decision.Conversation != nil {
		if err := m.conversation.Put(ctx, decision.Conversation); err != nil {
			return nil, err
		}
	}

	after := c.Status
	resultConv := conv
	if decision.Case != nil {
		after = decision.Case.Status
	}
	if decision.Conversation != nil {
		resultConv = decision.Conversation
	}

	return &interfaces.TransitionOutcome{
		Result:        decision.Result,
		Before:        c.Status,
		After:         after,
		StatusChanged: decision.StatusChanged,
		Conversation:  resultConv,
		Record:        decision.Record,
	}, nil
}

// CreateMapping stores a case and its conversation under the same
// per-(account, case) mutex that serializes transitions, so a concurrent
// second creation observes the first.
func (m *Memory) CreateMapping(ctx context.Context, c *model.Case, conv *model.Conversation) (bool, error) {
	mu := m.lockFor(c.AccountKey, c.ID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := m.conversation.GetLiveByCase(ctx, c.AccountKey, c.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	stored, err := m.caseRepo.Get(ctx, c.AccountKey, c.ID)
	if err != nil {
		return false, err
	}
	if stored == nil {
		if err := m.caseRepo.Put(ctx, c); err != nil {
			return false, err
		}
	}

	if err := m.conversation.Put(ctx, conv); err != nil {
		return false, err
	}

	return true, nil
}
