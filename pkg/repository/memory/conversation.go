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

type conversationRepository struct {
	mu    sync.RWMutex
	convs map[types.ConversationID]*model.Conversation
}

var _ interfaces.ConversationRepository = &conversationRepository{}

func newConversationRepository() *conversationRepository {
	return &conversationRepository{
		convs: make(map[types.ConversationID]*model.Conversation),
	}
}

// copyConversation creates a deep copy of a conversation
func copyConversation(conv *model.Conversation) *model.Conversation {
	copied := *conv
	if conv.ResolvedAt != nil {
		resolvedAt := *conv.ResolvedAt
		copied.ResolvedAt = &resolvedAt
	}
	if conv.LastCommunicationAt != nil {
		lastComm := *conv.LastCommunicationAt
		copied.LastCommunicationAt = &lastComm
	}
	return &copied
}

func (r *conversationRepository) Put(ctx context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.convs[conv.ID] = copyConversation(conv)
	return nil
}

func (r *conversationRepository) Get(ctx context.Context, id types.ConversationID) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, exists := r.convs[id]
	if !exists {
		return nil, nil
	}
	return copyConversation(conv), nil
}

func (r *conversationRepository) GetLiveByCase(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conv := range r.convs {
		if conv.AccountKey == accountKey && conv.CaseID == caseID && !conv.Archived {
			return copyConversation(conv), nil
		}
	}
	return nil, nil
}

func (r *conversationRepository) ListByParticipant(ctx context.Context, participant types.ParticipantID) ([]*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Conversation
	for _, conv := range r.convs {
		if conv.Creator == participant {
			result = append(result, copyConversation(conv))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *conversationRepository) ListLiveByAccount(ctx context.Context, accountKey types.AccountKey, limit int, cursor string) ([]*model.Conversation, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var live []*model.Conversation
	for _, conv := range r.convs {
		if conv.AccountKey == accountKey && !conv.Archived {
			live = append(live, copyConversation(conv))
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].ID < live[j].ID
	})

	start := 0
	if cursor != "" {
		for i, conv := range live {
			if string(conv.ID) > cursor {
				start = i
				break
			}
			start = i + 1
		}
	}

	end := start + limit
	if end > len(live) {
		end = len(live)
	}
	page := live[start:end]

	if len(page) < limit {
		return page, "", nil
	}
	return page, string(page[len(page)-1].ID), nil
}

func (r *conversationRepository) UpdateLastCommunication(ctx context.Context, id types.ConversationID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, exists := r.convs[id]; exists {
		stamp := at
		conv.LastCommunicationAt = &stamp
	}
	return nil
}

func (r *conversationRepository) MarkWarned(ctx context.Context, id types.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, exists := r.convs[id]; exists {
		conv.Warned = true
	}
	return nil
}

func (r *conversationRepository) MarkArchived(ctx context.Context, id types.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, exists := r.convs[id]; exists {
		conv.Archived = true
	}
	return nil
}

func (r *conversationRepository) ListResolvedUnarchived(ctx context.Context) ([]*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Conversation
	for _, conv := range r.convs {
		if conv.ResolvedAt != nil && !conv.Archived {
			result = append(result, copyConversation(conv))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ResolvedAt.Before(*result[j].ResolvedAt)
	})
	return result, nil
}
