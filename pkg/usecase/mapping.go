package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
)

type MappingUseCase struct {
	repo interfaces.Repository
	now  func() time.Time
}

func NewMappingUseCase(repo interfaces.Repository, now func() time.Time) *MappingUseCase {
	return &MappingUseCase{
		repo: repo,
		now:  now,
	}
}

// CreateMapping binds a new conversation to a case. A case record is
// created with status open unless one already exists from an earlier
// conversation, in which case the recorded status is kept and the poller
// reconciles it. Fails with ErrMappingExists while another conversation is
// live for the same case.
func (uc *MappingUseCase) CreateMapping(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID, conversationID types.ConversationID, creator types.ParticipantID, displayID string) (*model.Conversation, error) {
	if err := accountKey.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid account key")
	}
	if err := caseID.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid case ID")
	}
	if err := conversationID.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid conversation ID")
	}
	if creator == "" {
		return nil, goerr.New("mapping creator is required",
			goerr.V(AccountKeyKey, accountKey), goerr.V(CaseIDKey, caseID))
	}

	now := uc.now().UTC()
	c := &model.Case{
		AccountKey:      accountKey,
		ID:              caseID,
		DisplayID:       displayID,
		Status:          types.CaseStatusOpen,
		StatusChangedAt: now,
		CreatedAt:       now,
	}
	conv := &model.Conversation{
		ID:         conversationID,
		AccountKey: accountKey,
		CaseID:     caseID,
		Creator:    creator,
		CreatedAt:  now,
	}

	created, err := uc.repo.CreateMapping(ctx, c, conv)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create mapping",
			goerr.V(AccountKeyKey, accountKey), goerr.V(CaseIDKey, caseID),
			goerr.V(ConversationIDKey, conversationID))
	}
	if !created {
		return nil, goerr.Wrap(ErrMappingExists, "mapping already exists",
			goerr.V(AccountKeyKey, accountKey), goerr.V(CaseIDKey, caseID),
			goerr.V(ConversationIDKey, conversationID))
	}

	logging.From(ctx).Info("conversation mapped to case",
		"account_key", accountKey,
		"case_id", caseID,
		"conversation_id", conversationID,
		"creator", creator)

	return conv, nil
}

// LookupByCase finds the live conversation tracking a case. Archived
// conversations are invisible here.
func (uc *MappingUseCase) LookupByCase(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID) (*model.Conversation, error) {
	conv, err := uc.repo.Conversation().GetLiveByCase(ctx, accountKey, caseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up conversation",
			goerr.V(AccountKeyKey, accountKey), goerr.V(CaseIDKey, caseID))
	}
	if conv == nil {
		return nil, goerr.Wrap(ErrConversationNotFound, "no live conversation for case",
			goerr.V(AccountKeyKey, accountKey), goerr.V(CaseIDKey, caseID))
	}
	return conv, nil
}

// LookupByConversation resolves a conversation back to its case
func (uc *MappingUseCase) LookupByConversation(ctx context.Context, conversationID types.ConversationID) (*model.Case, *model.Conversation, error) {
	conv, err := uc.repo.Conversation().Get(ctx, conversationID)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to get conversation",
			goerr.V(ConversationIDKey, conversationID))
	}
	if conv == nil {
		return nil, nil, goerr.Wrap(ErrConversationNotFound, "conversation not found",
			goerr.V(ConversationIDKey, conversationID))
	}

	c, err := uc.repo.Case().Get(ctx, conv.AccountKey, conv.CaseID)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to get case",
			goerr.V(AccountKeyKey, conv.AccountKey), goerr.V(CaseIDKey, conv.CaseID))
	}
	if c == nil {
		return nil, nil, goerr.Wrap(ErrCaseNotFound, "case record missing for conversation",
			goerr.V(AccountKeyKey, conv.AccountKey), goerr.V(CaseIDKey, conv.CaseID),
			goerr.V(ConversationIDKey, conversationID))
	}

	return c, conv, nil
}

// ListByParticipant retrieves the conversations a participant created,
// newest first.
func (uc *MappingUseCase) ListByParticipant(ctx context.Context, participant types.ParticipantID) ([]*model.Conversation, error) {
	if participant == "" {
		return nil, goerr.New("participant ID is required")
	}

	convs, err := uc.repo.Conversation().ListByParticipant(ctx, participant)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list conversations",
			goerr.V("participant", participant))
	}
	return convs, nil
}
