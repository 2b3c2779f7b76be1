package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/service/slack"
	"github.com/secmon-lab/orthrus/pkg/utils/async"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
)

// SyncUseCase carries observed case statuses into the registry and fans the
// accepted ones out to the chat transport. Both ingestion paths (push and
// poll) converge here.
type SyncUseCase struct {
	repo        interfaces.Repository
	notifier    slack.Service
	dedupWindow time.Duration
}

func NewSyncUseCase(repo interfaces.Repository, notifier slack.Service, dedupWindow time.Duration) *SyncUseCase {
	return &SyncUseCase{
		repo:        repo,
		notifier:    notifier,
		dedupWindow: dedupWindow,
	}
}

// Observe proposes one observed status. The dedup key is derived from the
// observation time, so redeliveries within one window collapse while a
// later genuine observation of the same status forms a fresh record.
func (uc *SyncUseCase) Observe(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID, observed types.CaseStatus, source types.TransitionSource, observedAt time.Time) (*interfaces.TransitionOutcome, error) {
	return uc.ApplyTransition(ctx, &interfaces.TransitionRequest{
		AccountKey: accountKey,
		CaseID:     caseID,
		Observed:   observed,
		Source:     source,
		DedupKey:   model.NewDedupKey(caseID, observed, observedAt, uc.dedupWindow),
		ObservedAt: observedAt,
	})
}

// ApplyTransition settles a proposed transition and, when it changed the
// case, dispatches the chat notification. Every terminal outcome is logged;
// only applied status changes reach the transport.
func (uc *SyncUseCase) ApplyTransition(ctx context.Context, req *interfaces.TransitionRequest) (*interfaces.TransitionOutcome, error) {
	outcome, err := uc.repo.ApplyTransition(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to apply transition",
			goerr.V(AccountKeyKey, req.AccountKey), goerr.V(CaseIDKey, req.CaseID),
			goerr.V("observed", req.Observed), goerr.V("source", req.Source))
	}

	logger := logging.From(ctx)
	switch outcome.Result {
	case types.ApplyResultApplied:
		if outcome.StatusChanged {
			logger.Info("transition applied",
				"account_key", req.AccountKey,
				"case_id", req.CaseID,
				"from", outcome.Before,
				"to", outcome.After,
				"source", req.Source)
			uc.dispatchTransition(ctx, outcome)
		} else {
			logger.Info("same-status observation recorded",
				"account_key", req.AccountKey,
				"case_id", req.CaseID,
				"status", outcome.Before,
				"source", req.Source)
		}
	case types.ApplyResultDuplicateIgnored:
		logger.Debug("duplicate observation ignored",
			"account_key", req.AccountKey,
			"case_id", req.CaseID,
			"observed", req.Observed,
			"dedup_key", req.DedupKey)
	case types.ApplyResultRejectedInvalidEdge:
		logger.Warn("illegal status edge rejected",
			"account_key", req.AccountKey,
			"case_id", req.CaseID,
			"from", outcome.Before,
			"to", req.Observed,
			"source", req.Source)
	case types.ApplyResultNotFound:
		logger.Debug("observation for untracked case dropped",
			"account_key", req.AccountKey,
			"case_id", req.CaseID,
			"observed", req.Observed)
	}

	return outcome, nil
}

func (uc *SyncUseCase) dispatchTransition(ctx context.Context, outcome *interfaces.TransitionOutcome) {
	if uc.notifier == nil {
		return
	}

	async.Dispatch(ctx, func(ctx context.Context) error {
		if err := uc.notifier.NotifyTransition(ctx, outcome); err != nil {
			return goerr.Wrap(err, "failed to dispatch transition notification",
				goerr.V(ConversationIDKey, outcome.Conversation.ID),
				goerr.V(CaseIDKey, outcome.Conversation.CaseID))
		}
		return nil
	})
}

// ListTransitions returns the audit trail of the case behind a conversation,
// oldest first. Rejected edges appear with Applied=false.
func (uc *SyncUseCase) ListTransitions(ctx context.Context, conversationID types.ConversationID) ([]*model.Transition, error) {
	conv, err := uc.repo.Conversation().Get(ctx, conversationID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get conversation",
			goerr.V(ConversationIDKey, conversationID))
	}
	if conv == nil {
		return nil, goerr.Wrap(ErrConversationNotFound, "conversation not found",
			goerr.V(ConversationIDKey, conversationID))
	}

	records, err := uc.repo.Transition().ListByCase(ctx, conv.AccountKey, conv.CaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list transitions",
			goerr.V(AccountKeyKey, conv.AccountKey), goerr.V(CaseIDKey, conv.CaseID))
	}
	return records, nil
}
