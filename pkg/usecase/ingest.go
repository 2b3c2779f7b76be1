package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/utils/async"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
)

// HandleCaseEvent processes one push-delivered lifecycle event. Delivery is
// at-least-once and unordered; everything here is safe to replay.
func (uc *SyncUseCase) HandleCaseEvent(ctx context.Context, ev *model.CaseEvent) error {
	if err := ev.Validate(); err != nil {
		return goerr.Wrap(err, "invalid case event")
	}

	logger := logging.From(ctx)

	if ev.Echo() {
		logger.Debug("suppressed echoed communication",
			"account_key", ev.AccountKey,
			"case_id", ev.CaseID)
		return nil
	}

	switch ev.Kind {
	case types.EventKindCaseCreated:
		// Creation already happened on the chat side; the event only
		// confirms it.
		logger.Info("case creation reported by backend",
			"account_key", ev.AccountKey,
			"case_id", ev.CaseID,
			"display_id", ev.DisplayID)
		return nil

	case types.EventKindCommunicationAdded:
		return uc.handleCommunication(ctx, ev)

	case types.EventKindCaseResolved, types.EventKindCaseReopened:
		observed, ok := ev.Kind.ObservedStatus()
		if !ok {
			return goerr.New("event kind carries no status",
				goerr.V("kind", ev.Kind), goerr.V(CaseIDKey, ev.CaseID))
		}
		_, err := uc.Observe(ctx, ev.AccountKey, ev.CaseID, observed, types.TransitionSourcePush, ev.EventTime)
		return err
	}

	return goerr.New("unhandled event kind", goerr.V("kind", ev.Kind))
}

func (uc *SyncUseCase) handleCommunication(ctx context.Context, ev *model.CaseEvent) error {
	conv, err := uc.repo.Conversation().GetLiveByCase(ctx, ev.AccountKey, ev.CaseID)
	if err != nil {
		return goerr.Wrap(err, "failed to look up conversation for communication",
			goerr.V(AccountKeyKey, ev.AccountKey), goerr.V(CaseIDKey, ev.CaseID))
	}
	if conv == nil {
		logging.From(ctx).Debug("communication for untracked case dropped",
			"account_key", ev.AccountKey,
			"case_id", ev.CaseID)
		return nil
	}

	if err := uc.repo.Conversation().UpdateLastCommunication(ctx, conv.ID, ev.EventTime); err != nil {
		return goerr.Wrap(err, "failed to stamp communication time",
			goerr.V(ConversationIDKey, conv.ID))
	}

	if uc.notifier != nil {
		body := ev.CommunicationBody
		eventTime := ev.EventTime
		async.Dispatch(ctx, func(ctx context.Context) error {
			if err := uc.notifier.NotifyCommunication(ctx, conv, body, eventTime); err != nil {
				return goerr.Wrap(err, "failed to relay communication",
					goerr.V(ConversationIDKey, conv.ID))
			}
			return nil
		})
	}

	return nil
}
