package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ApplyTransition settles one proposed transition inside a Firestore
// transaction. The dedup document doubles as the lock: its conditional
// creation serializes concurrent applies of the same observation, and the
// transaction retry gives per-(account, case) atomicity without any
// process-level locking.
func (f *Firestore) ApplyTransition(ctx context.Context, req *interfaces.TransitionRequest) (*interfaces.TransitionOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid transition request")
	}

	var outcome *interfaces.TransitionOutcome
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		outcome = nil

		tranRef := f.transition.collection().Doc(req.DedupKey.String())
		if _, err := tx.Get(tranRef); err == nil {
			outcome = &interfaces.TransitionOutcome{Result: types.ApplyResultDuplicateIgnored}
			return nil
		} else if status.Code(err) != codes.NotFound {
			return goerr.Wrap(err, "failed to check dedup key", goerr.V("dedup_key", req.DedupKey))
		}

		convQuery := f.conversation.collection().
			Where("account_key", "==", string(req.AccountKey)).
			Where("case_id", "==", string(req.CaseID)).
			Where("archived", "==", false).
			Limit(1)
		convIter := tx.Documents(convQuery)
		defer convIter.Stop()

		convSnap, err := convIter.Next()
		if err == iterator.Done {
			outcome = &interfaces.TransitionOutcome{Result: types.ApplyResultNotFound}
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to query live conversation",
				goerr.V("account_key", req.AccountKey), goerr.V("case_id", req.CaseID))
		}

		var convDoc conversationDoc
		if err := convSnap.DataTo(&convDoc); err != nil {
			return goerr.Wrap(err, "failed to decode conversation", goerr.V("doc_id", convSnap.Ref.ID))
		}
		conv := fromConversationDoc(&convDoc)

		caseRef := f.caseRepo.collection().Doc(caseDocID(req.AccountKey, req.CaseID))
		caseSnap, err := tx.Get(caseRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.New("case record missing for live conversation",
					goerr.V("account_key", req.AccountKey), goerr.V("case_id", req.CaseID),
					goerr.V("conversation_id", conv.ID))
			}
			return goerr.Wrap(err, "failed to get case",
				goerr.V("account_key", req.AccountKey), goerr.V("case_id", req.CaseID))
		}

		var cDoc caseDoc
		if err := caseSnap.DataTo(&cDoc); err != nil {
			return goerr.Wrap(err, "failed to decode case", goerr.V("doc_id", caseSnap.Ref.ID))
		}
		c := fromCaseDoc(&cDoc)

		decision := model.EvaluateTransition(c, conv, req.Observed, req.Source, req.DedupKey, req.ObservedAt, time.Now().UTC())

		if err := tx.Set(tranRef, toTransitionDoc(decision.Record)); err != nil {
			return goerr.Wrap(err, "failed to append transition record", goerr.V("dedup_key", req.DedupKey))
		}
		if decision.Case != nil {
			if err := tx.Set(caseRef, toCaseDoc(decision.Case)); err != nil {
				return goerr.Wrap(err, "failed to update case status", goerr.V("case_id", req.CaseID))
			}
		}
		if decision.Conversation != nil {
			if err := tx.Set(convSnap.Ref, toConversationDoc(decision.Conversation)); err != nil {
				return goerr.Wrap(err, "failed to update conversation", goerr.V("conversation_id", conv.ID))
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

		outcome = &interfaces.TransitionOutcome{
			Result:        decision.Result,
			Before:        c.Status,
			After:         after,
			StatusChanged: decision.StatusChanged,
			Conversation:  resultConv,
			Record:        decision.Record,
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "transition apply failed",
			goerr.V("account_key", req.AccountKey), goerr.V("case_id", req.CaseID),
			goerr.V("observed", req.Observed), goerr.V("source", req.Source))
	}

	return outcome, nil
}

// CreateMapping stores a case and its conversation transactionally. The
// in-transaction query on the live-conversation index is what enforces the
// one-live-conversation-per-case invariant under concurrent creation.
func (f *Firestore) CreateMapping(ctx context.Context, c *model.Case, conv *model.Conversation) (bool, error) {
	created := false
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false

		convQuery := f.conversation.collection().
			Where("account_key", "==", string(c.AccountKey)).
			Where("case_id", "==", string(c.ID)).
			Where("archived", "==", false).
			Limit(1)
		convIter := tx.Documents(convQuery)
		defer convIter.Stop()

		if _, err := convIter.Next(); err == nil {
			return nil
		} else if err != iterator.Done {
			return goerr.Wrap(err, "failed to query live conversation",
				goerr.V("account_key", c.AccountKey), goerr.V("case_id", c.ID))
		}

		caseRef := f.caseRepo.collection().Doc(caseDocID(c.AccountKey, c.ID))
		caseExists := true
		if _, err := tx.Get(caseRef); err != nil {
			if status.Code(err) != codes.NotFound {
				return goerr.Wrap(err, "failed to get case",
					goerr.V("account_key", c.AccountKey), goerr.V("case_id", c.ID))
			}
			caseExists = false
		}

		convRef := f.conversation.collection().Doc(string(conv.ID))
		if err := tx.Create(convRef, toConversationDoc(conv)); err != nil {
			return goerr.Wrap(err, "failed to create conversation", goerr.V("conversation_id", conv.ID))
		}
		if !caseExists {
			if err := tx.Set(caseRef, toCaseDoc(c)); err != nil {
				return goerr.Wrap(err, "failed to create case", goerr.V("case_id", c.ID))
			}
		}

		created = true
		return nil
	})
	if err != nil {
		return false, goerr.Wrap(err, "mapping creation failed",
			goerr.V("account_key", c.AccountKey), goerr.V("case_id", c.ID),
			goerr.V("conversation_id", conv.ID))
	}

	return created, nil
}
