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
)

const transitionsCollection = "transitions"

type transitionRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.TransitionRepository = &transitionRepository{}

func newTransitionRepository(client *firestore.Client) *transitionRepository {
	return &transitionRepository{
		client: client,
	}
}

// transitionDoc is the Firestore persistence model. The document ID is the
// dedup key, which makes duplicate detection a plain existence check.
type transitionDoc struct {
	ID          string    `firestore:"id"`
	DedupKey    string    `firestore:"dedup_key"`
	AccountKey  string    `firestore:"account_key"`
	CaseID      string    `firestore:"case_id"`
	FromStatus  string    `firestore:"from_status"`
	ToStatus    string    `firestore:"to_status"`
	Source      string    `firestore:"source"`
	Applied     bool      `firestore:"applied"`
	ProcessedAt time.Time `firestore:"processed_at"`
}

func (r *transitionRepository) collection() *firestore.CollectionRef {
	if r.collectionPrefix != "" {
		return r.client.Collection(r.collectionPrefix + "_" + transitionsCollection)
	}
	return r.client.Collection(transitionsCollection)
}

func toTransitionDoc(tr *model.Transition) *transitionDoc {
	return &transitionDoc{
		ID:          string(tr.ID),
		DedupKey:    string(tr.DedupKey),
		AccountKey:  string(tr.AccountKey),
		CaseID:      string(tr.CaseID),
		FromStatus:  string(tr.From),
		ToStatus:    string(tr.To),
		Source:      string(tr.Source),
		Applied:     tr.Applied,
		ProcessedAt: tr.ProcessedAt,
	}
}

func fromTransitionDoc(doc *transitionDoc) *model.Transition {
	return &model.Transition{
		ID:          model.TransitionID(doc.ID),
		DedupKey:    model.DedupKey(doc.DedupKey),
		AccountKey:  types.AccountKey(doc.AccountKey),
		CaseID:      types.CaseID(doc.CaseID),
		From:        types.CaseStatus(doc.FromStatus),
		To:          types.CaseStatus(doc.ToStatus),
		Source:      types.TransitionSource(doc.Source),
		Applied:     doc.Applied,
		ProcessedAt: doc.ProcessedAt,
	}
}

func (r *transitionRepository) ListByCase(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID) ([]*model.Transition, error) {
	iter := r.collection().
		Where("account_key", "==", string(accountKey)).
		Where("case_id", "==", string(caseID)).
		OrderBy("processed_at", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var transitions []*model.Transition
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate transitions",
				goerr.V("account_key", accountKey), goerr.V("case_id", caseID))
		}

		var doc transitionDoc
		if err := docSnap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode transition", goerr.V("doc_id", docSnap.Ref.ID))
		}
		transitions = append(transitions, fromTransitionDoc(&doc))
	}

	return transitions, nil
}

func (r *transitionRepository) ListProcessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.Transition, error) {
	iter := r.collection().
		Where("processed_at", "<", cutoff).
		OrderBy("processed_at", firestore.Asc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var transitions []*model.Transition
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate expired transitions",
				goerr.V("cutoff", cutoff))
		}

		var doc transitionDoc
		if err := docSnap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode transition", goerr.V("doc_id", docSnap.Ref.ID))
		}
		transitions = append(transitions, fromTransitionDoc(&doc))
	}

	return transitions, nil
}

func (r *transitionRepository) Delete(ctx context.Context, keys []model.DedupKey) error {
	bw := r.client.BulkWriter(ctx)

	for _, key := range keys {
		if _, err := bw.Delete(r.collection().Doc(string(key))); err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to delete transition", goerr.V("dedup_key", key))
		}
	}
	bw.End()

	return nil
}
