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

const conversationsCollection = "conversations"

type conversationRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.ConversationRepository = &conversationRepository{}

func newConversationRepository(client *firestore.Client) *conversationRepository {
	return &conversationRepository{
		client: client,
	}
}

// conversationDoc is the Firestore persistence model
type conversationDoc struct {
	ID                  string     `firestore:"id"`
	AccountKey          string     `firestore:"account_key"`
	CaseID              string     `firestore:"case_id"`
	Creator             string     `firestore:"creator"`
	CreatedAt           time.Time  `firestore:"created_at"`
	ResolvedAt          *time.Time `firestore:"resolved_at"`
	Warned              bool       `firestore:"warned"`
	Archived            bool       `firestore:"archived"`
	LastCommunicationAt *time.Time `firestore:"last_communication_at"`
}

func (r *conversationRepository) collection() *firestore.CollectionRef {
	if r.collectionPrefix != "" {
		return r.client.Collection(r.collectionPrefix + "_" + conversationsCollection)
	}
	return r.client.Collection(conversationsCollection)
}

func toConversationDoc(conv *model.Conversation) *conversationDoc {
	return &conversationDoc{
		ID:                  string(conv.ID),
		AccountKey:          string(conv.AccountKey),
		CaseID:              string(conv.CaseID),
		Creator:             string(conv.Creator),
		CreatedAt:           conv.CreatedAt,
		ResolvedAt:          conv.ResolvedAt,
		Warned:              conv.Warned,
		Archived:            conv.Archived,
		LastCommunicationAt: conv.LastCommunicationAt,
	}
}

func fromConversationDoc(doc *conversationDoc) *model.Conversation {
	return &model.Conversation{
		ID:                  types.ConversationID(doc.ID),
		AccountKey:          types.AccountKey(doc.AccountKey),
		CaseID:              types.CaseID(doc.CaseID),
		Creator:             types.ParticipantID(doc.Creator),
		CreatedAt:           doc.CreatedAt,
		ResolvedAt:          doc.ResolvedAt,
		Warned:              doc.Warned,
		Archived:            doc.Archived,
		LastCommunicationAt: doc.LastCommunicationAt,
	}
}

func (r *conversationRepository) Put(ctx context.Context, conv *model.Conversation) error {
	_, err := r.collection().Doc(string(conv.ID)).Set(ctx, toConversationDoc(conv))
	if err != nil {
		return goerr.Wrap(err, "failed to put conversation", goerr.V("id", conv.ID))
	}
	return nil
}

func (r *conversationRepository) Get(ctx context.Context, id types.ConversationID) (*model.Conversation, error) {
	docSnap, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("id", id))
	}

	var doc conversationDoc
	if err := docSnap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("id", id))
	}

	return fromConversationDoc(&doc), nil
}

func (r *conversationRepository) GetLiveByCase(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID) (*model.Conversation, error) {
	iter := r.collection().
		Where("account_key", "==", string(accountKey)).
		Where("case_id", "==", string(caseID)).
		Where("archived", "==", false).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	docSnap, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query live conversation",
			goerr.V("account_key", accountKey), goerr.V("case_id", caseID))
	}

	var doc conversationDoc
	if err := docSnap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("doc_id", docSnap.Ref.ID))
	}

	return fromConversationDoc(&doc), nil
}

func (r *conversationRepository) ListByParticipant(ctx context.Context, participant types.ParticipantID) ([]*model.Conversation, error) {
	iter := r.collection().
		Where("creator", "==", string(participant)).
		OrderBy("created_at", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var convs []*model.Conversation
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate conversations",
				goerr.V("participant", participant))
		}

		var doc conversationDoc
		if err := docSnap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("doc_id", docSnap.Ref.ID))
		}
		convs = append(convs, fromConversationDoc(&doc))
	}

	return convs, nil
}

func (r *conversationRepository) ListLiveByAccount(ctx context.Context, accountKey types.AccountKey, limit int, cursor string) ([]*model.Conversation, string, error) {
	q := r.collection().
		Where("account_key", "==", string(accountKey)).
		Where("archived", "==", false).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(limit)
	if cursor != "" {
		q = q.StartAfter(cursor)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var convs []*model.Conversation
	var lastDocID string
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", goerr.Wrap(err, "failed to iterate live conversations",
				goerr.V("account_key", accountKey))
		}

		var doc conversationDoc
		if err := docSnap.DataTo(&doc); err != nil {
			return nil, "", goerr.Wrap(err, "failed to decode conversation", goerr.V("doc_id", docSnap.Ref.ID))
		}
		convs = append(convs, fromConversationDoc(&doc))
		lastDocID = docSnap.Ref.ID
	}

	if len(convs) < limit {
		return convs, "", nil
	}
	return convs, lastDocID, nil
}

func (r *conversationRepository) updateFields(ctx context.Context, id types.ConversationID, updates []firestore.Update) error {
	_, err := r.collection().Doc(string(id)).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return goerr.Wrap(err, "failed to update conversation", goerr.V("id", id))
	}
	return nil
}

func (r *conversationRepository) UpdateLastCommunication(ctx context.Context, id types.ConversationID, at time.Time) error {
	return r.updateFields(ctx, id, []firestore.Update{
		{Path: "last_communication_at", Value: at},
	})
}

func (r *conversationRepository) MarkWarned(ctx context.Context, id types.ConversationID) error {
	return r.updateFields(ctx, id, []firestore.Update{
		{Path: "warned", Value: true},
	})
}

func (r *conversationRepository) MarkArchived(ctx context.Context, id types.ConversationID) error {
	return r.updateFields(ctx, id, []firestore.Update{
		{Path: "archived", Value: true},
	})
}

func (r *conversationRepository) ListResolvedUnarchived(ctx context.Context) ([]*model.Conversation, error) {
	// Range filter on resolved_at naturally excludes null values, so this
	// matches only conversations whose case reached RESOLVED.
	iter := r.collection().
		Where("archived", "==", false).
		Where("resolved_at", ">", time.Time{}).
		Documents(ctx)
	defer iter.Stop()

	var convs []*model.Conversation
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate resolved conversations")
		}

		var doc conversationDoc
		if err := docSnap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("doc_id", docSnap.Ref.ID))
		}
		convs = append(convs, fromConversationDoc(&doc))
	}

	return convs, nil
}
