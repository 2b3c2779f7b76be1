package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const casesCollection = "cases"

type caseRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.CaseRepository = &caseRepository{}

func newCaseRepository(client *firestore.Client) *caseRepository {
	return &caseRepository{
		client: client,
	}
}

// caseDoc is the Firestore persistence model
type caseDoc struct {
	AccountKey      string    `firestore:"account_key"`
	CaseID          string    `firestore:"case_id"`
	DisplayID       string    `firestore:"display_id"`
	Status          string    `firestore:"status"`
	StatusChangedAt time.Time `firestore:"status_changed_at"`
	CreatedAt       time.Time `firestore:"created_at"`
}

// caseDocID composes the document ID for a case. Case IDs are opaque
// upstream strings, so the account key comes first with a separator that
// cannot appear in an account key.
func caseDocID(accountKey types.AccountKey, caseID types.CaseID) string {
	return string(accountKey) + ":" + string(caseID)
}

func (r *caseRepository) collection() *firestore.CollectionRef {
	if r.collectionPrefix != "" {
		return r.client.Collection(r.collectionPrefix + "_" + casesCollection)
	}
	return r.client.Collection(casesCollection)
}

func toCaseDoc(c *model.Case) *caseDoc {
	return &caseDoc{
		AccountKey:      string(c.AccountKey),
		CaseID:          string(c.ID),
		DisplayID:       c.DisplayID,
		Status:          string(c.Status),
		StatusChangedAt: c.StatusChangedAt,
		CreatedAt:       c.CreatedAt,
	}
}

func fromCaseDoc(doc *caseDoc) *model.Case {
	return &model.Case{
		AccountKey:      types.AccountKey(doc.AccountKey),
		ID:              types.CaseID(doc.CaseID),
		DisplayID:       doc.DisplayID,
		Status:          types.CaseStatus(doc.Status),
		StatusChangedAt: doc.StatusChangedAt,
		CreatedAt:       doc.CreatedAt,
	}
}

func (r *caseRepository) Put(ctx context.Context, c *model.Case) error {
	docID := caseDocID(c.AccountKey, c.ID)
	_, err := r.collection().Doc(docID).Set(ctx, toCaseDoc(c))
	if err != nil {
		return goerr.Wrap(err, "failed to put case",
			goerr.V("account_key", c.AccountKey), goerr.V("case_id", c.ID))
	}
	return nil
}

func (r *caseRepository) Get(ctx context.Context, accountKey types.AccountKey, caseID types.CaseID) (*model.Case, error) {
	docSnap, err := r.collection().Doc(caseDocID(accountKey, caseID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get case",
			goerr.V("account_key", accountKey), goerr.V("case_id", caseID))
	}

	var doc caseDoc
	if err := docSnap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode case",
			goerr.V("account_key", accountKey), goerr.V("case_id", caseID))
	}

	return fromCaseDoc(&doc), nil
}
