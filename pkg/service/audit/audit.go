package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
	"github.com/secmon-lab/orthrus/pkg/utils/safe"
)

// Service archives expired transition records before the retention sweep
// prunes them from the registry.
type Service interface {
	Export(ctx context.Context, records []*model.Transition) error
}

// client implements Service over a GCS bucket, one JSONL object per export
type client struct {
	bucket *storage.BucketHandle
	prefix string
	now    func() time.Time
}

// Option is a functional option for client configuration
type Option func(*client)

// WithNow sets the clock used for object naming
func WithNow(now func() time.Time) Option {
	return func(c *client) {
		c.now = now
	}
}

// New creates a GCS-backed audit sink. prefix scopes the exported objects
// inside the bucket and may be empty.
func New(ctx context.Context, bucketName, prefix string, opts ...Option) (Service, error) {
	if bucketName == "" {
		return nil, goerr.New("audit bucket name is required")
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	cs, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	c := &client{
		bucket: cs.Bucket(bucketName),
		prefix: prefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Export writes the records as one JSONL object. Exports are at-least-once:
// a sweep that fails after exporting re-exports the same records next cycle
// under a different object name.
func (c *client) Export(ctx context.Context, records []*model.Transition) error {
	if len(records) == 0 {
		return nil
	}

	name := objectName(c.prefix, c.now())
	w := c.bucket.Object(name).NewWriter(ctx)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(newLine(r)); err != nil {
			safe.Close(ctx, w)
			return goerr.Wrap(err, "failed to encode audit line",
				goerr.V("object", name))
		}
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to write audit object",
			goerr.V("object", name))
	}

	logging.From(ctx).Info("expired transitions exported",
		"object", name,
		"count", len(records))
	return nil
}

// objectName derives a unique date-partitioned object name
func objectName(prefix string, now time.Time) string {
	ts := now.UTC()
	return fmt.Sprintf("%s%s/%s-%s.jsonl",
		prefix, ts.Format("2006/01/02"), ts.Format("150405"), uuid.NewString()[:8])
}

// line is the JSONL form of one exported transition record
type line struct {
	ID          string    `json:"id"`
	DedupKey    string    `json:"dedup_key"`
	AccountKey  string    `json:"account_key"`
	CaseID      string    `json:"case_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Source      string    `json:"source"`
	Applied     bool      `json:"applied"`
	ProcessedAt time.Time `json:"processed_at"`
}

func newLine(r *model.Transition) line {
	return line{
		ID:          string(r.ID),
		DedupKey:    string(r.DedupKey),
		AccountKey:  string(r.AccountKey),
		CaseID:      string(r.CaseID),
		From:        string(r.From),
		To:          string(r.To),
		Source:      string(r.Source),
		Applied:     r.Applied,
		ProcessedAt: r.ProcessedAt,
	}
}
