package audit_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/service/audit"
)

func TestObjectName(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 34, 56, 0, time.UTC)

	t.Run("partitions by date under the prefix", func(t *testing.T) {
		name := audit.ObjectName("transitions/", at)
		gt.Bool(t, strings.HasPrefix(name, "transitions/2025/06/01/123456-")).True()
		gt.Bool(t, strings.HasSuffix(name, ".jsonl")).True()
	})

	t.Run("names are unique per export", func(t *testing.T) {
		gt.Value(t, audit.ObjectName("", at)).NotEqual(audit.ObjectName("", at))
	})
}

func TestNewLine(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	record := &model.Transition{
		ID:          "f8a1c2d3",
		DedupKey:    "0123456789abcdef",
		AccountKey:  "acct-0",
		CaseID:      "case-1",
		From:        types.CaseStatusOpen,
		To:          types.CaseStatusResolved,
		Source:      types.TransitionSourcePoll,
		Applied:     true,
		ProcessedAt: at,
	}

	data, err := json.Marshal(audit.NewLine(record))
	gt.NoError(t, err).Required()

	var decoded map[string]any
	gt.NoError(t, json.Unmarshal(data, &decoded)).Required()
	gt.Value(t, decoded["id"]).Equal("f8a1c2d3")
	gt.Value(t, decoded["dedup_key"]).Equal("0123456789abcdef")
	gt.Value(t, decoded["account_key"]).Equal("acct-0")
	gt.Value(t, decoded["case_id"]).Equal("case-1")
	gt.Value(t, decoded["from"]).Equal("OPEN")
	gt.Value(t, decoded["to"]).Equal("RESOLVED")
	gt.Value(t, decoded["source"]).Equal("POLL")
	gt.Value(t, decoded["applied"]).Equal(true)
}

func TestIntegration(t *testing.T) {
	bucket := os.Getenv("TEST_AUDIT_BUCKET")
	if bucket == "" {
		t.Skip("TEST_AUDIT_BUCKET is not set")
	}

	ctx := context.Background()
	svc, err := audit.New(ctx, bucket, "test-exports")
	gt.NoError(t, err).Required()

	records := []*model.Transition{
		{
			ID:          model.NewTransitionID(),
			DedupKey:    "integration-key",
			AccountKey:  "acct-integration",
			CaseID:      "case-integration",
			From:        types.CaseStatusOpen,
			To:          types.CaseStatusResolved,
			Source:      types.TransitionSourcePush,
			Applied:     true,
			ProcessedAt: time.Now().UTC(),
		},
	}
	gt.NoError(t, svc.Export(ctx, records))
}
