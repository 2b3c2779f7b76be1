package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
)

func TestFrom_FallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	gt.Value(t, logging.From(ctx)).NotNil()
}

func TestWith_CarriesLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelInfo, logging.FormatJSON)

	ctx := logging.With(context.Background(), logger)
	logging.From(ctx).Info("hello", "key", "value")

	var record map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &record)).Required()
	gt.Value(t, record["msg"]).Equal("hello")
	gt.Value(t, record["key"]).Equal("value")
}

func TestNew_RedactsSecretTag(t *testing.T) {
	type credential struct {
		Name  string
		Token string `masq:"secret"`
	}

	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelInfo, logging.FormatJSON)
	logger.Info("issued", "credential", credential{Name: "acct-0", Token: "super-secret-token"})

	out := buf.String()
	gt.B(t, strings.Contains(out, "super-secret-token")).False()
	gt.B(t, strings.Contains(out, "acct-0")).True()
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelWarn, logging.FormatJSON)

	logger.Info("dropped")
	gt.Number(t, buf.Len()).Equal(0)

	logger.Warn("kept")
	gt.B(t, buf.Len() > 0).True()
}
