package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/usecase"
	"github.com/secmon-lab/orthrus/pkg/utils/async"
	"github.com/secmon-lab/orthrus/pkg/utils/errutil"
)

// WebhookHandler receives pushed case events from the backend
type WebhookHandler struct {
	sync *usecase.SyncUseCase
}

// NewWebhookHandler creates a new case event webhook handler
func NewWebhookHandler(syncUC *usecase.SyncUseCase) *WebhookHandler {
	return &WebhookHandler{
		sync: syncUC,
	}
}

// ServeHTTP handles one pushed case event. Malformed payloads are rejected
// with 400; everything else is acknowledged before processing so the sender
// never times out waiting on storage.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Read body (already verified by middleware)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return
	}

	var ev model.CaseEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to parse case event"), http.StatusBadRequest)
		return
	}
	if err := ev.Validate(); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid case event"), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	async.Dispatch(ctx, func(ctx context.Context) error {
		if err := h.sync.HandleCaseEvent(ctx, &ev); err != nil {
			return goerr.Wrap(err, "failed to handle case event",
				goerr.V("account_key", ev.AccountKey),
				goerr.V("case_id", ev.CaseID),
				goerr.V("kind", ev.Kind))
		}
		return nil
	})
}
