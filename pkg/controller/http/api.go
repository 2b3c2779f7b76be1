package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/usecase"
	"github.com/secmon-lab/orthrus/pkg/utils/errutil"
)

type caseResponse struct {
	ID              string    `json:"id"`
	DisplayID       string    `json:"display_id,omitempty"`
	Status          string    `json:"status"`
	StatusChangedAt time.Time `json:"status_changed_at"`
	CreatedAt       time.Time `json:"created_at"`
}

type conversationResponse struct {
	ID                  string        `json:"id"`
	AccountKey          string        `json:"account_key"`
	CaseID              string        `json:"case_id"`
	Creator             string        `json:"creator"`
	CreatedAt           time.Time     `json:"created_at"`
	ResolvedAt          *time.Time    `json:"resolved_at,omitempty"`
	Warned              bool          `json:"warned"`
	Archived            bool          `json:"archived"`
	LastCommunicationAt *time.Time    `json:"last_communication_at,omitempty"`
	Case                *caseResponse `json:"case,omitempty"`
}

type transitionResponse struct {
	ID          string    `json:"id"`
	AccountKey  string    `json:"account_key"`
	CaseID      string    `json:"case_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Source      string    `json:"source"`
	Applied     bool      `json:"applied"`
	ProcessedAt time.Time `json:"processed_at"`
}

func newCaseResponse(c *model.Case) *caseResponse {
	return &caseResponse{
		ID:              c.ID.String(),
		DisplayID:       c.DisplayID,
		Status:          string(c.Status),
		StatusChangedAt: c.StatusChangedAt,
		CreatedAt:       c.CreatedAt,
	}
}

func newConversationResponse(conv *model.Conversation, c *model.Case) *conversationResponse {
	resp := &conversationResponse{
		ID:                  conv.ID.String(),
		AccountKey:          conv.AccountKey.String(),
		CaseID:              conv.CaseID.String(),
		Creator:             conv.Creator.String(),
		CreatedAt:           conv.CreatedAt,
		ResolvedAt:          conv.ResolvedAt,
		Warned:              conv.Warned,
		Archived:            conv.Archived,
		LastCommunicationAt: conv.LastCommunicationAt,
	}
	if c != nil {
		resp.Case = newCaseResponse(c)
	}
	return resp
}

func newTransitionResponse(tr *model.Transition) *transitionResponse {
	return &transitionResponse{
		ID:          string(tr.ID),
		AccountKey:  tr.AccountKey.String(),
		CaseID:      tr.CaseID.String(),
		From:        string(tr.From),
		To:          string(tr.To),
		Source:      string(tr.Source),
		Applied:     tr.Applied,
		ProcessedAt: tr.ProcessedAt,
	}
}

func respondJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data) //nolint:errcheck // header already committed
}

// apiError maps use case sentinels onto HTTP status codes
func apiError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrConversationNotFound), errors.Is(err, usecase.ErrCaseNotFound):
		errutil.HandleHTTP(ctx, w, err, http.StatusNotFound)
	case errors.Is(err, usecase.ErrMappingExists):
		errutil.HandleHTTP(ctx, w, err, http.StatusConflict)
	default:
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
	}
}

func createConversationHandler(mapping *usecase.MappingUseCase) http.HandlerFunc {
	type request struct {
		AccountKey     string `json:"account_key"`
		CaseID         string `json:"case_id"`
		ConversationID string `json:"conversation_id"`
		Creator        string `json:"creator"`
		DisplayID      string `json:"display_id,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to parse request body"), http.StatusBadRequest)
			return
		}

		accountKey := types.AccountKey(req.AccountKey)
		caseID := types.CaseID(req.CaseID)
		conversationID := types.ConversationID(req.ConversationID)
		if err := accountKey.Validate(); err != nil {
			errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
			return
		}
		if err := caseID.Validate(); err != nil {
			errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
			return
		}
		if err := conversationID.Validate(); err != nil {
			errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
			return
		}
		if req.Creator == "" {
			errutil.HandleHTTP(ctx, w, goerr.New("creator is required"), http.StatusBadRequest)
			return
		}

		conv, err := mapping.CreateMapping(ctx, accountKey, caseID, conversationID, types.ParticipantID(req.Creator), req.DisplayID)
		if err != nil {
			apiError(ctx, w, err)
			return
		}

		respondJSON(ctx, w, http.StatusCreated, newConversationResponse(conv, nil))
	}
}

func getConversationHandler(mapping *usecase.MappingUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		conversationID := types.ConversationID(chi.URLParam(r, "conversationID"))

		c, conv, err := mapping.LookupByConversation(ctx, conversationID)
		if err != nil {
			apiError(ctx, w, err)
			return
		}

		respondJSON(ctx, w, http.StatusOK, newConversationResponse(conv, c))
	}
}

func getConversationByCaseHandler(mapping *usecase.MappingUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountKey := types.AccountKey(chi.URLParam(r, "accountKey"))
		caseID := types.CaseID(chi.URLParam(r, "caseID"))

		conv, err := mapping.LookupByCase(ctx, accountKey, caseID)
		if err != nil {
			apiError(ctx, w, err)
			return
		}

		respondJSON(ctx, w, http.StatusOK, newConversationResponse(conv, nil))
	}
}

func listTransitionsHandler(syncUC *usecase.SyncUseCase) http.HandlerFunc {
	type response struct {
		Transitions []*transitionResponse `json:"transitions"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		conversationID := types.ConversationID(chi.URLParam(r, "conversationID"))

		records, err := syncUC.ListTransitions(ctx, conversationID)
		if err != nil {
			apiError(ctx, w, err)
			return
		}

		resp := response{Transitions: make([]*transitionResponse, len(records))}
		for i, tr := range records {
			resp.Transitions[i] = newTransitionResponse(tr)
		}
		respondJSON(ctx, w, http.StatusOK, resp)
	}
}

func listConversationsByParticipantHandler(mapping *usecase.MappingUseCase) http.HandlerFunc {
	type response struct {
		Conversations []*conversationResponse `json:"conversations"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		participant := types.ParticipantID(chi.URLParam(r, "participantID"))

		convs, err := mapping.ListByParticipant(ctx, participant)
		if err != nil {
			apiError(ctx, w, err)
			return
		}

		resp := response{Conversations: make([]*conversationResponse, len(convs))}
		for i, conv := range convs {
			resp.Conversations[i] = newConversationResponse(conv, nil)
		}
		respondJSON(ctx, w, http.StatusOK, resp)
	}
}
