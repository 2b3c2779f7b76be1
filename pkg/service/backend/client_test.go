package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/service/backend"
)

func testLease() *model.Lease {
	return &model.Lease{
		AccountKey: "acct-0",
		Token:      "tok-1",
		Expiry:     time.Now().Add(time.Hour),
	}
}

func TestNew(t *testing.T) {
	t.Run("returns error when base URL is empty", func(t *testing.T) {
		_, err := backend.New("")
		gt.Value(t, err).NotNil()
	})

	t.Run("creates client when base URL is provided", func(t *testing.T) {
		svc, err := backend.New("https://support.example.com/v1", backend.WithAPITimeout(5*time.Second))
		gt.NoError(t, err).Required()
		gt.Value(t, svc).NotNil()
	})
}

func TestClient_FetchStatus(t *testing.T) {
	newServer := func(t *testing.T, status int, body string) *httptest.Server {
		t.Helper()
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gt.Value(t, r.Method).Equal(http.MethodGet)
			gt.Value(t, r.URL.Path).Equal("/cases/case-1")
			gt.Value(t, r.Header.Get("Authorization")).Equal("Bearer tok-1")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if _, err := w.Write([]byte(body)); err != nil {
				t.Error(err)
			}
		}))
	}

	t.Run("normalizes the raw backend status", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, `{"case_id":"case-1","display_id":"1001","status":"pending-customer-action"}`)
		defer srv.Close()

		svc, err := backend.New(srv.URL)
		gt.NoError(t, err).Required()

		status, err := svc.FetchStatus(context.Background(), testLease(), "case-1")
		gt.NoError(t, err).Required()
		gt.Value(t, status).Equal(types.CaseStatusPending)
	})

	t.Run("completed customer action reads as open", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, `{"case_id":"case-1","display_id":"1001","status":"customer-action-completed"}`)
		defer srv.Close()

		svc, err := backend.New(srv.URL)
		gt.NoError(t, err).Required()

		status, err := svc.FetchStatus(context.Background(), testLease(), "case-1")
		gt.NoError(t, err).Required()
		gt.Value(t, status).Equal(types.CaseStatusOpen)
	})

	t.Run("trailing base URL slash is tolerated", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, `{"case_id":"case-1","display_id":"1001","status":"resolved"}`)
		defer srv.Close()

		svc, err := backend.New(srv.URL + "/")
		gt.NoError(t, err).Required()

		status, err := svc.FetchStatus(context.Background(), testLease(), "case-1")
		gt.NoError(t, err).Required()
		gt.Value(t, status).Equal(types.CaseStatusResolved)
	})

	t.Run("401 maps to credential rejection", func(t *testing.T) {
		srv := newServer(t, http.StatusUnauthorized, `{"error":"token expired"}`)
		defer srv.Close()

		svc, err := backend.New(srv.URL)
		gt.NoError(t, err).Required()

		_, err = svc.FetchStatus(context.Background(), testLease(), "case-1")
		gt.Error(t, err).Required()
		gt.Bool(t, errors.Is(err, backend.ErrCredentialRejected)).True()
	})

	t.Run("403 maps to credential rejection", func(t *testing.T) {
		srv := newServer(t, http.StatusForbidden, `{"error":"role revoked"}`)
		defer srv.Close()

		svc, err := backend.New(srv.URL)
		gt.NoError(t, err).Required()

		_, err = svc.FetchStatus(context.Background(), testLease(), "case-1")
		gt.Error(t, err).Required()
		gt.Bool(t, errors.Is(err, backend.ErrCredentialRejected)).True()
	})

	t.Run("404 maps to case not found", func(t *testing.T) {
		srv := newServer(t, http.StatusNotFound, `{"error":"no such case"}`)
		defer srv.Close()

		svc, err := backend.New(srv.URL)
		gt.NoError(t, err).Required()

		_, err = svc.FetchStatus(context.Background(), testLease(), "case-1")
		gt.Error(t, err).Required()
		gt.Bool(t, errors.Is(err, backend.ErrCaseNotFound)).True()
	})

	t.Run("server error matches neither sentinel", func(t *testing.T) {
		srv := newServer(t, http.StatusInternalServerError, `{"error":"boom"}`)
		defer srv.Close()

		svc, err := backend.New(srv.URL)
		gt.NoError(t, err).Required()

		_, err = svc.FetchStatus(context.Background(), testLease(), "case-1")
		gt.Error(t, err).Required()
		gt.Bool(t, errors.Is(err, backend.ErrCredentialRejected)).False()
		gt.Bool(t, errors.Is(err, backend.ErrCaseNotFound)).False()
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, `{"case_id":"case-1","display_id":"1001","status":"escalated"}`)
		defer srv.Close()

		svc, err := backend.New(srv.URL)
		gt.NoError(t, err).Required()

		_, err = svc.FetchStatus(context.Background(), testLease(), "case-1")
		gt.Error(t, err)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, `not json`)
		defer srv.Close()

		svc, err := backend.New(srv.URL)
		gt.NoError(t, err).Required()

		_, err = svc.FetchStatus(context.Background(), testLease(), "case-1")
		gt.Error(t, err)
	})
}
