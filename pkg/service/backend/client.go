package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/secmon-lab/orthrus/pkg/utils/safe"
)

// DefaultAPITimeout bounds every backend API call
const DefaultAPITimeout = 10 * time.Second

// client implements Service interface
type client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for client configuration
type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithAPITimeout sets the timeout applied to every backend API call
func WithAPITimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// New creates a backend read client for the given API base URL
func New(baseURL string, opts ...Option) (Service, error) {
	if baseURL == "" {
		return nil, goerr.New("backend base URL is required")
	}

	o := &options{
		timeout: DefaultAPITimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: o.timeout},
	}, nil
}

// FetchStatus reads the case under the lease and collapses the backend's raw
// status into the canonical set.
func (c *client) FetchStatus(ctx context.Context, lease *model.Lease, caseID types.CaseID) (types.CaseStatus, error) {
	endpoint := fmt.Sprintf("%s/cases/%s", c.baseURL, url.PathEscape(string(caseID)))
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create case request")
	}
	req.Header.Set("Authorization", "Bearer "+lease.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to call backend",
			goerr.V("case_id", caseID))
	}
	defer safe.Close(ctx, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", goerr.Wrap(ErrCredentialRejected, "case fetch refused",
			goerr.V("status", resp.StatusCode),
			goerr.V("account_key", lease.AccountKey))
	case http.StatusNotFound:
		return "", goerr.Wrap(ErrCaseNotFound, "case fetch failed",
			goerr.V("case_id", caseID))
	default:
		return "", goerr.New("backend returned an unexpected status",
			goerr.V("status", resp.StatusCode),
			goerr.V("case_id", caseID))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read case response")
	}

	var payload caseResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", goerr.Wrap(err, "failed to parse case response",
			goerr.V("case_id", caseID))
	}

	status, err := types.NormalizeCaseStatus(payload.Status)
	if err != nil {
		return "", goerr.Wrap(err, "backend returned an unknown case status",
			goerr.V("case_id", caseID), goerr.V("raw_status", payload.Status))
	}
	return status, nil
}

type caseResponse struct {
	CaseID    string `json:"case_id"`
	DisplayID string `json:"display_id"`
	Status    string `json:"status"`
}
