// Package gateway is the HTTP client for the authoritative workload
// backend. The core is entirely a consumer of that contract: it defines
// no protocol of its own.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/capacity"
	"github.com/teamtrackhq/workload-management/internal/core/datamodel/allocation"
	"github.com/teamtrackhq/workload-management/internal/core/datamodel/user"
	"github.com/teamtrackhq/workload-management/internal/session"
)

type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	ReadRetries    int
}

type Client struct {
	baseURL     string
	apiKey      string
	readRetries int
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := config.ReadRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL:     config.BaseURL,
		apiKey:      config.APIKey,
		readRetries: retries,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Member is a project member as reported by the backend member list.
type Member struct {
	UserID             int64           `json:"userId"`
	UserName           string          `json:"userName"`
	Role               user.Role       `json:"role"`
	WorkloadPercentage decimal.Decimal `json:"workloadPercentage"`
	IsActive           bool            `json:"isActive"`
	JoinedDate         time.Time       `json:"joinedDate"`
}

type addMemberRequest struct {
	UserID             int64           `json:"userId"`
	WorkloadPercentage decimal.Decimal `json:"workloadPercentage"`
}

type updateWorkloadRequest struct {
	UserID             int64           `json:"userId"`
	WorkloadPercentage decimal.Decimal `json:"workloadPercentage"`
	Reason             string          `json:"reason,omitempty"`
}

type analyticsResponse struct {
	Users []capacity.Snapshot `json:"users"`
}

type membersResponse struct {
	Members []Member `json:"members"`
}

type historyResponse struct {
	Changes []allocation.WorkloadChange `json:"changes"`
}

type errorBody struct {
	Error struct {
		Code    internal.ErrorCode `json:"code"`
		Message string             `json:"message"`
	} `json:"error"`
}

// GetUserCapacity fetches one user's aggregate workload snapshot.
func (c *Client) GetUserCapacity(ctx context.Context, sess *session.Session, userID int64) (*capacity.Snapshot, error) {
	var snapshot capacity.Snapshot
	path := fmt.Sprintf("/api/v1/users/%d/capacity", userID)
	if err := c.doRead(ctx, sess, path, internal.ErrCodeUserNotFound, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetWorkloadSnapshots fetches the whole population's snapshots from the
// backend's aggregate endpoint. Rollups are derived from these, never
// recomputed client-side from raw allocations.
func (c *Client) GetWorkloadSnapshots(ctx context.Context, sess *session.Session) ([]capacity.Snapshot, error) {
	var resp analyticsResponse
	if err := c.doRead(ctx, sess, "/api/v1/analytics/workload", internal.ErrCodeUserNotFound, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// GetProjectMembers lists a project's members with their allocations.
func (c *Client) GetProjectMembers(ctx context.Context, sess *session.Session, projectID int64) ([]Member, error) {
	var resp membersResponse
	path := fmt.Sprintf("/api/v1/projects/%d/members", projectID)
	if err := c.doRead(ctx, sess, path, internal.ErrCodeProjectNotFound, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// AddProjectMember submits a new allocation. Mutations are never retried:
// once submitted, the caller waits for success or failure.
func (c *Client) AddProjectMember(ctx context.Context, sess *session.Session, projectID, userID int64, workload decimal.Decimal) (*allocation.Allocation, error) {
	var created allocation.Allocation
	path := fmt.Sprintf("/api/v1/projects/%d/members", projectID)
	body := addMemberRequest{UserID: userID, WorkloadPercentage: workload}
	if err := c.do(ctx, sess, http.MethodPost, path, internal.ErrCodeProjectNotFound, body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateMemberWorkload rebalances an existing allocation, optionally
// recording a reason for the audit history.
func (c *Client) UpdateMemberWorkload(ctx context.Context, sess *session.Session, projectID, userID int64, workload decimal.Decimal, reason string) (*allocation.Allocation, error) {
	var updated allocation.Allocation
	path := fmt.Sprintf("/api/v1/projects/%d/members/%d/workload", projectID, userID)
	body := updateWorkloadRequest{UserID: userID, WorkloadPercentage: workload, Reason: reason}
	if err := c.do(ctx, sess, http.MethodPut, path, internal.ErrCodeAllocationNotFound, body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// RemoveProjectMember deactivates the member's allocation. The backend
// keeps the row for history.
func (c *Client) RemoveProjectMember(ctx context.Context, sess *session.Session, projectID, userID int64) error {
	path := fmt.Sprintf("/api/v1/projects/%d/members/%d", projectID, userID)
	return c.do(ctx, sess, http.MethodDelete, path, internal.ErrCodeAllocationNotFound, nil, nil)
}

// GetWorkloadHistory returns the ordered workload change log for one
// member.
func (c *Client) GetWorkloadHistory(ctx context.Context, sess *session.Session, projectID, userID int64) ([]allocation.WorkloadChange, error) {
	var resp historyResponse
	path := fmt.Sprintf("/api/v1/projects/%d/members/%d/workload-history", projectID, userID)
	if err := c.doRead(ctx, sess, path, internal.ErrCodeAllocationNotFound, &resp); err != nil {
		return nil, err
	}
	return resp.Changes, nil
}

// Ping probes the backend health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, nil, http.MethodGet, "/api/v1/health", "", nil, nil)
}

// doRead issues a GET with bounded retries on transport errors and 5xx.
// RemoteUnavailable surfaces only after retries are exhausted; a default
// value is never substituted.
func (c *Client) doRead(ctx context.Context, sess *session.Session, path string, notFound internal.ErrorCode, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.readRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return internal.ErrRemoteUnavailable.WithCause(ctx.Err())
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
			c.logger.Debug("retrying backend read", "path", path, "attempt", attempt)
		}

		lastErr = c.do(ctx, sess, http.MethodGet, path, notFound, nil, out)
		if lastErr == nil {
			return nil
		}
		if !internal.IsCode(lastErr, internal.ErrCodeRemoteUnavailable) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, sess *session.Session, method, path string, notFound internal.ErrorCode, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return internal.NewInternalError("failed to encode request", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return internal.NewInternalError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if sess != nil && sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "method", method, "path", path, "error", err)
		return internal.ErrRemoteUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return internal.ErrRemoteUnavailable.WithCause(fmt.Errorf("backend returned %d", resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return c.errorFromResponse(resp, notFound)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return internal.ErrRemoteUnavailable.WithCause(fmt.Errorf("decoding backend response: %w", err))
	}
	return nil
}

// errorFromResponse maps backend 4xx responses onto the client taxonomy.
// Rejection messages are surfaced verbatim, never re-derived. A 404 with
// no recognizable body code takes the caller's notFound code, so a
// missing user on a capacity read is never mislabeled as a missing
// allocation.
func (c *Client) errorFromResponse(resp *http.Response, notFound internal.ErrorCode) error {
	var body errorBody
	message := fmt.Sprintf("backend returned %d", resp.StatusCode)
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error.Message != "" {
		message = body.Error.Message
	}

	if resp.StatusCode == http.StatusNotFound {
		code := body.Error.Code
		switch code {
		case internal.ErrCodeUserNotFound, internal.ErrCodeProjectNotFound, internal.ErrCodeAllocationNotFound:
		default:
			code = notFound
			if code == "" {
				code = internal.ErrCodeAllocationNotFound
			}
		}
		return internal.NewNotFoundError(message, code)
	}

	return internal.ErrRemoteRejected.WithMessage(message)
}
