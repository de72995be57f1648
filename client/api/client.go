// Package api is the judge console's HTTP client for the judging server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
	"github.com/Black-And-White-Club/judgeboard/pkg/apierror"
)

// DefaultProbeTimeout bounds a connectivity probe.
const DefaultProbeTimeout = 3 * time.Second

// APIError is a response the server produced. Transport failures are never
// an APIError.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsRetryable reports whether a failed call may succeed if repeated:
// transport errors, timeouts and 5xx/429 responses. Client errors such as
// validation failures are terminal. A cancelled context is not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 ||
			apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusRequestTimeout
	}
	return true
}

// IsValidation reports whether the server rejected the request's content.
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == apierror.CodeValidationFailed
}

// Client calls the judging API.
type Client struct {
	baseURL      string
	http         *http.Client
	token        string
	judgeID      string
	role         string
	probeTimeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithToken authenticates with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithIdentityHeaders sends the development identity headers instead of a token.
func WithIdentityHeaders(judgeID, role string) Option {
	return func(c *Client) {
		c.judgeID = judgeID
		c.role = role
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) { c.probeTimeout = d }
}

// New creates a Client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 15 * time.Second},
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SaveResult is the server's answer to a save.
type SaveResult struct {
	ScoreID string             `json:"scoreId"`
	EntryID string             `json:"entryId"`
	Status  scoredomain.Status `json:"status"`
	Total   int                `json:"total"`
	Values  scoredomain.Values `json:"values"`
	SavedAt string             `json:"savedAt"`
}

// EntryRow is one entry in a judge's listing.
type EntryRow struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Organization *string            `json:"organization"`
	Approved     bool               `json:"approved"`
	Position     *int               `json:"position"`
	Values       scoredomain.Values `json:"values"`
	Total        int                `json:"total"`
	Status       scoredomain.Status `json:"status"`
}

// OrganizationName returns the organization or "" when unset.
func (r EntryRow) OrganizationName() string {
	if r.Organization == nil {
		return ""
	}
	return *r.Organization
}

// Listing is a judge's view of an event.
type Listing struct {
	EventID    string                     `json:"eventId"`
	JudgeID    string                     `json:"judgeId"`
	Categories []scoredomain.Category     `json:"categories"`
	Entries    []EntryRow                 `json:"entries"`
	Summary    map[scoredomain.Status]int `json:"summary"`
}

// PositionChange is one entry's move within a reposition.
type PositionChange struct {
	EntryID string `json:"entryId"`
	From    *int   `json:"from"`
	To      int    `json:"to"`
}

// RepositionResult is the server's answer to a reposition.
type RepositionResult struct {
	Entry struct {
		ID       string `json:"id"`
		Position *int   `json:"position"`
	} `json:"entry"`
	Changes []PositionChange `json:"changes"`
}

// SaveScores upserts the judge's values for an entry. Replaying the same
// call is harmless.
func (c *Client) SaveScores(ctx context.Context, eventID, entryID string, values scoredomain.Values) (*SaveResult, error) {
	path := fmt.Sprintf("/api/events/%s/entries/%s/scores", url.PathEscape(eventID), url.PathEscape(entryID))
	var out SaveResult
	if err := c.do(ctx, http.MethodPut, path, map[string]any{"values": values}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEntries returns the judge's entries with derived statuses.
func (c *Client) ListEntries(ctx context.Context, eventID, judgeID string) (*Listing, error) {
	path := fmt.Sprintf("/api/events/%s/judges/%s/entries", url.PathEscape(eventID), url.PathEscape(judgeID))
	var out Listing
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reposition moves an entry to targetPosition. Coordinator only.
func (c *Client) Reposition(ctx context.Context, entryID string, targetPosition int) (*RepositionResult, error) {
	path := fmt.Sprintf("/api/entries/%s/position", url.PathEscape(entryID))
	var out RepositionResult
	if err := c.do(ctx, http.MethodPut, path, map[string]int{"targetPosition": targetPosition}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping probes liveness with the short probe timeout. It never touches the
// store on the server side.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/api/ping", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.judgeID != "" {
		req.Header.Set("X-Judge-ID", c.judgeID)
		if c.role != "" {
			req.Header.Set("X-Role", c.role)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope apierror.Body
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&envelope); err == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
