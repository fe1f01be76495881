package siteworksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Sitework HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Assignment is one entry of a job's assigned resource list.
type Assignment struct {
	ResourceID string `json:"resourceId"`
	Type       string `json:"type"`
}

// Job represents the API job model.
type Job struct {
	ID                string       `json:"id"`
	TaskID            string       `json:"taskId"`
	TaskName          string       `json:"taskName"`
	Title             string       `json:"title"`
	Description       string       `json:"description,omitempty"`
	StartTime         string       `json:"startTime"`
	EndTime           string       `json:"endTime"`
	Status            string       `json:"status"`
	AssignedResources []Assignment `json:"assignedResources"`
	CreatedAt         string       `json:"createdAt"`
	UpdatedAt         string       `json:"updatedAt"`
}

// JobRequest is a create/update payload. Nil fields are omitted so
// partial updates only touch what the caller sets.
type JobRequest struct {
	Title             *string      `json:"title,omitempty"`
	Description       *string      `json:"description,omitempty"`
	TaskID            *string      `json:"taskId,omitempty"`
	StartTime         *string      `json:"startTime,omitempty"`
	EndTime           *string      `json:"endTime,omitempty"`
	Status            *string      `json:"status,omitempty"`
	AssignedResources []Assignment `json:"assignedResources,omitempty"`
}

// Resource represents the API resource model.
type Resource struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Role         string `json:"role,omitempty"`
	Availability bool   `json:"availability"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

// ResourceRequest is a create/update payload for resources.
type ResourceRequest struct {
	Name         *string `json:"name,omitempty"`
	Type         *string `json:"type,omitempty"`
	Role         *string `json:"role,omitempty"`
	Availability *bool   `json:"availability,omitempty"`
}

// Task represents a catalog entry.
type Task struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Project string `json:"project,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses. Fields mirrors the validation error
// envelope when present, keyed by failing input field.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateJob creates a job.
func (c *Client) CreateJob(ctx context.Context, req JobRequest) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, "jobs", req, &resp)
	return resp, err
}

// Jobs lists jobs, optionally narrowed by exact status and a
// case-insensitive substring over title and description.
func (c *Client) Jobs(ctx context.Context, status, search string) ([]Job, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if search != "" {
		q.Set("search", search)
	}
	endpoint := "jobs"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Job
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Job fetches one job by id.
func (c *Client) Job(ctx context.Context, id string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateJob applies a partial update.
func (c *Client) UpdateJob(ctx context.Context, id string, req JobRequest) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPatch, "jobs/"+url.PathEscape(id), req, &resp)
	return resp, err
}

// DeleteJob removes a job.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "jobs/"+url.PathEscape(id), nil, nil)
}

// CreateResource registers a resource.
func (c *Client) CreateResource(ctx context.Context, req ResourceRequest) (Resource, error) {
	var resp Resource
	err := c.do(ctx, http.MethodPost, "resources", req, &resp)
	return resp, err
}

// Resources lists resources, optionally narrowed by type and search.
func (c *Client) Resources(ctx context.Context, rtype, search string) ([]Resource, error) {
	q := url.Values{}
	if rtype != "" {
		q.Set("type", rtype)
	}
	if search != "" {
		q.Set("search", search)
	}
	endpoint := "resources"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Resource
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Resource fetches one resource by id.
func (c *Client) Resource(ctx context.Context, id string) (Resource, error) {
	var resp Resource
	err := c.do(ctx, http.MethodGet, "resources/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateResource applies a partial update.
func (c *Client) UpdateResource(ctx context.Context, id string, req ResourceRequest) (Resource, error) {
	var resp Resource
	err := c.do(ctx, http.MethodPatch, "resources/"+url.PathEscape(id), req, &resp)
	return resp, err
}

// DeleteResource removes a resource.
func (c *Client) DeleteResource(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "resources/"+url.PathEscape(id), nil, nil)
}

// Tasks lists the catalog.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "tasks", nil, &resp)
	return resp, err
}

// Events tails the audit log, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				Fields map[string]string `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Fields = envelope.Error.Details.Fields
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
