package clearlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Clearline HTTP API client.
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

// Project represents the API project model (partial).
type Project struct {
	ID           string   `json:"id"`
	CustomerName string   `json:"customer_name"`
	Systems      []string `json:"systems"`
	Status       string   `json:"status"`
	Priority     string   `json:"priority"`
	CreatedAt    string   `json:"created_at"`
}

// Shipment represents a tracked shipment.
type Shipment struct {
	ID             string `json:"id"`
	ProjectID      string `json:"project_id"`
	TrackingNumber string `json:"tracking_number"`
	TrackingSlug   string `json:"tracking_slug"`
	Type           string `json:"type"`
	Status         string `json:"status"`
}

// Task represents the API task model (partial).
type Task struct {
	ID         string   `json:"id"`
	ProjectID  string   `json:"project_id"`
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Status     string   `json:"status"`
	Priority   string   `json:"priority"`
	AssignedTo []string `json:"assigned_to,omitempty"`
}

// Assignment is one entry of the cascade assignment trace.
type Assignment struct {
	TaskID  string  `json:"task_id"`
	Title   string  `json:"title"`
	UserID  *string `json:"user_id,omitempty"`
	Reason  string  `json:"reason"`
	Applied bool    `json:"applied"`
}

// CascadeResult summarizes one cascade run.
type CascadeResult struct {
	Shipment      *Shipment    `json:"shipment,omitempty"`
	StagesCreated int          `json:"stages_created"`
	TasksCreated  int          `json:"tasks_created"`
	TasksAssigned int          `json:"tasks_assigned"`
	Assignments   []Assignment `json:"assignments,omitempty"`
}

// CreateProjectResult pairs the new project with its cascade summary.
type CreateProjectResult struct {
	Project Project       `json:"project"`
	Cascade CascadeResult `json:"cascade"`
}

// SyncResult summarizes a task regeneration run.
type SyncResult struct {
	TasksDeleted  int          `json:"tasks_deleted"`
	TasksCreated  int          `json:"tasks_created"`
	TasksAssigned int          `json:"tasks_assigned"`
	Assignments   []Assignment `json:"assignments,omitempty"`
}

// TrackingStage is one public tracking-page entry.
type TrackingStage struct {
	StageType           string  `json:"stage_type"`
	Status              string  `json:"status"`
	EstimatedCompletion *string `json:"estimated_completion,omitempty"`
	CompletedAt         *string `json:"completed_at,omitempty"`
}

// Tracking is the public tracking view for a slug.
type Tracking struct {
	TrackingNumber string          `json:"tracking_number"`
	ShipmentNumber string          `json:"shipment_number"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	Stages         []TrackingStage `json:"stages"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project; the server runs the cascade.
func (c *Client) CreateProject(ctx context.Context, body map[string]any) (CreateProjectResult, error) {
	var resp CreateProjectResult
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks lists tasks, optionally filtered by project.
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	endpoint := "v0/tasks"
	if projectID != "" {
		endpoint += "?project_id=" + url.QueryEscape(projectID)
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SyncTasks regenerates the auto-generated tasks for a project.
func (c *Client) SyncTasks(ctx context.Context, projectID string) (SyncResult, error) {
	var resp SyncResult
	endpoint := fmt.Sprintf("v0/projects/%s/tasks/sync", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// Track fetches the public tracking view for a slug. No auth required.
func (c *Client) Track(ctx context.Context, slug string) (Tracking, error) {
	var resp Tracking
	err := c.do(ctx, http.MethodGet, "v0/tracking/"+url.PathEscape(slug), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
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
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
