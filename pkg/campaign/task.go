// Package campaign ingests campaign tasks: it resolves the task from the
// campaign API, matches influencers against the roster, and opens a
// negotiation per matched influencer by dispatching a validated initial
// offer.
package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parley-hq/parley/pkg/models"
)

// Task is a campaign brief as the campaign API describes it. Monetary fields
// arrive as strings and stay decimal.
type Task struct {
	ID              string                 `json:"id"`
	ClientName      string                 `json:"client_name"`
	Platform        models.Platform        `json:"platform"`
	DeliverableType models.DeliverableType `json:"deliverable_type"`
	InfluencerNames []string               `json:"influencer_names"`
	TargetMinCPM    decimal.Decimal        `json:"target_min_cpm"`
	TargetMaxCPM    decimal.Decimal        `json:"target_max_cpm"`
	MentionUsers    []string               `json:"mention_users,omitempty"`
}

// Validate rejects tasks that cannot produce a campaign.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task: id is required")
	}
	if strings.TrimSpace(t.ClientName) == "" {
		return fmt.Errorf("task %s: client_name is required", t.ID)
	}
	if len(t.InfluencerNames) == 0 {
		return fmt.Errorf("task %s: influencer_names is empty", t.ID)
	}
	if _, err := models.NewDeliverable(t.Platform, t.DeliverableType); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	if t.TargetMinCPM.GreaterThan(t.TargetMaxCPM) {
		return fmt.Errorf("task %s: target min CPM %s exceeds max %s", t.ID, t.TargetMinCPM, t.TargetMaxCPM)
	}
	return nil
}

// TaskFetcher resolves a task identifier to its full brief.
type TaskFetcher interface {
	FetchTask(ctx context.Context, taskID string) (Task, error)
}

// TaskClient fetches tasks from the campaign API over HTTP.
type TaskClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewTaskClient builds a client for the campaign API. The token is sent as a
// bearer credential; empty means unauthenticated.
func NewTaskClient(baseURL, token string) *TaskClient {
	return &TaskClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchTask retrieves one task brief.
func (c *TaskClient) FetchTask(ctx context.Context, taskID string) (Task, error) {
	url := fmt.Sprintf("%s/tasks/%s", c.baseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Task{}, fmt.Errorf("build task request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Task{}, fmt.Errorf("fetch task %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Task{}, fmt.Errorf("fetch task %s: unexpected status %d", taskID, resp.StatusCode)
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return Task{}, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	if err := task.Validate(); err != nil {
		return Task{}, err
	}
	return task, nil
}
