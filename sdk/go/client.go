package controllinesdk

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

// Client is a minimal Controlline HTTP API client covering the trigger
// surface: run chains, inspect runs, generate events and derive tasks.
type Client struct {
	BaseURL     string
	ActorID     string
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

// Run represents one chain execution record.
type Run struct {
	ID             string `json:"id,omitempty"`
	ChainID        string `json:"chain_id"`
	ClientID       string `json:"client_id"`
	Period         string `json:"period"`
	Mode           string `json:"mode"`
	Trigger        string `json:"trigger"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	FinishedAt     string `json:"finished_at,omitempty"`
	EventsAppended int    `json:"events_appended"`
	StepsGenerated int    `json:"steps_generated"`
	TasksGenerated int    `json:"tasks_generated"`
	Error          string `json:"error,omitempty"`
}

// Event represents a ledger event (partial).
type Event struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	Period   string `json:"period"`
	Date     string `json:"date"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

// Task represents a derived work item.
type Task struct {
	ID            string `json:"id"`
	ClientID      string `json:"client_id"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	DueDate       string `json:"due_date"`
	SourceEventID string `json:"source_event_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// RunChain triggers a chain for a client and period.
func (c *Client) RunChain(ctx context.Context, chainID, clientID, period string) (Run, error) {
	body := map[string]any{
		"client_id": clientID,
		"period":    period,
	}
	var resp struct {
		Run Run `json:"run"`
	}
	endpoint := fmt.Sprintf("v0/chains/%s/run", url.PathEscape(chainID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp.Run, err
}

// GetRun fetches a run record by id.
func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	var resp struct {
		Run Run `json:"run"`
	}
	endpoint := fmt.Sprintf("v0/runs/%s", url.PathEscape(runID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Run, err
}

// ListRuns returns run history, optionally filtered.
func (c *Client) ListRuns(ctx context.Context, chainID, clientID, period string) ([]Run, error) {
	q := url.Values{}
	if chainID != "" {
		q.Set("chain_id", chainID)
	}
	if clientID != "" {
		q.Set("client_id", clientID)
	}
	if period != "" {
		q.Set("period", period)
	}
	endpoint := "v0/runs"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Runs []Run `json:"runs"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Runs, err
}

// GenerateEvents appends a client's calendar to the ledger.
func (c *Client) GenerateEvents(ctx context.Context, clientID, period string) ([]Event, int, error) {
	body := map[string]any{
		"client_id": clientID,
		"period":    period,
	}
	var resp struct {
		Events   []Event `json:"events"`
		Appended int     `json:"appended"`
	}
	err := c.do(ctx, http.MethodPost, "v0/events/generate", body, &resp)
	return resp.Events, resp.Appended, err
}

// DeriveTasks derives and stores tasks for a client and period.
func (c *Client) DeriveTasks(ctx context.Context, clientID, period string) ([]Task, error) {
	body := map[string]any{
		"client_id": clientID,
		"period":    period,
		"persist":   true,
	}
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	err := c.do(ctx, http.MethodPost, "v0/tasks/derive", body, &resp)
	return resp.Tasks, err
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	} else if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
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

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
