package taskledgersdk

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

// Client is a minimal Taskledger HTTP API client.
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

// Task represents the API task model.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority"`
	Status      string   `json:"status"`
	DueDate     *string  `json:"due_date,omitempty"`
	Tags        []string `json:"tags"`
	CreatedBy   string   `json:"created_by"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	Active      bool     `json:"active"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// SubTask represents a checklist item under a task.
type SubTask struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Comment represents a task comment.
type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// TaskLog represents one audit trail entry.
type TaskLog struct {
	ID        int64   `json:"id"`
	TaskID    string  `json:"task_id"`
	ActorID   string  `json:"actor_id"`
	Action    string  `json:"action"`
	Field     *string `json:"field,omitempty"`
	OldValue  *string `json:"old_value,omitempty"`
	NewValue  *string `json:"new_value,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// TaskDetail is the full task read model.
type TaskDetail struct {
	Task     Task      `json:"task"`
	SubTasks []SubTask `json:"subtasks"`
	Comments []Comment `json:"comments"`
	Logs     []TaskLog `json:"logs"`
}

// CreateTaskOptions are the optional fields of CreateTask.
type CreateTaskOptions struct {
	Description string
	Priority    string
	DueDate     string
	Tags        []string
	AssigneeID  string
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedTasks wraps list responses with cursors.
type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title string, opts CreateTaskOptions) (Task, error) {
	body := map[string]any{"title": title}
	if opts.Description != "" {
		body["description"] = opts.Description
	}
	if opts.Priority != "" {
		body["priority"] = opts.Priority
	}
	if opts.DueDate != "" {
		body["due_date"] = opts.DueDate
	}
	if len(opts.Tags) > 0 {
		body["tags"] = opts.Tags
	}
	if opts.AssigneeID != "" {
		body["assignee_id"] = opts.AssigneeID
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// GetTask fetches the task detail: task, subtasks, comments, and log.
func (c *Client) GetTask(ctx context.Context, id string) (TaskDetail, error) {
	var resp TaskDetail
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks returns one page of tasks.
func (c *Client) ListTasks(ctx context.Context, limit int, cursor string) (PaginatedTasks, error) {
	endpoint := "tasks"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateStatus moves the task to the given status.
func (c *Client) UpdateStatus(ctx context.Context, id, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

// AssignTask sets the task assignee.
func (c *Client) AssignTask(ctx context.Context, id, assigneeID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(id)+"/assign", map[string]any{"assignee_id": assigneeID}, &resp)
	return resp, err
}

// DeleteTask soft-deletes the task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

// CreateSubTask adds a subtask under a task.
func (c *Client) CreateSubTask(ctx context.Context, taskID, title string) (SubTask, error) {
	var resp SubTask
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/subtasks", map[string]any{"title": title}, &resp)
	return resp, err
}

// AddComment posts a comment on a task.
func (c *Client) AddComment(ctx context.Context, taskID, content string) (Comment, error) {
	var resp Comment
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/comments", map[string]any{"content": content}, &resp)
	return resp, err
}

// TaskLogs returns the audit trail, newest first.
func (c *Client) TaskLogs(ctx context.Context, taskID string) ([]TaskLog, error) {
	var resp []TaskLog
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID)+"/logs", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
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
