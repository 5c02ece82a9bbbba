package reqlinesdk

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

// Client is a minimal Reqline HTTP API client.
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

// Request represents the API design request model (partial).
type Request struct {
	ID            string  `json:"id"`
	RequestNumber string  `json:"request_number"`
	Title         string  `json:"title"`
	Area          string  `json:"area"`
	Type          string  `json:"type"`
	Urgency       string  `json:"urgency"`
	Status        string  `json:"status"`
	AssignedTo    *string `json:"assigned_to,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// CreateRequestInput carries the admission fields for a new request.
type CreateRequestInput struct {
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Area          string `json:"area"`
	Type          string `json:"type"`
	Urgency       string `json:"urgency,omitempty"`
	PreferredRole string `json:"preferred_role,omitempty"`
	DeliveryDate  string `json:"delivery_date,omitempty"`
}

// CreateRequestResult is the admission outcome: the request plus either
// an assigned executor or a queued flag.
type CreateRequestResult struct {
	Request    Request        `json:"request"`
	AssignedTo map[string]any `json:"assigned_to,omitempty"`
	Queued     bool           `json:"queued"`
}

// QueueEntry is a request's derived position inside its queue.
type QueueEntry struct {
	TicketID     string `json:"ticket_id"`
	Stage        string `json:"stage"`
	Department   string `json:"department"`
	ExecutorType string `json:"executor_type"`
	Position     int    `json:"position"`
	Total        int    `json:"total"`
	Ahead        int    `json:"ahead"`
	Urgency      string `json:"urgency"`
}

// QueueTicket pairs a request with its queue entry.
type QueueTicket struct {
	Request Request    `json:"request"`
	Entry   QueueEntry `json:"entry"`
}

// QueuePositionResult answers the "where do I stand" query.
type QueuePositionResult struct {
	InQueue bool        `json:"in_queue"`
	Entry   *QueueEntry `json:"entry,omitempty"`
}

// UserQueue is the caller's active tickets split by relationship.
type UserQueue struct {
	AsRequester []QueueTicket `json:"as_requester"`
	AsExecutor  []QueueTicket `json:"as_executor"`
}

// Comment represents a request comment.
type Comment struct {
	ID         string `json:"id"`
	RequestID  string `json:"request_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps event listings with a cursor.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor int64   `json:"next_cursor"`
}

// PaginatedRequests wraps request listings.
type PaginatedRequests struct {
	Items []Request `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Pages int       `json:"pages"`
}

// WhoAmI describes the authenticated principal.
type WhoAmI struct {
	ActorID    string `json:"actor_id"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Source     string `json:"source"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateRequest admits a design request.
func (c *Client) CreateRequest(ctx context.Context, in CreateRequestInput) (CreateRequestResult, error) {
	var resp CreateRequestResult
	err := c.do(ctx, http.MethodPost, "v1/requests", in, &resp)
	return resp, err
}

// GetRequest fetches a request by id.
func (c *Client) GetRequest(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, "v1/requests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListRequests returns a page of requests. Zero values skip a filter.
func (c *Client) ListRequests(ctx context.Context, status, area string, page int) (PaginatedRequests, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if area != "" {
		q.Set("area", area)
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	endpoint := "v1/requests"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp PaginatedRequests
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetStatus moves a request along its lifecycle.
func (c *Client) SetStatus(ctx context.Context, id, status string) (Request, error) {
	var resp Request
	endpoint := fmt.Sprintf("v1/requests/%s/status", url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// Claim assigns a pending request to the caller (or to executorID when
// the caller is an administrator).
func (c *Client) Claim(ctx context.Context, id, executorID string) (Request, error) {
	body := map[string]any{}
	if executorID != "" {
		body["executor_id"] = executorID
	}
	var resp Request
	endpoint := fmt.Sprintf("v1/requests/%s/claim", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AddComment posts a comment on a request.
func (c *Client) AddComment(ctx context.Context, id, text string) (Comment, error) {
	var resp Comment
	endpoint := fmt.Sprintf("v1/requests/%s/comments", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"text": text}, &resp)
	return resp, err
}

// QueuePosition returns a request's standing in its queue.
func (c *Client) QueuePosition(ctx context.Context, id string) (QueuePositionResult, error) {
	var resp QueuePositionResult
	endpoint := fmt.Sprintf("v1/queue/ticket/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MyQueue returns the caller's active tickets.
func (c *Client) MyQueue(ctx context.Context) (UserQueue, error) {
	var resp UserQueue
	err := c.do(ctx, http.MethodGet, "v1/queue/my", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, 0)
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor int64) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor > 0 {
		q.Set("cursor", fmt.Sprint(cursor))
	}
	endpoint := "v1/events"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Me returns the authenticated principal.
func (c *Client) Me(ctx context.Context) (WhoAmI, error) {
	var resp WhoAmI
	err := c.do(ctx, http.MethodGet, "v1/me", nil, &resp)
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
