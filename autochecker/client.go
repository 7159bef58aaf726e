package autochecker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/ratelimit"
)

type Client struct {
	cli      *http.Client
	endpoint string
	user     string
	password string
	limiter  ratelimit.Limiter
}

type Args struct {
	Endpoint string
	User     string
	Password string
	// RequestsPerSecond caps outgoing requests. Zero means unlimited.
	RequestsPerSecond int
	Timeout           time.Duration
}

func NewClient(args Args) *Client {
	if args.Timeout == 0 {
		args.Timeout = 15 * time.Second
	}

	limiter := ratelimit.NewUnlimited()
	if args.RequestsPerSecond > 0 {
		limiter = ratelimit.New(args.RequestsPerSecond)
	}

	return &Client{
		cli: &http.Client{
			Timeout: args.Timeout,
		},
		endpoint: args.Endpoint,
		user:     args.User,
		password: args.Password,
		limiter:  limiter,
	}
}

// Log is an interaction as reported by the upstream checker.
type Log struct {
	ID        int64  `json:"id"`
	LearnerID int64  `json:"learner_id"`
	ItemID    int64  `json:"item_id"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

type LogsResponse struct {
	Logs    []Log `json:"logs"`
	HasMore bool  `json:"has_more"`
}

type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received non-200 response code: %d", e.StatusCode)
}

func (c *Client) newRequest(ctx context.Context, since string, limit int) (*http.Request, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	u = u.JoinPath("/api/logs")

	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	if since != "" {
		q.Set("since", since)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// FetchLogs returns up to limit logs created after since (RFC 3339, empty for
// the beginning of history).
func (c *Client) FetchLogs(ctx context.Context, since string, limit int) (*LogsResponse, error) {
	req, err := c.newRequest(ctx, since, limit)
	if err != nil {
		return nil, err
	}

	c.limiter.Take()

	resp, err := c.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var logsResp LogsResponse
	if err := json.NewDecoder(resp.Body).Decode(&logsResp); err != nil {
		return nil, fmt.Errorf("error decoding logs response: %w", err)
	}

	return &logsResp, nil
}
