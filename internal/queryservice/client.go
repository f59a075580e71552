// Package queryservice is the HTTP client for the remote data Query Service
// and the classification of its failures.
package queryservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/querybot/internal/normalize"
)

const (
	DefaultBaseURL = "http://localhost:8080"
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	maxErrorBody   = 64 << 10
)

// Client talks to the Query Service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a client for the service at baseURL. A zero timeout
// selects the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		backoff:    initialBackoff,
	}
}

// BaseURL returns the service root the client was configured with.
func (c *Client) BaseURL() string { return c.baseURL }

// Ask submits a natural-language question on behalf of userID and returns
// the decoded result. Failures are *NetworkError, *HTTPError or *DecodeError.
// HTTP 429 responses are retried with exponential backoff.
func (c *Client) Ask(ctx context.Context, question string, userID int) (normalize.Value, error) {
	q := url.Values{}
	q.Set("userId", strconv.Itoa(userID))
	q.Set("question", question)
	endpoint := c.baseURL + "/api/queries/ask?" + q.Encode()

	var lastErr error
	for attempt := range maxRetries {
		body, err := c.do(ctx, http.MethodPost, endpoint)
		if err == nil {
			v, perr := normalize.Parse(body)
			if perr != nil {
				return normalize.Value{}, &DecodeError{Err: perr}
			}
			return v, nil
		}

		var rl *rateLimitError
		if !errors.As(err, &rl) {
			return normalize.Value{}, err
		}

		lastErr = rl.HTTPError
		if attempt < maxRetries-1 {
			wait := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
			slog.Warn("query service rate limited, retrying", "attempt", attempt+1, "backoff", wait)
			select {
			case <-ctx.Done():
				return normalize.Value{}, &NetworkError{Err: ctx.Err()}
			case <-time.After(wait):
			}
		}
	}

	return normalize.Value{}, lastErr
}

// HistoryEntry is one past question and its stored answer.
type HistoryEntry struct {
	ID           int64           `json:"id"`
	QueryText    string          `json:"queryText"`
	ResponseText json.RawMessage `json:"responseText"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Answer decodes the stored answer. Answers the service kept as plain text
// come back as strings.
func (h HistoryEntry) Answer() normalize.Value {
	if len(h.ResponseText) == 0 {
		return normalize.Null()
	}
	v, err := normalize.Parse(h.ResponseText)
	if err != nil {
		return normalize.String(string(h.ResponseText))
	}
	return v
}

// History returns the questions userID has asked, oldest first.
func (c *Client) History(ctx context.Context, userID int) ([]HistoryEntry, error) {
	q := url.Values{}
	q.Set("userId", strconv.Itoa(userID))
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/queries/history?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var entries []HistoryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if entries == nil {
		return []HistoryEntry{}, nil
	}
	return entries, nil
}

// rateLimitError marks an HTTP 429 that may be retried.
type rateLimitError struct {
	*HTTPError
}

func (e *rateLimitError) Unwrap() error { return e.HTTPError }

func (c *Client) do(ctx context.Context, method, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := &HTTPError{
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Body:       string(raw),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &rateLimitError{HTTPError: httpErr}
		}
		return nil, httpErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("reading response: %w", err)}
	}
	return body, nil
}

// statusText returns the reason phrase the server sent, falling back to the
// canonical one.
func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
