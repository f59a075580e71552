package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/querybot/internal/queryservice"
)

// apiClient talks to the Query Service endpoints that queryservice.Client
// does not cover.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	return &apiClient{
		baseURL:    strings.TrimRight(cfg.API.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.API.TimeoutDuration()},
	}, nil
}

// newQueryClient returns the conversation client and the user it asks as.
var newQueryClient = func() (*queryservice.Client, int, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, 0, err
	}
	return queryservice.NewClient(cfg.API.BaseURL, cfg.API.TimeoutDuration()), cfg.API.UserID, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable at %s, is the Query Service running? (%w)", c.baseURL, err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// checkHealth reports whether the service answers /health within two seconds.
func (c *apiClient) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	var body map[string]string
	if err := decodeJSON(resp, &body); err != nil {
		return err
	}
	if body["status"] != "ok" {
		return fmt.Errorf("unexpected health status %q", body["status"])
	}
	return nil
}
