// Package ctl is the operator client for the shutdownd HTTP API.
package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shutdownd/pkg/events"
	"shutdownd/services/registry"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server answered %d", e.StatusCode)
	}
	return fmt.Sprintf("server answered %d: %s", e.StatusCode, e.Message)
}

// Client talks to the operator endpoints with basic authentication.
type Client struct {
	BaseURL  string
	User     string
	Password string
	HTTP     *http.Client
}

// NewClient returns a Client for the server at baseURL, for instance
// https://fleet.example.com.
func NewClient(baseURL, user, password string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	return &Client{
		BaseURL:  baseURL,
		User:     user,
		Password: password,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Status sweeps stale computers and returns the fleet.
func (c *Client) Status(ctx context.Context) (registry.Snapshot, error) {
	var snap registry.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Shutdown requests shutdown of one computer, or of every online member of
// the group when computerName is empty. It returns the computers that will
// receive the request.
func (c *Client) Shutdown(ctx context.Context, groupName, computerName string) ([]string, error) {
	body := map[string]string{"group_name": groupName}
	if computerName != "" {
		body["computer_name"] = computerName
	}
	var resp struct {
		Requested []string `json:"requested"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/shutdown", body, &resp); err != nil {
		return nil, err
	}
	return resp.Requested, nil
}

// Audit lists the most recent fleet events, newest first.
func (c *Client) Audit(ctx context.Context, limit int) ([]events.AuditEntry, error) {
	path := "/api/audit"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Entries []events.AuditEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.User != "" {
		req.SetBasicAuth(c.User, c.Password)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
