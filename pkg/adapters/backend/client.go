// Package backend talks to the form management backend over HTTP. It
// implements tree fetching and user data persistence against the
// backend's envelope API, where every response carries a success flag and
// an optional message alongside the payload.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aretw0/arbor/pkg/answers"
	"github.com/aretw0/arbor/pkg/ports"
)

// Default endpoint paths, relative to the base URL.
const (
	pathFetchTree     = "/object/fetch"
	pathFetchUserData = "/user_data/fetch"
	pathSubmit        = "/user_data/submit"
	pathList          = "/object/list"
)

// envelope is the backend's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client implements ports.TreeFetcher, ports.UserDataStore and
// ports.Submitter against the backend API.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient sets a custom http.Client, e.g. with instrumentation or
// custom transport settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the request timeout on the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// New creates a backend client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchTree retrieves a wire encoded tree definition. Version pins are
// forwarded as query parameters so the backend serves the revision the
// user's answers were recorded against.
func (c *Client) FetchTree(ctx context.Context, req ports.TreeRequest) ([]byte, error) {
	query := url.Values{"uid": {req.UID}}
	switch {
	case req.Version > 0:
		query.Set("ver", strconv.Itoa(req.Version))
	case req.VersionHash != "":
		query.Set("ver_hash", req.VersionHash)
	}
	env, err := c.get(ctx, pathFetchTree, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tree %q: %w", req.UID, err)
	}
	return env.Data, nil
}

// ListTrees returns the uids of the trees the backend publishes.
func (c *Client) ListTrees(ctx context.Context) ([]string, error) {
	env, err := c.get(ctx, pathList, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("failed to list trees: %w", err)
	}
	var uids []string
	if err := json.Unmarshal(env.Data, &uids); err != nil {
		return nil, fmt.Errorf("failed to parse tree list: %w", err)
	}
	return uids, nil
}

// Load retrieves the answer store for a user key.
func (c *Client) Load(ctx context.Context, userKey string) (*answers.Store, error) {
	env, err := c.get(ctx, pathFetchUserData, url.Values{"key": {userKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user data for %q: %w", userKey, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, ports.ErrUserDataNotFound
	}
	return answers.Import(env.Data)
}

// Save persists the answer store without marking it submitted. The backend
// exposes a single ingestion endpoint for both.
func (c *Client) Save(ctx context.Context, data *answers.Store) error {
	return c.Submit(ctx, data)
}

// Submit delivers the answer store for final processing.
func (c *Client) Submit(ctx context.Context, data *answers.Store) error {
	encoded, err := data.Export()
	if err != nil {
		return fmt.Errorf("failed to marshal user data: %w", err)
	}
	if _, err := c.post(ctx, pathSubmit, encoded); err != nil {
		return fmt.Errorf("failed to submit user data for %q: %w", data.Key, err)
	}
	return nil
}

// Delete is not supported by the backend API.
func (c *Client) Delete(ctx context.Context, userKey string) error {
	return fmt.Errorf("backend does not support deleting user data")
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ports.ErrTreeNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.Success {
		message := env.Message
		if message == "" {
			message = "an unknown error occurred"
		}
		return nil, fmt.Errorf("backend error: %s", message)
	}
	return &env, nil
}
