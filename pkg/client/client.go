package client

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

	"github.com/cuemby/burrow/pkg/types"
)

// DefaultTimeout bounds non-streaming requests
const DefaultTimeout = 10 * time.Second

// Client talks to another burrow node over HTTP: listing and fetching
// contexts for catch-up, forwarding writes, pushing propagated changes and
// opening event streams.
type Client struct {
	baseURL string

	// http serves bounded request/response calls; streamHTTP has no
	// client-side timeout so long-lived streams stay open.
	http       *http.Client
	streamHTTP *http.Client
}

// New creates a client for the node at baseURL
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		http:       &http.Client{Timeout: DefaultTimeout},
		streamHTTP: &http.Client{},
	}
}

// BaseURL returns the node address this client targets
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health probes the node's /health endpoint
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// ListWithMetadata fetches all contexts and their metadata
func (c *Client) ListWithMetadata(ctx context.Context) ([]types.ContextEntry, error) {
	resp, err := c.get(ctx, "/contexts?includeMetadata=true")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list contexts returned HTTP %d", resp.StatusCode)
	}

	var entries []types.ContextEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode context listing: %w", err)
	}
	return entries, nil
}

// GetContext fetches one payload
func (c *Client) GetContext(ctx context.Context, contextID string) (json.RawMessage, error) {
	resp, err := c.get(ctx, "/contexts/"+url.PathEscape(contextID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("context %s not found upstream", contextID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get context returned HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// GetMetadata fetches one context's metadata
func (c *Client) GetMetadata(ctx context.Context, contextID string) (types.Metadata, error) {
	resp, err := c.get(ctx, "/contexts/"+url.PathEscape(contextID)+"/metadata")
	if err != nil {
		return types.Metadata{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.Metadata{}, fmt.Errorf("get metadata returned HTTP %d", resp.StatusCode)
	}
	var meta types.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return types.Metadata{}, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return meta, nil
}

// saveRequest is the PUT /contexts/{id} body
type saveRequest struct {
	Context  json.RawMessage `json:"context"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// saveResponse is the PUT /contexts/{id} response
type saveResponse struct {
	Success   bool           `json:"success"`
	ContextID string         `json:"contextId"`
	Metadata  types.Metadata `json:"metadata"`
}

// PutContext forwards a client write and returns the authoritative metadata
func (c *Client) PutContext(ctx context.Context, contextID string, payload json.RawMessage, extra map[string]any) (types.Metadata, error) {
	body, err := json.Marshal(saveRequest{Context: payload, Metadata: extra})
	if err != nil {
		return types.Metadata{}, err
	}

	resp, err := c.do(ctx, http.MethodPut, "/contexts/"+url.PathEscape(contextID), body)
	if err != nil {
		return types.Metadata{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.Metadata{}, fmt.Errorf("put context returned HTTP %d", resp.StatusCode)
	}

	var saved saveResponse
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return types.Metadata{}, fmt.Errorf("failed to decode save response: %w", err)
	}
	return saved.Metadata, nil
}

// DeleteContext forwards a client delete
func (c *Client) DeleteContext(ctx context.Context, contextID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/contexts/"+url.PathEscape(contextID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete context returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// replicateRequest is the wire format for direct propagation pushes
type replicateRequest struct {
	ContextID string          `json:"contextId"`
	Context   json.RawMessage `json:"context"`
	Metadata  types.Metadata  `json:"metadata"`
}

// Replicate pushes an authoritative update to a downstream peer, which
// applies it without re-propagating
func (c *Client) Replicate(ctx context.Context, contextID string, payload json.RawMessage, meta types.Metadata) error {
	body, err := json.Marshal(replicateRequest{ContextID: contextID, Context: payload, Metadata: meta})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/internal/replicate", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("replicate returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// ReplicateDelete pushes an authoritative delete to a downstream peer
func (c *Client) ReplicateDelete(ctx context.Context, contextID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/internal/replicate/"+url.PathEscape(contextID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("replicate delete returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}
