package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cuemby/burrow/pkg/types"
)

// maxEventSize bounds one framed event line
const maxEventSize = 4 * 1024 * 1024

// Stream is an open event-stream connection. Next blocks until the server
// emits an event; cancel the context passed to OpenStream to release it.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// OpenStream subscribes to the node's all-contexts stream. serverType and
// nodeID identify this subscriber to the upstream.
func (c *Client) OpenStream(ctx context.Context, serverType, nodeID string) (*Stream, error) {
	q := url.Values{}
	if serverType != "" {
		q.Set("serverType", serverType)
	}
	if nodeID != "" {
		q.Set("nodeId", nodeID)
	}
	return c.openStream(ctx, "/contexts/stream?"+q.Encode())
}

// OpenContextStream subscribes to one context's stream
func (c *Client) OpenContextStream(ctx context.Context, contextID string) (*Stream, error) {
	return c.openStream(ctx, "/contexts/"+url.PathEscape(contextID)+"/stream")
}

func (c *Client) openStream(ctx context.Context, path string) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned HTTP %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)
	return &Stream{body: resp.Body, scanner: scanner}, nil
}

// Next returns the next event. io.EOF means the server closed the stream.
func (s *Stream) Next() (types.WireEvent, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev types.WireEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			return types.WireEvent{}, fmt.Errorf("malformed stream event: %w", err)
		}
		return ev, nil
	}
	if err := s.scanner.Err(); err != nil {
		return types.WireEvent{}, err
	}
	return types.WireEvent{}, io.EOF
}

// Close releases the connection
func (s *Stream) Close() error {
	return s.body.Close()
}
