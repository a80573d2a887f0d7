package peers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// OverlayDirectory queries the private overlay daemon's local status API for
// the current peer set. The overlay owns authentication and addressing; this
// directory only reads its view.
type OverlayDirectory struct {
	statusURL string
	client    *http.Client
}

// NewOverlayDirectory creates a directory over the overlay status API
func NewOverlayDirectory(statusURL string) *OverlayDirectory {
	return &OverlayDirectory{
		statusURL: strings.TrimSuffix(statusURL, "/"),
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Peers queries the overlay daemon. The response is the directory wire
// shape: a JSON array of {name, address, tags, online}.
func (d *OverlayDirectory) Peers(ctx context.Context) ([]types.Peer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.statusURL+"/peers", nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overlay status query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("overlay status returned HTTP %d", resp.StatusCode)
	}

	var peers []types.Peer
	if err := json.NewDecoder(resp.Body).Decode(&peers); err != nil {
		return nil, fmt.Errorf("failed to decode overlay peer list: %w", err)
	}
	return peers, nil
}
