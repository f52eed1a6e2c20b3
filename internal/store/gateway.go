package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/feedsync/internal/common"
)

// GatewayStore talks to a node's HTTP gateway. The default http.Client
// transparently follows redirects, which covers the permanent-redirect
// responses a node answers with when an address has been superseded.
type GatewayStore struct {
	baseURL string
	client  *http.Client
}

// NewGatewayStore creates a client for the gateway at baseURL.
func NewGatewayStore(baseURL string) *GatewayStore {
	return &GatewayStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (g *GatewayStore) url(address string, edition int64) string {
	return fmt.Sprintf("%s/feeds/%s/%d", g.baseURL, address, edition)
}

// Fetch downloads the payload published at the given address and edition.
func (g *GatewayStore) Fetch(ctx context.Context, address string, edition int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url(address, edition), nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s@%d: %w", address, edition, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading fetch response: %w", err)
		}
		return data, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s@%d: %w", address, edition, common.ErrNotFound)
	default:
		return nil, fmt.Errorf("fetching %s@%d: unexpected status %d", address, edition, resp.StatusCode)
	}
}

type publishResponse struct {
	Address string `json:"address"`
	Edition int64  `json:"edition"`
}

// Publish uploads the payload as the given edition and returns the final
// address reported by the node.
func (g *GatewayStore) Publish(ctx context.Context, address string, edition int64, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.url(address, edition), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrPublishFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: unexpected status %d", common.ErrPublishFailed, resp.StatusCode)
	}

	var pr publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", common.ErrPublishFailed, err)
	}
	if pr.Address == "" {
		pr.Address = address
	}
	return pr.Address, nil
}
