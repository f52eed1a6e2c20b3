// Package store provides ContentStore, the engine's interface to the
// content-addressed publish/fetch network, together with its backends:
// an in-memory store for tests and local development, an S3-backed store
// for bucket-hosted networks, and an HTTP gateway client for a real node.
package store

import (
	"context"
	"fmt"
)

// ContentStore fetches and publishes document payloads by address and
// edition. Fetch returns common.ErrNotFound when the edition does not
// exist. Publish returns the final address the content ended up at, which
// may differ from the requested one when the node rewrites it. Calls can
// be slow; they are never made under a document lock.
type ContentStore interface {
	Fetch(ctx context.Context, address string, edition int64) ([]byte, error)
	Publish(ctx context.Context, address string, edition int64, payload []byte) (string, error)
}

// Config selects and configures a backend. Type decides which of the
// other fields matter.
type Config struct {
	Type string // "memory", "s3" or "gateway"

	// S3-specific fields.
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	// Gateway-specific fields.
	GatewayURL string
}

// NewFromConfig creates a ContentStore for the configured backend.
func NewFromConfig(ctx context.Context, cfg Config) (ContentStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 store requires a bucket")
		}
		return NewS3Store(ctx, cfg)
	case "gateway":
		if cfg.GatewayURL == "" {
			return nil, fmt.Errorf("gateway store requires a url")
		}
		return NewGatewayStore(cfg.GatewayURL), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
