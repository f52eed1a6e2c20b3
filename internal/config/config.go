// Package config handles configuration for the sync daemon, including
// defaults, JSON overlay, and command-line flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/feedsync/internal/merge"
	"github.com/dmitrijs2005/feedsync/internal/store"
)

// Config holds runtime settings for the feedsync daemon.
//
// Fields:
//   - AdminAddr: bind address for the local admin HTTP endpoint.
//   - StateDBPath: path of the sqlite state database.
//   - StoreType: content store backend ("memory", "s3" or "gateway").
//   - GatewayURL: base URL of the node gateway (gateway backend).
//   - S3Bucket / S3Prefix / S3Region / S3Endpoint: object storage settings.
//   - S3AccessKey / S3SecretKey: static credentials for the S3 backend.
//   - InsertionDelay: how long content must settle before publishing.
//   - PublishPollInterval: change-detector poll cadence.
//   - ActiveWindow: documents updated within this window are watched with
//     high priority.
//   - MaxRemotePosts / MaxRemoteReplies / RemoteExpiry: retention bounds
//     for followed documents.
type Config struct {
	AdminAddr           string
	StateDBPath         string
	StoreType           string
	GatewayURL          string
	S3Bucket            string
	S3Prefix            string
	S3Region            string
	S3Endpoint          string
	S3AccessKey         string
	S3SecretKey         string
	InsertionDelay      time.Duration
	PublishPollInterval time.Duration
	ActiveWindow        time.Duration
	MaxRemotePosts      int
	MaxRemoteReplies    int
	RemoteExpiry        time.Duration
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: The memory store loses everything on restart; point StoreType at a
// real backend for anything durable.
func (c *Config) LoadDefaults() {
	c.AdminAddr = ":8680"
	c.StateDBPath = "feedsync.db"
	c.StoreType = "memory"
	c.GatewayURL = "http://127.0.0.1:8670"
	c.S3Bucket = "feeds"
	c.S3Region = "us-east-1"
	c.InsertionDelay = 60 * time.Second
	c.PublishPollInterval = 1 * time.Second
	c.ActiveWindow = 7 * 24 * time.Hour
	c.MaxRemotePosts = 50
	c.MaxRemoteReplies = 50
	c.RemoteExpiry = 30 * 24 * time.Hour
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// StoreConfig maps the flat daemon settings onto the content store config.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Type:        c.StoreType,
		S3Bucket:    c.S3Bucket,
		S3Prefix:    c.S3Prefix,
		S3Region:    c.S3Region,
		S3Endpoint:  c.S3Endpoint,
		S3AccessKey: c.S3AccessKey,
		S3SecretKey: c.S3SecretKey,
		GatewayURL:  c.GatewayURL,
	}
}

// MergeLimits maps the retention settings onto the merge engine limits.
func (c *Config) MergeLimits() merge.Limits {
	return merge.Limits{
		MaxRemotePosts:   c.MaxRemotePosts,
		MaxRemoteReplies: c.MaxRemoteReplies,
		RemoteExpiry:     c.RemoteExpiry,
	}
}
