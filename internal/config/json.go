package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/feedsync/internal/flagx"
	"github.com/dmitrijs2005/feedsync/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "60s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	AdminAddr           string         `json:"admin_addr"`
	StateDBPath         string         `json:"state_db_path"`
	StoreType           string         `json:"store_type"`
	GatewayURL          string         `json:"gateway_url"`
	S3Bucket            string         `json:"s3_bucket"`
	S3Prefix            string         `json:"s3_prefix"`
	S3Region            string         `json:"s3_region"`
	S3Endpoint          string         `json:"s3_endpoint"`
	S3AccessKey         string         `json:"s3_access_key"`
	S3SecretKey         string         `json:"s3_secret_key"`
	InsertionDelay      timex.Duration `json:"insertion_delay"`
	PublishPollInterval timex.Duration `json:"publish_poll_interval"`
	ActiveWindow        timex.Duration `json:"active_window"`
	MaxRemotePosts      int            `json:"max_remote_posts"`
	MaxRemoteReplies    int            `json:"max_remote_replies"`
	RemoteExpiry        timex.Duration `json:"remote_expiry"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path is taken from the -c or -config command-line flags;
// if neither is set, no file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.AdminAddr = c.AdminAddr
	config.StateDBPath = c.StateDBPath
	config.StoreType = c.StoreType
	config.GatewayURL = c.GatewayURL
	config.S3Bucket = c.S3Bucket
	config.S3Prefix = c.S3Prefix
	config.S3Region = c.S3Region
	config.S3Endpoint = c.S3Endpoint
	config.S3AccessKey = c.S3AccessKey
	config.S3SecretKey = c.S3SecretKey
	config.InsertionDelay = time.Duration(c.InsertionDelay.Duration)
	config.PublishPollInterval = time.Duration(c.PublishPollInterval.Duration)
	config.ActiveWindow = time.Duration(c.ActiveWindow.Duration)
	config.MaxRemotePosts = c.MaxRemotePosts
	config.MaxRemoteReplies = c.MaxRemoteReplies
	config.RemoteExpiry = time.Duration(c.RemoteExpiry.Duration)
}
