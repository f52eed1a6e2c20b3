package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/feedsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   admin HTTP bind address (e.g., ":8680")
//	-d string   sqlite state database path
//	-s string   content store type ("memory", "s3" or "gateway")
//	-g string   node gateway base URL
//	-b string   S3 bucket name
//	-x string   S3 key prefix
//	-r string   S3 region
//	-e string   S3 endpoint (e.g., "http://127.0.0.1:9000/")
//	-u string   S3 access key
//	-p string   S3 secret key
//	-i int      insertion delay, seconds
//	-w int      active watch window, hours
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers and then converted to
//     time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-g", "-b", "-x", "-r", "-e", "-u", "-p", "-i", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.AdminAddr, "a", config.AdminAddr, "admin HTTP bind address")
	fs.StringVar(&config.StateDBPath, "d", config.StateDBPath, "state database path")
	fs.StringVar(&config.StoreType, "s", config.StoreType, "content store type")
	fs.StringVar(&config.GatewayURL, "g", config.GatewayURL, "node gateway base URL")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Prefix, "x", config.S3Prefix, "S3 key prefix")
	fs.StringVar(&config.S3Region, "r", config.S3Region, "S3 region")
	fs.StringVar(&config.S3Endpoint, "e", config.S3Endpoint, "S3 endpoint")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")

	insertionDelay := fs.Int("i", int(config.InsertionDelay.Seconds()), "insertion delay (in seconds)")
	activeWindow := fs.Int("w", int(config.ActiveWindow.Hours()), "active watch window (in hours)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.InsertionDelay = time.Duration(*insertionDelay) * time.Second
	config.ActiveWindow = time.Duration(*activeWindow) * time.Hour
}
