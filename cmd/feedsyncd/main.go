package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dmitrijs2005/feedsync/internal/config"
	"github.com/dmitrijs2005/feedsync/internal/engine"
	"github.com/dmitrijs2005/feedsync/internal/logging"
	"github.com/dmitrijs2005/feedsync/internal/state"
	"github.com/dmitrijs2005/feedsync/internal/store"
	"github.com/dmitrijs2005/feedsync/internal/watch"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes human-readable text on a terminal and JSON lines
// otherwise, so piped daemon output stays machine-parsable.
func newLogger() logging.Logger {
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	return logging.NewSlogLogger(slog.New(handler))
}

var rootCmd = &cobra.Command{
	Use:   "feedsyncd",
	Short: "Decentralized feed synchronization daemon",
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := newLogger()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := state.Open(cfg.StateDBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := state.RunMigrations(ctx, db); err != nil {
			return err
		}

		cs, err := store.NewFromConfig(ctx, cfg.StoreConfig())
		if err != nil {
			return fmt.Errorf("creating content store: %w", err)
		}

		var vw watch.VersionWatch
		if cfg.StoreType == "gateway" {
			gw := watch.NewGatewayWatch(cfg.GatewayURL, log)
			defer gw.Close()
			vw = gw
		} else {
			// no push channel without a gateway, notifications are
			// injected through the admin rescue path only
			vw = watch.NewMemoryWatch()
		}

		eng := engine.New(engine.Options{
			Store:        cs,
			Watch:        vw,
			Repo:         state.NewSQLiteRepository(db),
			Log:          log,
			Limits:       cfg.MergeLimits(),
			AdminAddr:    cfg.AdminAddr,
			PollInterval: cfg.PublishPollInterval,
			ActiveWindow: cfg.ActiveWindow,
		})
		eng.Settings().SetInsertionDelay(cfg.InsertionDelay)

		log.Info(ctx, "starting", "store", cfg.StoreType, "admin", cfg.AdminAddr)
		return eng.Run(ctx)
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the documents the daemon is syncing",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := adminGet(cmd, "/status")
		if err != nil {
			return err
		}

		var statuses []engine.DocumentStatus
		if err := json.Unmarshal(body, &statuses); err != nil {
			return fmt.Errorf("decoding status: %w", err)
		}
		if len(statuses) == 0 {
			fmt.Println("No documents.")
			return nil
		}
		for _, s := range statuses {
			kind := "followed"
			if s.Local {
				kind = "owned"
			}
			modified := ""
			if s.Modified {
				modified = "  [modified]"
			}
			rescue := ""
			if s.RescueError != "" {
				rescue = "  rescue: " + s.RescueError
			}
			fmt.Printf("%s  %-8s  edition:%d  time:%s  posts:%d  replies:%d%s%s\n",
				s.Address, kind, s.Edition,
				time.UnixMilli(s.Time).Format("2006-01-02 15:04:05"),
				s.Posts, s.Replies, modified, rescue,
			)
		}
		return nil
	},
}

// create command
var createCmd = &cobra.Command{
	Use:   "create ADDRESS",
	Short: "Create an owned document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminPost(cmd, "/documents", map[string]any{"address": args[0]}); err != nil {
			return err
		}
		fmt.Printf("Created %s\n", args[0])
		return nil
	},
}

// follow command
var followCmd = &cobra.Command{
	Use:   "follow ADDRESS",
	Short: "Follow a remote document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminPost(cmd, "/follow", map[string]any{"address": args[0]}); err != nil {
			return err
		}
		fmt.Printf("Following %s\n", args[0])
		return nil
	},
}

// unfollow command
var unfollowCmd = &cobra.Command{
	Use:   "unfollow ADDRESS",
	Short: "Stop following a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminPost(cmd, "/unfollow", map[string]any{"address": args[0]}); err != nil {
			return err
		}
		fmt.Printf("Unfollowed %s\n", args[0])
		return nil
	},
}

// rescue command
var rescueCmd = &cobra.Command{
	Use:   "rescue ADDRESS",
	Short: "Recover an older edition of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		edition, _ := cmd.Flags().GetInt64("edition")
		if err := adminPost(cmd, "/rescue", map[string]any{"address": args[0], "edition": edition}); err != nil {
			return err
		}
		if edition > 0 {
			fmt.Printf("Rescue of edition %d triggered for %s\n", edition, args[0])
		} else {
			fmt.Printf("Rescue triggered for %s\n", args[0])
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("output")

		var cfg config.Config
		cfg.LoadDefaults()
		b, err := json.MarshalIndent(map[string]any{
			"admin_addr":            cfg.AdminAddr,
			"state_db_path":         cfg.StateDBPath,
			"store_type":            cfg.StoreType,
			"gateway_url":           cfg.GatewayURL,
			"s3_bucket":             cfg.S3Bucket,
			"s3_region":             cfg.S3Region,
			"insertion_delay":       cfg.InsertionDelay.String(),
			"publish_poll_interval": cfg.PublishPollInterval.String(),
			"active_window":         cfg.ActiveWindow.String(),
			"max_remote_posts":      cfg.MaxRemotePosts,
			"max_remote_replies":    cfg.MaxRemoteReplies,
			"remote_expiry":         cfg.RemoteExpiry.String(),
		}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, append(b, '\n'), 0o600); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}

func adminURL(cmd *cobra.Command, path string) string {
	base, _ := cmd.Flags().GetString("admin")
	return base + path
}

func adminGet(cmd *cobra.Command, path string) ([]byte, error) {
	resp, err := http.Get(adminURL(cmd, path))
	if err != nil {
		return nil, fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("daemon answered %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return body, nil
}

func adminPost(cmd *cobra.Command, path string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(adminURL(cmd, path), "application/json", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon answered %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("admin", "http://127.0.0.1:8680", "Admin endpoint of the running daemon")

	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().StringP("output", "o", "feedsync.json", "Path of the config file to write")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(unfollowCmd)
	rootCmd.AddCommand(rescueCmd)
	rescueCmd.Flags().Int64P("edition", "n", 0, "Edition to recover (default: one before the latest)")
	rootCmd.AddCommand(configCmd)
}
