// Package main provides the pubharvest CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/matsen/pubharvest/internal/config"
	"github.com/matsen/pubharvest/internal/service"
	"github.com/matsen/pubharvest/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
	verbose     bool
)

func main() {
	ctx, stop := interruptContext(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

// interruptContext returns a context cancelled by SIGINT or SIGTERM. Commands
// pass it down, so an interrupt stops requests between pages and batches
// and rolls back an open store transaction.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:   "pubharvest",
	Short: "Harvest, deduplicate and cross-match institutional publications",
	Long: `pubharvest collects publication records from OpenAlex, HAL and the
Flora batch API, stores them in a local SQLite database, and matches Flora
records against the OpenAlex/HAL collection for review.

Re-running a harvest only adds records whose ids are not stored yet, so
reviewer annotations are never overwritten.
All commands output JSON by default; use --human for text.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigFile, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.Version = Version
}

// newLogger returns the stderr logger for the current invocation.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// mustLoadConfig loads and validates configuration, exits on error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return cfg
}

// mustOpenDatabase opens the SQLite database, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase(cfg *config.Config) *storage.DB {
	db, err := storage.OpenDB(cfg.Database.Path)
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// mustOpenService loads configuration and opens the store behind a service.
// The returned close function releases the database.
func mustOpenService() (*service.Service, func()) {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	return service.New(cfg, db, newLogger()), func() { db.Close() }
}
