package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const timeout = 10 * time.Minute

var rootCmd = &cobra.Command{
	Use:           "ledger",
	Short:         "Evidence ledger, rollup, anchoring and key lifecycle tooling",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()
		return nil
	},
}

type rootFlags struct {
	timeout       time.Duration
	backend       string
	bucket        string
	localRoot     string
	deadLetterDir string
	logLevel      string
}

var rootArgs = rootFlags{timeout: timeout}

// clock is swapped for a mock clock in tests.
var clock time2.Clock = time2.DefaultClock

func init() {
	rootCmd.PersistentFlags().DurationVar(&rootArgs.timeout, "timeout", timeout,
		"The length of time to wait before giving up on the operation.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.backend, "backend", "",
		"Blob store backend, localfs or s3. Overrides EVIDENCE_STORAGE_BACKEND.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.bucket, "bucket", "",
		"Bucket holding the ledger. Overrides EVIDENCE_STORAGE_BUCKET.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.localRoot, "local-root", "",
		"Root directory of the localfs backend. Overrides EVIDENCE_STORAGE_LOCAL_ROOT.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.deadLetterDir, "dead-letter-dir", "",
		"Directory of the local dead-letter queue. Overrides EVIDENCE_DEAD_LETTER_DIR.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.logLevel, "log-level", "",
		"Log level. Overrides SERVER_LOGGER_LEVEL.")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		fmt.Fprintln(os.Stderr, "✗", err)
		os.Exit(1)
	}
}

func setupLogger() {
	cfg := loadConfig()

	level := cfg.Logger.Level
	if rootArgs.logLevel != "" {
		level = util.LogLevelFromString(rootArgs.logLevel)
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logger.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.TimeFormat = "15:04:05"
			w.Out = os.Stderr
		}))
	} else {
		log.Logger = log.Output(os.Stderr)
	}
}

// loadConfig reads the environment and applies the root flags on top.
func loadConfig() config.Server {
	cfg := config.DefaultServiceConfigFromEnv()
	if rootArgs.backend != "" {
		cfg.Storage.Backend = rootArgs.backend
	}
	if rootArgs.bucket != "" {
		cfg.Storage.Bucket = rootArgs.bucket
	}
	if rootArgs.localRoot != "" {
		cfg.Storage.LocalRoot = rootArgs.localRoot
	}
	if rootArgs.deadLetterDir != "" {
		cfg.DeadLetter.Dir = rootArgs.deadLetterDir
	}
	return cfg
}

//nolint:ireturn
func openStore(ctx context.Context, cfg config.Server, bucket string) (storage.Store, error) {
	sc := cfg.Storage
	if bucket != "" {
		sc.Bucket = bucket
	}
	store, err := storage.Open(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s bucket %q: %w", sc.Backend, sc.Bucket, err)
	}
	return store, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(rootCmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	return nil
}

func parseDay(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}
