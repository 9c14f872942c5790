// Command scout is Collaboration Scout's CLI: repo discovery, LLM analysis,
// brief synthesis, and the maintenance verbs around them, all emitting
// line-delimited JSON so the tool composes with jq and cron alike.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"collabscout/internal/briefs"
	"collabscout/internal/config"
	"collabscout/internal/obslog"
	"collabscout/internal/store"
)

// defaultGithubBaseURL and defaultOpenRouterBaseURL are the provider
// endpoints every command passes to the GitHub and LLM clients, which
// hardcode no endpoint of their own.
const (
	defaultGithubBaseURL     = "https://api.github.com"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultUserAgent         = "collabscout"
	defaultGithubAPIVersion  = "2022-11-28"
)

var (
	configPath string
	policyPath string
	verbose    bool
	timeout    time.Duration
)

// loadPolicy loads the scoring policy from policyPath if set and the file
// exists, falling back to the built-in default policy otherwise.
func loadPolicy() (*briefs.Policy, error) {
	if policyPath == "" {
		return briefs.DefaultPolicy(), nil
	}
	if _, err := os.Stat(policyPath); os.IsNotExist(err) {
		return briefs.DefaultPolicy(), nil
	}
	return briefs.LoadPolicy(policyPath)
}

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Collaboration Scout: discover, score, and brief potential open-source collaborators",
	Long: `Collaboration Scout searches GitHub for candidate repositories, runs each
through an LLM analysis with a deterministic scoring policy on top, groups
promising repos into collaboration briefs, and exports them for manual review.

All output is line-delimited JSON on stdout; every result object about a
run carries run_id at the top level so multiple invocations can be correlated.`,
}

// appContext bundles the dependencies every subcommand needs, built once in
// PersistentPreRunE so individual commands stay focused on their own verb.
type appContext struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

var app appContext

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "scout.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "policies/default.json", "path to the scoring policy JSON file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall command timeout")

	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(scoutRunCmd)
	rootCmd.AddCommand(scoutExpandCmd)
	rootCmd.AddCommand(briefsGenerateCmd)
	rootCmd.AddCommand(briefsExportCmd)
	rootCmd.AddCommand(dbMigrateCmd)
	rootCmd.AddCommand(dbVacuumCmd)
	rootCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(logsPruneCmd)
	rootCmd.AddCommand(debugReplayCmd)
	rootCmd.AddCommand(debugDumpRunCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err := obslog.New(level)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}

		// doctor and db:migrate are the only verbs allowed to run against a
		// database that does not exist yet or cannot be opened; every other
		// verb needs it and will fail loudly below via requireStore.
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			logger.Warn("store open failed", zap.Error(err))
			st = nil
		}

		app = appContext{cfg: cfg, logger: logger, store: st}
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if app.store != nil {
			_ = app.store.Close()
		}
		if app.logger != nil {
			_ = app.logger.Sync()
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func requireStore(cmd *cobra.Command) (*store.Store, error) {
	if app.store == nil {
		return nil, fmt.Errorf("database unavailable: %s", app.cfg.DBPath)
	}
	return app.store, nil
}
