package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"collabscout/internal/discovery"
	"collabscout/internal/ghclient"
	"collabscout/internal/llmclient"
	"collabscout/internal/llmclient/prompt"
	"collabscout/internal/orchestrator"
	"collabscout/internal/store"
)

// buildPipeline wires the live GitHub client, LLM client, prompt registry,
// and scoring policy into one Pipeline bound to a fresh run, exactly as
// scout:run and scout:expand both need it.
func buildPipeline(ctx context.Context, st *store.Store, runID string, args any) (*discovery.Pipeline, *orchestrator.RunOrchestrator, error) {
	if err := app.cfg.RequireLive(); err != nil {
		return nil, nil, err
	}

	ro, err := orchestrator.New(ctx, st, app.logger, runID, args, app.cfg.Hash())
	if err != nil {
		return nil, nil, err
	}

	gh := ghclient.New(defaultGithubBaseURL, app.cfg.GitHubToken, defaultUserAgent, defaultGithubAPIVersion, st)
	llm := llmclient.New(defaultOpenRouterBaseURL, app.cfg.OpenRouterToken)
	prompts := prompt.NewRegistry()
	policy, err := loadPolicy()
	if err != nil {
		return nil, nil, err
	}

	return discovery.New(gh, llm, prompts, policy, ro), ro, nil
}

// ScoutRunResult is scout:run's line-delimited JSON output.
type ScoutRunResult struct {
	RunID           string `json:"run_id"`
	ReposDiscovered int    `json:"repos_discovered"`
	Analyzed        int    `json:"analyzed"`
	Failed          int    `json:"failed"`
}

var (
	runQuery        string
	runDays         int
	runStars        int
	runMaxStars     int
	runTopN         int
	runLanguage     string
	runIncludeForks bool
	runModel        string
	runDry          bool
)

var scoutRunCmd = &cobra.Command{
	Use:   "scout:run",
	Short: "Run pass 1: search, hydrate, and analyze a fresh batch of repos",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()

		if runQuery == "" {
			return fmt.Errorf("--query is required")
		}
		model := runModel
		if model == "" {
			model = app.cfg.Model
		}

		runID := uuid.NewString()
		runArgs := map[string]any{
			"query": runQuery, "days": runDays, "stars": runStars, "max_stars": runMaxStars,
			"top_n": runTopN, "language": runLanguage, "include_forks": runIncludeForks,
			"model": model, "dry": runDry,
		}

		if runDry {
			return emitJSON(ScoutRunResult{RunID: runID})
		}

		pipeline, _, err := buildPipeline(ctx, st, runID, runArgs)
		if err != nil {
			return err
		}

		result, err := pipeline.RunPass1(ctx, discovery.Pass1Params{
			Query: runQuery, Days: runDays, Stars: runStars, MaxStars: runMaxStars,
			TopN: runTopN, Language: runLanguage, IncludeForks: runIncludeForks, Model: model,
		})
		if err != nil {
			return err
		}

		return emitJSON(ScoutRunResult{
			RunID: runID, ReposDiscovered: result.ReposDiscovered,
			Analyzed: result.Analyzed, Failed: result.Failed,
		})
	},
}

// ScoutExpandResult is scout:expand's line-delimited JSON output.
type ScoutExpandResult struct {
	RunID          string `json:"run_id"`
	QueriesIssued  int    `json:"queries_issued"`
	NewRepos       int    `json:"new_repos"`
	NewAnalyses    int    `json:"new_analyses"`
	LinkedExisting int    `json:"linked_existing"`
	Capped         bool   `json:"capped"`
	CapReason      string `json:"cap_reason,omitempty"`
}

var (
	expandRunID        string
	expandPass2Stars   int
	expandPass2MaxStars int
	expandMaxQueries   int
)

var scoutExpandCmd = &cobra.Command{
	Use:   "scout:expand",
	Short: "Run pass 2: re-search using aggregated keywords from an existing run",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()

		if expandRunID == "" {
			return fmt.Errorf("--run-id is required")
		}
		if _, err := st.GetRun(ctx, expandRunID); err != nil {
			return fmt.Errorf("run %s not found: %w", expandRunID, err)
		}

		runArgs := map[string]any{
			"expand_of": expandRunID, "pass2_stars": expandPass2Stars,
			"pass2_max_stars": expandPass2MaxStars, "max_queries": expandMaxQueries,
		}
		runID := uuid.NewString()

		pipeline, _, err := buildPipeline(ctx, st, runID, runArgs)
		if err != nil {
			return err
		}

		result, err := pipeline.RunPass2(ctx, discovery.Pass2Params{
			MaxQueries: expandMaxQueries, Pass2Stars: expandPass2Stars, Pass2MaxStars: expandPass2MaxStars,
			Model: app.cfg.Model,
		})
		if err != nil {
			return err
		}

		return emitJSON(ScoutExpandResult{
			RunID: runID, QueriesIssued: result.QueriesIssued, NewRepos: result.NewRepos,
			NewAnalyses: result.NewAnalyses, LinkedExisting: result.LinkedExisting,
			Capped: result.Capped, CapReason: result.CapReason,
		})
	},
}

func init() {
	scoutRunCmd.Flags().StringVar(&runQuery, "query", "", "GitHub search query terms (required)")
	scoutRunCmd.Flags().IntVar(&runDays, "days", 180, "only repos pushed within the last N days")
	scoutRunCmd.Flags().IntVar(&runStars, "stars", 50, "minimum stars")
	scoutRunCmd.Flags().IntVar(&runMaxStars, "max-stars", 0, "maximum stars (0 = no upper bound)")
	scoutRunCmd.Flags().IntVar(&runTopN, "top", 100, "number of search results to hydrate and analyze")
	scoutRunCmd.Flags().StringVar(&runLanguage, "lang", "", "restrict to a single primary language")
	scoutRunCmd.Flags().BoolVar(&runIncludeForks, "include-forks", false, "include forked repos")
	scoutRunCmd.Flags().StringVar(&runModel, "model", "", "override the configured LLM model")
	scoutRunCmd.Flags().BoolVar(&runDry, "dry", false, "validate flags and print a run id without calling GitHub or the LLM")

	scoutExpandCmd.Flags().StringVar(&expandRunID, "run-id", "", "run to expand (required)")
	scoutExpandCmd.Flags().IntVar(&expandPass2Stars, "pass2-stars", 15, "minimum stars for pass-2 queries")
	scoutExpandCmd.Flags().IntVar(&expandPass2MaxStars, "pass2-max-stars", 0, "maximum stars for pass-2 queries")
	scoutExpandCmd.Flags().IntVar(&expandMaxQueries, "max-queries", 10, "maximum number of aggregated-keyword queries to issue")
}
