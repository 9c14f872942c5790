package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"collabscout/internal/briefs"
	"collabscout/internal/llmclient"
	"collabscout/internal/llmclient/prompt"
	"collabscout/internal/orchestrator"
	"collabscout/internal/store"
)

// BriefsGenerateResult is briefs:generate's line-delimited JSON output.
type BriefsGenerateResult struct {
	RunID                 string `json:"run_id"`
	CandidatesConsidered  int    `json:"candidates_considered"`
	PairsRejected         int    `json:"pairs_rejected"`
	PairsAllowedException int    `json:"pairs_allowed_exception"`
	BriefsGenerated       int    `json:"briefs_generated"`
	Shortlisted           int    `json:"shortlisted"`
	RejectedByThreshold   int    `json:"rejected_by_threshold"`
}

var (
	briefsRunID            string
	briefsMinScore         float64
	briefsMaxBriefs        int
	briefsOverlapThreshold float64
	briefsOverlapPenalty   float64
	briefsHistoryCandidates int
	briefsAllowTriples     bool
)

var briefsGenerateCmd = &cobra.Command{
	Use:   "briefs:generate",
	Short: "Group qualifying analyses into collaboration briefs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()

		if briefsRunID == "" {
			return fmt.Errorf("--run-id is required")
		}
		if err := app.cfg.RequireLive(); err != nil {
			return err
		}
		if _, err := st.GetRun(ctx, briefsRunID); err != nil {
			return fmt.Errorf("run %s not found: %w", briefsRunID, err)
		}

		ro, err := orchestratorForExistingRun(ctx, st, briefsRunID)
		if err != nil {
			return err
		}

		policy, err := loadPolicy()
		if err != nil {
			return err
		}
		llm := llmclient.New(defaultOpenRouterBaseURL, app.cfg.OpenRouterToken)
		engine := briefs.NewEngine(llm, prompt.NewRegistry(), policy, ro)

		overlapThreshold, overlapPenalty, historyCandidates := briefsOverlapThreshold, briefsOverlapPenalty, briefsHistoryCandidates
		if overlapThreshold == 0 {
			overlapThreshold = app.cfg.OverlapThreshold
		}
		if overlapPenalty == 0 {
			overlapPenalty = app.cfg.OverlapExceptionPenalty
		}
		if historyCandidates == 0 {
			historyCandidates = app.cfg.HistoryCandidates
		}

		result, err := engine.GenerateBriefs(ctx, briefs.EngineOptions{
			MinBriefScore:     briefsMinScore,
			MaxBriefs:         briefsMaxBriefs,
			OverlapThreshold:  overlapThreshold,
			OverlapPenalty:    overlapPenalty,
			HistoryCandidates: historyCandidates,
			AllowTriples:      briefsAllowTriples,
			Model:             app.cfg.Model,
		})
		if err != nil {
			return err
		}

		return emitJSON(BriefsGenerateResult{
			RunID: briefsRunID, CandidatesConsidered: result.CandidatesConsidered,
			PairsRejected: result.PairsRejected, PairsAllowedException: result.PairsAllowedException,
			BriefsGenerated: result.BriefsGenerated, Shortlisted: result.Shortlisted,
			RejectedByThreshold: result.RejectedByThreshold,
		})
	},
}

// orchestratorForExistingRun builds a RunOrchestrator bound to a run that
// already exists, for briefs:generate, which operates on a prior scout:run
// invocation rather than creating a new one.
func orchestratorForExistingRun(ctx context.Context, st *store.Store, runID string) (*orchestrator.RunOrchestrator, error) {
	return orchestrator.Attach(st, app.logger, runID), nil
}

// BriefsExportResult is briefs:export's line-delimited JSON output.
type BriefsExportResult struct {
	RunID            string `json:"run_id"`
	OutDir           string `json:"out_dir"`
	Exported         int    `json:"exported"`
	TopOpportunities int    `json:"top_opportunities"`
}

var (
	exportRunID string
	exportOut   string
	exportTopN  int
)

var briefsExportCmd = &cobra.Command{
	Use:   "briefs:export",
	Short: "Write shortlisted briefs to markdown files for manual review",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()

		if exportRunID == "" {
			return fmt.Errorf("--run-id is required")
		}
		if exportOut == "" {
			return fmt.Errorf("--out is required")
		}

		all, err := st.BriefsByRun(ctx, exportRunID)
		if err != nil {
			return err
		}

		var shortlisted []store.Brief
		for _, b := range all {
			if b.Status == store.BriefShortlisted {
				shortlisted = append(shortlisted, b)
			}
		}

		if err := exportBriefs(exportRunID, exportOut, shortlisted, exportTopN); err != nil {
			return err
		}

		topN := exportTopN
		if topN > len(shortlisted) {
			topN = len(shortlisted)
		}
		return emitJSON(BriefsExportResult{
			RunID: exportRunID, OutDir: exportOut, Exported: len(shortlisted), TopOpportunities: topN,
		})
	},
}

// exportBriefs writes the out/index.md, out/briefs/{id}.md,
// out/briefs/{id}_outreach.md, and out/TOP_OPPORTUNITY_{n}.md layout
// described in spec.md §6, briefs already ordered score DESC, id ASC by
// BriefsByRun.
func exportBriefs(runID, outDir string, shortlisted []store.Brief, topN int) error {
	briefsDir := filepath.Join(outDir, "briefs")
	if err := os.MkdirAll(briefsDir, 0o755); err != nil {
		return fmt.Errorf("create briefs dir: %w", err)
	}

	var index []byte
	index = append(index, []byte(fmt.Sprintf("# Collaboration Scout briefs for run %s\n\n", runID))...)
	for _, b := range shortlisted {
		index = append(index, []byte(fmt.Sprintf("- [%s](briefs/%s.md) (score %.2f)\n", b.ID, b.ID, b.Score))...)

		if err := os.WriteFile(filepath.Join(briefsDir, b.ID+".md"), []byte(b.Markdown), 0o644); err != nil {
			return fmt.Errorf("write brief %s: %w", b.ID, err)
		}
		if err := os.WriteFile(filepath.Join(briefsDir, b.ID+"_outreach.md"), []byte(b.Outreach), 0o644); err != nil {
			return fmt.Errorf("write outreach %s: %w", b.ID, err)
		}
	}
	if err := os.WriteFile(filepath.Join(outDir, "index.md"), index, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	for i, b := range shortlisted {
		if i >= topN {
			break
		}
		name := fmt.Sprintf("TOP_OPPORTUNITY_%d.md", i+1)
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(b.Markdown), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func init() {
	briefsGenerateCmd.Flags().StringVar(&briefsRunID, "run-id", "", "run whose analyses should be grouped into briefs (required)")
	briefsGenerateCmd.Flags().Float64Var(&briefsMinScore, "min-score", 0, "override the minimum brief score (0 = use policy default)")
	briefsGenerateCmd.Flags().IntVar(&briefsMaxBriefs, "max-briefs", 20, "stop after generating this many briefs")
	briefsGenerateCmd.Flags().Float64Var(&briefsOverlapThreshold, "overlap-threshold", 0, "override the functional-overlap rejection threshold (0 = use config default)")
	briefsGenerateCmd.Flags().Float64Var(&briefsOverlapPenalty, "overlap-penalty", 0, "override the interop-exception overlap penalty (0 = use config default)")
	briefsGenerateCmd.Flags().IntVar(&briefsHistoryCandidates, "history-candidates", 0, "override how many historical analyses feed the candidate pool (0 = use config default)")
	briefsGenerateCmd.Flags().BoolVar(&briefsAllowTriples, "allow-triples", false, "also consider three-repo candidate groups")

	briefsExportCmd.Flags().StringVar(&exportRunID, "run-id", "", "run whose shortlisted briefs should be exported (required)")
	briefsExportCmd.Flags().StringVar(&exportOut, "out", "", "output directory (required)")
	briefsExportCmd.Flags().IntVar(&exportTopN, "top-opportunities", 3, "number of TOP_OPPORTUNITY_N.md files to write")
}
