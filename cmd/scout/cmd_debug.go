package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"collabscout/internal/briefs"
)

// DebugReplayResult wraps briefs.ReplayResult with the run id every other
// command's output carries at the top level.
type DebugReplayResult struct {
	RunID         string         `json:"run_id"`
	Replayed      int            `json:"replayed"`
	Changed       int            `json:"changed"`
	Unchanged     int            `json:"unchanged"`
	Diffs         []briefs.Diff  `json:"diffs,omitempty"`
	PolicyVersion string         `json:"policy_version"`
}

var replayRunID string

var debugReplayCmd = &cobra.Command{
	Use:   "debug:replay",
	Short: "Recompute final_score for a run's analyses under the current policy, without mutating anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()

		if replayRunID == "" {
			return fmt.Errorf("--run-id is required")
		}
		if _, err := st.GetRun(ctx, replayRunID); err != nil {
			return fmt.Errorf("run %s not found: %w", replayRunID, err)
		}

		policy, err := loadPolicy()
		if err != nil {
			return err
		}
		result, err := briefs.Replay(ctx, st, replayRunID, policy)
		if err != nil {
			return err
		}

		return emitJSON(DebugReplayResult{
			RunID: replayRunID, Replayed: result.Replayed, Changed: result.Changed,
			Unchanged: result.Unchanged, Diffs: result.Diffs, PolicyVersion: result.PolicyVersion,
		})
	},
}

// DumpRunResult is debug:dump-run's line-delimited JSON output: enough of a
// run's state to debug it without opening the database directly.
type DumpRunResult struct {
	RunID         string `json:"run_id"`
	CreatedAt     string `json:"created_at"`
	ConfigHash    string `json:"config_hash"`
	ArgsJSON      string `json:"args_json"`
	AnalysesCount int    `json:"analyses_count"`
	BriefsCount   int    `json:"briefs_count"`
	AuditCount    int    `json:"audit_event_count"`
}

var dumpRunID string

var debugDumpRunCmd = &cobra.Command{
	Use:   "debug:dump-run",
	Short: "Print a run's metadata and row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()

		if dumpRunID == "" {
			return fmt.Errorf("--run-id is required")
		}
		run, err := st.GetRun(ctx, dumpRunID)
		if err != nil {
			return fmt.Errorf("run %s not found: %w", dumpRunID, err)
		}

		analyses, err := st.AnalysesByRun(ctx, dumpRunID)
		if err != nil {
			return err
		}
		allBriefs, err := st.BriefsByRun(ctx, dumpRunID)
		if err != nil {
			return err
		}
		events, err := st.AuditEventsByRun(ctx, dumpRunID)
		if err != nil {
			return err
		}

		return emitJSON(DumpRunResult{
			RunID: run.ID, CreatedAt: run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			ConfigHash: run.ConfigHash, ArgsJSON: run.ArgsJSON,
			AnalysesCount: len(analyses), BriefsCount: len(allBriefs), AuditCount: len(events),
		})
	},
}

func init() {
	debugReplayCmd.Flags().StringVar(&replayRunID, "run-id", "", "run to replay (required)")
	debugDumpRunCmd.Flags().StringVar(&dumpRunID, "run-id", "", "run to dump (required)")
}
