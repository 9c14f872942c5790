package briefs

import (
	"context"
	"encoding/json"
	"fmt"

	"collabscout/internal/llmclient"
	"collabscout/internal/store"
)

// Diff describes one analysis whose recomputed final_score differs from
// the value stored at analysis time.
type Diff struct {
	AnalysisID string
	RepoID     int64
	Stored     float64
	Recomputed float64
}

// ReplayResult is the read-only outcome of recomputing final_score for
// every analysis in a run under a (possibly different) policy.
type ReplayResult struct {
	Replayed      int
	Changed       int
	Unchanged     int
	Diffs         []Diff
	PolicyVersion string
}

// Replay recomputes final_score for every analysis in a run from its
// stored llm_scores_json and output.signals, under policy. It never
// mutates the store and never performs network I/O.
func Replay(ctx context.Context, st *store.Store, runID string, policy *Policy) (*ReplayResult, error) {
	analyses, err := st.AnalysesByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	result := &ReplayResult{PolicyVersion: policy.Version}
	for _, a := range analyses {
		var scores struct {
			Interestingness        float64 `json:"interestingness"`
			Novelty                float64 `json:"novelty"`
			CollaborationPotential float64 `json:"collaboration_potential"`
		}
		if err := json.Unmarshal([]byte(a.LLMScoresJSON), &scores); err != nil {
			return nil, fmt.Errorf("decode llm_scores_json for analysis %s: %w", a.ID, err)
		}

		var out llmclient.RepoAnalysisOutput
		if err := json.Unmarshal([]byte(a.OutputJSON), &out); err != nil {
			return nil, fmt.Errorf("decode output_json for analysis %s: %w", a.ID, err)
		}
		out.Scores.Interestingness = scores.Interestingness
		out.Scores.Novelty = scores.Novelty
		out.Scores.CollaborationPotential = scores.CollaborationPotential

		recomputed := FinalScore(policy, &out)
		result.Replayed++
		if recomputed == a.FinalScore {
			result.Unchanged++
			continue
		}
		result.Changed++
		result.Diffs = append(result.Diffs, Diff{
			AnalysisID: a.ID, RepoID: a.RepoID, Stored: a.FinalScore, Recomputed: recomputed,
		})
	}

	return result, nil
}
