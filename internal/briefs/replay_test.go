package briefs

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabscout/internal/llmclient"
	"collabscout/internal/store"
)

func TestReplayReportsZeroChangedWhenPolicyUnchanged(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	runID := uuid.NewString()
	repoID, err := st.UpsertRepo(ctx, &store.Repo{FullName: "octocat/alpha", LastSeenRunID: runID})
	require.NoError(t, err)

	var out llmclient.RepoAnalysisOutput
	out.Scores.Interestingness = 0.8
	out.Scores.Novelty = 0.7
	out.Scores.CollaborationPotential = 0.75
	out.Signals.IntegrationSurface = []string{"API", "SDK"}
	empty := []string{}
	out.Signals.RiskFlags = &empty
	outputJSON, _ := json.Marshal(out)
	scoresJSON, _ := json.Marshal(out.Scores)

	finalScore := FinalScore(DefaultPolicy(), &out)
	require.NoError(t, st.CreateAnalysis(ctx, &store.Analysis{
		ID: uuid.NewString(), RunID: runID, RepoID: repoID, Model: "test-model",
		PromptID: "repo_analysis", PromptVersion: 1,
		InputSnapshotJSON: "{}", OutputJSON: string(outputJSON),
		LLMScoresJSON: string(scoresJSON), FinalScore: finalScore, ReasonsJSON: "{}",
	}))

	result, err := Replay(ctx, st, runID, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Replayed)
	assert.Equal(t, 0, result.Changed)
	assert.Equal(t, 1, result.Unchanged)
	assert.Empty(t, result.Diffs)
}

func TestReplayDetectsChangeUnderDifferentPolicy(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	runID := uuid.NewString()
	repoID, err := st.UpsertRepo(ctx, &store.Repo{FullName: "octocat/alpha", LastSeenRunID: runID})
	require.NoError(t, err)

	var out llmclient.RepoAnalysisOutput
	out.Scores.Interestingness = 0.8
	out.Scores.Novelty = 0.7
	out.Scores.CollaborationPotential = 0.75
	outputJSON, _ := json.Marshal(out)
	scoresJSON, _ := json.Marshal(out.Scores)

	finalScore := FinalScore(DefaultPolicy(), &out)
	require.NoError(t, st.CreateAnalysis(ctx, &store.Analysis{
		ID: uuid.NewString(), RunID: runID, RepoID: repoID, Model: "test-model",
		PromptID: "repo_analysis", PromptVersion: 1,
		InputSnapshotJSON: "{}", OutputJSON: string(outputJSON),
		LLMScoresJSON: string(scoresJSON), FinalScore: finalScore, ReasonsJSON: "{}",
	}))

	skewedPolicy := DefaultPolicy()
	skewedPolicy.Weights.Interestingness = 0.9
	skewedPolicy.Weights.Novelty = 0.05
	skewedPolicy.Weights.CollaborationPotential = 0.05
	skewedPolicy.Weights.SignalsBonus = 0

	result, err := Replay(ctx, st, runID, skewedPolicy)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Changed)
	require.Len(t, result.Diffs, 1)
	assert.Equal(t, repoID, result.Diffs[0].RepoID)
}
