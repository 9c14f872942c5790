package briefs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"collabscout/internal/llmclient"
	"collabscout/internal/llmclient/prompt"
	"collabscout/internal/orchestrator"
	"collabscout/internal/store"
)

func fakeBriefLLMServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		})
		w.Write(body)
	}))
}

const validBriefJSON = `{
  "title": "Pairing alpha and beta",
  "concept": "Both provide vector search; a shared adapter layer would let users move between them.",
  "repos": [
    {"full_name": "octocat/alpha", "why_it_fits": "strong API surface", "integration_role": "primary index", "outreach_message": "hello alpha"},
    {"full_name": "octocat/beta", "why_it_fits": "complementary SDK", "integration_role": "client library", "outreach_message": "hello beta"}
  ]
}`

func seedAnalysis(t *testing.T, st *store.Store, runID, fullName string, finalScore, collab float64, topics, surface []string) int64 {
	t.Helper()
	ctx := context.Background()
	repoID, err := st.UpsertRepo(ctx, &store.Repo{FullName: fullName, Topics: topics, Language: "Go", LastSeenRunID: runID})
	require.NoError(t, err)

	var out llmclient.RepoAnalysisOutput
	out.Repo.FullName = fullName
	out.Scores.Interestingness = 0.8
	out.Scores.Novelty = 0.7
	out.Scores.CollaborationPotential = collab
	out.Signals.ProblemSummary = "vector database similarity search"
	out.Signals.IntegrationSurface = surface
	out.Keywords.Primary = []string{"vector database"}
	outputJSON, err := json.Marshal(out)
	require.NoError(t, err)

	err = st.CreateAnalysis(ctx, &store.Analysis{
		ID: uuid.NewString(), RunID: runID, RepoID: repoID, Model: "test-model",
		PromptID: "repo_analysis", PromptVersion: 1,
		InputSnapshotJSON: "{}", OutputJSON: string(outputJSON),
		LLMScoresJSON: "{}", FinalScore: finalScore, ReasonsJSON: "{}",
	})
	require.NoError(t, err)
	return repoID
}

func TestGenerateBriefsSynthesizesBriefForQualifyingNonOverlappingPair(t *testing.T) {
	llm := fakeBriefLLMServer(t, validBriefJSON)
	defer llm.Close()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	runID := uuid.NewString()
	ctx := context.Background()
	ro, err := orchestrator.New(ctx, st, zap.NewNop(), runID, map[string]string{"query": "vector database"}, "hash")
	require.NoError(t, err)

	seedAnalysis(t, st, runID, "octocat/alpha", 0.80, 0.75, []string{"vector"}, []string{"API"})
	seedAnalysis(t, st, runID, "octocat/beta", 0.78, 0.70, []string{"gardening"}, []string{"CLI"})

	llmc := llmclient.New(llm.URL, "key")
	registry := prompt.NewRegistry()
	engine := NewEngine(llmc, registry, DefaultPolicy(), ro)

	result, err := engine.GenerateBriefs(ctx, EngineOptions{HistoryCandidates: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CandidatesConsidered)
	assert.Equal(t, 1, result.BriefsGenerated)

	briefs, err := st.BriefsByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, briefs, 1)
	assert.Contains(t, briefs[0].Outreach, "Manual review required")
}

func TestGenerateBriefsExcludesRepoBelowCollabPotentialThreshold(t *testing.T) {
	llm := fakeBriefLLMServer(t, validBriefJSON)
	defer llm.Close()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	runID := uuid.NewString()
	ctx := context.Background()
	ro, err := orchestrator.New(ctx, st, zap.NewNop(), runID, map[string]string{"query": "vector database"}, "hash")
	require.NoError(t, err)

	seedAnalysis(t, st, runID, "octocat/alpha", 0.80, 0.75, []string{"vector"}, []string{"API"})
	seedAnalysis(t, st, runID, "octocat/low-collab", 0.80, 0.10, []string{"gardening"}, []string{"CLI"})

	llmc := llmclient.New(llm.URL, "key")
	registry := prompt.NewRegistry()
	engine := NewEngine(llmc, registry, DefaultPolicy(), ro)

	result, err := engine.GenerateBriefs(ctx, EngineOptions{HistoryCandidates: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CandidatesConsidered)
	assert.Equal(t, 0, result.BriefsGenerated)
}

func TestGenerateBriefsRejectsCompetitorPairWithoutInteropTrigger(t *testing.T) {
	llm := fakeBriefLLMServer(t, validBriefJSON)
	defer llm.Close()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	runID := uuid.NewString()
	ctx := context.Background()
	ro, err := orchestrator.New(ctx, st, zap.NewNop(), runID, map[string]string{"query": "vector database"}, "hash")
	require.NoError(t, err)

	seedAnalysis(t, st, runID, "octocat/alpha", 0.80, 0.75, []string{"vector", "database"}, []string{"API", "gRPC", "REST"})
	seedAnalysis(t, st, runID, "octocat/beta", 0.78, 0.70, []string{"vector", "database"}, []string{"API", "gRPC", "REST"})

	llmc := llmclient.New(llm.URL, "key")
	registry := prompt.NewRegistry()
	engine := NewEngine(llmc, registry, DefaultPolicy(), ro)

	result, err := engine.GenerateBriefs(ctx, EngineOptions{HistoryCandidates: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PairsRejected)
	assert.Equal(t, 0, result.BriefsGenerated)
}
