package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"collabscout/internal/store"
)

func newTestOrchestrator(t *testing.T) (*RunOrchestrator, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	runID := uuid.NewString()
	ro, err := New(context.Background(), st, zap.NewNop(), runID, map[string]string{"query": "vector db"}, "hash1234abcd5678")
	require.NoError(t, err)
	return ro, st
}

func TestNewCreatesExactlyOneRunRow(t *testing.T) {
	ro, st := newTestOrchestrator(t)
	run, err := st.GetRun(context.Background(), ro.RunID)
	require.NoError(t, err)
	assert.Equal(t, ro.RunID, run.ID)
}

func TestStepLifecycleWritesStartedAndFinishedAuditEvents(t *testing.T) {
	ro, st := newTestOrchestrator(t)
	ctx := context.Background()

	handle, err := ro.StartStep(ctx, uuid.NewString(), StepInitRun)
	require.NoError(t, err)
	require.NoError(t, handle.Finish(ctx, store.StepSuccess, map[string]any{"duration_ms": 5}))

	events, err := st.AuditEventsByRun(ctx, ro.RunID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "step.started", events[0].Event)
	assert.Equal(t, "step.finished", events[1].Event)
}

func TestFinishFailedStepWritesStepFailedEvent(t *testing.T) {
	ro, st := newTestOrchestrator(t)
	ctx := context.Background()

	handle, err := ro.StartStep(ctx, uuid.NewString(), StepLLMRepoAnalysis)
	require.NoError(t, err)
	require.NoError(t, handle.Finish(ctx, store.StepFailed, nil))

	events, err := st.AuditEventsByRun(ctx, ro.RunID)
	require.NoError(t, err)
	assert.Equal(t, "step.failed", events[len(events)-1].Event)
}

func TestLogAuditRedactsSecretShapedData(t *testing.T) {
	ro, st := newTestOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, ro.LogAudit(ctx, "info", "github_search_pass1", "test.event", "msg",
		map[string]any{"token": "SENTINEL_TOKEN", "count": float64(3)}))

	events, err := st.AuditEventsByRun(ctx, ro.RunID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.NotContains(t, last.Data, "SENTINEL_TOKEN")
	assert.Equal(t, redactMask, last.Data["token"])
}

const redactMask = "[REDACTED]"
