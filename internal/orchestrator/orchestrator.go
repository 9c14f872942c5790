// Package orchestrator provides the explicit, per-run correlation context
// threaded through the discovery pipeline and brief engine: one
// RunOrchestrator value per invocation, never stored in a package-level
// variable, so concurrent runs are additive rather than excluded by
// construction.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"collabscout/internal/redact"
	"collabscout/internal/store"
)

// Canonical step names, a closed set.
const (
	StepInitRun                = "init_run"
	StepGithubRateLimitSnapshot = "github_rate_limit_snapshot"
	StepGithubSearchPass1       = "github_search_pass1"
	StepHydrateRepoMetadata     = "hydrate_repo_metadata"
	StepHydrateReadme           = "hydrate_readme"
	StepLLMRepoAnalysis         = "llm_repo_analysis"
	StepKeywordAggregate        = "keyword_aggregate"
	StepGithubSearchPass2       = "github_search_pass2"
	StepLLMBriefGenerate        = "llm_brief_generate"
	StepExportMarkdown          = "export_markdown"
)

// RunOrchestrator is created once per invocation and threaded explicitly
// through the discovery pipeline and brief engine; it is never stored in
// package-global state.
type RunOrchestrator struct {
	RunID  string
	store  *store.Store
	logger *zap.Logger
}

// New creates exactly one Run row for this invocation and returns the
// orchestrator that owns it.
func New(ctx context.Context, st *store.Store, logger *zap.Logger, runID string, args any, configHash string) (*RunOrchestrator, error) {
	if _, err := st.CreateRun(ctx, runID, args, configHash); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return &RunOrchestrator{RunID: runID, store: st, logger: logger}, nil
}

// Attach binds an orchestrator to a run created by an earlier invocation,
// for briefs:generate, which adds steps to a run without re-creating its
// Run row.
func Attach(st *store.Store, logger *zap.Logger, runID string) *RunOrchestrator {
	return &RunOrchestrator{RunID: runID, store: st, logger: logger}
}

// StepHandle is a token representing an in-progress phase.
type StepHandle struct {
	id   string
	name string
	ro   *RunOrchestrator
}

// StartStep records the start of a named phase, drawn from the canonical
// closed set above.
func (ro *RunOrchestrator) StartStep(ctx context.Context, id, name string) (*StepHandle, error) {
	if _, err := ro.store.StartStep(ctx, id, ro.RunID, name); err != nil {
		return nil, fmt.Errorf("start step %s: %w", name, err)
	}
	if err := ro.LogAudit(ctx, "info", name, "step.started", "step started", nil); err != nil {
		return nil, err
	}
	return &StepHandle{id: id, name: name, ro: ro}, nil
}

// Finish records the end of the phase, its terminal status, and stats
// (stored as given).
func (h *StepHandle) Finish(ctx context.Context, status string, stats map[string]any) error {
	if stats == nil {
		stats = map[string]any{}
	}

	event := "step.finished"
	if status == store.StepFailed {
		event = "step.failed"
	}

	if err := h.ro.store.FinishStep(ctx, h.id, status, stats); err != nil {
		return fmt.Errorf("finish step %s: %w", h.name, err)
	}
	return h.ro.LogAudit(ctx, levelForStatus(status), h.name, event, fmt.Sprintf("step %s", status), stats)
}

func levelForStatus(status string) string {
	if status == store.StepFailed {
		return "error"
	}
	return "info"
}

// LogAudit redacts data, stamps the run id, and writes an audit row. It
// also mirrors the event to the structured logger at the given level.
func (ro *RunOrchestrator) LogAudit(ctx context.Context, level, scope, event, message string, data map[string]any) error {
	if err := ro.store.LogAudit(ctx, ro.RunID, level, scope, event, message, data); err != nil {
		return fmt.Errorf("log audit event %s: %w", event, err)
	}

	fields := []zap.Field{
		zap.String("run_id", ro.RunID),
		zap.String("scope", scope),
		zap.String("event", event),
	}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", redact.Value(data)))
	}
	switch level {
	case "error", "fatal":
		ro.logger.Error(message, fields...)
	case "warn":
		ro.logger.Warn(message, fields...)
	case "debug", "trace":
		ro.logger.Debug(message, fields...)
	default:
		ro.logger.Info(message, fields...)
	}
	return nil
}

// Store exposes the underlying store for DAO calls that don't go through
// LogAudit, StartStep, or Finish.
func (ro *RunOrchestrator) Store() *store.Store {
	return ro.store
}

// ConfigHash returns the first 16 hex chars of the SHA-256 digest of raw,
// hashed as given; callers pass key-sorted JSON. Exposed here so callers that assemble a run's
// args snapshot and its config hash at the same call site don't need a
// second import purely for hashing.
func ConfigHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}
