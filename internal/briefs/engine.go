package briefs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"collabscout/internal/llmclient"
	"collabscout/internal/llmclient/prompt"
	"collabscout/internal/orchestrator"
	"collabscout/internal/store"
)

const briefSynthesisSystemPrompt = "You produce a single JSON object response that strictly matches the requested schema. Never include prose outside the JSON object."

const outreachBanner = "Manual review required. This tool does not post automatically.\n\n"

const defaultMaxCombos = 200
const defaultMaxBriefs = 50

// EngineOptions are the Brief Engine's tunable knobs, sourced from the
// CLI's `briefs:generate` flags over the default policy's thresholds.
type EngineOptions struct {
	MinRepoScore      float64
	MinCollabPotential float64
	OverlapThreshold  float64
	OverlapPenalty    float64
	HistoryCandidates int
	MaxCombos         int
	MaxBriefs         int
	MinBriefScore     float64
	AllowTriples      bool
	Model             string
	OwnRepoIDs        map[int64]bool
}

func (o EngineOptions) withDefaults(policy *Policy) EngineOptions {
	if o.MinRepoScore == 0 {
		o.MinRepoScore = policy.Thresholds.MinRepoScoreForBrief
	}
	if o.MinCollabPotential == 0 {
		o.MinCollabPotential = policy.Thresholds.MinCollaborationPotentialForBrief
	}
	if o.OverlapThreshold == 0 {
		o.OverlapThreshold = 0.70
	}
	if o.OverlapPenalty == 0 {
		o.OverlapPenalty = 0.10
	}
	if o.HistoryCandidates == 0 {
		o.HistoryCandidates = 100
	}
	if o.MaxCombos == 0 {
		o.MaxCombos = defaultMaxCombos
	}
	if o.MaxBriefs == 0 {
		o.MaxBriefs = defaultMaxBriefs
	}
	if o.MinBriefScore == 0 {
		o.MinBriefScore = policy.Thresholds.MinBriefScore
	}
	return o
}

// EngineResult summarizes one briefs:generate invocation.
type EngineResult struct {
	CandidatesConsidered int
	PairsRejected        int
	PairsAllowedException int
	BriefsGenerated      int
	Shortlisted          int
	RejectedByThreshold  int
}

// repoCandidate bundles one repo's analysis, function signature, and
// overlap inputs so candidate generation doesn't repeatedly hit the store.
type repoCandidate struct {
	analysis  store.Analysis
	repo      *store.Repo
	output    llmclient.RepoAnalysisOutput
	signature FunctionSignature
}

// Engine runs candidate grouping, the functional-overlap filter, and
// brief synthesis for one run, threaded through an explicit
// RunOrchestrator exactly like the Discovery Pipeline.
type Engine struct {
	llm     *llmclient.Client
	prompts *prompt.Registry
	policy  *Policy
	ro      *orchestrator.RunOrchestrator
}

// NewEngine builds an Engine bound to one run's orchestrator.
func NewEngine(llm *llmclient.Client, prompts *prompt.Registry, policy *Policy, ro *orchestrator.RunOrchestrator) *Engine {
	return &Engine{llm: llm, prompts: prompts, policy: policy, ro: ro}
}

// GenerateBriefs runs spec.md §4.G end to end: candidate generation,
// the competitor filter, LLM brief synthesis, deterministic scoring, and
// the threshold gate.
func (e *Engine) GenerateBriefs(ctx context.Context, opts EngineOptions) (*EngineResult, error) {
	opts = opts.withDefaults(e.policy)
	result := &EngineResult{}

	handle, err := e.ro.StartStep(ctx, uuid.NewString(), orchestrator.StepLLMBriefGenerate)
	if err != nil {
		return nil, err
	}

	pool, err := e.buildCandidatePool(ctx, opts)
	if err != nil {
		_ = handle.Finish(ctx, store.StepFailed, nil)
		return nil, err
	}

	groups := generateCombos(pool, opts.AllowTriples, opts.MaxCombos)

	type scoredGroup struct {
		repoIDs  []int64
		members  []repoCandidate
		overlap  float64
	}
	var scored []scoredGroup
	for _, group := range groups {
		ids := make([]int64, len(group))
		for i, m := range group {
			ids[i] = m.analysis.RepoID
		}
		overlap := groupOverlapScore(group)
		scored = append(scored, scoredGroup{repoIDs: ids, members: group, overlap: overlap})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].overlap != scored[j].overlap {
			return scored[i].overlap > scored[j].overlap
		}
		return canonicalRepoIDKey(scored[i].repoIDs) < canonicalRepoIDKey(scored[j].repoIDs)
	})

	shortlistedRepos := map[int64]bool{}

	for _, group := range scored {
		if result.BriefsGenerated >= opts.MaxBriefs {
			break
		}
		if anyShortlisted(group.members, shortlistedRepos, opts.OwnRepoIDs) {
			continue
		}

		result.CandidatesConsidered++

		rejected, penalty := e.filterGroup(ctx, group.members, opts, result)
		if rejected {
			continue
		}

		brief, status, err := e.synthesizeBrief(ctx, group.members, group.overlap, penalty, opts)
		if err != nil {
			_ = handle.Finish(ctx, store.StepFailed, nil)
			return nil, err
		}
		if brief == nil {
			continue
		}

		result.BriefsGenerated++
		if status == store.BriefShortlisted {
			result.Shortlisted++
			for _, m := range group.members {
				shortlistedRepos[m.analysis.RepoID] = true
			}
		} else {
			result.RejectedByThreshold++
		}
	}

	_ = handle.Finish(ctx, store.StepSuccess, map[string]any{
		"candidates_considered": result.CandidatesConsidered,
		"briefs_generated":      result.BriefsGenerated,
		"shortlisted":           result.Shortlisted,
	})
	return result, nil
}

func anyShortlisted(members []repoCandidate, shortlisted, ownRepos map[int64]bool) bool {
	for _, m := range members {
		if ownRepos[m.analysis.RepoID] {
			continue
		}
		if shortlisted[m.analysis.RepoID] {
			return true
		}
	}
	return false
}

// buildCandidatePool gathers qualifying analyses for the run plus
// historical qualifying analyses from other runs, sorted by repo id
// lexicographically for deterministic enumeration.
func (e *Engine) buildCandidatePool(ctx context.Context, opts EngineOptions) ([]repoCandidate, error) {
	analyses, err := e.ro.Store().AnalysesByRun(ctx, e.ro.RunID)
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{}
	var pool []repoCandidate
	for _, a := range analyses {
		cand, ok, err := e.qualify(ctx, a, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			pool = append(pool, cand)
			seen[a.RepoID] = true
		}
	}

	if opts.HistoryCandidates > 0 {
		historical, err := e.ro.Store().TopAnalysesByScore(ctx, e.ro.RunID, seen, opts.HistoryCandidates)
		if err != nil {
			return nil, err
		}
		for _, a := range historical {
			cand, ok, err := e.qualify(ctx, a, opts)
			if err != nil {
				return nil, err
			}
			if ok {
				pool = append(pool, cand)
			}
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return strconv.FormatInt(pool[i].analysis.RepoID, 10) < strconv.FormatInt(pool[j].analysis.RepoID, 10)
	})
	return pool, nil
}

func (e *Engine) qualify(ctx context.Context, a store.Analysis, opts EngineOptions) (repoCandidate, bool, error) {
	var out llmclient.RepoAnalysisOutput
	if err := json.Unmarshal([]byte(a.OutputJSON), &out); err != nil {
		return repoCandidate{}, false, fmt.Errorf("decode stored analysis output for repo %d: %w", a.RepoID, err)
	}
	if a.FinalScore < opts.MinRepoScore || out.Scores.CollaborationPotential < opts.MinCollabPotential {
		return repoCandidate{}, false, nil
	}

	repo, err := e.ro.Store().GetRepo(ctx, a.RepoID)
	if err != nil {
		return repoCandidate{}, false, err
	}

	return repoCandidate{
		analysis:  a,
		repo:      repo,
		output:    out,
		signature: BuildFunctionSignature(a.RepoID, repo.Topics, &out),
	}, true, nil
}

// generateCombos enumerates pairs (and triples, if allowed) from pool,
// stopping at maxCombos total groups.
func generateCombos(pool []repoCandidate, allowTriples bool, maxCombos int) [][]repoCandidate {
	var groups [][]repoCandidate
	n := len(pool)
	for i := 0; i < n && len(groups) < maxCombos; i++ {
		for j := i + 1; j < n && len(groups) < maxCombos; j++ {
			groups = append(groups, []repoCandidate{pool[i], pool[j]})
		}
	}
	if !allowTriples {
		return groups
	}
	for i := 0; i < n && len(groups) < maxCombos; i++ {
		for j := i + 1; j < n && len(groups) < maxCombos; j++ {
			for k := j + 1; k < n && len(groups) < maxCombos; k++ {
				groups = append(groups, []repoCandidate{pool[i], pool[j], pool[k]})
			}
		}
	}
	return groups
}

// groupOverlapScore averages the overlap score of every internal pair in
// the group; for a plain pair this is just that pair's score.
func groupOverlapScore(group []repoCandidate) float64 {
	var total float64
	var pairs int
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			total += PairOverlapScore(overlapInputsFor(group[i]), overlapInputsFor(group[j]))
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return round6(total / float64(pairs))
}

func overlapInputsFor(c repoCandidate) OverlapInputs {
	return OverlapInputs{
		RepoID:             c.analysis.RepoID,
		Topics:             c.repo.Topics,
		Language:           c.repo.Language,
		IntegrationSurface: c.output.Signals.IntegrationSurface,
	}
}

// filterGroup applies the functional-overlap competitor filter to every
// internal pair; one rejected pair rejects the whole group. Returns the
// maximum penalty applied across allowed-with-exception pairs.
func (e *Engine) filterGroup(ctx context.Context, group []repoCandidate, opts EngineOptions, result *EngineResult) (rejected bool, penalty float64) {
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			verdict := FilterPair(opts.OverlapThreshold, opts.OverlapPenalty, group[i].signature, group[j].signature)
			if verdict.Rejected {
				result.PairsRejected++
				_ = e.ro.LogAudit(ctx, "info", orchestrator.StepLLMBriefGenerate, "briefs.pair_rejected_overlap",
					fmt.Sprintf("rejected %s / %s", group[i].repo.FullName, group[j].repo.FullName),
					map[string]any{"functional_overlap": verdict.FunctionalOverlap})
				return true, 0
			}
			if verdict.ExceptionTriggered {
				result.PairsAllowedException++
				_ = e.ro.LogAudit(ctx, "info", orchestrator.StepLLMBriefGenerate, "briefs.pair_allowed_exception",
					fmt.Sprintf("exception for %s / %s", group[i].repo.FullName, group[j].repo.FullName),
					map[string]any{"functional_overlap": verdict.FunctionalOverlap, "reason": verdict.ExceptionReason})
				if verdict.PenaltyApplied > penalty {
					penalty = verdict.PenaltyApplied
				}
			}
		}
	}
	return false, penalty
}

// synthesizeBrief calls the LLM client to draft the brief, validates its
// output, computes the deterministic brief score, and inserts the row.
// A nil brief with nil error means the LLM output failed validation,
// which is logged but not a pipeline error.
func (e *Engine) synthesizeBrief(ctx context.Context, group []repoCandidate, overlapScore, penalty float64, opts EngineOptions) (*store.Brief, string, error) {
	tmpl, err := e.prompts.Load("brief_generate", 1)
	if err != nil {
		return nil, "", fmt.Errorf("load brief_generate prompt: %w", err)
	}

	type repoDescriptor struct {
		FullName           string   `json:"full_name"`
		ProblemSummary     string   `json:"problem_summary"`
		IntegrationSurface []string `json:"integration_surface"`
		PrimaryKeywords    []string `json:"primary_keywords"`
	}
	descriptors := make([]repoDescriptor, len(group))
	for i, m := range group {
		descriptors[i] = repoDescriptor{
			FullName:           m.repo.FullName,
			ProblemSummary:     m.output.Signals.ProblemSummary,
			IntegrationSurface: m.output.Signals.IntegrationSurface,
			PrimaryKeywords:    m.output.Keywords.Primary,
		}
	}
	reposJSON, err := json.Marshal(descriptors)
	if err != nil {
		return nil, "", fmt.Errorf("marshal repos_json: %w", err)
	}

	userPrompt := prompt.Render(tmpl.Body, map[string]string{"repos_json": string(reposJSON)})

	raw, err := e.llm.Complete(ctx, briefSynthesisSystemPrompt, userPrompt, llmclient.CallOptions{
		Model:       opts.Model,
		Temperature: tmpl.Header.ModelDefaults.Temperature,
		MaxTokens:   tmpl.Header.ModelDefaults.MaxTokens,
	})
	if err != nil {
		e.logInvalidBrief(ctx, group, err.Error())
		return nil, "", nil
	}

	var out llmclient.BriefOutput
	b, err := json.Marshal(raw)
	if err == nil {
		err = json.Unmarshal(b, &out)
	}
	if err != nil {
		e.logInvalidBrief(ctx, group, err.Error())
		return nil, "", nil
	}
	if err := out.Validate(); err != nil {
		e.logInvalidBrief(ctx, group, err.Error())
		return nil, "", nil
	}

	var sumFinal, sumCollab float64
	for _, m := range group {
		sumFinal += m.analysis.FinalScore
		sumCollab += m.output.Scores.CollaborationPotential
	}
	avgFinal := sumFinal / float64(len(group))
	avgCollab := sumCollab / float64(len(group))
	clampedOverlap := overlapScore - penalty
	if clampedOverlap < 0 {
		clampedOverlap = 0
	}
	briefScore := round6(0.4*avgFinal + 0.4*avgCollab + 0.2*clampedOverlap)

	status := store.BriefRejectedThreshold
	if briefScore >= opts.MinBriefScore {
		status = store.BriefShortlisted
	}

	repoIDs := make([]int64, len(group))
	for i, m := range group {
		repoIDs[i] = m.analysis.RepoID
	}
	sort.Slice(repoIDs, func(i, j int) bool { return repoIDs[i] < repoIDs[j] })
	repoIDsJSON, _ := json.Marshal(repoIDs)
	contentJSON, _ := json.Marshal(out)

	markdown := renderBriefMarkdown(briefScore, &out)
	outreach := renderOutreach(&out)

	brief := &store.Brief{
		ID: uuid.NewString(), RunID: e.ro.RunID, Score: briefScore,
		RepoIDsJSON: string(repoIDsJSON), ContentJSON: string(contentJSON),
		Markdown: markdown, Outreach: outreach, Status: status,
	}
	if err := e.ro.Store().CreateBrief(ctx, brief); err != nil {
		return nil, "", fmt.Errorf("create brief: %w", err)
	}
	return brief, status, nil
}

func (e *Engine) logInvalidBrief(ctx context.Context, group []repoCandidate, reason string) {
	names := make([]string, len(group))
	for i, m := range group {
		names[i] = m.repo.FullName
	}
	_ = e.ro.LogAudit(ctx, "warn", orchestrator.StepLLMBriefGenerate, "llm.output.invalid_json",
		"brief synthesis invalid", map[string]any{"repos": names, "reason": reason})
}

func renderBriefMarkdown(score float64, out *llmclient.BriefOutput) string {
	md := fmt.Sprintf("# %s\n\n**Score: %.6f**\n\n%s\n\n", out.Title, score, out.Concept)
	for _, r := range out.Repos {
		md += fmt.Sprintf("## %s\n\n- Role: %s\n- Why it fits: %s\n\n", r.FullName, r.IntegrationRole, r.WhyItFits)
	}
	return md
}

func renderOutreach(out *llmclient.BriefOutput) string {
	draft := outreachBanner
	for _, r := range out.Repos {
		draft += fmt.Sprintf("### %s\n\n%s\n\n", r.FullName, r.OutreachMessage)
	}
	return draft
}
