package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"collabscout/internal/briefs"
	"collabscout/internal/ghclient"
	"collabscout/internal/llmclient"
	"collabscout/internal/llmclient/prompt"
	"collabscout/internal/orchestrator"
	"collabscout/internal/store"
)

const (
	defaultReadmeExcerptChars = 8000
	defaultKeywordTopK        = 20
	defaultPerPage            = 100

	repoAnalysisSystemPrompt = "You produce a single JSON object response that strictly matches the requested schema. Never include prose outside the JSON object."
)

// Pipeline runs the two-pass discovery process for one run, threading the
// explicit RunOrchestrator (never package-global state) through every step.
type Pipeline struct {
	gh      *ghclient.Client
	llm     *llmclient.Client
	prompts *prompt.Registry
	policy  *briefs.Policy
	ro      *orchestrator.RunOrchestrator
	now     func() time.Time
}

// New builds a Pipeline bound to one run's orchestrator.
func New(gh *ghclient.Client, llm *llmclient.Client, prompts *prompt.Registry, policy *briefs.Policy, ro *orchestrator.RunOrchestrator) *Pipeline {
	return &Pipeline{gh: gh, llm: llm, prompts: prompts, policy: policy, ro: ro, now: time.Now}
}

// Pass1Params describes one pass-1 invocation's tunable knobs.
type Pass1Params struct {
	Query              string
	Days               int
	Stars              int
	MaxStars           int
	TopN               int
	Language           string
	IncludeForks       bool
	Model              string
	ReadmeExcerptChars int
	KeywordTopK        int
}

// Pass1Result summarizes the outcome of one pass-1 run, surfaced in the
// CLI's line-delimited JSON output.
type Pass1Result struct {
	ReposDiscovered int
	Analyzed        int
	Failed          int
}

// RunPass1 executes spec.md §4.F's pass 1: rate-limit snapshot, search,
// repo hydration, README hydration, and LLM analysis of every eligible repo.
func (p *Pipeline) RunPass1(ctx context.Context, params Pass1Params) (*Pass1Result, error) {
	if params.ReadmeExcerptChars == 0 {
		params.ReadmeExcerptChars = defaultReadmeExcerptChars
	}
	if params.TopN == 0 {
		params.TopN = 100
	}

	if err := p.snapshotRateLimit(ctx); err != nil {
		return nil, err
	}

	repoIDs, err := p.searchPass1(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := p.hydrateReadmes(ctx, repoIDs); err != nil {
		return nil, err
	}

	analyzed, failed, err := p.analyzeEligible(ctx, repoIDs, params.Model, params.ReadmeExcerptChars)
	if err != nil {
		return nil, err
	}

	return &Pass1Result{ReposDiscovered: len(repoIDs), Analyzed: analyzed, Failed: failed}, nil
}

func (p *Pipeline) snapshotRateLimit(ctx context.Context) error {
	handle, err := p.ro.StartStep(ctx, uuid.NewString(), orchestrator.StepGithubRateLimitSnapshot)
	if err != nil {
		return err
	}

	status, err := p.gh.RateLimit(ctx)
	if err != nil {
		_ = handle.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
		return fmt.Errorf("rate limit snapshot: %w", err)
	}

	if err := p.ro.Store().RecordRateLimitSnapshot(ctx, p.ro.RunID, status.Resource, status.Limit, status.Remaining, time.Unix(status.ResetUnix, 0)); err != nil {
		_ = handle.Finish(ctx, store.StepFailed, nil)
		return err
	}

	return handle.Finish(ctx, store.StepSuccess, map[string]any{"remaining": status.Remaining})
}

// searchPass1 builds the qualified query, pages through the search endpoint
// up to topN results, and upserts + links every returned repo.
func (p *Pipeline) searchPass1(ctx context.Context, params Pass1Params) ([]int64, error) {
	handle, err := p.ro.StartStep(ctx, uuid.NewString(), orchestrator.StepGithubSearchPass1)
	if err != nil {
		return nil, err
	}

	queryString := BuildQualifiedQuery(SearchParams{
		Query:        params.Query,
		Days:         params.Days,
		Stars:        params.Stars,
		MaxStars:     params.MaxStars,
		Language:     params.Language,
		IncludeForks: params.IncludeForks,
	}, p.now())

	query, err := p.ro.Store().CreateGithubQuery(ctx, uuid.NewString(), p.ro.RunID, 1, queryString, params)
	if err != nil {
		_ = handle.Finish(ctx, store.StepFailed, nil)
		return nil, err
	}

	var repoIDs []int64
	rank := 0
	page := 1
	for len(repoIDs) < params.TopN {
		result, err := p.gh.SearchRepositories(ctx, queryString, page, defaultPerPage)
		if err != nil {
			_ = handle.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
			return nil, fmt.Errorf("search pass 1: %w", err)
		}

		for _, item := range result.Items {
			if len(repoIDs) >= params.TopN {
				break
			}
			repoID, err := p.ro.Store().UpsertRepo(ctx, &store.Repo{
				FullName: item.FullName, Stars: item.Stars, Forks: item.Forks,
				Topics: item.Topics, Language: item.Language, License: item.License,
				PushedAt: item.PushedAt, Archived: item.Archived, Fork: item.Fork,
				LastSeenRunID: p.ro.RunID,
			})
			if err != nil {
				_ = handle.Finish(ctx, store.StepFailed, nil)
				return nil, err
			}
			rank++
			if err := p.ro.Store().LinkRepoToQuery(ctx, query.ID, repoID, rank); err != nil {
				_ = handle.Finish(ctx, store.StepFailed, nil)
				return nil, err
			}
			repoIDs = append(repoIDs, repoID)
		}

		if result.IncompleteResults || len(result.Items) < defaultPerPage {
			break
		}
		page++
	}

	_ = handle.Finish(ctx, store.StepSuccess, map[string]any{"repos_discovered": len(repoIDs)})
	return repoIDs, nil
}

// hydrateReadmes fetches and stores the README for every repo that doesn't
// already have one, per spec.md §4.F step 5.
func (p *Pipeline) hydrateReadmes(ctx context.Context, repoIDs []int64) error {
	handle, err := p.ro.StartStep(ctx, uuid.NewString(), orchestrator.StepHydrateReadme)
	if err != nil {
		return err
	}

	fetched, missing, failed := 0, 0, 0
	for _, id := range repoIDs {
		has, err := p.ro.Store().HasReadme(ctx, id)
		if err != nil {
			return err
		}
		if has {
			continue
		}

		repo, err := p.ro.Store().GetRepo(ctx, id)
		if err != nil {
			return err
		}

		readme, err := p.gh.FetchReadme(ctx, repo.FullName)
		if err != nil {
			var ghErr *ghclient.Error
			if errors.As(err, &ghErr) && ghErr.Kind == ghclient.KindReadmeMissing {
				missing++
				_ = p.ro.LogAudit(ctx, "info", orchestrator.StepHydrateReadme, "repo.readme.missing",
					fmt.Sprintf("no readme for %s", repo.FullName), map[string]any{"repo": repo.FullName})
				continue
			}
			failed++
			_ = p.ro.LogAudit(ctx, "warn", orchestrator.StepHydrateReadme, "repo.hydrate.failed",
				fmt.Sprintf("readme fetch failed for %s", repo.FullName), map[string]any{"repo": repo.FullName, "error": err.Error()})
			continue
		}

		if _, err := p.ro.Store().UpsertReadme(ctx, id, readme.Content, readme.ETag, readme.SourceURL); err != nil {
			return err
		}
		fetched++
		_ = p.ro.LogAudit(ctx, "info", orchestrator.StepHydrateReadme, "repo.readme.fetched",
			fmt.Sprintf("fetched readme for %s", repo.FullName), map[string]any{"repo": repo.FullName})
	}

	return handle.Finish(ctx, store.StepSuccess, map[string]any{"fetched": fetched, "missing": missing, "failed": failed})
}

// analyzeEligible runs the Analysis sub-step over every repo with a README
// and no existing analysis for this run.
func (p *Pipeline) analyzeEligible(ctx context.Context, repoIDs []int64, model string, excerptChars int) (int, int, error) {
	handle, err := p.ro.StartStep(ctx, uuid.NewString(), orchestrator.StepLLMRepoAnalysis)
	if err != nil {
		return 0, 0, err
	}

	analyzed, failed := 0, 0
	for _, id := range repoIDs {
		hasReadme, err := p.ro.Store().HasReadme(ctx, id)
		if err != nil {
			return 0, 0, err
		}
		if !hasReadme {
			continue
		}
		hasAnalysis, err := p.ro.Store().HasAnalysis(ctx, p.ro.RunID, id)
		if err != nil {
			return 0, 0, err
		}
		if hasAnalysis {
			continue
		}

		repo, err := p.ro.Store().GetRepo(ctx, id)
		if err != nil {
			return 0, 0, err
		}
		readme, err := p.ro.Store().GetReadme(ctx, id)
		if err != nil {
			return 0, 0, err
		}

		ok, err := p.analyzeRepo(ctx, repo, readme, model, excerptChars)
		if err != nil {
			_ = handle.Finish(ctx, store.StepFailed, map[string]any{"analyzed": analyzed, "failed": failed})
			return analyzed, failed, err
		}
		if ok {
			analyzed++
		} else {
			failed++
		}
	}

	status := store.StepSuccess
	if analyzed == 0 && failed > 0 {
		status = store.StepFailed
	}
	_ = handle.Finish(ctx, status, map[string]any{"analyzed": analyzed, "failed": failed})
	return analyzed, failed, nil
}

// analyzeRepo builds the repo_analysis prompt, calls the LLM client,
// validates the output, computes the deterministic final score, and
// inserts the analysis plus its per-repo keyword rows. A false return
// (with nil error) means the unit failed validation and was logged, which
// is not itself a pipeline error.
func (p *Pipeline) analyzeRepo(ctx context.Context, repo *store.Repo, readme *store.Readme, model string, excerptChars int) (bool, error) {
	tmpl, err := p.prompts.Load("repo_analysis", 1)
	if err != nil {
		return false, fmt.Errorf("load repo_analysis prompt: %w", err)
	}

	excerpt := string(readme.Content)
	if len(excerpt) > excerptChars {
		excerpt = excerpt[:excerptChars]
	}

	vars := map[string]string{
		"full_name":      repo.FullName,
		"stars":          strconv.Itoa(repo.Stars),
		"language":       repo.Language,
		"topics":         strings.Join(repo.Topics, ", "),
		"readme_excerpt": excerpt,
	}
	userPrompt := prompt.Render(tmpl.Body, vars)

	raw, err := p.llm.Complete(ctx, repoAnalysisSystemPrompt, userPrompt, llmclient.CallOptions{
		Model:       model,
		Temperature: tmpl.Header.ModelDefaults.Temperature,
		MaxTokens:   tmpl.Header.ModelDefaults.MaxTokens,
	})
	if err != nil {
		p.logInvalidOutput(ctx, repo.FullName, err.Error())
		return false, nil
	}

	var out llmclient.RepoAnalysisOutput
	if err := decodeJSONInto(raw, &out); err != nil {
		p.logInvalidOutput(ctx, repo.FullName, err.Error())
		return false, nil
	}
	if err := out.Validate(); err != nil {
		p.logInvalidOutput(ctx, repo.FullName, err.Error())
		return false, nil
	}

	finalScore := briefs.FinalScore(p.policy, &out)

	scoresJSON, _ := json.Marshal(out.Scores)
	reasonsJSON, _ := json.Marshal(out.Reasons)
	outputJSON, _ := json.Marshal(out)
	inputSnapshot, _ := json.Marshal(map[string]any{
		"repo": repo.FullName, "stars": repo.Stars, "language": repo.Language,
		"topics": repo.Topics, "readme_content_hash": readme.ContentHash,
	})

	analysis := &store.Analysis{
		ID: uuid.NewString(), RunID: p.ro.RunID, RepoID: repo.ID, Model: model,
		PromptID: tmpl.Header.ID, PromptVersion: tmpl.Header.Version,
		InputSnapshotJSON: string(inputSnapshot), OutputJSON: string(outputJSON),
		LLMScoresJSON: string(scoresJSON), FinalScore: finalScore, ReasonsJSON: string(reasonsJSON),
	}
	if err := p.ro.Store().CreateAnalysis(ctx, analysis); err != nil {
		return false, fmt.Errorf("create analysis for %s: %w", repo.FullName, err)
	}

	if err := p.insertKeywords(ctx, repo.ID, &out); err != nil {
		return false, err
	}

	return true, nil
}

func (p *Pipeline) logInvalidOutput(ctx context.Context, fullName, reason string) {
	_ = p.ro.LogAudit(ctx, "warn", orchestrator.StepLLMRepoAnalysis, "llm.output.invalid_json",
		fmt.Sprintf("analysis invalid for %s", fullName), map[string]any{"repo": fullName, "reason": reason})
}

// perRepoKeywordWeight is the uniform per-occurrence weight stamped on
// every inserted per-repo keyword row; the keyword-aggregation step
// multiplies it by the owning repo's final_score per spec.md §4.F.
const perRepoKeywordWeight = 1.0

func (p *Pipeline) insertKeywords(ctx context.Context, repoID int64, out *llmclient.RepoAnalysisOutput) error {
	insert := func(term, kind string) error {
		id := repoID
		return p.ro.Store().InsertKeyword(ctx, &store.Keyword{
			ID: uuid.NewString(), RunID: p.ro.RunID, RepoID: &id,
			Term: term, Kind: kind, Weight: perRepoKeywordWeight,
		})
	}
	for _, t := range out.Keywords.Primary {
		if err := insert(t, store.KeywordPrimary); err != nil {
			return err
		}
	}
	for _, t := range out.Keywords.Secondary {
		if err := insert(t, store.KeywordSecondary); err != nil {
			return err
		}
	}
	for _, t := range out.Keywords.SearchQueries {
		if err := insert(t, store.KeywordSearchQuery); err != nil {
			return err
		}
	}
	return nil
}

func decodeJSONInto(raw any, target any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-marshal llm output: %w", err)
	}
	if err := json.Unmarshal(b, target); err != nil {
		return fmt.Errorf("decode llm output: %w", err)
	}
	return nil
}

// AggregateKeywords folds per-repo keywords from the top-K analyses by
// final score into run-aggregate keyword rows (repo_id null), per
// spec.md §4.F's keyword-aggregation sub-step, and returns the sorted
// aggregate (weight descending, then term ascending).
func (p *Pipeline) AggregateKeywords(ctx context.Context, topK int) ([]store.Keyword, error) {
	if topK == 0 {
		topK = defaultKeywordTopK
	}

	handle, err := p.ro.StartStep(ctx, uuid.NewString(), orchestrator.StepKeywordAggregate)
	if err != nil {
		return nil, err
	}

	analyses, err := p.ro.Store().AnalysesByRun(ctx, p.ro.RunID)
	if err != nil {
		_ = handle.Finish(ctx, store.StepFailed, nil)
		return nil, err
	}
	sort.SliceStable(analyses, func(i, j int) bool { return analyses[i].FinalScore > analyses[j].FinalScore })
	if len(analyses) > topK {
		analyses = analyses[:topK]
	}

	perRepoKeywords, err := p.ro.Store().PerRepoKeywordsByRun(ctx, p.ro.RunID)
	if err != nil {
		_ = handle.Finish(ctx, store.StepFailed, nil)
		return nil, err
	}
	byRepo := map[int64][]store.Keyword{}
	for _, k := range perRepoKeywords {
		if k.RepoID != nil {
			byRepo[*k.RepoID] = append(byRepo[*k.RepoID], k)
		}
	}

	type bucketKey struct{ kind, term string }
	totals := map[bucketKey]float64{}
	for _, a := range analyses {
		for _, k := range byRepo[a.RepoID] {
			term := strings.ToLower(strings.TrimSpace(k.Term))
			if term == "" {
				continue
			}
			totals[bucketKey{kind: k.Kind, term: term}] += k.Weight * a.FinalScore
		}
	}

	if _, err := p.ro.Store().DB().ExecContext(ctx, `DELETE FROM keywords WHERE run_id = ? AND repo_id IS NULL`, p.ro.RunID); err != nil {
		_ = handle.Finish(ctx, store.StepFailed, nil)
		return nil, err
	}

	for key, weight := range totals {
		if err := p.ro.Store().InsertKeyword(ctx, &store.Keyword{
			ID: uuid.NewString(), RunID: p.ro.RunID, RepoID: nil,
			Term: key.term, Kind: key.kind, Weight: round6(weight),
		}); err != nil {
			_ = handle.Finish(ctx, store.StepFailed, nil)
			return nil, err
		}
	}

	aggregate, err := p.ro.Store().AggregateKeywordsByRun(ctx, p.ro.RunID)
	if err != nil {
		_ = handle.Finish(ctx, store.StepFailed, nil)
		return nil, err
	}

	_ = handle.Finish(ctx, store.StepSuccess, map[string]any{"aggregate_terms": len(aggregate), "source_analyses": len(analyses)})
	return aggregate, nil
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// BuildPass2Queries takes all search_query-kind aggregate terms in order,
// then fills to maxQueries with primary-kind terms not already present,
// deduplicating while preserving first occurrence.
func (p *Pipeline) BuildPass2Queries(ctx context.Context, maxQueries int) ([]string, error) {
	if maxQueries == 0 {
		maxQueries = 10
	}

	aggregate, err := p.ro.Store().AggregateKeywordsByRun(ctx, p.ro.RunID)
	if err != nil {
		return nil, err
	}

	var out []string
	seen := map[string]bool{}
	for _, k := range aggregate {
		if k.Kind == store.KeywordSearchQuery && !seen[k.Term] {
			out = append(out, k.Term)
			seen[k.Term] = true
		}
	}
	for _, k := range aggregate {
		if len(out) >= maxQueries {
			break
		}
		if k.Kind == store.KeywordPrimary && !seen[k.Term] {
			out = append(out, k.Term)
			seen[k.Term] = true
		}
	}
	if len(out) > maxQueries {
		out = out[:maxQueries]
	}
	return out, nil
}

// Pass2Params describes one pass-2 invocation's tunable knobs.
type Pass2Params struct {
	MaxQueries          int
	Pass2Stars          int
	Pass2MaxStars       int
	Days                int
	Language            string
	IncludeForks        bool
	Model               string
	ReadmeExcerptChars  int
	MaxNewReposTotal    int
	MaxLLMAnalysesTotal int
}

// Pass2Result summarizes pass 2's outcome, including whether a hard cap
// stopped work early.
type Pass2Result struct {
	QueriesIssued  int
	NewRepos       int
	NewAnalyses    int
	LinkedExisting int
	Capped         bool
	CapReason      string
}

// RunPass2 executes spec.md §4.F's pass 2: re-search using the aggregated
// keywords, skipping already-analyzed repos (link-only), enforcing the
// maxNewReposTotal and maxLLMAnalysesTotal hard caps.
func (p *Pipeline) RunPass2(ctx context.Context, params Pass2Params) (*Pass2Result, error) {
	if params.MaxQueries == 0 {
		params.MaxQueries = 10
	}
	if params.Pass2Stars == 0 {
		params.Pass2Stars = 15
	}
	if params.MaxNewReposTotal == 0 {
		params.MaxNewReposTotal = 200
	}
	if params.ReadmeExcerptChars == 0 {
		params.ReadmeExcerptChars = defaultReadmeExcerptChars
	}

	handle, err := p.ro.StartStep(ctx, uuid.NewString(), orchestrator.StepGithubSearchPass2)
	if err != nil {
		return nil, err
	}

	terms, err := p.BuildPass2Queries(ctx, params.MaxQueries)
	if err != nil {
		_ = handle.Finish(ctx, store.StepFailed, nil)
		return nil, err
	}

	result := &Pass2Result{}

queries:
	for _, term := range terms {
		queryString := BuildQualifiedQuery(SearchParams{
			Query:        term,
			Days:         params.Days,
			Stars:        params.Pass2Stars,
			MaxStars:     params.Pass2MaxStars,
			Language:     params.Language,
			IncludeForks: params.IncludeForks,
		}, p.now())

		query, err := p.ro.Store().CreateGithubQuery(ctx, uuid.NewString(), p.ro.RunID, 2, queryString, params)
		if err != nil {
			_ = handle.Finish(ctx, store.StepFailed, nil)
			return nil, err
		}
		result.QueriesIssued++

		search, err := p.gh.SearchRepositories(ctx, queryString, 1, defaultPerPage)
		if err != nil {
			_ = handle.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
			return nil, fmt.Errorf("search pass 2: %w", err)
		}

		for rank, item := range search.Items {
			_, lookupErr := p.ro.Store().GetRepoByFullName(ctx, item.FullName)
			isNewRepo := errors.Is(lookupErr, store.ErrNotFound)
			if lookupErr != nil && !isNewRepo {
				_ = handle.Finish(ctx, store.StepFailed, nil)
				return nil, lookupErr
			}

			if isNewRepo && result.NewRepos >= params.MaxNewReposTotal {
				result.Capped = true
				result.CapReason = "max_new_repos_total"
				_ = p.ro.LogAudit(ctx, "warn", orchestrator.StepGithubSearchPass2, "pass2.new_repos.capped",
					"max_new_repos_total reached", map[string]any{"max_new_repos_total": params.MaxNewReposTotal})
				break queries
			}

			repoID, err := p.ro.Store().UpsertRepo(ctx, &store.Repo{
				FullName: item.FullName, Stars: item.Stars, Forks: item.Forks,
				Topics: item.Topics, Language: item.Language, License: item.License,
				PushedAt: item.PushedAt, Archived: item.Archived, Fork: item.Fork,
				LastSeenRunID: p.ro.RunID,
			})
			if err != nil {
				_ = handle.Finish(ctx, store.StepFailed, nil)
				return nil, err
			}
			if isNewRepo {
				result.NewRepos++
			}
			if err := p.ro.Store().LinkRepoToQuery(ctx, query.ID, repoID, rank+1); err != nil {
				_ = handle.Finish(ctx, store.StepFailed, nil)
				return nil, err
			}

			hasAnalysis, err := p.ro.Store().HasAnalysis(ctx, p.ro.RunID, repoID)
			if err != nil {
				_ = handle.Finish(ctx, store.StepFailed, nil)
				return nil, err
			}
			if hasAnalysis {
				result.LinkedExisting++
				continue
			}

			if params.MaxLLMAnalysesTotal > 0 && result.NewAnalyses >= params.MaxLLMAnalysesTotal {
				result.Capped = true
				result.CapReason = "max_llm_analyses_total"
				_ = p.ro.LogAudit(ctx, "warn", orchestrator.StepGithubSearchPass2, "pass2.analyses.capped",
					"max_llm_analyses_total reached", map[string]any{"max_llm_analyses_total": params.MaxLLMAnalysesTotal})
				break queries
			}

			hasReadme, err := p.ro.Store().HasReadme(ctx, repoID)
			if err != nil {
				_ = handle.Finish(ctx, store.StepFailed, nil)
				return nil, err
			}
			if !hasReadme {
				readme, err := p.gh.FetchReadme(ctx, item.FullName)
				if err != nil {
					var ghErr *ghclient.Error
					if errors.As(err, &ghErr) && ghErr.Kind == ghclient.KindReadmeMissing {
						_ = p.ro.LogAudit(ctx, "info", orchestrator.StepGithubSearchPass2, "repo.readme.missing",
							fmt.Sprintf("no readme for %s", item.FullName), map[string]any{"repo": item.FullName})
						continue
					}
					_ = p.ro.LogAudit(ctx, "warn", orchestrator.StepGithubSearchPass2, "repo.hydrate.failed",
						fmt.Sprintf("readme fetch failed for %s", item.FullName), map[string]any{"repo": item.FullName, "error": err.Error()})
					continue
				}
				if _, err := p.ro.Store().UpsertReadme(ctx, repoID, readme.Content, readme.ETag, readme.SourceURL); err != nil {
					_ = handle.Finish(ctx, store.StepFailed, nil)
					return nil, err
				}
			}

			repo, err := p.ro.Store().GetRepo(ctx, repoID)
			if err != nil {
				_ = handle.Finish(ctx, store.StepFailed, nil)
				return nil, err
			}
			readme, err := p.ro.Store().GetReadme(ctx, repoID)
			if err != nil {
				_ = handle.Finish(ctx, store.StepFailed, nil)
				return nil, err
			}

			ok, err := p.analyzeRepo(ctx, repo, readme, params.Model, params.ReadmeExcerptChars)
			if err != nil {
				_ = handle.Finish(ctx, store.StepFailed, nil)
				return nil, err
			}
			if ok {
				result.NewAnalyses++
			}
		}
	}

	stats := map[string]any{
		"queries_issued":  result.QueriesIssued,
		"new_repos":       result.NewRepos,
		"new_analyses":    result.NewAnalyses,
		"linked_existing": result.LinkedExisting,
	}
	if result.Capped {
		stats["capped"] = true
		stats["reason"] = result.CapReason
	}
	_ = handle.Finish(ctx, store.StepSuccess, stats)
	return result, nil
}

