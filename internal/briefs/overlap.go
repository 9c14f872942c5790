package briefs

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"collabscout/internal/llmclient"
)

// FunctionSignature is the token-set fingerprint extracted from one
// repo's analysis output, used by the candidate overlap score and the
// functional-overlap competitor filter.
type FunctionSignature struct {
	RepoID             int64
	Topics             []string
	IntegrationSurface []string
	ProblemSummary     []string
	PrimaryKeywords    []string
	SecondaryKeywords  []string
	SearchQueries      []string
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"are": true, "from": true, "into": true, "over": true, "your": true, "you": true,
	"can": true, "will": true, "has": true, "have": true, "was": true, "its": true,
}

var tokenPattern = regexp.MustCompile(`[^a-z0-9]+`)

// tokenize lowercases, splits on non-alphanumeric runs, and drops
// stopwords and tokens shorter than three characters.
func tokenize(s string) []string {
	lower := strings.ToLower(s)
	var out []string
	for _, tok := range tokenPattern.Split(lower, -1) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func tokenizeAll(items []string) []string {
	var out []string
	for _, item := range items {
		out = append(out, tokenize(item)...)
	}
	return out
}

// BuildFunctionSignature derives a repo's function signature from its
// topics and validated analysis output.
func BuildFunctionSignature(repoID int64, topics []string, out *llmclient.RepoAnalysisOutput) FunctionSignature {
	return FunctionSignature{
		RepoID:             repoID,
		Topics:             topics,
		IntegrationSurface: out.Signals.IntegrationSurface,
		ProblemSummary:     tokenize(out.Signals.ProblemSummary),
		PrimaryKeywords:    tokenizeAll(out.Keywords.Primary),
		SecondaryKeywords:  tokenizeAll(out.Keywords.Secondary),
		SearchQueries:      tokenizeAll(out.Keywords.SearchQueries),
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = true
	}
	return set
}

// jaccard computes |A∩B| / |A∪B|, returning 0 when both sets are empty.
func jaccard(a, b []string) float64 {
	setA, setB := toSet(a), toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// languageMatch is 1.0 when both repos share a primary language, else 0.
func languageMatch(langA, langB string) float64 {
	if langA == "" || langB == "" {
		return 0
	}
	if strings.EqualFold(langA, langB) {
		return 1
	}
	return 0
}

// OverlapInputs is the per-repo data the candidate-pair overlap score
// needs; distinct from FunctionSignature, which only covers the
// functional-overlap competitor filter's tokenized fields.
type OverlapInputs struct {
	RepoID             int64
	Topics             []string
	Language           string
	IntegrationSurface []string
}

// PairOverlapScore computes spec.md §4.G's candidate overlap score:
// topicOverlap*0.4 + languageMatch*0.2 + integrationSurfaceOverlap*0.2 +
// complementBonus*0.2, rounded to 1e-6.
func PairOverlapScore(a, b OverlapInputs) float64 {
	topicOverlap := jaccard(a.Topics, b.Topics) * 0.4
	lang := languageMatch(a.Language, b.Language) * 0.2
	surfaceOverlap := jaccard(a.IntegrationSurface, b.IntegrationSurface) * 0.2
	complement := complementBonus(a.IntegrationSurface, b.IntegrationSurface) * 0.2
	return round6(topicOverlap + lang + surfaceOverlap + complement)
}

// apiOrSDKTokens is the integration-surface vocabulary complementBonus
// checks for, per spec.md §4.G.
var apiOrSDKTokens = map[string]bool{"api": true, "sdk": true}

// hasAPIOrSDK reports whether any integration-surface entry is "api" or
// "sdk", case-insensitively.
func hasAPIOrSDK(surface []string) bool {
	for _, s := range surface {
		if apiOrSDKTokens[strings.ToLower(s)] {
			return true
		}
	}
	return false
}

// complementBonus is 1 when exactly one side's integration surface
// carries an api/sdk token and the other doesn't: a common
// "complementary, not competing" shape (one side exposes an integration
// point, the other doesn't).
func complementBonus(a, b []string) float64 {
	if hasAPIOrSDK(a) != hasAPIOrSDK(b) {
		return 1
	}
	return 0
}

// interopTriggerTokens grants an exemption from competitor rejection
// when present in either side's keywords or integration surface.
var interopTriggerTokens = map[string]bool{
	"migration": true, "migrate": true, "interop": true, "compat": true,
	"compatibility": true, "adapter": true, "bridge": true, "benchmark": true,
	"benchmarks": true, "spec": true, "standard": true, "standards": true,
	"translator": true, "import": true, "export": true, "convert": true,
	"conversion": true,
}

// FunctionalOverlap computes spec.md §4.G's functional_overlap:
// 0.45*sim(problem_summary) + 0.35*sim(integration_surface) +
// 0.20*sim(keywords.primary), rounded to 1e-6.
func FunctionalOverlap(a, b FunctionSignature) float64 {
	problemSim := jaccard(a.ProblemSummary, b.ProblemSummary) * 0.45
	surfaceSim := jaccard(tokenizeAll(a.IntegrationSurface), tokenizeAll(b.IntegrationSurface)) * 0.35
	keywordSim := jaccard(a.PrimaryKeywords, b.PrimaryKeywords) * 0.20
	return round6(problemSim + surfaceSim + keywordSim)
}

// FilterVerdict is the functional-overlap competitor filter's decision
// for one candidate pair.
type FilterVerdict struct {
	Rejected           bool
	ExceptionTriggered bool
	ExceptionReason    string
	FunctionalOverlap  float64
	PenaltyApplied     float64
}

func hasInteropTrigger(sig FunctionSignature) bool {
	for _, tok := range sig.PrimaryKeywords {
		if interopTriggerTokens[tok] {
			return true
		}
	}
	for _, tok := range sig.SecondaryKeywords {
		if interopTriggerTokens[tok] {
			return true
		}
	}
	for _, tok := range tokenizeAll(sig.IntegrationSurface) {
		if interopTriggerTokens[tok] {
			return true
		}
	}
	return false
}

// FilterPair applies spec.md §4.G's three-way decision rule: allow below
// threshold, allow-with-exception when an interop trigger token is
// present, otherwise reject.
func FilterPair(overlapThreshold, exceptionPenalty float64, a, b FunctionSignature) FilterVerdict {
	overlap := FunctionalOverlap(a, b)

	if overlap < overlapThreshold {
		return FilterVerdict{FunctionalOverlap: overlap}
	}

	if hasInteropTrigger(a) || hasInteropTrigger(b) {
		return FilterVerdict{
			ExceptionTriggered: true,
			ExceptionReason:    "interop_exception",
			FunctionalOverlap:  overlap,
			PenaltyApplied:     exceptionPenalty,
		}
	}

	return FilterVerdict{Rejected: true, FunctionalOverlap: overlap}
}

// Candidate is one unordered group of repos eligible for brief
// synthesis, with its deterministic overlap score.
type Candidate struct {
	RepoIDs      []int64
	OverlapScore float64
}

// SortCandidates orders candidates by overlap score descending, then by
// the canonical comma-joined sorted repo-id string ascending.
func SortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].OverlapScore != candidates[j].OverlapScore {
			return candidates[i].OverlapScore > candidates[j].OverlapScore
		}
		return canonicalRepoIDKey(candidates[i].RepoIDs) < canonicalRepoIDKey(candidates[j].RepoIDs)
	})
}

func canonicalRepoIDKey(repoIDs []int64) string {
	sorted := make([]int64, len(repoIDs))
	copy(sorted, repoIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
