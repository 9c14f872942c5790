package llmclient

import "fmt"

// RepoAnalysisOutput is the validated shape of a repo_analysis LLM call.
type RepoAnalysisOutput struct {
	Repo struct {
		FullName string `json:"full_name"`
	} `json:"repo"`
	Scores struct {
		Interestingness        float64 `json:"interestingness"`
		Novelty                float64 `json:"novelty"`
		CollaborationPotential float64 `json:"collaboration_potential"`
	} `json:"scores"`
	Reasons struct {
		Interestingness        []string `json:"interestingness"`
		Novelty                []string `json:"novelty"`
		CollaborationPotential []string `json:"collaboration_potential"`
	} `json:"reasons"`
	Signals struct {
		ProblemSummary     string   `json:"problem_summary,omitempty"`
		WhoIsItFor         string   `json:"who_is_it_for,omitempty"`
		IntegrationSurface []string `json:"integration_surface,omitempty"`
		RiskFlags          *[]string `json:"risk_flags,omitempty"`
	} `json:"signals"`
	Keywords struct {
		Primary       []string `json:"primary"`
		Secondary     []string `json:"secondary"`
		SearchQueries []string `json:"search_queries"`
	} `json:"keywords"`
}

// Validate checks RepoAnalysisOutput against the bounds spec.md §4.D names.
// RiskFlags is a *[]string specifically to preserve the absent-vs-empty
// distinction the signals bonus depends on.
func (o *RepoAnalysisOutput) Validate() error {
	if o.Repo.FullName == "" {
		return fmt.Errorf("repo.full_name is required")
	}
	for name, v := range map[string]float64{
		"interestingness":         o.Scores.Interestingness,
		"novelty":                 o.Scores.Novelty,
		"collaboration_potential": o.Scores.CollaborationPotential,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("scores.%s must be in [0,1], got %v", name, v)
		}
	}
	for name, reasons := range map[string][]string{
		"interestingness":         o.Reasons.Interestingness,
		"novelty":                 o.Reasons.Novelty,
		"collaboration_potential": o.Reasons.CollaborationPotential,
	} {
		if len(reasons) > 8 {
			return fmt.Errorf("reasons.%s must have at most 8 items, got %d", name, len(reasons))
		}
	}
	if len(o.Keywords.Primary) > 12 {
		return fmt.Errorf("keywords.primary must have at most 12 items, got %d", len(o.Keywords.Primary))
	}
	if len(o.Keywords.Secondary) > 24 {
		return fmt.Errorf("keywords.secondary must have at most 24 items, got %d", len(o.Keywords.Secondary))
	}
	if len(o.Keywords.SearchQueries) > 10 {
		return fmt.Errorf("keywords.search_queries must have at most 10 items, got %d", len(o.Keywords.SearchQueries))
	}
	return nil
}

// BriefRepoRef is one repository's contribution to a brief.
type BriefRepoRef struct {
	FullName        string `json:"full_name"`
	WhyItFits       string `json:"why_it_fits"`
	IntegrationRole string `json:"integration_role"`
	OutreachMessage string `json:"outreach_message"`
}

// BriefOutput is the validated shape of a brief_generate LLM call.
type BriefOutput struct {
	Title   string         `json:"title"`
	Concept string         `json:"concept"`
	Repos   []BriefRepoRef `json:"repos"`
}

// Validate checks BriefOutput against the bounds spec.md §4.D names.
func (o *BriefOutput) Validate() error {
	if len(o.Title) > 100 {
		return fmt.Errorf("title must be at most 100 chars, got %d", len(o.Title))
	}
	if len(o.Concept) > 600 {
		return fmt.Errorf("concept must be at most 600 chars, got %d", len(o.Concept))
	}
	if len(o.Repos) < 2 || len(o.Repos) > 4 {
		return fmt.Errorf("repos must have 2-4 entries, got %d", len(o.Repos))
	}
	for i, r := range o.Repos {
		if r.FullName == "" {
			return fmt.Errorf("repos[%d].full_name is required", i)
		}
		if len(r.WhyItFits) > 300 {
			return fmt.Errorf("repos[%d].why_it_fits must be at most 300 chars, got %d", i, len(r.WhyItFits))
		}
		if len(r.IntegrationRole) > 100 {
			return fmt.Errorf("repos[%d].integration_role must be at most 100 chars, got %d", i, len(r.IntegrationRole))
		}
		if len(r.OutreachMessage) > 1000 {
			return fmt.Errorf("repos[%d].outreach_message must be at most 1000 chars, got %d", i, len(r.OutreachMessage))
		}
	}
	return nil
}
