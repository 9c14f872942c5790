// Package briefs groups qualifying analyses into collaboration-brief
// candidates, scores them, and synthesizes the brief text via the LLM
// client. Deterministic math (scoring, overlap) lives in small
// pure-function files so it is unit-testable without the store or network.
package briefs

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"collabscout/internal/llmclient"
)

// Policy is the deterministic scoring policy loaded from a named JSON file.
type Policy struct {
	Version string `json:"version"`
	Weights struct {
		Interestingness        float64 `json:"w1_interestingness"`
		Novelty                float64 `json:"w2_novelty"`
		CollaborationPotential float64 `json:"w3_collaboration_potential"`
		SignalsBonus           float64 `json:"w4_signals_bonus"`
	} `json:"weights"`
	SignalsBonus struct {
		HasIntegrationSurface float64 `json:"has_integration_surface"`
		HasAPIOrSDK           float64 `json:"has_api_or_sdk"`
		NoRiskFlags           float64 `json:"no_risk_flags"`
	} `json:"signals_bonus"`
	Thresholds struct {
		MinRepoScoreForBrief              float64 `json:"min_repo_score_for_brief"`
		MinCollaborationPotentialForBrief float64 `json:"min_collaboration_potential_for_brief"`
		MinBriefScore                     float64 `json:"min_brief_score"`
	} `json:"thresholds"`
}

// DefaultPolicy matches the worked example in spec.md §8 scenario 3 and the
// default thresholds in spec.md §4.G.
func DefaultPolicy() *Policy {
	p := &Policy{Version: "1"}
	p.Weights.Interestingness = 0.35
	p.Weights.Novelty = 0.25
	p.Weights.CollaborationPotential = 0.35
	p.Weights.SignalsBonus = 0.05
	p.SignalsBonus.HasIntegrationSurface = 0.5
	p.SignalsBonus.HasAPIOrSDK = 0.3
	p.SignalsBonus.NoRiskFlags = 0.2
	p.Thresholds.MinRepoScoreForBrief = 0.60
	p.Thresholds.MinCollaborationPotentialForBrief = 0.65
	p.Thresholds.MinBriefScore = 0.75
	return p
}

// LoadPolicy reads a scoring policy from a JSON file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	return &p, nil
}

var apiOrSDKPattern = regexp.MustCompile(`(?i)\bapi\b|\bsdk\b`)

// SignalsBonus computes the signals-bonus component of the final score.
// The no-risk-flags bonus is the load-bearing absent-vs-empty case: it
// applies only when risk_flags was explicitly present and empty, never
// when the field was omitted entirely.
func SignalsBonus(policy *Policy, signals *llmclient.RepoAnalysisOutput) float64 {
	var bonus float64
	if len(signals.Signals.IntegrationSurface) > 0 {
		bonus += policy.SignalsBonus.HasIntegrationSurface
	}
	if apiOrSDKPattern.MatchString(strings.Join(signals.Signals.IntegrationSurface, " ")) {
		bonus += policy.SignalsBonus.HasAPIOrSDK
	}
	if signals.Signals.RiskFlags != nil && len(*signals.Signals.RiskFlags) == 0 {
		bonus += policy.SignalsBonus.NoRiskFlags
	}
	return bonus
}

// FinalScore computes `w1*i + w2*n + w3*c + w4*bonus`, rounded to 1e-6.
func FinalScore(policy *Policy, out *llmclient.RepoAnalysisOutput) float64 {
	bonus := SignalsBonus(policy, out)
	raw := policy.Weights.Interestingness*out.Scores.Interestingness +
		policy.Weights.Novelty*out.Scores.Novelty +
		policy.Weights.CollaborationPotential*out.Scores.CollaborationPotential +
		policy.Weights.SignalsBonus*bonus
	return round6(raw)
}

// round6 rounds to six decimal places, the precision spec.md requires for
// every deterministic score so replay can assert exact equality.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
