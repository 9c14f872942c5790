package briefs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"collabscout/internal/llmclient"
)

func TestFinalScoreMatchesWorkedExample(t *testing.T) {
	var out llmclient.RepoAnalysisOutput
	out.Scores.Interestingness = 0.8
	out.Scores.Novelty = 0.7
	out.Scores.CollaborationPotential = 0.75
	out.Signals.IntegrationSurface = []string{"API", "SDK"}
	empty := []string{}
	out.Signals.RiskFlags = &empty

	got := FinalScore(DefaultPolicy(), &out)
	assert.Equal(t, 0.7675, got)
}

func TestSignalsBonusOmitsNoRiskFlagsBonusWhenAbsent(t *testing.T) {
	var out llmclient.RepoAnalysisOutput
	out.Signals.IntegrationSurface = []string{"API"}
	// RiskFlags left nil: absent, not explicitly empty.
	got := SignalsBonus(DefaultPolicy(), &out)
	assert.Equal(t, DefaultPolicy().SignalsBonus.HasIntegrationSurface+DefaultPolicy().SignalsBonus.HasAPIOrSDK, got)
}

func TestSignalsBonusGrantsNoRiskFlagsBonusWhenExplicitlyEmpty(t *testing.T) {
	var out llmclient.RepoAnalysisOutput
	empty := []string{}
	out.Signals.RiskFlags = &empty
	got := SignalsBonus(DefaultPolicy(), &out)
	assert.Equal(t, DefaultPolicy().SignalsBonus.NoRiskFlags, got)
}

func TestSignalsBonusSkipsAPIOrSDKBonusWithoutMatchingToken(t *testing.T) {
	var out llmclient.RepoAnalysisOutput
	out.Signals.IntegrationSurface = []string{"webhook", "cli"}
	got := SignalsBonus(DefaultPolicy(), &out)
	assert.Equal(t, DefaultPolicy().SignalsBonus.HasIntegrationSurface, got)
}

func TestRound6RoundsToSixDecimals(t *testing.T) {
	assert.Equal(t, 0.333333, round6(1.0/3.0))
}
