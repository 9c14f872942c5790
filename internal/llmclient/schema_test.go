package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validAnalysis() *RepoAnalysisOutput {
	var o RepoAnalysisOutput
	o.Repo.FullName = "octocat/hello-world"
	o.Scores.Interestingness = 0.8
	o.Scores.Novelty = 0.7
	o.Scores.CollaborationPotential = 0.75
	empty := []string{}
	o.Signals.RiskFlags = &empty
	return &o
}

func TestRepoAnalysisOutputValidateAcceptsValidShape(t *testing.T) {
	o := validAnalysis()
	assert.NoError(t, o.Validate())
}

func TestRepoAnalysisOutputValidateRejectsMissingFullName(t *testing.T) {
	o := validAnalysis()
	o.Repo.FullName = ""
	assert.Error(t, o.Validate())
}

func TestRepoAnalysisOutputValidateRejectsOutOfRangeScore(t *testing.T) {
	o := validAnalysis()
	o.Scores.Interestingness = 1.5
	assert.Error(t, o.Validate())
}

func TestRepoAnalysisOutputValidateRejectsTooManyKeywords(t *testing.T) {
	o := validAnalysis()
	for i := 0; i < 13; i++ {
		o.Keywords.Primary = append(o.Keywords.Primary, "kw")
	}
	assert.Error(t, o.Validate())
}

func TestRepoAnalysisOutputRiskFlagsDistinguishesAbsentFromEmpty(t *testing.T) {
	o := validAnalysis()
	assert.NotNil(t, o.Signals.RiskFlags)
	assert.Empty(t, *o.Signals.RiskFlags)

	var absent RepoAnalysisOutput
	absent.Repo.FullName = "a/b"
	assert.Nil(t, absent.Signals.RiskFlags)
}

func validBrief() *BriefOutput {
	return &BriefOutput{
		Title:   "A brief",
		Concept: "A concept",
		Repos: []BriefRepoRef{
			{FullName: "a/one", WhyItFits: "fits", IntegrationRole: "core", OutreachMessage: "hi"},
			{FullName: "b/two", WhyItFits: "fits", IntegrationRole: "plugin", OutreachMessage: "hi"},
		},
	}
}

func TestBriefOutputValidateAcceptsValidShape(t *testing.T) {
	assert.NoError(t, validBrief().Validate())
}

func TestBriefOutputValidateRejectsTooFewRepos(t *testing.T) {
	b := validBrief()
	b.Repos = b.Repos[:1]
	assert.Error(t, b.Validate())
}

func TestBriefOutputValidateRejectsTooManyRepos(t *testing.T) {
	b := validBrief()
	b.Repos = append(b.Repos, b.Repos[0], b.Repos[0], b.Repos[0])
	assert.Error(t, b.Validate())
}

func TestBriefOutputValidateRejectsOverlongTitle(t *testing.T) {
	b := validBrief()
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}
	b.Title = string(long)
	assert.Error(t, b.Validate())
}
