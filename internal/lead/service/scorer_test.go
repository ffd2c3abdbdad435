package service

import (
	"testing"
	"time"

	"github.com/aware88/fresh-crm/internal/config"
	leaddomain "github.com/aware88/fresh-crm/internal/lead/domain"
	"github.com/stretchr/testify/assert"
)

var scoreNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := scoreNow.Add(-time.Duration(n) * 24 * time.Hour)
	return &t
}

func TestComputeScoreFullProfileCorporate(t *testing.T) {
	cfg := config.DefaultScoringConfig()

	result := ComputeScore(cfg, ScoreInput{
		HasCompany:         true,
		HasPosition:        true,
		HasPhone:           true,
		Email:              "jane@acme.io",
		InteractionCount:   4,
		LastInteractionAt:  daysAgo(2),
		HasOpenOpportunity: true,
		MaxOpenValueCents:  2_000_000,
		Now:                scoreNow,
	})

	assert.Equal(t, 100, result.Score)
	assert.Equal(t, leaddomain.QualificationHot, result.Qualification)
	assert.Equal(t, 30, result.Breakdown["profile"])
	assert.Equal(t, 20, result.Breakdown["email_quality"])
	assert.Equal(t, 30, result.Breakdown["engagement"])
	assert.Equal(t, 20, result.Breakdown["opportunity"])
}

func TestComputeScoreEmptyContactIsCold(t *testing.T) {
	cfg := config.DefaultScoringConfig()

	result := ComputeScore(cfg, ScoreInput{Now: scoreNow})

	assert.Equal(t, 0, result.Score)
	assert.Equal(t, leaddomain.QualificationCold, result.Qualification)
}

func TestComputeScoreFreeMailDomain(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	cfg.FreeMailDomains = []string{"gmail.com", "outlook.com"}

	free := ComputeScore(cfg, ScoreInput{Email: "jane@gmail.com", Now: scoreNow})
	corporate := ComputeScore(cfg, ScoreInput{Email: "jane@acme.io", Now: scoreNow})

	assert.Equal(t, 5, free.Breakdown["email_quality"])
	assert.Equal(t, 20, corporate.Breakdown["email_quality"])
}

func TestComputeScoreFreeMailDomainCaseInsensitive(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	cfg.FreeMailDomains = []string{"Gmail.com"}

	result := ComputeScore(cfg, ScoreInput{Email: "Jane@GMAIL.COM", Now: scoreNow})
	assert.Equal(t, 5, result.Breakdown["email_quality"])
}

func TestComputeScoreMalformedEmail(t *testing.T) {
	cfg := config.DefaultScoringConfig()

	for _, email := range []string{"", "no-at-sign", "trailing@"} {
		result := ComputeScore(cfg, ScoreInput{Email: email, Now: scoreNow})
		assert.Zero(t, result.Breakdown["email_quality"], "email %q", email)
	}
}

func TestComputeScoreEngagementCap(t *testing.T) {
	cfg := config.DefaultScoringConfig()

	result := ComputeScore(cfg, ScoreInput{
		InteractionCount:  50,
		LastInteractionAt: daysAgo(1),
		Now:               scoreNow,
	})

	assert.Equal(t, 30, result.Breakdown["engagement"])
}

func TestComputeScoreRecencyBonusBoundary(t *testing.T) {
	cfg := config.DefaultScoringConfig()

	within := ComputeScore(cfg, ScoreInput{
		InteractionCount:  1,
		LastInteractionAt: daysAgo(14),
		Now:               scoreNow,
	})
	outside := ComputeScore(cfg, ScoreInput{
		InteractionCount:  1,
		LastInteractionAt: daysAgo(15),
		Now:               scoreNow,
	})

	assert.Equal(t, 15, within.Breakdown["engagement"])
	assert.Equal(t, 5, outside.Breakdown["engagement"])
}

func TestComputeScoreOpportunityHighValue(t *testing.T) {
	cfg := config.DefaultScoringConfig()

	small := ComputeScore(cfg, ScoreInput{
		HasOpenOpportunity: true,
		MaxOpenValueCents:  999_999,
		Now:                scoreNow,
	})
	large := ComputeScore(cfg, ScoreInput{
		HasOpenOpportunity: true,
		MaxOpenValueCents:  1_000_000,
		Now:                scoreNow,
	})

	assert.Equal(t, 10, small.Breakdown["opportunity"])
	assert.Equal(t, 20, large.Breakdown["opportunity"])
}

func TestComputeScoreQualificationThresholds(t *testing.T) {
	cfg := config.DefaultScoringConfig()

	cases := []struct {
		score int
		want  string
	}{
		{100, leaddomain.QualificationHot},
		{75, leaddomain.QualificationHot},
		{74, leaddomain.QualificationWarm},
		{45, leaddomain.QualificationWarm},
		{44, leaddomain.QualificationCold},
		{0, leaddomain.QualificationCold},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, qualify(cfg.Thresholds, tc.score), "score %d", tc.score)
	}
}
