package service

import (
	"strings"
	"time"

	"github.com/aware88/fresh-crm/internal/config"
	leaddomain "github.com/aware88/fresh-crm/internal/lead/domain"
)

// ScoreInput is everything the scoring model reads about a contact.
type ScoreInput struct {
	HasCompany         bool
	HasPosition        bool
	HasPhone           bool
	Email              string
	InteractionCount   int64
	LastInteractionAt  *time.Time
	HasOpenOpportunity bool
	MaxOpenValueCents  int64
	Now                time.Time
}

// ScoreResult is the computed score with its per-category breakdown.
type ScoreResult struct {
	Score         int
	Qualification string
	Breakdown     map[string]int
}

// ComputeScore runs the four-category scoring model. Each category is
// capped; the overall score is the capped sum, 0-100.
func ComputeScore(cfg config.ScoringConfig, in ScoreInput) ScoreResult {
	breakdown := map[string]int{
		"profile":       scoreProfile(cfg.Categories.Profile, in),
		"email_quality": scoreEmailQuality(cfg.Categories.EmailQuality, cfg.FreeMailDomains, in.Email),
		"engagement":    scoreEngagement(cfg.Categories.Engagement, in),
		"opportunity":   scoreOpportunity(cfg.Categories.Opportunity, in),
	}

	total := 0
	for _, points := range breakdown {
		total += points
	}
	if total > 100 {
		total = 100
	}

	return ScoreResult{
		Score:         total,
		Qualification: qualify(cfg.Thresholds, total),
		Breakdown:     breakdown,
	}
}

func scoreProfile(points config.ProfilePoints, in ScoreInput) int {
	score := 0
	if in.HasCompany {
		score += points.HasCompany
	}
	if in.HasPosition {
		score += points.HasPosition
	}
	if in.HasPhone {
		score += points.HasPhone
	}
	return capAt(score, points.Cap)
}

func scoreEmailQuality(points config.EmailQualityPoints, freeMailDomains []string, email string) int {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return 0
	}
	domain := email[at+1:]
	for _, free := range freeMailDomains {
		if domain == strings.ToLower(free) {
			return capAt(points.FreeMailDomain, points.Cap)
		}
	}
	return capAt(points.CorporateDomain, points.Cap)
}

func scoreEngagement(points config.EngagementPoints, in ScoreInput) int {
	score := int(in.InteractionCount) * points.PerInteraction
	if in.LastInteractionAt != nil {
		recentWindow := time.Duration(points.RecentDays) * 24 * time.Hour
		if in.Now.Sub(*in.LastInteractionAt) <= recentWindow {
			score += points.RecentContact
		}
	}
	return capAt(score, points.Cap)
}

func scoreOpportunity(points config.OpportunityPoints, in ScoreInput) int {
	if !in.HasOpenOpportunity {
		return 0
	}
	score := points.HasOpen
	if in.MaxOpenValueCents >= points.HighValueCents {
		score += points.HighValue
	}
	return capAt(score, points.Cap)
}

func qualify(thresholds config.Thresholds, score int) string {
	switch {
	case score >= thresholds.Hot:
		return leaddomain.QualificationHot
	case score >= thresholds.Warm:
		return leaddomain.QualificationWarm
	default:
		return leaddomain.QualificationCold
	}
}

func capAt(score, cap int) int {
	if cap > 0 && score > cap {
		return cap
	}
	return score
}
