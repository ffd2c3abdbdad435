package service

import (
	"context"
	"strings"
	"time"

	"github.com/aware88/fresh-crm/internal/clock"
	"github.com/aware88/fresh-crm/internal/cloudmetrics"
	"github.com/aware88/fresh-crm/internal/config"
	contactdomain "github.com/aware88/fresh-crm/internal/contact/domain"
	featuredomain "github.com/aware88/fresh-crm/internal/feature/domain"
	leaddomain "github.com/aware88/fresh-crm/internal/lead/domain"
	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
	"github.com/aware88/fresh-crm/internal/observability/metrics"
	"github.com/aware88/fresh-crm/internal/orgcontext"
	webhookdomain "github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/aware88/fresh-crm/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        leaddomain.Repository
	ContactRepo contactdomain.Repository
	Scoring     *config.ScoringConfigHolder
	Clock       clock.Clock
	Features    featuredomain.Service      `optional:"true"`
	Metrics     *metrics.Metrics           `optional:"true"`
	Emitter     webhookdomain.Emitter      `optional:"true"`
	Notifier    notificationdomain.Service `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        leaddomain.Repository
	contactRepo contactdomain.Repository
	scoring     *config.ScoringConfigHolder
	clock       clock.Clock
	features    featuredomain.Service
	metrics     *metrics.Metrics
	emitter     webhookdomain.Emitter
	notifier    notificationdomain.Service
}

func NewService(p Params) leaddomain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("lead.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		contactRepo: p.ContactRepo,
		scoring:     p.Scoring,
		clock:       p.Clock,
		features:    p.Features,
		metrics:     p.Metrics,
		emitter:     p.Emitter,
		notifier:    p.Notifier,
	}
}

func (s *service) CalculateScore(ctx context.Context, contactID string) (*leaddomain.LeadScoreResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, leaddomain.ErrInvalidOrganization
	}
	if err := s.checkScoringEnabled(ctx, orgID); err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(strings.TrimSpace(contactID))
	if err != nil {
		return nil, leaddomain.ErrContactNotFound
	}
	contact, err := s.contactRepo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, leaddomain.ErrContactNotFound
	}
	return s.calculate(ctx, contact)
}

func (s *service) GetScore(ctx context.Context, contactID string) (*leaddomain.LeadScoreResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, leaddomain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(contactID))
	if err != nil {
		return nil, leaddomain.ErrContactNotFound
	}
	score, err := s.repo.FindByContact(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if score == nil {
		return nil, leaddomain.ErrScoreNotFound
	}
	resp := toScoreResponse(*score)
	return &resp, nil
}

func (s *service) ListScores(ctx context.Context, req leaddomain.ListScoresRequest) (*leaddomain.ListScoresResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, leaddomain.ErrInvalidOrganization
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.WithQuerySortBy("score", "desc", map[string]bool{
			"score":       true,
			"computed_at": true,
			"created_at":  true,
		})),
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(req.PageSize),
		}),
	}
	if q := strings.TrimSpace(strings.ToLower(req.Qualification)); q != "" {
		if !leaddomain.ValidQualification(q) {
			return nil, leaddomain.ErrInvalidQualification
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "qualification",
			Operator: option.EQ,
			Value:    q,
		}))
	}
	if req.MinScore > 0 {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "score",
			Operator: option.GTE,
			Value:    req.MinScore,
		}))
	}

	scores, err := s.repo.List(ctx, s.db, orgID, opts...)
	if err != nil {
		return nil, err
	}

	size := int(req.PageSize)
	if size <= 0 {
		size = 10
	}
	resp := &leaddomain.ListScoresResponse{}
	for i, score := range scores {
		if i >= size {
			cursor, err := pagination.EncodeCursor(pagination.Cursor{
				CreatedAt: scores[size-1].CreatedAt.Format(time.RFC3339Nano),
				ID:        scores[size-1].ID.String(),
			})
			if err == nil {
				resp.NextPageToken = cursor
			}
			break
		}
		resp.Scores = append(resp.Scores, toScoreResponse(score))
	}
	return resp, nil
}

// BulkCalculateScores recomputes each contact in turn. Individual failures
// are collected rather than aborting the batch.
func (s *service) BulkCalculateScores(ctx context.Context, contactIDs []string) (*leaddomain.BulkCalculateResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, leaddomain.ErrInvalidOrganization
	}
	if err := s.checkScoringEnabled(ctx, orgID); err != nil {
		return nil, err
	}

	result := &leaddomain.BulkCalculateResult{}
	for _, raw := range contactIDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil {
			result.Fail(raw, leaddomain.ErrContactNotFound.Error())
			continue
		}
		contact, err := s.contactRepo.FindByID(ctx, s.db, orgID, id)
		if err != nil {
			result.Fail(raw, err.Error())
			continue
		}
		if contact == nil {
			result.Fail(raw, leaddomain.ErrContactNotFound.Error())
			continue
		}
		if _, err := s.calculate(ctx, contact); err != nil {
			result.Fail(raw, err.Error())
			continue
		}
		result.Calculated++
	}
	return result, nil
}

func (s *service) RecalculateStale(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	contacts, err := s.contactRepo.ListStale(ctx, s.db, cutoff, batchSize)
	if err != nil {
		return 0, err
	}

	recomputed := 0
	for i := range contacts {
		if ctx.Err() != nil {
			return recomputed, ctx.Err()
		}
		if _, err := s.calculate(ctx, &contacts[i]); err != nil {
			s.log.Warn("stale score recalculation failed",
				zap.String("contact_id", contacts[i].ID.String()),
				zap.Error(err),
			)
			continue
		}
		recomputed++
	}
	return recomputed, nil
}

func (s *service) calculate(ctx context.Context, contact *contactdomain.Contact) (*leaddomain.LeadScoreResponse, error) {
	hasOpen, maxValue, err := s.repo.OpenOpportunityStats(ctx, s.db, contact.OrgID, contact.ID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result := ComputeScore(s.scoring.Get(), ScoreInput{
		HasCompany:         contact.Company != nil && *contact.Company != "",
		HasPosition:        contact.Position != nil && *contact.Position != "",
		HasPhone:           contact.Phone != nil && *contact.Phone != "",
		Email:              derefString(contact.Email),
		InteractionCount:   contact.InteractionCount,
		LastInteractionAt:  contact.LastInteractionAt,
		HasOpenOpportunity: hasOpen,
		MaxOpenValueCents:  maxValue,
		Now:                now,
	})

	previous, err := s.repo.FindByContact(ctx, s.db, contact.OrgID, contact.ID)
	if err != nil {
		return nil, err
	}

	breakdown := datatypes.JSONMap{}
	for category, points := range result.Breakdown {
		breakdown[category] = points
	}
	score := leaddomain.LeadScore{
		ID:            s.genID.Generate(),
		OrgID:         contact.OrgID,
		ContactID:     contact.ID,
		Score:         result.Score,
		Qualification: result.Qualification,
		Breakdown:     breakdown,
		ComputedAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Upsert(ctx, s.db, &score); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordLeadScore(ctx, result.Qualification)
	}
	cloudmetrics.RecordLeadScore(contact.OrgID.String(), result.Qualification)
	s.emit(ctx, contact.OrgID, "lead.scored", map[string]any{
		"contact_id":    contact.ID.String(),
		"score":         result.Score,
		"qualification": result.Qualification,
	})

	becameHot := result.Qualification == leaddomain.QualificationHot &&
		(previous == nil || previous.Qualification != leaddomain.QualificationHot)
	if becameHot {
		s.emit(ctx, contact.OrgID, "lead.qualified", map[string]any{
			"contact_id":    contact.ID.String(),
			"score":         result.Score,
			"qualification": result.Qualification,
		})
		s.notify(ctx, notificationdomain.LeadHot(contact.OrgID, contact.ID, contact.DisplayName(), result.Score))
	}

	resp := toScoreResponse(score)
	return &resp, nil
}

// checkScoringEnabled enforces the plan gate on score computation. Reads of
// existing scores stay available so a downgraded org keeps its history.
func (s *service) checkScoringEnabled(ctx context.Context, orgID snowflake.ID) error {
	if s.features == nil {
		return nil
	}
	enabled, err := s.features.IsEnabled(ctx, orgID, featuredomain.CodeLeadScoring)
	if err != nil {
		return err
	}
	if !enabled {
		return leaddomain.ErrScoringNotEnabled
	}
	return nil
}

func (s *service) emit(ctx context.Context, orgID snowflake.ID, eventType string, payload map[string]any) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, orgID, eventType, payload); err != nil {
		s.log.Warn("failed to emit event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func (s *service) notify(ctx context.Context, req notificationdomain.CreateNotificationRequest) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Create(ctx, req); err != nil {
		s.log.Warn("failed to create notification", zap.String("type", req.Type), zap.Error(err))
	}
}

func toScoreResponse(score leaddomain.LeadScore) leaddomain.LeadScoreResponse {
	return leaddomain.LeadScoreResponse{
		ContactID:     score.ContactID.String(),
		Score:         score.Score,
		Qualification: score.Qualification,
		Breakdown:     score.Breakdown,
		ComputedAt:    score.ComputedAt,
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
