package service

import (
	"context"
	"strings"
	"time"

	"github.com/aware88/fresh-crm/internal/plan/domain"
	"github.com/aware88/fresh-crm/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) ListActive(ctx context.Context) ([]domain.PlanResponse, error) {
	plans, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PlanResponse, 0, len(plans))
	for i := range plans {
		out = append(out, toPlanResponse(&plans[i]))
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.PlanResponse, error) {
	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrPlanNotFound
	}
	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	resp := toPlanResponse(plan)
	return &resp, nil
}

func (s *Service) GetBySlug(ctx context.Context, planSlug string) (*domain.PlanResponse, error) {
	planSlug = strings.TrimSpace(strings.ToLower(planSlug))
	if planSlug == "" {
		return nil, domain.ErrPlanNotFound
	}
	plan, err := s.repo.FindBySlug(ctx, s.db, planSlug)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	resp := toPlanResponse(plan)
	return &resp, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreatePlanRequest) (*domain.PlanResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	tier := strings.TrimSpace(strings.ToLower(req.Tier))
	if !domain.ValidTier(tier) {
		return nil, domain.ErrInvalidTier
	}
	currency := strings.TrimSpace(strings.ToLower(req.Currency))
	if currency == "" {
		currency = "usd"
	}
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}
	if req.MonthlyPriceCents < 0 || req.AnnualPriceCents < 0 {
		return nil, domain.ErrInvalidPlan
	}

	now := time.Now().UTC()
	plan := &domain.SubscriptionPlan{
		ID:                   s.genID.Generate(),
		Slug:                 slug.Make(name),
		Name:                 name,
		Tier:                 tier,
		MonthlyPriceCents:    req.MonthlyPriceCents,
		AnnualPriceCents:     req.AnnualPriceCents,
		Currency:             currency,
		StripeMonthlyPriceID: strings.TrimSpace(req.StripeMonthlyPriceID),
		StripeAnnualPriceID:  strings.TrimSpace(req.StripeAnnualPriceID),
		Features:             toJSONMap(req.Features),
		Limits:               limitsToJSONMap(req.Limits),
		Active:               true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Create(ctx, s.db, plan); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrPlanExists
		}
		return nil, err
	}

	s.log.Info("plan created",
		zap.String("plan_id", plan.ID.String()),
		zap.String("slug", plan.Slug),
		zap.String("tier", plan.Tier),
	)

	resp := toPlanResponse(plan)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdatePlanRequest) (*domain.PlanResponse, error) {
	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrPlanNotFound
	}
	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		plan.Name = name
	}
	if req.MonthlyPriceCents != nil {
		if *req.MonthlyPriceCents < 0 {
			return nil, domain.ErrInvalidPlan
		}
		plan.MonthlyPriceCents = *req.MonthlyPriceCents
	}
	if req.AnnualPriceCents != nil {
		if *req.AnnualPriceCents < 0 {
			return nil, domain.ErrInvalidPlan
		}
		plan.AnnualPriceCents = *req.AnnualPriceCents
	}
	if req.StripeMonthlyPriceID != nil {
		plan.StripeMonthlyPriceID = strings.TrimSpace(*req.StripeMonthlyPriceID)
	}
	if req.StripeAnnualPriceID != nil {
		plan.StripeAnnualPriceID = strings.TrimSpace(*req.StripeAnnualPriceID)
	}
	if req.Features != nil {
		plan.Features = toJSONMap(req.Features)
	}
	if req.Limits != nil {
		plan.Limits = limitsToJSONMap(req.Limits)
	}
	if req.Active != nil {
		plan.Active = *req.Active
	}
	plan.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, plan); err != nil {
		return nil, err
	}

	resp := toPlanResponse(plan)
	return &resp, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrPlanNotFound
	}
	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return err
	}
	if plan == nil {
		return domain.ErrPlanNotFound
	}
	if !plan.Active {
		return nil
	}
	plan.Active = false
	plan.UpdatedAt = time.Now().UTC()
	return s.repo.Update(ctx, s.db, plan)
}

func toPlanResponse(plan *domain.SubscriptionPlan) domain.PlanResponse {
	return domain.PlanResponse{
		ID:                   plan.ID.String(),
		Slug:                 plan.Slug,
		Name:                 plan.Name,
		Tier:                 plan.Tier,
		MonthlyPriceCents:    plan.MonthlyPriceCents,
		AnnualPriceCents:     plan.AnnualPriceCents,
		Currency:             plan.Currency,
		StripeMonthlyPriceID: plan.StripeMonthlyPriceID,
		StripeAnnualPriceID:  plan.StripeAnnualPriceID,
		Features:             plan.Features,
		Limits:               plan.Limits,
		Active:               plan.Active,
		CreatedAt:            plan.CreatedAt,
	}
}

func toJSONMap(m map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range m {
		out[k] = v
	}
	return out
}

func limitsToJSONMap(m map[string]int64) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range m {
		out[k] = v
	}
	return out
}
