package service

import (
	"context"
	"strings"
	"time"

	featuredomain "github.com/aware88/fresh-crm/internal/feature/domain"
	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
	"github.com/aware88/fresh-crm/internal/orgcontext"
	pipelinedomain "github.com/aware88/fresh-crm/internal/pipeline/domain"
	webhookdomain "github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/aware88/fresh-crm/pkg/db"
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

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     pipelinedomain.Repository
	Features featuredomain.Service      `optional:"true"`
	Emitter  webhookdomain.Emitter      `optional:"true"`
	Notifier notificationdomain.Service `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     pipelinedomain.Repository
	features featuredomain.Service
	emitter  webhookdomain.Emitter
	notifier notificationdomain.Service
}

func NewService(p Params) pipelinedomain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("pipeline.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		features: p.Features,
		emitter:  p.Emitter,
		notifier: p.Notifier,
	}
}

func (s *service) ListStages(ctx context.Context) ([]pipelinedomain.StageResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, pipelinedomain.ErrInvalidOrganization
	}
	stages, err := s.repo.ListStages(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	resp := make([]pipelinedomain.StageResponse, 0, len(stages))
	for _, stage := range stages {
		resp = append(resp, toStageResponse(stage))
	}
	return resp, nil
}

func (s *service) CreateStage(ctx context.Context, req pipelinedomain.CreateStageRequest) (*pipelinedomain.StageResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, pipelinedomain.ErrInvalidOrganization
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pipelinedomain.ErrInvalidName
	}
	if req.Position <= 0 {
		return nil, pipelinedomain.ErrInvalidStage
	}
	if req.DefaultProbability < 0 || req.DefaultProbability > 100 {
		return nil, pipelinedomain.ErrInvalidProbability
	}

	stage := pipelinedomain.PipelineStage{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		Name:               name,
		Position:           req.Position,
		DefaultProbability: req.DefaultProbability,
		IsWon:              req.IsWon,
		IsLost:             req.IsLost,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.repo.InsertStage(ctx, s.db, &stage); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, pipelinedomain.ErrStageExists
		}
		return nil, err
	}

	resp := toStageResponse(stage)
	return &resp, nil
}

func (s *service) UpdateStage(ctx context.Context, id string, req pipelinedomain.UpdateStageRequest) (*pipelinedomain.StageResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, pipelinedomain.ErrInvalidOrganization
	}
	stage, err := s.findStage(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, pipelinedomain.ErrInvalidName
		}
		stage.Name = name
	}
	if req.Position != nil {
		if *req.Position <= 0 {
			return nil, pipelinedomain.ErrInvalidStage
		}
		stage.Position = *req.Position
	}
	if req.DefaultProbability != nil {
		if *req.DefaultProbability < 0 || *req.DefaultProbability > 100 {
			return nil, pipelinedomain.ErrInvalidProbability
		}
		stage.DefaultProbability = *req.DefaultProbability
	}

	if err := s.repo.UpdateStage(ctx, s.db, stage); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, pipelinedomain.ErrStageExists
		}
		return nil, err
	}

	resp := toStageResponse(*stage)
	return &resp, nil
}

func (s *service) DeleteStage(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return pipelinedomain.ErrInvalidOrganization
	}
	stage, err := s.findStage(ctx, orgID, id)
	if err != nil {
		return err
	}
	count, err := s.repo.CountOpportunitiesInStage(ctx, s.db, orgID, stage.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return pipelinedomain.ErrStageInUse
	}
	return s.repo.DeleteStage(ctx, s.db, orgID, stage.ID)
}

func (s *service) CreateOpportunity(ctx context.Context, req pipelinedomain.CreateOpportunityRequest) (*pipelinedomain.OpportunityResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, pipelinedomain.ErrInvalidOrganization
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, pipelinedomain.ErrInvalidTitle
	}
	if req.ValueCents < 0 {
		return nil, pipelinedomain.ErrInvalidValue
	}

	stage, err := s.findStage(ctx, orgID, req.StageID)
	if err != nil {
		return nil, err
	}

	probability := stage.DefaultProbability
	if req.Probability != nil {
		if *req.Probability < 0 || *req.Probability > 100 {
			return nil, pipelinedomain.ErrInvalidProbability
		}
		probability = *req.Probability
	}

	var contactID *snowflake.ID
	if raw := strings.TrimSpace(req.ContactID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return nil, pipelinedomain.ErrInvalidContact
		}
		contactID = &id
	}

	currency := strings.TrimSpace(strings.ToLower(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	now := time.Now().UTC()
	opp := pipelinedomain.SalesOpportunity{
		ID:                s.genID.Generate(),
		OrgID:             orgID,
		ContactID:         contactID,
		Title:             title,
		ValueCents:        req.ValueCents,
		Currency:          currency,
		StageID:           stage.ID,
		Probability:       probability,
		ExpectedCloseDate: req.ExpectedCloseDate,
		Status:            pipelinedomain.OpportunityOpen,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertOpportunity(ctx, s.db, &opp); err != nil {
		return nil, err
	}

	s.recordActivity(ctx, &opp, pipelinedomain.ActivityCreated, map[string]any{
		"stage_id": stage.ID.String(),
		"stage":    stage.Name,
	})
	s.emit(ctx, orgID, "opportunity.created", map[string]any{
		"opportunity_id": opp.ID.String(),
		"title":          opp.Title,
		"value_cents":    opp.ValueCents,
	})

	resp := toOpportunityResponse(opp)
	return &resp, nil
}

func (s *service) GetOpportunity(ctx context.Context, id string) (*pipelinedomain.OpportunityResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, pipelinedomain.ErrInvalidOrganization
	}
	opp, err := s.findOpportunity(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	resp := toOpportunityResponse(*opp)
	return &resp, nil
}

func (s *service) UpdateOpportunity(ctx context.Context, id string, req pipelinedomain.UpdateOpportunityRequest) (*pipelinedomain.OpportunityResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, pipelinedomain.ErrInvalidOrganization
	}
	opp, err := s.findOpportunity(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if opp.Status != pipelinedomain.OpportunityOpen {
		return nil, pipelinedomain.ErrOpportunityClosed
	}

	if err := applyOpportunityUpdate(opp, req); err != nil {
		return nil, err
	}
	opp.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateOpportunity(ctx, s.db, opp); err != nil {
		return nil, err
	}

	s.recordActivity(ctx, opp, pipelinedomain.ActivityUpdated, nil)

	resp := toOpportunityResponse(*opp)
	return &resp, nil
}

func (s *service) DeleteOpportunity(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return pipelinedomain.ErrInvalidOrganization
	}
	opp, err := s.findOpportunity(ctx, orgID, id)
	if err != nil {
		return err
	}
	return s.repo.DeleteOpportunity(ctx, s.db, orgID, opp.ID)
}

func (s *service) ListOpportunities(ctx context.Context, req pipelinedomain.ListOpportunitiesRequest) (*pipelinedomain.ListOpportunitiesResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, pipelinedomain.ErrInvalidOrganization
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.WithQuerySortBy("created_at", "desc", nil)),
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(req.PageSize),
		}),
	}
	if raw := strings.TrimSpace(req.StageID); raw != "" {
		stageID, err := snowflake.ParseString(raw)
		if err != nil {
			return nil, pipelinedomain.ErrStageNotFound
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "stage_id",
			Operator: option.EQ,
			Value:    stageID,
		}))
	}
	if status := strings.TrimSpace(strings.ToLower(req.Status)); status != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "status",
			Operator: option.EQ,
			Value:    status,
		}))
	}

	opps, err := s.repo.ListOpportunities(ctx, s.db, orgID, opts...)
	if err != nil {
		return nil, err
	}

	size := int(req.PageSize)
	if size <= 0 {
		size = 10
	}
	resp := &pipelinedomain.ListOpportunitiesResponse{}
	for i, opp := range opps {
		if i >= size {
			cursor, err := pagination.EncodeCursor(pagination.Cursor{
				CreatedAt: opps[size-1].CreatedAt.Format(time.RFC3339Nano),
				ID:        opps[size-1].ID.String(),
			})
			if err == nil {
				resp.NextPageToken = cursor
			}
			break
		}
		resp.Opportunities = append(resp.Opportunities, toOpportunityResponse(opp))
	}
	return resp, nil
}

// MoveStage moves an opportunity to a new stage, taking the stage default
// probability unless the request overrides it. Terminal stages close the
// opportunity.
func (s *service) MoveStage(ctx context.Context, id string, req pipelinedomain.MoveStageRequest) (*pipelinedomain.OpportunityResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, pipelinedomain.ErrInvalidOrganization
	}
	opp, err := s.findOpportunity(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if opp.Status != pipelinedomain.OpportunityOpen {
		return nil, pipelinedomain.ErrOpportunityClosed
	}

	stage, err := s.findStage(ctx, orgID, req.StageID)
	if err != nil {
		return nil, err
	}

	probability := stage.DefaultProbability
	if req.Probability != nil {
		if *req.Probability < 0 || *req.Probability > 100 {
			return nil, pipelinedomain.ErrInvalidProbability
		}
		probability = *req.Probability
	}

	fromStageID := opp.StageID
	now := time.Now().UTC()
	opp.StageID = stage.ID
	opp.Probability = probability
	opp.UpdatedAt = now

	activityType := pipelinedomain.ActivityStageChanged
	switch {
	case stage.IsWon:
		opp.Status = pipelinedomain.OpportunityWon
		opp.ClosedAt = &now
		activityType = pipelinedomain.ActivityWon
	case stage.IsLost:
		opp.Status = pipelinedomain.OpportunityLost
		opp.ClosedAt = &now
		activityType = pipelinedomain.ActivityLost
	}

	if err := s.repo.UpdateOpportunity(ctx, s.db, opp); err != nil {
		return nil, err
	}

	s.recordActivity(ctx, opp, activityType, map[string]any{
		"from_stage_id": fromStageID.String(),
		"to_stage_id":   stage.ID.String(),
		"to_stage":      stage.Name,
		"probability":   probability,
	})

	switch opp.Status {
	case pipelinedomain.OpportunityWon:
		s.emit(ctx, orgID, "opportunity.won", map[string]any{
			"opportunity_id": opp.ID.String(),
			"title":          opp.Title,
			"value_cents":    opp.ValueCents,
			"currency":       opp.Currency,
		})
		s.notify(ctx, notificationdomain.OpportunityWon(orgID, opp.ID, opp.Title, opp.ValueCents, opp.Currency))
	case pipelinedomain.OpportunityLost:
		s.emit(ctx, orgID, "opportunity.lost", map[string]any{
			"opportunity_id": opp.ID.String(),
			"title":          opp.Title,
		})
	default:
		s.emit(ctx, orgID, "opportunity.stage_changed", map[string]any{
			"opportunity_id": opp.ID.String(),
			"stage_id":       stage.ID.String(),
			"stage":          stage.Name,
		})
	}

	resp := toOpportunityResponse(*opp)
	return &resp, nil
}

// BulkUpdateOpportunities applies each update in turn; failures are
// collected rather than aborting the batch.
func (s *service) BulkUpdateOpportunities(ctx context.Context, updates []pipelinedomain.BulkOpportunityUpdate) (*pipelinedomain.BulkUpdateResult, error) {
	if _, ok := orgcontext.OrgIDFromContext(ctx); !ok {
		return nil, pipelinedomain.ErrInvalidOrganization
	}

	result := &pipelinedomain.BulkUpdateResult{}
	for _, update := range updates {
		if _, err := s.UpdateOpportunity(ctx, update.OpportunityID, update.Update); err != nil {
			result.Fail(update.OpportunityID, err.Error())
			continue
		}
		result.Updated++
	}
	return result, nil
}

// Metrics aggregates the funnel over the fetched open set plus all-time
// win/lost counts.
func (s *service) Metrics(ctx context.Context) (*pipelinedomain.PipelineMetrics, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, pipelinedomain.ErrInvalidOrganization
	}
	if s.features != nil {
		enabled, err := s.features.IsEnabled(ctx, orgID, featuredomain.CodePipelineMetrics)
		if err != nil {
			return nil, err
		}
		if !enabled {
			return nil, featuredomain.ErrFeatureNotEnabled
		}
	}

	stages, err := s.repo.ListStages(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	open, err := s.repo.ListOpenOpportunities(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	byStage := make(map[snowflake.ID]*pipelinedomain.StageMetrics, len(stages))
	metrics := &pipelinedomain.PipelineMetrics{}
	for _, stage := range stages {
		byStage[stage.ID] = &pipelinedomain.StageMetrics{
			StageID:   stage.ID.String(),
			StageName: stage.Name,
		}
	}
	for _, opp := range open {
		weighted := opp.WeightedValueCents()
		metrics.OpenCount++
		metrics.TotalValueCents += opp.ValueCents
		metrics.WeightedValueCents += weighted
		if sm, ok := byStage[opp.StageID]; ok {
			sm.Count++
			sm.TotalValueCents += opp.ValueCents
			sm.WeightedValueCents += weighted
		}
	}
	for _, stage := range stages {
		metrics.Stages = append(metrics.Stages, *byStage[stage.ID])
	}

	won, err := s.repo.CountByStatus(ctx, s.db, orgID, pipelinedomain.OpportunityWon)
	if err != nil {
		return nil, err
	}
	lost, err := s.repo.CountByStatus(ctx, s.db, orgID, pipelinedomain.OpportunityLost)
	if err != nil {
		return nil, err
	}
	metrics.WonCount = won
	metrics.LostCount = lost
	if closed := won + lost; closed > 0 {
		metrics.WinRate = float64(won) / float64(closed)
	}
	return metrics, nil
}

func (s *service) findStage(ctx context.Context, orgID snowflake.ID, id string) (*pipelinedomain.PipelineStage, error) {
	stageID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, pipelinedomain.ErrStageNotFound
	}
	stage, err := s.repo.FindStageByID(ctx, s.db, orgID, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, pipelinedomain.ErrStageNotFound
	}
	return stage, nil
}

func (s *service) findOpportunity(ctx context.Context, orgID snowflake.ID, id string) (*pipelinedomain.SalesOpportunity, error) {
	oppID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, pipelinedomain.ErrOpportunityNotFound
	}
	opp, err := s.repo.FindOpportunityByID(ctx, s.db, orgID, oppID)
	if err != nil {
		return nil, err
	}
	if opp == nil {
		return nil, pipelinedomain.ErrOpportunityNotFound
	}
	return opp, nil
}

func (s *service) recordActivity(ctx context.Context, opp *pipelinedomain.SalesOpportunity, activityType string, detail map[string]any) {
	activity := pipelinedomain.OpportunityActivity{
		ID:            s.genID.Generate(),
		OrgID:         opp.OrgID,
		OpportunityID: opp.ID,
		ActivityType:  activityType,
		Detail:        toJSONMap(detail),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.InsertActivity(ctx, s.db, &activity); err != nil {
		s.log.Warn("failed to record opportunity activity",
			zap.String("opportunity_id", opp.ID.String()),
			zap.String("activity_type", activityType),
			zap.Error(err),
		)
	}
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

func applyOpportunityUpdate(opp *pipelinedomain.SalesOpportunity, req pipelinedomain.UpdateOpportunityRequest) error {
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return pipelinedomain.ErrInvalidTitle
		}
		opp.Title = title
	}
	if req.ValueCents != nil {
		if *req.ValueCents < 0 {
			return pipelinedomain.ErrInvalidValue
		}
		opp.ValueCents = *req.ValueCents
	}
	if req.Probability != nil {
		if *req.Probability < 0 || *req.Probability > 100 {
			return pipelinedomain.ErrInvalidProbability
		}
		opp.Probability = *req.Probability
	}
	if req.ExpectedCloseDate != nil {
		opp.ExpectedCloseDate = req.ExpectedCloseDate
	}
	return nil
}

func toStageResponse(stage pipelinedomain.PipelineStage) pipelinedomain.StageResponse {
	return pipelinedomain.StageResponse{
		ID:                 stage.ID.String(),
		Name:               stage.Name,
		Position:           stage.Position,
		DefaultProbability: stage.DefaultProbability,
		IsWon:              stage.IsWon,
		IsLost:             stage.IsLost,
		CreatedAt:          stage.CreatedAt,
	}
}

func toOpportunityResponse(opp pipelinedomain.SalesOpportunity) pipelinedomain.OpportunityResponse {
	contactID := ""
	if opp.ContactID != nil {
		contactID = opp.ContactID.String()
	}
	return pipelinedomain.OpportunityResponse{
		ID:                 opp.ID.String(),
		ContactID:          contactID,
		Title:              opp.Title,
		ValueCents:         opp.ValueCents,
		Currency:           opp.Currency,
		StageID:            opp.StageID.String(),
		Probability:        opp.Probability,
		WeightedValueCents: opp.WeightedValueCents(),
		ExpectedCloseDate:  opp.ExpectedCloseDate,
		Status:             opp.Status,
		ClosedAt:           opp.ClosedAt,
		CreatedAt:          opp.CreatedAt,
		UpdatedAt:          opp.UpdatedAt,
	}
}

func toJSONMap(m map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range m {
		out[k] = v
	}
	return out
}
