package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	aiusagedomain "github.com/aware88/fresh-crm/internal/aiusage/domain"
	"github.com/aware88/fresh-crm/internal/clock"
	"github.com/aware88/fresh-crm/internal/cloudmetrics"
	"github.com/aware88/fresh-crm/internal/config"
	featuredomain "github.com/aware88/fresh-crm/internal/feature/domain"
	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
	"github.com/aware88/fresh-crm/internal/observability/metrics"
	"github.com/aware88/fresh-crm/internal/orgcontext"
	paymentdomain "github.com/aware88/fresh-crm/internal/payment/domain"
	plandomain "github.com/aware88/fresh-crm/internal/plan/domain"
	"github.com/aware88/fresh-crm/internal/providers/pdf"
	"github.com/aware88/fresh-crm/internal/ratelimit"
	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
	"github.com/aware88/fresh-crm/pkg/db"
	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/aware88/fresh-crm/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Config config.Config
	Clock  clock.Clock
	Repo   aiusagedomain.Repository

	Features      featuredomain.Service          `optional:"true"`
	Subscriptions subscriptiondomain.Service     `optional:"true"`
	Notifier      notificationdomain.Service     `optional:"true"`
	Checkout      paymentdomain.CheckoutClient   `optional:"true"`
	Limiter       *ratelimit.AIUsageLimiter      `optional:"true"`
	PDF           pdf.Provider                   `optional:"true"`
	Metrics       *metrics.Metrics               `optional:"true"`
}

type service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	cfg           config.Config
	clock         clock.Clock
	repo          aiusagedomain.Repository
	features      featuredomain.Service
	subscriptions subscriptiondomain.Service
	notifier      notificationdomain.Service
	checkout      paymentdomain.CheckoutClient
	limiter       *ratelimit.AIUsageLimiter
	pdf           pdf.Provider
	metrics       *metrics.Metrics
}

func NewService(p Params) aiusagedomain.Service {
	return &service{
		db:            p.DB,
		log:           p.Log.Named("aiusage.service"),
		genID:         p.GenID,
		cfg:           p.Config,
		clock:         p.Clock,
		repo:          p.Repo,
		features:      p.Features,
		subscriptions: p.Subscriptions,
		notifier:      p.Notifier,
		checkout:      p.Checkout,
		limiter:       p.Limiter,
		pdf:           p.PDF,
		metrics:       p.Metrics,
	}
}

func (s *service) Record(ctx context.Context, req aiusagedomain.RecordUsageRequest) (*aiusagedomain.UsageRecordResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, aiusagedomain.ErrInvalidOrganization
	}

	feature := strings.TrimSpace(req.Feature)
	if !aiusagedomain.ValidFeature(feature) {
		return nil, aiusagedomain.ErrInvalidFeature
	}
	messages := req.MessageCount
	if messages == 0 {
		messages = 1
	}
	if messages < 0 || req.TokenCount < 0 {
		return nil, aiusagedomain.ErrInvalidAmount
	}

	if s.limiter.Enabled() {
		result, err := s.limiter.AllowRecord(ctx, orgID.String())
		if err != nil {
			s.log.Warn("rate limiter unavailable", zap.Error(err))
		} else if !result.Allowed {
			return nil, aiusagedomain.ErrRateLimited
		}
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.FindRecordByKey(ctx, s.db, orgID, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			resp := toUsageRecordResponse(*existing)
			return &resp, nil
		}
	}

	now := s.clock.Now()
	period, err := s.ensureOpenPeriod(ctx, orgID, now)
	if err != nil {
		return nil, err
	}

	planLimit, limited, topUpRemaining, err := s.quotaCeiling(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if limited {
		before := planLimit + topUpRemaining - period.MessageTotal
		if before < messages {
			return nil, aiusagedomain.ErrQuotaExceeded
		}
	}

	record := aiusagedomain.AIUsageRecord{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		Feature:        feature,
		MessageCount:   messages,
		TokenCount:     req.TokenCount,
		IdempotencyKey: optionalString(key),
		RecordedAt:     now,
	}
	if err := s.repo.InsertRecord(ctx, s.db, &record); err != nil {
		if db.IsDuplicateKeyErr(err) && key != "" {
			existing, findErr := s.repo.FindRecordByKey(ctx, s.db, orgID, key)
			if findErr == nil && existing != nil {
				resp := toUsageRecordResponse(*existing)
				return &resp, nil
			}
		}
		return nil, err
	}

	if err := s.repo.AddPeriodUsage(ctx, s.db, period.ID, messages, req.TokenCount); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordAIUsage(ctx, feature)
	}
	cloudmetrics.RecordAIMessages(orgID.String(), feature, messages)
	if limited {
		s.maybeNotifyQuotaLow(ctx, orgID, planLimit, topUpRemaining, period.MessageTotal, messages)
	}

	resp := toUsageRecordResponse(record)
	return &resp, nil
}

func (s *service) Quota(ctx context.Context) (*aiusagedomain.QuotaResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, aiusagedomain.ErrInvalidOrganization
	}

	period, err := s.ensureOpenPeriod(ctx, orgID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	planLimit, limited, topUpRemaining, err := s.quotaCeiling(ctx, orgID)
	if err != nil {
		return nil, err
	}

	resp := &aiusagedomain.QuotaResponse{
		PeriodStart:    period.PeriodStart,
		PeriodEnd:      period.PeriodEnd,
		MessagesUsed:   period.MessageTotal,
		TokensUsed:     period.TokenTotal,
		PlanLimit:      planLimit,
		TopUpRemaining: topUpRemaining,
		Unlimited:      !limited,
	}
	if limited {
		remaining := planLimit + topUpRemaining - period.MessageTotal
		if remaining < 0 {
			remaining = 0
		}
		resp.Remaining = remaining
	}
	return resp, nil
}

func (s *service) CheckQuota(ctx context.Context, orgID snowflake.ID, messages int64) error {
	if messages <= 0 {
		return aiusagedomain.ErrInvalidAmount
	}
	planLimit, limited, topUpRemaining, err := s.quotaCeiling(ctx, orgID)
	if err != nil {
		return err
	}
	if !limited {
		return nil
	}
	period, err := s.repo.FindOpenPeriod(ctx, s.db, orgID)
	if err != nil {
		return err
	}
	var used int64
	if period != nil {
		used = period.MessageTotal
	}
	if planLimit+topUpRemaining-used < messages {
		return aiusagedomain.ErrQuotaExceeded
	}
	return nil
}

func (s *service) ListUsage(ctx context.Context, req aiusagedomain.ListUsageRequest) (*aiusagedomain.ListUsageResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, aiusagedomain.ErrInvalidOrganization
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.WithQuerySortBy("recorded_at", "desc", map[string]bool{
			"recorded_at": true,
		})),
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(req.PageSize),
		}),
	}
	if feature := strings.TrimSpace(req.Feature); feature != "" {
		if !aiusagedomain.ValidFeature(feature) {
			return nil, aiusagedomain.ErrInvalidFeature
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "feature",
			Operator: option.EQ,
			Value:    feature,
		}))
	}

	records, err := s.repo.ListRecords(ctx, s.db, orgID, opts...)
	if err != nil {
		return nil, err
	}

	size := int(req.PageSize)
	if size <= 0 {
		size = 10
	}
	resp := &aiusagedomain.ListUsageResponse{}
	for i, record := range records {
		if i >= size {
			cursor, err := pagination.EncodeCursor(pagination.Cursor{
				CreatedAt: records[size-1].RecordedAt.Format(time.RFC3339Nano),
				ID:        records[size-1].ID.String(),
			})
			if err == nil {
				resp.NextPageToken = cursor
			}
			break
		}
		resp.Records = append(resp.Records, toUsageRecordResponse(record))
	}
	return resp, nil
}

func (s *service) CreateTopUpCheckout(ctx context.Context, req aiusagedomain.CreateTopUpRequest) (*aiusagedomain.TopUpResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, aiusagedomain.ErrInvalidOrganization
	}
	if req.MessageAmount <= 0 || req.PriceCents <= 0 {
		return nil, aiusagedomain.ErrInvalidAmount
	}
	if s.checkout == nil {
		return nil, paymentdomain.ErrProviderNotConfigured
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	now := s.clock.Now()
	topUp := aiusagedomain.TopUp{
		ID:               s.genID.Generate(),
		OrgID:            orgID,
		MessageAmount:    req.MessageAmount,
		MessageRemaining: req.MessageAmount,
		PriceCents:       req.PriceCents,
		Currency:         currency,
		Status:           aiusagedomain.TopUpStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.InsertTopUp(ctx, s.db, &topUp); err != nil {
		return nil, err
	}

	session, err := s.checkout.CreateTopUpCheckout(ctx, paymentdomain.TopUpCheckoutParams{
		OrgID:         orgID,
		TopUpID:       topUp.ID,
		ProductName:   fmt.Sprintf("AI message top-up (%d messages)", req.MessageAmount),
		MessageAmount: req.MessageAmount,
		PriceCents:    req.PriceCents,
		Currency:      currency,
		SuccessURL:    s.cfg.Stripe.SuccessURL,
		CancelURL:     s.cfg.Stripe.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	topUp.ProviderSessionID = optionalString(session.SessionID)
	topUp.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateTopUp(ctx, s.db, &topUp); err != nil {
		return nil, err
	}

	resp := toTopUpResponse(topUp)
	resp.CheckoutURL = session.URL
	return &resp, nil
}

func (s *service) ApplyTopUpCompleted(ctx context.Context, providerSessionID string) error {
	sessionID := strings.TrimSpace(providerSessionID)
	if sessionID == "" {
		return aiusagedomain.ErrTopUpNotFound
	}
	topUp, err := s.repo.FindTopUpBySession(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	if topUp == nil {
		return aiusagedomain.ErrTopUpNotFound
	}
	if topUp.Status != aiusagedomain.TopUpStatusPending {
		return nil
	}

	topUp.Status = aiusagedomain.TopUpStatusCompleted
	topUp.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateTopUp(ctx, s.db, topUp); err != nil {
		return err
	}

	s.log.Info("ai topup completed",
		zap.String("org_id", topUp.OrgID.String()),
		zap.Int64("message_amount", topUp.MessageAmount))
	return nil
}

func (s *service) ListTopUps(ctx context.Context) (*aiusagedomain.ListTopUpsResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, aiusagedomain.ErrInvalidOrganization
	}
	topUps, err := s.repo.ListTopUps(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	resp := &aiusagedomain.ListTopUpsResponse{}
	for _, topUp := range topUps {
		resp.TopUps = append(resp.TopUps, toTopUpResponse(topUp))
	}
	return resp, nil
}

func (s *service) TopUpReceipt(ctx context.Context, id string) ([]byte, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, aiusagedomain.ErrInvalidOrganization
	}
	topUpID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, aiusagedomain.ErrTopUpNotFound
	}
	topUp, err := s.repo.FindTopUpByID(ctx, s.db, orgID, topUpID)
	if err != nil {
		return nil, err
	}
	if topUp == nil {
		return nil, aiusagedomain.ErrTopUpNotFound
	}
	if topUp.Status == aiusagedomain.TopUpStatusPending || topUp.Status == aiusagedomain.TopUpStatusCanceled {
		return nil, aiusagedomain.ErrTopUpNotPaid
	}
	if s.pdf == nil {
		return nil, aiusagedomain.ErrReceiptUnavailable
	}

	reader, err := s.pdf.GenerateReceipt(ctx, pdf.Receipt{
		ReceiptNumber: topUp.ID.String(),
		OrgName:       orgID.String(),
		DatePaid:      topUp.UpdatedAt.Format("2006-01-02"),
		Description:   fmt.Sprintf("AI message top-up (%d messages)", topUp.MessageAmount),
		Quantity:      1,
		UnitPrice:     formatCents(topUp.PriceCents, topUp.Currency),
		Total:         formatCents(topUp.PriceCents, topUp.Currency),
	})
	if err != nil {
		return nil, err
	}
	if reader == nil {
		return nil, aiusagedomain.ErrReceiptUnavailable
	}
	return io.ReadAll(reader)
}

func (s *service) Rollover(ctx context.Context, now time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	periods, err := s.repo.ListDuePeriods(ctx, s.db, now, batchSize)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, period := range periods {
		if err := ctx.Err(); err != nil {
			return closed, err
		}
		if err := s.rolloverPeriod(ctx, period, now); err != nil {
			s.log.Warn("failed to roll over usage period",
				zap.String("org_id", period.OrgID.String()),
				zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *service) rolloverPeriod(ctx context.Context, period aiusagedomain.AIUsagePeriod, now time.Time) error {
	token, locked, err := s.limiter.TryLockPeriod(ctx, period.OrgID.String())
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}
	defer func() {
		if err := s.limiter.ReleasePeriod(ctx, period.OrgID.String(), token); err != nil {
			s.log.Warn("failed to release rollover lock", zap.Error(err))
		}
	}()

	planLimit, limited, _, err := s.quotaCeiling(ctx, period.OrgID)
	if err != nil {
		return err
	}

	// Messages beyond the plan allowance came out of purchased top-ups;
	// burn them oldest first when the window closes.
	if limited && period.MessageTotal > planLimit {
		overflow := period.MessageTotal - planLimit
		if err := s.consumeTopUps(ctx, period.OrgID, overflow, now); err != nil {
			return err
		}
	}

	return s.repo.ClosePeriod(ctx, s.db, period.ID, now)
}

func (s *service) consumeTopUps(ctx context.Context, orgID snowflake.ID, overflow int64, now time.Time) error {
	topUps, err := s.repo.ListActiveTopUps(ctx, s.db, orgID)
	if err != nil {
		return err
	}
	for i := range topUps {
		if overflow <= 0 {
			return nil
		}
		topUp := topUps[i]
		take := topUp.MessageRemaining
		if take > overflow {
			take = overflow
		}
		topUp.MessageRemaining -= take
		overflow -= take
		if topUp.MessageRemaining == 0 {
			topUp.Status = aiusagedomain.TopUpStatusConsumed
		}
		topUp.UpdatedAt = now
		if err := s.repo.UpdateTopUp(ctx, s.db, &topUp); err != nil {
			return err
		}
	}
	return nil
}

// ensureOpenPeriod finds the org's open usage period, opening one anchored
// to the subscription billing window (calendar month when absent).
func (s *service) ensureOpenPeriod(ctx context.Context, orgID snowflake.ID, now time.Time) (*aiusagedomain.AIUsagePeriod, error) {
	period, err := s.repo.FindOpenPeriod(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if period != nil {
		return period, nil
	}

	start, end := s.periodWindow(ctx, now)
	period = &aiusagedomain.AIUsagePeriod{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		PeriodStart: start,
		PeriodEnd:   end,
		Status:      aiusagedomain.PeriodStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertPeriod(ctx, s.db, period); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.repo.FindOpenPeriod(ctx, s.db, orgID)
		}
		return nil, err
	}
	return period, nil
}

func (s *service) periodWindow(ctx context.Context, now time.Time) (time.Time, time.Time) {
	if s.subscriptions != nil {
		sub, err := s.subscriptions.GetCurrent(ctx)
		if err == nil && sub != nil && sub.CurrentPeriodStart != nil && sub.CurrentPeriodEnd != nil &&
			sub.CurrentPeriodEnd.After(now) {
			return sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC()
		}
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// quotaCeiling resolves the plan's monthly message limit and the active
// top-up balance. limited=false means the plan carries no AI limit.
func (s *service) quotaCeiling(ctx context.Context, orgID snowflake.ID) (int64, bool, int64, error) {
	topUpRemaining, err := s.repo.SumActiveTopUpRemaining(ctx, s.db, orgID)
	if err != nil {
		return 0, false, 0, err
	}
	if s.features == nil {
		return 0, false, topUpRemaining, nil
	}
	limit, ok, err := s.features.Limit(ctx, orgID, plandomain.LimitAIMessagesPerMonth)
	if err != nil {
		return 0, false, 0, err
	}
	if !ok {
		return 0, false, topUpRemaining, nil
	}
	return limit, true, topUpRemaining, nil
}

// maybeNotifyQuotaLow raises a notification when recorded usage crosses
// below ten percent of the total allowance.
func (s *service) maybeNotifyQuotaLow(ctx context.Context, orgID snowflake.ID, planLimit, topUpRemaining, usedBefore, recorded int64) {
	if s.notifier == nil {
		return
	}
	total := planLimit + topUpRemaining
	if total <= 0 {
		return
	}
	threshold := total / 10
	before := total - usedBefore
	after := before - recorded
	if before <= threshold || after > threshold {
		return
	}
	if after < 0 {
		after = 0
	}
	if _, err := s.notifier.Create(ctx, notificationdomain.QuotaLow(orgID, after, total)); err != nil {
		s.log.Warn("failed to create quota notification", zap.Error(err))
	}
}

func toUsageRecordResponse(record aiusagedomain.AIUsageRecord) aiusagedomain.UsageRecordResponse {
	resp := aiusagedomain.UsageRecordResponse{
		ID:           record.ID.String(),
		Feature:      record.Feature,
		MessageCount: record.MessageCount,
		TokenCount:   record.TokenCount,
		RecordedAt:   record.RecordedAt,
	}
	if record.IdempotencyKey != nil {
		resp.IdempotencyKey = *record.IdempotencyKey
	}
	return resp
}

func toTopUpResponse(topUp aiusagedomain.TopUp) aiusagedomain.TopUpResponse {
	return aiusagedomain.TopUpResponse{
		ID:               topUp.ID.String(),
		MessageAmount:    topUp.MessageAmount,
		MessageRemaining: topUp.MessageRemaining,
		PriceCents:       topUp.PriceCents,
		Currency:         topUp.Currency,
		Status:           string(topUp.Status),
		CreatedAt:        topUp.CreatedAt,
	}
}

func formatCents(cents int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(cents)/100, strings.ToUpper(currency))
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
