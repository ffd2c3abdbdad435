package service

import (
	"context"
	"strings"
	"time"

	"github.com/aware88/fresh-crm/internal/cache"
	"github.com/aware88/fresh-crm/internal/cloudmetrics"
	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
	"github.com/aware88/fresh-crm/internal/orgcontext"
	plandomain "github.com/aware88/fresh-crm/internal/plan/domain"
	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
	webhookdomain "github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/aware88/fresh-crm/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     subscriptiondomain.Repository
	PlanRepo plandomain.Repository
	Cache    cache.EntitlementCache     `optional:"true"`
	Emitter  webhookdomain.Emitter      `optional:"true"`
	Notifier notificationdomain.Service `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     subscriptiondomain.Repository
	planRepo plandomain.Repository
	cache    cache.EntitlementCache
	emitter  webhookdomain.Emitter
	notifier notificationdomain.Service
}

func NewService(p Params) subscriptiondomain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		planRepo: p.PlanRepo,
		cache:    p.Cache,
		emitter:  p.Emitter,
		notifier: p.Notifier,
	}
}

// entitlementChanged propagates a plan or status transition: the cached
// entitlement is dropped and the control plane gauge updated.
func (s *service) entitlementChanged(sub *subscriptiondomain.OrganizationSubscription) {
	if s.cache != nil {
		s.cache.Invalidate(sub.OrgID)
	}
	active := 0
	if sub.Status.Entitled() {
		active = 1
	}
	cloudmetrics.UpdateActiveSubscriptions(sub.OrgID.String(), active)
}

func (s *service) GetCurrent(ctx context.Context) (*subscriptiondomain.SubscriptionResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, subscriptiondomain.ErrInvalidOrganization
	}
	sub, err := s.repo.FindCurrentByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	resp := s.toResponse(ctx, sub)
	return &resp, nil
}

func (s *service) List(ctx context.Context) ([]subscriptiondomain.SubscriptionResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, subscriptiondomain.ErrInvalidOrganization
	}
	subs, err := s.repo.ListByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	resp := make([]subscriptiondomain.SubscriptionResponse, 0, len(subs))
	for i := range subs {
		resp = append(resp, s.toResponse(ctx, &subs[i]))
	}
	return resp, nil
}

func (s *service) CancelAtPeriodEnd(ctx context.Context) (*subscriptiondomain.SubscriptionResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, subscriptiondomain.ErrInvalidOrganization
	}
	sub, err := s.repo.FindCurrentByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	if sub.CancelAtPeriodEnd {
		return nil, subscriptiondomain.ErrAlreadyCanceled
	}

	sub.CancelAtPeriodEnd = true
	sub.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, sub); err != nil {
		return nil, err
	}

	s.emit(ctx, sub.OrgID, "subscription.updated", map[string]any{
		"subscription_id":      sub.ID.String(),
		"status":               string(sub.Status),
		"cancel_at_period_end": true,
	})

	resp := s.toResponse(ctx, sub)
	return &resp, nil
}

// Entitlements resolves the plan the org is entitled to. Orgs without an
// entitled subscription fall back to the starter plan.
func (s *service) Entitlements(ctx context.Context, orgID snowflake.ID) (*subscriptiondomain.Entitlement, error) {
	if orgID == 0 {
		return nil, subscriptiondomain.ErrInvalidOrganization
	}
	sub, err := s.repo.FindCurrentByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	var plan *plandomain.SubscriptionPlan
	status := subscriptiondomain.SubscriptionStatusActive
	if sub != nil && sub.Status.Entitled() {
		plan, err = s.planRepo.FindByID(ctx, s.db, sub.PlanID)
		if err != nil {
			return nil, err
		}
		status = sub.Status
	}
	if plan == nil {
		plan, err = s.planRepo.FindBySlug(ctx, s.db, plandomain.TierStarter)
		if err != nil {
			return nil, err
		}
		if plan == nil {
			return nil, subscriptiondomain.ErrInvalidPlan
		}
		status = subscriptiondomain.SubscriptionStatusActive
	}

	return &subscriptiondomain.Entitlement{
		OrgID:    orgID,
		PlanID:   plan.ID,
		PlanSlug: plan.Slug,
		Tier:     plan.Tier,
		Status:   status,
		Features: plan.Features,
		Limits:   plan.Limits,
	}, nil
}

func (s *service) ApplyCheckoutCompleted(ctx context.Context, evt subscriptiondomain.CheckoutCompleted) error {
	if evt.OrgID == 0 {
		return subscriptiondomain.ErrInvalidOrganization
	}
	if strings.TrimSpace(evt.ProviderSubscriptionID) == "" {
		return subscriptiondomain.ErrInvalidSubscription
	}

	plan, err := s.planRepo.FindByStripePriceID(ctx, s.db, evt.PriceID)
	if err != nil {
		return err
	}
	if plan == nil {
		return subscriptiondomain.ErrInvalidPlan
	}

	now := time.Now().UTC()
	existing, err := s.repo.FindByProviderSubscriptionID(ctx, s.db, evt.Provider, evt.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.PlanID = plan.ID
		existing.ProviderCustomerID = evt.ProviderCustomerID
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, existing); err != nil {
			return err
		}
		s.entitlementChanged(existing)
		return nil
	}

	sub := &subscriptiondomain.OrganizationSubscription{
		ID:                     s.genID.Generate(),
		OrgID:                  evt.OrgID,
		PlanID:                 plan.ID,
		Provider:               evt.Provider,
		ProviderSubscriptionID: evt.ProviderSubscriptionID,
		ProviderCustomerID:     evt.ProviderCustomerID,
		Status:                 subscriptiondomain.SubscriptionStatusActive,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.Insert(ctx, s.db, sub); err != nil {
		// A concurrent provider event may have inserted the same
		// subscription between the lookup and the insert.
		if db.IsDuplicateKeyErr(err) {
			return nil
		}
		return err
	}

	s.entitlementChanged(sub)
	s.log.Info("subscription created from checkout",
		zap.String("org_id", evt.OrgID.String()),
		zap.String("plan", plan.Slug),
	)
	s.emit(ctx, evt.OrgID, "subscription.created", map[string]any{
		"subscription_id": sub.ID.String(),
		"plan":            plan.Slug,
		"status":          string(sub.Status),
	})
	return nil
}

func (s *service) ApplySubscriptionEvent(ctx context.Context, evt subscriptiondomain.ProviderSubscriptionEvent) error {
	status, ok := subscriptiondomain.StatusFromProvider(evt.ProviderStatus)
	if !ok {
		return subscriptiondomain.ErrInvalidStatus
	}
	sub, err := s.repo.FindByProviderSubscriptionID(ctx, s.db, evt.Provider, evt.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		// Checkout completion is the source of truth for new rows; a
		// provider event arriving first has no org to attach to.
		s.log.Warn("subscription event for unknown subscription",
			zap.String("provider_subscription_id", evt.ProviderSubscriptionID),
		)
		return nil
	}

	if evt.PriceID != "" {
		plan, err := s.planRepo.FindByStripePriceID(ctx, s.db, evt.PriceID)
		if err != nil {
			return err
		}
		if plan != nil {
			sub.PlanID = plan.ID
		}
	}
	sub.Status = status
	sub.CurrentPeriodStart = evt.CurrentPeriodStart
	sub.CurrentPeriodEnd = evt.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = evt.CancelAtPeriodEnd
	if evt.ProviderCustomerID != "" {
		sub.ProviderCustomerID = evt.ProviderCustomerID
	}
	sub.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, sub); err != nil {
		return err
	}

	s.entitlementChanged(sub)
	s.emit(ctx, sub.OrgID, "subscription.updated", map[string]any{
		"subscription_id": sub.ID.String(),
		"status":          string(sub.Status),
	})
	return nil
}

func (s *service) ApplySubscriptionDeleted(ctx context.Context, provider, providerSubscriptionID string) error {
	sub, err := s.repo.FindByProviderSubscriptionID(ctx, s.db, provider, providerSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}
	if sub.Status == subscriptiondomain.SubscriptionStatusCanceled {
		return nil
	}

	sub.Status = subscriptiondomain.SubscriptionStatusCanceled
	sub.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, sub); err != nil {
		return err
	}

	s.entitlementChanged(sub)
	s.emit(ctx, sub.OrgID, "subscription.canceled", map[string]any{
		"subscription_id": sub.ID.String(),
	})
	return nil
}

func (s *service) ApplyInvoicePaymentSucceeded(ctx context.Context, evt subscriptiondomain.InvoicePaymentEvent) error {
	sub, err := s.repo.FindByProviderSubscriptionID(ctx, s.db, evt.Provider, evt.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	if sub.Status == subscriptiondomain.SubscriptionStatusPastDue ||
		sub.Status == subscriptiondomain.SubscriptionStatusIncomplete {
		sub.Status = subscriptiondomain.SubscriptionStatusActive
		sub.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, s.db, sub); err != nil {
			return err
		}
		s.entitlementChanged(sub)
	}

	planName := ""
	if plan, err := s.planRepo.FindByID(ctx, s.db, sub.PlanID); err == nil && plan != nil {
		planName = plan.Name
	}
	s.notify(ctx, notificationdomain.SubscriptionRenewed(sub.OrgID, planName, sub.CurrentPeriodEnd))
	s.emit(ctx, sub.OrgID, "subscription.renewed", map[string]any{
		"subscription_id": sub.ID.String(),
		"amount_cents":    evt.AmountCents,
		"currency":        evt.Currency,
	})
	return nil
}

func (s *service) ApplyInvoicePaymentFailed(ctx context.Context, evt subscriptiondomain.InvoicePaymentEvent) error {
	sub, err := s.repo.FindByProviderSubscriptionID(ctx, s.db, evt.Provider, evt.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	if sub.Status.Entitled() && sub.Status != subscriptiondomain.SubscriptionStatusPastDue {
		sub.Status = subscriptiondomain.SubscriptionStatusPastDue
		sub.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, s.db, sub); err != nil {
			return err
		}
		s.entitlementChanged(sub)
	}

	s.notify(ctx, notificationdomain.PaymentFailed(sub.OrgID, evt.AmountCents, evt.Currency))
	s.emit(ctx, sub.OrgID, "payment.failed", map[string]any{
		"subscription_id": sub.ID.String(),
		"amount_cents":    evt.AmountCents,
		"currency":        evt.Currency,
	})
	return nil
}

func (s *service) toResponse(ctx context.Context, sub *subscriptiondomain.OrganizationSubscription) subscriptiondomain.SubscriptionResponse {
	planSlug := ""
	if plan, err := s.planRepo.FindByID(ctx, s.db, sub.PlanID); err == nil && plan != nil {
		planSlug = plan.Slug
	}
	return subscriptiondomain.SubscriptionResponse{
		ID:                     sub.ID.String(),
		OrgID:                  sub.OrgID.String(),
		PlanID:                 sub.PlanID.String(),
		PlanSlug:               planSlug,
		Provider:               sub.Provider,
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		Status:                 sub.Status,
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		CreatedAt:              sub.CreatedAt,
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
