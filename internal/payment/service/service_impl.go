package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	aiusagedomain "github.com/aware88/fresh-crm/internal/aiusage/domain"
	"github.com/aware88/fresh-crm/internal/config"
	"github.com/aware88/fresh-crm/internal/payment/adapters"
	paymentdomain "github.com/aware88/fresh-crm/internal/payment/domain"
	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
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
	Config   config.Config
	Repo     paymentdomain.Repository
	Adapters *adapters.Registry

	Subscriptions subscriptiondomain.Service `optional:"true"`
	AIUsage       aiusagedomain.Service      `optional:"true"`
}

type service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	cfg           config.Config
	repo          paymentdomain.Repository
	adapters      *adapters.Registry
	subscriptions subscriptiondomain.Service
	aiUsage       aiusagedomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		cfg:           p.Config,
		repo:          p.Repo,
		adapters:      p.Adapters,
		subscriptions: p.Subscriptions,
		aiUsage:       p.AIUsage,
	}
}

func (s *service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	secret := strings.TrimSpace(s.cfg.Stripe.WebhookSecret)
	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{WebhookSecret: secret})
	if err != nil {
		return paymentdomain.ErrProviderNotConfigured
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}

	processed, err := s.repo.FindEvent(ctx, s.db, event.Provider, event.EventID)
	if err != nil {
		return err
	}
	if processed != nil {
		s.log.Debug("skipping already processed event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.Type))
		return nil
	}

	if err := s.dispatch(ctx, event); err != nil {
		return err
	}

	record := paymentdomain.EventRecord{
		ID:          s.genID.Generate(),
		Provider:    event.Provider,
		EventID:     event.EventID,
		EventType:   event.Type,
		ProcessedAt: time.Now().UTC(),
	}
	if err := s.repo.InsertEvent(ctx, s.db, &record); err != nil && !db.IsDuplicateKeyErr(err) {
		return err
	}
	return nil
}

func (s *service) dispatch(ctx context.Context, event *paymentdomain.Event) error {
	switch event.Type {
	case paymentdomain.EventCheckoutCompleted:
		return s.dispatchCheckout(ctx, event)
	case paymentdomain.EventSubscriptionCreated, paymentdomain.EventSubscriptionUpdated:
		if s.subscriptions == nil || event.Subscription == nil {
			return nil
		}
		return s.subscriptions.ApplySubscriptionEvent(ctx, subscriptiondomain.ProviderSubscriptionEvent{
			Provider:               event.Provider,
			ProviderSubscriptionID: event.Subscription.SubscriptionID,
			ProviderCustomerID:     event.Subscription.CustomerID,
			PriceID:                event.Subscription.PriceID,
			ProviderStatus:         event.Subscription.Status,
			CurrentPeriodStart:     event.Subscription.CurrentPeriodStart,
			CurrentPeriodEnd:       event.Subscription.CurrentPeriodEnd,
			CancelAtPeriodEnd:      event.Subscription.CancelAtPeriodEnd,
		})
	case paymentdomain.EventSubscriptionDeleted:
		if s.subscriptions == nil || event.Subscription == nil {
			return nil
		}
		return s.subscriptions.ApplySubscriptionDeleted(ctx, event.Provider, event.Subscription.SubscriptionID)
	case paymentdomain.EventInvoicePaymentSuccess:
		if s.subscriptions == nil || event.Invoice == nil {
			return nil
		}
		return s.subscriptions.ApplyInvoicePaymentSucceeded(ctx, subscriptiondomain.InvoicePaymentEvent{
			Provider:               event.Provider,
			ProviderSubscriptionID: event.Invoice.SubscriptionID,
			AmountCents:            event.Invoice.AmountCents,
			Currency:               event.Invoice.Currency,
		})
	case paymentdomain.EventInvoicePaymentFailure:
		if s.subscriptions == nil || event.Invoice == nil {
			return nil
		}
		return s.subscriptions.ApplyInvoicePaymentFailed(ctx, subscriptiondomain.InvoicePaymentEvent{
			Provider:               event.Provider,
			ProviderSubscriptionID: event.Invoice.SubscriptionID,
			AmountCents:            event.Invoice.AmountCents,
			Currency:               event.Invoice.Currency,
		})
	default:
		return nil
	}
}

func (s *service) dispatchCheckout(ctx context.Context, event *paymentdomain.Event) error {
	checkout := event.Checkout
	if checkout == nil {
		return nil
	}

	switch checkout.Purpose {
	case paymentdomain.CheckoutPurposeSubscription:
		if s.subscriptions == nil {
			return nil
		}
		return s.subscriptions.ApplyCheckoutCompleted(ctx, subscriptiondomain.CheckoutCompleted{
			Provider:               event.Provider,
			OrgID:                  checkout.OrgID,
			ProviderSubscriptionID: checkout.SubscriptionID,
			ProviderCustomerID:     checkout.CustomerID,
			PriceID:                checkout.PriceID,
		})
	case paymentdomain.CheckoutPurposeTopUp:
		if s.aiUsage == nil {
			return nil
		}
		err := s.aiUsage.ApplyTopUpCompleted(ctx, checkout.SessionID)
		if errors.Is(err, aiusagedomain.ErrTopUpNotFound) {
			s.log.Warn("checkout session has no matching topup",
				zap.String("session_id", checkout.SessionID),
				zap.String("org_id", checkout.OrgID.String()))
			return nil
		}
		return err
	default:
		s.log.Warn("unknown checkout purpose",
			zap.String("purpose", checkout.Purpose),
			zap.String("session_id", checkout.SessionID))
		return nil
	}
}
