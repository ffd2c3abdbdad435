package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
)

// EventRecord marks a provider webhook event as processed. The unique
// index on (provider, event_id) makes redelivered events no-ops.
type EventRecord struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Provider    string       `json:"provider" gorm:"type:text;not null"`
	EventID     string       `json:"event_id" gorm:"type:text;not null"`
	EventType   string       `json:"event_type" gorm:"type:text;not null"`
	ProcessedAt time.Time    `json:"processed_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventSubscriptionCreated    = "customer.subscription.created"
	EventSubscriptionUpdated    = "customer.subscription.updated"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
	EventInvoicePaymentSuccess  = "invoice.payment_succeeded"
	EventInvoicePaymentFailure  = "invoice.payment_failed"
)

const (
	CheckoutModeSubscription = "subscription"
	CheckoutModePayment      = "payment"

	CheckoutPurposeSubscription = "subscription"
	CheckoutPurposeTopUp        = "ai_topup"
)

// Event is the provider-neutral form of an inbound webhook event. Exactly
// one of Checkout, Subscription or Invoice is set depending on Type.
type Event struct {
	Provider   string
	EventID    string
	Type       string
	OccurredAt time.Time

	Checkout     *CheckoutData
	Subscription *SubscriptionData
	Invoice      *InvoiceData
}

// CheckoutData carries a completed checkout session. OrgID comes from the
// session's client_reference_id, Purpose from session metadata.
type CheckoutData struct {
	SessionID      string
	Mode           string
	Purpose        string
	OrgID          snowflake.ID
	CustomerID     string
	SubscriptionID string
	PriceID        string
	AmountCents    int64
	Currency       string
}

type SubscriptionData struct {
	SubscriptionID     string
	CustomerID         string
	Status             string
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

type InvoiceData struct {
	InvoiceID      string
	SubscriptionID string
	AmountCents    int64
	Currency       string
}

// PaymentAdapter verifies and parses provider webhook payloads.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

type AdapterConfig struct {
	WebhookSecret string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// CheckoutSession is the provider-hosted payment page handed back to the
// frontend after an outbound checkout call.
type CheckoutSession struct {
	SessionID string
	URL       string
}

type SubscriptionCheckoutParams struct {
	OrgID      snowflake.ID
	PriceID    string
	SuccessURL string
	CancelURL  string
}

type TopUpCheckoutParams struct {
	OrgID         snowflake.ID
	TopUpID       snowflake.ID
	ProductName   string
	MessageAmount int64
	PriceCents    int64
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// CheckoutClient creates provider checkout sessions. Calls fail with
// ErrProviderNotConfigured when no API credentials are set.
type CheckoutClient interface {
	CreateSubscriptionCheckout(ctx context.Context, params SubscriptionCheckoutParams) (*CheckoutSession, error)
	CreateTopUpCheckout(ctx context.Context, params TopUpCheckoutParams) (*CheckoutSession, error)
}

var (
	ErrInvalidSignature        = errors.New("invalid_signature")
	ErrInvalidPayload          = errors.New("invalid_payload")
	ErrInvalidEvent            = errors.New("invalid_event")
	ErrInvalidConfig           = errors.New("invalid_adapter_config")
	ErrEventIgnored            = errors.New("event_ignored")
	ErrProviderNotFound        = errors.New("payment_provider_not_found")
	ErrProviderNotConfigured   = errors.New("payment_provider_not_configured")
	ErrInvalidOrganization     = errors.New("invalid_organization")
	ErrCheckoutSessionRejected = errors.New("checkout_session_rejected")
)
