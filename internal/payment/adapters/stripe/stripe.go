package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/aware88/fresh-crm/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

// Verify checks the Stripe-Signature header: HMAC-SHA256 over
// "<t>.<payload>" with the endpoint secret, compared against every v1
// signature in the header.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	eventType := strings.TrimSpace(event.Type)
	out := &paymentdomain.Event{
		Provider:   "stripe",
		EventID:    event.ID,
		Type:       eventType,
		OccurredAt: timestamp(event.Created),
	}

	switch eventType {
	case paymentdomain.EventCheckoutCompleted:
		checkout, err := parseCheckoutSession(event.Data.Object)
		if err != nil {
			return nil, err
		}
		out.Checkout = checkout
	case paymentdomain.EventSubscriptionCreated,
		paymentdomain.EventSubscriptionUpdated,
		paymentdomain.EventSubscriptionDeleted:
		subscription, err := parseSubscription(event.Data.Object)
		if err != nil {
			return nil, err
		}
		out.Subscription = subscription
	case paymentdomain.EventInvoicePaymentSuccess, paymentdomain.EventInvoicePaymentFailure:
		invoice, err := parseInvoice(event.Data.Object)
		if err != nil {
			return nil, err
		}
		out.Invoice = invoice
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	return out, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID                 string                  `json:"id"`
	Customer           string                  `json:"customer"`
	Status             string                  `json:"status"`
	CancelAtPeriodEnd  bool                    `json:"cancel_at_period_end"`
	CurrentPeriodStart int64                   `json:"current_period_start"`
	CurrentPeriodEnd   int64                   `json:"current_period_end"`
	Items              stripeSubscriptionItems `json:"items"`
}

type stripeSubscriptionItems struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	Price stripePrice `json:"price"`
}

type stripePrice struct {
	ID string `json:"id"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
}

func parseCheckoutSession(raw json.RawMessage) (*paymentdomain.CheckoutData, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	orgRaw := strings.TrimSpace(session.ClientReferenceID)
	if orgRaw == "" {
		orgRaw = strings.TrimSpace(session.Metadata["org_id"])
	}
	if orgRaw == "" {
		return nil, paymentdomain.ErrInvalidOrganization
	}
	orgID, err := snowflake.ParseString(orgRaw)
	if err != nil {
		return nil, paymentdomain.ErrInvalidOrganization
	}

	purpose := strings.TrimSpace(session.Metadata["purpose"])
	if purpose == "" {
		if session.Mode == paymentdomain.CheckoutModeSubscription {
			purpose = paymentdomain.CheckoutPurposeSubscription
		} else {
			purpose = paymentdomain.CheckoutPurposeTopUp
		}
	}

	return &paymentdomain.CheckoutData{
		SessionID:      session.ID,
		Mode:           strings.TrimSpace(session.Mode),
		Purpose:        purpose,
		OrgID:          orgID,
		CustomerID:     strings.TrimSpace(session.Customer),
		SubscriptionID: strings.TrimSpace(session.Subscription),
		PriceID:        strings.TrimSpace(session.Metadata["price_id"]),
		AmountCents:    session.AmountTotal,
		Currency:       strings.ToLower(strings.TrimSpace(session.Currency)),
	}, nil
}

func parseSubscription(raw json.RawMessage) (*paymentdomain.SubscriptionData, error) {
	var subscription stripeSubscription
	if err := json.Unmarshal(raw, &subscription); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(subscription.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var priceID string
	if len(subscription.Items.Data) > 0 {
		priceID = strings.TrimSpace(subscription.Items.Data[0].Price.ID)
	}

	return &paymentdomain.SubscriptionData{
		SubscriptionID:     subscription.ID,
		CustomerID:         strings.TrimSpace(subscription.Customer),
		Status:             strings.TrimSpace(subscription.Status),
		PriceID:            priceID,
		CurrentPeriodStart: optionalTime(subscription.CurrentPeriodStart),
		CurrentPeriodEnd:   optionalTime(subscription.CurrentPeriodEnd),
		CancelAtPeriodEnd:  subscription.CancelAtPeriodEnd,
	}, nil
}

func parseInvoice(raw json.RawMessage) (*paymentdomain.InvoiceData, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := invoice.AmountPaid
	if amount <= 0 {
		amount = invoice.AmountDue
	}

	return &paymentdomain.InvoiceData{
		InvoiceID:      invoice.ID,
		SubscriptionID: strings.TrimSpace(invoice.Subscription),
		AmountCents:    amount,
		Currency:       strings.ToLower(strings.TrimSpace(invoice.Currency)),
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, paymentdomain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}

func timestamp(value int64) time.Time {
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func optionalTime(value int64) *time.Time {
	if value == 0 {
		return nil
	}
	at := time.Unix(value, 0).UTC()
	return &at
}
