package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/aware88/fresh-crm/internal/payment/domain"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_0123456789"

func newTestAdapter(t *testing.T) paymentdomain.PaymentAdapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		WebhookSecret: testWebhookSecret,
	})
	require.NoError(t, err)
	return adapter
}

func signatureFor(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func signPayload(secret string, ts int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, signatureFor(secret, ts, payload))
}

func TestNewAdapterRequiresSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	adapter := newTestAdapter(t)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", signPayload(testWebhookSecret, time.Now().Unix(), payload))
	require.NoError(t, adapter.Verify(context.Background(), payload, headers))
}

func TestVerifyAcceptsAnyMatchingV1Signature(t *testing.T) {
	adapter := newTestAdapter(t)
	payload := []byte(`{"id":"evt_1"}`)
	ts := time.Now().Unix()

	// Stripe sends multiple v1 entries during secret rotation.
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", ts,
		hex.EncodeToString(make([]byte, 32)),
		signatureFor(testWebhookSecret, ts, payload))
	headers := http.Header{}
	headers.Set("Stripe-Signature", header)
	require.NoError(t, adapter.Verify(context.Background(), payload, headers))
}

func TestVerifyRejectsBadSignatures(t *testing.T) {
	adapter := newTestAdapter(t)
	payload := []byte(`{"id":"evt_1"}`)

	cases := map[string]string{
		"missing header":  "",
		"no v1 entry":     "t=1700000000",
		"no timestamp":    "v1=deadbeef",
		"wrong signature": fmt.Sprintf("t=%d,v1=%s", time.Now().Unix(), hex.EncodeToString(make([]byte, 32))),
		"wrong secret":    signPayload("whsec_other", time.Now().Unix(), payload),
		"tampered body":   signPayload(testWebhookSecret, time.Now().Unix(), []byte(`{"id":"evt_2"}`)),
	}
	for name, header := range cases {
		headers := http.Header{}
		if header != "" {
			headers.Set("Stripe-Signature", header)
		}
		err := adapter.Verify(context.Background(), payload, headers)
		require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature, name)
	}
}

func TestParseCheckoutCompleted(t *testing.T) {
	adapter := newTestAdapter(t)

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1767225600,
		"data": {"object": {
			"id": "cs_test_1",
			"mode": "subscription",
			"client_reference_id": "1864712345678901248",
			"customer": "cus_1",
			"subscription": "sub_1",
			"amount_total": 4900,
			"currency": "USD",
			"metadata": {"price_id": "price_pro"}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "stripe", event.Provider)
	require.Equal(t, "evt_1", event.EventID)
	require.Equal(t, paymentdomain.EventCheckoutCompleted, event.Type)
	require.NotNil(t, event.Checkout)
	require.Equal(t, "cs_test_1", event.Checkout.SessionID)
	require.Equal(t, paymentdomain.CheckoutPurposeSubscription, event.Checkout.Purpose)
	require.Equal(t, "1864712345678901248", event.Checkout.OrgID.String())
	require.Equal(t, "sub_1", event.Checkout.SubscriptionID)
	require.Equal(t, "price_pro", event.Checkout.PriceID)
	require.Equal(t, "usd", event.Checkout.Currency)
	require.EqualValues(t, 4900, event.Checkout.AmountCents)
}

func TestParseCheckoutTopUpPurposeFromMetadata(t *testing.T) {
	adapter := newTestAdapter(t)

	payload := []byte(`{
		"id": "evt_2",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_2",
			"mode": "payment",
			"metadata": {"org_id": "1864712345678901248", "purpose": "ai_topup"}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.CheckoutPurposeTopUp, event.Checkout.Purpose)
	require.Equal(t, "1864712345678901248", event.Checkout.OrgID.String())
}

func TestParseCheckoutMissingOrg(t *testing.T) {
	adapter := newTestAdapter(t)

	payload := []byte(`{
		"id": "evt_3",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_3", "mode": "payment"}}
	}`)

	_, err := adapter.Parse(context.Background(), payload)
	require.ErrorIs(t, err, paymentdomain.ErrInvalidOrganization)
}

func TestParseSubscriptionUpdated(t *testing.T) {
	adapter := newTestAdapter(t)

	payload := []byte(`{
		"id": "evt_4",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "past_due",
			"cancel_at_period_end": true,
			"current_period_start": 1767225600,
			"current_period_end": 1769904000,
			"items": {"data": [{"price": {"id": "price_pro"}}]}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.NotNil(t, event.Subscription)
	require.Equal(t, "sub_1", event.Subscription.SubscriptionID)
	require.Equal(t, "past_due", event.Subscription.Status)
	require.Equal(t, "price_pro", event.Subscription.PriceID)
	require.True(t, event.Subscription.CancelAtPeriodEnd)
	require.NotNil(t, event.Subscription.CurrentPeriodStart)
	require.Equal(t, time.Unix(1767225600, 0).UTC(), *event.Subscription.CurrentPeriodStart)
}

func TestParseInvoiceFallsBackToAmountDue(t *testing.T) {
	adapter := newTestAdapter(t)

	payload := []byte(`{
		"id": "evt_5",
		"type": "invoice.payment_failed",
		"data": {"object": {
			"id": "in_1",
			"subscription": "sub_1",
			"amount_paid": 0,
			"amount_due": 4900,
			"currency": "USD"
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.NotNil(t, event.Invoice)
	require.EqualValues(t, 4900, event.Invoice.AmountCents)
	require.Equal(t, "usd", event.Invoice.Currency)
}

func TestParseIgnoresUnhandledEventTypes(t *testing.T) {
	adapter := newTestAdapter(t)

	payload := []byte(`{"id": "evt_6", "type": "customer.created", "data": {"object": {}}}`)
	_, err := adapter.Parse(context.Background(), payload)
	require.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.Parse(context.Background(), []byte(`not json`))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = adapter.Parse(context.Background(), []byte(`{"type": "checkout.session.completed"}`))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}
