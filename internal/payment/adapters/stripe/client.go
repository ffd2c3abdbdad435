package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aware88/fresh-crm/internal/config"
	paymentdomain "github.com/aware88/fresh-crm/internal/payment/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const apiBaseURL = "https://api.stripe.com"

// Client is a minimal Stripe REST client for creating checkout sessions.
// The full stripe-go SDK is not needed for two form-encoded endpoints.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) paymentdomain.CheckoutClient {
	return &Client{
		apiKey:  strings.TrimSpace(cfg.Stripe.APIKey),
		baseURL: apiBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.Named("stripe.client"),
	}
}

func (c *Client) CreateSubscriptionCheckout(ctx context.Context, params paymentdomain.SubscriptionCheckoutParams) (*paymentdomain.CheckoutSession, error) {
	if strings.TrimSpace(params.PriceID) == "" {
		return nil, paymentdomain.ErrCheckoutSessionRejected
	}

	form := url.Values{}
	form.Set("mode", paymentdomain.CheckoutModeSubscription)
	form.Set("client_reference_id", params.OrgID.String())
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("metadata[purpose]", paymentdomain.CheckoutPurposeSubscription)
	form.Set("metadata[org_id]", params.OrgID.String())
	form.Set("metadata[price_id]", params.PriceID)

	return c.createSession(ctx, form)
}

func (c *Client) CreateTopUpCheckout(ctx context.Context, params paymentdomain.TopUpCheckoutParams) (*paymentdomain.CheckoutSession, error) {
	if params.PriceCents <= 0 || params.MessageAmount <= 0 {
		return nil, paymentdomain.ErrCheckoutSessionRejected
	}

	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}

	form := url.Values{}
	form.Set("mode", paymentdomain.CheckoutModePayment)
	form.Set("client_reference_id", params.OrgID.String())
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][product_data][name]", params.ProductName)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.PriceCents, 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("metadata[purpose]", paymentdomain.CheckoutPurposeTopUp)
	form.Set("metadata[org_id]", params.OrgID.String())
	form.Set("metadata[topup_id]", params.TopUpID.String())

	return c.createSession(ctx, form)
}

func (c *Client) createSession(ctx context.Context, form url.Values) (*paymentdomain.CheckoutSession, error) {
	if c.apiKey == "" {
		return nil, paymentdomain.ErrProviderNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("stripe checkout session rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: status %d", paymentdomain.ErrCheckoutSessionRejected, resp.StatusCode)
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if session.ID == "" {
		return nil, paymentdomain.ErrCheckoutSessionRejected
	}

	return &paymentdomain.CheckoutSession{
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}
