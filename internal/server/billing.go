package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/aware88/fresh-crm/internal/payment/domain"
	plandomain "github.com/aware88/fresh-crm/internal/plan/domain"
)

type checkoutRequest struct {
	PlanID   string `json:"plan_id"`
	Interval string `json:"interval"`
}

func (s *Server) GetCurrentSubscription(c *gin.Context) {
	resp, err := s.subscriptionSvc.GetCurrent(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	items, err := s.subscriptionSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// CancelSubscription flags the current subscription to lapse at period
// end; access stays entitled until then.
func (s *Server) CancelSubscription(c *gin.Context) {
	resp, err := s.subscriptionSvc.CancelAtPeriodEnd(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "subscription.cancel_requested", "subscription", &targetID, map[string]any{
			"plan_slug": resp.PlanSlug,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetEntitlements(c *gin.Context) {
	orgID := orgIDFromContext(c.Request.Context())
	if orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}

	ent, err := s.featureSvc.Entitlements(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"plan_id":   ent.PlanID.String(),
		"plan_slug": ent.PlanSlug,
		"tier":      ent.Tier,
		"status":    ent.Status,
		"features":  ent.Features,
		"limits":    ent.Limits,
	}})
}

// CreateSubscriptionCheckout opens a provider checkout session for a
// plan. The subscription itself is created later by the provider
// webhook once checkout completes.
func (s *Server) CreateSubscriptionCheckout(c *gin.Context) {
	orgID := orgIDFromContext(c.Request.Context())
	if orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	planID := strings.TrimSpace(req.PlanID)
	plan, err := s.planSvc.GetByID(c.Request.Context(), planID)
	if err != nil {
		plan, err = s.planSvc.GetBySlug(c.Request.Context(), planID)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var priceID string
	switch strings.ToLower(strings.TrimSpace(req.Interval)) {
	case "", "monthly":
		priceID = plan.StripeMonthlyPriceID
	case "annual", "yearly":
		priceID = plan.StripeAnnualPriceID
	default:
		AbortWithError(c, newValidationError("interval", "invalid_interval", "interval must be monthly or annual"))
		return
	}
	if strings.TrimSpace(priceID) == "" {
		AbortWithError(c, plandomain.ErrInvalidPlan)
		return
	}

	session, err := s.checkoutClient.CreateSubscriptionCheckout(c.Request.Context(), paymentdomain.SubscriptionCheckoutParams{
		OrgID:      orgID,
		PriceID:    priceID,
		SuccessURL: s.cfg.Stripe.SuccessURL,
		CancelURL:  s.cfg.Stripe.CancelURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := plan.ID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "billing.checkout_opened", "plan", &targetID, map[string]any{
			"plan_slug": plan.Slug,
			"interval":  strings.ToLower(strings.TrimSpace(req.Interval)),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"session_id":   session.SessionID,
		"checkout_url": session.URL,
	}})
}
