package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	aiusagedomain "github.com/aware88/fresh-crm/internal/aiusage/domain"
)

func (s *Server) RecordAIUsage(c *gin.Context) {
	var req aiusagedomain.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.aiUsageSvc.Record(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordAIUsage(c.Request.Context(), resp.Feature)
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetAIQuota(c *gin.Context) {
	resp, err := s.aiUsageSvc.Quota(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAIUsage(c *gin.Context) {
	var query aiusagedomain.ListUsageRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.aiUsageSvc.ListUsage(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Records, "next_page_token": resp.NextPageToken})
}

// CreateAITopUpCheckout opens a provider checkout session for extra AI
// messages. The top-up activates when the payment webhook confirms it.
func (s *Server) CreateAITopUpCheckout(c *gin.Context) {
	var req aiusagedomain.CreateTopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.aiUsageSvc.CreateTopUpCheckout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "ai_usage.topup_opened", "ai_topup", &targetID, map[string]any{
			"message_amount": resp.MessageAmount,
			"price_cents":    resp.PriceCents,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAITopUps(c *gin.Context) {
	resp, err := s.aiUsageSvc.ListTopUps(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.TopUps})
}

func (s *Server) GetAITopUpReceipt(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	pdfBytes, err := s.aiUsageSvc.TopUpReceipt(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=topup-%s.pdf", id))
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}
