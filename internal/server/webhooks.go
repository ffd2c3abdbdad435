package server

import (
	"net/http"
	"strings"

	featuredomain "github.com/aware88/fresh-crm/internal/feature/domain"
	webhookdomain "github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListWebhookConfigs(c *gin.Context) {
	configs, err := s.webhookSvc.ListConfigs(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": configs})
}

// CreateWebhookConfig registers an outbound endpoint. Webhook delivery is a
// plan feature; configuration is refused when the org's tier lacks it.
func (s *Server) CreateWebhookConfig(c *gin.Context) {
	var req webhookdomain.CreateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orgID := orgIDFromContext(c.Request.Context())
	if orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}
	enabled, err := s.featureSvc.IsEnabled(c.Request.Context(), orgID, featuredomain.CodeWebhooks)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !enabled {
		AbortWithError(c, featuredomain.ErrFeatureNotEnabled)
		return
	}

	resp, err := s.webhookSvc.CreateConfig(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "webhook.created", "webhook_config", &targetID, map[string]any{
			"url":         resp.URL,
			"event_types": resp.EventTypes,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetWebhookConfig(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.webhookSvc.GetConfig(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateWebhookConfig(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req webhookdomain.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.webhookSvc.UpdateConfig(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteWebhookConfig(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.webhookSvc.DeleteConfig(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := id
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "webhook.deleted", "webhook_config", &targetID, nil)
	}

	c.Status(http.StatusNoContent)
}

// TestWebhookConfig sends a signed ping event to the endpoint and
// returns the delivery outcome synchronously.
func (s *Server) TestWebhookConfig(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.webhookSvc.TestPing(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListWebhookDeliveries(c *gin.Context) {
	var query webhookdomain.ListDeliveriesRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	deliveries, err := s.webhookSvc.ListDeliveries(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": deliveries})
}
