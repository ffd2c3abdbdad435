package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type testCleanupRequest struct {
	Prefix string `json:"prefix"`
}

// TestCleanup removes organizations created by end-to-end runs. Only
// registered outside production.
func (s *Server) TestCleanup(c *gin.Context) {
	if s.cfg.Environment == "production" {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req testCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		AbortWithError(c, newValidationError("prefix", "required", "prefix is required"))
		return
	}

	ctx := c.Request.Context()
	like := prefix + "%"

	var orgIDs []int64
	if err := s.db.WithContext(ctx).
		Table("organizations").
		Select("id").
		Where("name LIKE ?", like).
		Scan(&orgIDs).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	if len(orgIDs) > 0 {
		tables := []string{
			"webhook_deliveries",
			"webhook_configurations",
			"lead_scores",
			"opportunity_activities",
			"sales_opportunities",
			"pipeline_stages",
			"contacts",
			"ai_usage_records",
			"ai_usage_periods",
			"ai_topups",
			"email_accounts",
			"notifications",
			"organization_settings",
			"organization_subscriptions",
			"audit_logs",
			"api_keys",
			"organization_members",
		}
		for _, table := range tables {
			if err := s.db.WithContext(ctx).Exec(
				`DELETE FROM `+table+` WHERE org_id IN ?`, orgIDs,
			).Error; err != nil {
				AbortWithError(c, err)
				return
			}
		}
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM organizations WHERE id IN ?`, orgIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
