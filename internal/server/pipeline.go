package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pipelinedomain "github.com/aware88/fresh-crm/internal/pipeline/domain"
)

func (s *Server) ListStages(c *gin.Context) {
	stages, err := s.pipelineSvc.ListStages(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stages})
}

func (s *Server) CreateStage(c *gin.Context) {
	var req pipelinedomain.CreateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pipelineSvc.CreateStage(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateStage(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req pipelinedomain.UpdateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pipelineSvc.UpdateStage(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteStage(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.pipelineSvc.DeleteStage(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) CreateOpportunity(c *gin.Context) {
	var req pipelinedomain.CreateOpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pipelineSvc.CreateOpportunity(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOpportunityByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.pipelineSvc.GetOpportunity(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateOpportunity(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req pipelinedomain.UpdateOpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pipelineSvc.UpdateOpportunity(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteOpportunity(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.pipelineSvc.DeleteOpportunity(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListOpportunities(c *gin.Context) {
	var query struct {
		StageID   string `form:"stage_id"`
		Status    string `form:"status"`
		PageToken string `form:"page_token"`
		PageSize  int32  `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pipelineSvc.ListOpportunities(c.Request.Context(), pipelinedomain.ListOpportunitiesRequest{
		StageID:   strings.TrimSpace(query.StageID),
		Status:    strings.ToLower(strings.TrimSpace(query.Status)),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Opportunities, "next_page_token": resp.NextPageToken})
}

// MoveOpportunityStage moves an opportunity into another stage. Landing
// in a won or lost stage closes it.
func (s *Server) MoveOpportunityStage(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req pipelinedomain.MoveStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pipelineSvc.MoveStage(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "opportunity.stage_moved", "opportunity", &targetID, map[string]any{
			"stage_id": resp.StageID,
			"status":   string(resp.Status),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BulkUpdateOpportunities(c *gin.Context) {
	var req struct {
		Updates []pipelinedomain.BulkOpportunityUpdate `json:"updates"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if len(req.Updates) == 0 {
		AbortWithError(c, newValidationError("updates", "invalid_updates", "updates is required"))
		return
	}

	resp, err := s.pipelineSvc.BulkUpdateOpportunities(c.Request.Context(), req.Updates)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPipelineMetrics(c *gin.Context) {
	resp, err := s.pipelineSvc.Metrics(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
