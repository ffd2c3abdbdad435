package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	leaddomain "github.com/aware88/fresh-crm/internal/lead/domain"
)

type bulkCalculateScoresRequest struct {
	ContactIDs []string `json:"contact_ids"`
}

func (s *Server) CalculateLeadScore(c *gin.Context) {
	contactID := strings.TrimSpace(c.Param("id"))
	resp, err := s.leadSvc.CalculateScore(c.Request.Context(), contactID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordLeadScore(c.Request.Context(), resp.Qualification)
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetLeadScore(c *gin.Context) {
	contactID := strings.TrimSpace(c.Param("id"))
	resp, err := s.leadSvc.GetScore(c.Request.Context(), contactID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListLeadScores(c *gin.Context) {
	var query struct {
		Qualification string `form:"qualification"`
		MinScore      int    `form:"min_score"`
		PageToken     string `form:"page_token"`
		PageSize      int32  `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.leadSvc.ListScores(c.Request.Context(), leaddomain.ListScoresRequest{
		Qualification: strings.ToLower(strings.TrimSpace(query.Qualification)),
		MinScore:      query.MinScore,
		PageToken:     strings.TrimSpace(query.PageToken),
		PageSize:      query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Scores, "next_page_token": resp.NextPageToken})
}

func (s *Server) BulkCalculateLeadScores(c *gin.Context) {
	var req bulkCalculateScoresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if len(req.ContactIDs) == 0 {
		AbortWithError(c, newValidationError("contact_ids", "invalid_contact_ids", "contact_ids is required"))
		return
	}

	resp, err := s.leadSvc.BulkCalculateScores(c.Request.Context(), req.ContactIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
