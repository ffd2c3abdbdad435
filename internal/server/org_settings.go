package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type upsertSettingRequest struct {
	Value map[string]any `json:"value"`
}

func (s *Server) ListOrgSettings(c *gin.Context) {
	resp, err := s.orgSettingsSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Settings})
}

func (s *Server) GetOrgSetting(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	resp, err := s.orgSettingsSvc.Get(c.Request.Context(), key)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpsertOrgSetting(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))

	var req upsertSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orgSettingsSvc.Upsert(c.Request.Context(), key, req.Value)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.Key
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "org_settings.updated", "org_setting", &targetID, nil)
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteOrgSetting(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if err := s.orgSettingsSvc.Delete(c.Request.Context(), key); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
