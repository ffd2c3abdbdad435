package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/aware88/fresh-crm/internal/apikey/domain"
	apikeyscope "github.com/aware88/fresh-crm/internal/apikey/scope"
)

type createAPIKeyRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	keys, err := s.apiKeySvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, keys)
}

func (s *Server) ListAPIKeyScopes(c *gin.Context) {
	c.JSON(http.StatusOK, apikeyscope.All())
}

func (s *Server) CreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scopes := apikeyscope.Normalize(req.Scopes)
	if err := apikeyscope.Validate(scopes); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.apiKeySvc.Create(c.Request.Context(), apikeydomain.CreateRequest{Name: req.Name, Scopes: scopes})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil && resp != nil {
		targetID := resp.KeyID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "api_key.created", "api_key", &targetID, map[string]any{
			"name": strings.TrimSpace(req.Name),
		})
	}

	c.JSON(http.StatusOK, resp)
}

// RotateAPIKey issues a replacement secret and deactivates the old key.
// The secret appears once in the response and is never retrievable again.
func (s *Server) RotateAPIKey(c *gin.Context) {
	if s.apiKeyLimiter != nil {
		orgID := orgIDFromContext(c.Request.Context())
		if !s.apiKeyLimiter.Allow(orgID.String()) {
			AbortWithError(c, ErrRateLimited)
			return
		}
	}

	keyID := strings.TrimSpace(c.Param("key_id"))
	resp, err := s.apiKeySvc.Rotate(c.Request.Context(), keyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil && resp != nil {
		targetID := resp.KeyID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "api_key.rotated", "api_key", &targetID, map[string]any{
			"rotated_from_key_id": keyID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	keyID := strings.TrimSpace(c.Param("key_id"))
	if err := s.apiKeySvc.Revoke(c.Request.Context(), keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := keyID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "api_key.revoked", "api_key", &targetID, nil)
	}

	c.Status(http.StatusNoContent)
}
