package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	emailaccountdomain "github.com/aware88/fresh-crm/internal/emailaccount/domain"
)

// ConnectEmailAccount stores mailbox OAuth tokens obtained by the
// caller's own authorization flow. Tokens never appear in responses.
func (s *Server) ConnectEmailAccount(c *gin.Context) {
	var req emailaccountdomain.ConnectAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.emailAccountSvc.Connect(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "email_account.connected", "email_account", &targetID, map[string]any{
			"provider": resp.Provider,
			"email":    resp.EmailAddress,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListEmailAccounts(c *gin.Context) {
	resp, err := s.emailAccountSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Accounts})
}

func (s *Server) GetEmailAccountByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.emailAccountSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DisconnectEmailAccount(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.emailAccountSvc.Disconnect(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := id
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "email_account.disconnected", "email_account", &targetID, nil)
	}

	c.Status(http.StatusNoContent)
}
