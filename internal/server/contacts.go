package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	contactdomain "github.com/aware88/fresh-crm/internal/contact/domain"
)

func (s *Server) CreateContact(c *gin.Context) {
	var req contactdomain.CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.contactSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetContactByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.contactSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateContact(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req contactdomain.UpdateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.contactSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteContact(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.contactSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := id
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "contact.deleted", "contact", &targetID, nil)
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListContacts(c *gin.Context) {
	var query struct {
		Search    string `form:"search"`
		Company   string `form:"company"`
		SortBy    string `form:"sort_by"`
		OrderBy   string `form:"order_by"`
		PageToken string `form:"page_token"`
		PageSize  int32  `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.contactSvc.List(c.Request.Context(), contactdomain.ListContactsRequest{
		Search:    strings.TrimSpace(query.Search),
		Company:   strings.TrimSpace(query.Company),
		SortBy:    strings.TrimSpace(query.SortBy),
		OrderBy:   strings.TrimSpace(query.OrderBy),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Contacts, "next_page_token": resp.NextPageToken})
}

// RecordContactInteraction bumps the interaction counters feeding the
// engagement component of the lead score.
func (s *Server) RecordContactInteraction(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.contactSvc.RecordInteraction(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
