package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/aware88/fresh-crm/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name         string `json:"name"`
	SupportEmail string `json:"support_email"`
	OwnerEmail   string `json:"owner_email"`
	OwnerName    string `json:"owner_name"`
}

type updateOrganizationRequest struct {
	Name         *string `json:"name"`
	SupportEmail *string `json:"support_email"`
}

type addMemberRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// CreateOrganization provisions a new tenant with its owner membership.
// The caller's key must carry the organization manage scope; freshly
// provisioned tenants get their own keys out of band.
func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.Create(c.Request.Context(), organizationdomain.CreateOrganizationRequest{
		Name:         strings.TrimSpace(req.Name),
		SupportEmail: strings.TrimSpace(req.SupportEmail),
		OwnerEmail:   strings.TrimSpace(req.OwnerEmail),
		OwnerName:    strings.TrimSpace(req.OwnerName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "organization.created", "organization", &targetID, map[string]any{
			"name": resp.Name,
			"slug": resp.Slug,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrganization(c *gin.Context) {
	orgID := orgIDFromContext(c.Request.Context())
	if orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}

	resp, err := s.organizationSvc.GetByID(c.Request.Context(), orgID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateOrganization(c *gin.Context) {
	orgID := orgIDFromContext(c.Request.Context())
	if orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}

	var req updateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.Update(c.Request.Context(), orgID.String(), organizationdomain.UpdateOrganizationRequest{
		Name:         req.Name,
		SupportEmail: req.SupportEmail,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMembers(c *gin.Context) {
	orgID := orgIDFromContext(c.Request.Context())
	if orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}

	members, err := s.organizationSvc.ListMembers(c.Request.Context(), orgID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": members})
}

func (s *Server) AddMember(c *gin.Context) {
	orgID := orgIDFromContext(c.Request.Context())
	if orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.AddMember(c.Request.Context(), orgID.String(), organizationdomain.AddMemberRequest{
		Email:       strings.TrimSpace(req.Email),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        strings.ToUpper(strings.TrimSpace(req.Role)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "organization.member_added", "organization_member", &targetID, map[string]any{
			"email": resp.Email,
			"role":  resp.Role,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveMember(c *gin.Context) {
	orgID := orgIDFromContext(c.Request.Context())
	if orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}

	memberID := strings.TrimSpace(c.Param("member_id"))
	if err := s.organizationSvc.RemoveMember(c.Request.Context(), orgID.String(), memberID); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := memberID
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "organization.member_removed", "organization_member", &targetID, nil)
	}

	c.Status(http.StatusNoContent)
}
