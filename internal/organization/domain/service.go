package domain

import (
	"context"
	"errors"
	"time"
)

const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// ValidRole reports whether the role is one of the known membership roles.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*OrganizationResponse, error)
	GetByID(ctx context.Context, id string) (*OrganizationResponse, error)
	Update(ctx context.Context, id string, req UpdateOrganizationRequest) (*OrganizationResponse, error)
	ListMembers(ctx context.Context, orgID string) ([]MemberResponse, error)
	AddMember(ctx context.Context, orgID string, req AddMemberRequest) (*MemberResponse, error)
	RemoveMember(ctx context.Context, orgID, memberID string) error
}

type CreateOrganizationRequest struct {
	Name         string `json:"name"`
	SupportEmail string `json:"support_email"`
	OwnerEmail   string `json:"owner_email"`
	OwnerName    string `json:"owner_name"`
}

type UpdateOrganizationRequest struct {
	Name         *string `json:"name"`
	SupportEmail *string `json:"support_email"`
}

type AddMemberRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type OrganizationResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	SupportEmail string    `json:"support_email"`
	CreatedAt    time.Time `json:"created_at"`
}

type MemberResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidMember       = errors.New("invalid_member")
	ErrMemberExists        = errors.New("member_exists")
	ErrLastOwner           = errors.New("last_owner")
	ErrNotFound            = errors.New("organization_not_found")
	ErrForbidden           = errors.New("forbidden")
)
