package service

import (
	"context"
	"strings"
	"time"

	"github.com/aware88/fresh-crm/internal/organization/domain"
	webhookdomain "github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/aware88/fresh-crm/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Emitter webhookdomain.Emitter `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	emitter webhookdomain.Emitter
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("organization.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		emitter: p.Emitter,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	ownerEmail := strings.ToLower(strings.TrimSpace(req.OwnerEmail))
	if ownerEmail == "" || !strings.Contains(ownerEmail, "@") {
		return nil, domain.ErrInvalidEmail
	}

	now := time.Now().UTC()
	orgID := s.genID.Generate()
	org := domain.Organization{
		ID:           orgID,
		Name:         name,
		Slug:         slug.Make(name),
		SupportEmail: strings.TrimSpace(req.SupportEmail),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, org); err != nil {
			return err
		}
		member := domain.OrganizationMember{
			ID:          s.genID.Generate(),
			OrgID:       orgID,
			Email:       ownerEmail,
			DisplayName: strings.TrimSpace(req.OwnerName),
			Role:        domain.RoleOwner,
			CreatedAt:   now,
		}
		return repo.AddMember(ctx, member)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrMemberExists
		}
		return nil, err
	}

	s.emit(ctx, orgID, "organization.created", map[string]any{
		"organization_id": orgID.String(),
		"name":            name,
		"slug":            org.Slug,
	})

	return toOrganizationResponse(org), nil
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.OrganizationResponse, error) {
	orgID, err := parseID(id)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.repo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return toOrganizationResponse(*org), nil
}

func (s *service) Update(ctx context.Context, id string, req domain.UpdateOrganizationRequest) (*domain.OrganizationResponse, error) {
	orgID, err := parseID(id)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.repo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		org.Name = name
		org.Slug = slug.Make(name)
	}
	if req.SupportEmail != nil {
		org.SupportEmail = strings.TrimSpace(*req.SupportEmail)
	}
	org.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, *org); err != nil {
		return nil, err
	}
	return toOrganizationResponse(*org), nil
}

func (s *service) ListMembers(ctx context.Context, orgID string) ([]domain.MemberResponse, error) {
	id, err := parseID(orgID)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	members, err := s.repo.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.MemberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, toMemberResponse(m))
	}
	return resp, nil
}

func (s *service) AddMember(ctx context.Context, orgID string, req domain.AddMemberRequest) (*domain.MemberResponse, error) {
	id, err := parseID(orgID)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleMember
	}
	if !domain.ValidRole(role) {
		return nil, domain.ErrInvalidRole
	}

	member := domain.OrganizationMember{
		ID:          s.genID.Generate(),
		OrgID:       id,
		Email:       email,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        role,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrMemberExists
		}
		return nil, err
	}

	resp := toMemberResponse(member)
	return &resp, nil
}

func (s *service) RemoveMember(ctx context.Context, orgID, memberID string) error {
	id, err := parseID(orgID)
	if err != nil {
		return domain.ErrInvalidOrganization
	}
	mid, err := parseID(memberID)
	if err != nil {
		return domain.ErrInvalidMember
	}

	member, err := s.repo.FindMember(ctx, id, mid)
	if err != nil {
		return err
	}
	if member == nil {
		return domain.ErrInvalidMember
	}

	if member.Role == domain.RoleOwner {
		owners, err := s.repo.CountMembersByRole(ctx, id, domain.RoleOwner)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return domain.ErrLastOwner
		}
	}

	return s.repo.DeleteMember(ctx, id, mid)
}

func (s *service) emit(ctx context.Context, orgID snowflake.ID, eventType string, payload map[string]any) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, orgID, eventType, payload); err != nil {
		s.log.Warn("failed to emit event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}

func toOrganizationResponse(org domain.Organization) *domain.OrganizationResponse {
	return &domain.OrganizationResponse{
		ID:           org.ID.String(),
		Name:         org.Name,
		Slug:         org.Slug,
		SupportEmail: org.SupportEmail,
		CreatedAt:    org.CreatedAt,
	}
}

func toMemberResponse(m domain.OrganizationMember) domain.MemberResponse {
	return domain.MemberResponse{
		ID:          m.ID.String(),
		Email:       m.Email,
		DisplayName: m.DisplayName,
		Role:        m.Role,
		CreatedAt:   m.CreatedAt,
	}
}
