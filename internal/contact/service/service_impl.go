package service

import (
	"context"
	"strings"
	"time"

	contactdomain "github.com/aware88/fresh-crm/internal/contact/domain"
	featuredomain "github.com/aware88/fresh-crm/internal/feature/domain"
	"github.com/aware88/fresh-crm/internal/orgcontext"
	plandomain "github.com/aware88/fresh-crm/internal/plan/domain"
	webhookdomain "github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/aware88/fresh-crm/pkg/db"
	"github.com/aware88/fresh-crm/pkg/db/option"
	"github.com/aware88/fresh-crm/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     contactdomain.Repository
	Features featuredomain.Service `optional:"true"`
	Emitter  webhookdomain.Emitter `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     contactdomain.Repository
	features featuredomain.Service
	emitter  webhookdomain.Emitter
}

func NewService(p Params) contactdomain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("contact.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		features: p.Features,
		emitter:  p.Emitter,
	}
}

func (s *service) Create(ctx context.Context, req contactdomain.CreateContactRequest) (*contactdomain.ContactResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, contactdomain.ErrInvalidOrganization
	}

	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if firstName == "" && lastName == "" && email == "" {
		return nil, contactdomain.ErrInvalidName
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, contactdomain.ErrInvalidEmail
	}

	if err := s.checkContactLimit(ctx, orgID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	contact := contactdomain.Contact{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		FirstName: firstName,
		LastName:  lastName,
		Email:     optionalString(email),
		Phone:     optionalString(strings.TrimSpace(req.Phone)),
		Company:   optionalString(strings.TrimSpace(req.Company)),
		Position:  optionalString(strings.TrimSpace(req.Position)),
		Metadata:  toJSONMap(req.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &contact); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, contactdomain.ErrContactExists
		}
		return nil, err
	}

	s.emit(ctx, orgID, "contact.created", map[string]any{
		"contact_id": contact.ID.String(),
		"email":      email,
	})

	resp := toContactResponse(contact)
	return &resp, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*contactdomain.ContactResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, contactdomain.ErrInvalidOrganization
	}
	contact, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	resp := toContactResponse(*contact)
	return &resp, nil
}

func (s *service) Update(ctx context.Context, id string, req contactdomain.UpdateContactRequest) (*contactdomain.ContactResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, contactdomain.ErrInvalidOrganization
	}
	contact, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		contact.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		contact.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != "" && !strings.Contains(email, "@") {
			return nil, contactdomain.ErrInvalidEmail
		}
		contact.Email = optionalString(email)
	}
	if req.Phone != nil {
		contact.Phone = optionalString(strings.TrimSpace(*req.Phone))
	}
	if req.Company != nil {
		contact.Company = optionalString(strings.TrimSpace(*req.Company))
	}
	if req.Position != nil {
		contact.Position = optionalString(strings.TrimSpace(*req.Position))
	}
	if req.Metadata != nil {
		contact.Metadata = toJSONMap(req.Metadata)
	}
	contact.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, contact); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, contactdomain.ErrContactExists
		}
		return nil, err
	}

	s.emit(ctx, orgID, "contact.updated", map[string]any{
		"contact_id": contact.ID.String(),
	})

	resp := toContactResponse(*contact)
	return &resp, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return contactdomain.ErrInvalidOrganization
	}
	contact, err := s.find(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, s.db, orgID, contact.ID); err != nil {
		return err
	}
	s.emit(ctx, orgID, "contact.deleted", map[string]any{
		"contact_id": contact.ID.String(),
	})
	return nil
}

func (s *service) List(ctx context.Context, req contactdomain.ListContactsRequest) (*contactdomain.ListContactsResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, contactdomain.ErrInvalidOrganization
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.WithQuerySortBy(req.SortBy, req.OrderBy, map[string]bool{
			"created_at":        true,
			"updated_at":        true,
			"interaction_count": true,
		})),
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(req.PageSize),
		}),
	}
	if company := strings.TrimSpace(req.Company); company != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "company",
			Operator: option.EQ,
			Value:    company,
		}))
	}
	if search := strings.TrimSpace(req.Search); search != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "email",
			Operator: option.LIKE,
			Value:    "%" + strings.ToLower(search) + "%",
		}))
	}

	contacts, err := s.repo.List(ctx, s.db, orgID, opts...)
	if err != nil {
		return nil, err
	}

	size := int(req.PageSize)
	if size <= 0 {
		size = 10
	}
	resp := &contactdomain.ListContactsResponse{}
	for i, contact := range contacts {
		if i >= size {
			cursor, err := pagination.EncodeCursor(pagination.Cursor{
				CreatedAt: contacts[size-1].CreatedAt.Format(time.RFC3339Nano),
				ID:        contacts[size-1].ID.String(),
			})
			if err == nil {
				resp.NextPageToken = cursor
			}
			break
		}
		resp.Contacts = append(resp.Contacts, toContactResponse(contact))
	}
	return resp, nil
}

func (s *service) RecordInteraction(ctx context.Context, id string) (*contactdomain.ContactResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, contactdomain.ErrInvalidOrganization
	}
	contact, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.repo.IncrementInteraction(ctx, s.db, orgID, contact.ID, now); err != nil {
		return nil, err
	}
	contact.InteractionCount++
	contact.LastInteractionAt = &now
	contact.UpdatedAt = now

	resp := toContactResponse(*contact)
	return &resp, nil
}

func (s *service) find(ctx context.Context, orgID snowflake.ID, id string) (*contactdomain.Contact, error) {
	contactID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, contactdomain.ErrContactNotFound
	}
	contact, err := s.repo.FindByID(ctx, s.db, orgID, contactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, contactdomain.ErrContactNotFound
	}
	return contact, nil
}

func (s *service) checkContactLimit(ctx context.Context, orgID snowflake.ID) error {
	if s.features == nil {
		return nil
	}
	limit, ok, err := s.features.Limit(ctx, orgID, plandomain.LimitContacts)
	if err != nil || !ok {
		return err
	}
	count, err := s.repo.CountByOrg(ctx, s.db, orgID)
	if err != nil {
		return err
	}
	if count >= limit {
		return contactdomain.ErrContactLimitReached
	}
	return nil
}

func (s *service) emit(ctx context.Context, orgID snowflake.ID, eventType string, payload map[string]any) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, orgID, eventType, payload); err != nil {
		s.log.Warn("failed to emit event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func toContactResponse(contact contactdomain.Contact) contactdomain.ContactResponse {
	return contactdomain.ContactResponse{
		ID:                contact.ID.String(),
		FirstName:         contact.FirstName,
		LastName:          contact.LastName,
		Email:             derefString(contact.Email),
		Phone:             derefString(contact.Phone),
		Company:           derefString(contact.Company),
		Position:          derefString(contact.Position),
		InteractionCount:  contact.InteractionCount,
		LastInteractionAt: contact.LastInteractionAt,
		Metadata:          contact.Metadata,
		CreatedAt:         contact.CreatedAt,
		UpdatedAt:         contact.UpdatedAt,
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func toJSONMap(m map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range m {
		out[k] = v
	}
	return out
}
