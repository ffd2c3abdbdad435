package service

import (
	"context"
	"errors"
	"strings"
	"time"

	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
	"github.com/aware88/fresh-crm/internal/orgcontext"
	organizationdomain "github.com/aware88/fresh-crm/internal/organization/domain"
	"github.com/aware88/fresh-crm/internal/providers/email"
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

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  notificationdomain.Repository
	Email email.Provider `optional:"true"`
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  notificationdomain.Repository
	email email.Provider
}

func NewService(p Params) notificationdomain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		repo:  p.Repo,
		email: p.Email,
	}
}

func (s *service) Create(ctx context.Context, req notificationdomain.CreateNotificationRequest) (*notificationdomain.NotificationResponse, error) {
	if req.OrgID == 0 {
		return nil, notificationdomain.ErrInvalidOrganization
	}
	if strings.TrimSpace(req.Type) == "" {
		return nil, notificationdomain.ErrInvalidType
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, notificationdomain.ErrInvalidTitle
	}

	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	n := notificationdomain.Notification{
		ID:        s.genID.Generate(),
		OrgID:     req.OrgID,
		UserID:    req.UserID,
		Type:      strings.TrimSpace(req.Type),
		Title:     strings.TrimSpace(req.Title),
		Body:      strings.TrimSpace(req.Body),
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, &n); err != nil {
		return nil, err
	}

	if req.SendEmail {
		s.sendEmail(ctx, n)
	}

	resp := toNotificationResponse(n)
	return &resp, nil
}

func (s *service) List(ctx context.Context, req notificationdomain.ListNotificationsRequest) (*notificationdomain.ListNotificationsResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, notificationdomain.ErrInvalidOrganization
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.WithQuerySortBy("created_at", "desc", nil)),
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(req.PageSize),
		}),
	}
	if req.UnreadOnly {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "read",
			Operator: option.EQ,
			Value:    false,
		}))
	}

	notifications, err := s.repo.List(ctx, s.db, orgID, opts...)
	if err != nil {
		return nil, err
	}

	size := int(req.PageSize)
	if size <= 0 {
		size = 10
	}
	resp := &notificationdomain.ListNotificationsResponse{}
	for i, n := range notifications {
		if i >= size {
			cursor, err := pagination.EncodeCursor(pagination.Cursor{
				CreatedAt: notifications[size-1].CreatedAt.Format(time.RFC3339Nano),
				ID:        notifications[size-1].ID.String(),
			})
			if err == nil {
				resp.NextPageToken = cursor
			}
			break
		}
		resp.Notifications = append(resp.Notifications, toNotificationResponse(n))
	}
	return resp, nil
}

func (s *service) MarkRead(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return notificationdomain.ErrInvalidOrganization
	}
	notificationID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return notificationdomain.ErrNotificationNotFound
	}
	n, err := s.repo.FindByID(ctx, s.db, orgID, notificationID)
	if err != nil {
		return err
	}
	if n == nil {
		return notificationdomain.ErrNotificationNotFound
	}
	if n.Read {
		return nil
	}
	return s.repo.MarkRead(ctx, s.db, orgID, notificationID)
}

func (s *service) MarkAllRead(ctx context.Context) (int64, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, notificationdomain.ErrInvalidOrganization
	}
	return s.repo.MarkAllRead(ctx, s.db, orgID)
}

func (s *service) sendEmail(ctx context.Context, n notificationdomain.Notification) {
	if s.email == nil {
		return
	}
	var org organizationdomain.Organization
	err := s.db.WithContext(ctx).First(&org, "id = ?", n.OrgID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("failed to load org for notification email", zap.Error(err))
		}
		return
	}
	if org.SupportEmail == "" {
		return
	}
	body := "<p>" + n.Body + "</p>"
	if err := s.email.Send(ctx, []string{org.SupportEmail}, n.Title, body); err != nil {
		s.log.Warn("failed to send notification email",
			zap.String("notification_type", n.Type),
			zap.Error(err),
		)
	}
}

func toNotificationResponse(n notificationdomain.Notification) notificationdomain.NotificationResponse {
	return notificationdomain.NotificationResponse{
		ID:        n.ID.String(),
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Metadata:  n.Metadata,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
