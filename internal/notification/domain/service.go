package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateNotificationRequest struct {
	OrgID    snowflake.ID   `json:"-"`
	UserID   *snowflake.ID  `json:"user_id,omitempty"`
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// SendEmail fans the notification out to the org support address when
	// an SMTP sender is configured.
	SendEmail bool `json:"-"`
}

type ListNotificationsRequest struct {
	UnreadOnly bool
	PageToken  string
	PageSize   int32
}

type NotificationResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

type ListNotificationsResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

type Service interface {
	// Create stores a notification for any org; callers outside the request
	// path (payment events, jobs) pass the org explicitly.
	Create(ctx context.Context, req CreateNotificationRequest) (*NotificationResponse, error)

	// Tenant-facing inbox; org comes from the request context.
	List(ctx context.Context, req ListNotificationsRequest) (*ListNotificationsResponse, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int64, error)
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidType          = errors.New("invalid_type")
	ErrInvalidTitle         = errors.New("invalid_title")
	ErrNotificationNotFound = errors.New("notification_not_found")
)

// Formatting helpers keep notification copy in one place.

func SubscriptionRenewed(orgID snowflake.ID, planName string, periodEnd *time.Time) CreateNotificationRequest {
	body := fmt.Sprintf("Your %s subscription has renewed.", planName)
	meta := map[string]any{"plan": planName}
	if periodEnd != nil {
		body = fmt.Sprintf("Your %s subscription has renewed. Next renewal on %s.", planName, periodEnd.Format("Jan 2, 2006"))
		meta["period_end"] = periodEnd.Format(time.RFC3339)
	}
	return CreateNotificationRequest{
		OrgID: orgID,
		Type:  TypeSubscriptionRenewed,
		Title: "Subscription renewed",
		Body:  body,
		Metadata: meta,
	}
}

func PaymentFailed(orgID snowflake.ID, amountCents int64, currency string) CreateNotificationRequest {
	return CreateNotificationRequest{
		OrgID: orgID,
		Type:  TypePaymentFailed,
		Title: "Payment failed",
		Body:  fmt.Sprintf("A payment of %.2f %s could not be processed. Please update your billing details.", float64(amountCents)/100, currency),
		Metadata: map[string]any{
			"amount_cents": amountCents,
			"currency":     currency,
		},
		SendEmail: true,
	}
}

func QuotaLow(orgID snowflake.ID, remaining, limit int64) CreateNotificationRequest {
	return CreateNotificationRequest{
		OrgID: orgID,
		Type:  TypeQuotaLow,
		Title: "AI message quota running low",
		Body:  fmt.Sprintf("You have %d of %d AI messages left this period.", remaining, limit),
		Metadata: map[string]any{
			"remaining": remaining,
			"limit":     limit,
		},
	}
}

func LeadHot(orgID, contactID snowflake.ID, contactName string, score int) CreateNotificationRequest {
	return CreateNotificationRequest{
		OrgID: orgID,
		Type:  TypeLeadHot,
		Title: "New hot lead",
		Body:  fmt.Sprintf("%s is now a hot lead with a score of %d.", contactName, score),
		Metadata: map[string]any{
			"contact_id": contactID.String(),
			"score":      score,
		},
	}
}

func OpportunityWon(orgID, opportunityID snowflake.ID, title string, valueCents int64, currency string) CreateNotificationRequest {
	return CreateNotificationRequest{
		OrgID: orgID,
		Type:  TypeOpportunityWon,
		Title: "Opportunity won",
		Body:  fmt.Sprintf("%s closed won at %.2f %s.", title, float64(valueCents)/100, currency),
		Metadata: map[string]any{
			"opportunity_id": opportunityID.String(),
			"value_cents":    valueCents,
			"currency":       currency,
		},
	}
}

func EmailReauthRequired(orgID snowflake.ID, address, provider string) CreateNotificationRequest {
	return CreateNotificationRequest{
		OrgID: orgID,
		Type:  TypeEmailReauthRequired,
		Title: "Email account needs attention",
		Body:  fmt.Sprintf("The connected %s account %s needs to be re-authorized.", provider, address),
		Metadata: map[string]any{
			"address":  address,
			"provider": provider,
		},
		SendEmail: true,
	}
}
