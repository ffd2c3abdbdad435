package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

func ValidProvider(provider string) bool {
	switch provider {
	case ProviderGoogle, ProviderMicrosoft:
		return true
	default:
		return false
	}
}

type AccountStatus string

const (
	StatusConnected      AccountStatus = "connected"
	StatusReauthRequired AccountStatus = "reauth_required"
	StatusDisconnected   AccountStatus = "disconnected"
)

// EmailAccount is a connected mailbox. Tokens are provider OAuth tokens;
// a failed refresh parks the account in reauth_required until the user
// reconnects.
type EmailAccount struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID  `json:"org_id" gorm:"not null;index"`
	MemberID        *snowflake.ID `json:"member_id,omitempty"`
	Provider        string        `json:"provider" gorm:"type:text;not null"`
	EmailAddress    string        `json:"email_address" gorm:"type:text;not null"`
	AccessToken     string        `json:"-" gorm:"type:text;not null"`
	RefreshToken    string        `json:"-" gorm:"type:text;not null"`
	TokenExpiresAt  *time.Time    `json:"token_expires_at,omitempty"`
	Status          AccountStatus `json:"status" gorm:"type:text;not null;default:'connected'"`
	LastRefreshedAt *time.Time    `json:"last_refreshed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time     `json:"updated_at" gorm:"not null"`
}

func (EmailAccount) TableName() string { return "email_accounts" }
