package service

import (
	"context"
	"strings"
	"time"

	"github.com/aware88/fresh-crm/internal/clock"
	emailaccountdomain "github.com/aware88/fresh-crm/internal/emailaccount/domain"
	featuredomain "github.com/aware88/fresh-crm/internal/feature/domain"
	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
	"github.com/aware88/fresh-crm/internal/orgcontext"
	"github.com/aware88/fresh-crm/internal/secrets"
	"github.com/aware88/fresh-crm/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Tokens expiring within this window are refreshed before use.
const refreshWindow = 5 * time.Minute

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      emailaccountdomain.Repository
	Refresher TokenRefresher
	Sealer    *secrets.Sealer

	Features featuredomain.Service      `optional:"true"`
	Notifier notificationdomain.Service `optional:"true"`
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      emailaccountdomain.Repository
	refresher TokenRefresher
	sealer    *secrets.Sealer
	features  featuredomain.Service
	notifier  notificationdomain.Service
}

func NewService(p Params) emailaccountdomain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("emailaccount.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		refresher: p.Refresher,
		sealer:    p.Sealer,
		features:  p.Features,
		notifier:  p.Notifier,
	}
}

func (s *service) Connect(ctx context.Context, req emailaccountdomain.ConnectAccountRequest) (*emailaccountdomain.AccountResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, emailaccountdomain.ErrInvalidOrganization
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if !emailaccountdomain.ValidProvider(provider) {
		return nil, emailaccountdomain.ErrInvalidProvider
	}
	address := strings.ToLower(strings.TrimSpace(req.EmailAddress))
	if address == "" || !strings.Contains(address, "@") {
		return nil, emailaccountdomain.ErrInvalidEmail
	}
	accessToken := strings.TrimSpace(req.AccessToken)
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if accessToken == "" || refreshToken == "" {
		return nil, emailaccountdomain.ErrInvalidToken
	}

	if err := s.checkFeature(ctx, orgID); err != nil {
		return nil, err
	}

	// Tokens are encrypted at rest; only sealed values reach the repository.
	sealedAccess, err := s.sealer.Seal(accessToken)
	if err != nil {
		return nil, err
	}
	sealedRefresh, err := s.sealer.Seal(refreshToken)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	// Reconnecting an existing address replaces its tokens and clears
	// any reauth_required state.
	existing, err := s.repo.FindByAddress(ctx, s.db, orgID, provider, address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.AccessToken = sealedAccess
		existing.RefreshToken = sealedRefresh
		existing.TokenExpiresAt = req.ExpiresAt
		existing.Status = emailaccountdomain.StatusConnected
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, existing); err != nil {
			return nil, err
		}
		resp := toAccountResponse(*existing)
		return &resp, nil
	}

	account := emailaccountdomain.EmailAccount{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		MemberID:       parseOptionalID(req.MemberID),
		Provider:       provider,
		EmailAddress:   address,
		AccessToken:    sealedAccess,
		RefreshToken:   sealedRefresh,
		TokenExpiresAt: req.ExpiresAt,
		Status:         emailaccountdomain.StatusConnected,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, &account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.Connect(ctx, req)
		}
		return nil, err
	}

	resp := toAccountResponse(account)
	return &resp, nil
}

func (s *service) List(ctx context.Context) (*emailaccountdomain.ListAccountsResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, emailaccountdomain.ErrInvalidOrganization
	}
	accounts, err := s.repo.ListByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	resp := &emailaccountdomain.ListAccountsResponse{}
	for _, account := range accounts {
		resp.Accounts = append(resp.Accounts, toAccountResponse(account))
	}
	return resp, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*emailaccountdomain.AccountResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, emailaccountdomain.ErrInvalidOrganization
	}
	account, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	resp := toAccountResponse(*account)
	return &resp, nil
}

func (s *service) AccessToken(ctx context.Context, id string) (string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return "", emailaccountdomain.ErrInvalidOrganization
	}
	account, err := s.find(ctx, orgID, id)
	if err != nil {
		return "", err
	}

	switch account.Status {
	case emailaccountdomain.StatusDisconnected:
		return "", emailaccountdomain.ErrAccountDisconnected
	case emailaccountdomain.StatusReauthRequired:
		return "", emailaccountdomain.ErrReauthRequired
	}

	now := s.clock.Now()
	if account.TokenExpiresAt == nil || account.TokenExpiresAt.After(now.Add(refreshWindow)) {
		return s.sealer.Open(account.AccessToken)
	}

	if err := s.refresh(ctx, account, now); err != nil {
		return "", err
	}
	return s.sealer.Open(account.AccessToken)
}

func (s *service) Disconnect(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return emailaccountdomain.ErrInvalidOrganization
	}
	account, err := s.find(ctx, orgID, id)
	if err != nil {
		return err
	}

	account.AccessToken = ""
	account.RefreshToken = ""
	account.TokenExpiresAt = nil
	account.Status = emailaccountdomain.StatusDisconnected
	account.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, s.db, account)
}

func (s *service) RefreshExpiring(ctx context.Context, now time.Time, window time.Duration, batchSize int) (int, error) {
	if window <= 0 {
		window = refreshWindow
	}
	if batchSize <= 0 {
		batchSize = 50
	}

	accounts, err := s.repo.ListExpiring(ctx, s.db, now.Add(window), batchSize)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for i := range accounts {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if err := s.refresh(ctx, &accounts[i], now); err != nil {
			s.log.Warn("failed to refresh email account token",
				zap.String("account_id", accounts[i].ID.String()),
				zap.String("provider", accounts[i].Provider),
				zap.Error(err))
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// refresh exchanges the refresh token and persists the new tokens. A
// provider rejection parks the account in reauth_required and raises a
// notification.
func (s *service) refresh(ctx context.Context, account *emailaccountdomain.EmailAccount, now time.Time) error {
	refreshToken, err := s.sealer.Open(account.RefreshToken)
	if err != nil {
		return err
	}
	token, err := s.refresher.Refresh(ctx, account.Provider, refreshToken)
	if err != nil {
		account.Status = emailaccountdomain.StatusReauthRequired
		account.UpdatedAt = now
		if updateErr := s.repo.Update(ctx, s.db, account); updateErr != nil {
			s.log.Warn("failed to mark account reauth_required", zap.Error(updateErr))
		}
		s.notifyReauthRequired(ctx, account)
		return err
	}

	sealedAccess, err := s.sealer.Seal(token.AccessToken)
	if err != nil {
		return err
	}
	account.AccessToken = sealedAccess
	if token.RefreshToken != "" {
		sealedRefresh, sealErr := s.sealer.Seal(token.RefreshToken)
		if sealErr != nil {
			return sealErr
		}
		account.RefreshToken = sealedRefresh
	}
	expiresAt := token.ExpiresAt
	account.TokenExpiresAt = &expiresAt
	account.Status = emailaccountdomain.StatusConnected
	account.LastRefreshedAt = &now
	account.UpdatedAt = now
	return s.repo.Update(ctx, s.db, account)
}

func (s *service) notifyReauthRequired(ctx context.Context, account *emailaccountdomain.EmailAccount) {
	if s.notifier == nil {
		return
	}
	req := notificationdomain.EmailReauthRequired(account.OrgID, account.EmailAddress, account.Provider)
	if _, err := s.notifier.Create(ctx, req); err != nil {
		s.log.Warn("failed to create reauth notification", zap.Error(err))
	}
}

func (s *service) find(ctx context.Context, orgID snowflake.ID, id string) (*emailaccountdomain.EmailAccount, error) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, emailaccountdomain.ErrAccountNotFound
	}
	account, err := s.repo.FindByID(ctx, s.db, orgID, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, emailaccountdomain.ErrAccountNotFound
	}
	return account, nil
}

func (s *service) checkFeature(ctx context.Context, orgID snowflake.ID) error {
	if s.features == nil {
		return nil
	}
	enabled, err := s.features.IsEnabled(ctx, orgID, featuredomain.CodeEmailSync)
	if err != nil {
		return err
	}
	if !enabled {
		return featuredomain.ErrFeatureNotEnabled
	}
	return nil
}

func toAccountResponse(account emailaccountdomain.EmailAccount) emailaccountdomain.AccountResponse {
	return emailaccountdomain.AccountResponse{
		ID:              account.ID.String(),
		Provider:        account.Provider,
		EmailAddress:    account.EmailAddress,
		Status:          string(account.Status),
		TokenExpiresAt:  account.TokenExpiresAt,
		LastRefreshedAt: account.LastRefreshedAt,
		CreatedAt:       account.CreatedAt,
	}
}

func parseOptionalID(raw string) *snowflake.ID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return nil
	}
	return &id
}
