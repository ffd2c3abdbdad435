package authorization

import (
	"context"
	"errors"

	"go.uber.org/fx"
)

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
)

// Service answers "may this actor perform this action on this object in
// this org". Actors are "user:<id>", "api_key:<id>", or "system".
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
