package app

import (
	"errors"
	"log/slog"

	"github.com/odyssey-erp/ledger-authz/internal/auth"
)

// AuthStateDeps are the collaborators of an embedded auth.State.
type AuthStateDeps struct {
	Provider  auth.IdentityProvider
	Loader    *auth.Loader
	Snapshots auth.SnapshotStore
	Logger    *slog.Logger
}

// NewAuthState builds the route guard and auth state for a single identity
// using the configured public routes, memo size and timeouts.
func NewAuthState(cfg *Config, deps AuthStateDeps) (*auth.State, error) {
	if deps.Provider == nil || deps.Loader == nil {
		return nil, errors.New("app: auth state requires provider and loader")
	}
	guard, err := auth.NewGuard(deps.Loader.Resolver(), cfg.PublicRoutes(), cfg.GuardCacheSize)
	if err != nil {
		return nil, err
	}
	opts := auth.StateOptions{
		Logger:              deps.Logger,
		SessionCheckTimeout: cfg.AuthSessionCheckTimeout,
		RoleLoadTimeout:     cfg.AuthRoleLoadTimeout,
		Snapshots:           deps.Snapshots,
	}
	return auth.NewState(deps.Provider, deps.Loader, guard, opts), nil
}
