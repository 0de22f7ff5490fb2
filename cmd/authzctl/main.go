package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/odyssey-erp/ledger-authz/internal/app"
	"github.com/odyssey-erp/ledger-authz/internal/auth"
	"github.com/odyssey-erp/ledger-authz/internal/platform/cache"
	"github.com/odyssey-erp/ledger-authz/internal/platform/db"
	"github.com/odyssey-erp/ledger-authz/internal/rbac"
)

type checkRequest struct {
	email    string
	password string
	routes   []string
	actions  []string
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	routes := flag.String("routes", "", "comma separated routes to check")
	actions := flag.String("actions", "", "comma separated permission codes to check")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: authzctl -email <email> -password <password> [-routes /a,/b] [-actions code,code]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	req := checkRequest{
		email:    *email,
		password: *password,
		routes:   splitList(*routes),
		actions:  splitList(*actions),
	}
	if err := run(ctx, cfg, logger, req, os.Stdout); err != nil {
		logger.Error("authzctl", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, req checkRequest, out io.Writer) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer redisClient.Close()

	resolverCache, err := rbac.NewCache(rbac.NewResolver(nil), cfg.ResolverCacheSize, nil)
	if err != nil {
		return err
	}
	repo := auth.NewRepository(pool)
	loader := auth.NewLoader(repo, resolverCache, auth.LoaderConfig{
		Policy:           cfg.FallbackPolicy(),
		SuperAdminEmails: cfg.AuthSuperAdminEmails,
	}, logger)

	state, err := app.NewAuthState(cfg, app.AuthStateDeps{
		Provider:  auth.NewLocalProvider(auth.NewService(repo), cfg.SessionTTL),
		Loader:    loader,
		Snapshots: cache.NewSnapshotStore(redisClient, cfg.SnapshotTTL, logger),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer state.Dispose()
	state.Init(ctx)

	resolved := make(chan auth.View, 1)
	unsubscribe := state.Subscribe(func(v auth.View) {
		if v.Phase != auth.PhaseAuthenticated || v.RolesPending {
			return
		}
		select {
		case resolved <- v:
		default:
		}
	})
	defer unsubscribe()

	if err := state.SignIn(ctx, req.email, req.password); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	var view auth.View
	select {
	case view = <-resolved:
	case <-ctx.Done():
		return ctx.Err()
	}
	if view.User == nil {
		return errors.New("sign in produced no user")
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "user\t%s\n", view.User.Email)
	fmt.Fprintf(w, "roles\t%s\n", joinRoles(view.Roles))
	fmt.Fprintf(w, "super_admin\t%t\n", view.SuperAdmin)
	for _, route := range req.routes {
		fmt.Fprintf(w, "route\t%s\t%s\n", route, decision(state.HasRouteAccess(route)))
	}
	for _, action := range req.actions {
		fmt.Fprintf(w, "action\t%s\t%s\n", action, decision(state.HasActionAccess(action)))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return state.SignOut(ctx)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinRoles(roles []rbac.Role) string {
	if len(roles) == 0 {
		return "-"
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return strings.Join(names, ",")
}

func decision(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
