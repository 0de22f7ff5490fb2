package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger-authz/internal/platform/db"
	"github.com/odyssey-erp/ledger-authz/internal/rbac"
	"github.com/odyssey-erp/ledger-authz/internal/session"
	"github.com/odyssey-erp/ledger-authz/internal/shared"
)

const (
	findAccountByEmailSQL = `SELECT id, email, password_hash, is_active, created_at, updated_at
FROM users WHERE email = $1`

	profileSQL = `SELECT u.id, u.email, p.display_name, COALESCE(p.is_super_admin, FALSE),
       p.active_organization_id, p.active_project_id
FROM users u
LEFT JOIN profiles p ON p.user_id = u.id
WHERE u.id = $1`

	roleAssignmentsSQL = `SELECT user_id, role, organization_id, project_id
FROM user_roles WHERE user_id = $1 ORDER BY role`

	organizationsSQL = `SELECT o.id, o.name, m.role
FROM organization_members m
JOIN organizations o ON o.id = m.organization_id
WHERE m.user_id = $1 ORDER BY o.name`

	projectsSQL = `SELECT p.id, p.name, p.organization_id
FROM projects p
JOIN organization_members m ON m.organization_id = p.organization_id
WHERE m.user_id = $1 ORDER BY p.name`
)

// PGRepository reads accounts, profiles, and role data from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	var (
		account   Account
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, findAccountByEmailSQL, email).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find account: %w", err)
	}
	account.CreatedAt = createdAt.Time
	account.UpdatedAt = updatedAt.Time
	return &account, nil
}

// QueryProfile fetches the profile of a user.
func (r *PGRepository) QueryProfile(ctx context.Context, userID string) (*Profile, error) {
	var (
		profile     Profile
		displayName pgtype.Text
		activeOrg   pgtype.Text
		activeProj  pgtype.Text
	)
	err := r.pool.QueryRow(ctx, profileSQL, userID).Scan(
		&profile.UserID, &profile.Email, &displayName, &profile.IsSuperAdmin, &activeOrg, &activeProj,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: query profile: %w", err)
	}
	profile.DisplayName = displayName.String
	profile.ActiveOrganizationID = activeOrg.String
	profile.ActiveProjectID = activeProj.String
	return &profile, nil
}

// QueryUserRoleAssignments lists the role assignments of a user.
func (r *PGRepository) QueryUserRoleAssignments(ctx context.Context, userID string) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, roleAssignmentsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: query role assignments: %w", err)
	}
	assignments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RoleAssignment, error) {
		var (
			a       RoleAssignment
			role    string
			orgID   pgtype.Text
			project pgtype.Text
		)
		if err := row.Scan(&a.UserID, &role, &orgID, &project); err != nil {
			return a, err
		}
		a.Role = rbac.Role(role)
		a.OrganizationID = orgID.String
		a.ProjectID = project.String
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: scan role assignments: %w", err)
	}
	return assignments, nil
}

// QueryMemberships lists organizations and projects visible to a user. Both
// queries run in one repeatable-read transaction.
func (r *PGRepository) QueryMemberships(ctx context.Context, userID string) ([]session.Organization, []session.Project, error) {
	var (
		orgs     []session.Organization
		projects []session.Project
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, organizationsSQL, userID)
		if err != nil {
			return fmt.Errorf("auth: query organizations: %w", err)
		}
		orgs, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (session.Organization, error) {
			var (
				org  session.Organization
				role pgtype.Text
			)
			if err := row.Scan(&org.ID, &org.Name, &role); err != nil {
				return org, err
			}
			org.Role = role.String
			return org, nil
		})
		if err != nil {
			return fmt.Errorf("auth: scan organizations: %w", err)
		}

		rows, err = tx.Query(ctx, projectsSQL, userID)
		if err != nil {
			return fmt.Errorf("auth: query projects: %w", err)
		}
		projects, err = pgx.CollectRows(rows, pgx.RowToStructByPos[session.Project])
		if err != nil {
			return fmt.Errorf("auth: scan projects: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return orgs, projects, nil
}

var (
	_ AccountRepository = (*PGRepository)(nil)
	_ DataSource        = (*PGRepository)(nil)
	_ MembershipSource  = (*PGRepository)(nil)
)
