package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Proton-105/guildbank/internal/domain"
)

func (t *pgTx) UpsertRole(ctx context.Context, role *domain.Role) error {
	const query = `
		INSERT INTO roles (guild, external_role_id, display_name, mentionable)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		ON CONFLICT (guild, external_role_id) DO UPDATE
		SET display_name = COALESCE(EXCLUDED.display_name, roles.display_name),
		    mentionable = CASE
		        WHEN roles.mentionable = 'blocked_by_user' THEN roles.mentionable
		        ELSE EXCLUDED.mentionable
		    END,
		    updated_at = now()
		RETURNING id, COALESCE(display_name, ''), mentionable, created_at, updated_at
	`

	var mentionable string
	if err := t.q.QueryRowContext(ctx, query,
		role.Guild,
		role.ExternalRoleID,
		role.DisplayName,
		string(role.Mentionable),
	).Scan(
		&role.ID,
		&role.DisplayName,
		&mentionable,
		&role.CreatedAt,
		&role.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert role %s: %w", role.ExternalRoleID, translate(err))
	}

	role.Mentionable = domain.MentionableState(mentionable)
	return nil
}

func (t *pgTx) LockRoles(ctx context.Context, guild, externalRoleID string) ([]domain.Role, error) {
	const query = `
		SELECT id, guild, external_role_id, COALESCE(display_name, ''), mentionable, created_at, updated_at
		FROM roles
		WHERE guild = $1 AND external_role_id = $2
		ORDER BY id
		FOR UPDATE
	`

	rows, err := t.q.QueryContext(ctx, query, guild, externalRoleID)
	if err != nil {
		return nil, fmt.Errorf("lock roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var (
			role        domain.Role
			mentionable string
		)
		if err := rows.Scan(
			&role.ID,
			&role.Guild,
			&role.ExternalRoleID,
			&role.DisplayName,
			&mentionable,
			&role.CreatedAt,
			&role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		role.Mentionable = domain.MentionableState(mentionable)
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

func (t *pgTx) UpdateRoleMentionable(ctx context.Context, roleID int64, state domain.MentionableState) error {
	const query = `
		UPDATE roles
		SET mentionable = $2, updated_at = now()
		WHERE id = $1
	`

	if _, err := t.q.ExecContext(ctx, query, roleID, string(state)); err != nil {
		return fmt.Errorf("update role mentionable: %w", err)
	}

	return nil
}

func (t *pgTx) ActivateMemberships(ctx context.Context, roleID int64, identityIDs []int64) error {
	if len(identityIDs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO memberships (identity_id, role_id, active)
		SELECT DISTINCT identity_id, $1::bigint, true
		FROM unnest($2::bigint[]) AS identity_id
		ON CONFLICT (identity_id, role_id) DO UPDATE
		SET active = EXCLUDED.active, updated_at = now()
	`

	if _, err := t.q.ExecContext(ctx, query, roleID, pq.Array(identityIDs)); err != nil {
		return fmt.Errorf("activate memberships: %w", err)
	}

	return nil
}

func (t *pgTx) DeactivateMemberships(ctx context.Context, roleID int64, identityIDs []int64) error {
	if len(identityIDs) == 0 {
		return nil
	}

	const query = `
		UPDATE memberships
		SET active = false, updated_at = now()
		WHERE role_id = $1 AND identity_id = ANY($2) AND active
	`

	if _, err := t.q.ExecContext(ctx, query, roleID, pq.Array(identityIDs)); err != nil {
		return fmt.Errorf("deactivate memberships: %w", err)
	}

	return nil
}

func (s *pgStore) MentionableRoleIDs(ctx context.Context, externalUserID, guild string) ([]string, error) {
	const query = `
		SELECT r.external_role_id
		FROM roles r
		JOIN memberships m ON m.role_id = r.id
		JOIN identities i ON i.id = m.identity_id
		WHERE i.external_id = $1
		  AND r.guild = $2
		  AND m.active
		  AND r.mentionable = 'is_mentionable'
		ORDER BY r.external_role_id
	`

	rows, err := s.db.QueryContext(ctx, query, externalUserID, guild)
	if err != nil {
		s.log.Error("failed to list user roles", slog.String("guild", guild), slog.String("user", externalUserID), slog.Any("error", err))
		return nil, fmt.Errorf("select user roles: %w", err)
	}
	defer rows.Close()

	roleIDs := make([]string, 0)
	for rows.Next() {
		var roleID string
		if err := rows.Scan(&roleID); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		roleIDs = append(roleIDs, roleID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}

	return roleIDs, nil
}

func (s *pgStore) SetRoleMentionable(ctx context.Context, externalRoleID string, state domain.MentionableState) (int64, error) {
	const query = `
		UPDATE roles
		SET mentionable = $2, updated_at = now()
		WHERE external_role_id = $1
	`

	res, err := s.db.ExecContext(ctx, query, externalRoleID, string(state))
	if err != nil {
		s.log.Error("failed to set role mentionable", slog.String("role_id", externalRoleID), slog.Any("error", err))
		return 0, fmt.Errorf("update role mentionable: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("role mentionable rows affected: %w", err)
	}

	return affected, nil
}
