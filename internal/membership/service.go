// Package membership mirrors chat role membership into the store from
// before/after snapshots pushed by the chat platform.
package membership

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/guildbank/internal/domain"
	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/internal/repository"
	"github.com/Proton-105/guildbank/internal/validation"
	"github.com/Proton-105/guildbank/pkg/metrics"
)

// AddRoleRequest registers a role together with its initial members.
type AddRoleRequest struct {
	RoleID      string                  `json:"role_id" validate:"required,max=255"`
	Guild       string                  `json:"guild" validate:"required,max=255"`
	Name        string                  `json:"name" validate:"max=255"`
	Mentionable domain.MentionableState `json:"mentionable" validate:"required,mentionable"`
	Members     []domain.UserRef        `json:"members" validate:"dive"`
}

// UpdateRoleRequest carries the member snapshots taken before and after a change.
type UpdateRoleRequest struct {
	Guild       string                  `json:"guild" validate:"required,max=255"`
	RoleID      string                  `json:"role_id" validate:"required,max=255"`
	Previous    []domain.UserRef        `json:"previous" validate:"dive"`
	Current     []domain.UserRef        `json:"current" validate:"dive"`
	Mentionable domain.MentionableState `json:"mentionable" validate:"required,mentionable"`
}

// SyncResult reports what an update changed.
type SyncResult struct {
	Added       int                     `json:"added"`
	Removed     int                     `json:"removed"`
	Mentionable domain.MentionableState `json:"mentionable"`
}

type Service struct {
	store repository.Store
	log   *slog.Logger
}

// NewService constructs a new Service instance.
func NewService(store repository.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{store: store, log: log}
}

// AddUserRole creates the role, or refreshes it when already tracked, and
// activates a membership for every listed member.
func (s *Service) AddUserRole(ctx context.Context, req AddRoleRequest) (*domain.Role, error) {
	if err := validation.Struct(req); err != nil {
		metrics.RecordMembershipSync("add_role", "invalid", 0, 0)
		return nil, err
	}

	role := &domain.Role{
		Guild:          req.Guild,
		ExternalRoleID: req.RoleID,
		DisplayName:    req.Name,
		Mentionable:    req.Mentionable,
	}

	var members int
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.UpsertRole(ctx, role); err != nil {
			return err
		}

		identities, err := repository.UpsertIdentities(ctx, tx, req.Members...)
		if err != nil {
			return err
		}

		members = len(identities)
		return tx.ActivateMemberships(ctx, role.ID, identityIDs(identities, req.Members))
	})
	if err != nil {
		metrics.RecordMembershipSync("add_role", "error", 0, 0)
		return nil, s.storeError("add_user_role", req.Guild, req.RoleID, err)
	}

	metrics.RecordMembershipSync("add_role", "ok", members, 0)
	s.log.InfoContext(ctx, "role added",
		slog.String("guild", req.Guild),
		slog.String("role_id", req.RoleID),
		slog.Int("members", members),
	)

	return role, nil
}

// GetUserRoles returns the ids of mentionable roles the user actively holds in guild.
func (s *Service) GetUserRoles(ctx context.Context, externalUserID, guild string) ([]string, error) {
	roleIDs, err := s.store.MentionableRoleIDs(ctx, externalUserID, guild)
	if err != nil {
		return nil, s.storeError("get_user_roles", guild, "", err)
	}

	return roleIDs, nil
}

// UpdateUserRoles applies the difference between the previous and current
// member lists. Members present in both are not touched. The role's
// mentionable state follows the platform unless a user blocked it.
func (s *Service) UpdateUserRoles(ctx context.Context, req UpdateRoleRequest) (*SyncResult, error) {
	if err := validation.Struct(req); err != nil {
		metrics.RecordMembershipSync("update_roles", "invalid", 0, 0)
		return nil, err
	}

	added, removed := diff(req.Previous, req.Current)
	result := &SyncResult{Added: len(added), Removed: len(removed)}

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		roles, err := tx.LockRoles(ctx, req.Guild, req.RoleID)
		if err != nil {
			return err
		}
		switch len(roles) {
		case 0:
			return errors.NewRoleNotFoundError(req.Guild, req.RoleID)
		case 1:
		default:
			return errors.NewMultipleRolesFoundError(req.Guild, req.RoleID, len(roles))
		}
		role := roles[0]

		identities, err := repository.UpsertIdentities(ctx, tx, append(append([]domain.UserRef(nil), removed...), added...)...)
		if err != nil {
			return err
		}

		if err := tx.DeactivateMemberships(ctx, role.ID, identityIDs(identities, removed)); err != nil {
			return err
		}
		if err := tx.ActivateMemberships(ctx, role.ID, identityIDs(identities, added)); err != nil {
			return err
		}

		result.Mentionable = role.Mentionable
		if role.Mentionable != req.Mentionable && role.Mentionable != domain.MentionableBlockedByUser {
			if err := tx.UpdateRoleMentionable(ctx, role.ID, req.Mentionable); err != nil {
				return err
			}
			result.Mentionable = req.Mentionable
		}

		return nil
	})
	if err != nil {
		metrics.RecordMembershipSync("update_roles", syncOutcome(err), 0, 0)
		return nil, s.storeError("update_user_roles", req.Guild, req.RoleID, err)
	}

	metrics.RecordMembershipSync("update_roles", "ok", result.Added, result.Removed)
	s.log.InfoContext(ctx, "role members synchronized",
		slog.String("guild", req.Guild),
		slog.String("role_id", req.RoleID),
		slog.Int("added", result.Added),
		slog.Int("removed", result.Removed),
		slog.String("mentionable", string(result.Mentionable)),
	)

	return result, nil
}

// SetRoleMentionable overrides the mentionable state of every role with the
// given id. It is the only way to set or clear blocked_by_user.
func (s *Service) SetRoleMentionable(ctx context.Context, externalRoleID string, state domain.MentionableState) error {
	if externalRoleID == "" {
		return errors.NewValidationError("RoleID is required")
	}
	if !state.Valid() {
		return errors.NewValidationError(fmt.Sprintf("State must be one of %s, %s, %s",
			domain.MentionableAllowed, domain.MentionableBlockedByChat, domain.MentionableBlockedByUser))
	}

	affected, err := s.store.SetRoleMentionable(ctx, externalRoleID, state)
	if err != nil {
		return s.storeError("set_role_mentionable", "", externalRoleID, err)
	}
	if affected == 0 {
		return errors.NewRoleNotFoundError("", externalRoleID)
	}

	s.log.InfoContext(ctx, "role mentionable state set",
		slog.String("role_id", externalRoleID),
		slog.String("state", string(state)),
	)

	return nil
}

// diff returns the users only in current (added) and only in previous
// (removed), keyed by external id. Duplicates collapse to one entry.
func diff(previous, current []domain.UserRef) (added, removed []domain.UserRef) {
	before := make(map[string]struct{}, len(previous))
	for _, u := range previous {
		before[u.ExternalID] = struct{}{}
	}
	after := make(map[string]struct{}, len(current))
	for _, u := range current {
		after[u.ExternalID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(previous)+len(current))
	for _, u := range current {
		if _, ok := before[u.ExternalID]; ok {
			continue
		}
		if _, dup := seen[u.ExternalID]; dup {
			continue
		}
		seen[u.ExternalID] = struct{}{}
		added = append(added, u)
	}
	for _, u := range previous {
		if _, ok := after[u.ExternalID]; ok {
			continue
		}
		if _, dup := seen[u.ExternalID]; dup {
			continue
		}
		seen[u.ExternalID] = struct{}{}
		removed = append(removed, u)
	}

	return added, removed
}

// identityIDs maps users to their upserted row ids, once per external id.
func identityIDs(identities map[string]*domain.Identity, users []domain.UserRef) []int64 {
	ids := make([]int64, 0, len(users))
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, dup := seen[u.ExternalID]; dup {
			continue
		}
		seen[u.ExternalID] = struct{}{}
		ids = append(ids, identities[u.ExternalID].ID)
	}

	return ids
}

func (s *Service) storeError(operation, guild, roleID string, err error) error {
	var appErr *errors.AppError
	if stdErrors.As(err, &appErr) {
		return err
	}

	s.log.Error("membership operation failed",
		slog.String("operation", operation),
		slog.String("guild", guild),
		slog.String("role_id", roleID),
		slog.Any("error", err),
	)

	return errors.NewDatabaseError(fmt.Errorf("%s: %w", operation, err))
}

func syncOutcome(err error) string {
	switch {
	case stdErrors.Is(err, errors.ErrRoleNotFound):
		return "role_not_found"
	case stdErrors.Is(err, errors.ErrMultipleRolesFound):
		return "multiple_roles"
	default:
		return "error"
	}
}
