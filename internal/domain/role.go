package domain

import "time"

// MentionableState tells whether a role may be referenced in outbound mentions.
type MentionableState string

const (
	MentionableAllowed       MentionableState = "is_mentionable"
	MentionableBlockedByChat MentionableState = "blocked_by_discord"
	MentionableBlockedByUser MentionableState = "blocked_by_user"
)

// Valid reports whether s is one of the known states.
func (s MentionableState) Valid() bool {
	switch s {
	case MentionableAllowed, MentionableBlockedByChat, MentionableBlockedByUser:
		return true
	default:
		return false
	}
}

// MentionableFromFlag maps the platform's boolean mentionable flag onto the
// tri-state. The platform can never produce MentionableBlockedByUser.
func MentionableFromFlag(mentionable bool) MentionableState {
	if mentionable {
		return MentionableAllowed
	}
	return MentionableBlockedByChat
}

// Role mirrors an external guild role.
type Role struct {
	ID             int64
	Guild          string
	ExternalRoleID string
	DisplayName    string
	Mentionable    MentionableState
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Membership links an identity to a role. Rows are deactivated, never deleted.
type Membership struct {
	IdentityID int64
	RoleID     int64
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
