package domain

import "time"

// Identity is the internal record of one external chat user.
type Identity struct {
	ID          int64
	ExternalID  string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserRef identifies an external user as seen by the calling platform.
// It is resolved into an Identity on first use.
type UserRef struct {
	ExternalID  string `json:"external_id" validate:"required,max=255"`
	DisplayName string `json:"display_name" validate:"required,max=255"`
}
