package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Proton-105/guildbank/internal/domain"
	errors "github.com/Proton-105/guildbank/internal/errors"
)

type sample struct {
	Name   string                  `validate:"required"`
	Amount int64                   `validate:"min=1,max=10"`
	State  domain.MentionableState `validate:"mentionable"`
	User   domain.UserRef          `validate:"required"`
}

func TestStruct(t *testing.T) {
	valid := sample{
		Name:   "coin",
		Amount: 5,
		State:  domain.MentionableAllowed,
		User:   domain.UserRef{ExternalID: "1", DisplayName: "alice"},
	}

	testCases := []struct {
		name     string
		mutate   func(s *sample)
		wantErr  bool
		contains string
	}{
		{name: "valid", mutate: func(s *sample) {}},
		{name: "missing name", mutate: func(s *sample) { s.Name = "" }, wantErr: true, contains: "Name is required"},
		{name: "amount too small", mutate: func(s *sample) { s.Amount = 0 }, wantErr: true, contains: "Amount must be at least 1"},
		{name: "amount too large", mutate: func(s *sample) { s.Amount = 11 }, wantErr: true, contains: "Amount must be at most 10"},
		{name: "unknown state", mutate: func(s *sample) { s.State = "loud" }, wantErr: true, contains: "State must be one of"},
		{name: "nested user", mutate: func(s *sample) { s.User.DisplayName = "" }, wantErr: true, contains: "User.DisplayName is required"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid
			tc.mutate(&s)

			err := Struct(s)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, errors.ErrValidation)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}
