// Package validation checks request structs before they reach the store.
package validation

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"

	"github.com/Proton-105/guildbank/internal/domain"
	errors "github.com/Proton-105/guildbank/internal/errors"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("mentionable", func(fl validator.FieldLevel) bool {
			return domain.MentionableState(fl.Field().String()).Valid()
		})
	})
	return validate
}

// Struct validates v and converts failures into a ValidationError naming every offending field.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stdErrors.As(err, &fieldErrs) {
		return errors.NewValidationError(err.Error())
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}

	return errors.NewValidationError(strings.Join(problems, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "mentionable":
		return fmt.Sprintf("%s must be one of %s, %s, %s", field,
			domain.MentionableAllowed, domain.MentionableBlockedByChat, domain.MentionableBlockedByUser)
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
