package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeValidation         = "E100"
	CodeDuplicateCurrency  = "E110"
	CodeNoCurrency         = "E111"
	CodeInsufficientFunds  = "E112"
	CodeSelfTransfer       = "E113"
	CodeRoleNotFound       = "E120"
	CodeMultipleRolesFound = "E121"
	CodeDatabase           = "E200"
	CodeExternalAPI        = "E300"
	CodeRateLimit          = "E500"
)

// Sentinels for errors.Is; matching compares codes only.
var (
	ErrValidation         = &AppError{Code: CodeValidation}
	ErrDuplicateCurrency  = &AppError{Code: CodeDuplicateCurrency}
	ErrNoCurrency         = &AppError{Code: CodeNoCurrency}
	ErrInsufficientFunds  = &AppError{Code: CodeInsufficientFunds}
	ErrSelfTransfer       = &AppError{Code: CodeSelfTransfer}
	ErrRoleNotFound       = &AppError{Code: CodeRoleNotFound}
	ErrMultipleRolesFound = &AppError{Code: CodeMultipleRolesFound}
	ErrDatabase           = &AppError{Code: CodeDatabase}
	ErrRateLimit          = &AppError{Code: CodeRateLimit}
)

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool

	// Context for callers rendering the error.
	Emoji  string
	Actor  string
	RoleID string

	cause error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	if e == nil {
		return false
	}

	t, ok := target.(*AppError)
	if !ok || t == nil {
		return false
	}

	return t.Code == e.Code
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid request. %s", msg),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

func NewDuplicateCurrencyError(emoji, guild, actor string) *AppError {
	return &AppError{
		Code:        CodeDuplicateCurrency,
		Message:     fmt.Sprintf("currency %s already exists in guild %s", emoji, guild),
		UserMessage: fmt.Sprintf("%s is already a currency here", emoji),
		Severity:    SeverityLow,
		Emoji:       emoji,
		Actor:       actor,
	}
}

func NewNoCurrencyError(emoji, guild, actor string) *AppError {
	return &AppError{
		Code:        CodeNoCurrency,
		Message:     fmt.Sprintf("no currency %s in guild %s", emoji, guild),
		UserMessage: fmt.Sprintf("(╯°□°）╯︵ %s is not a currency here", emoji),
		Severity:    SeverityLow,
		Emoji:       emoji,
		Actor:       actor,
	}
}

func NewInsufficientFundsError(emoji, actor string, available, requested int64) *AppError {
	return &AppError{
		Code:        CodeInsufficientFunds,
		Message:     fmt.Sprintf("insufficient funds: %s holds %d %s, requested %d", actor, available, emoji, requested),
		UserMessage: fmt.Sprintf("%s does not have enough %s", actor, emoji),
		Severity:    SeverityLow,
		Emoji:       emoji,
		Actor:       actor,
	}
}

func NewSelfTransferError(emoji, actor string) *AppError {
	return &AppError{
		Code:        CodeSelfTransfer,
		Message:     fmt.Sprintf("self transfer of %s by %s", emoji, actor),
		UserMessage: "Don't be a weasel, you cannot pay yourself",
		Severity:    SeverityLow,
		Emoji:       emoji,
		Actor:       actor,
	}
}

func NewRoleNotFoundError(guild, roleID string) *AppError {
	return &AppError{
		Code:        CodeRoleNotFound,
		Message:     fmt.Sprintf("role %s not found in guild %s", roleID, guild),
		UserMessage: "Role is not tracked yet",
		Severity:    SeverityMedium,
		RoleID:      roleID,
	}
}

func NewMultipleRolesFoundError(guild, roleID string, count int) *AppError {
	return &AppError{
		Code:        CodeMultipleRolesFound,
		Message:     fmt.Sprintf("found %d roles for id %s in guild %s", count, roleID, guild),
		UserMessage: "Role data is inconsistent, operators were notified",
		Severity:    SeverityCritical,
		RoleID:      roleID,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeDatabase,
		Message:     fmt.Sprintf("Database error: %s", underlyingMsg),
		UserMessage: "Temporary problem, please try again later",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewExternalAPIError(apiName string, cause error) *AppError {
	return &AppError{
		Code:        CodeExternalAPI,
		Message:     fmt.Sprintf("External API error: %s", apiName),
		UserMessage: "Service is temporarily unavailable",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}
