package api

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"net/http"

	errors "github.com/Proton-105/guildbank/internal/errors"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	RoleID  string `json:"role_id,omitempty"`
	Emoji   string `json:"emoji,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decode reads a JSON body, answering 400 itself when it is malformed.
func (s *server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, errors.NewValidationError(fmt.Sprintf("malformed request body: %v", err)))
		return false
	}
	return true
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	userMessage, _ := s.errHandler.Handle(r.Context(), err)

	body := errorBody{Code: "INTERNAL", Message: userMessage}
	var appErr *errors.AppError
	if stdErrors.As(err, &appErr) {
		body.Code = appErr.Code
		body.RoleID = appErr.RoleID
		body.Emoji = appErr.Emoji
		if appErr.Code == errors.CodeValidation {
			body.Message = appErr.Message
		}
	}

	writeJSON(w, statusFor(err), body)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case stdErrors.Is(err, errors.ErrValidation), stdErrors.Is(err, errors.ErrSelfTransfer):
		return http.StatusBadRequest
	case stdErrors.Is(err, errors.ErrNoCurrency), stdErrors.Is(err, errors.ErrRoleNotFound):
		return http.StatusNotFound
	case stdErrors.Is(err, errors.ErrDuplicateCurrency):
		return http.StatusConflict
	case stdErrors.Is(err, errors.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case stdErrors.Is(err, errors.ErrRateLimit):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
