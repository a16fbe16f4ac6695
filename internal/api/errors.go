package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Wulnut/lark-agent/internal/lark"
	"github.com/Wulnut/lark-agent/internal/resolver"
	"github.com/Wulnut/lark-agent/internal/service"
)

// badRequestError marks caller mistakes so they map to 400.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

// statusForError maps service and client errors onto HTTP status codes.
func statusForError(err error) int {
	var badRequest *badRequestError
	if errors.As(err, &badRequest) {
		return http.StatusBadRequest
	}

	var (
		projectNotFound *resolver.ProjectNotFoundError
		typeNotFound    *resolver.TypeNotFoundError
		fieldNotFound   *resolver.FieldNotFoundError
		optionNotFound  *resolver.OptionNotFoundError
		roleNotFound    *resolver.RoleNotFoundError
		userNotFound    *resolver.UserNotFoundError
	)
	switch {
	case errors.As(err, &projectNotFound),
		errors.As(err, &typeNotFound),
		errors.As(err, &fieldNotFound),
		errors.As(err, &optionNotFound),
		errors.As(err, &roleNotFound),
		errors.As(err, &userNotFound):
		return http.StatusNotFound
	}

	var ambiguous *service.AmbiguousRelationError
	if errors.As(err, &ambiguous) {
		return http.StatusConflict
	}
	var relationNotFound *service.RelationNotFoundError
	if errors.As(err, &relationNotFound) {
		return http.StatusNotFound
	}

	switch {
	case lark.IsValidationError(err):
		return http.StatusUnprocessableEntity
	case lark.IsAuthError(err):
		return http.StatusBadGateway
	case errors.Is(err, lark.ErrTransport), errors.Is(err, lark.ErrHTTPStatus), errors.Is(err, lark.ErrProtocol):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error struct {
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	var body errorBody
	body.Error.Message = err.Error()
	body.Error.RequestID = requestID(r.Context())

	s.logger.Warn("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"request_id", body.Error.RequestID,
		"error", err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
