package web

// errors.go maps service errors to HTTP responses.
//
// Every error is logged with its technical detail and request ID, then
// returned as a user message from core.MapError: JSON for API clients, an
// ErrorAlert fragment for HTMX, plain text otherwise.

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/promptfactory/internal/core"
	"github.com/JonMunkholm/promptfactory/internal/logging"
	"github.com/JonMunkholm/promptfactory/internal/store"
	"github.com/JonMunkholm/promptfactory/internal/web/templates"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status of a service error.
func statusFor(err error) int {
	var (
		validation *core.ValidationError
		decode     *core.DecodeError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &validation),
		errors.As(err, &decode),
		errors.Is(err, core.ErrNoValidRecords),
		errors.Is(err, core.ErrEmptyTemplate),
		errors.Is(err, core.ErrUnsupportedEncoding),
		errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	log := logging.FromContext(r.Context()).Warn
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log = logging.FromContext(r.Context()).Error
	}
	log("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
	case wantsJSON(r):
		detail := err.Error()
		if status >= http.StatusInternalServerError {
			detail = msg.Message
		}
		writeJSON(w, status, ErrorResponse{Error: detail, Message: msg.Message, Action: msg.Action, Code: msg.Code})
	default:
		http.Error(w, msg.Message+" ("+msg.Code+")", status)
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the client expects a JSON error. API routes
// always do.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json")
}
