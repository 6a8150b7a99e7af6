package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"usermanager.org/internal/auth"
	"usermanager.org/internal/obs"
)

const genericInternalMessage = "internal server error"

// Operations whose error mapping differs from the default.
const (
	opRegister   = "register"
	opLogin      = "login"
	opCreateRole = "create-role"
)

// statusResponse is the envelope for command results and every error.
type statusResponse struct {
	IsSucceed  bool   `json:"isSucceed"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// StatusPolicy maps the auth error taxonomy to HTTP status codes. A few
// entries exist only to stay compatible with existing front ends.
type StatusPolicy struct {
	Conflict            int
	RoleConflict        int
	InvalidRole         int
	RegisterInvalidRole int
	NotFound            int
	Unauthenticated     int
	Forbidden           int
	InvalidInput        int
}

// DefaultStatusPolicy returns the status mapping used when none is configured.
func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{
		Conflict:            http.StatusConflict,
		RoleConflict:        http.StatusBadRequest,
		InvalidRole:         http.StatusBadRequest,
		RegisterInvalidRole: http.StatusUnauthorized,
		NotFound:            http.StatusNotFound,
		Unauthenticated:     http.StatusUnauthorized,
		Forbidden:           http.StatusForbidden,
		InvalidInput:        http.StatusBadRequest,
	}
}

func (p StatusPolicy) withDefaults() StatusPolicy {
	d := DefaultStatusPolicy()
	for _, f := range []struct{ v, def *int }{
		{&p.Conflict, &d.Conflict},
		{&p.RoleConflict, &d.RoleConflict},
		{&p.InvalidRole, &d.InvalidRole},
		{&p.RegisterInvalidRole, &d.RegisterInvalidRole},
		{&p.NotFound, &d.NotFound},
		{&p.Unauthenticated, &d.Unauthenticated},
		{&p.Forbidden, &d.Forbidden},
		{&p.InvalidInput, &d.InvalidInput},
	} {
		if *f.v == 0 {
			*f.v = *f.def
		}
	}
	return p
}

// resolve returns the status and client-facing message for err raised by op.
// Internal failures never expose their detail.
func (p StatusPolicy) resolve(op string, err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrConflict):
		if op == opCreateRole {
			return p.RoleConflict, "Role already exists"
		}
		return p.Conflict, publicMessage(err)
	case errors.Is(err, auth.ErrInvalidRole):
		if op == opRegister {
			return p.RegisterInvalidRole, publicMessage(err)
		}
		return p.InvalidRole, publicMessage(err)
	case errors.Is(err, auth.ErrNotFound):
		return p.NotFound, publicMessage(err)
	case errors.Is(err, auth.ErrUnauthenticated):
		if op == opLogin {
			return p.Unauthenticated, "invalid email or password"
		}
		return p.Unauthenticated, "unauthenticated"
	case errors.Is(err, auth.ErrForbidden):
		return p.Forbidden, "forbidden"
	case errors.Is(err, auth.ErrWeakCredential), errors.Is(err, auth.ErrInvalidInput):
		return p.InvalidInput, publicMessage(err)
	default:
		return http.StatusInternalServerError, genericInternalMessage
	}
}

func publicMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "auth: ")
}

func (a *API) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code, msg := a.status.resolve(op, err)
	if code >= http.StatusInternalServerError {
		obs.Logger().ErrorContext(r.Context(), "request failed",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("op", op),
			slog.Any("error", err),
		)
	}
	writeError(w, r, code, msg)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, statusResponse{
		IsSucceed:  false,
		StatusCode: code,
		Message:    msg,
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
