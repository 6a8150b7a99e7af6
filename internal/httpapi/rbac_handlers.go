package httpapi

import (
	"net/http"
	"time"

	"usermanager.org/internal/audit"
)

type createRoleRequest struct {
	Name string `json:"name"`
}

// logEntry is the public shape of an audit entry. The actor is exposed as
// username for front-end compatibility.
type logEntry struct {
	UserName    string    `json:"username"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (a *API) handleGetRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	roles, err := a.svc.ListRoles(r.Context())
	if err != nil {
		a.respondError(w, r, "get-roles", err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.svc.CreateRole(r.Context(), req.Name)
	if err != nil {
		a.respondError(w, r, opCreateRole, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	entries, err := a.audit.ListRecent(r.Context())
	if err != nil {
		a.respondError(w, r, "get-logs", err)
		return
	}
	writeJSON(w, http.StatusOK, toLogEntries(entries))
}

func toLogEntries(entries []audit.Entry) []logEntry {
	out := make([]logEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, logEntry{
			UserName:    e.Actor,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}
