package httpapi

import (
	"net/http"
	"strings"
	"time"

	"usermanager.org/internal/auth"
)

type registerRequest struct {
	UserName  string   `json:"userName"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Address   string   `json:"address"`
	Roles     []string `json:"roles"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	UserInfo  auth.UserInfo `json:"userInfo"`
}

// updateRoleRequest names the role newRole as existing front ends send it;
// role is still accepted.
type updateRoleRequest struct {
	Email   string `json:"email"`
	NewRole string `json:"newRole"`
	Role    string `json:"role"`
}

func (r updateRoleRequest) role() string {
	if strings.TrimSpace(r.NewRole) != "" {
		return r.NewRole
	}
	return r.Role
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	_, err := a.svc.Register(r.Context(), auth.Registration{
		Profile: auth.Profile{
			UserName:  req.UserName,
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Address:   req.Address,
		},
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		a.respondError(w, r, opRegister, err)
		return
	}
	writeJSON(w, http.StatusCreated, statusResponse{
		IsSucceed:  true,
		StatusCode: http.StatusCreated,
		Message:    "User created successfully",
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.respondError(w, r, opLogin, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		UserInfo:  res.User,
	})
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.svc.UpdateRole(r.Context(), req.Email, req.role()); err != nil {
		a.respondError(w, r, "update-role", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		IsSucceed:  true,
		StatusCode: http.StatusOK,
		Message:    "Role updated successfully",
	})
}

func (a *API) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	users, err := a.svc.ListUsers(r.Context())
	if err != nil {
		a.respondError(w, r, "get-users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleGetUserByEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	user, err := a.svc.UserByEmail(r.Context(), email)
	if err != nil {
		a.respondError(w, r, "get-user-email", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleGetUsernames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	names, err := a.svc.ListUsernames(r.Context())
	if err != nil {
		a.respondError(w, r, "get-usernames", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}
