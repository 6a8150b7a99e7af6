package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"usermanager.org/internal/auth"
)

func jwtPayload(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("malformed token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func policyAPI(p StatusPolicy) *API {
	return &API{status: p.withDefaults()}
}

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	handler := policyAPI(StatusPolicy{}).RequireRole("Admin")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{UserID: "user-1", Roles: []string{"admin"}}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRoleRejectsMissingRole(t *testing.T) {
	handler := policyAPI(StatusPolicy{}).RequireRole("Admin")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{UserID: "user-1", Roles: []string{"User"}}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestRequireRoleRejectsMissingPrincipal(t *testing.T) {
	handler := policyAPI(StatusPolicy{}).RequireRole("Admin")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireRoleFollowsStatusPolicy(t *testing.T) {
	api := policyAPI(StatusPolicy{Unauthenticated: http.StatusForbidden, Forbidden: http.StatusNotFound})
	handler := api.RequireRole("Admin")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{UserID: "user-1", Roles: []string{"User"}}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected configured forbidden status 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/internal", nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected configured unauthenticated status 403, got %d", rr.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc  ", "abc", true},
		{"", "", false},
		{"Basic Zm9vOmJhcg==", "", false},
		{"Bearer ", "", false},
		{"Bearer", "", false},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if (err == nil) != tc.ok || got != tc.token {
			t.Fatalf("extractBearerToken(%q) = %q, %v", tc.header, got, err)
		}
	}
}

func TestAuthenticateRejectsForeignToken(t *testing.T) {
	api := newTestAPI(t)
	other, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: "another-secret", Issuer: "usermanager-test", Audience: "usermanager-web"})
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	forged, err := other.Issue(auth.User{ID: "u-1", Email: "x@x.com"}, []string{"Admin"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	resp := api.get("/api/auth/get-users", nil, bearerHeader(forged.Token))
	body := decode[statusResponse](t, resp)
	if resp.StatusCode != http.StatusUnauthorized || body.IsSucceed {
		t.Fatalf("expected 401, got %d %+v", resp.StatusCode, body)
	}
}
