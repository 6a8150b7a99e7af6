package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"time"

	"usermanager.org/internal/audit"
	"usermanager.org/internal/auth"
	"usermanager.org/internal/obs"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyCheck: простая проверка готовности (например, ping БД).
type ReadyCheck struct {
	Store Pinger
}

func (rp ReadyCheck) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// Options wires the API. Service, Audit and Tokens are required.
type Options struct {
	Service *auth.Service
	Audit   *audit.Log
	Tokens  TokenVerifier
	Ready   ReadyCheck

	Status    StatusPolicy
	AdminRole string

	RateBurst     int
	RatePerSecond float64
	MaxBodyBytes  int64

	// TrustedProxies may set X-Forwarded-For. Empty means no proxy is trusted.
	TrustedProxies []netip.Prefix

	Version string
}

// API: HTTP слой.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	audit      *audit.Log
	tokens     TokenVerifier
	readyCheck ReadyCheck
	status     StatusPolicy
	adminRole  string
	rateBurst  int
	ratePerSec float64
	clientIPs  ClientIPs
	maxBody    int64
	version    string
}

// New builds the router. It fails when a required collaborator is missing.
func New(opts Options) (*API, error) {
	if opts.Service == nil || opts.Audit == nil || opts.Tokens == nil {
		return nil, errors.New("httpapi: service, audit log and token verifier are required")
	}
	a := &API{
		mux:        http.NewServeMux(),
		svc:        opts.Service,
		audit:      opts.Audit,
		tokens:     opts.Tokens,
		readyCheck: opts.Ready,
		status:     opts.Status.withDefaults(),
		adminRole:  opts.AdminRole,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSecond,
		clientIPs:  ClientIPs{Trusted: opts.TrustedProxies},
		maxBody:    opts.MaxBodyBytes,
		version:    opts.Version,
	}
	if a.adminRole == "" {
		a.adminRole = "Admin"
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// public auth endpoints are rate limited per client
	a.mux.Handle("/api/auth/register", a.limited(http.HandlerFunc(a.handleRegister)))
	a.mux.Handle("/api/auth/login", a.limited(http.HandlerFunc(a.handleLogin)))

	a.mux.Handle("/api/auth/update-role", a.admin(a.handleUpdateRole))
	a.mux.Handle("/api/auth/get-users", a.admin(a.handleGetUsers))
	a.mux.Handle("/api/auth/get-user-email", a.admin(a.handleGetUserByEmail))
	a.mux.Handle("/api/auth/get-usernames", a.admin(a.handleGetUsernames))
	a.mux.Handle("/api/auth/get-roles", a.admin(a.handleGetRoles))
	a.mux.Handle("/api/auth/create-role", a.admin(a.handleCreateRole))

	a.mux.Handle("/api/logs/get-logs", a.authenticate(http.HandlerFunc(a.handleGetLogs)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})

	return a, nil
}

// Handler возвращает http.Handler для сервера (без доп. аргументов).
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Recovery(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	// оборачиваем весь mux метриками
	return obs.Instrument(h)
}

func (a *API) admin(fn http.HandlerFunc) http.Handler {
	return a.authenticate(a.RequireRole(a.adminRole)(fn))
}

func (a *API) limited(next http.Handler) http.Handler {
	return RateLimit(next, a.rateBurst, a.ratePerSec, a.clientIPs)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "usermanager-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyCheck.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "usermanager-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New("malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
