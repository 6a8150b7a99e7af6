// Package config loads process configuration from USERMGR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"

	"usermanager.org/internal/auth"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the full service configuration.
type Config struct {
	Version     string `env:"USERMGR_VERSION" envDefault:"dev"`
	Commit      string `env:"USERMGR_COMMIT" envDefault:"none"`
	HTTPAddr    string `env:"USERMGR_HTTP_ADDR" envDefault:":8080"`
	LogLevel    string `env:"USERMGR_LOG_LEVEL" envDefault:"info"`
	MaxBodySize int64  `env:"USERMGR_MAX_BODY_BYTES" envDefault:"1048576"`

	Store StoreConfig
	JWT   JWTConfig
	Audit AuditConfig
	HTTP  HTTPPolicy

	RateLimitBurst     int     `env:"USERMGR_RATE_LIMIT_BURST" envDefault:"20"`
	RateLimitPerSecond float64 `env:"USERMGR_RATE_LIMIT_RPS" envDefault:"5"`

	// TrustedProxies lists CIDRs or addresses allowed to set X-Forwarded-For.
	TrustedProxies []string `env:"USERMGR_TRUSTED_PROXIES" envSeparator:","`

	OTelEndpoint string `env:"USERMGR_OTEL_ENDPOINT"`
	SeedFile     string `env:"USERMGR_SEED_FILE"`
}

// ClientConfig configures the command-line clients. It carries no signing
// material, so it loads without the server's required variables.
type ClientConfig struct {
	ServiceURL    string        `env:"USERMGR_SERVICE_URL" envDefault:"http://localhost:8080"`
	Timeout       time.Duration `env:"USERMGR_CLIENT_TIMEOUT" envDefault:"15s"`
	AdminEmail    string        `env:"USERMGR_SMOKE_ADMIN_EMAIL"`
	AdminPassword string        `env:"USERMGR_SMOKE_ADMIN_PASSWORD"`
}

// StoreConfig selects and locates persistence.
type StoreConfig struct {
	Driver      string `env:"USERMGR_STORE_DRIVER" envDefault:"sqlite"`
	PGDSN       string `env:"USERMGR_PG_DSN"`
	SQLitePath  string `env:"USERMGR_SQLITE_PATH" envDefault:"usermanager.db"`
	AutoMigrate bool   `env:"USERMGR_AUTO_MIGRATE" envDefault:"true"`
}

// JWTConfig is the token signing configuration. Secret, issuer and audience
// have no defaults.
type JWTConfig struct {
	Secret   string        `env:"USERMGR_JWT_SECRET,required,notEmpty"`
	Issuer   string        `env:"USERMGR_JWT_ISSUER,required,notEmpty"`
	Audience string        `env:"USERMGR_JWT_AUDIENCE,required,notEmpty"`
	TTL      time.Duration `env:"USERMGR_JWT_TTL" envDefault:"3h"`
}

// AuditConfig controls audit attribution and listing.
type AuditConfig struct {
	AdminLabel        string `env:"USERMGR_AUDIT_ADMIN_LABEL" envDefault:"ADMIN"`
	ListUsersActor    string `env:"USERMGR_AUDIT_LIST_USERS_ACTOR" envDefault:"admin"`
	ListUsernameActor string `env:"USERMGR_AUDIT_LIST_USERNAMES_ACTOR" envDefault:"admin"`
	LookupActor       string `env:"USERMGR_AUDIT_LOOKUP_ACTOR" envDefault:"subject"`
	CreateRoleActor   string `env:"USERMGR_AUDIT_CREATE_ROLE_ACTOR" envDefault:"caller"`
	IncludeInactive   bool   `env:"USERMGR_AUDIT_INCLUDE_INACTIVE" envDefault:"false"`
}

// HTTPPolicy holds boundary choices kept configurable for front-end compatibility.
type HTTPPolicy struct {
	AdminRole                 string `env:"USERMGR_ADMIN_ROLE" envDefault:"Admin"`
	RegisterInvalidRoleStatus int    `env:"USERMGR_REGISTER_INVALID_ROLE_STATUS" envDefault:"401"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadClient parses the client configuration.
func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ServiceURL == "" {
		return ClientConfig{}, errors.New("config: USERMGR_SERVICE_URL must not be empty")
	}
	if cfg.Timeout <= 0 {
		return ClientConfig{}, errors.New("config: USERMGR_CLIENT_TIMEOUT must be positive")
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.Store.PGDSN == "" {
			return errors.New("config: USERMGR_PG_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.JWT.TTL <= 0 {
		return errors.New("config: USERMGR_JWT_TTL must be positive")
	}
	if s := c.HTTP.RegisterInvalidRoleStatus; s < 400 || s > 499 || http.StatusText(s) == "" {
		return fmt.Errorf("config: USERMGR_REGISTER_INVALID_ROLE_STATUS must be a 4xx status, got %d", s)
	}
	return nil
}

// TokenConfig returns the issuer configuration.
func (c Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:   c.JWT.Secret,
		Issuer:   c.JWT.Issuer,
		Audience: c.JWT.Audience,
		TTL:      c.JWT.TTL,
	}
}

// AuditPolicy returns the per-endpoint audit attribution.
func (c Config) AuditPolicy() auth.AuditPolicy {
	return auth.AuditPolicy{
		AdminLabel:    c.Audit.AdminLabel,
		ListUsers:     auth.ActorMode(c.Audit.ListUsersActor),
		ListUsernames: auth.ActorMode(c.Audit.ListUsernameActor),
		UserByEmail:   auth.ActorMode(c.Audit.LookupActor),
		CreateRole:    auth.ActorMode(c.Audit.CreateRoleActor),
	}
}
