package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"usermanager.org/internal/ids"
	"usermanager.org/internal/obs"
)

// Audit descriptions recorded by the service.
const (
	EventRegistered   = "registered"
	EventLogin        = "login"
	EventRoleChanged  = "role changed"
	EventUserList     = "user list generated"
	EventUsernameList = "username list generated"
	EventUserLookup   = "user looked up by email"
	EventRoleCreated  = "role created"
)

// Tokens issues signed bearer tokens.
type Tokens interface {
	Issue(u User, roles []string) (SignedToken, error)
}

// AuditRecorder appends audit entries. Record must not fail the caller: it
// is the last step of an operation whose primary write already succeeded.
type AuditRecorder interface {
	Record(ctx context.Context, actor, description string)
}

// ActorMode selects whose name an audited read is attributed to.
type ActorMode string

const (
	// ActorAdminLabel attributes the entry to the fixed administrative label.
	ActorAdminLabel ActorMode = "admin"
	// ActorCaller attributes the entry to the authenticated caller.
	ActorCaller ActorMode = "caller"
	// ActorSubject attributes the entry to the user the query is about.
	ActorSubject ActorMode = "subject"
)

// AuditPolicy configures audit attribution per endpoint.
type AuditPolicy struct {
	AdminLabel    string
	ListUsers     ActorMode
	ListUsernames ActorMode
	UserByEmail   ActorMode
	CreateRole    ActorMode
}

// DefaultAuditPolicy attributes list queries to "ADMIN" and single lookups to
// the queried user.
func DefaultAuditPolicy() AuditPolicy {
	return AuditPolicy{
		AdminLabel:    "ADMIN",
		ListUsers:     ActorAdminLabel,
		ListUsernames: ActorAdminLabel,
		UserByEmail:   ActorSubject,
		CreateRole:    ActorCaller,
	}
}

// Service coordinates credential, role and token operations and records an
// audit entry after each one completes.
type Service struct {
	credentials CredentialStore
	roles       RoleStore
	tokens      Tokens
	audit       AuditRecorder
	policy      AuditPolicy
	now         func() time.Time
	logger      *slog.Logger
	tracer      trace.Tracer
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAuditPolicy overrides audit attribution. Empty fields keep their defaults.
func WithAuditPolicy(p AuditPolicy) ServiceOption {
	return func(s *Service) error {
		if label := strings.TrimSpace(p.AdminLabel); label != "" {
			s.policy.AdminLabel = label
		}
		for _, f := range []struct {
			in  ActorMode
			out *ActorMode
		}{
			{p.ListUsers, &s.policy.ListUsers},
			{p.ListUsernames, &s.policy.ListUsernames},
			{p.UserByEmail, &s.policy.UserByEmail},
			{p.CreateRole, &s.policy.CreateRole},
		} {
			switch f.in {
			case "":
			case ActorAdminLabel, ActorCaller, ActorSubject:
				*f.out = f.in
			default:
				return fmt.Errorf("auth: unknown audit actor mode %q", f.in)
			}
		}
		return nil
	}
}

// WithClock overrides the time source used for new records.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// WithLogger sets the logger used for operator-facing diagnostics.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// NewService wires the stores, token issuer and audit recorder.
func NewService(credentials CredentialStore, roles RoleStore, tokens Tokens, audit AuditRecorder, opts ...ServiceOption) (*Service, error) {
	if credentials == nil || roles == nil {
		return nil, errors.New("auth: credential and role stores are required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	if audit == nil {
		return nil, errors.New("auth: audit recorder is required")
	}
	s := &Service{
		credentials: credentials,
		roles:       roles,
		tokens:      tokens,
		audit:       audit,
		policy:      DefaultAuditPolicy(),
		now:         time.Now,
		logger:      obs.Logger(),
		tracer:      otel.Tracer("usermanager.org/internal/auth"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register creates a user and attaches the requested roles.
//
// Every requested role is checked before the user is created. Roles are then
// attached one at a time; a failed attachment is logged and the user is kept
// with whatever roles did attach.
func (s *Service) Register(ctx context.Context, reg Registration) (_ UserInfo, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer func() { endSpan(span, err) }()

	reg = normalizeRegistration(reg)
	if err := validateRegistration(reg); err != nil {
		return UserInfo{}, err
	}
	span.SetAttributes(attribute.Int("auth.requested_roles", len(reg.Roles)))

	switch _, err := s.credentials.FindByEmail(ctx, reg.Email); {
	case err == nil:
		return UserInfo{}, fmt.Errorf("%w: user already exists", ErrConflict)
	case !errors.Is(err, ErrNotFound):
		return UserInfo{}, s.internal(ctx, "find user", err)
	}

	for _, role := range reg.Roles {
		ok, err := s.roles.RoleExists(ctx, role)
		if err != nil {
			return UserInfo{}, s.internal(ctx, "check role", err)
		}
		if !ok {
			return UserInfo{}, fmt.Errorf("%w: role %q does not exist", ErrInvalidRole, role)
		}
	}

	user, err := s.credentials.Create(ctx, User{
		ID:        ids.NewUUID(),
		UserName:  reg.UserName,
		Email:     reg.Email,
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
		Address:   reg.Address,
		CreatedAt: s.now().UTC(),
	}, reg.Password)
	switch {
	case errors.Is(err, ErrConflict):
		return UserInfo{}, fmt.Errorf("%w: user already exists", ErrConflict)
	case errors.Is(err, ErrWeakCredential), errors.Is(err, ErrInvalidInput):
		return UserInfo{}, err
	case err != nil:
		return UserInfo{}, s.internal(ctx, "create user", err)
	}

	attached := make([]string, 0, len(reg.Roles))
	for _, role := range reg.Roles {
		if err := s.roles.AssignRole(ctx, user.ID, role); err != nil {
			s.logger.WarnContext(ctx, "role attachment failed",
				slog.String("user_id", user.ID),
				slog.String("role", role),
				slog.Any("error", err),
			)
			continue
		}
		attached = append(attached, role)
	}

	// Report the stored spelling of each role, not the caller's.
	roles, err := s.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "resolve roles after register failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
		roles = attached
	}

	s.audit.Record(ctx, user.Email, EventRegistered)
	return NewUserInfo(user, roles), nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// Login verifies credentials and issues a token. Unknown email and wrong
// password both yield ErrUnauthenticated.
func (s *Service) Login(ctx context.Context, email, password string) (_ LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	user, err := s.credentials.FindByEmail(ctx, NormalizeEmail(email))
	switch {
	case errors.Is(err, ErrNotFound):
		// Spend the same bcrypt work as a real comparison.
		dummyHashOnce.Do(func() { dummyHash, _ = HashPassword("not-a-real-password") })
		CheckPassword(dummyHash, password)
		obs.LoginOutcome("rejected")
		return LoginResult{}, ErrUnauthenticated
	case err != nil:
		obs.LoginOutcome("error")
		return LoginResult{}, s.internal(ctx, "find user", err)
	}
	if !s.credentials.VerifyPassword(ctx, user, password) {
		obs.LoginOutcome("rejected")
		return LoginResult{}, ErrUnauthenticated
	}

	roles, err := s.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		obs.LoginOutcome("error")
		return LoginResult{}, s.internal(ctx, "resolve roles", err)
	}
	token, err := s.tokens.Issue(user, roles)
	if err != nil {
		obs.LoginOutcome("error")
		return LoginResult{}, s.internal(ctx, "issue token", err)
	}
	obs.LoginOutcome("success")

	s.audit.Record(ctx, user.Email, EventLogin)
	return LoginResult{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
		User:      NewUserInfo(user, roles),
	}, nil
}

// UpdateRole replaces the target's role set with exactly newRole. Callers are
// expected to have authorized the actor already.
//
// Two concurrent updates for one user are not serialized; the last replace wins.
func (s *Service) UpdateRole(ctx context.Context, targetEmail, newRole string) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.UpdateRole")
	defer func() { endSpan(span, err) }()

	targetEmail = NormalizeEmail(targetEmail)
	newRole = strings.TrimSpace(newRole)
	if targetEmail == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if newRole == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidRole)
	}

	user, err := s.credentials.FindByEmail(ctx, targetEmail)
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: user not found", ErrNotFound)
	case err != nil:
		return s.internal(ctx, "find user", err)
	}

	ok, err := s.roles.RoleExists(ctx, newRole)
	if err != nil {
		return s.internal(ctx, "check role", err)
	}
	if !ok {
		return fmt.Errorf("%w: role %q does not exist", ErrInvalidRole, newRole)
	}

	if err := s.roles.ReplaceRolesForUser(ctx, user.ID, []string{newRole}); err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return fmt.Errorf("%w: role %q does not exist", ErrInvalidRole, newRole)
		}
		return s.internal(ctx, "replace roles", err)
	}

	s.audit.Record(ctx, user.Email, EventRoleChanged)
	return nil
}

// ListUsers returns every user with its roles.
func (s *Service) ListUsers(ctx context.Context) (_ []UserInfo, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ListUsers")
	defer func() { endSpan(span, err) }()

	users, err := s.credentials.FindAll(ctx)
	if err != nil {
		return nil, s.internal(ctx, "list users", err)
	}
	out := make([]UserInfo, 0, len(users))
	for _, u := range users {
		roles, err := s.roles.RolesForUser(ctx, u.ID)
		if err != nil {
			return nil, s.internal(ctx, "resolve roles", err)
		}
		out = append(out, NewUserInfo(u, roles))
	}

	s.audit.Record(ctx, s.actor(ctx, s.policy.ListUsers, ""), EventUserList)
	return out, nil
}

// ListUsernames returns the username of every user.
func (s *Service) ListUsernames(ctx context.Context) (_ []string, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ListUsernames")
	defer func() { endSpan(span, err) }()

	users, err := s.credentials.FindAll(ctx)
	if err != nil {
		return nil, s.internal(ctx, "list users", err)
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.UserName)
	}

	s.audit.Record(ctx, s.actor(ctx, s.policy.ListUsernames, ""), EventUsernameList)
	return out, nil
}

// UserByEmail returns one user with its roles. A miss is not audited.
func (s *Service) UserByEmail(ctx context.Context, email string) (_ UserInfo, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.UserByEmail")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if email == "" {
		return UserInfo{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	user, err := s.credentials.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return UserInfo{}, fmt.Errorf("%w: user not found", ErrNotFound)
	case err != nil:
		return UserInfo{}, s.internal(ctx, "find user", err)
	}
	roles, err := s.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		return UserInfo{}, s.internal(ctx, "resolve roles", err)
	}

	s.audit.Record(ctx, s.actor(ctx, s.policy.UserByEmail, user.Email), EventUserLookup+": "+email)
	return NewUserInfo(user, roles), nil
}

// actor resolves the audit attribution for mode. subject is the user a query
// is about; it is empty for list queries, which then fall back to the label.
func (s *Service) actor(ctx context.Context, mode ActorMode, subject string) string {
	switch mode {
	case ActorCaller:
		if p, ok := PrincipalFromContext(ctx); ok {
			if label := p.Label(); label != "" {
				return label
			}
		}
	case ActorSubject:
		if subject != "" {
			return subject
		}
	}
	return s.policy.AdminLabel
}

// internal logs err for operators and returns an ErrInternal that names op only.
func (s *Service) internal(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "auth operation failed", slog.String("op", op), slog.Any("error", err))
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
