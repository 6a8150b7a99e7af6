package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"usermanager.org/internal/audit"
	"usermanager.org/internal/auth"
	"usermanager.org/internal/store/memory"
)

func init() {
	auth.HashCost = bcrypt.MinCost
}

type auditCall struct {
	actor       string
	description string
}

type recordingAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (r *recordingAudit) Record(ctx context.Context, actor, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, auditCall{actor: actor, description: description})
}

func (r *recordingAudit) snapshot() []auditCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auditCall, len(r.calls))
	copy(out, r.calls)
	return out
}

type fixture struct {
	svc    *auth.Service
	store  *memory.Store
	audit  *recordingAudit
	tokens *auth.TokenIssuer
}

func newFixture(t *testing.T, opts ...auth.ServiceOption) fixture {
	t.Helper()
	store := memory.New()
	rec := &recordingAudit{}
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: "s3cret", Issuer: "test", Audience: "test-web"})
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	svc, err := auth.NewService(store, store, tokens, rec, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	for _, role := range []string{"Admin", "User"} {
		if _, err := store.CreateRole(context.Background(), role); err != nil {
			t.Fatalf("CreateRole: %v", err)
		}
	}
	return fixture{svc: svc, store: store, audit: rec, tokens: tokens}
}

func registration(email string, roles ...string) auth.Registration {
	return auth.Registration{
		Profile:  auth.Profile{UserName: "user", Email: email, FirstName: "First", LastName: "Last"},
		Password: "secret1",
		Roles:    roles,
	}
}

func TestRegisterThenLookupHasRequestedRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	info, err := f.svc.Register(ctx, registration("B@X.com", "user", "Admin"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if info.Email != "b@x.com" || len(info.Roles) != 2 {
		t.Fatalf("unexpected register result: %+v", info)
	}

	got, err := f.svc.UserByEmail(ctx, "b@x.com")
	if err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if len(got.Roles) != 2 || got.Roles[0] != "Admin" || got.Roles[1] != "User" {
		t.Fatalf("unexpected roles: %v", got.Roles)
	}

	calls := f.audit.snapshot()
	if len(calls) != 2 || calls[0] != (auditCall{"b@x.com", auth.EventRegistered}) {
		t.Fatalf("unexpected audit calls: %+v", calls)
	}
	if calls[1].actor != "b@x.com" {
		t.Fatalf("lookup should be attributed to the queried user: %+v", calls[1])
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registration("a@x.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := f.svc.Register(ctx, registration("A@x.com")); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestConcurrentRegistrationHasSingleWinner(t *testing.T) {
	f := newFixture(t)
	const n = 16

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), registration("race@x.com"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, auth.ErrConflict):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestRegisterUnknownRoleCreatesNoUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, registration("a@x.com", "User", "Ghost"))
	if !errors.Is(err, auth.ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if _, err := f.store.FindByEmail(ctx, "a@x.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("user should not exist, got %v", err)
	}
	if len(f.audit.snapshot()) != 0 {
		t.Fatal("failed registration must not be audited")
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	weak := registration("a@x.com")
	weak.Password = "123"
	if _, err := f.svc.Register(ctx, weak); !errors.Is(err, auth.ErrWeakCredential) {
		t.Fatalf("expected weak credential, got %v", err)
	}
	if _, err := f.svc.Register(ctx, registration("not-an-email")); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

type flakyRoles struct {
	*memory.Store
	failOn string
}

func (f flakyRoles) AssignRole(ctx context.Context, userID, role string) error {
	if auth.NormalizeRoleName(role) == auth.NormalizeRoleName(f.failOn) {
		return errors.New("connection reset")
	}
	return f.Store.AssignRole(ctx, userID, role)
}

func TestRegisterKeepsUserWhenRoleAttachmentFails(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for _, role := range []string{"Admin", "User"} {
		if _, err := store.CreateRole(ctx, role); err != nil {
			t.Fatalf("CreateRole: %v", err)
		}
	}
	tokens, _ := auth.NewTokenIssuer(auth.TokenConfig{Secret: "s", Issuer: "i", Audience: "a"})
	rec := &recordingAudit{}
	svc, err := auth.NewService(store, flakyRoles{Store: store, failOn: "Admin"}, tokens, rec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	info, err := svc.Register(ctx, registration("a@x.com", "Admin", "User"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(info.Roles) != 1 || info.Roles[0] != "User" {
		t.Fatalf("expected only User attached, got %v", info.Roles)
	}
	roles, _ := store.RolesForUser(ctx, info.ID)
	if len(roles) != 1 || roles[0] != "User" {
		t.Fatalf("stored roles = %v", roles)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registration("a@x.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, errWrong := f.svc.Login(ctx, "a@x.com", "wrong-password")
	_, errUnknown := f.svc.Login(ctx, "nobody@x.com", "secret1")
	if !errors.Is(errWrong, auth.ErrUnauthenticated) || !errors.Is(errUnknown, auth.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v / %v", errWrong, errUnknown)
	}
	if errWrong.Error() != errUnknown.Error() {
		t.Fatalf("errors differ: %q vs %q", errWrong, errUnknown)
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registration("a@x.com", "Admin")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := f.svc.Login(ctx, "A@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := f.tokens.Verify(res.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != res.User.ID || !auth.PrincipalFromClaims(claims).HasRole("admin") {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if time.Until(res.ExpiresAt) <= 2*time.Hour {
		t.Fatalf("unexpected expiry: %v", res.ExpiresAt)
	}

	calls := f.audit.snapshot()
	if last := calls[len(calls)-1]; last != (auditCall{"a@x.com", auth.EventLogin}) {
		t.Fatalf("unexpected audit call: %+v", last)
	}
}

func TestUpdateRoleReplacesAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	info, err := f.svc.Register(ctx, registration("a@x.com", "Admin", "User"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := f.svc.UpdateRole(ctx, "a@x.com", "user"); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	roles, _ := f.store.RolesForUser(ctx, info.ID)
	if len(roles) != 1 || roles[0] != "User" {
		t.Fatalf("expected exactly one role, got %v", roles)
	}
	calls := f.audit.snapshot()
	if last := calls[len(calls)-1]; last != (auditCall{"a@x.com", auth.EventRoleChanged}) {
		t.Fatalf("unexpected audit call: %+v", last)
	}
}

func TestUpdateRoleErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registration("a@x.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	before := len(f.audit.snapshot())

	if err := f.svc.UpdateRole(ctx, "ghost@x.com", "User"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := f.svc.UpdateRole(ctx, "a@x.com", "Ghost"); !errors.Is(err, auth.ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if got := len(f.audit.snapshot()); got != before {
		t.Fatalf("failed updates must not be audited, got %d new entries", got-before)
	}
}

func TestListQueriesUseAuditPolicy(t *testing.T) {
	f := newFixture(t, auth.WithAuditPolicy(auth.AuditPolicy{UserByEmail: auth.ActorCaller}))
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registration("a@x.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	caller := auth.ContextWithPrincipal(ctx, auth.Principal{UserID: "adm", Email: "root@x.com", Roles: []string{"Admin"}})

	users, err := f.svc.ListUsers(caller)
	if err != nil || len(users) != 1 || users[0].Roles == nil {
		t.Fatalf("ListUsers = %+v, %v", users, err)
	}
	names, err := f.svc.ListUsernames(caller)
	if err != nil || len(names) != 1 || names[0] != "user" {
		t.Fatalf("ListUsernames = %v, %v", names, err)
	}
	if _, err := f.svc.UserByEmail(caller, "a@x.com"); err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if _, err := f.svc.UserByEmail(caller, "ghost@x.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	calls := f.audit.snapshot()[1:]
	want := []auditCall{
		{"ADMIN", auth.EventUserList},
		{"ADMIN", auth.EventUsernameList},
		{"root@x.com", auth.EventUserLookup + ": a@x.com"},
	}
	if len(calls) != len(want) {
		t.Fatalf("audit calls = %+v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("audit call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestWithAuditPolicyRejectsUnknownMode(t *testing.T) {
	store := memory.New()
	tokens, _ := auth.NewTokenIssuer(auth.TokenConfig{Secret: "s", Issuer: "i", Audience: "a"})
	_, err := auth.NewService(store, store, tokens, &recordingAudit{}, auth.WithAuditPolicy(auth.AuditPolicy{ListUsers: "everyone"}))
	if err == nil {
		t.Fatal("expected error for unknown actor mode")
	}
}

func TestCreateRoleConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.svc.CreateRole(ctx, " Auditor ")
	if err != nil || role.Name != "Auditor" || role.NormalizedName != "AUDITOR" {
		t.Fatalf("CreateRole = %+v, %v", role, err)
	}
	if _, err := f.svc.CreateRole(ctx, "auditor"); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.svc.CreateRole(ctx, "  "); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	roles, err := f.svc.ListRoles(ctx)
	if err != nil || len(roles) != 3 {
		t.Fatalf("ListRoles = %+v, %v", roles, err)
	}
}

type failingAuditStore struct{}

func (failingAuditStore) Append(ctx context.Context, e audit.Entry) error {
	return errors.New("audit table locked")
}

func (failingAuditStore) ListRecent(ctx context.Context, opts audit.ListOptions) ([]audit.Entry, error) {
	return nil, nil
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	store := memory.New()
	tokens, _ := auth.NewTokenIssuer(auth.TokenConfig{Secret: "s", Issuer: "i", Audience: "a"})
	svc, err := auth.NewService(store, store, tokens, audit.New(failingAuditStore{}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Register(context.Background(), registration("a@x.com")); err != nil {
		t.Fatalf("Register should succeed despite audit failure: %v", err)
	}
	if _, err := svc.Login(context.Background(), "a@x.com", "secret1"); err != nil {
		t.Fatalf("Login should succeed despite audit failure: %v", err)
	}
}

func TestRegisterWithoutUserNameUsesEmail(t *testing.T) {
	f := newFixture(t)
	reg := registration("solo@x.com")
	reg.UserName = ""

	info, err := f.svc.Register(context.Background(), reg)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if info.UserName != "solo@x.com" {
		t.Fatalf("expected username to default to email, got %q", info.UserName)
	}
}

func TestRegisterReturnsStoredRoleNames(t *testing.T) {
	f := newFixture(t)

	info, err := f.svc.Register(context.Background(), registration("case@x.com", "admin", "USER"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(info.Roles) != 2 || info.Roles[0] != "Admin" || info.Roles[1] != "User" {
		t.Fatalf("expected stored spellings [Admin User], got %v", info.Roles)
	}
}
