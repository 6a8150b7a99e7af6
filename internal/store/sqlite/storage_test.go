package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"usermanager.org/internal/audit"
	"usermanager.org/internal/auth"
)

func init() {
	auth.HashCost = bcrypt.MinCost
}

func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()
	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	return s, func() { _ = s.Close() }
}

func createUser(t *testing.T, s *Storage, email string) auth.User {
	t.Helper()
	u, err := s.Create(context.Background(), auth.User{UserName: "user", Email: email}, "secret1")
	require.NoError(t, err)
	return u
}

func TestStorage_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	created := createUser(t, s, "Alice@Example.com")
	assert.Equal(t, "alice@example.com", created.Email)
	assert.NotEqual(t, "secret1", created.PasswordHash)

	got, err := s.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.True(t, s.VerifyPassword(ctx, got, "secret1"))
	assert.False(t, s.VerifyPassword(ctx, got, "secret2"))

	_, err = s.FindByEmail(ctx, "bob@example.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStorage_CreateErrors(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	createUser(t, s, "a@x.com")

	tests := []struct {
		name      string
		email     string
		password  string
		wantError error
	}{
		{name: "duplicate email", email: "A@X.com", password: "secret1", wantError: auth.ErrConflict},
		{name: "short password", email: "b@x.com", password: "12345", wantError: auth.ErrWeakCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, auth.User{UserName: "u", Email: tt.email}, tt.password)
			assert.ErrorIs(t, err, tt.wantError)
		})
	}
}

func TestStorage_ConcurrentCreateSingleWinner(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(context.Background(), auth.User{UserName: "u", Email: "race@x.com"}, "secret1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, auth.ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)
}

func TestStorage_Roles(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	for _, name := range []string{"Admin", "User"} {
		_, err := s.CreateRole(ctx, name)
		require.NoError(t, err)
	}
	_, err := s.CreateRole(ctx, "admin")
	assert.ErrorIs(t, err, auth.ErrConflict)

	ok, err := s.RoleExists(ctx, "ADMIN")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RoleExists(ctx, "Ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	roles, err := s.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "Admin", roles[0].Name)

	u := createUser(t, s, "a@x.com")
	require.NoError(t, s.AssignRole(ctx, u.ID, "admin"))
	require.NoError(t, s.AssignRole(ctx, u.ID, "Admin"))
	assert.ErrorIs(t, s.AssignRole(ctx, u.ID, "Ghost"), auth.ErrRoleNotFound)

	got, err := s.RolesForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin"}, got)
}

func TestStorage_ReplaceRolesForUser(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	for _, name := range []string{"Admin", "User"} {
		_, err := s.CreateRole(ctx, name)
		require.NoError(t, err)
	}
	u := createUser(t, s, "a@x.com")
	require.NoError(t, s.AssignRole(ctx, u.ID, "Admin"))
	require.NoError(t, s.AssignRole(ctx, u.ID, "User"))

	err := s.ReplaceRolesForUser(ctx, u.ID, []string{"User", "Ghost"})
	assert.ErrorIs(t, err, auth.ErrRoleNotFound)
	got, err := s.RolesForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin", "User"}, got, "failed replace must leave assignments untouched")

	require.NoError(t, s.ReplaceRolesForUser(ctx, u.ID, []string{"user"}))
	got, err = s.RolesForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"User"}, got)
}

func TestStorage_AuditOrderingAndFilter(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	entries := []audit.Entry{
		{ID: "01HZ0000000000000000000001", Actor: "a@x.com", Description: "registered", CreatedAt: ts, UpdatedAt: ts, IsActive: true},
		{ID: "01HZ0000000000000000000002", Actor: "a@x.com", Description: "login", CreatedAt: ts, UpdatedAt: ts, IsActive: true},
		{ID: "01HZ0000000000000000000003", Actor: "ADMIN", Description: "hidden", CreatedAt: ts.Add(time.Minute), UpdatedAt: ts, IsActive: false},
	}
	for _, e := range entries {
		require.NoError(t, s.Append(ctx, e))
	}

	got, err := s.ListRecent(ctx, audit.ListOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "login", got[0].Description)
	assert.Equal(t, "registered", got[1].Description)
	assert.True(t, got[0].CreatedAt.Equal(ts))

	all, err := s.ListRecent(ctx, audit.ListOptions{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "hidden", all[0].Description)
}

func TestStorage_AuditThroughLog(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	log := audit.New(s)
	log.Record(ctx, "a@x.com", "E1")
	log.Record(ctx, "b@x.com", "E2")

	got, err := log.ListRecent(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "E2", got[0].Description)
	assert.Equal(t, "E1", got[1].Description)
}
