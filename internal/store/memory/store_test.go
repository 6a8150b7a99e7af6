package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"usermanager.org/internal/audit"
	"usermanager.org/internal/auth"
)

func init() {
	auth.HashCost = bcrypt.MinCost
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Create(ctx, auth.User{Email: "A@x.com", UserName: "a"}, "secret1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, auth.User{Email: "a@X.com", UserName: "b"}, "secret1"); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	u, err := s.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.PasswordHash == "" || u.PasswordHash == "secret1" {
		t.Fatalf("password stored in plaintext: %q", u.PasswordHash)
	}
	if !s.VerifyPassword(ctx, u, "secret1") || s.VerifyPassword(ctx, u, "secret2") {
		t.Fatal("password verification mismatch")
	}
}

func TestCreateRejectsWeakPassword(t *testing.T) {
	if _, err := New().Create(context.Background(), auth.User{Email: "a@x.com"}, "abc"); !errors.Is(err, auth.ErrWeakCredential) {
		t.Fatalf("expected weak credential, got %v", err)
	}
}

func TestReplaceRolesIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, name := range []string{"Admin", "User"} {
		if _, err := s.CreateRole(ctx, name); err != nil {
			t.Fatalf("CreateRole(%s): %v", name, err)
		}
	}
	if err := s.AssignRole(ctx, "u1", "admin"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	if err := s.ReplaceRolesForUser(ctx, "u1", []string{"User", "Ghost"}); !errors.Is(err, auth.ErrRoleNotFound) {
		t.Fatalf("expected role not found, got %v", err)
	}
	roles, _ := s.RolesForUser(ctx, "u1")
	if len(roles) != 1 || roles[0] != "Admin" {
		t.Fatalf("roles changed after failed replace: %v", roles)
	}

	if err := s.ReplaceRolesForUser(ctx, "u1", []string{"user"}); err != nil {
		t.Fatalf("ReplaceRolesForUser: %v", err)
	}
	roles, _ = s.RolesForUser(ctx, "u1")
	if len(roles) != 1 || roles[0] != "User" {
		t.Fatalf("expected exactly [User], got %v", roles)
	}
}

func TestCreateRoleIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.CreateRole(ctx, "Admin"); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := s.CreateRole(ctx, "ADMIN"); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if ok, _ := s.RoleExists(ctx, "admin"); !ok {
		t.Fatal("expected role to exist")
	}
}

func TestListRecentOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	entries := []audit.Entry{
		{ID: "01A", Actor: "a", Description: "e1", CreatedAt: ts, IsActive: true},
		{ID: "01B", Actor: "b", Description: "e2", CreatedAt: ts, IsActive: true},
		{ID: "01C", Actor: "c", Description: "e3", CreatedAt: ts.Add(time.Second), IsActive: true, IsDeleted: true},
	}
	for _, e := range entries {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.ListRecent(ctx, audit.ListOptions{})
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 || got[0].Description != "e2" || got[1].Description != "e1" {
		t.Fatalf("unexpected order: %+v", got)
	}

	all, _ := s.ListRecent(ctx, audit.ListOptions{IncludeInactive: true})
	if len(all) != 3 || all[0].Description != "e3" {
		t.Fatalf("unexpected unfiltered listing: %+v", all)
	}
}
