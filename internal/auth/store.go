package auth

import "context"

// CredentialStore persists user identity, password hash and profile attributes.
type CredentialStore interface {
	// FindByEmail returns ErrNotFound when no user has email.
	FindByEmail(ctx context.Context, email string) (User, error)
	FindAll(ctx context.Context) ([]User, error)
	// Create stores u with a hash of password. It returns ErrConflict for a
	// duplicate email and ErrWeakCredential when the password policy is unmet.
	Create(ctx context.Context, u User, password string) (User, error)
	VerifyPassword(ctx context.Context, u User, password string) bool
}

// RoleStore persists role definitions and per-user membership.
type RoleStore interface {
	RoleExists(ctx context.Context, name string) (bool, error)
	// CreateRole returns ErrConflict when the normalized name is taken.
	CreateRole(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	RolesForUser(ctx context.Context, userID string) ([]string, error)
	// AssignRole adds one membership; assigning a held role is a no-op.
	AssignRole(ctx context.Context, userID, role string) error
	// ReplaceRolesForUser atomically swaps the user's role set. When any name
	// is undefined it returns ErrRoleNotFound and leaves assignments untouched.
	ReplaceRolesForUser(ctx context.Context, userID string, roles []string) error
}
