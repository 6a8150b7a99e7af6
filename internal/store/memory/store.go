// Package memory keeps users, roles and audit entries in process memory.
// It backs tests and the "memory" store driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"usermanager.org/internal/audit"
	"usermanager.org/internal/auth"
	"usermanager.org/internal/ids"
)

// Store implements auth.CredentialStore, auth.RoleStore and audit.Store.
type Store struct {
	mu        sync.RWMutex
	users     map[string]auth.User // by normalized email
	roles     map[string]auth.Role // by normalized name
	userRoles map[string]map[string]struct{}
	entries   []audit.Entry
	now       func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:     make(map[string]auth.User),
		roles:     make(map[string]auth.Role),
		userRoles: make(map[string]map[string]struct{}),
		now:       time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[auth.NormalizeEmail(email)]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindAll(ctx context.Context) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Create(ctx context.Context, u auth.User, password string) (auth.User, error) {
	hash, err := auth.PreparePassword(password)
	if err != nil {
		return auth.User{}, err
	}
	u.Email = auth.NormalizeEmail(u.Email)
	u.PasswordHash = hash
	if u.ID == "" {
		u.ID = ids.NewUUID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.Email]; exists {
		return auth.User{}, fmt.Errorf("%w: email %s", auth.ErrConflict, u.Email)
	}
	s.users[u.Email] = u
	return u, nil
}

func (s *Store) VerifyPassword(ctx context.Context, u auth.User, password string) bool {
	return auth.CheckPassword(u.PasswordHash, password)
}

func (s *Store) RoleExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[auth.NormalizeRoleName(name)]
	return ok, nil
}

func (s *Store) CreateRole(ctx context.Context, name string) (auth.Role, error) {
	key := auth.NormalizeRoleName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[key]; exists {
		return auth.Role{}, fmt.Errorf("%w: role %s", auth.ErrConflict, name)
	}
	role := auth.Role{ID: ids.New(), Name: name, NormalizedName: key}
	s.roles[key] = role
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })
	return out, nil
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.userRoles[userID]))
	for key := range s.userRoles[userID] {
		out = append(out, s.roles[key].Name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, role string) error {
	key := auth.NormalizeRoleName(role)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[key]; !ok {
		return fmt.Errorf("%w: %s", auth.ErrRoleNotFound, role)
	}
	set, ok := s.userRoles[userID]
	if !ok {
		set = make(map[string]struct{})
		s.userRoles[userID] = set
	}
	set[key] = struct{}{}
	return nil
}

func (s *Store) ReplaceRolesForUser(ctx context.Context, userID string, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		key := auth.NormalizeRoleName(role)
		if _, ok := s.roles[key]; !ok {
			return fmt.Errorf("%w: %s", auth.ErrRoleNotFound, role)
		}
		next[key] = struct{}{}
	}
	s.userRoles[userID] = next
	return nil
}

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *Store) ListRecent(ctx context.Context, opts audit.ListOptions) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if audit.Visible(e, opts) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
