package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ListRoles returns every defined role.
func (s *Service) ListRoles(ctx context.Context) (_ []Role, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ListRoles")
	defer func() { endSpan(span, err) }()

	roles, err := s.roles.ListRoles(ctx)
	if err != nil {
		return nil, s.internal(ctx, "list roles", err)
	}
	return roles, nil
}

// CreateRole defines a new role. Names are unique case-insensitively.
func (s *Service) CreateRole(ctx context.Context, name string) (_ Role, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.CreateRole")
	defer func() { endSpan(span, err) }()

	name = strings.TrimSpace(name)
	if err := validateRoleName(name); err != nil {
		return Role{}, err
	}
	role, err := s.roles.CreateRole(ctx, name)
	switch {
	case errors.Is(err, ErrConflict):
		return Role{}, fmt.Errorf("%w: role already exists", ErrConflict)
	case err != nil:
		return Role{}, s.internal(ctx, "create role", err)
	}

	s.audit.Record(ctx, s.actor(ctx, s.policy.CreateRole, ""), EventRoleCreated+": "+role.Name)
	return role, nil
}
