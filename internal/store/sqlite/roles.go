package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"usermanager.org/internal/auth"
	"usermanager.org/internal/ids"
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func roleID(ctx context.Context, q querier, name string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM roles WHERE normalized_name = ?`, auth.NormalizeRoleName(name)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", auth.ErrRoleNotFound, name)
	}
	return id, err
}

func (s *Storage) RoleExists(ctx context.Context, name string) (bool, error) {
	_, err := roleID(ctx, s.db, name)
	switch {
	case errors.Is(err, auth.ErrRoleNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up role: %w", err)
	}
	return true, nil
}

func (s *Storage) CreateRole(ctx context.Context, name string) (auth.Role, error) {
	role := auth.Role{ID: ids.New(), Name: name, NormalizedName: auth.NormalizeRoleName(name)}
	_, err := s.db.ExecContext(ctx, `INSERT INTO roles (id, name, normalized_name) VALUES (?, ?, ?)`,
		role.ID, role.Name, role.NormalizedName)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.Role{}, fmt.Errorf("%w: role %s", auth.ErrConflict, name)
		}
		return auth.Role{}, fmt.Errorf("failed to insert role: %w", err)
	}
	return role, nil
}

func (s *Storage) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, normalized_name FROM roles ORDER BY normalized_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var out []auth.Role
	for rows.Next() {
		var r auth.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.NormalizedName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Storage) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.name FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ?
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Storage) AssignRole(ctx context.Context, userID, role string) error {
	id, err := roleID(ctx, s.db, role)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)`, userID, id); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

func (s *Storage) ReplaceRolesForUser(ctx context.Context, userID string, roles []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	roleIDs := make([]string, 0, len(roles))
	for _, name := range roles {
		id, err := roleID(ctx, tx, name)
		if err != nil {
			return err
		}
		roleIDs = append(roleIDs, id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}
	for _, id := range roleIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)`, userID, id); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
	}
	return tx.Commit()
}
