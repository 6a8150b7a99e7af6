package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"usermanager.org/internal/auth"
	"usermanager.org/internal/ids"
)

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookupRoleID(ctx context.Context, q rowQuerier, name string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `select id from roles where normalized_name = $1`, auth.NormalizeRoleName(name)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", auth.ErrRoleNotFound, name)
	}
	return id, err
}

func (s *Store) RoleExists(ctx context.Context, name string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	_, err := lookupRoleID(ctx, s.db, name)
	switch {
	case errors.Is(err, auth.ErrRoleNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (s *Store) CreateRole(ctx context.Context, name string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	role := auth.Role{ID: ids.New(), Name: name, NormalizedName: auth.NormalizeRoleName(name)}
	if _, err := s.db.ExecContext(ctx, `
		insert into roles (id, name, normalized_name)
		values ($1, $2, $3)
	`, role.ID, role.Name, role.NormalizedName); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Role{}, fmt.Errorf("%w: role %s", auth.ErrConflict, name)
		}
		return auth.Role{}, err
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select id, name, normalized_name from roles order by normalized_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var r auth.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.NormalizedName); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, role string) error {
	if s.db == nil {
		return errNoDB
	}
	roleID, err := lookupRoleID(ctx, s.db, role)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, userID, roleID); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) ReplaceRolesForUser(ctx context.Context, userID string, roles []string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	roleIDs := make([]string, 0, len(roles))
	for _, name := range roles {
		id, err := lookupRoleID(ctx, tx, name)
		if err != nil {
			return err
		}
		roleIDs = append(roleIDs, id)
	}

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
		return err
	}
	for _, id := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id)
			values ($1, $2)
			on conflict do nothing
		`, userID, id); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: role deleted concurrently", auth.ErrRoleNotFound)
			}
			return err
		}
	}
	return tx.Commit()
}
