package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"usermanager.org/internal/auth"
	"usermanager.org/internal/ids"
)

var (
	_ auth.CredentialStore = (*Store)(nil)
	_ auth.RoleStore       = (*Store)(nil)
)

func (s *Store) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	var u auth.User
	err := s.db.QueryRowContext(ctx, `
		select id, user_name, email, password_hash, first_name, last_name, address, created_at
		from users
		where lower(email) = $1
	`, auth.NormalizeEmail(email)).Scan(&u.ID, &u.UserName, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Address, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, auth.ErrNotFound
		}
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) FindAll(ctx context.Context) ([]auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_name, email, password_hash, first_name, last_name, address, created_at
		from users
		order by created_at, email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		var u auth.User
		if err := rows.Scan(&u.ID, &u.UserName, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Address, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) Create(ctx context.Context, u auth.User, password string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
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
		u.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		insert into users (id, user_name, email, password_hash, first_name, last_name, address, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.UserName, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Address, u.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.User{}, fmt.Errorf("%w: email %s", auth.ErrConflict, u.Email)
		}
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) VerifyPassword(ctx context.Context, u auth.User, password string) bool {
	return auth.CheckPassword(u.PasswordHash, password)
}
