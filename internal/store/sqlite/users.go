package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"usermanager.org/internal/auth"
	"usermanager.org/internal/ids"
)

const userColumns = `id, user_name, email, password_hash, first_name, last_name, address, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.UserName, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Address, &u.CreatedAt)
	return u, err
}

// FindByEmail retrieves a user by normalized email.
func (s *Storage) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, auth.NormalizeEmail(email))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, auth.ErrNotFound
		}
		return auth.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// FindAll lists users in creation order.
func (s *Storage) FindAll(ctx context.Context) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Create inserts u with a bcrypt hash of password.
func (s *Storage) Create(ctx context.Context, u auth.User, password string) (auth.User, error) {
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
		INSERT INTO users (id, user_name, email, password_hash, first_name, last_name, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.UserName, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Address, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.User{}, fmt.Errorf("%w: email %s", auth.ErrConflict, u.Email)
		}
		return auth.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

// VerifyPassword compares password with the stored hash.
func (s *Storage) VerifyPassword(ctx context.Context, u auth.User, password string) bool {
	return auth.CheckPassword(u.PasswordHash, password)
}
