package sqlite

import (
	"context"
	"fmt"

	"usermanager.org/internal/audit"
)

func (s *Storage) Append(ctx context.Context, e audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, description, created_at, updated_at, is_active, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Actor, e.Description, e.CreatedAt.UTC(), e.UpdatedAt.UTC(), e.IsActive, e.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (s *Storage) ListRecent(ctx context.Context, opts audit.ListOptions) ([]audit.Entry, error) {
	query := `SELECT id, actor, description, created_at, updated_at, is_active, is_deleted FROM audit_logs`
	if !opts.IncludeInactive {
		query += ` WHERE is_active = 1 AND is_deleted = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Description, &e.CreatedAt, &e.UpdatedAt, &e.IsActive, &e.IsDeleted); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
