package pg

import (
	"context"

	"usermanager.org/internal/audit"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, actor, description, created_at, updated_at, is_active, is_deleted)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.Actor, e.Description, e.CreatedAt, e.UpdatedAt, e.IsActive, e.IsDeleted)
	return err
}

func (s *Store) ListRecent(ctx context.Context, opts audit.ListOptions) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, actor, description, created_at, updated_at, is_active, is_deleted
		from audit_logs
		where $1 or (is_active and not is_deleted)
		order by created_at desc, id desc
	`, opts.IncludeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Description, &e.CreatedAt, &e.UpdatedAt, &e.IsActive, &e.IsDeleted); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
