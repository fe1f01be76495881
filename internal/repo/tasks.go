package repo

import (
	"context"
	"database/sql"

	"sitework/internal/domain"
)

// Tasks are read-only from the service's perspective: the catalog is
// authored externally and synced here, never mutated by API callers.

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	err := r.DB.QueryRowContext(ctx, `SELECT id,title,project FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.Title, &t.Project)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) TaskExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,project FROM tasks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Project); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpsertTask inserts or refreshes one catalog entry. Sync is additive:
// entries removed from the catalog stay in the table so existing jobs keep
// resolving, matching the no-cascade stance everywhere else.
func (r Repo) UpsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,project) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET title=excluded.title, project=excluded.project`, t.ID, t.Title, t.Project)
	return err
}
