package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sitework/internal/domain"
)

func scanResource(row *sql.Row) (domain.Resource, error) {
	var res domain.Resource
	var role sql.NullString
	var availability int
	err := row.Scan(&res.ID, &res.Type, &res.Name, &role, &availability, &res.CreatedAt, &res.UpdatedAt)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	if role.Valid {
		res.Role = role.String
	}
	res.Availability = availability != 0
	return res, nil
}

func (r Repo) InsertResource(ctx context.Context, tx *sql.Tx, res domain.Resource) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO resources(id,type,name,role,availability,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		res.ID, res.Type, res.Name, nullable(res.Role), boolInt(res.Availability), res.CreatedAt, res.UpdatedAt)
	return err
}

func (r Repo) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	return scanResource(r.DB.QueryRowContext(ctx,
		`SELECT id,type,name,role,availability,created_at,updated_at FROM resources WHERE id=?`, id))
}

// ResourceExists reports whether a resource row exists for id.
func (r Repo) ResourceExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM resources WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListResources returns resources, newest first. typeFilter matches
// case-insensitively; empty means all types.
func (r Repo) ListResources(ctx context.Context, typeFilter string) ([]domain.Resource, error) {
	query := `SELECT id,type,name,role,availability,created_at,updated_at FROM resources`
	var args []any
	if typeFilter != "" {
		query += ` WHERE LOWER(type)=?`
		args = append(args, strings.ToLower(typeFilter))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Resource
	for rows.Next() {
		var item domain.Resource
		var role sql.NullString
		var availability int
		if err := rows.Scan(&item.ID, &item.Type, &item.Name, &role, &availability, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		if role.Valid {
			item.Role = role.String
		}
		item.Availability = availability != 0
		res = append(res, item)
	}
	return res, rows.Err()
}

// ResourceUpdate carries the fields a resource update may change. Nil
// fields keep their stored value; Type is immutable and lives elsewhere.
type ResourceUpdate struct {
	Name         *string
	Role         *string
	Availability *bool
	UpdatedAt    string
}

func (r Repo) UpdateResource(ctx context.Context, tx *sql.Tx, id string, u ResourceUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *u.Name)
	}
	if u.Role != nil {
		fields = append(fields, "role=?")
		args = append(args, nullable(*u.Role))
	}
	if u.Availability != nil {
		fields = append(fields, "availability=?")
		args = append(args, boolInt(*u.Availability))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, u.UpdatedAt, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE resources SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteResource removes the row. Jobs referencing the resource are left
// untouched; their assignment entries keep the stale id.
func (r Repo) DeleteResource(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
