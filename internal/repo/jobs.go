package repo

import (
	"context"
	"database/sql"

	"sitework/internal/domain"
)

func (r Repo) InsertJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO jobs(id,task_id,task_name,title,description,start_time,end_time,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.TaskID, j.TaskName, j.Title, nullable(j.Description), j.StartTime, j.EndTime, j.Status, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return err
	}
	return r.insertAssignments(ctx, tx, j.ID, j.Assigned)
}

// ReplaceJob overwrites every mutable column and rewrites the assignment
// rows. The caller is expected to pass a fully merged job.
func (r Repo) ReplaceJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	res, err := tx.ExecContext(ctx, `UPDATE jobs SET task_id=?, task_name=?, title=?, description=?, start_time=?, end_time=?, status=?, updated_at=? WHERE id=?`,
		j.TaskID, j.TaskName, j.Title, nullable(j.Description), j.StartTime, j.EndTime, j.Status, j.UpdatedAt, j.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM job_assignments WHERE job_id=?`, j.ID); err != nil {
		return err
	}
	return r.insertAssignments(ctx, tx, j.ID, j.Assigned)
}

func (r Repo) insertAssignments(ctx context.Context, tx *sql.Tx, jobID string, assigned []domain.Assignment) error {
	for i, a := range assigned {
		if _, err := tx.ExecContext(ctx, `INSERT INTO job_assignments(job_id,position,resource_id,resource_type) VALUES (?,?,?,?)`,
			jobID, i, a.ResourceID, a.Type); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	var j domain.Job
	var description sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,task_id,task_name,title,description,start_time,end_time,status,created_at,updated_at FROM jobs WHERE id=?`, id).
		Scan(&j.ID, &j.TaskID, &j.TaskName, &j.Title, &description, &j.StartTime, &j.EndTime, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	if description.Valid {
		j.Description = description.String
	}
	j.Assigned, err = r.listAssignments(ctx, j.ID)
	return j, err
}

// ListJobs returns jobs with their assignments, newest first.
func (r Repo) ListJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,task_name,title,description,start_time,end_time,status,created_at,updated_at FROM jobs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		var j domain.Job
		var description sql.NullString
		if err := rows.Scan(&j.ID, &j.TaskID, &j.TaskName, &j.Title, &description, &j.StartTime, &j.EndTime, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		if description.Valid {
			j.Description = description.String
		}
		res = append(res, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Assigned, err = r.listAssignments(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) listAssignments(ctx context.Context, jobID string) ([]domain.Assignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT resource_id,resource_type FROM job_assignments WHERE job_id=? ORDER BY position`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	assigned := []domain.Assignment{}
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ResourceID, &a.Type); err != nil {
			return nil, err
		}
		assigned = append(assigned, a)
	}
	return assigned, rows.Err()
}

func (r Repo) DeleteJob(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	// assignment rows go with the job via ON DELETE CASCADE
	return nil
}
