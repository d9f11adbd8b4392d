package repo

import (
	"context"
	"database/sql"

	"taskledger/internal/domain"
)

const subtaskColumns = `id,task_id,title,done,active,deleted_at,created_at,updated_at`

func (r Repo) InsertSubTask(ctx context.Context, tx *sql.Tx, st domain.SubTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO subtasks(`+subtaskColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		st.ID, st.TaskID, st.Title, boolToInt(st.Done), boolToInt(st.Active),
		nullableStringPtr(st.DeletedAt), st.CreatedAt, st.UpdatedAt)
	return err
}

func (r Repo) UpdateSubTask(ctx context.Context, tx *sql.Tx, st domain.SubTask) error {
	res, err := tx.ExecContext(ctx, `UPDATE subtasks SET title=?, done=?, active=?, deleted_at=?, updated_at=? WHERE id=?`,
		st.Title, boolToInt(st.Done), boolToInt(st.Active), nullableStringPtr(st.DeletedAt), st.UpdatedAt, st.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetActiveSubTask returns a subtask that has not been soft-deleted.
func (r Repo) GetActiveSubTask(ctx context.Context, id string) (domain.SubTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE id=? AND active=1`, id)
	return scanSubTask(row)
}

func scanSubTask(row *sql.Row) (domain.SubTask, error) {
	var st domain.SubTask
	var done, active int
	var deletedAt sql.NullString
	err := row.Scan(&st.ID, &st.TaskID, &st.Title, &done, &active, &deletedAt, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return st, ErrNotFound
	}
	if err != nil {
		return st, err
	}
	st.Done = done != 0
	st.Active = active != 0
	if deletedAt.Valid {
		st.DeletedAt = &deletedAt.String
	}
	return st, nil
}

func (r Repo) ListActiveSubTasks(ctx context.Context, taskID string) ([]domain.SubTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE task_id=? AND active=1 ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SubTask
	for rows.Next() {
		var st domain.SubTask
		var done, active int
		var deletedAt sql.NullString
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Title, &done, &active, &deletedAt, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.Done = done != 0
		st.Active = active != 0
		if deletedAt.Valid {
			st.DeletedAt = &deletedAt.String
		}
		res = append(res, st)
	}
	return res, rows.Err()
}
