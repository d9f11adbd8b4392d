package repo

import (
	"context"
	"database/sql"

	"taskledger/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.TaskComment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_comments(id,task_id,author_id,content,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TaskID, c.AuthorID, c.Content, c.CreatedAt)
	return err
}

// ListComments returns all comments for a task, oldest first.
func (r Repo) ListComments(ctx context.Context, taskID string) ([]domain.TaskComment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,author_id,content,created_at FROM task_comments WHERE task_id=? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskComment
	for rows.Next() {
		var c domain.TaskComment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
