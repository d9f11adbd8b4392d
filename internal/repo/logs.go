package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskledger/internal/domain"
)

const logColumns = `id,task_id,actor_id,action,field,old_value,new_value,created_at`

// ListTaskLogs returns the audit trail for a task, newest first.
func (r Repo) ListTaskLogs(ctx context.Context, taskID string) ([]domain.TaskLog, error) {
	return r.queryLogs(ctx, `SELECT `+logColumns+` FROM task_logs WHERE task_id=? ORDER BY created_at DESC, id DESC`, taskID)
}

// LatestLogs returns the most recent log entries across tasks, optionally
// filtered by action, for the CLI tail command.
func (r Repo) LatestLogs(ctx context.Context, limit int, action string) ([]domain.TaskLog, error) {
	if limit <= 0 {
		limit = 20
	}
	clauses := []string{"1=1"}
	var args []any
	if action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, action)
	}
	args = append(args, limit)
	query := `SELECT ` + logColumns + ` FROM task_logs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	return r.queryLogs(ctx, query, args...)
}

// CountTaskLogs reports log entries per action for a task.
func (r Repo) CountTaskLogs(ctx context.Context, taskID string) (map[domain.LogAction]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT action, count(*) FROM task_logs WHERE task_id=? GROUP BY action`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.LogAction]int{}
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		res[domain.LogAction(action)] = count
	}
	return res, rows.Err()
}

func (r Repo) queryLogs(ctx context.Context, query string, args ...any) ([]domain.TaskLog, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskLog
	for rows.Next() {
		var l domain.TaskLog
		var field, oldValue, newValue sql.NullString
		if err := rows.Scan(&l.ID, &l.TaskID, &l.ActorID, &l.Action, &field, &oldValue, &newValue, &l.CreatedAt); err != nil {
			return nil, err
		}
		if field.Valid {
			l.Field = &field.String
		}
		if oldValue.Valid {
			l.OldValue = &oldValue.String
		}
		if newValue.Valid {
			l.NewValue = &newValue.String
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
