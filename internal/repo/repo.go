package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"taskledger/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,title,description,priority,status,due_date,tags_json,created_by,assignee_id,active,deleted_at,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	tags, err := marshalTags(t.Tags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), string(t.Priority), string(t.Status),
		nullableStringPtr(t.DueDate), tags, t.CreatedBy, nullableStringPtr(t.AssigneeID),
		boolToInt(t.Active), nullableStringPtr(t.DeletedAt), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	tags, err := marshalTags(t.Tags)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, priority=?, status=?, due_date=?, tags_json=?, assignee_id=?, active=?, deleted_at=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), string(t.Priority), string(t.Status),
		nullableStringPtr(t.DueDate), tags, nullableStringPtr(t.AssigneeID),
		boolToInt(t.Active), nullableStringPtr(t.DeletedAt), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTaskRow(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// GetActiveTask returns the task only when it has not been soft-deleted.
func (r Repo) GetActiveTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTaskRow(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=? AND active=1`, id))
}

type taskScanner interface {
	Scan(dest ...any) error
}

func scanTaskRow(row *sql.Row) (domain.Task, error) {
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func scanTask(s taskScanner) (domain.Task, error) {
	var t domain.Task
	var description, dueDate, tags, assigneeID, deletedAt sql.NullString
	var active int
	err := s.Scan(&t.ID, &t.Title, &description, &t.Priority, &t.Status, &dueDate, &tags,
		&t.CreatedBy, &assigneeID, &active, &deletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.Active = active != 0
	if description.Valid {
		t.Description = description.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if assigneeID.Valid {
		t.AssigneeID = &assigneeID.String
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.String
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &t.Tags); err != nil {
			return t, err
		}
	}
	return t, nil
}

// TaskFilters narrows ListTasks results. VisibleTo restricts the listing to
// tasks the given user created or is assigned to (customer visibility).
type TaskFilters struct {
	Title           string
	Status          string
	Priority        string
	AssigneeID      string
	CreatedBy       string
	Tag             string
	VisibleTo       string
	IncludeDeleted  bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if !f.IncludeDeleted {
		clauses = append(clauses, "active=1")
	}
	if f.Title != "" {
		clauses = append(clauses, "title LIKE ?")
		args = append(args, "%"+f.Title+"%")
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, f.CreatedBy)
	}
	if f.Tag != "" {
		// tags_json is a JSON array of strings; match the quoted element.
		clauses = append(clauses, "tags_json LIKE ?")
		args = append(args, `%"`+f.Tag+`"%`)
	}
	if f.VisibleTo != "" {
		clauses = append(clauses, "(created_by=? OR assignee_id=?)")
		args = append(args, f.VisibleTo, f.VisibleTo)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func marshalTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
