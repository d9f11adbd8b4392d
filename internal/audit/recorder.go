// Package audit appends immutable task log entries. Entries are written in
// the same transaction as the mutation they describe, so a committed change
// is never missing its trail.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"taskledger/internal/domain"
)

// WriteError wraps a log persistence failure so callers can tell it apart
// from business-rule failures.
type WriteError struct {
	Err error
}

func (e WriteError) Error() string {
	return fmt.Sprintf("audit log write: %v", e.Err)
}

func (e WriteError) Unwrap() error { return e.Err }

type Recorder struct {
	Now func() time.Time
}

// Record appends one log entry inside tx. field, oldValue and newValue are
// optional and only set for field-level changes.
func (r Recorder) Record(ctx context.Context, tx *sql.Tx, taskID, actorID string, action domain.LogAction, field, oldValue, newValue *string) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO task_logs(task_id,actor_id,action,field,old_value,new_value,created_at) VALUES (?,?,?,?,?,?,?)`,
		taskID, actorID, string(action), nullableStr(field), nullableStr(oldValue), nullableStr(newValue), ts)
	if err != nil {
		return WriteError{Err: err}
	}
	return nil
}

func nullableStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
