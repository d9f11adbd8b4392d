// Package engine orchestrates every task mutation: resolve the actor, check
// the access policy, apply the change, persist it, and append the audit
// trail in the same transaction. Notifications go out only after commit.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"taskledger/internal/audit"
	"taskledger/internal/domain"
	"taskledger/internal/engine/access"
	"taskledger/internal/notify"
	"taskledger/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Audit    audit.Recorder
	Notifier notify.Sender
	Now      func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Audit:    audit.Recorder{},
		Notifier: notify.NopSender{},
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// recorder returns the audit recorder with the engine clock wired in,
// so log timestamps come from the same source as entity timestamps.
func (e Engine) recorder() audit.Recorder {
	rec := e.Audit
	if rec.Now == nil {
		rec.Now = e.Now
	}
	return rec
}

// resolveActor loads the acting user. A missing actor is a not-found
// failure, surfaced before any policy decision.
func (e Engine) resolveActor(ctx context.Context, actorID string) (domain.User, error) {
	if actorID == "" {
		return domain.User{}, fmt.Errorf("actor: %w", repo.ErrNotFound)
	}
	u, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, fmt.Errorf("actor %s: %w", actorID, repo.ErrNotFound)
		}
		return domain.User{}, err
	}
	return u, nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	Priority    domain.TaskPriority
	DueDate     string
	Tags        []string
	AssigneeID  string
}

func (e Engine) CreateTask(ctx context.Context, actorID string, opts TaskCreateOptions) (domain.Task, error) {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	pol := access.For(actor)
	if err := pol.RequireAdmin("task.create"); err != nil {
		return domain.Task{}, err
	}
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !opts.Priority.Valid() {
		return domain.Task{}, fmt.Errorf("invalid priority %q", opts.Priority)
	}
	var assignee *string
	if opts.AssigneeID != "" {
		u, err := e.Repo.GetUser(ctx, opts.AssigneeID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Task{}, fmt.Errorf("assignee %s: %w", opts.AssigneeID, repo.ErrNotFound)
			}
			return domain.Task{}, err
		}
		assignee = &u.ID
	}
	now := e.nowString()
	t := domain.Task{
		ID:          uuid.New().String(),
		Title:       opts.Title,
		Description: opts.Description,
		Priority:    opts.Priority,
		Status:      domain.StatusTodo,
		Tags:        normalizeTags(opts.Tags),
		CreatedBy:   actor.ID,
		AssigneeID:  assignee,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.DueDate != "" {
		due := opts.DueDate
		t.DueDate = &due
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.recorder().Record(ctx, tx, t.ID, actor.ID, domain.ActionCreated, nil, nil, nil); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, t.ID)
}

// TaskPatch carries partial task updates. Nil fields are untouched; the
// engine never clobbers a field the caller did not send.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *domain.TaskPriority
	DueDate     *string
	Tags        *[]string
}

func (e Engine) PatchTask(ctx context.Context, actorID, taskID string, patch TaskPatch) (domain.Task, error) {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetActiveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	pol := access.For(actor)
	if err := pol.RequireAdmin("task.patch"); err != nil {
		return domain.Task{}, err
	}

	type fieldChange struct {
		name     string
		old, new *string
	}
	var changes []fieldChange

	if patch.Title != nil && *patch.Title != t.Title {
		changes = append(changes, fieldChange{"title", strPtr(t.Title), patch.Title})
		t.Title = *patch.Title
	}
	if patch.Description != nil && *patch.Description != t.Description {
		changes = append(changes, fieldChange{"description", strPtr(t.Description), patch.Description})
		t.Description = *patch.Description
	}
	if patch.Priority != nil && *patch.Priority != t.Priority {
		if !patch.Priority.Valid() {
			return domain.Task{}, fmt.Errorf("invalid priority %q", *patch.Priority)
		}
		old := string(t.Priority)
		newVal := string(*patch.Priority)
		changes = append(changes, fieldChange{"priority", &old, &newVal})
		t.Priority = *patch.Priority
	}
	if patch.DueDate != nil && (t.DueDate == nil || *patch.DueDate != *t.DueDate) {
		changes = append(changes, fieldChange{"due_date", t.DueDate, patch.DueDate})
		due := *patch.DueDate
		t.DueDate = &due
	}
	if patch.Tags != nil {
		newTags := normalizeTags(*patch.Tags)
		if !equalTags(t.Tags, newTags) {
			changes = append(changes, fieldChange{"tags", strPtr(tagsValue(t.Tags)), strPtr(tagsValue(newTags))})
			t.Tags = newTags
		}
	}
	if len(changes) == 0 {
		return t, nil
	}
	t.UpdatedAt = e.nowString()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	// One log entry per changed field, carrying the old and new values.
	for _, c := range changes {
		if err := e.recorder().Record(ctx, tx, t.ID, actor.ID, domain.ActionUpdated, strPtr(c.name), c.old, c.new); err != nil {
			return domain.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, t.ID)
}

// SoftDeleteTask marks the task inactive. A second delete of the same task
// fails not-found because the lookup requires an active row.
func (e Engine) SoftDeleteTask(ctx context.Context, actorID, taskID string) error {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return err
	}
	t, err := e.Repo.GetActiveTask(ctx, taskID)
	if err != nil {
		return err
	}
	pol := access.For(actor)
	if err := pol.RequireAdmin("task.delete"); err != nil {
		return err
	}
	now := e.nowString()
	t.Active = false
	t.DeletedAt = &now
	t.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.recorder().Record(ctx, tx, t.ID, actor.ID, domain.ActionDeleted, nil, nil, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) AssignTask(ctx context.Context, actorID, taskID, assigneeID string) (domain.Task, error) {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	pol := access.For(actor)
	if err := pol.RequireAdmin("task.assign"); err != nil {
		return domain.Task{}, err
	}
	assignee, err := e.Repo.GetUser(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, fmt.Errorf("assignee %s: %w", assigneeID, repo.ErrNotFound)
		}
		return domain.Task{}, err
	}
	previous := t.AssigneeID
	t.AssigneeID = &assignee.ID
	t.UpdatedAt = e.nowString()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.recorder().Record(ctx, tx, t.ID, actor.ID, domain.ActionAssigned, strPtr("assignee_id"), previous, &assignee.ID); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.notifyEvent("ASSIGNED", t.ID, actor.ID, map[string]any{"assignee_id": assignee.ID})
	return e.Repo.GetTask(ctx, t.ID)
}

func (e Engine) UpdateStatus(ctx context.Context, actorID, taskID string, status domain.TaskStatus) (domain.Task, error) {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	if !status.Valid() {
		return domain.Task{}, fmt.Errorf("invalid status %q", status)
	}
	t, err := e.Repo.GetActiveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	pol := access.For(actor)
	if err := pol.RequireAccess(t, "task.status"); err != nil {
		return domain.Task{}, err
	}
	old := string(t.Status)
	newVal := string(status)
	t.Status = status
	t.UpdatedAt = e.nowString()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.recorder().Record(ctx, tx, t.ID, actor.ID, domain.ActionStatusChanged, strPtr("status"), &old, &newVal); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.notifyEvent("STATUS_CHANGED", t.ID, actor.ID, map[string]any{"from": old, "to": newVal})
	return e.Repo.GetTask(ctx, t.ID)
}

// TaskDetail is the full read model: the task, its active subtasks, all
// comments oldest-first, and the audit trail newest-first.
type TaskDetail struct {
	Task     domain.Task          `json:"task"`
	SubTasks []domain.SubTask     `json:"subtasks"`
	Comments []domain.TaskComment `json:"comments"`
	Logs     []domain.TaskLog     `json:"logs"`
}

func (e Engine) GetTaskDetail(ctx context.Context, actorID, taskID string) (TaskDetail, error) {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return TaskDetail{}, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return TaskDetail{}, err
	}
	pol := access.For(actor)
	if err := pol.RequireAccess(t, "task.read"); err != nil {
		return TaskDetail{}, err
	}
	subtasks, err := e.Repo.ListActiveSubTasks(ctx, t.ID)
	if err != nil {
		return TaskDetail{}, err
	}
	comments, err := e.Repo.ListComments(ctx, t.ID)
	if err != nil {
		return TaskDetail{}, err
	}
	logs, err := e.Repo.ListTaskLogs(ctx, t.ID)
	if err != nil {
		return TaskDetail{}, err
	}
	return TaskDetail{Task: t, SubTasks: subtasks, Comments: comments, Logs: logs}, nil
}

func (e Engine) CreateSubTask(ctx context.Context, actorID, taskID, title string) (domain.SubTask, error) {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return domain.SubTask{}, err
	}
	if title == "" {
		return domain.SubTask{}, errors.New("title is required")
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.SubTask{}, err
	}
	pol := access.For(actor)
	if err := pol.RequireAccess(t, "subtask.create"); err != nil {
		return domain.SubTask{}, err
	}
	now := e.nowString()
	st := domain.SubTask{
		ID:        uuid.New().String(),
		TaskID:    t.ID,
		Title:     title,
		Done:      false,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SubTask{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertSubTask(ctx, tx, st); err != nil {
		return domain.SubTask{}, err
	}
	if err := e.recorder().Record(ctx, tx, t.ID, actor.ID, domain.ActionSubTaskCreated, strPtr("subtask_id"), nil, &st.ID); err != nil {
		return domain.SubTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SubTask{}, err
	}
	return st, nil
}

// SubTaskPatch carries partial subtask updates; nil fields are untouched.
type SubTaskPatch struct {
	Title *string
	Done  *bool
}

// loadSubTask fetches the subtask and guards against cross-task references:
// a subtask addressed under the wrong parent task is not found.
func (e Engine) loadSubTask(ctx context.Context, taskID, subTaskID string) (domain.SubTask, error) {
	st, err := e.Repo.GetActiveSubTask(ctx, subTaskID)
	if err != nil {
		return domain.SubTask{}, err
	}
	if st.TaskID != taskID {
		return domain.SubTask{}, fmt.Errorf("subtask %s in task %s: %w", subTaskID, taskID, repo.ErrNotFound)
	}
	return st, nil
}

func (e Engine) PatchSubTask(ctx context.Context, actorID, taskID, subTaskID string, patch SubTaskPatch) (domain.SubTask, error) {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return domain.SubTask{}, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.SubTask{}, err
	}
	pol := access.For(actor)
	if err := pol.RequireAccess(t, "subtask.patch"); err != nil {
		return domain.SubTask{}, err
	}
	st, err := e.loadSubTask(ctx, taskID, subTaskID)
	if err != nil {
		return domain.SubTask{}, err
	}
	changed := false
	if patch.Title != nil && *patch.Title != st.Title {
		st.Title = *patch.Title
		changed = true
	}
	if patch.Done != nil && *patch.Done != st.Done {
		st.Done = *patch.Done
		changed = true
	}
	if !changed {
		return st, nil
	}
	st.UpdatedAt = e.nowString()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SubTask{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateSubTask(ctx, tx, st); err != nil {
		return domain.SubTask{}, err
	}
	if err := e.recorder().Record(ctx, tx, t.ID, actor.ID, domain.ActionSubTaskUpdated, strPtr("subtask_id"), nil, &st.ID); err != nil {
		return domain.SubTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SubTask{}, err
	}
	return st, nil
}

func (e Engine) SoftDeleteSubTask(ctx context.Context, actorID, taskID, subTaskID string) error {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	pol := access.For(actor)
	if err := pol.RequireAccess(t, "subtask.delete"); err != nil {
		return err
	}
	st, err := e.loadSubTask(ctx, taskID, subTaskID)
	if err != nil {
		return err
	}
	now := e.nowString()
	st.Active = false
	st.DeletedAt = &now
	st.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateSubTask(ctx, tx, st); err != nil {
		return err
	}
	if err := e.recorder().Record(ctx, tx, t.ID, actor.ID, domain.ActionSubTaskDeleted, strPtr("subtask_id"), &st.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) AddComment(ctx context.Context, actorID, taskID, content string) (domain.TaskComment, error) {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return domain.TaskComment{}, err
	}
	if content == "" {
		return domain.TaskComment{}, errors.New("content is required")
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.TaskComment{}, err
	}
	pol := access.For(actor)
	if err := pol.RequireAccess(t, "comment.add"); err != nil {
		return domain.TaskComment{}, err
	}
	c := domain.TaskComment{
		ID:        uuid.New().String(),
		TaskID:    t.ID,
		AuthorID:  actor.ID,
		Content:   content,
		CreatedAt: e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskComment{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.TaskComment{}, err
	}
	if err := e.recorder().Record(ctx, tx, t.ID, actor.ID, domain.ActionCommentAdded, strPtr("comment_id"), nil, &c.ID); err != nil {
		return domain.TaskComment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskComment{}, err
	}
	return c, nil
}

// ListTasks applies the actor's visibility: admins see everything matching
// the filters, customers only tasks they created or are assigned.
func (e Engine) ListTasks(ctx context.Context, actorID string, f repo.TaskFilters) ([]domain.Task, error) {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	pol := access.For(actor)
	if !pol.CanAdminister() {
		f.VisibleTo = actor.ID
	}
	return e.Repo.ListTasks(ctx, f)
}

func (e Engine) notifyEvent(evtType, taskID, actorID string, payload map[string]any) {
	if e.Notifier == nil {
		return
	}
	e.Notifier.Notify(notify.Event{
		Type:    evtType,
		TaskID:  taskID,
		ActorID: actorID,
		TS:      e.nowString(),
		Payload: payload,
	})
}

// --- helpers ---

func strPtr(s string) *string {
	return &s
}

// normalizeTags dedupes and sorts so tag sets compare and render stably.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tagsValue(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(tags)
	return string(b)
}
