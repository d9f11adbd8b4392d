package server

import (
	"taskledger/internal/domain"
	"taskledger/internal/engine"
)

// Request payloads

type CreateUserRequest struct {
	ID       *string `json:"id,omitempty"`
	Email    string  `json:"email" format:"email"`
	FullName string  `json:"full_name"`
	Role     string  `json:"role" enum:"ADMIN,CUSTOMER"`
}

type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Priority    *string  `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH"`
	DueDate     *string  `json:"due_date,omitempty" format:"date-time"`
	Tags        []string `json:"tags,omitempty"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
}

type PatchTaskRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *string   `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH"`
	DueDate     *string   `json:"due_date,omitempty" format:"date-time"`
	Tags        *[]string `json:"tags,omitempty"`
}

type AssignTaskRequest struct {
	AssigneeID string `json:"assignee_id"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" enum:"TODO,IN_PROGRESS,DONE"`
}

type CreateSubTaskRequest struct {
	Title string `json:"title"`
}

type PatchSubTaskRequest struct {
	Title *string `json:"title,omitempty"`
	Done  *bool   `json:"done,omitempty"`
}

type CreateCommentRequest struct {
	Content string `json:"content"`
}

type CreateAPIKeyRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

// Response payloads

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email" format:"email"`
	FullName  string `json:"full_name,omitempty"`
	Role      string `json:"role" enum:"ADMIN,CUSTOMER"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TaskResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	Status      string   `json:"status" enum:"TODO,IN_PROGRESS,DONE"`
	DueDate     *string  `json:"due_date,omitempty" format:"date-time"`
	Tags        []string `json:"tags"`
	CreatedBy   string   `json:"created_by"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	Active      bool     `json:"active"`
	DeletedAt   *string  `json:"deleted_at,omitempty" format:"date-time"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type SubTaskResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type CommentResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TaskLogResponse struct {
	ID        int64   `json:"id"`
	TaskID    string  `json:"task_id"`
	ActorID   string  `json:"actor_id"`
	Action    string  `json:"action"`
	Field     *string `json:"field,omitempty"`
	OldValue  *string `json:"old_value,omitempty"`
	NewValue  *string `json:"new_value,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type TaskDetailResponse struct {
	Task     TaskResponse      `json:"task"`
	SubTasks []SubTaskResponse `json:"subtasks"`
	Comments []CommentResponse `json:"comments"`
	Logs     []TaskLogResponse `json:"logs"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Conversion helpers

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		DueDate:     t.DueDate,
		Tags:        nonNilSlice(t.Tags),
		CreatedBy:   t.CreatedBy,
		AssigneeID:  t.AssigneeID,
		Active:      t.Active,
		DeletedAt:   t.DeletedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func subTaskResponse(st domain.SubTask) SubTaskResponse {
	return SubTaskResponse{
		ID:        st.ID,
		TaskID:    st.TaskID,
		Title:     st.Title,
		Done:      st.Done,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}

func commentResponse(c domain.TaskComment) CommentResponse {
	return CommentResponse{
		ID:        c.ID,
		TaskID:    c.TaskID,
		AuthorID:  c.AuthorID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}
}

func taskLogResponse(l domain.TaskLog) TaskLogResponse {
	return TaskLogResponse{
		ID:        l.ID,
		TaskID:    l.TaskID,
		ActorID:   l.ActorID,
		Action:    string(l.Action),
		Field:     l.Field,
		OldValue:  l.OldValue,
		NewValue:  l.NewValue,
		CreatedAt: l.CreatedAt,
	}
}

func taskDetailResponse(d engine.TaskDetail) TaskDetailResponse {
	res := TaskDetailResponse{
		Task:     taskResponse(d.Task),
		SubTasks: []SubTaskResponse{},
		Comments: []CommentResponse{},
		Logs:     []TaskLogResponse{},
	}
	for _, st := range d.SubTasks {
		res.SubTasks = append(res.SubTasks, subTaskResponse(st))
	}
	for _, c := range d.Comments {
		res.Comments = append(res.Comments, commentResponse(c))
	}
	for _, l := range d.Logs {
		res.Logs = append(res.Logs, taskLogResponse(l))
	}
	return res
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func mapUsers(items []domain.User) []UserResponse {
	res := make([]UserResponse, 0, len(items))
	for _, u := range items {
		res = append(res, userResponse(u))
	}
	return res
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
