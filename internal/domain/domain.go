package domain

// Role of a user account.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
)

// Valid reports whether the role is one of the defined values.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// TaskStatus values. No transition graph is enforced; any authorized
// actor may set any defined value.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
)

func (s TaskStatus) Valid() bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusDone
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

func (p TaskPriority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// LogAction identifies what a task log entry records.
type LogAction string

const (
	ActionCreated        LogAction = "CREATED"
	ActionUpdated        LogAction = "UPDATED"
	ActionStatusChanged  LogAction = "STATUS_CHANGED"
	ActionAssigned       LogAction = "ASSIGNED"
	ActionDeleted        LogAction = "DELETED"
	ActionSubTaskCreated LogAction = "SUBTASK_CREATED"
	ActionSubTaskUpdated LogAction = "SUBTASK_UPDATED"
	ActionSubTaskDeleted LogAction = "SUBTASK_DELETED"
	ActionCommentAdded   LogAction = "COMMENT_ADDED"
)

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      Role   `json:"role" enum:"ADMIN,CUSTOMER"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    TaskPriority `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	Status      TaskStatus   `json:"status" enum:"TODO,IN_PROGRESS,DONE"`
	DueDate     *string      `json:"due_date,omitempty" format:"date-time"`
	Tags        []string     `json:"tags,omitempty"`
	CreatedBy   string       `json:"created_by"`
	AssigneeID  *string      `json:"assignee_id,omitempty"`
	Active      bool         `json:"active"`
	DeletedAt   *string      `json:"deleted_at,omitempty" format:"date-time"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
	UpdatedAt   string       `json:"updated_at" format:"date-time"`
}

type SubTask struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"task_id"`
	Title     string  `json:"title"`
	Done      bool    `json:"done"`
	Active    bool    `json:"active"`
	DeletedAt *string `json:"deleted_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// TaskComment is immutable once created; there is no update operation.
type TaskComment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// TaskLog is an append-only audit entry. Field/OldValue/NewValue are set
// for field-level changes (UPDATED, STATUS_CHANGED, ASSIGNED).
type TaskLog struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"task_id"`
	ActorID   string    `json:"actor_id"`
	Action    LogAction `json:"action"`
	Field     *string   `json:"field,omitempty"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	CreatedAt string    `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
