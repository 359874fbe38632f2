package parallel

import (
	"fmt"
	"time"
)

// TaskStatus is the execution state of a task. Terminal states are final.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// IsTerminal returns true if the status is terminal.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// defaultTaskTimeout applies when a task declares no timeout of its own.
const defaultTaskTimeout = 180 * time.Second

// Task describes one unit of work for the executor. The caller creates it;
// the executor mutates the runtime fields exactly once during a single
// Execute call. No other task or the caller may touch a task while it is
// running.
type Task struct {
	ID          string                 `json:"id"`
	AgentType   string                 `json:"agent_type"`
	Description string                 `json:"description"`
	Name        string                 `json:"name"`
	Priority    int                    `json:"priority"`
	Timeout     time.Duration          `json:"timeout"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	Status    TaskStatus    `json:"status"`
	Result    interface{}   `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartTime time.Time     `json:"start_time,omitempty"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// TaskOption customizes a task built by NewTask or Executor.CreateTask.
type TaskOption func(*Task)

// WithName overrides the default "{agent_type}_task" name.
func WithName(name string) TaskOption {
	return func(t *Task) { t.Name = name }
}

// WithPriority sets the scheduling priority. Higher runs first.
func WithPriority(priority int) TaskOption {
	return func(t *Task) { t.Priority = priority }
}

// WithTimeout sets the per-task timeout.
func WithTimeout(timeout time.Duration) TaskOption {
	return func(t *Task) { t.Timeout = timeout }
}

// WithMetadata attaches caller metadata to the task.
func WithMetadata(metadata map[string]interface{}) TaskOption {
	return func(t *Task) { t.Metadata = metadata }
}

// NewTask creates a pending task with defaults applied.
func NewTask(agentType, description string, opts ...TaskOption) *Task {
	t := &Task{
		AgentType:   agentType,
		Description: description,
		Timeout:     defaultTaskTimeout,
		Status:      StatusPending,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.Name == "" {
		t.Name = fmt.Sprintf("%s_task", agentType)
	}
	if t.Timeout <= 0 {
		t.Timeout = defaultTaskTimeout
	}

	return t
}

// snapshot returns a copy of the task so a finished ExecutionResult is not
// corrupted by later task-list mutation.
func (t *Task) snapshot() Task {
	copied := *t
	if t.Metadata != nil {
		copied.Metadata = make(map[string]interface{}, len(t.Metadata))
		for k, v := range t.Metadata {
			copied.Metadata[k] = v
		}
	}
	return copied
}
