package parallel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aishell/aishell/internal/metrics"
	"github.com/aishell/aishell/internal/tracing"
)

// Strategy is the stop condition governing when a batch of parallel tasks is
// considered done enough to return.
type Strategy string

const (
	// StrategyAll waits for every task to reach a terminal state.
	StrategyAll Strategy = "all"

	// StrategyFirst waits for the first terminal task, then cancels the rest.
	StrategyFirst Strategy = "first"

	// StrategyMajority waits for floor(n/2)+1 terminal tasks, then cancels
	// the rest.
	StrategyMajority Strategy = "majority"

	// StrategyThreshold waits for a configured number of terminal tasks,
	// then cancels the rest.
	StrategyThreshold Strategy = "threshold"
)

// Sentinel errors for Execute preconditions.
var (
	ErrNoTasks          = errors.New("no tasks to execute")
	ErrMissingThreshold = errors.New("threshold strategy requires a positive threshold")
	ErrUnknownStrategy  = errors.New("unknown aggregation strategy")
)

// TaskRunner executes one task. Errors it returns become FAILED task state
// rather than propagating out of Execute.
type TaskRunner func(ctx context.Context, agentType, description string) (interface{}, error)

// Config configures an executor.
type Config struct {
	// MaxConcurrent caps how many tasks run at once. Defaults to 5.
	MaxConcurrent int

	// Strategy is the stop condition. Defaults to StrategyAll.
	Strategy Strategy

	// Threshold is required when Strategy is StrategyThreshold. Values
	// above the task count are clamped to it.
	Threshold int
}

// Executor runs independently described tasks against one injected runner
// under a bounded concurrency ceiling and a configurable stop condition.
type Executor struct {
	cfg     Config
	tasks   []*Task
	metrics *metrics.Metrics

	// stateMu guards the task list and every task's runtime fields so
	// Summary and TaskResult see consistent snapshots while a run is in
	// flight.
	stateMu sync.Mutex

	// runMu serializes Execute calls; the task list is not designed for
	// concurrent batches.
	runMu sync.Mutex
}

// NewExecutor creates an executor with defaults applied.
func NewExecutor(cfg Config) *Executor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAll
	}

	return &Executor{cfg: cfg}
}

// SetMetrics configures optional Prometheus metrics for task outcomes.
func (e *Executor) SetMetrics(m *metrics.Metrics) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.metrics = m
}

// AddTask appends a task. Returns the executor for chaining.
func (e *Executor) AddTask(task *Task) *Executor {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.tasks = append(e.tasks, task)
	return e
}

// AddTasks appends several tasks. Returns the executor for chaining.
func (e *Executor) AddTasks(tasks ...*Task) *Executor {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.tasks = append(e.tasks, tasks...)
	return e
}

// CreateTask builds a task from the arguments and appends it. Returns the
// executor for chaining.
func (e *Executor) CreateTask(agentType, description string, opts ...TaskOption) *Executor {
	return e.AddTask(NewTask(agentType, description, opts...))
}

// Execute runs every queued task under the configured concurrency ceiling
// and stop condition, returning a complete result snapshot. Per-task
// failures, timeouts, and cancellations become task state; only the
// precondition violations (no tasks, missing threshold, unknown strategy)
// propagate as errors.
func (e *Executor) Execute(ctx context.Context, runner TaskRunner) (*ExecutionResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.stateMu.Lock()
	tasks := make([]*Task, len(e.tasks))
	copy(tasks, e.tasks)
	m := e.metrics
	e.stateMu.Unlock()

	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}

	stopTarget, err := e.stopTarget(len(tasks))
	if err != nil {
		return nil, err
	}

	for _, task := range tasks {
		if task.ID == "" {
			id, nerr := gonanoid.New()
			if nerr != nil {
				return nil, fmt.Errorf("failed to generate task id: %w", nerr)
			}
			task.ID = id
		}
	}

	// Priority decides slot-grant order only; ties preserve insertion
	// order. Completion order is still up to the runner.
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Priority > tasks[j].Priority
	})

	executionID := uuid.New().String()

	ctx, span := tracing.StartSpan(ctx, "parallel", "parallel.execute",
		attribute.String("execution.id", executionID),
		attribute.String("execution.strategy", string(e.cfg.Strategy)),
		attribute.Int("execution.tasks", len(tasks)),
	)
	defer span.End()

	log.Info().
		Str("execution_id", executionID).
		Str("strategy", string(e.cfg.Strategy)).
		Int("tasks", len(tasks)).
		Int("max_concurrent", e.cfg.MaxConcurrent).
		Msg("Starting parallel execution")

	startTime := time.Now()

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, e.cfg.MaxConcurrent)
	completions := make(chan *Task, len(tasks))

	// Dispatcher: slots are granted here, in priority order, before each
	// task's goroutine is spawned. Letting the goroutines race for the
	// semaphore themselves would leave the grant order to the scheduler.
	go func() {
		for _, task := range tasks {
			select {
			case sem <- struct{}{}:
				go e.runTask(execCtx, sem, task, runner, completions)
			case <-execCtx.Done():
				e.finishTask(task, StatusCancelled, nil, "cancelled", completions)
			}
		}
	}()

	// Stop-condition evaluator: every completion is observed here; once the
	// target is met, outstanding tasks are cancelled and the loop drains
	// the remainder.
	result := &ExecutionResult{
		ExecutionID: executionID,
		Strategy:    e.cfg.Strategy,
		TotalTasks:  len(tasks),
		StartTime:   startTime,
	}

	terminal := 0
	for terminal < len(tasks) {
		task := <-completions
		terminal++

		e.stateMu.Lock()
		status := task.Status
		taskResult := task.Result
		taskErr := task.Error
		e.stateMu.Unlock()

		switch status {
		case StatusCompleted:
			result.Completed++
			if taskResult != nil {
				result.Results = append(result.Results, taskResult)
			}
		case StatusFailed:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", task.Name, taskErr))
		case StatusCancelled:
			result.Cancelled++
		}

		if m != nil {
			m.ParallelTasks.WithLabelValues(string(status)).Inc()
		}

		if terminal >= stopTarget {
			cancel()
		}
	}

	result.EndTime = time.Now()
	result.TotalDuration = result.EndTime.Sub(result.StartTime)

	if m != nil {
		m.ParallelExecutionDuration.Observe(result.TotalDuration.Seconds())
	}

	e.stateMu.Lock()
	result.Tasks = make([]Task, len(tasks))
	for i, task := range tasks {
		result.Tasks[i] = task.snapshot()
	}
	e.stateMu.Unlock()

	result.durationStats()

	log.Info().
		Str("execution_id", executionID).
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Int("cancelled", result.Cancelled).
		Dur("duration", result.TotalDuration).
		Msg("Parallel execution completed")

	return result, nil
}

// stopTarget translates the strategy into the number of terminal tasks that
// satisfies the stop condition.
func (e *Executor) stopTarget(total int) (int, error) {
	switch e.cfg.Strategy {
	case StrategyAll:
		return total, nil
	case StrategyFirst:
		return 1, nil
	case StrategyMajority:
		return total/2 + 1, nil
	case StrategyThreshold:
		if e.cfg.Threshold <= 0 {
			return 0, ErrMissingThreshold
		}
		if e.cfg.Threshold > total {
			return total, nil
		}
		return e.cfg.Threshold, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownStrategy, e.cfg.Strategy)
	}
}

// runTask takes one task through its state machine. The caller has already
// granted the concurrency slot; it is released here. The runner is invoked
// in its own goroutine so a runner that ignores context cancellation cannot
// hold the slot past the timeout.
func (e *Executor) runTask(execCtx context.Context, sem chan struct{}, task *Task, runner TaskRunner, completions chan<- *Task) {
	defer func() { <-sem }()

	e.stateMu.Lock()
	task.Status = StatusRunning
	task.StartTime = time.Now()
	e.stateMu.Unlock()

	runCtx, cancel := context.WithTimeout(execCtx, task.Timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := runner(runCtx, task.AgentType, task.Description)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case result := <-resultChan:
		e.finishTask(task, StatusCompleted, result, "", completions)
	case err := <-errChan:
		e.finishTask(task, StatusFailed, nil, err.Error(), completions)
	case <-runCtx.Done():
		if execCtx.Err() != nil {
			e.finishTask(task, StatusCancelled, nil, "cancelled", completions)
		} else {
			e.finishTask(task, StatusFailed, nil,
				fmt.Sprintf("timed out after %gs", task.Timeout.Seconds()), completions)
		}
	}
}

// finishTask moves a task to a terminal state exactly once and reports it to
// the stop-condition evaluator.
func (e *Executor) finishTask(task *Task, status TaskStatus, result interface{}, errMsg string, completions chan<- *Task) {
	e.stateMu.Lock()
	task.Status = status
	task.Result = result
	task.Error = errMsg
	if !task.StartTime.IsZero() {
		task.EndTime = time.Now()
		task.Duration = task.EndTime.Sub(task.StartTime)
	}
	e.stateMu.Unlock()

	completions <- task
}

// TaskResult returns the result of the named task, with ok reporting whether
// a task by that name exists and completed.
func (e *Executor) TaskResult(name string) (interface{}, bool) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	for _, task := range e.tasks {
		if task.Name == name {
			if task.Status != StatusCompleted {
				return nil, false
			}
			return task.Result, true
		}
	}

	return nil, false
}

// TaskSummary is a point-in-time view of one task for observability.
type TaskSummary struct {
	Name      string     `json:"name"`
	AgentType string     `json:"agent_type"`
	Priority  int        `json:"priority"`
	Status    TaskStatus `json:"status"`
}

// Summary describes the executor's configuration and current task states.
type Summary struct {
	Strategy      Strategy      `json:"strategy"`
	MaxConcurrent int           `json:"max_concurrent"`
	Threshold     int           `json:"threshold,omitempty"`
	TotalTasks    int           `json:"total_tasks"`
	Tasks         []TaskSummary `json:"tasks"`
}

// GetSummary exposes configuration plus a snapshot of each task without
// mutating anything.
func (e *Executor) GetSummary() Summary {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	summary := Summary{
		Strategy:      e.cfg.Strategy,
		MaxConcurrent: e.cfg.MaxConcurrent,
		Threshold:     e.cfg.Threshold,
		TotalTasks:    len(e.tasks),
		Tasks:         make([]TaskSummary, 0, len(e.tasks)),
	}

	for _, task := range e.tasks {
		summary.Tasks = append(summary.Tasks, TaskSummary{
			Name:      task.Name,
			AgentType: task.AgentType,
			Priority:  task.Priority,
			Status:    task.Status,
		})
	}

	return summary
}
