package parallel

import (
	"time"
)

// ExecutionResult is the immutable snapshot produced once per Execute call.
// Results appear in completion order, which for equal-priority tasks of
// similar duration is run-to-run non-deterministic; use TaskResult to look
// up a specific task's output by name.
type ExecutionResult struct {
	ExecutionID string        `json:"execution_id"`
	Strategy    Strategy      `json:"strategy"`
	TotalTasks  int           `json:"total_tasks"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Cancelled   int           `json:"cancelled"`
	Results     []interface{} `json:"results"`
	Errors      []string      `json:"errors"`
	Tasks       []Task        `json:"tasks"`

	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	TotalDuration time.Duration `json:"total_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	MinDuration   time.Duration `json:"min_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// durationStats fills the max/min/avg fields from completed tasks only. All
// three stay zero when nothing completed.
func (r *ExecutionResult) durationStats() {
	var total time.Duration
	count := 0

	for i := range r.Tasks {
		task := &r.Tasks[i]
		if task.Status != StatusCompleted {
			continue
		}
		if count == 0 || task.Duration > r.MaxDuration {
			r.MaxDuration = task.Duration
		}
		if count == 0 || task.Duration < r.MinDuration {
			r.MinDuration = task.Duration
		}
		total += task.Duration
		count++
	}

	if count > 0 {
		r.AvgDuration = total / time.Duration(count)
	}
}
