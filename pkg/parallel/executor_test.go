package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoRunner returns the task description after an optional per-description
// delay. The description "fail" produces an error instead. The delay is a
// plain sleep; cancelled tasks must surface as cancelled, not as runner
// errors.
func echoRunner(delays map[string]time.Duration) TaskRunner {
	return func(ctx context.Context, agentType, description string) (interface{}, error) {
		if delay, ok := delays[description]; ok {
			time.Sleep(delay)
		}
		if description == "fail" {
			return nil, errors.New("runner blew up")
		}
		return description, nil
	}
}

func TestNewExecutorDefaults(t *testing.T) {
	e := NewExecutor(Config{})
	summary := e.GetSummary()

	assert.Equal(t, StrategyAll, summary.Strategy)
	assert.Equal(t, 5, summary.MaxConcurrent)
	assert.Equal(t, 0, summary.TotalTasks)
}

func TestExecutePreconditions(t *testing.T) {
	t.Run("no tasks", func(t *testing.T) {
		e := NewExecutor(Config{})
		_, err := e.Execute(context.Background(), echoRunner(nil))
		assert.ErrorIs(t, err, ErrNoTasks)
	})

	t.Run("threshold strategy without threshold", func(t *testing.T) {
		e := NewExecutor(Config{Strategy: StrategyThreshold})
		e.CreateTask("query-runner", "a")
		_, err := e.Execute(context.Background(), echoRunner(nil))
		assert.ErrorIs(t, err, ErrMissingThreshold)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		e := NewExecutor(Config{Strategy: Strategy("quorum")})
		e.CreateTask("query-runner", "a")
		_, err := e.Execute(context.Background(), echoRunner(nil))
		assert.ErrorIs(t, err, ErrUnknownStrategy)
	})
}

func TestExecuteAll(t *testing.T) {
	e := NewExecutor(Config{Strategy: StrategyAll}).
		CreateTask("query-runner", "a").
		CreateTask("query-runner", "b").
		CreateTask("query-runner", "fail", WithName("broken"))

	result, err := e.Execute(context.Background(), echoRunner(nil))
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalTasks)
	assert.Equal(t, 2, result.Completed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Cancelled)
	assert.ElementsMatch(t, []interface{}{"a", "b"}, result.Results)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "broken: runner blew up")
	assert.NotEmpty(t, result.ExecutionID)
	assert.Len(t, result.Tasks, 3)
}

func TestExecutePriorityOrdering(t *testing.T) {
	// With a single slot the runner must be invoked strictly in priority
	// order, every run. Repeat to catch scheduler-dependent regressions.
	for i := 0; i < 20; i++ {
		var mu sync.Mutex
		var invoked []string

		runner := func(ctx context.Context, agentType, description string) (interface{}, error) {
			mu.Lock()
			invoked = append(invoked, description)
			mu.Unlock()
			return description, nil
		}

		e := NewExecutor(Config{MaxConcurrent: 1}).
			CreateTask("query-runner", "low", WithPriority(1)).
			CreateTask("query-runner", "high", WithPriority(10)).
			CreateTask("query-runner", "mid", WithPriority(5))

		result, err := e.Execute(context.Background(), runner)
		require.NoError(t, err)

		mu.Lock()
		assert.Equal(t, []string{"high", "mid", "low"}, invoked)
		mu.Unlock()

		// The result snapshot reflects the same scheduling order.
		require.Len(t, result.Tasks, 3)
		assert.Equal(t, 10, result.Tasks[0].Priority)
		assert.Equal(t, 5, result.Tasks[1].Priority)
		assert.Equal(t, 1, result.Tasks[2].Priority)
	}
}

func TestExecuteConcurrencyCeiling(t *testing.T) {
	var running, peak int32

	runner := func(ctx context.Context, agentType, description string) (interface{}, error) {
		now := atomic.AddInt32(&running, 1)
		for {
			observed := atomic.LoadInt32(&peak)
			if now <= observed || atomic.CompareAndSwapInt32(&peak, observed, now) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}

	e := NewExecutor(Config{MaxConcurrent: 2})
	for i := 0; i < 6; i++ {
		e.CreateTask("query-runner", fmt.Sprintf("task-%d", i))
	}

	result, err := e.Execute(context.Background(), runner)
	require.NoError(t, err)

	assert.Equal(t, 6, result.Completed)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestExecuteFirst(t *testing.T) {
	delays := map[string]time.Duration{
		"fast":   10 * time.Millisecond,
		"slow-1": 5 * time.Second,
		"slow-2": 5 * time.Second,
	}

	e := NewExecutor(Config{Strategy: StrategyFirst}).
		CreateTask("query-runner", "fast").
		CreateTask("query-runner", "slow-1").
		CreateTask("query-runner", "slow-2")

	start := time.Now()
	result, err := e.Execute(context.Background(), echoRunner(delays))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 2, result.Cancelled)
	assert.Equal(t, []interface{}{"fast"}, result.Results)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecuteMajority(t *testing.T) {
	delays := map[string]time.Duration{
		"fast-1": 10 * time.Millisecond,
		"fast-2": 10 * time.Millisecond,
		"fast-3": 10 * time.Millisecond,
		"slow-1": 5 * time.Second,
		"slow-2": 5 * time.Second,
	}

	e := NewExecutor(Config{Strategy: StrategyMajority}).
		CreateTask("query-runner", "fast-1").
		CreateTask("query-runner", "fast-2").
		CreateTask("query-runner", "fast-3").
		CreateTask("query-runner", "slow-1").
		CreateTask("query-runner", "slow-2")

	start := time.Now()
	result, err := e.Execute(context.Background(), echoRunner(delays))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Completed)
	assert.Equal(t, 2, result.Cancelled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecuteThreshold(t *testing.T) {
	t.Run("stops at the threshold", func(t *testing.T) {
		delays := map[string]time.Duration{
			"fast-1": 10 * time.Millisecond,
			"fast-2": 10 * time.Millisecond,
			"slow-1": 5 * time.Second,
			"slow-2": 5 * time.Second,
		}

		e := NewExecutor(Config{Strategy: StrategyThreshold, Threshold: 2}).
			CreateTask("query-runner", "fast-1").
			CreateTask("query-runner", "fast-2").
			CreateTask("query-runner", "slow-1").
			CreateTask("query-runner", "slow-2")

		start := time.Now()
		result, err := e.Execute(context.Background(), echoRunner(delays))
		require.NoError(t, err)

		assert.Equal(t, 2, result.Completed)
		assert.Equal(t, 2, result.Cancelled)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("threshold above the task count waits for everything", func(t *testing.T) {
		e := NewExecutor(Config{Strategy: StrategyThreshold, Threshold: 10}).
			CreateTask("query-runner", "a").
			CreateTask("query-runner", "b")

		result, err := e.Execute(context.Background(), echoRunner(nil))
		require.NoError(t, err)

		assert.Equal(t, 2, result.Completed)
		assert.Equal(t, 0, result.Cancelled)
	})
}

func TestExecuteTaskTimeout(t *testing.T) {
	delays := map[string]time.Duration{"slow": 5 * time.Second}

	e := NewExecutor(Config{}).
		CreateTask("query-runner", "slow", WithName("slow_query"), WithTimeout(50*time.Millisecond))

	start := time.Now()
	result, err := e.Execute(context.Background(), echoRunner(delays))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "timed out after")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecuteResultsInCompletionOrder(t *testing.T) {
	delays := map[string]time.Duration{
		"slow": 300 * time.Millisecond,
		"fast": 10 * time.Millisecond,
	}

	e := NewExecutor(Config{}).
		CreateTask("query-runner", "slow").
		CreateTask("query-runner", "fast")

	result, err := e.Execute(context.Background(), echoRunner(delays))
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"fast", "slow"}, result.Results)
}

func TestExecuteDurationStats(t *testing.T) {
	delays := map[string]time.Duration{
		"fast": 10 * time.Millisecond,
		"slow": 100 * time.Millisecond,
	}

	e := NewExecutor(Config{}).
		CreateTask("query-runner", "fast").
		CreateTask("query-runner", "slow")

	result, err := e.Execute(context.Background(), echoRunner(delays))
	require.NoError(t, err)

	assert.Greater(t, result.MaxDuration, result.MinDuration)
	assert.GreaterOrEqual(t, result.AvgDuration, result.MinDuration)
	assert.LessOrEqual(t, result.AvgDuration, result.MaxDuration)
	assert.Greater(t, result.TotalDuration, time.Duration(0))
	assert.False(t, result.EndTime.Before(result.StartTime))
}

func TestTaskResult(t *testing.T) {
	e := NewExecutor(Config{}).
		CreateTask("query-runner", "a", WithName("works")).
		CreateTask("query-runner", "fail", WithName("broken"))

	_, err := e.Execute(context.Background(), echoRunner(nil))
	require.NoError(t, err)

	t.Run("completed task", func(t *testing.T) {
		value, ok := e.TaskResult("works")
		require.True(t, ok)
		assert.Equal(t, "a", value)
	})

	t.Run("failed task", func(t *testing.T) {
		_, ok := e.TaskResult("broken")
		assert.False(t, ok)
	})

	t.Run("unknown task", func(t *testing.T) {
		_, ok := e.TaskResult("missing")
		assert.False(t, ok)
	})
}

func TestGetSummary(t *testing.T) {
	e := NewExecutor(Config{Strategy: StrategyThreshold, Threshold: 2, MaxConcurrent: 3}).
		AddTasks(
			NewTask("schema-analyst", "inspect schema", WithName("inspect"), WithPriority(2)),
			NewTask("query-runner", "count rows"),
		)

	summary := e.GetSummary()

	assert.Equal(t, StrategyThreshold, summary.Strategy)
	assert.Equal(t, 2, summary.Threshold)
	assert.Equal(t, 3, summary.MaxConcurrent)
	assert.Equal(t, 2, summary.TotalTasks)
	require.Len(t, summary.Tasks, 2)
	assert.Equal(t, "inspect", summary.Tasks[0].Name)
	assert.Equal(t, StatusPending, summary.Tasks[0].Status)
}

func TestConcurrentTaskAddition(t *testing.T) {
	e := NewExecutor(Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.CreateTask("query-runner", fmt.Sprintf("task-%d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, e.GetSummary().TotalTasks)
}
