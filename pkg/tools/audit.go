package tools

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aishell/aishell/internal/logger"
)

// maxRenderedLen caps how much of a parameter or result rendering is kept in
// an audit entry.
const maxRenderedLen = 2048

// ExecutionRecord is one append-only entry in the registry's audit log.
// Entries are never mutated or removed after creation.
type ExecutionRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Tool      string        `json:"tool"`
	Params    string        `json:"params"`
	Result    string        `json:"result,omitempty"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// auditLog is the registry's in-memory append-only execution log.
type auditLog struct {
	mu       sync.Mutex
	entries  []ExecutionRecord
	redactor *logger.Redactor
}

func newAuditLog() *auditLog {
	return &auditLog{
		redactor: logger.NewRedactor(),
	}
}

func (a *auditLog) append(record ExecutionRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, record)
}

func (a *auditLog) render(v interface{}) string {
	if v == nil {
		return ""
	}
	s := a.redactor.Redact(fmt.Sprintf("%v", v))
	if len(s) > maxRenderedLen {
		s = s[:maxRenderedLen] + "... [truncated]"
	}
	return s
}

// LogExecution appends one audit entry for a tool call. Parameter and result
// values are rendered through the redactor so credentials never reach the
// log.
func (r *Registry) LogExecution(name string, params map[string]interface{}, result map[string]interface{}, duration time.Duration, success bool, execErr error) {
	record := ExecutionRecord{
		Timestamp: r.now(),
		Tool:      name,
		Params:    r.audit.render(params),
		Result:    r.audit.render(result),
		Success:   success,
		Duration:  duration,
	}
	if execErr != nil {
		record.Error = execErr.Error()
	}

	r.audit.append(record)

	r.mu.RLock()
	sink := r.sink
	m := r.metrics
	r.mu.RUnlock()

	if m != nil {
		status := "success"
		if !success {
			status = "failure"
		}
		m.ToolExecutions.WithLabelValues(name, status).Inc()
		m.ToolExecutionDuration.WithLabelValues(name).Observe(duration.Seconds())
	}

	if sink != nil {
		if err := sink.RecordExecution(record); err != nil {
			log.Error().Err(err).Str("tool", name).Msg("Failed to persist execution record")
		}
	}
}

// ExecutionLog returns a copy of the audit log, optionally filtered to one
// tool and limited to the most recent entries. A non-positive limit returns
// everything.
func (r *Registry) ExecutionLog(name string, limit int) []ExecutionRecord {
	r.audit.mu.Lock()
	defer r.audit.mu.Unlock()

	filtered := make([]ExecutionRecord, 0, len(r.audit.entries))
	for _, entry := range r.audit.entries {
		if name != "" && entry.Tool != name {
			continue
		}
		filtered = append(filtered, entry)
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	return filtered
}

// Stats summarizes registry contents and execution history.
type Stats struct {
	TotalTools           int              `json:"total_tools"`
	ByCategory           map[Category]int `json:"by_category"`
	ByRisk               map[string]int   `json:"by_risk"`
	TotalExecutions      int              `json:"total_executions"`
	SuccessfulExecutions int              `json:"successful_executions"`
	FailedExecutions     int              `json:"failed_executions"`
}

// RegistryStats derives summary statistics from the tool table and the audit
// log.
func (r *Registry) RegistryStats() Stats {
	stats := Stats{
		ByCategory: make(map[Category]int),
		ByRisk:     make(map[string]int),
	}

	r.mu.RLock()
	stats.TotalTools = len(r.tools)
	for _, def := range r.tools {
		stats.ByCategory[def.Category]++
		stats.ByRisk[def.RiskLevel.String()]++
	}
	r.mu.RUnlock()

	r.audit.mu.Lock()
	defer r.audit.mu.Unlock()

	stats.TotalExecutions = len(r.audit.entries)
	for _, entry := range r.audit.entries {
		if entry.Success {
			stats.SuccessfulExecutions++
		} else {
			stats.FailedExecutions++
		}
	}

	return stats
}
