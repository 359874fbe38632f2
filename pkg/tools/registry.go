package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aishell/aishell/internal/metrics"
	"github.com/aishell/aishell/internal/tracing"
)

// AuditSink receives a copy of every execution record, in addition to the
// registry's in-memory log. Implementations must be safe for concurrent use.
type AuditSink interface {
	RecordExecution(record ExecutionRecord) error
}

// Registry is the single authoritative mapping from a tool name to a
// risk-classified, schema-validated, rate-limited capability.
type Registry struct {
	mu            sync.RWMutex
	tools         map[string]*Definition
	paramSchemas  map[string]*gojsonschema.Schema
	returnSchemas map[string]*gojsonschema.Schema

	rateMu      sync.Mutex
	rateWindows map[string][]time.Time

	audit   *auditLog
	sink    AuditSink
	metrics *metrics.Metrics

	// now is swappable for rate limit window tests.
	now func() time.Time
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	r := &Registry{
		tools:         make(map[string]*Definition),
		paramSchemas:  make(map[string]*gojsonschema.Schema),
		returnSchemas: make(map[string]*gojsonschema.Schema),
		rateWindows:   make(map[string][]time.Time),
		audit:         newAuditLog(),
		now:           time.Now,
	}

	log.Debug().Msg("Tool registry initialized")

	return r
}

// SetAuditSink configures an optional persistent sink for execution records.
func (r *Registry) SetAuditSink(sink AuditSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// SetMetrics configures optional Prometheus metrics for tool executions.
func (r *Registry) SetMetrics(m *metrics.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// Register adds a tool definition. Registration is all-or-nothing: a
// duplicate name or an invalid definition leaves the registry untouched.
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	paramSchema, err := compileContract(def.Parameters)
	if err != nil {
		return fmt.Errorf("failed to compile parameter contract for %s: %w", def.Name, err)
	}
	returnSchema, err := compileContract(def.Returns)
	if err != nil {
		return fmt.Errorf("failed to compile return contract for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}

	r.tools[def.Name] = &def
	r.paramSchemas[def.Name] = paramSchema
	r.returnSchemas[def.Name] = returnSchema

	log.Info().
		Str("tool", def.Name).
		Str("category", string(def.Category)).
		Str("risk", def.RiskLevel.String()).
		Msg("Tool registered")

	return nil
}

// Unregister removes a tool. Returns true if the tool existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return false
	}

	delete(r.tools, name)
	delete(r.paramSchemas, name)
	delete(r.returnSchemas, name)

	log.Info().Str("tool", name).Msg("Tool unregistered")

	return true
}

// Get returns a tool definition by name, or nil if not registered.
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.tools[name]
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// FindFilter narrows the tool set returned by Find.
type FindFilter struct {
	// Category, when non-empty, is an exact match filter.
	Category Category

	// MaxRisk, when non-nil, keeps only tools whose risk level is at or
	// below the given level.
	MaxRisk *RiskLevel

	// Capabilities, when non-nil, is the set of capabilities the caller
	// holds. A tool is kept only if every one of its required capabilities
	// is present in this set.
	Capabilities []string
}

// Find returns the tools matching every provided filter, sorted by name.
func (r *Registry) Find(filter FindFilter) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var capSet map[string]bool
	if filter.Capabilities != nil {
		capSet = make(map[string]bool, len(filter.Capabilities))
		for _, capability := range filter.Capabilities {
			capSet[capability] = true
		}
	}

	matched := []*Definition{}
	for _, def := range r.tools {
		if filter.Category != "" && def.Category != filter.Category {
			continue
		}
		if filter.MaxRisk != nil && def.RiskLevel > *filter.MaxRisk {
			continue
		}
		if capSet != nil && !hasAllCapabilities(def, capSet) {
			continue
		}
		matched = append(matched, def)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	return matched
}

func hasAllCapabilities(def *Definition, held map[string]bool) bool {
	for _, required := range def.RequiredCapabilities {
		if !held[required] {
			return false
		}
	}
	return true
}

// rateWindow is the rolling interval over which RateLimit applies.
const rateWindow = 60 * time.Second

// CheckRateLimit checks whether the named tool may be called now. On success
// the call is recorded against the tool's rolling window, so check-and-record
// is atomic from the caller's point of view. Tools without a rate limit
// always pass.
func (r *Registry) CheckRateLimit(name string) (bool, string) {
	def := r.Get(name)
	if def == nil {
		return false, fmt.Sprintf("tool not found: %s", name)
	}
	if def.RateLimit <= 0 {
		return true, ""
	}

	r.rateMu.Lock()
	defer r.rateMu.Unlock()

	now := r.now()
	cutoff := now.Add(-rateWindow)

	window := r.rateWindows[name]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= def.RateLimit {
		r.rateWindows[name] = kept
		if r.metrics != nil {
			r.metrics.RateLimitDenials.WithLabelValues(name).Inc()
		}
		return false, fmt.Sprintf("rate limit exceeded: %d calls per minute allowed for %s", def.RateLimit, name)
	}

	r.rateWindows[name] = append(kept, now)

	return true, ""
}

// Execute validates params against the tool's parameter contract, invokes the
// implementation, and validates the returned payload against the return
// contract. The dual validation is deliberate: the registry trusts neither
// the caller nor the tool author.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}, execCtx *ExecutionContext) (map[string]interface{}, error) {
	r.mu.RLock()
	def := r.tools[name]
	paramSchema := r.paramSchemas[name]
	returnSchema := r.returnSchemas[name]
	r.mu.RUnlock()

	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	ctx, span := tracing.StartSpan(ctx, "tools", "tool.execute",
		attribute.String("tool.name", name),
		attribute.String("tool.risk", def.RiskLevel.String()),
	)
	defer span.End()

	if err := validateAgainst(paramSchema, params); err != nil {
		log.Warn().Str("tool", name).Err(err).Msg("Parameter validation failed")
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidParameter, name, err)
	}

	timeout := def.MaxExecutionTime
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if execCtx != nil && execCtx.Timeout > 0 && execCtx.Timeout < timeout {
		timeout = execCtx.Timeout
	}

	execCtxTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	result, err := r.invoke(execCtxTimeout, def, params, execCtx, timeout)
	duration := r.now().Sub(start)

	if err != nil {
		r.LogExecution(name, params, nil, duration, false, err)
		log.Error().Str("tool", name).Dur("duration", duration).Err(err).Msg("Tool execution failed")
		return nil, err
	}

	if verr := validateAgainst(returnSchema, result); verr != nil {
		err := fmt.Errorf("%w for %s: %v", ErrInvalidResult, name, verr)
		r.LogExecution(name, params, result, duration, false, err)
		log.Error().Str("tool", name).Err(err).Msg("Tool returned payload violating its return contract")
		return nil, err
	}

	r.LogExecution(name, params, result, duration, true, nil)
	log.Debug().Str("tool", name).Dur("duration", duration).Msg("Tool execution completed")

	return result, nil
}

// invoke runs the handler in its own goroutine so a handler that ignores
// context cancellation cannot block Execute past the deadline.
func (r *Registry) invoke(ctx context.Context, def *Definition, params map[string]interface{}, execCtx *ExecutionContext, timeout time.Duration) (map[string]interface{}, error) {
	resultChan := make(chan map[string]interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := def.Handler(ctx, params, execCtx)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case result := <-resultChan:
		return result, nil
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("tool execution timeout after %v", timeout)
		}
		return nil, fmt.Errorf("tool execution cancelled: %w", ctx.Err())
	}
}
