package safety

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/aishell/aishell/internal/metrics"
	"github.com/aishell/aishell/pkg/tools"
)

// destructiveTools are names whose execution is irreversible regardless of
// the declared risk level. They always escalate to multi-party approval.
var destructiveTools = map[string]bool{
	"execute_migration": true,
	"drop_table":        true,
	"drop_database":     true,
	"truncate_table":    true,
	"delete_backup":     true,
	"restore_backup":    true,
	"drop_index":        true,
	"drop_schema":       true,
}

// destructivePatterns are matched case-insensitively against any SQL text
// embedded in a step's parameters.
var destructivePatterns = []string{"DROP", "TRUNCATE", "DELETE FROM"}

// sqlParamKeys are the parameter names the controller inspects for embedded
// SQL or migration text.
var sqlParamKeys = []string{"query", "sql", "migration", "migration_sql", "statement"}

// ApprovalSink receives a copy of every approval record, in addition to the
// controller's in-memory history. Implementations must be safe for
// concurrent use.
type ApprovalSink interface {
	RecordApproval(record ApprovalRecord) error
}

// Controller turns a planned step plus the configured safety posture into a
// definitive go/no-go/approval verdict, and drives approval exchanges to a
// recorded decision.
type Controller struct {
	mu       sync.RWMutex
	level    Level
	analyzer QueryAnalyzer
	callback ApprovalCallback
	in       io.Reader
	out      io.Writer
	history  []ApprovalRecord
	sink     ApprovalSink
	metrics  *metrics.Metrics
}

// ControllerConfig configures a safety controller. Zero values fall back to
// a moderate posture with an interactive exchange on stdin/stdout.
type ControllerConfig struct {
	Level    Level
	Analyzer QueryAnalyzer
	Callback ApprovalCallback
	Input    io.Reader
	Output   io.Writer
}

// NewController creates a safety controller.
func NewController(cfg ControllerConfig) *Controller {
	if !cfg.Level.IsValid() {
		cfg.Level = LevelModerate
	}
	if cfg.Input == nil {
		cfg.Input = os.Stdin
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	return &Controller{
		level:    cfg.Level,
		analyzer: cfg.Analyzer,
		callback: cfg.Callback,
		in:       cfg.Input,
		out:      cfg.Output,
	}
}

// Level returns the current safety posture.
func (c *Controller) Level() Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

// SetLevel changes the safety posture at runtime. Invalid levels are
// ignored. Used by config hot reload.
func (c *Controller) SetLevel(level Level) {
	if !level.IsValid() {
		log.Warn().Str("level", string(level)).Msg("Ignoring invalid safety level")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.level != level {
		log.Info().Str("from", string(c.level)).Str("to", string(level)).Msg("Safety level changed")
		c.level = level
	}
}

// SetApprovalSink configures an optional persistent sink for approval
// records.
func (c *Controller) SetApprovalSink(sink ApprovalSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// SetMetrics configures optional Prometheus metrics for validation verdicts
// and approval decisions.
func (c *Controller) SetMetrics(m *metrics.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Validate computes the verdict for one planned step. It never fails open:
// a step with no resolvable tool definition yields unknown risk and a hard
// approval requirement.
func (c *Controller) Validate(step Step) ValidationResult {
	result := c.validate(step)

	c.mu.RLock()
	m := c.metrics
	c.mu.RUnlock()
	if m != nil {
		m.Validations.WithLabelValues(result.ApprovalRequirement.String()).Inc()
	}

	log.Debug().
		Str("tool", step.Tool).
		Str("risk", result.RiskLevel.String()).
		Str("approval", result.ApprovalRequirement.String()).
		Bool("safe", result.Safe).
		Msg("Step validated")

	return result
}

func (c *Controller) validate(step Step) ValidationResult {
	if step.Definition == nil {
		return ValidationResult{
			Safe:                false,
			RiskLevel:           tools.RiskUnknown,
			RequiresApproval:    true,
			ApprovalRequirement: ApprovalRequired,
			Risks:               []string{"Tool definition not available for validation"},
		}
	}

	def := step.Definition
	result := ValidationResult{
		RiskLevel:        def.RiskLevel,
		RequiresApproval: def.RequiresApproval,
	}
	if def.RequiresApproval {
		result.ApprovalRequirement = ApprovalRequired
	}

	c.applyPosture(def, &result)
	c.applyCategoryRules(step, def, &result)
	c.applyDestructiveOverride(step, def, &result)

	result.Safe = result.RiskLevel >= tools.RiskSafe && result.RiskLevel <= tools.RiskMedium

	return result
}

// applyPosture escalates the approval requirement based on the configured
// safety level.
func (c *Controller) applyPosture(def *tools.Definition, result *ValidationResult) {
	level := c.Level()

	switch level {
	case LevelStrict:
		if def.RiskLevel >= tools.RiskHigh {
			result.RequiresApproval = true
			escalate(result, ApprovalRequired)
		}
	case LevelModerate:
		if def.RiskLevel >= tools.RiskCritical {
			result.RequiresApproval = true
			escalate(result, ApprovalRequired)
		} else if def.RiskLevel == tools.RiskHigh {
			escalate(result, ApprovalOptional)
		}
	case LevelPermissive:
		// The tool's own requires_approval flag is authoritative.
	}
}

// applyCategoryRules augments the verdict with category-specific risks and
// mitigations, delegating embedded SQL to the external analyzer.
func (c *Controller) applyCategoryRules(step Step, def *tools.Definition, result *ValidationResult) {
	switch def.Category {
	case tools.CategoryDatabaseWrite:
		result.Risks = append(result.Risks, "Operation modifies data")
		result.Mitigations = append(result.Mitigations, "Backup created before execution")
		c.analyzeEmbeddedSQL(step, result)

	case tools.CategoryDatabaseDDL:
		result.RequiresApproval = true
		escalate(result, ApprovalRequired)
		result.Risks = append(result.Risks, "Operation modifies schema")
		result.Mitigations = append(result.Mitigations, "Rollback script generated")
		c.analyzeEmbeddedSQL(step, result)
	}
}

// analyzeEmbeddedSQL runs the external analyzer over any SQL text found in
// the step's parameters and folds its verdict into the result.
func (c *Controller) analyzeEmbeddedSQL(step Step, result *ValidationResult) {
	if c.analyzer == nil {
		return
	}

	query := embeddedSQL(step.Params)
	if query == "" {
		return
	}

	analysis := c.analyzer.Analyze(query)
	result.SQLAnalysis = &analysis

	if analysis.RiskLevel >= tools.RiskHigh {
		result.RequiresApproval = true
		escalate(result, ApprovalRequired)
		result.Risks = append(result.Risks, analysis.Warnings...)
	}
}

// applyDestructiveOverride is the final, highest-precedence rule: known
// irreversible operations always require multi-party approval, regardless of
// posture or anything computed above.
func (c *Controller) applyDestructiveOverride(step Step, def *tools.Definition, result *ValidationResult) {
	destructive := destructiveTools[def.Name]

	if !destructive {
		if sql := embeddedSQL(step.Params); sql != "" {
			upper := strings.ToUpper(sql)
			for _, pattern := range destructivePatterns {
				if strings.Contains(upper, pattern) {
					destructive = true
					break
				}
			}
		}
	}

	if !destructive {
		return
	}

	result.RequiresApproval = true
	result.ApprovalRequirement = ApprovalMultiParty
	result.Risks = append(result.Risks, "Irreversible destructive operation")
	result.Mitigations = append(result.Mitigations, "Multi-party approval required")
}

// escalate raises the approval requirement, never lowering it.
func escalate(result *ValidationResult, req ApprovalRequirement) {
	if req > result.ApprovalRequirement {
		result.ApprovalRequirement = req
	}
}

// embeddedSQL extracts SQL text from the well-known parameter keys.
func embeddedSQL(params map[string]interface{}) string {
	if params == nil {
		return ""
	}

	parts := []string{}
	for _, key := range sqlParamKeys {
		if value, ok := params[key].(string); ok && value != "" {
			parts = append(parts, value)
		}
	}

	return strings.Join(parts, "\n")
}
