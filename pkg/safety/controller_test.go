package safety

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aishell/aishell/pkg/tools"
)

func definitionWith(name string, category tools.Category, risk tools.RiskLevel) *tools.Definition {
	return &tools.Definition{
		Name:        name,
		Description: "test tool",
		Category:    category,
		RiskLevel:   risk,
	}
}

// stubAnalyzer returns a fixed verdict for every query.
type stubAnalyzer struct {
	analysis QueryAnalysis
	queries  []string
}

func (a *stubAnalyzer) Analyze(query string) QueryAnalysis {
	a.queries = append(a.queries, query)
	return a.analysis
}

func TestNewController(t *testing.T) {
	t.Run("defaults to moderate", func(t *testing.T) {
		c := NewController(ControllerConfig{})
		assert.Equal(t, LevelModerate, c.Level())
	})

	t.Run("invalid level falls back to moderate", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: "paranoid"})
		assert.Equal(t, LevelModerate, c.Level())
	})

	t.Run("explicit level", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: LevelStrict})
		assert.Equal(t, LevelStrict, c.Level())
	})
}

func TestSetLevel(t *testing.T) {
	c := NewController(ControllerConfig{Level: LevelModerate})

	c.SetLevel(LevelStrict)
	assert.Equal(t, LevelStrict, c.Level())

	// Invalid level is ignored
	c.SetLevel("paranoid")
	assert.Equal(t, LevelStrict, c.Level())
}

func TestValidateMissingDefinition(t *testing.T) {
	c := NewController(ControllerConfig{Level: LevelPermissive})

	result := c.Validate(Step{Tool: "unknown_tool"})

	assert.False(t, result.Safe)
	assert.Equal(t, tools.RiskUnknown, result.RiskLevel)
	assert.True(t, result.RequiresApproval)
	assert.Equal(t, ApprovalRequired, result.ApprovalRequirement)
	assert.NotEmpty(t, result.Risks)
}

func TestValidatePostures(t *testing.T) {
	step := func(risk tools.RiskLevel) Step {
		return Step{
			Tool:       "report_stats",
			Definition: definitionWith("report_stats", tools.CategoryAnalysis, risk),
		}
	}

	t.Run("strict requires approval from high up", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: LevelStrict})

		assert.Equal(t, ApprovalNone, c.Validate(step(tools.RiskMedium)).ApprovalRequirement)
		assert.Equal(t, ApprovalRequired, c.Validate(step(tools.RiskHigh)).ApprovalRequirement)
		assert.Equal(t, ApprovalRequired, c.Validate(step(tools.RiskCritical)).ApprovalRequirement)
	})

	t.Run("moderate requires approval for critical only", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: LevelModerate})

		assert.Equal(t, ApprovalNone, c.Validate(step(tools.RiskMedium)).ApprovalRequirement)
		assert.Equal(t, ApprovalOptional, c.Validate(step(tools.RiskHigh)).ApprovalRequirement)
		assert.Equal(t, ApprovalRequired, c.Validate(step(tools.RiskCritical)).ApprovalRequirement)
	})

	t.Run("permissive defers to the tool's flag", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: LevelPermissive})

		assert.Equal(t, ApprovalNone, c.Validate(step(tools.RiskCritical)).ApprovalRequirement)

		gated := step(tools.RiskCritical)
		gated.Definition.RequiresApproval = true
		result := c.Validate(gated)
		assert.True(t, result.RequiresApproval)
		assert.Equal(t, ApprovalRequired, result.ApprovalRequirement)
	})
}

func TestValidateSafeVerdict(t *testing.T) {
	c := NewController(ControllerConfig{Level: LevelModerate})

	tests := []struct {
		risk tools.RiskLevel
		safe bool
	}{
		{tools.RiskSafe, true},
		{tools.RiskLow, true},
		{tools.RiskMedium, true},
		{tools.RiskHigh, false},
		{tools.RiskCritical, false},
	}

	for _, tt := range tests {
		t.Run(tt.risk.String(), func(t *testing.T) {
			result := c.Validate(Step{
				Tool:       "report_stats",
				Definition: definitionWith("report_stats", tools.CategoryAnalysis, tt.risk),
			})
			assert.Equal(t, tt.safe, result.Safe)
		})
	}
}

func TestValidateCategoryRules(t *testing.T) {
	t.Run("database write adds risks and mitigations", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: LevelPermissive})

		result := c.Validate(Step{
			Tool:       "update_rows",
			Definition: definitionWith("update_rows", tools.CategoryDatabaseWrite, tools.RiskMedium),
		})

		assert.Contains(t, result.Risks, "Operation modifies data")
		assert.Contains(t, result.Mitigations, "Backup created before execution")
		assert.Equal(t, ApprovalNone, result.ApprovalRequirement)
	})

	t.Run("DDL always requires approval", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: LevelPermissive})

		result := c.Validate(Step{
			Tool:       "create_index",
			Definition: definitionWith("create_index", tools.CategoryDatabaseDDL, tools.RiskMedium),
		})

		assert.True(t, result.RequiresApproval)
		assert.Equal(t, ApprovalRequired, result.ApprovalRequirement)
		assert.Contains(t, result.Risks, "Operation modifies schema")
		assert.Contains(t, result.Mitigations, "Rollback script generated")
	})
}

func TestValidateEmbeddedSQLAnalysis(t *testing.T) {
	t.Run("analyzer verdict is attached", func(t *testing.T) {
		analyzer := &stubAnalyzer{analysis: QueryAnalysis{RiskLevel: tools.RiskLow}}
		c := NewController(ControllerConfig{Level: LevelPermissive, Analyzer: analyzer})

		result := c.Validate(Step{
			Tool:       "update_rows",
			Params:     map[string]interface{}{"query": "UPDATE users SET active = true"},
			Definition: definitionWith("update_rows", tools.CategoryDatabaseWrite, tools.RiskMedium),
		})

		require.NotNil(t, result.SQLAnalysis)
		assert.Equal(t, tools.RiskLow, result.SQLAnalysis.RiskLevel)
		assert.Equal(t, []string{"UPDATE users SET active = true"}, analyzer.queries)
		assert.Equal(t, ApprovalNone, result.ApprovalRequirement)
	})

	t.Run("high analyzer verdict escalates", func(t *testing.T) {
		analyzer := &stubAnalyzer{analysis: QueryAnalysis{
			RiskLevel: tools.RiskHigh,
			Warnings:  []string{"full table scan on users"},
		}}
		c := NewController(ControllerConfig{Level: LevelPermissive, Analyzer: analyzer})

		result := c.Validate(Step{
			Tool:       "update_rows",
			Params:     map[string]interface{}{"query": "UPDATE users SET active = true"},
			Definition: definitionWith("update_rows", tools.CategoryDatabaseWrite, tools.RiskMedium),
		})

		assert.True(t, result.RequiresApproval)
		assert.Equal(t, ApprovalRequired, result.ApprovalRequirement)
		assert.Contains(t, result.Risks, "full table scan on users")
	})

	t.Run("no analyzer configured", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: LevelPermissive})

		result := c.Validate(Step{
			Tool:       "update_rows",
			Params:     map[string]interface{}{"query": "UPDATE users SET active = true"},
			Definition: definitionWith("update_rows", tools.CategoryDatabaseWrite, tools.RiskMedium),
		})

		assert.Nil(t, result.SQLAnalysis)
	})
}

func TestValidateDestructiveOverride(t *testing.T) {
	t.Run("known destructive names escalate to multi-party", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: LevelPermissive})

		for _, name := range []string{"drop_table", "truncate_table", "restore_backup", "execute_migration"} {
			result := c.Validate(Step{
				Tool:       name,
				Definition: definitionWith(name, tools.CategoryDatabaseDDL, tools.RiskCritical),
			})

			assert.Equal(t, ApprovalMultiParty, result.ApprovalRequirement, "tool: %s", name)
			assert.True(t, result.RequiresApproval, "tool: %s", name)
			assert.Contains(t, result.Risks, "Irreversible destructive operation")
			assert.Contains(t, result.Mitigations, "Multi-party approval required")
		}
	})

	t.Run("destructive SQL escalates even for benign tool names", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: LevelPermissive})

		result := c.Validate(Step{
			Tool:       "update_rows",
			Params:     map[string]interface{}{"query": "delete from sessions where expired"},
			Definition: definitionWith("update_rows", tools.CategoryDatabaseWrite, tools.RiskMedium),
		})

		assert.Equal(t, ApprovalMultiParty, result.ApprovalRequirement)
		assert.True(t, result.RequiresApproval)
		assert.Contains(t, result.Risks, "Irreversible destructive operation")
	})

	t.Run("override beats permissive posture", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: LevelPermissive})

		result := c.Validate(Step{
			Tool:       "execute_migration",
			Params:     map[string]interface{}{"sql": "DROP TABLE users"},
			Definition: definitionWith("execute_migration", tools.CategoryMigration, tools.RiskHigh),
		})

		assert.Equal(t, ApprovalMultiParty, result.ApprovalRequirement)
	})

	t.Run("non-destructive SQL is untouched", func(t *testing.T) {
		c := NewController(ControllerConfig{Level: LevelPermissive})

		result := c.Validate(Step{
			Tool:       "update_rows",
			Params:     map[string]interface{}{"query": "SELECT count(*) FROM users"},
			Definition: definitionWith("update_rows", tools.CategoryDatabaseWrite, tools.RiskMedium),
		})

		assert.Equal(t, ApprovalNone, result.ApprovalRequirement)
		assert.True(t, result.Safe)
	})
}

func TestValidateDoesNotMutateDefinition(t *testing.T) {
	c := NewController(ControllerConfig{Level: LevelStrict, Output: io.Discard})
	def := definitionWith("report_stats", tools.CategoryAnalysis, tools.RiskHigh)

	_ = c.Validate(Step{Tool: "report_stats", Definition: def})

	assert.False(t, def.RequiresApproval)
}
