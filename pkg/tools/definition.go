package tools

import (
	"context"
	"fmt"
	"time"
)

// Parameter describes one field of a tool's parameter or return contract.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

// Handler is the function signature for tool implementations. The execution
// context carries opaque collaborator handles (a database client, a backup
// target) that the registry never inspects.
type Handler func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (map[string]interface{}, error)

// ExecutionContext provides runtime information for tool execution.
type ExecutionContext struct {
	SessionKey    string
	AgentID       string
	Timeout       time.Duration
	Collaborators map[string]interface{}
}

// Definition describes a tool's metadata, contracts, and implementation.
// Definitions are immutable once registered; the registry owns them for the
// process lifetime.
type Definition struct {
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	Category             Category      `json:"category"`
	RiskLevel            RiskLevel     `json:"risk_level"`
	RequiredCapabilities []string      `json:"required_capabilities,omitempty"`
	Parameters           []Parameter   `json:"parameters"`
	Returns              []Parameter   `json:"returns,omitempty"`
	Handler              Handler       `json:"-"`
	RequiresApproval     bool          `json:"requires_approval"`
	MaxExecutionTime     time.Duration `json:"max_execution_time"`

	// RateLimit is the maximum number of calls per rolling 60 second
	// window. Zero means unlimited.
	RateLimit int `json:"rate_limit,omitempty"`

	Examples []map[string]interface{} `json:"examples,omitempty"`
}

// Validate checks a definition before registration.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if d.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if d.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	if !IsValidCategory(string(d.Category)) {
		return fmt.Errorf("invalid category %q for %s", d.Category, d.Name)
	}
	if !d.RiskLevel.IsValid() {
		return fmt.Errorf("invalid risk level for %s", d.Name)
	}
	if d.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative for %s", d.Name)
	}

	for _, contract := range [][]Parameter{d.Parameters, d.Returns} {
		for _, param := range contract {
			if param.Name == "" {
				return fmt.Errorf("parameter name cannot be empty in %s", d.Name)
			}
			if !validParamTypes[param.Type] {
				return fmt.Errorf("invalid parameter type %s for %s.%s", param.Type, d.Name, param.Name)
			}
		}
	}

	return nil
}

var validParamTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}
