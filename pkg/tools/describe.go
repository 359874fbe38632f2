package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NoToolsAvailable is returned by DescribeForLLM when no registered tool
// matches the caller's capabilities and constraints. It is an explicit
// sentinel so prompt templates never interpolate an empty string.
const NoToolsAvailable = "No tools available for the given capabilities and constraints."

// Describe renders one tool's schema and examples as human-readable text.
// It is pure: no registry state changes.
func (r *Registry) Describe(name string) string {
	def := r.Get(name)
	if def == nil {
		return fmt.Sprintf("Tool not found: %s", name)
	}

	var b strings.Builder
	describeTool(&b, def)
	return b.String()
}

// DescribeForLLM renders every tool matching the agent's capabilities and
// constraints, in a form suitable for prompt injection.
func (r *Registry) DescribeForLLM(capabilities []string, maxRisk *RiskLevel, category Category) string {
	matched := r.Find(FindFilter{
		Category:     category,
		MaxRisk:      maxRisk,
		Capabilities: capabilities,
	})

	if len(matched) == 0 {
		return NoToolsAvailable
	}

	var b strings.Builder
	b.WriteString("Available tools:\n\n")
	for _, def := range matched {
		describeTool(&b, def)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func describeTool(b *strings.Builder, def *Definition) {
	fmt.Fprintf(b, "## %s\n", def.Name)
	fmt.Fprintf(b, "%s\n", def.Description)
	fmt.Fprintf(b, "Category: %s | Risk: %s", def.Category, def.RiskLevel)
	if def.RequiresApproval {
		b.WriteString(" | Requires approval")
	}
	b.WriteString("\n")

	if len(def.RequiredCapabilities) > 0 {
		fmt.Fprintf(b, "Required capabilities: %s\n", strings.Join(def.RequiredCapabilities, ", "))
	}

	if len(def.Parameters) > 0 {
		b.WriteString("Parameters:\n")
		for _, param := range def.Parameters {
			required := ""
			if param.Required {
				required = " (required)"
			}
			fmt.Fprintf(b, "  - %s: %s%s - %s\n", param.Name, param.Type, required, param.Description)
		}
	}

	if len(def.Returns) > 0 {
		b.WriteString("Returns:\n")
		for _, ret := range def.Returns {
			fmt.Fprintf(b, "  - %s: %s - %s\n", ret.Name, ret.Type, ret.Description)
		}
	}

	for i, example := range def.Examples {
		payload, err := json.Marshal(example)
		if err != nil {
			continue
		}
		fmt.Fprintf(b, "Example %d: %s\n", i+1, payload)
	}
}
