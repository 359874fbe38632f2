package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aishell/aishell/pkg/safety"
)

var (
	validateParams string
	validateLevel  string
)

var validateCmd = &cobra.Command{
	Use:   "validate <tool>",
	Short: "Validate a tool invocation without executing it",
	Long: `Run the safety controller over a planned tool invocation and print the
verdict: risk level, approval requirement, identified risks, and mitigations.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateParams, "params", "{}", "tool parameters as JSON")
	validateCmd.Flags().StringVar(&validateLevel, "level", "", "safety level override (strict, moderate, permissive)")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	var params map[string]interface{}
	if err := json.Unmarshal([]byte(validateParams), &params); err != nil {
		return fmt.Errorf("invalid params JSON: %w", err)
	}

	name := args[0]
	controller := buildController(cfg, validateLevel)

	step := safety.Step{
		Tool:       name,
		Params:     params,
		Definition: registry.Get(name),
	}
	result := controller.Validate(step)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tool:         %s\n", name)
	fmt.Fprintf(out, "Safety level: %s\n", controller.Level())
	fmt.Fprintf(out, "Risk level:   %s\n", result.RiskLevel)
	fmt.Fprintf(out, "Safe:         %t\n", result.Safe)
	fmt.Fprintf(out, "Approval:     %s\n", result.ApprovalRequirement)

	if len(result.Risks) > 0 {
		fmt.Fprintln(out, "Risks:")
		for _, risk := range result.Risks {
			fmt.Fprintf(out, "  - %s\n", risk)
		}
	}
	if len(result.Mitigations) > 0 {
		fmt.Fprintln(out, "Mitigations:")
		for _, m := range result.Mitigations {
			fmt.Fprintf(out, "  - %s\n", m)
		}
	}
	if result.SQLAnalysis != nil {
		fmt.Fprintf(out, "SQL analysis: %s\n", result.SQLAnalysis.RiskLevel)
		for _, w := range result.SQLAnalysis.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}

	return nil
}
