package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aishell/aishell/pkg/tools"
)

var (
	toolsCategory     string
	toolsMaxRisk      string
	toolsCapabilities []string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List registered tools",
	Long:  `List the registered tools, optionally filtered by category, risk ceiling, and capabilities.`,
	RunE:  runToolsList,
}

var toolsDescribeCmd = &cobra.Command{
	Use:   "describe <tool>",
	Short: "Describe a tool",
	Long:  `Show the full definition of one tool: parameters, returns, risk level, and examples.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsDescribe,
}

func init() {
	toolsCmd.Flags().StringVar(&toolsCategory, "category", "", "filter by category")
	toolsCmd.Flags().StringVar(&toolsMaxRisk, "max-risk", "", "filter by maximum risk level (safe, low, medium, high, critical)")
	toolsCmd.Flags().StringSliceVar(&toolsCapabilities, "capabilities", nil, "available capabilities for matching")

	toolsCmd.AddCommand(toolsDescribeCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	filter := tools.FindFilter{
		Category:     tools.Category(toolsCategory),
		Capabilities: toolsCapabilities,
	}
	if toolsMaxRisk != "" {
		risk, err := tools.ParseRiskLevel(toolsMaxRisk)
		if err != nil {
			return err
		}
		filter.MaxRisk = &risk
	}

	matches := registry.Find(filter)
	if len(matches) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tools match the given filters.")
		return nil
	}

	for _, def := range matches {
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-10s %-18s %s\n",
			def.Name, def.RiskLevel.String(), def.Category, def.Description)
	}
	return nil
}

func runToolsDescribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	name := args[0]
	if registry.Get(name) == nil {
		return fmt.Errorf("unknown tool: %s", name)
	}

	fmt.Fprintln(cmd.OutOrStdout(), registry.Describe(name))
	return nil
}
