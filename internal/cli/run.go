package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aishell/aishell/internal/auditstore"
	"github.com/aishell/aishell/internal/config"
	"github.com/aishell/aishell/internal/metrics"
	"github.com/aishell/aishell/internal/tracing"
	"github.com/aishell/aishell/pkg/safety"
)

var (
	runParams string
	runLevel  string
)

var runCmd = &cobra.Command{
	Use:   "run <tool>",
	Short: "Execute a tool through the safety gate",
	Long: `Validate a tool invocation, request approval when the verdict demands it,
and execute the tool. Execution and approval records are persisted to the
audit database.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runParams, "params", "{}", "tool parameters as JSON")
	runCmd.Flags().StringVar(&runLevel, "level", "", "safety level override (strict, moderate, permissive)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := tracing.Init(version, 1); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer tracing.Shutdown(cmd.Context())

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	var params map[string]interface{}
	if err := json.Unmarshal([]byte(runParams), &params); err != nil {
		return fmt.Errorf("invalid params JSON: %w", err)
	}

	store, err := auditstore.NewStore(auditstore.Config{
		DBPath:          cfg.Audit.DBPath,
		RetentionDays:   cfg.Audit.RetentionDays,
		CleanupSchedule: cfg.Audit.CleanupSchedule,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.NewMetrics()
	registry.SetMetrics(m)
	registry.SetAuditSink(store)

	controller := buildController(cfg, runLevel)
	controller.SetMetrics(m)
	controller.SetApprovalSink(store)

	// An explicit --level pins the posture; otherwise config edits made
	// while an approval exchange is pending take effect immediately.
	if runLevel == "" {
		if stop := watchSafetyLevel(controller, config.NewLoader(cfgFile).GetConfigPath()); stop != nil {
			defer stop()
		}
	}

	name := args[0]
	step := safety.Step{
		Tool:       name,
		Params:     params,
		Definition: registry.Get(name),
	}
	if step.Definition == nil {
		return fmt.Errorf("unknown tool: %s", name)
	}

	result := controller.Validate(step)

	if result.RequiresApproval {
		record, err := controller.RequestApproval(cmd.Context(), step, result)
		if err != nil {
			return fmt.Errorf("approval exchange failed: %w", err)
		}
		if !record.Decision.Approved {
			return errors.New("execution rejected by approver")
		}
	}

	if ok, reason := registry.CheckRateLimit(name); !ok {
		return errors.New(reason)
	}

	output, err := registry.Execute(cmd.Context(), name, params, nil)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	rendered, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(rendered))

	return nil
}
