package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aishell/aishell/internal/auditstore"
	"github.com/aishell/aishell/internal/metrics"
	"github.com/aishell/aishell/internal/tracing"
	"github.com/aishell/aishell/pkg/parallel"
	"github.com/aishell/aishell/pkg/safety"
)

var (
	batchLevel       string
	batchMetricsAddr string
)

// batchTask is one entry in a batch file.
type batchTask struct {
	Tool           string                 `json:"tool"`
	Params         map[string]interface{} `json:"params"`
	Name           string                 `json:"name,omitempty"`
	Priority       int                    `json:"priority,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Execute a batch of tools in parallel",
	Long: `Read a JSON file describing tool invocations, validate every one through
the safety controller, and execute them concurrently under the configured
strategy. Batches run unattended, so any tool whose verdict demands approval
is refused up front.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchLevel, "level", "", "safety level override (strict, moderate, permissive)")
	batchCmd.Flags().StringVar(&batchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the batch runs")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
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

	m := metrics.NewMetrics()
	registry.SetMetrics(m)

	controller := buildController(cfg, batchLevel)
	controller.SetMetrics(m)

	if batchMetricsAddr != "" {
		srv := &http.Server{Addr: batchMetricsAddr, Handler: m.Handler()}
		go func() {
			if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
				log.Warn().Err(serr).Str("addr", batchMetricsAddr).Msg("Metrics endpoint failed")
			}
		}()
		defer srv.Close()
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

	registry.SetAuditSink(store)

	specs, err := readBatchFile(args[0])
	if err != nil {
		return err
	}

	executor := parallel.NewExecutor(parallel.Config{
		MaxConcurrent: cfg.Executor.MaxConcurrent,
		Strategy:      parallel.Strategy(cfg.Executor.Strategy),
		Threshold:     cfg.Executor.Threshold,
	})
	executor.SetMetrics(m)

	for _, spec := range specs {
		step := safety.Step{
			Tool:       spec.Tool,
			Params:     spec.Params,
			Definition: registry.Get(spec.Tool),
		}
		if step.Definition == nil {
			return fmt.Errorf("unknown tool: %s", spec.Tool)
		}

		verdict := controller.Validate(step)
		if verdict.RequiresApproval {
			return fmt.Errorf("tool %s requires %s approval and cannot run unattended",
				spec.Tool, verdict.ApprovalRequirement)
		}

		raw, err := json.Marshal(spec.Params)
		if err != nil {
			return fmt.Errorf("invalid params for %s: %w", spec.Tool, err)
		}

		var opts []parallel.TaskOption
		if spec.Name != "" {
			opts = append(opts, parallel.WithName(spec.Name))
		}
		if spec.Priority != 0 {
			opts = append(opts, parallel.WithPriority(spec.Priority))
		}
		if spec.TimeoutSeconds > 0 {
			opts = append(opts, parallel.WithTimeout(time.Duration(spec.TimeoutSeconds)*time.Second))
		}
		executor.CreateTask(spec.Tool, string(raw), opts...)
	}

	result, err := executor.Execute(cmd.Context(), func(ctx context.Context, tool, rawParams string) (interface{}, error) {
		var params map[string]interface{}
		if uerr := json.Unmarshal([]byte(rawParams), &params); uerr != nil {
			return nil, uerr
		}
		if ok, reason := registry.CheckRateLimit(tool); !ok {
			return nil, errors.New(reason)
		}
		return registry.Execute(ctx, tool, params, nil)
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Strategy:   %s\n", result.Strategy)
	fmt.Fprintf(out, "Completed:  %d\n", result.Completed)
	fmt.Fprintf(out, "Failed:     %d\n", result.Failed)
	fmt.Fprintf(out, "Cancelled:  %d\n", result.Cancelled)
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "  error: %s\n", msg)
	}

	rendered, err := json.MarshalIndent(result.Results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render results: %w", err)
	}
	fmt.Fprintln(out, string(rendered))

	return nil
}

func readBatchFile(path string) ([]batchTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var specs []batchTask
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("invalid batch file: %w", err)
	}
	if len(specs) == 0 {
		return nil, errors.New("batch file contains no tasks")
	}

	return specs, nil
}
