package safety

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// maxParamDisplayLen caps how much of a parameter value the interactive
// exchange renders.
const maxParamDisplayLen = 120

// RequestApproval drives one approval exchange for a step whose validation
// demanded sign-off. With a configured callback the exchange is delegated to
// it and any callback error propagates; otherwise an interactive exchange
// runs over the controller's reader/writer. Every exchange is appended to
// the approval history.
func (c *Controller) RequestApproval(ctx context.Context, step Step, validation ValidationResult) (ApprovalRecord, error) {
	request := ApprovalRequest{
		Step:       step,
		Validation: validation,
		Timestamp:  time.Now(),
	}

	c.mu.RLock()
	callback := c.callback
	c.mu.RUnlock()

	var decision ApprovalDecision
	var err error

	if callback != nil {
		decision, err = callback(request)
		if err != nil {
			return ApprovalRecord{}, fmt.Errorf("approval callback failed: %w", err)
		}
	} else {
		decision, err = c.interactiveExchange(ctx, request)
		if err != nil {
			return ApprovalRecord{}, err
		}
	}

	if decision.Timestamp.IsZero() {
		decision.Timestamp = time.Now()
	}

	id, err := gonanoid.New()
	if err != nil {
		return ApprovalRecord{}, fmt.Errorf("failed to generate approval record id: %w", err)
	}

	record := ApprovalRecord{
		ID:       id,
		Request:  request,
		Decision: decision,
	}

	c.mu.Lock()
	c.history = append(c.history, record)
	m := c.metrics
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		if serr := sink.RecordApproval(record); serr != nil {
			log.Error().Err(serr).Str("tool", step.Tool).Msg("Failed to persist approval record")
		}
	}

	if m != nil {
		outcome := "rejected"
		if decision.Approved {
			outcome = "approved"
		}
		m.ApprovalDecisions.WithLabelValues(outcome).Inc()
	}

	log.Info().
		Str("tool", step.Tool).
		Bool("approved", decision.Approved).
		Str("approver", decision.Approver).
		Msg("Approval decision recorded")

	return record, nil
}

// interactiveExchange renders the step and collects an approve/reject
// decision from the controller's reader.
func (c *Controller) interactiveExchange(ctx context.Context, request ApprovalRequest) (ApprovalDecision, error) {
	c.renderRequest(request)

	type answer struct {
		decision ApprovalDecision
		err      error
	}
	answerChan := make(chan answer, 1)

	go func() {
		decision, err := c.readDecision()
		answerChan <- answer{decision: decision, err: err}
	}()

	select {
	case a := <-answerChan:
		return a.decision, a.err
	case <-ctx.Done():
		fmt.Fprintln(c.out, "\nApproval request cancelled.")
		return ApprovalDecision{}, ctx.Err()
	}
}

func (c *Controller) renderRequest(request ApprovalRequest) {
	v := request.Validation

	fmt.Fprintln(c.out, "")
	fmt.Fprintln(c.out, "================ APPROVAL REQUIRED ================")
	fmt.Fprintf(c.out, "  Tool:        %s\n", request.Step.Tool)
	fmt.Fprintf(c.out, "  Risk level:  %s\n", v.RiskLevel)
	fmt.Fprintf(c.out, "  Approval:    %s\n", v.ApprovalRequirement)

	if len(request.Step.Params) > 0 {
		fmt.Fprintln(c.out, "  Parameters:")
		keys := make([]string, 0, len(request.Step.Params))
		for key := range request.Step.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(c.out, "    %s: %s\n", key, truncateValue(request.Step.Params[key]))
		}
	}

	if v.SQLAnalysis != nil {
		fmt.Fprintf(c.out, "  SQL analysis: risk=%s\n", v.SQLAnalysis.RiskLevel)
		for _, warning := range v.SQLAnalysis.Warnings {
			fmt.Fprintf(c.out, "    warning: %s\n", warning)
		}
	}

	for _, risk := range v.Risks {
		fmt.Fprintf(c.out, "  Risk:       %s\n", risk)
	}
	for _, mitigation := range v.Mitigations {
		fmt.Fprintf(c.out, "  Mitigation: %s\n", mitigation)
	}

	fmt.Fprintln(c.out, "===================================================")
	fmt.Fprint(c.out, "  Approve this operation? [y/N]: ")
}

func (c *Controller) readDecision() (ApprovalDecision, error) {
	scanner := bufio.NewScanner(c.in)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return ApprovalDecision{}, fmt.Errorf("failed to read approval input: %w", err)
		}
		return ApprovalDecision{
			Approved: false,
			Reason:   "no input provided",
			Approver: "interactive",
		}, nil
	}

	input := strings.TrimSpace(strings.ToLower(scanner.Text()))

	if input == "y" || input == "yes" {
		return ApprovalDecision{
			Approved: true,
			Reason:   "approved interactively",
			Approver: "interactive",
		}, nil
	}

	fmt.Fprint(c.out, "  Rejection reason (optional): ")
	reason := "rejected interactively"
	if scanner.Scan() {
		if text := strings.TrimSpace(scanner.Text()); text != "" {
			reason = text
		}
	}

	return ApprovalDecision{
		Approved: false,
		Reason:   reason,
		Approver: "interactive",
	}, nil
}

func truncateValue(v interface{}) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > maxParamDisplayLen {
		return s[:maxParamDisplayLen] + "..."
	}
	return s
}

// ApprovalHistory returns the most recent limit records (all if limit is
// non-positive), optionally filtered to approved decisions only. The
// returned slice is a copy.
func (c *Controller) ApprovalHistory(limit int, approvedOnly bool) []ApprovalRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	filtered := make([]ApprovalRecord, 0, len(c.history))
	for _, record := range c.history {
		if approvedOnly && !record.Decision.Approved {
			continue
		}
		filtered = append(filtered, record)
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	return filtered
}

// ClearApprovalHistory resets the history. This is an explicit, audited
// operation; it never happens automatically.
func (c *Controller) ClearApprovalHistory() {
	c.mu.Lock()
	cleared := len(c.history)
	c.history = nil
	c.mu.Unlock()

	log.Info().Int("cleared", cleared).Msg("Approval history cleared")
}
