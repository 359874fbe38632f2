package safety

import (
	"time"

	"github.com/aishell/aishell/pkg/tools"
)

// Level is the configured safety posture. It controls how aggressively
// high-risk tools are escalated to human approval.
type Level string

const (
	LevelStrict     Level = "strict"
	LevelModerate   Level = "moderate"
	LevelPermissive Level = "permissive"
)

// IsValid reports whether the level is one of the known postures.
func (l Level) IsValid() bool {
	return l == LevelStrict || l == LevelModerate || l == LevelPermissive
}

// ApprovalRequirement describes how much human sign-off a step needs before
// execution. Requirements are ordered: escalation only ever moves up.
type ApprovalRequirement int

const (
	ApprovalNone ApprovalRequirement = iota
	ApprovalOptional
	ApprovalRequired
	ApprovalMultiParty
)

// String returns the lowercase name of the approval requirement.
func (a ApprovalRequirement) String() string {
	switch a {
	case ApprovalNone:
		return "none"
	case ApprovalOptional:
		return "optional"
	case ApprovalRequired:
		return "required"
	case ApprovalMultiParty:
		return "multi_party"
	default:
		return "unknown"
	}
}

// Step is a planned tool invocation awaiting validation. Definition is the
// registry-resolved tool definition; a nil Definition is treated as unknown
// risk, never as safe.
type Step struct {
	Tool       string                 `json:"tool"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Definition *tools.Definition      `json:"-"`
}

// QueryAnalysis is the verdict of the external SQL risk analyzer.
type QueryAnalysis struct {
	RiskLevel tools.RiskLevel `json:"risk_level"`
	Warnings  []string        `json:"warnings,omitempty"`
	Issues    []string        `json:"issues,omitempty"`
}

// QueryAnalyzer is the external SQL/query risk analyzer collaborator. It is
// treated as a pure function with no side effects.
type QueryAnalyzer interface {
	Analyze(query string) QueryAnalysis
}

// ValidationResult is the controller's verdict for one step. It is transient:
// produced per Validate call and discarded after use.
type ValidationResult struct {
	Safe                bool                `json:"safe"`
	RiskLevel           tools.RiskLevel     `json:"risk_level"`
	RequiresApproval    bool                `json:"requires_approval"`
	ApprovalRequirement ApprovalRequirement `json:"approval_requirement"`
	Risks               []string            `json:"risks,omitempty"`
	Mitigations         []string            `json:"mitigations,omitempty"`

	// SQLAnalysis is present only when a nested query analysis ran.
	SQLAnalysis *QueryAnalysis `json:"sql_analysis,omitempty"`
}

// ApprovalRequest is what an approval callback or interactive exchange
// receives.
type ApprovalRequest struct {
	Step       Step             `json:"step"`
	Validation ValidationResult `json:"validation"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ApprovalDecision is the outcome of an approval exchange.
type ApprovalDecision struct {
	Approved   bool      `json:"approved"`
	Reason     string    `json:"reason,omitempty"`
	Approver   string    `json:"approver,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Conditions []string  `json:"conditions,omitempty"`
}

// ApprovalRecord pairs a request with its decision. Records are append-only:
// never mutated after creation.
type ApprovalRecord struct {
	ID       string           `json:"id"`
	Request  ApprovalRequest  `json:"request"`
	Decision ApprovalDecision `json:"decision"`
}

// ApprovalCallback lets a caller supply its own approval exchange. Any error
// it returns propagates uncaught; there is no silent-approve fallback.
type ApprovalCallback func(req ApprovalRequest) (ApprovalDecision, error)
