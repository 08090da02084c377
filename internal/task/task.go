// Package task defines the fundamental unit of orchestration work and its
// closed state machines: a CAS version counter, judgement feedback, and
// session lineage.
package task

import "time"

// State is the closed set of task lifecycle states.
type State string

const (
	Ready              State = "READY"
	Running            State = "RUNNING"
	NeedsContinuation  State = "NEEDS_CONTINUATION"
	Done               State = "DONE"
	Blocked            State = "BLOCKED"
	Cancelled          State = "CANCELLED"
)

// IsTerminal reports whether the state is Done or Cancelled (always
// terminal) -- Blocked is terminal unless explicitly reset to Ready.
func (s State) IsTerminal() bool {
	return s == Done || s == Cancelled
}

// BlockReason is the closed set of reasons a task may be blocked.
type BlockReason string

const (
	BlockMaxRetries           BlockReason = "MAX_RETRIES"
	BlockSystemErrorTransient BlockReason = "SYSTEM_ERROR_TRANSIENT"
	BlockJudgeFailed          BlockReason = "JUDGE_FAILED"
	BlockDependencyFailed     BlockReason = "DEPENDENCY_FAILED"
	BlockCyclicDependency     BlockReason = "CYCLIC_DEPENDENCY"
	BlockUnschedulable        BlockReason = "UNSCHEDULABLE"
)

// Type is the closed set of task types.
type Type string

const (
	TypeImplementation Type = "implementation"
	TypeDocumentation  Type = "documentation"
	TypeInvestigation  Type = "investigation"
	TypeIntegration    Type = "integration"
)

// JudgementFeedback records the most recent Judge verdict plus the retry
// budget, per spec invariant 5 (iteration must never exceed maxIterations).
type JudgementFeedback struct {
	Iteration           int      `json:"iteration"`
	MaxIterations       int      `json:"maxIterations"`
	Reason              string   `json:"reason"`
	MissingRequirements []string `json:"missingRequirements,omitempty"`
}

// Task is the fundamental unit of orchestrated work.
type Task struct {
	// Identity
	TaskID string `json:"taskId"`

	// Fixed attributes
	RepoPath          string   `json:"repoPath"`
	Branch            string   `json:"branch"`
	ScopePaths        []string `json:"scopePaths"`
	Acceptance        string   `json:"acceptance"`
	Type              Type     `json:"type"`
	EstimatedDuration float64  `json:"estimatedDuration"`
	Context           string   `json:"context"`
	Dependencies      []string `json:"dependencies"`

	// Mutable attributes
	State              State              `json:"state"`
	Owner              string             `json:"owner,omitempty"`
	Version            int                `json:"version"`
	LatestRunID        string             `json:"latestRunId,omitempty"`
	JudgementFeedback  *JudgementFeedback `json:"judgementFeedback,omitempty"`
	BlockReason        BlockReason        `json:"blockReason,omitempty"`
	BlockMessage       string             `json:"blockMessage,omitempty"`
	IntegrationRetried bool               `json:"integrationRetried"`
	Summary            string             `json:"summary,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`

	// Session lineage
	SessionID       string `json:"sessionId"`
	ParentSessionID string `json:"parentSessionId,omitempty"`
	RootSessionID   string `json:"rootSessionId"`
}

// Clone returns a deep copy so callers never mutate stored state through an
// aliased pointer.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.ScopePaths = append([]string(nil), t.ScopePaths...)
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	if t.JudgementFeedback != nil {
		jf := *t.JudgementFeedback
		jf.MissingRequirements = append([]string(nil), t.JudgementFeedback.MissingRequirements...)
		cp.JudgementFeedback = &jf
	}
	return &cp
}

// RunStatus is the closed set of outcomes for one agent execution.
type RunStatus string

const (
	RunSuccess RunStatus = "SUCCESS"
	RunFailure RunStatus = "FAILURE"
	RunTimeout RunStatus = "TIMEOUT"
)

// Run is metadata for one LLM execution.
type Run struct {
	RunID            string    `json:"runId"`
	TaskID           string    `json:"taskId"`
	AgentType        string    `json:"agentType"`
	LogPath          string    `json:"logPath"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt,omitempty"`
	Status           RunStatus `json:"status"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	PlannerRunID     string    `json:"plannerRunId,omitempty"`
	PlannerLogPath   string    `json:"plannerLogPath,omitempty"`
	// Response is the agent's final parsed response content for this run,
	// persisted so JudgeOps can re-read it without the caller needing to
	// thread it through separately.
	Response string `json:"response,omitempty"`
}
