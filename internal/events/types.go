package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask         = "task"
	TopicDAG          = "dag"
	TopicJudge        = "judge"
	TopicPlanner      = "planner"
	TopicOrchestrator = "orchestrator"
)

// Event type constants
const (
	EventTypeTaskStarted       = "task.started"
	EventTypeTaskOutput        = "task.output"
	EventTypeTaskCompleted     = "task.completed"
	EventTypeTaskFailed        = "task.failed"
	EventTypeTaskMerged        = "task.merged"
	EventTypeDAGProgress       = "dag.progress"
	EventTypeJudgeVerdict      = "judge.verdict"
	EventTypePlannerCycle      = "planner.cycle"
	EventTypeOrchestratorState = "orchestrator.state"
)

// TaskStartedEvent is published when a task begins execution.
type TaskStartedEvent struct {
	ID        string
	Name      string
	AgentRole string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskOutputEvent is published when a task produces output.
type TaskOutputEvent struct {
	ID        string
	Line      string
	Timestamp time.Time
}

func (e TaskOutputEvent) EventType() string { return EventTypeTaskOutput }
func (e TaskOutputEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ID        string
	Result    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskMergedEvent is published when a task's worktree is merged.
type TaskMergedEvent struct {
	ID            string
	Merged        bool
	ConflictFiles []string
	Timestamp     time.Time
}

func (e TaskMergedEvent) EventType() string { return EventTypeTaskMerged }
func (e TaskMergedEvent) TaskID() string    { return e.ID }

// DAGProgressEvent is published when DAG progress changes.
type DAGProgressEvent struct {
	Total     int
	Completed int
	Running   int
	Failed    int
	Pending   int
	Timestamp time.Time
}

func (e DAGProgressEvent) EventType() string { return EventTypeDAGProgress }
func (e DAGProgressEvent) TaskID() string    { return "" }

// JudgeVerdictEvent is published whenever JudgeOps resolves a run.
type JudgeVerdictEvent struct {
	ID               string
	Success          bool
	ShouldContinue   bool
	AlreadySatisfied bool
	Reason           string
	Timestamp        time.Time
}

func (e JudgeVerdictEvent) EventType() string { return EventTypeJudgeVerdict }
func (e JudgeVerdictEvent) TaskID() string    { return e.ID }

// PlannerCycleEvent is published at each stage of a planning or
// continuation-planning cycle (e.g. "quality_rejected", "accepted",
// "additional_tasks").
type PlannerCycleEvent struct {
	SessionID string
	Stage     string
	Detail    string
	Timestamp time.Time
}

func (e PlannerCycleEvent) EventType() string { return EventTypePlannerCycle }
func (e PlannerCycleEvent) TaskID() string    { return "" }

// OrchestratorStateEvent is published on every top-level state transition.
type OrchestratorStateEvent struct {
	SessionID string
	From      string
	To        string
	Detail    string
	Timestamp time.Time
}

func (e OrchestratorStateEvent) EventType() string { return EventTypeOrchestratorState }
func (e OrchestratorStateEvent) TaskID() string    { return "" }
