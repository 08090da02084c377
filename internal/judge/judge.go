// Package judge implements JudgeOps: invoking the Judge agent against a
// completed run's output and acceptance criteria, parsing its verdict, and
// applying the resulting state transition through SchedulerOps. The
// extract-JSON-from-mixed-content fallback is grounded on the pattern used
// to parse Claude CLI responses that mix prose with a JSON payload.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/devforge/orchestrator/internal/agent"
	"github.com/devforge/orchestrator/internal/events"
	"github.com/devforge/orchestrator/internal/jsonextract"
	"github.com/devforge/orchestrator/internal/runlog"
	"github.com/devforge/orchestrator/internal/schedulerops"
	"github.com/devforge/orchestrator/internal/store"
	"github.com/devforge/orchestrator/internal/task"
)

// Verdict is the Judge's structured evaluation of one run.
type Verdict struct {
	Success             bool     `json:"success"`
	ShouldContinue      bool     `json:"shouldContinue"`
	ShouldReplan        bool     `json:"shouldReplan"`
	AlreadySatisfied    bool     `json:"alreadySatisfied"`
	Reason              string   `json:"reason"`
	MissingRequirements []string `json:"missingRequirements"`
}

// Config configures Ops.
type Config struct {
	RunLogRoot   string
	DefaultModel string
}

// Ops implements JudgeOps.
type Ops struct {
	cfg   Config
	tasks store.TaskStore
	sched *schedulerops.Ops
	judge agent.Runner
	bus   *events.EventBus
}

// New builds Ops. judge is the agent.Runner used to evaluate runs (typically
// a dedicated Judge-role Claude/Codex/Goose runner, distinct from the
// runners executing tasks).
func New(cfg Config, tasks store.TaskStore, sched *schedulerops.Ops, judgeRunner agent.Runner) *Ops {
	return &Ops{cfg: cfg, tasks: tasks, sched: sched, judge: judgeRunner}
}

// WithEventBus attaches an event bus that JudgeTask publishes verdicts to.
// Optional: a nil bus (the zero value) disables publishing.
func (o *Ops) WithEventBus(bus *events.EventBus) *Ops {
	o.bus = bus
	return o
}

func (o *Ops) publish(taskID string, v *Verdict) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.TopicJudge, events.JudgeVerdictEvent{
		ID: taskID, Success: v.Success, ShouldContinue: v.ShouldContinue,
		AlreadySatisfied: v.AlreadySatisfied, Reason: v.Reason, Timestamp: time.Now().UTC(),
	})
}

// JudgeTask loads the task and its run's final response plus a
// head/tail-truncated run log, invokes the Judge agent, and returns the
// parsed verdict. A parse or validation failure is not an error: it yields
// a conservative {success: false, shouldContinue: false} verdict so the
// caller blocks the task rather than looping forever on malformed output.
func (o *Ops) JudgeTask(ctx context.Context, taskID, runID string) (*Verdict, error) {
	t, err := o.tasks.ReadTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("judge: read task %q: %w", taskID, err)
	}

	run, err := runlog.ReadMeta(o.cfg.RunLogRoot, runID)
	if err != nil {
		return nil, fmt.Errorf("judge: read run metadata %q: %w", runID, err)
	}

	log, err := runlog.ForJudge(run.LogPath)
	if err != nil {
		return nil, fmt.Errorf("judge: read run log %q: %w", run.LogPath, err)
	}

	prompt := composeJudgePrompt(t, run.Response, log)

	result, err := o.judge.Run(ctx, agent.Request{Prompt: prompt, Model: o.cfg.DefaultModel}, io.Discard)
	if err != nil {
		v := &Verdict{Success: false, ShouldContinue: false, Reason: fmt.Sprintf("judge agent call failed: %v", err)}
		o.publish(taskID, v)
		return v, nil
	}

	verdict, perr := parseVerdict(result.Content)
	if perr != nil {
		v := &Verdict{Success: false, ShouldContinue: false, Reason: fmt.Sprintf("unparseable judge response: %v", perr)}
		o.publish(taskID, v)
		return v, nil
	}
	o.publish(taskID, verdict)
	return verdict, nil
}

func composeJudgePrompt(t *task.Task, finalResponse, log string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Acceptance criteria:\n%s\n\nFinal agent response:\n%s\n\nRun transcript:\n%s\n", t.Acceptance, finalResponse, log)
	b.WriteString("\nRespond with a single JSON object: {\"success\": bool, \"shouldContinue\": bool, \"shouldReplan\": bool, \"alreadySatisfied\": bool, \"reason\": string, \"missingRequirements\": string[]}.\n")
	return b.String()
}

// parseVerdict unmarshals content as the Judge's JSON verdict, falling back
// to extracting the first top-level {...} object (from either a fenced
// code block or mixed prose) when a direct unmarshal fails.
func parseVerdict(content string) (*Verdict, error) {
	var v Verdict
	if err := json.Unmarshal([]byte(content), &v); err == nil {
		return &v, nil
	}

	extracted := jsonextract.FindObject(jsonextract.StripFence(content))
	if extracted == "" {
		return nil, fmt.Errorf("no JSON object found in judge response")
	}
	if err := json.Unmarshal([]byte(extracted), &v); err != nil {
		return nil, fmt.Errorf("unmarshal extracted judge response: %w", err)
	}
	return &v, nil
}

// MarkTaskAsCompleted delegates to SchedulerOps.CompleteTask.
func (o *Ops) MarkTaskAsCompleted(ctx context.Context, taskID, summary string) (*task.Task, error) {
	return o.sched.CompleteTask(ctx, taskID, summary)
}

// MarkTaskAsBlocked delegates to SchedulerOps.BlockTask.
func (o *Ops) MarkTaskAsBlocked(ctx context.Context, taskID string, reason task.BlockReason, message string) (*task.Task, error) {
	return o.sched.BlockTask(ctx, taskID, reason, message)
}

// MarkTaskForContinuation increments the task's judgement iteration and
// transitions it to NEEDS_CONTINUATION, or blocks it with MAX_RETRIES if
// doing so would exceed maxIterations.
func (o *Ops) MarkTaskForContinuation(ctx context.Context, taskID string, v *Verdict, maxIterations int) (*task.Task, error) {
	current, err := o.tasks.ReadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	iteration := 1
	if current.JudgementFeedback != nil {
		iteration = current.JudgementFeedback.Iteration + 1
	}
	if iteration > maxIterations {
		return o.sched.BlockTask(ctx, taskID, task.BlockMaxRetries, fmt.Sprintf("exceeded max iterations (%d)", maxIterations))
	}

	feedback := &task.JudgementFeedback{
		Iteration:           iteration,
		MaxIterations:       maxIterations,
		Reason:              v.Reason,
		MissingRequirements: v.MissingRequirements,
	}
	return o.sched.MarkNeedsContinuation(ctx, taskID, feedback)
}
