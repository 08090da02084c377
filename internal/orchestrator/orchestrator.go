// Package orchestrator implements the top-level state machine wiring
// PlannerOps, DependencyGraph, SerialChainExecutor, and DynamicScheduler
// into the Planner -> Executor -> Judge control loop, plus the
// integration-branch maintenance that carries completed work across
// REPLANNING cycles: errgroup-bounded fan-out across serial chains, and a
// small publish/checkpoint helper pair wrapping an optional event bus.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devforge/orchestrator/internal/depgraph"
	"github.com/devforge/orchestrator/internal/dynsched"
	"github.com/devforge/orchestrator/internal/events"
	"github.com/devforge/orchestrator/internal/gitfx"
	"github.com/devforge/orchestrator/internal/judge"
	"github.com/devforge/orchestrator/internal/orcherrors"
	"github.com/devforge/orchestrator/internal/planner"
	"github.com/devforge/orchestrator/internal/schedulerops"
	"github.com/devforge/orchestrator/internal/serialchain"
	"github.com/devforge/orchestrator/internal/store"
	"github.com/devforge/orchestrator/internal/task"
	"github.com/devforge/orchestrator/internal/worker"
)

// State is the top-level state machine's closed set of states.
type State string

const (
	Idle         State = "IDLE"
	Planning     State = "PLANNING"
	Executing    State = "EXECUTING"
	FinalJudging State = "FINAL_JUDGING"
	Replanning   State = "REPLANNING"
	Done         State = "DONE"
	Terminated   State = "TERMINATED"
)

// Config configures Orchestrator.
type Config struct {
	RepoPath   string
	BaseBranch string // default "main"; also the accumulating integration branch

	MaxWorkers         int // default 3
	MaxIterations      int // judgementFeedback.maxIterations budget handed to DynamicScheduler, default 2
	SerialChainRetries int // serialChainTaskRetries, default 3
	MaxReplanCycles    int // bounds REPLANNING before TERMINATED, default 3
}

// Result is Run's terminal outcome.
type Result struct {
	State      State
	Tasks      []*task.Task
	Cycles     int
}

// Orchestrator drives one instruction from IDLE through PLANNING,
// EXECUTING, and FINAL_JUDGING to DONE or TERMINATED, looping through
// REPLANNING when the final-completion judge reports unfinished work and
// the replan budget allows it.
type Orchestrator struct {
	cfg     Config
	tasks   store.TaskStore
	git     gitfx.Effects
	planner *planner.Ops
	worker  *worker.Ops
	judge   *judge.Ops
	bus     *events.EventBus
}

// New builds Orchestrator.
func New(cfg Config, tasks store.TaskStore, git gitfx.Effects, p *planner.Ops, w *worker.Ops, j *judge.Ops) *Orchestrator {
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 3
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 2
	}
	if cfg.SerialChainRetries <= 0 {
		cfg.SerialChainRetries = 3
	}
	if cfg.MaxReplanCycles <= 0 {
		cfg.MaxReplanCycles = 3
	}
	return &Orchestrator{cfg: cfg, tasks: tasks, git: git, planner: p, worker: w, judge: j}
}

// WithEventBus attaches an event bus that every state transition publishes
// to. Optional: a nil bus (the zero value) disables publishing.
func (o *Orchestrator) WithEventBus(bus *events.EventBus) *Orchestrator {
	o.bus = bus
	return o
}

func (o *Orchestrator) publish(sessionID string, from, to State, detail string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.TopicOrchestrator, events.OrchestratorStateEvent{
		SessionID: sessionID, From: string(from), To: string(to), Detail: detail, Timestamp: time.Now().UTC(),
	})
}

// Run decomposes instruction via PlannerOps, executes the resulting task
// set to a fixed point, and asks the final-completion judge whether the
// instruction is satisfied -- replanning and re-executing up to
// cfg.MaxReplanCycles times when it isn't.
func (o *Orchestrator) Run(ctx context.Context, sessionID, instruction string) (*Result, error) {
	state := Idle
	merged := make(map[string]bool)

	transition := func(to State, detail string) {
		o.publish(sessionID, state, to, detail)
		state = to
	}

	transition(Planning, "decomposing instruction")
	if _, err := o.planner.PlanTasks(ctx, sessionID, instruction); err != nil {
		transition(Terminated, err.Error())
		return &Result{State: Terminated}, fmt.Errorf("orchestrator: planning failed: %w", err)
	}

	cycle := 0
	for {
		transition(Executing, fmt.Sprintf("cycle %d", cycle))
		if err := o.execute(ctx); err != nil {
			transition(Terminated, err.Error())
			return &Result{State: Terminated}, fmt.Errorf("orchestrator: execution failed: %w", err)
		}

		transition(FinalJudging, "")
		verdict, completed, _, err := o.judgeCompletion(ctx, instruction)
		if err != nil {
			transition(Terminated, err.Error())
			return &Result{State: Terminated}, fmt.Errorf("orchestrator: final judging failed: %w", err)
		}

		if err := o.mergeIntoIntegrationBranch(completed, merged); err != nil {
			transition(Terminated, err.Error())
			return &Result{State: Terminated}, fmt.Errorf("orchestrator: integration merge failed: %w", err)
		}

		if verdict.IsComplete {
			all, lerr := o.tasks.ListTasks(ctx)
			if lerr != nil {
				return &Result{State: Terminated}, lerr
			}
			transition(Done, fmt.Sprintf("completion score %d", verdict.CompletionScore))
			return &Result{State: Done, Tasks: all, Cycles: cycle}, nil
		}

		cycle++
		if cycle > o.cfg.MaxReplanCycles {
			all, _ := o.tasks.ListTasks(ctx)
			transition(Terminated, "replan budget exhausted")
			return &Result{State: Terminated, Tasks: all, Cycles: cycle}, nil
		}

		transition(Replanning, fmt.Sprintf("%d missing aspect(s)", len(verdict.MissingAspects)))
		if _, err := o.planner.PlanAdditionalTasks(ctx, sessionID, instruction, verdict.MissingAspects); err != nil {
			transition(Terminated, err.Error())
			return &Result{State: Terminated}, fmt.Errorf("orchestrator: continuation planning failed: %w", err)
		}
	}
}

// execute runs the current task set to a fixed point: every maximal serial
// chain whose tasks are all READY and whose first task has no dependencies
// runs first (concurrently with one another, each in its own shared
// worktree), then the remaining DAG runs through DynamicScheduler. A
// schedulerops.Ops/State pair is shared between both so chain steps and
// dynamically-scheduled tasks draw from the same worker-capacity budget.
func (o *Orchestrator) execute(ctx context.Context) error {
	all, err := o.tasks.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	graph := depgraph.Build(all)
	if err := graph.Validate(); err != nil {
		var cyc *orcherrors.CyclicDependency
		if !errors.As(err, &cyc) {
			return fmt.Errorf("invalid dependency graph: %w", err)
		}
		// Cyclic participants are blocked BLOCKED(CYCLIC_DEPENDENCY) by
		// DynamicScheduler before it dispatches anything. No chain run
		// below can contain one: a chain only runs when its first task has
		// no dependencies, and every later link depends on the one before.
	}

	byID := make(map[string]*task.Task, len(all))
	for _, t := range all {
		byID[t.TaskID] = t
	}

	state := schedulerops.NewState(o.cfg.MaxWorkers)
	sched := schedulerops.New(o.tasks, state)

	chainExec := serialchain.New(serialchain.Config{MaxRetriesPerStep: o.cfg.SerialChainRetries}, o.git, o.worker, o.judge, sched)

	g, gctx := errgroup.WithContext(ctx)
	for _, chainIDs := range graph.DetectSerialChains() {
		chain := make([]*task.Task, 0, len(chainIDs))
		for _, id := range chainIDs {
			if t, ok := byID[id]; ok && t.State == task.Ready {
				chain = append(chain, t)
			}
		}
		if len(chain) != len(chainIDs) || len(chain[0].Dependencies) > 0 {
			continue
		}
		g.Go(func() error {
			return chainExec.Run(gctx, chain, o.cfg.BaseBranch)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serial chain execution: %w", err)
	}

	scheduler := dynsched.New(dynsched.Config{MaxWorkers: o.cfg.MaxWorkers, MaxIterations: o.cfg.MaxIterations}, o.tasks, sched, o.worker, o.judge)
	if _, err := scheduler.Run(ctx); err != nil {
		return fmt.Errorf("dynamic scheduler: %w", err)
	}
	return nil
}

// judgeCompletion gathers every DONE/BLOCKED/CANCELLED task's description
// and asks the final-completion judge whether instruction's execution is
// done.
func (o *Orchestrator) judgeCompletion(ctx context.Context, instruction string) (*planner.FinalCompletionVerdict, []*task.Task, []*task.Task, error) {
	all, err := o.tasks.ListTasks(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	var completed, failed []*task.Task
	var completedDesc, failedDesc, summaries []string
	for _, t := range all {
		switch t.State {
		case task.Done:
			completed = append(completed, t)
			completedDesc = append(completedDesc, fmt.Sprintf("%s: %s", t.TaskID, t.Acceptance))
			if t.Summary != "" {
				summaries = append(summaries, t.Summary)
			}
		case task.Blocked, task.Cancelled:
			failed = append(failed, t)
			failedDesc = append(failedDesc, fmt.Sprintf("%s: %s (%s: %s)", t.TaskID, t.Acceptance, t.BlockReason, t.BlockMessage))
		}
	}

	verdict, err := o.planner.JudgeFinalCompletionWithContext(ctx, instruction, completedDesc, failedDesc, summaries, "")
	return verdict, completed, failed, err
}

// mergeIntoIntegrationBranch merges every not-yet-merged completed task's
// branch into cfg.BaseBranch in the main repository checkout. Because
// every zero-dependency task forks its worktree from the main checkout's
// current HEAD, this single accumulating branch is what carries one
// cycle's completed work into the next cycle's newly planned or retried
// tasks, without any separate integration-branch bookkeeping.
func (o *Orchestrator) mergeIntoIntegrationBranch(completed []*task.Task, merged map[string]bool) error {
	for _, t := range completed {
		if merged[t.TaskID] {
			continue
		}
		if _, err := o.git.MergeWorktreeIntoBase(o.cfg.RepoPath, o.cfg.BaseBranch, t.Branch); err != nil {
			return fmt.Errorf("merge %q into %q: %w", t.Branch, o.cfg.BaseBranch, err)
		}
		merged[t.TaskID] = true
	}
	return nil
}
