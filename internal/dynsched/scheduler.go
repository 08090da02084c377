// Package dynsched implements DynamicScheduler: the parallel DAG execution
// loop that admits ready tasks up to maxWorkers, dispatches each through
// WorkerOps and JudgeOps on its own goroutine, collects outcomes over a
// buffered results channel, propagates failures to dependents, and detects
// deadlock. The non-blocking buffered-channel collection pattern is
// grounded on the orchestrator's question/answer channel, generalized from
// a request/response rendezvous to a fire-and-forget completion feed.
package dynsched

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/devforge/orchestrator/internal/basebranch"
	"github.com/devforge/orchestrator/internal/depgraph"
	"github.com/devforge/orchestrator/internal/judge"
	"github.com/devforge/orchestrator/internal/orcherrors"
	"github.com/devforge/orchestrator/internal/schedulerops"
	"github.com/devforge/orchestrator/internal/store"
	"github.com/devforge/orchestrator/internal/task"
	"github.com/devforge/orchestrator/internal/worker"
)

// pollInterval bounds how long the loop waits for any running task to
// finish before re-checking for newly executable work.
const pollInterval = 100 * time.Millisecond

// outcome is one task's finished execution, fed back to the main loop over
// the results channel.
type outcome struct {
	taskID  string
	success bool
	err     error
}

// Config configures Scheduler.
type Config struct {
	MaxWorkers    int
	MaxIterations int // default judgementFeedback.maxIterations for new continuations
}

// Scheduler implements DynamicScheduler.
type Scheduler struct {
	cfg     Config
	tasks   store.TaskStore
	sched   *schedulerops.Ops
	worker  *worker.Ops
	judge   *judge.Ops
	lockMgr *schedulerops.ResourceLockManager

	results chan outcome
}

// New builds a Scheduler wired to the task store and the Worker/Judge/
// SchedulerOps components it drives.
func New(cfg Config, tasks store.TaskStore, sched *schedulerops.Ops, w *worker.Ops, j *judge.Ops) *Scheduler {
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 2
	}
	return &Scheduler{
		cfg:     cfg,
		tasks:   tasks,
		sched:   sched,
		worker:  w,
		judge:   j,
		lockMgr: schedulerops.NewResourceLockManager(),
		results: make(chan outcome, cfg.MaxWorkers*2),
	}
}

// Run drives the scheduling loop to completion: every task reaches a
// terminal state (DONE, BLOCKED, or CANCELLED) or the context is
// cancelled. Returns the final set of all tasks.
func (s *Scheduler) Run(ctx context.Context) ([]*task.Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		all, err := s.tasks.ListTasks(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynsched: list tasks: %w", err)
		}

		if s.isComplete(all) && s.sched.RunningCount() == 0 {
			return all, nil
		}

		if err := s.drainContinuations(ctx, all); err != nil {
			return nil, err
		}

		// Re-read after resets above may have changed state.
		all, err = s.tasks.ListTasks(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynsched: list tasks: %w", err)
		}

		graph := depgraph.Build(all)
		if err := graph.Validate(); err != nil {
			var cyc *orcherrors.CyclicDependency
			if !errors.As(err, &cyc) {
				return nil, fmt.Errorf("dynsched: invalid dependency graph: %w", err)
			}
			cyclicIDs := graph.AllCyclicIDs()
			if err := s.blockCyclic(ctx, cyclicIDs, all); err != nil {
				return nil, err
			}
			all = excludeIDs(all, cyclicIDs)
			graph = depgraph.Build(all)
			if err := graph.Validate(); err != nil {
				return nil, fmt.Errorf("dynsched: invalid dependency graph after blocking cycle: %w", err)
			}
		}

		if err := s.blockStaleDependents(ctx, all); err != nil {
			return nil, err
		}

		executable := s.computeExecutable(all)
		runningCount := s.sched.RunningCount()
		slots := s.cfg.MaxWorkers - runningCount

		pendingCount := s.countPending(all)

		if len(executable) == 0 && runningCount == 0 && pendingCount > 0 {
			if err := s.blockUnschedulable(ctx, all); err != nil {
				return nil, err
			}
			continue
		}

		if (len(executable) == 0 || slots <= 0) && runningCount > 0 {
			s.awaitOutcome(ctx, pollInterval)
			s.drainOutcomes(ctx, graph)
			continue
		}

		if slots > 0 && len(executable) > 0 {
			n := slots
			if n > len(executable) {
				n = len(executable)
			}
			for _, t := range executable[:n] {
				s.dispatch(ctx, t)
			}
		}

		s.drainOutcomes(ctx, graph)
	}
}

// isComplete reports whether no task remains that could still make
// progress: nothing is READY, NEEDS_CONTINUATION, or RUNNING. DONE,
// BLOCKED, and CANCELLED tasks have all reached a fixed point for this run
// (BLOCKED only becomes re-schedulable through an explicit ResetTaskToReady
// call outside this loop, e.g. from continuation planning).
func (s *Scheduler) isComplete(all []*task.Task) bool {
	for _, t := range all {
		switch t.State {
		case task.Ready, task.NeedsContinuation, task.Running:
			return false
		}
	}
	return true
}

func (s *Scheduler) countPending(all []*task.Task) int {
	n := 0
	for _, t := range all {
		if t.State == task.Ready || t.State == task.NeedsContinuation {
			n++
		}
	}
	return n
}

// drainContinuations resets every NEEDS_CONTINUATION task back to READY so
// it re-enters the executable pool.
func (s *Scheduler) drainContinuations(ctx context.Context, all []*task.Task) error {
	for _, t := range all {
		if t.State != task.NeedsContinuation {
			continue
		}
		if _, err := s.sched.ResetTaskToReady(ctx, t.TaskID); err != nil {
			return fmt.Errorf("dynsched: drain continuation for %q: %w", t.TaskID, err)
		}
	}
	return nil
}

// computeExecutable returns READY tasks whose every dependency is DONE,
// sorted by task id for deterministic dispatch order. A BLOCKED dependency
// does not satisfy: blockStaleDependents has already demoted any dependent
// of a BLOCKED task to BLOCKED(DEPENDENCY_FAILED) before this runs, so a
// READY task surviving to this point either has no BLOCKED ancestor or has
// already been excluded.
func (s *Scheduler) computeExecutable(all []*task.Task) []*task.Task {
	byID := make(map[string]*task.Task, len(all))
	for _, t := range all {
		byID[t.TaskID] = t
	}

	var executable []*task.Task
	for _, t := range all {
		if t.State != task.Ready {
			continue
		}
		satisfied := true
		for _, depID := range t.Dependencies {
			dep, ok := byID[depID]
			if !ok || dep.State != task.Done {
				satisfied = false
				break
			}
		}
		if satisfied {
			executable = append(executable, t)
		}
	}
	sort.Slice(executable, func(i, j int) bool { return executable[i].TaskID < executable[j].TaskID })
	return executable
}

// blockStaleDependents marks READY/NEEDS_CONTINUATION tasks whose
// dependency is already BLOCKED as BLOCKED(DEPENDENCY_FAILED), synchronously
// and ahead of computeExecutable. Failure propagation otherwise happens in
// drainOutcomes after dispatch, which leaves a window where a dependency
// that just transitioned to BLOCKED this tick hasn't been drained yet and
// its dependent would slip through computeExecutable and start running.
func (s *Scheduler) blockStaleDependents(ctx context.Context, all []*task.Task) error {
	byID := make(map[string]*task.Task, len(all))
	for _, t := range all {
		byID[t.TaskID] = t
	}
	for _, t := range all {
		if t.State != task.Ready && t.State != task.NeedsContinuation {
			continue
		}
		for _, depID := range t.Dependencies {
			dep, ok := byID[depID]
			if !ok || dep.State != task.Blocked {
				continue
			}
			if _, err := s.sched.BlockTask(ctx, t.TaskID, task.BlockDependencyFailed, fmt.Sprintf("dependency %q blocked", depID)); err != nil {
				return fmt.Errorf("dynsched: block stale dependent %q of blocked %q: %w", t.TaskID, depID, err)
			}
			break
		}
	}
	return nil
}

// blockCyclic marks every id participating in a dependency cycle as
// BLOCKED(CYCLIC_DEPENDENCY) before any execution starts, per invariant P5.
// Already-terminal or already-blocked tasks are left alone.
func (s *Scheduler) blockCyclic(ctx context.Context, ids []string, all []*task.Task) error {
	byID := make(map[string]*task.Task, len(all))
	for _, t := range all {
		byID[t.TaskID] = t
	}
	for _, id := range ids {
		t, ok := byID[id]
		if !ok || t.State.IsTerminal() || t.State == task.Blocked {
			continue
		}
		if _, err := s.sched.BlockTask(ctx, id, task.BlockCyclicDependency, "task participates in a dependency cycle"); err != nil {
			return fmt.Errorf("dynsched: block cyclic task %q: %w", id, err)
		}
	}
	return nil
}

// excludeIDs returns all filtered to drop every task whose id is in ids.
func excludeIDs(all []*task.Task, ids []string) []*task.Task {
	if len(ids) == 0 {
		return all
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := make([]*task.Task, 0, len(all))
	for _, t := range all {
		if !drop[t.TaskID] {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *Scheduler) blockUnschedulable(ctx context.Context, all []*task.Task) error {
	for _, t := range all {
		if t.State != task.Ready && t.State != task.NeedsContinuation {
			continue
		}
		if _, err := s.sched.BlockTask(ctx, t.TaskID, task.BlockUnschedulable, "no executable task and no running task remain"); err != nil {
			return fmt.Errorf("dynsched: block unschedulable task %q: %w", t.TaskID, err)
		}
	}
	return nil
}

// dispatch claims taskID and spawns its execution goroutine. Claim failures
// (lost race, capacity exhausted between computeExecutable and now) are
// swallowed: the task simply stays READY and is retried next tick.
func (s *Scheduler) dispatch(ctx context.Context, t *task.Task) {
	workerID := fmt.Sprintf("worker-%s", t.TaskID)
	claimed, err := s.sched.ClaimTask(ctx, t.TaskID, workerID)
	if err != nil {
		return
	}

	s.lockMgr.LockAll(claimed.ScopePaths)

	go func() {
		defer s.sched.Release(workerID)
		defer s.lockMgr.UnlockAll(claimed.ScopePaths)
		defer func() {
			if err := s.worker.CleanupWorktree(ctx, claimed.TaskID); err != nil {
				log.Printf("dynsched: cleanup worktree for %q: %v", claimed.TaskID, err)
			}
		}()

		s.results <- s.execute(ctx, claimed)
	}()
}

func (s *Scheduler) execute(ctx context.Context, t *task.Task) outcome {
	resolution, err := s.resolveBaseBranch(ctx, t)
	if err != nil {
		_, _ = s.sched.BlockTask(ctx, t.TaskID, task.BlockSystemErrorTransient, err.Error())
		return outcome{taskID: t.TaskID, success: false, err: err}
	}

	runOutcome, err := s.worker.ExecuteTaskWithWorktree(ctx, t, resolution)
	if err != nil {
		var confErr *orcherrors.ConflictResolutionRequired
		if errors.As(err, &confErr) {
			// Not a failure of the parent: worker.go already persisted the
			// resolution task as an independent READY task. Re-queue the
			// parent via NEEDS_CONTINUATION so it retries the merge once
			// the resolution task's branch carries the fix.
			iteration := 0
			if t.JudgementFeedback != nil {
				iteration = t.JudgementFeedback.Iteration
			}
			feedback := &task.JudgementFeedback{
				Iteration:     iteration,
				MaxIterations: s.cfg.MaxIterations,
				Reason:        fmt.Sprintf("awaiting conflict-resolution task %q on %q", confErr.ResolutionID, confErr.TempBranch),
			}
			if _, merr := s.sched.MarkNeedsContinuation(ctx, t.TaskID, feedback); merr != nil {
				return outcome{taskID: t.TaskID, success: false, err: merr}
			}
			return outcome{taskID: t.TaskID, success: true}
		}
		_, _ = s.sched.BlockTask(ctx, t.TaskID, task.BlockSystemErrorTransient, err.Error())
		return outcome{taskID: t.TaskID, success: false, err: err}
	}
	if !runOutcome.Success {
		_, _ = s.sched.BlockTask(ctx, t.TaskID, task.BlockSystemErrorTransient, runOutcome.ErrorMessage)
		return outcome{taskID: t.TaskID, success: false, err: fmt.Errorf("run failed: %s", runOutcome.ErrorMessage)}
	}

	verdict, err := s.judge.JudgeTask(ctx, t.TaskID, runOutcome.RunID)
	if err != nil {
		_, _ = s.sched.BlockTask(ctx, t.TaskID, task.BlockSystemErrorTransient, err.Error())
		return outcome{taskID: t.TaskID, success: false, err: err}
	}

	switch {
	case verdict.Success || verdict.AlreadySatisfied:
		if _, err := s.judge.MarkTaskAsCompleted(ctx, t.TaskID, verdict.Reason); err != nil {
			return outcome{taskID: t.TaskID, success: false, err: err}
		}
		return outcome{taskID: t.TaskID, success: true}
	case verdict.ShouldContinue:
		if _, err := s.judge.MarkTaskForContinuation(ctx, t.TaskID, verdict, s.cfg.MaxIterations); err != nil {
			return outcome{taskID: t.TaskID, success: false, err: err}
		}
		return outcome{taskID: t.TaskID, success: true}
	default:
		if _, err := s.judge.MarkTaskAsBlocked(ctx, t.TaskID, task.BlockJudgeFailed, verdict.Reason); err != nil {
			return outcome{taskID: t.TaskID, success: false, err: err}
		}
		return outcome{taskID: t.TaskID, success: false, err: fmt.Errorf("judge rejected: %s", verdict.Reason)}
	}
}

func (s *Scheduler) resolveBaseBranch(ctx context.Context, t *task.Task) (*basebranch.Resolution, error) {
	resolver := basebranch.New(func(id string) (*task.Task, error) {
		return s.tasks.ReadTask(ctx, id)
	})
	return resolver.Resolve(t)
}

// awaitOutcome blocks up to d for at least one outcome to arrive, or until
// ctx is cancelled, without consuming it (drainOutcomes does that).
func (s *Scheduler) awaitOutcome(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case o := <-s.results:
		s.results <- o // put it back for drainOutcomes to process uniformly
	case <-timer.C:
	case <-ctx.Done():
	}
}

// drainOutcomes non-blockingly consumes every outcome currently queued,
// propagating dependency-failure blocking for each failed task.
func (s *Scheduler) drainOutcomes(ctx context.Context, graph *depgraph.Graph) {
	for {
		select {
		case o := <-s.results:
			if !o.success {
				s.blockDependents(ctx, graph, o.taskID)
			}
		default:
			return
		}
	}
}

// blockDependents marks every task transitively depending on failedID as
// BLOCKED(DEPENDENCY_FAILED), mirroring computeBlockedTasks's reverse
// adjacency closure.
func (s *Scheduler) blockDependents(ctx context.Context, graph *depgraph.Graph, failedID string) {
	for _, depID := range graph.TransitiveBlockedClosure(failedID) {
		t, err := s.tasks.ReadTask(ctx, depID)
		if err != nil || t.State.IsTerminal() {
			continue
		}
		if _, err := s.sched.BlockTask(ctx, depID, task.BlockDependencyFailed, fmt.Sprintf("dependency %q failed", failedID)); err != nil {
			log.Printf("dynsched: block dependent %q after %q failed: %v", depID, failedID, err)
		}
	}
}
