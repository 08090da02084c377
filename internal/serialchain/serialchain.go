// Package serialchain implements SerialChainExecutor: running a straight
// line of tasks (each depending solely on its predecessor) back-to-back in
// one shared worktree instead of tearing one down and standing another up
// between every link. Chains are identified by depgraph.DetectSerialChains.
package serialchain

import (
	"context"
	"fmt"

	"github.com/devforge/orchestrator/internal/gitfx"
	"github.com/devforge/orchestrator/internal/judge"
	"github.com/devforge/orchestrator/internal/schedulerops"
	"github.com/devforge/orchestrator/internal/task"
	"github.com/devforge/orchestrator/internal/worker"
)

// Config configures Executor.
type Config struct {
	// MaxRetriesPerStep bounds how many times a single chain step is
	// re-run in place after a NEEDS_CONTINUATION verdict. This is a
	// separate counter from JudgementFeedback.MaxIterations: a step inside
	// a chain retries against the shared worktree's accumulated state, not
	// through the dynamic scheduler's claim/release cycle.
	MaxRetriesPerStep int
}

// Executor implements SerialChainExecutor.
type Executor struct {
	cfg    Config
	git    gitfx.Effects
	worker *worker.Ops
	judge  *judge.Ops
	sched  *schedulerops.Ops
}

// New builds Executor.
func New(cfg Config, git gitfx.Effects, w *worker.Ops, j *judge.Ops, sched *schedulerops.Ops) *Executor {
	if cfg.MaxRetriesPerStep == 0 {
		cfg.MaxRetriesPerStep = 3
	}
	return &Executor{cfg: cfg, git: git, worker: w, judge: j, sched: sched}
}

// Run executes chain (ordered t1..tN, each depending solely on its
// predecessor) in one shared worktree: the worktree is created once for
// t1 against baseBranch, every step after the first switches the worktree
// to its own branch via CheckoutNewBranch so changes accumulate across
// steps, and each step is judged before the next begins. A step that ends
// in a terminal failure (judge rejection after exhausting retries, or a
// worktree/agent error) stops the chain; every remaining member is marked
// BLOCKED(DEPENDENCY_FAILED). The shared worktree is always cleaned up.
func (e *Executor) Run(ctx context.Context, chain []*task.Task, baseBranch string) error {
	if len(chain) == 0 {
		return nil
	}

	first := chain[0]
	info, err := e.worker.SetupWorktree(ctx, first, baseBranch)
	if err != nil {
		e.blockRemaining(ctx, chain, fmt.Sprintf("chain worktree setup failed: %v", err))
		return fmt.Errorf("serialchain: setup worktree for %q: %w", first.TaskID, err)
	}
	defer func() {
		_ = e.worker.CleanupWorktree(ctx, first.TaskID)
	}()

	var previousStepSummary string
	for i, t := range chain {
		if i > 0 {
			if err := e.git.CheckoutNewBranch(info.Path, t.Branch); err != nil {
				e.blockRemaining(ctx, chain[i:], fmt.Sprintf("checkout branch %q: %v", t.Branch, err))
				return fmt.Errorf("serialchain: checkout branch %q for %q: %w", t.Branch, t.TaskID, err)
			}
		}

		summary, err := e.runStep(ctx, t, info.Path, previousStepSummary)
		if err != nil {
			e.blockRemaining(ctx, chain[i+1:], fmt.Sprintf("chain stopped at %q: %v", t.TaskID, err))
			return err
		}
		previousStepSummary = summary
	}
	return nil
}

// runStep claims t, runs it in worktreePath up to cfg.MaxRetriesPerStep+1
// times, and returns a compressed summary of the judge's verdict for the
// next step's prompt. The task ends DONE on success or BLOCKED on terminal
// failure; either way its scheduler slot is released before returning.
func (e *Executor) runStep(ctx context.Context, t *task.Task, worktreePath, previousStepSummary string) (string, error) {
	workerID := fmt.Sprintf("serialchain-%s", t.TaskID)
	claimed, err := e.sched.ClaimTask(ctx, t.TaskID, workerID)
	if err != nil {
		return "", fmt.Errorf("serialchain: claim %q: %w", t.TaskID, err)
	}
	defer e.sched.Release(workerID)

	feedback := previousStepSummary
	for attempt := 0; attempt <= e.cfg.MaxRetriesPerStep; attempt++ {
		outcome, err := e.worker.ExecuteTaskInExistingWorktree(ctx, claimed, worktreePath, feedback)
		if err != nil {
			_, _ = e.sched.BlockTask(ctx, t.TaskID, task.BlockSystemErrorTransient, err.Error())
			return "", fmt.Errorf("execute %q: %w", t.TaskID, err)
		}
		if !outcome.Success {
			_, _ = e.sched.BlockTask(ctx, t.TaskID, task.BlockSystemErrorTransient, outcome.ErrorMessage)
			return "", fmt.Errorf("run failed for %q: %s", t.TaskID, outcome.ErrorMessage)
		}

		verdict, err := e.judge.JudgeTask(ctx, t.TaskID, outcome.RunID)
		if err != nil {
			_, _ = e.sched.BlockTask(ctx, t.TaskID, task.BlockSystemErrorTransient, err.Error())
			return "", fmt.Errorf("judge %q: %w", t.TaskID, err)
		}

		if verdict.Success || verdict.AlreadySatisfied {
			if _, err := e.judge.MarkTaskAsCompleted(ctx, t.TaskID, verdict.Reason); err != nil {
				return "", fmt.Errorf("complete %q: %w", t.TaskID, err)
			}
			return summarize(t.TaskID, verdict.Reason), nil
		}

		if verdict.ShouldContinue && attempt < e.cfg.MaxRetriesPerStep {
			feedback = summarize(t.TaskID, verdict.Reason)
			continue
		}

		reason := task.BlockJudgeFailed
		if attempt >= e.cfg.MaxRetriesPerStep {
			reason = task.BlockMaxRetries
		}
		if _, err := e.judge.MarkTaskAsBlocked(ctx, t.TaskID, reason, verdict.Reason); err != nil {
			return "", fmt.Errorf("block %q: %w", t.TaskID, err)
		}
		return "", fmt.Errorf("judge rejected %q: %s", t.TaskID, verdict.Reason)
	}
	return "", fmt.Errorf("serialchain: unreachable: exhausted retries for %q", t.TaskID)
}

// summarize compresses a step's outcome into the short note handed to the
// next step's prompt.
func summarize(taskID, reason string) string {
	if reason == "" {
		return fmt.Sprintf("step %s completed", taskID)
	}
	return fmt.Sprintf("step %s: %s", taskID, reason)
}

// blockRemaining marks every task in the given tail of the chain as
// BLOCKED(DEPENDENCY_FAILED), skipping any already in a terminal state.
func (e *Executor) blockRemaining(ctx context.Context, tail []*task.Task, message string) {
	for _, t := range tail {
		if t.State.IsTerminal() || t.State == task.Blocked {
			continue
		}
		_, _ = e.sched.BlockTask(ctx, t.TaskID, task.BlockDependencyFailed, message)
	}
}
