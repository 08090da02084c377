package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devforge/orchestrator/internal/agent"
	"github.com/devforge/orchestrator/internal/basebranch"
	"github.com/devforge/orchestrator/internal/gitfx"
	"github.com/devforge/orchestrator/internal/orcherrors"
	"github.com/devforge/orchestrator/internal/runlog"
	"github.com/devforge/orchestrator/internal/task"
)

// worktreePath returns the predictable path a task's worktree lives at,
// rooted under the repo's configured worktree directory.
func (o *Ops) worktreePath(taskID string) string {
	return filepath.Join(o.cfg.RepoPath, o.cfg.WorktreeDir, taskID)
}

// SetupWorktree creates (or reuses) the worktree for task, branching from
// baseBranch or HEAD if baseBranch is empty.
func (o *Ops) SetupWorktree(ctx context.Context, t *task.Task, baseBranch string) (*gitfx.WorktreeInfo, error) {
	path := o.worktreePath(t.TaskID)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		head, herr := o.git.HeadCommit(path)
		if herr != nil {
			return nil, herr
		}
		return &gitfx.WorktreeInfo{Path: path, Branch: t.Branch, TaskID: t.TaskID, Head: head}, nil
	}

	if baseBranch == "" {
		baseBranch = "HEAD"
	}
	return o.git.CreateWorktree(o.cfg.RepoPath, o.cfg.WorktreeDir, t.TaskID, t.Branch, baseBranch)
}

// SetupWorktreeWithMerge sets up t's worktree from the first dependency
// branch, then sequentially merges the remaining dependency branches
// inside the worktree. On the first conflicting merge it reads the
// three-way conflict content for every affected path, aborts the merge,
// persists a new conflict-resolution task, and fails with
// *orcherrors.ConflictResolutionRequired.
func (o *Ops) SetupWorktreeWithMerge(ctx context.Context, t *task.Task, dependencyBranches []string) (*gitfx.WorktreeInfo, error) {
	if len(dependencyBranches) == 0 {
		return o.SetupWorktree(ctx, t, "")
	}

	info, err := o.SetupWorktree(ctx, t, dependencyBranches[0])
	if err != nil {
		return nil, err
	}

	for _, branch := range dependencyBranches[1:] {
		outcome, err := o.git.MergeBaseIntoWorktree(info.Path, branch)
		if err != nil {
			_ = o.git.AbortMerge(info.Path)
			_ = o.CleanupWorktree(ctx, t.TaskID)
			return nil, fmt.Errorf("worker: merge %q into %q: %w", branch, info.Branch, err)
		}
		if !outcome.Merged {
			blobs, rerr := o.git.ReadConflictBlobs(info.Path, outcome.ConflictFiles)
			if rerr != nil {
				_ = o.git.AbortMerge(info.Path)
				return nil, fmt.Errorf("worker: read conflict blobs: %w", rerr)
			}
			_ = o.git.AbortMerge(info.Path)

			resolutionID := fmt.Sprintf("%s-resolve-%s", t.TaskID, uuid.New().String()[:8])
			tempBranch := fmt.Sprintf("task/%s", resolutionID)
			resolutionTask := &task.Task{
				TaskID:       resolutionID,
				RepoPath:     t.RepoPath,
				Branch:       tempBranch,
				ScopePaths:   outcome.ConflictFiles,
				Acceptance:   "all listed files resolved and the project builds",
				Type:         task.TypeIntegration,
				Context:      buildConflictContext(blobs),
				Dependencies: nil,
				State:        task.Ready,
			}
			if cerr := o.tasks.CreateTask(ctx, resolutionTask); cerr != nil {
				return nil, fmt.Errorf("worker: persist conflict-resolution task: %w", cerr)
			}

			return nil, &orcherrors.ConflictResolutionRequired{
				ParentID:     t.TaskID,
				ResolutionID: resolutionID,
				TempBranch:   tempBranch,
				Paths:        outcome.ConflictFiles,
			}
		}
	}
	return info, nil
}

// buildConflictContext assembles a structured prompt containing all three
// sides of every conflict, for the resolution task's agent run.
func buildConflictContext(blobs []gitfx.ConflictBlobs) string {
	var b strings.Builder
	b.WriteString("Resolve the following merge conflicts. For each file, reconcile the base, ours, and theirs content into one correct version.\n\n")
	for _, blob := range blobs {
		fmt.Fprintf(&b, "## %s\n\n### base\n%s\n\n### ours\n%s\n\n### theirs\n%s\n\n", blob.Path, blob.Base, blob.Ours, blob.Theirs)
	}
	return b.String()
}

// ExecuteTaskWithWorktree dispatches on resolution.Kind to set up the
// worktree, then runs the task's agent, commits, and pushes.
func (o *Ops) ExecuteTaskWithWorktree(ctx context.Context, t *task.Task, resolution *basebranch.Resolution) (*Outcome, error) {
	var info *gitfx.WorktreeInfo
	var err error

	switch resolution.Kind {
	case basebranch.KindNone:
		info, err = o.SetupWorktree(ctx, t, "")
	case basebranch.KindSingle:
		info, err = o.SetupWorktree(ctx, t, resolution.BaseBranch)
	case basebranch.KindMulti:
		info, err = o.SetupWorktreeWithMerge(ctx, t, resolution.DependencyBranches)
	default:
		return nil, fmt.Errorf("worker: unknown base branch resolution kind %q", resolution.Kind)
	}
	if err != nil {
		return nil, err
	}

	return o.executeInWorktree(ctx, t, info.Path, "")
}

// ExecuteTaskInExistingWorktree runs t inside an already-prepared shared
// worktree, used by SerialChainExecutor. The branch must already be
// checked out by the caller. previousStepSummary, when non-empty, is a
// compressed summary of the previous chain step's log/judgement, given to
// the agent as context for what already happened in this worktree.
func (o *Ops) ExecuteTaskInExistingWorktree(ctx context.Context, t *task.Task, worktreePath, previousStepSummary string) (*Outcome, error) {
	return o.executeInWorktree(ctx, t, worktreePath, previousStepSummary)
}

func (o *Ops) executeInWorktree(ctx context.Context, t *task.Task, worktreePath, previousStepSummary string) (*Outcome, error) {
	runID := fmt.Sprintf("run-%s-%d", t.TaskID, time.Now().UnixMilli())

	logWriter, err := runlog.Open(o.cfg.RunLogRoot, runID)
	if err != nil {
		return nil, fmt.Errorf("worker: open run log: %w", err)
	}
	defer logWriter.Close()

	run := &task.Run{
		RunID:     runID,
		TaskID:    t.TaskID,
		AgentType: string(o.cfg.DefaultAgent),
		LogPath:   logWriter.Path(),
		StartedAt: time.Now().UTC(),
		Status:    task.RunFailure,
	}
	_ = runlog.WriteMeta(o.cfg.RunLogRoot, run)
	logWriter.WriteLine(fmt.Sprintf("=== run %s for task %s ===", runID, t.TaskID))

	prompt := composePrompt(t, previousStepSummary)

	runnerCtx := ctx
	var cancel context.CancelFunc
	if o.cfg.RunTimeout > 0 {
		runnerCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	runner, err := o.newRun(o.cfg.DefaultAgent, "", worktreePath, o.cfg.DefaultModel)
	if err != nil {
		run.Status = task.RunFailure
		run.ErrorMessage = err.Error()
		run.FinishedAt = time.Now().UTC()
		_ = runlog.WriteMeta(o.cfg.RunLogRoot, run)
		return &Outcome{RunID: runID, Success: false, ErrorMessage: err.Error(), LogPath: run.LogPath, WorktreePath: worktreePath}, err
	}
	defer runner.Close()

	cb := o.breakers.Get(o.cfg.DefaultAgent)
	req := agent.Request{Prompt: prompt, WorkDir: worktreePath, Model: o.cfg.DefaultModel}
	result, runErr := agent.RunWithResilience(runnerCtx, runner, req, logWriter, cb, o.retry)
	if runErr != nil {
		run.Status = task.RunFailure
		run.ErrorMessage = runErr.Error()
		run.FinishedAt = time.Now().UTC()
		_ = runlog.WriteMeta(o.cfg.RunLogRoot, run)
		return &Outcome{RunID: runID, Success: false, ErrorMessage: runErr.Error(), LogPath: run.LogPath, WorktreePath: worktreePath}, nil
	}

	commitMsg := fmt.Sprintf("task %s: %s", t.TaskID, t.Branch)
	if _, err := o.git.Commit(worktreePath, commitMsg); err != nil {
		run.Status = task.RunFailure
		run.ErrorMessage = err.Error()
		run.FinishedAt = time.Now().UTC()
		_ = runlog.WriteMeta(o.cfg.RunLogRoot, run)
		return &Outcome{RunID: runID, Success: false, ErrorMessage: err.Error(), LogPath: run.LogPath, WorktreePath: worktreePath}, nil
	}

	if err := o.git.Push(worktreePath, t.Branch); err != nil {
		logWriter.WriteLine(fmt.Sprintf("push failed (continuing): %v", err))
	}

	run.Status = task.RunSuccess
	run.FinishedAt = time.Now().UTC()
	run.Response = result.Content
	_ = runlog.WriteMeta(o.cfg.RunLogRoot, run)

	return &Outcome{RunID: runID, Success: true, LogPath: run.LogPath, WorktreePath: worktreePath}, nil
}

// composePrompt builds the agent prompt from the task's acceptance and
// context, plus a "previous attempt" block when judgement feedback from a
// prior iteration is present, and a "previous step" block when
// previousStepSummary (set by SerialChainExecutor between chain steps
// sharing a worktree) is non-empty.
func composePrompt(t *task.Task, previousStepSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Acceptance criteria:\n%s\n\nContext:\n%s\n", t.Acceptance, t.Context)
	if previousStepSummary != "" {
		fmt.Fprintf(&b, "\nPrevious step in this chain:\n%s\n", previousStepSummary)
	}
	if t.JudgementFeedback != nil {
		fmt.Fprintf(&b, "\nPrevious attempt (iteration %d/%d) was rejected: %s\n",
			t.JudgementFeedback.Iteration, t.JudgementFeedback.MaxIterations, t.JudgementFeedback.Reason)
		if len(t.JudgementFeedback.MissingRequirements) > 0 {
			b.WriteString("Missing requirements:\n")
			for _, req := range t.JudgementFeedback.MissingRequirements {
				fmt.Fprintf(&b, "- %s\n", req)
			}
		}
	}
	return b.String()
}

// ContinueTask looks for t's existing worktree at its predictable path
// (worktreePath) and resumes there; if none exists it falls back to a fresh
// ExecuteTaskWithWorktree using resolution.
func (o *Ops) ContinueTask(ctx context.Context, t *task.Task, resolution *basebranch.Resolution) (*Outcome, error) {
	path := o.worktreePath(t.TaskID)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return o.executeInWorktree(ctx, t, path, "")
	}
	return o.ExecuteTaskWithWorktree(ctx, t, resolution)
}

// CleanupWorktree removes a task's worktree; its branch is left in place. Best-effort: it is
// always safe to call even if setup never completed, and callers should
// invoke it from a defer/finally regardless of execution outcome.
func (o *Ops) CleanupWorktree(ctx context.Context, taskID string) error {
	path := o.worktreePath(taskID)
	if err := o.git.RemoveWorktree(o.cfg.RepoPath, path); err != nil {
		return err
	}
	return nil
}
