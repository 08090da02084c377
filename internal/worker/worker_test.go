package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/devforge/orchestrator/internal/agent"
	"github.com/devforge/orchestrator/internal/basebranch"
	"github.com/devforge/orchestrator/internal/gitfx"
	"github.com/devforge/orchestrator/internal/orcherrors"
	"github.com/devforge/orchestrator/internal/store"
	"github.com/devforge/orchestrator/internal/task"
)

func newTestOps(t *testing.T, responses ...agent.FakeResponse) (*Ops, *gitfx.Fake, *store.Store) {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	fakeGit := gitfx.NewFake()
	fakeRunner := agent.NewFake(responses...)

	cfg := Config{
		RepoPath:     "/repo",
		RunLogRoot:   t.TempDir(),
		DefaultAgent: agent.TypeClaude,
	}
	ops := New(cfg, fakeGit, s, func(agentType agent.AgentType, sessionID, workDir, model string) (agent.Runner, error) {
		return fakeRunner, nil
	})
	return ops, fakeGit, s
}

func TestExecuteTaskWithWorktreeNoDependenciesSucceeds(t *testing.T) {
	ctx := context.Background()
	ops, fakeGit, _ := newTestOps(t, agent.FakeResponse{Result: agent.Result{Content: "done"}})

	tk := &task.Task{TaskID: "t1", Branch: "task/t1", Acceptance: "it works"}
	outcome, err := ops.ExecuteTaskWithWorktree(ctx, tk, &basebranch.Resolution{Kind: basebranch.KindNone})
	if err != nil {
		t.Fatalf("ExecuteTaskWithWorktree: %v", err)
	}
	if !outcome.Success {
		t.Errorf("expected success, got %+v", outcome)
	}
	if !fakeGit.Pushed["task/t1"] {
		t.Errorf("expected branch task/t1 to have been pushed")
	}
}

func TestExecuteTaskWithWorktreeSingleDependency(t *testing.T) {
	ctx := context.Background()
	ops, _, _ := newTestOps(t, agent.FakeResponse{Result: agent.Result{Content: "done"}})

	dep := &task.Task{TaskID: "dep", Branch: "task/dep"}
	if _, err := ops.git.CreateWorktree("/repo", ".worktrees", "dep", dep.Branch, "main"); err != nil {
		t.Fatalf("seed dependency worktree/branch: %v", err)
	}

	tk := &task.Task{TaskID: "t2", Branch: "task/t2", Dependencies: []string{"dep"}}
	outcome, err := ops.ExecuteTaskWithWorktree(ctx, tk, &basebranch.Resolution{Kind: basebranch.KindSingle, BaseBranch: "task/dep"})
	if err != nil {
		t.Fatalf("ExecuteTaskWithWorktree: %v", err)
	}
	if !outcome.Success {
		t.Errorf("expected success, got %+v", outcome)
	}
}

func TestSetupWorktreeWithMergeConflictSpawnsResolutionTask(t *testing.T) {
	ctx := context.Background()
	ops, fakeGit, s := newTestOps(t, agent.FakeResponse{Result: agent.Result{Content: "done"}})

	for _, id := range []string{"d1", "d2"} {
		branch := "task/" + id
		if _, err := fakeGit.CreateWorktree("/repo", ".worktrees", id, branch, "main"); err != nil {
			t.Fatalf("seed dependency %s: %v", id, err)
		}
	}
	fakeGit.ConflictOn["task/t3"] = []string{"conflict.go"}

	tk := &task.Task{TaskID: "t3", Branch: "task/t3", Dependencies: []string{"d1", "d2"}}
	_, err := ops.SetupWorktreeWithMerge(ctx, tk, []string{"task/d1", "task/d2"})

	var confErr *orcherrors.ConflictResolutionRequired
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConflictResolutionRequired, got %v", err)
	}
	if confErr.ParentID != "t3" {
		t.Errorf("ParentID = %q, want t3", confErr.ParentID)
	}

	resolutionTask, rerr := s.ReadTask(ctx, confErr.ResolutionID)
	if rerr != nil {
		t.Fatalf("expected resolution task to be persisted: %v", rerr)
	}
	if resolutionTask.Type != task.TypeIntegration {
		t.Errorf("resolution task type = %q, want integration", resolutionTask.Type)
	}
}

func TestCleanupWorktreeIsBestEffort(t *testing.T) {
	ctx := context.Background()
	ops, _, _ := newTestOps(t)

	if err := ops.CleanupWorktree(ctx, "nonexistent"); err != nil {
		t.Errorf("CleanupWorktree on unknown task should be a no-op, got %v", err)
	}
}

func TestComposePromptIncludesJudgementFeedback(t *testing.T) {
	tk := &task.Task{
		Acceptance: "ship it",
		Context:    "repo context",
		JudgementFeedback: &task.JudgementFeedback{
			Iteration:           2,
			MaxIterations:       3,
			Reason:              "missing tests",
			MissingRequirements: []string{"unit tests for parser"},
		},
	}
	prompt := composePrompt(tk, "")
	if !strings.Contains(prompt, "missing tests") || !strings.Contains(prompt, "unit tests for parser") {
		t.Errorf("composePrompt missing feedback content: %s", prompt)
	}
}
