package serialchain

import (
	"context"
	"testing"

	"github.com/devforge/orchestrator/internal/agent"
	"github.com/devforge/orchestrator/internal/depgraph"
	"github.com/devforge/orchestrator/internal/gitfx"
	"github.com/devforge/orchestrator/internal/judge"
	"github.com/devforge/orchestrator/internal/schedulerops"
	"github.com/devforge/orchestrator/internal/store"
	"github.com/devforge/orchestrator/internal/task"
	"github.com/devforge/orchestrator/internal/worker"
)

const successVerdict = `{"success": true, "shouldContinue": false, "shouldReplan": false, "alreadySatisfied": false, "reason": "looks good", "missingRequirements": []}`
const continueThenSuccessA = `{"success": false, "shouldContinue": true, "shouldReplan": false, "alreadySatisfied": false, "reason": "needs more work", "missingRequirements": ["tests"]}`
const rejectVerdict = `{"success": false, "shouldContinue": false, "shouldReplan": false, "alreadySatisfied": false, "reason": "fundamentally broken", "missingRequirements": []}`

func newTestExecutor(t *testing.T, maxRetries int, judgeResponses ...agent.FakeResponse) (*Executor, *store.Store, *gitfx.Fake) {
	t.Helper()
	root := t.TempDir()
	s, err := store.New(root)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	fakeGit := gitfx.NewFake()
	workerRunner := agent.NewFake(agent.FakeResponse{Result: agent.Result{Content: "step done"}})
	w := worker.New(worker.Config{RepoPath: "/repo", RunLogRoot: root + "/runs", DefaultAgent: agent.TypeClaude}, fakeGit, s,
		func(agentType agent.AgentType, sessionID, workDir, model string) (agent.Runner, error) { return workerRunner, nil })

	state := schedulerops.NewState(1)
	schedOps := schedulerops.New(s, state)

	judgeRunner := agent.NewFake(judgeResponses...)
	judgeOps := judge.New(judge.Config{RunLogRoot: root + "/runs"}, s, schedOps, judgeRunner)

	exec := New(Config{MaxRetriesPerStep: maxRetries}, fakeGit, w, judgeOps, schedOps)
	return exec, s, fakeGit
}

func seedChain(t *testing.T, s *store.Store, ids ...string) []*task.Task {
	t.Helper()
	var chain []*task.Task
	var deps []string
	for _, id := range ids {
		tk := &task.Task{
			TaskID:       id,
			Branch:       "task/" + id,
			State:        task.Ready,
			Acceptance:   "step complete",
			Dependencies: append([]string(nil), deps...),
		}
		if err := s.CreateTask(context.Background(), tk); err != nil {
			t.Fatalf("CreateTask(%s): %v", id, err)
		}
		chain = append(chain, tk)
		deps = []string{id}
	}
	return chain
}

func TestRunExecutesChainToCompletion(t *testing.T) {
	ctx := context.Background()
	exec, s, fakeGit := newTestExecutor(t, 3,
		agent.FakeResponse{Result: agent.Result{Content: successVerdict}},
		agent.FakeResponse{Result: agent.Result{Content: successVerdict}},
		agent.FakeResponse{Result: agent.Result{Content: successVerdict}},
	)

	chain := seedChain(t, s, "t1", "t2", "t3")

	if err := exec.Run(ctx, chain, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, id := range []string{"t1", "t2", "t3"} {
		tk, err := s.ReadTask(ctx, id)
		if err != nil {
			t.Fatalf("ReadTask(%s): %v", id, err)
		}
		if tk.State != task.Done {
			t.Errorf("task %q state = %v, want DONE", id, tk.State)
		}
	}
	if !fakeGit.Pushed["task/t2"] || !fakeGit.Pushed["task/t3"] {
		t.Errorf("expected t2 and t3 to push on their own branches, got %+v", fakeGit.Pushed)
	}
}

func TestRunRetriesStepInPlaceOnContinue(t *testing.T) {
	ctx := context.Background()
	exec, s, _ := newTestExecutor(t, 2,
		agent.FakeResponse{Result: agent.Result{Content: continueThenSuccessA}},
		agent.FakeResponse{Result: agent.Result{Content: successVerdict}},
	)

	chain := seedChain(t, s, "t1")

	if err := exec.Run(ctx, chain, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tk, err := s.ReadTask(ctx, "t1")
	if err != nil {
		t.Fatalf("ReadTask: %v", err)
	}
	if tk.State != task.Done {
		t.Errorf("task t1 state = %v, want DONE after in-place retry", tk.State)
	}
}

func TestRunBlocksRemainingOnTerminalFailure(t *testing.T) {
	ctx := context.Background()
	exec, s, _ := newTestExecutor(t, 0,
		agent.FakeResponse{Result: agent.Result{Content: rejectVerdict}},
	)

	chain := seedChain(t, s, "t1", "t2")

	if err := exec.Run(ctx, chain, ""); err == nil {
		t.Fatal("Run: expected error on terminal judge rejection, got nil")
	}

	t1, err := s.ReadTask(ctx, "t1")
	if err != nil {
		t.Fatalf("ReadTask(t1): %v", err)
	}
	if t1.State != task.Blocked || t1.BlockReason != task.BlockJudgeFailed {
		t.Errorf("t1 = %+v, want BLOCKED(JUDGE_FAILED)", t1)
	}

	t2, err := s.ReadTask(ctx, "t2")
	if err != nil {
		t.Fatalf("ReadTask(t2): %v", err)
	}
	if t2.State != task.Blocked || t2.BlockReason != task.BlockDependencyFailed {
		t.Errorf("t2 = %+v, want BLOCKED(DEPENDENCY_FAILED)", t2)
	}
}

func TestDetectSerialChainsFindsTheSeededChain(t *testing.T) {
	ctx := context.Background()
	_, s, _ := newTestExecutor(t, 1, agent.FakeResponse{Result: agent.Result{Content: successVerdict}})
	chain := seedChain(t, s, "t1", "t2", "t3")

	all, err := s.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	graph := depgraph.Build(all)
	chains := graph.DetectSerialChains()
	if len(chains) != 1 || len(chains[0]) != len(chain) {
		t.Fatalf("DetectSerialChains = %v, want one chain of length %d", chains, len(chain))
	}
}
