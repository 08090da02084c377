package dynsched

import (
	"context"
	"testing"

	"github.com/devforge/orchestrator/internal/agent"
	"github.com/devforge/orchestrator/internal/gitfx"
	"github.com/devforge/orchestrator/internal/judge"
	"github.com/devforge/orchestrator/internal/schedulerops"
	"github.com/devforge/orchestrator/internal/store"
	"github.com/devforge/orchestrator/internal/task"
	"github.com/devforge/orchestrator/internal/worker"
)

const successVerdict = `{"success": true, "shouldContinue": false, "shouldReplan": false, "alreadySatisfied": false, "reason": "ok", "missingRequirements": []}`

func newTestScheduler(t *testing.T, maxWorkers int) (*Scheduler, *store.Store, *gitfx.Fake) {
	t.Helper()
	root := t.TempDir()
	s, err := store.New(root)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	fakeGit := gitfx.NewFake()
	workerRunner := agent.NewFake(agent.FakeResponse{Result: agent.Result{Content: "implementation done"}})
	w := worker.New(worker.Config{RepoPath: "/repo", RunLogRoot: root + "/runs", DefaultAgent: agent.TypeClaude}, fakeGit, s,
		func(agentType agent.AgentType, sessionID, workDir, model string) (agent.Runner, error) { return workerRunner, nil })

	state := schedulerops.NewState(maxWorkers)
	schedOps := schedulerops.New(s, state)

	judgeRunner := agent.NewFake(agent.FakeResponse{Result: agent.Result{Content: successVerdict}})
	judgeOps := judge.New(judge.Config{RunLogRoot: root + "/runs"}, s, schedOps, judgeRunner)

	sched := New(Config{MaxWorkers: maxWorkers}, s, schedOps, w, judgeOps)
	return sched, s, fakeGit
}

func TestSchedulerRunsIndependentTasksToCompletion(t *testing.T) {
	ctx := context.Background()
	sched, s, _ := newTestScheduler(t, 2)

	for _, id := range []string{"a", "b"} {
		if err := s.CreateTask(ctx, &task.Task{TaskID: id, Branch: "task/" + id, State: task.Ready, Acceptance: "done"}); err != nil {
			t.Fatalf("CreateTask(%s): %v", id, err)
		}
	}

	all, err := sched.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, tk := range all {
		if tk.State != task.Done {
			t.Errorf("task %q state = %v, want DONE", tk.TaskID, tk.State)
		}
	}
}

func TestSchedulerRunsDependencyChain(t *testing.T) {
	ctx := context.Background()
	sched, s, _ := newTestScheduler(t, 2)

	if err := s.CreateTask(ctx, &task.Task{TaskID: "a", Branch: "task/a", State: task.Ready, Acceptance: "done"}); err != nil {
		t.Fatalf("CreateTask(a): %v", err)
	}
	if err := s.CreateTask(ctx, &task.Task{TaskID: "b", Branch: "task/b", State: task.Ready, Dependencies: []string{"a"}, Acceptance: "done"}); err != nil {
		t.Fatalf("CreateTask(b): %v", err)
	}

	all, err := sched.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, tk := range all {
		if tk.State != task.Done {
			t.Errorf("task %q state = %v, want DONE", tk.TaskID, tk.State)
		}
	}
}

func TestSchedulerDeadlockBlocksUnschedulable(t *testing.T) {
	ctx := context.Background()
	sched, s, _ := newTestScheduler(t, 2)

	if err := s.CreateTask(ctx, &task.Task{TaskID: "stuck-dep", State: task.Cancelled}); err != nil {
		t.Fatalf("CreateTask(stuck-dep): %v", err)
	}
	if err := s.CreateTask(ctx, &task.Task{TaskID: "a", Branch: "task/a", State: task.Ready, Dependencies: []string{"stuck-dep"}}); err != nil {
		t.Fatalf("CreateTask(a): %v", err)
	}

	all, err := sched.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, tk := range all {
		if tk.TaskID == "a" && (tk.State != task.Blocked || tk.BlockReason != task.BlockUnschedulable) {
			t.Errorf("task a = %+v, want BLOCKED(UNSCHEDULABLE)", tk)
		}
	}
}
