package orchestrator

import (
	"context"
	"testing"

	"github.com/devforge/orchestrator/internal/agent"
	"github.com/devforge/orchestrator/internal/gitfx"
	"github.com/devforge/orchestrator/internal/judge"
	"github.com/devforge/orchestrator/internal/planner"
	"github.com/devforge/orchestrator/internal/schedulerops"
	"github.com/devforge/orchestrator/internal/store"
	"github.com/devforge/orchestrator/internal/worker"
)

const plannerBreakdown = `[
  {"id": "task-1", "description": "add endpoint", "branch": "feat-endpoint", "scopePaths": ["api/"], "acceptance": "endpoint returns 200", "type": "implementation", "estimatedDuration": 1, "context": "add a GET /status endpoint", "dependencies": []},
  {"id": "task-2", "description": "add tests", "branch": "feat-endpoint-tests", "scopePaths": ["api/"], "acceptance": "tests pass", "type": "implementation", "estimatedDuration": 1, "context": "test the new endpoint", "dependencies": ["task-1"]}
]`
const acceptableQuality = `{"isAcceptable": true, "score": 90, "issues": [], "suggestions": []}`
const taskVerdict = `{"success": true, "shouldContinue": false, "shouldReplan": false, "alreadySatisfied": false, "reason": "looks good", "missingRequirements": []}`
const completeVerdict = `{"isComplete": true, "missingAspects": [], "additionalTaskSuggestions": [], "completionScore": 100}`

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	root := t.TempDir()
	s, err := store.New(root)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	fakeGit := gitfx.NewFake()
	runner := agent.NewFake(agent.FakeResponse{Result: agent.Result{Content: "done"}})
	w := worker.New(worker.Config{RepoPath: "/repo", RunLogRoot: root + "/runs", DefaultAgent: agent.TypeClaude}, fakeGit, s,
		func(agentType agent.AgentType, sessionID, workDir, model string) (agent.Runner, error) { return runner, nil })

	judgeRunner := agent.NewFake(agent.FakeResponse{Result: agent.Result{Content: taskVerdict}})
	judgeSched := schedulerops.New(s, schedulerops.NewState(2))
	judgeOps := judge.New(judge.Config{RunLogRoot: root + "/runs"}, s, judgeSched, judgeRunner)

	plannerOps := planner.New(planner.Config{},
		s,
		agent.NewFake(agent.FakeResponse{Result: agent.Result{Content: plannerBreakdown}}),
		agent.NewFake(agent.FakeResponse{Result: agent.Result{Content: acceptableQuality}}),
		agent.NewFake(agent.FakeResponse{Result: agent.Result{Content: completeVerdict}}),
	)

	o := New(Config{RepoPath: "/repo", MaxWorkers: 2}, s, fakeGit, plannerOps, w, judgeOps)
	return o, s
}

func TestRunHappyPathReachesDone(t *testing.T) {
	ctx := context.Background()
	o, s := newTestOrchestrator(t)

	result, err := o.Run(ctx, "sess1", "add a status endpoint")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != Done {
		t.Fatalf("result.State = %v, want DONE", result.State)
	}

	all, err := s.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	for _, tk := range all {
		if tk.State.IsTerminal() == false {
			t.Errorf("task %q state = %v, want a terminal state", tk.TaskID, tk.State)
		}
	}
}
