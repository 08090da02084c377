package planner

import (
	"context"
	"testing"

	"github.com/devforge/orchestrator/internal/agent"
	"github.com/devforge/orchestrator/internal/store"
	"github.com/devforge/orchestrator/internal/task"
)

const validBreakdown = `[
  {"id": "task-1", "description": "add endpoint", "branch": "feat-endpoint", "scopePaths": ["api/"], "acceptance": "endpoint returns 200", "type": "implementation", "estimatedDuration": 1, "context": "add a GET /status endpoint", "dependencies": []},
  {"id": "task-2", "description": "add tests", "branch": "feat-endpoint-tests", "scopePaths": ["api/"], "acceptance": "tests pass", "type": "implementation", "estimatedDuration": 1, "context": "test the new endpoint", "dependencies": ["task-1"]}
]`

const acceptableQuality = `{"isAcceptable": true, "score": 90, "issues": [], "suggestions": []}`

func newTestOps(t *testing.T, plannerResponses, qualityResponses, finalResponses []agent.FakeResponse) (*Ops, *store.Store) {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	ops := New(Config{}, s, agent.NewFake(plannerResponses...), agent.NewFake(qualityResponses...), agent.NewFake(finalResponses...))
	return ops, s
}

func TestPlanTasksHappyPath(t *testing.T) {
	ctx := context.Background()
	ops, s := newTestOps(t,
		[]agent.FakeResponse{{Result: agent.Result{Content: validBreakdown}}},
		[]agent.FakeResponse{{Result: agent.Result{Content: acceptableQuality}}},
		nil,
	)

	created, err := ops.PlanTasks(ctx, "sess1", "add a status endpoint")
	if err != nil {
		t.Fatalf("PlanTasks: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("len(created) = %d, want 2", len(created))
	}
	if created[0].TaskID != "sess1-task-1" {
		t.Errorf("created[0].TaskID = %q, want sess1-task-1", created[0].TaskID)
	}
	if len(created[1].Dependencies) != 1 || created[1].Dependencies[0] != "sess1-task-1" {
		t.Errorf("created[1].Dependencies = %v, want [sess1-task-1]", created[1].Dependencies)
	}

	stored, err := s.ReadTask(ctx, "sess1-task-1")
	if err != nil {
		t.Fatalf("ReadTask: %v", err)
	}
	if stored.State != task.Ready {
		t.Errorf("stored.State = %v, want READY", stored.State)
	}
}

func TestPlanTasksRetriesOnInvalidJSON(t *testing.T) {
	ctx := context.Background()
	ops, _ := newTestOps(t,
		[]agent.FakeResponse{
			{Result: agent.Result{Content: "not json at all"}},
			{Result: agent.Result{Content: validBreakdown}},
		},
		[]agent.FakeResponse{{Result: agent.Result{Content: acceptableQuality}}},
		nil,
	)

	created, err := ops.PlanTasks(ctx, "sess2", "add a status endpoint")
	if err != nil {
		t.Fatalf("PlanTasks: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("len(created) = %d, want 2", len(created))
	}
}

func TestPlanTasksRejectsCyclicDependencies(t *testing.T) {
	ctx := context.Background()
	cyclic := `[
	  {"id": "task-1", "description": "a", "branch": "a", "scopePaths": ["x"], "acceptance": "a", "type": "implementation", "estimatedDuration": 1, "context": "a", "dependencies": ["task-2"]},
	  {"id": "task-2", "description": "b", "branch": "b", "scopePaths": ["x"], "acceptance": "b", "type": "implementation", "estimatedDuration": 1, "context": "b", "dependencies": ["task-1"]}
	]`
	ops, _ := newTestOps(t,
		[]agent.FakeResponse{
			{Result: agent.Result{Content: cyclic}},
			{Result: agent.Result{Content: cyclic}},
			{Result: agent.Result{Content: cyclic}},
			{Result: agent.Result{Content: cyclic}},
			{Result: agent.Result{Content: cyclic}},
			{Result: agent.Result{Content: cyclic}},
		},
		nil,
		nil,
	)

	if _, err := ops.PlanTasks(ctx, "sess3", "circular instruction"); err == nil {
		t.Fatal("PlanTasks: expected error on cyclic dependency, got nil")
	}
}

func TestJudgeFinalCompletionParseFailureDefaultsToComplete(t *testing.T) {
	ctx := context.Background()
	ops, _ := newTestOps(t, nil, nil, []agent.FakeResponse{{Result: agent.Result{Content: "not json"}}})

	v, err := ops.JudgeFinalCompletionWithContext(ctx, "instr", nil, nil, nil, "")
	if err != nil {
		t.Fatalf("JudgeFinalCompletionWithContext: %v", err)
	}
	if !v.IsComplete {
		t.Errorf("IsComplete = false, want true on parse failure")
	}
}

func TestPlanAdditionalTasksResetsRetryableAndPersistsNew(t *testing.T) {
	ctx := context.Background()
	ops, s := newTestOps(t,
		[]agent.FakeResponse{{Result: agent.Result{Content: `[{"id": "task-1", "description": "d", "branch": "b", "scopePaths": ["x"], "acceptance": "new acceptance criteria", "type": "implementation", "estimatedDuration": 1, "context": "c", "dependencies": [], "summary": "short"}]`}}},
		nil, nil,
	)

	if err := s.CreateTask(ctx, &task.Task{TaskID: "stuck-1", State: task.NeedsContinuation, Branch: "b1"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.CreateTask(ctx, &task.Task{TaskID: "done-1", State: task.Done, Acceptance: "old work done"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	result, err := ops.PlanAdditionalTasks(ctx, "sess4", "finish the feature", []string{"missing error handling"})
	if err != nil {
		t.Fatalf("PlanAdditionalTasks: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("len(result) = %d, want 2 (1 reset + 1 new)", len(result))
	}

	stuck, err := s.ReadTask(ctx, "stuck-1")
	if err != nil {
		t.Fatalf("ReadTask(stuck-1): %v", err)
	}
	if stuck.State != task.Ready {
		t.Errorf("stuck-1 state = %v, want READY", stuck.State)
	}
}

func TestPlanAdditionalTasksEmptyArrayIsValidNoOp(t *testing.T) {
	ctx := context.Background()
	ops, _ := newTestOps(t,
		[]agent.FakeResponse{{Result: agent.Result{Content: "[]"}}},
		nil, nil,
	)

	result, err := ops.PlanAdditionalTasks(ctx, "sess5", "nothing left", nil)
	if err != nil {
		t.Fatalf("PlanAdditionalTasks: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("len(result) = %d, want 0", len(result))
	}
}
