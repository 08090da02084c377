package basebranch

import (
	"fmt"
	"testing"

	"github.com/devforge/orchestrator/internal/task"
)

func lookupFrom(tasks map[string]*task.Task) func(string) (*task.Task, error) {
	return func(id string) (*task.Task, error) {
		t, ok := tasks[id]
		if !ok {
			return nil, fmt.Errorf("no such task %q", id)
		}
		return t, nil
	}
}

func TestResolveNoDependencies(t *testing.T) {
	r := New(lookupFrom(nil))
	res, err := r.Resolve(&task.Task{TaskID: "a"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != KindNone {
		t.Errorf("Kind = %v, want KindNone", res.Kind)
	}
}

func TestResolveSingleDependency(t *testing.T) {
	tasks := map[string]*task.Task{"dep": {TaskID: "dep", Branch: "task/dep"}}
	r := New(lookupFrom(tasks))

	res, err := r.Resolve(&task.Task{TaskID: "a", Dependencies: []string{"dep"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != KindSingle || res.BaseBranch != "task/dep" {
		t.Errorf("unexpected resolution: %+v", res)
	}
}

func TestResolveMultiDependency(t *testing.T) {
	tasks := map[string]*task.Task{
		"dep1": {TaskID: "dep1", Branch: "task/dep1"},
		"dep2": {TaskID: "dep2", Branch: "task/dep2"},
	}
	r := New(lookupFrom(tasks))

	res, err := r.Resolve(&task.Task{TaskID: "a", Dependencies: []string{"dep1", "dep2"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != KindMulti {
		t.Fatalf("Kind = %v, want KindMulti", res.Kind)
	}
	want := []string{"task/dep1", "task/dep2"}
	for i, b := range want {
		if res.DependencyBranches[i] != b {
			t.Errorf("DependencyBranches[%d] = %q, want %q", i, res.DependencyBranches[i], b)
		}
	}
}

func TestResolveUnknownDependencyErrors(t *testing.T) {
	r := New(lookupFrom(nil))
	if _, err := r.Resolve(&task.Task{TaskID: "a", Dependencies: []string{"ghost"}}); err == nil {
		t.Error("expected error resolving unknown dependency")
	}
}
