package depgraph

import (
	"errors"
	"testing"

	"github.com/devforge/orchestrator/internal/orcherrors"
	"github.com/devforge/orchestrator/internal/task"
)

func tasksOf(deps map[string][]string) []*task.Task {
	var out []*task.Task
	for id, d := range deps {
		out = append(out, &task.Task{TaskID: id, Dependencies: d})
	}
	return out
}

func TestValidateDetectsCycle(t *testing.T) {
	g := Build(tasksOf(map[string][]string{
		"a": {"c"},
		"b": {"a"},
		"c": {"b"},
	}))

	err := g.Validate()
	var cyc *orcherrors.CyclicDependency
	if !errors.As(err, &cyc) {
		t.Fatalf("expected CyclicDependency, got %v", err)
	}
	if len(cyc.Cycle) == 0 {
		t.Error("expected non-empty cycle path")
	}
}

func TestValidateDetectsUnknownDependency(t *testing.T) {
	g := Build(tasksOf(map[string][]string{
		"a": {"ghost"},
	}))

	err := g.Validate()
	var unk *orcherrors.UnknownDependency
	if !errors.As(err, &unk) {
		t.Fatalf("expected UnknownDependency, got %v", err)
	}
}

func TestValidateAcceptsDAG(t *testing.T) {
	g := Build(tasksOf(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}))
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: unexpected error: %v", err)
	}
}

func TestExecutionLevels(t *testing.T) {
	g := Build(tasksOf(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}))

	levels, err := g.ExecutionLevels()
	if err != nil {
		t.Fatalf("ExecutionLevels: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(levels), levels)
	}
	if len(levels[0]) != 1 || levels[0][0] != "a" {
		t.Errorf("level 0 = %v, want [a]", levels[0])
	}
	if len(levels[1]) != 2 {
		t.Errorf("level 1 = %v, want 2 entries", levels[1])
	}
	if len(levels[2]) != 1 || levels[2][0] != "d" {
		t.Errorf("level 2 = %v, want [d]", levels[2])
	}
}

func TestTransitiveBlockedClosure(t *testing.T) {
	g := Build(tasksOf(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
		"d": {"a"},
	}))

	blocked := g.TransitiveBlockedClosure("a")
	want := map[string]bool{"b": true, "c": true, "d": true}
	if len(blocked) != len(want) {
		t.Fatalf("blocked = %v, want entries %v", blocked, want)
	}
	for _, id := range blocked {
		if !want[id] {
			t.Errorf("unexpected blocked id %q", id)
		}
	}
}

func TestDetectSerialChains(t *testing.T) {
	g := Build(tasksOf(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
		"x": nil,
		"y": {"x"},
		"z": {"x"},
	}))

	chains := g.DetectSerialChains()
	foundABC := false
	for _, chain := range chains {
		if len(chain) == 3 && chain[0] == "a" && chain[2] == "c" {
			foundABC = true
		}
	}
	if !foundABC {
		t.Errorf("expected to find chain [a b c], got %v", chains)
	}
	// x has two dependents (y, z), so it should not be folded into a chain.
	for _, chain := range chains {
		for _, id := range chain {
			if id == "x" {
				t.Errorf("x should not appear in a serial chain, got %v", chain)
			}
		}
	}
}

func TestOrderIsTopological(t *testing.T) {
	g := Build(tasksOf(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
	}))

	order, err := g.Order()
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Errorf("order %v is not topological", order)
	}
}
