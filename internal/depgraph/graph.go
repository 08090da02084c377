// Package depgraph builds and validates the dependency graph over a task
// set: cycle detection, topological leveling for wave-free concurrent
// dispatch, serial-chain identification, and transitive blocked-task
// propagation. Grounded on the DAG shape used for task scheduling, but
// generalized to the richer dependency semantics the scheduler needs: a
// cycle anywhere in the graph blocks every task in it (not just soft/hard
// failure propagation), and execution levels are advisory, not a wave
// barrier -- the dynamic scheduler only uses dependency-resolved state.
package depgraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gammazero/toposort"

	"github.com/devforge/orchestrator/internal/orcherrors"
	"github.com/devforge/orchestrator/internal/task"
)

// Graph is an immutable view of task dependencies built from a snapshot of
// tasks. It holds no pointer back to stored tasks; callers rebuild it
// whenever the task set changes.
type Graph struct {
	ids          []string
	dependencies map[string][]string // taskID -> its DependsOn
	dependents   map[string][]string // taskID -> tasks that depend on it
}

// Build constructs a Graph from a task snapshot. It does not validate;
// call Validate to check for cycles and dangling references.
func Build(tasks []*task.Task) *Graph {
	g := &Graph{
		dependencies: make(map[string][]string, len(tasks)),
		dependents:   make(map[string][]string, len(tasks)),
	}
	for _, t := range tasks {
		g.ids = append(g.ids, t.TaskID)
		g.dependencies[t.TaskID] = append([]string(nil), t.Dependencies...)
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			g.dependents[dep] = append(g.dependents[dep], t.TaskID)
		}
	}
	sort.Strings(g.ids)
	return g
}

// color is the three-state DFS marker used for cycle detection:
// unvisited nodes are white, nodes on the current DFS stack are gray, and
// nodes whose full subtree has been explored are black. A gray-to-gray
// edge is a back edge, i.e. a cycle.
type color int

const (
	white color = iota
	gray
	black
)

// Validate checks that every dependency reference resolves to a task in
// the graph and that the dependency relation is acyclic, via a
// three-color depth-first search. It returns *orcherrors.UnknownDependency
// for an unresolved reference, *orcherrors.CyclicDependency carrying the
// full cycle path when a cycle is found, and nil when the graph is valid.
func (g *Graph) Validate() error {
	for _, id := range g.ids {
		for _, dep := range g.dependencies[id] {
			if _, ok := g.dependencies[dep]; !ok {
				return &orcherrors.UnknownDependency{TaskID: id, MissingDep: dep}
			}
		}
	}

	colors := make(map[string]color, len(g.ids))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		colors[id] = gray
		stack = append(stack, id)

		for _, dep := range g.dependencies[id] {
			switch colors[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case gray:
				cycle := cycleFromStack(stack, dep)
				return &orcherrors.CyclicDependency{Cycle: cycle}
			case black:
				// already fully explored, no cycle through here
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
		return nil
	}

	for _, id := range g.ids {
		if colors[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleFromStack extracts the cycle segment of the DFS stack starting at
// the node where the back edge closes the loop.
func cycleFromStack(stack []string, closeAt string) []string {
	for i, id := range stack {
		if id == closeAt {
			cycle := append([]string(nil), stack[i:]...)
			return append(cycle, closeAt)
		}
	}
	return append([]string(nil), stack...)
}

// AllCyclicIDs returns every task ID participating in some cycle. Validate
// stops at the first cycle it finds, so this repeatedly removes one
// reported cycle's ids and revalidates the remainder until the graph is
// acyclic, accumulating every id seen along the way. Cheaper than a full
// strongly-connected-components pass and sufficient here since cyclic
// tasks are blocked outright rather than scheduled around.
func (g *Graph) AllCyclicIDs() []string {
	seen := make(map[string]bool)
	remaining := g
	for {
		err := remaining.Validate()
		if err == nil {
			break
		}
		var cyc *orcherrors.CyclicDependency
		if !errors.As(err, &cyc) {
			break
		}
		for _, id := range cyc.Cycle {
			seen[id] = true
		}
		remaining = remaining.withoutIDs(seen)
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// withoutIDs returns a copy of g with exclude's ids, and any edges
// referencing them, removed.
func (g *Graph) withoutIDs(exclude map[string]bool) *Graph {
	ng := &Graph{
		dependencies: make(map[string][]string, len(g.ids)),
		dependents:   make(map[string][]string, len(g.ids)),
	}
	for _, id := range g.ids {
		if exclude[id] {
			continue
		}
		ng.ids = append(ng.ids, id)
		for _, dep := range g.dependencies[id] {
			if !exclude[dep] {
				ng.dependencies[id] = append(ng.dependencies[id], dep)
			}
		}
	}
	for _, id := range ng.ids {
		for _, dep := range ng.dependencies[id] {
			ng.dependents[dep] = append(ng.dependents[dep], id)
		}
	}
	return ng
}

// Order returns a topological ordering of task IDs using
// gammazero/toposort, purely for display and deterministic iteration --
// the scheduler itself reacts to per-task state changes, not this order.
func (g *Graph) Order() ([]string, error) {
	var edges []toposort.Edge
	for _, id := range g.ids {
		deps := g.dependencies[id]
		if len(deps) == 0 {
			edges = append(edges, toposort.Edge{Src: nil, Dst: id})
			continue
		}
		for _, dep := range deps {
			edges = append(edges, toposort.Edge{Src: dep, Dst: id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("depgraph: toposort: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, v := range sorted {
		if v != nil {
			order = append(order, v.(string))
		}
	}
	return order, nil
}

// ExecutionLevels groups task IDs into Kahn-style levels: level 0 has no
// dependencies, level N depends only on tasks in levels < N. Levels are
// advisory scheduling hints surfaced to operators; the dynamic scheduler
// dispatches purely off per-task dependency resolution; it never waits for
// an entire level to finish.
func (g *Graph) ExecutionLevels() ([][]string, error) {
	indegree := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		indegree[id] = len(g.dependencies[id])
	}

	remaining := len(g.ids)
	var levels [][]string
	processed := make(map[string]bool, len(g.ids))

	for remaining > 0 {
		var level []string
		for _, id := range g.ids {
			if processed[id] {
				continue
			}
			if indegree[id] == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("depgraph: cannot compute levels, %d task(s) remain with unresolved dependencies (cycle?)", remaining)
		}
		sort.Strings(level)
		levels = append(levels, level)

		for _, id := range level {
			processed[id] = true
			remaining--
			for _, dependent := range g.dependents[id] {
				indegree[dependent]--
			}
		}
	}
	return levels, nil
}

// Dependents returns the task IDs that directly depend on id.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Dependencies returns the task IDs that id directly depends on.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.dependencies[id]...)
}

// TransitiveBlockedClosure computes the full set of task IDs that are
// blocked as a consequence of seed being unresolvable (blocked, cyclic, or
// cancelled), following the dependents edges outward. The returned set
// never includes seed itself; callers add it separately if needed.
func (g *Graph) TransitiveBlockedClosure(seeds ...string) []string {
	visited := make(map[string]bool)
	var queue []string
	queue = append(queue, seeds...)
	for _, s := range seeds {
		visited[s] = true
	}

	var blocked []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dependent := range g.dependents[id] {
			if visited[dependent] {
				continue
			}
			visited[dependent] = true
			blocked = append(blocked, dependent)
			queue = append(queue, dependent)
		}
	}
	sort.Strings(blocked)
	return blocked
}

// DetectSerialChains finds maximal chains of tasks that must execute one
// after another because each has exactly one dependency and exactly one
// dependent, forming a straight line in the graph. These chains are
// reported so a single worktree can run them back-to-back instead of
// tearing one down and standing another up between every link.
func (g *Graph) DetectSerialChains() [][]string {
	hasOneDep := func(id string) bool { return len(g.dependencies[id]) == 1 }
	hasOneDependent := func(id string) bool { return len(g.dependents[id]) == 1 }

	inChain := make(map[string]bool)
	var chains [][]string

	for _, id := range g.ids {
		if inChain[id] {
			continue
		}
		// A node with exactly one dependency whose dependency has exactly one
		// dependent is a link inside a chain that starts further up; it is
		// collected when that chain is walked, not started on its own.
		if hasOneDep(id) {
			parent := g.dependencies[id][0]
			if hasOneDependent(parent) {
				continue
			}
		}

		chain := []string{id}
		inChain[id] = true
		cursor := id
		for hasOneDependent(cursor) {
			next := g.dependents[cursor][0]
			if !hasOneDep(next) {
				break
			}
			chain = append(chain, next)
			inChain[next] = true
			cursor = next
		}
		if len(chain) > 1 {
			chains = append(chains, chain)
		}
	}
	return chains
}
