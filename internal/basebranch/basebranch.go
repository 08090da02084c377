// Package basebranch classifies a task's dependencies into a tagged
// resolution describing how its worktree should be branched. It never
// touches the filesystem or the main repository checkout -- merging
// multiple dependency branches together is deferred to worker setup so the
// main HEAD is never disturbed by a dependency-merge attempt.
package basebranch

import (
	"fmt"

	"github.com/devforge/orchestrator/internal/task"
)

// Kind is the closed set of resolution shapes.
type Kind string

const (
	KindNone   Kind = "none"
	KindSingle Kind = "single"
	KindMulti  Kind = "multi"
)

// Resolution is the tagged union returned by Resolve.
type Resolution struct {
	Kind Kind

	// BaseBranch is set only when Kind == KindSingle: the one dependency's
	// branch to fork the task's worktree from.
	BaseBranch string

	// DependencyBranches is set only when Kind == KindMulti: every
	// dependency's branch, in dependency-list order, to be merged
	// sequentially inside the worktree by WorkerOps.
	DependencyBranches []string
}

// Resolver resolves a task's dependency branches given a lookup of
// already-known tasks (typically backed by the TaskStore).
type Resolver struct {
	lookup func(taskID string) (*task.Task, error)
}

// New builds a Resolver. lookup must return the current persisted task for
// a given id, used to read each dependency's branch name.
func New(lookup func(taskID string) (*task.Task, error)) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve classifies t's dependencies per spec: zero dependencies branch
// from HEAD, exactly one dependency branches directly from it, and two or
// more defer the merge to worktree setup.
func (r *Resolver) Resolve(t *task.Task) (*Resolution, error) {
	switch len(t.Dependencies) {
	case 0:
		return &Resolution{Kind: KindNone}, nil
	case 1:
		dep, err := r.lookup(t.Dependencies[0])
		if err != nil {
			return nil, fmt.Errorf("basebranch: resolve dependency %q: %w", t.Dependencies[0], err)
		}
		return &Resolution{Kind: KindSingle, BaseBranch: dep.Branch}, nil
	default:
		branches := make([]string, 0, len(t.Dependencies))
		for _, depID := range t.Dependencies {
			dep, err := r.lookup(depID)
			if err != nil {
				return nil, fmt.Errorf("basebranch: resolve dependency %q: %w", depID, err)
			}
			branches = append(branches, dep.Branch)
		}
		return &Resolution{Kind: KindMulti, DependencyBranches: branches}, nil
	}
}
