// Package orcherrors defines the typed error taxonomy shared across the
// orchestrator's packages. Every error here is constructed so callers can
// recover structured fields with errors.As rather than parsing strings.
package orcherrors

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by store lookups when an entity does not exist.
var ErrNotFound = errors.New("orcherrors: not found")

// ErrClosed is returned by components after Stop has been called.
var ErrClosed = errors.New("orcherrors: closed")

// ConcurrentModification is returned by a CAS update when the caller's
// expected version does not match the stored version.
type ConcurrentModification struct {
	ID       string
	Expected int
	Actual   int
}

func (e *ConcurrentModification) Error() string {
	return fmt.Sprintf("orcherrors: concurrent modification of %q: expected version %d, found %d", e.ID, e.Expected, e.Actual)
}

// ConflictResolutionRequired is returned when an in-worktree merge of a base
// branch leaves unresolved conflicts that need a dedicated resolution task.
type ConflictResolutionRequired struct {
	ParentID     string
	ResolutionID string
	TempBranch   string
	Paths        []string
}

func (e *ConflictResolutionRequired) Error() string {
	return fmt.Sprintf("orcherrors: merge conflict for task %q on %d path(s), resolution task %q created on %q",
		e.ParentID, len(e.Paths), e.ResolutionID, e.TempBranch)
}

// RateLimited is returned when an agent call was rejected due to a detected
// provider rate limit. RetryAfter is the caller's best estimate of how long
// to back off; zero means unknown.
type RateLimited struct {
	Provider   string
	RetryAfter time.Duration
	Reason     string
}

func (e *RateLimited) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("orcherrors: %s rate limited, retry after %s: %s", e.Provider, e.RetryAfter, e.Reason)
	}
	return fmt.Sprintf("orcherrors: %s rate limited: %s", e.Provider, e.Reason)
}

// SchemaValidation is returned when an agent's structured response fails
// validation against the expected task/judgement schema.
type SchemaValidation struct {
	Source string
	Detail string
}

func (e *SchemaValidation) Error() string {
	return fmt.Sprintf("orcherrors: schema validation failed for %s: %s", e.Source, e.Detail)
}

// CyclicDependency is returned by the dependency graph validator when a
// cycle is detected among task dependencies.
type CyclicDependency struct {
	Cycle []string
}

func (e *CyclicDependency) Error() string {
	return fmt.Sprintf("orcherrors: cyclic dependency detected: %v", e.Cycle)
}

// UnknownDependency is returned when a task depends on a task ID that does
// not exist in the graph.
type UnknownDependency struct {
	TaskID     string
	MissingDep string
}

func (e *UnknownDependency) Error() string {
	return fmt.Sprintf("orcherrors: task %q depends on unknown task %q", e.TaskID, e.MissingDep)
}

// WorktreeConflict signals that a worktree operation collided with existing
// state (branch already checked out, directory not empty, etc).
type WorktreeConflict struct {
	Path   string
	Detail string
}

func (e *WorktreeConflict) Error() string {
	return fmt.Sprintf("orcherrors: worktree conflict at %q: %s", e.Path, e.Detail)
}
