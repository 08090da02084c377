// Package schedulerops implements the CAS-based task state transitions
// (claim/complete/block/reset) plus the capacity-accounted set of running
// workers and per-path resource locking that DynamicScheduler and
// SerialChainExecutor build on.
package schedulerops

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/devforge/orchestrator/internal/orcherrors"
	"github.com/devforge/orchestrator/internal/store"
	"github.com/devforge/orchestrator/internal/task"
)

// ErrNoCapacity is returned by ClaimTask when the scheduler has no free
// worker slots.
var ErrNoCapacity = errors.New("schedulerops: no available capacity")

// ErrNotReady is returned by ClaimTask when the target task is not in
// state READY.
var ErrNotReady = errors.New("schedulerops: task is not ready")

// State tracks the set of currently running worker ids, enforcing
// |running| <= maxWorkers.
type State struct {
	mu         sync.Mutex
	maxWorkers int
	running    map[string]string // workerID -> taskID
}

// NewState returns a State with the given worker capacity.
func NewState(maxWorkers int) *State {
	return &State{maxWorkers: maxWorkers, running: make(map[string]string)}
}

// HasCapacity reports whether another worker can be admitted.
func (s *State) HasCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running) < s.maxWorkers
}

// RunningCount returns the number of currently occupied worker slots.
func (s *State) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *State) admit(workerID, taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.running) >= s.maxWorkers {
		return false
	}
	s.running[workerID] = taskID
	return true
}

func (s *State) release(workerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, workerID)
}

// Ops wraps a TaskStore with the CAS-guarded transitions the scheduler
// needs. No method retries: on a version conflict it surfaces
// *orcherrors.ConcurrentModification so the caller can decide whether to
// skip the candidate this cycle.
type Ops struct {
	tasks store.TaskStore
	state *State
}

// New builds Ops over the given TaskStore and scheduler capacity state.
func New(tasks store.TaskStore, state *State) *Ops {
	return &Ops{tasks: tasks, state: state}
}

// GetReadyTasks lists every task currently in state READY.
func (o *Ops) GetReadyTasks(ctx context.Context) ([]*task.Task, error) {
	all, err := o.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	var ready []*task.Task
	for _, t := range all {
		if t.State == task.Ready {
			ready = append(ready, t)
		}
	}
	return ready, nil
}

// ClaimTask transitions taskID from READY to RUNNING with the given
// owner, provided the scheduler has spare capacity. On success the
// worker is registered in the running set; callers must call Release
// when the task finishes (success, failure, or panic-recovered).
func (o *Ops) ClaimTask(ctx context.Context, taskID, workerID string) (*task.Task, error) {
	if !o.state.HasCapacity() {
		return nil, ErrNoCapacity
	}

	current, err := o.tasks.ReadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if current.State != task.Ready {
		return nil, fmt.Errorf("%w: task %q is %s", ErrNotReady, taskID, current.State)
	}

	updated, err := o.tasks.UpdateTaskCAS(ctx, taskID, current.Version, func(t *task.Task) error {
		if t.State != task.Ready {
			return fmt.Errorf("%w: task %q is %s", ErrNotReady, taskID, t.State)
		}
		t.State = task.Running
		t.Owner = workerID
		return nil
	})
	if err != nil {
		var cm *orcherrors.ConcurrentModification
		if errors.As(err, &cm) {
			return nil, err // claim lost, caller skips to next candidate
		}
		return nil, err
	}

	if !o.state.admit(workerID, taskID) {
		// Capacity was consumed between the check and the CAS; revert the
		// claim so the task doesn't get stuck owned by a worker slot that
		// was never actually granted.
		_, _ = o.tasks.UpdateTaskCAS(ctx, taskID, updated.Version, func(t *task.Task) error {
			t.State = task.Ready
			t.Owner = ""
			return nil
		})
		return nil, ErrNoCapacity
	}
	return updated, nil
}

// RunningCount returns the number of currently occupied worker slots.
func (o *Ops) RunningCount() int {
	return o.state.RunningCount()
}

// Release frees workerID's capacity slot without touching task state;
// callers invoke this once a claimed task's execution path (success,
// failure, or block) has already transitioned its own state.
func (o *Ops) Release(workerID string) {
	o.state.release(workerID)
}

// CompleteTask transitions taskID to DONE and clears its owner.
func (o *Ops) CompleteTask(ctx context.Context, taskID, summary string) (*task.Task, error) {
	current, err := o.tasks.ReadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return o.tasks.UpdateTaskCAS(ctx, taskID, current.Version, func(t *task.Task) error {
		t.State = task.Done
		t.Owner = ""
		t.Summary = summary
		return nil
	})
}

// BlockTask transitions taskID to BLOCKED with the given reason and
// message, clearing its owner.
func (o *Ops) BlockTask(ctx context.Context, taskID string, reason task.BlockReason, message string) (*task.Task, error) {
	current, err := o.tasks.ReadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return o.tasks.UpdateTaskCAS(ctx, taskID, current.Version, func(t *task.Task) error {
		t.State = task.Blocked
		t.Owner = ""
		t.BlockReason = reason
		t.BlockMessage = message
		return nil
	})
}

// MarkNeedsContinuation transitions taskID to NEEDS_CONTINUATION with
// updated judgement feedback, clearing its owner so it can be re-admitted.
func (o *Ops) MarkNeedsContinuation(ctx context.Context, taskID string, feedback *task.JudgementFeedback) (*task.Task, error) {
	current, err := o.tasks.ReadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return o.tasks.UpdateTaskCAS(ctx, taskID, current.Version, func(t *task.Task) error {
		t.State = task.NeedsContinuation
		t.Owner = ""
		t.JudgementFeedback = feedback
		return nil
	})
}

// ResetTaskToReady transitions a BLOCKED, CANCELLED, or
// NEEDS_CONTINUATION task back to READY, e.g. when a continuation-planning
// cycle decides a previously blocked task is worth retrying.
func (o *Ops) ResetTaskToReady(ctx context.Context, taskID string) (*task.Task, error) {
	current, err := o.tasks.ReadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	switch current.State {
	case task.Blocked, task.Cancelled, task.NeedsContinuation:
	default:
		return nil, fmt.Errorf("schedulerops: cannot reset task %q from state %s to READY", taskID, current.State)
	}
	return o.tasks.UpdateTaskCAS(ctx, taskID, current.Version, func(t *task.Task) error {
		t.State = task.Ready
		t.Owner = ""
		return nil
	})
}
