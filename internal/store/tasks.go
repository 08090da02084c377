package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/devforge/orchestrator/internal/orcherrors"
	"github.com/devforge/orchestrator/internal/task"
)

// CreateTask persists a brand new task with Version 1. Returns an error if
// a task with the same TaskID already exists.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	lock := s.lockFor(t.TaskID)
	lock.Lock()
	defer lock.Unlock()

	path := s.taskPath(t.TaskID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("store: task %q already exists", t.TaskID)
	}

	cp := t.Clone()
	cp.Version = 1
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	if err := writeAtomic(path, cp); err != nil {
		return err
	}
	*t = *cp
	return nil
}

// ReadTask loads a task by id.
func (s *Store) ReadTask(ctx context.Context, id string) (*task.Task, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	var t task.Task
	if err := readJSON(s.taskPath(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns every task currently stored, in id order.
func (s *Store) ListTasks(ctx context.Context) ([]*task.Task, error) {
	ids, err := s.listIDs("tasks")
	if err != nil {
		return nil, err
	}
	tasks := make([]*task.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.ReadTask(ctx, id)
		if err != nil {
			if err == orcherrors.ErrNotFound {
				continue // removed between listing and read
			}
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// UpdateTaskCAS applies mutate to the current stored task if and only if
// its Version equals expectedVersion, then persists the result with Version
// incremented by one. Returns *orcherrors.ConcurrentModification when the
// versions don't match. The mutate callback must not retain its argument
// past the call.
func (s *Store) UpdateTaskCAS(ctx context.Context, id string, expectedVersion int, mutate func(*task.Task) error) (*task.Task, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	var current task.Task
	if err := readJSON(s.taskPath(id), &current); err != nil {
		return nil, err
	}

	if current.Version != expectedVersion {
		return nil, &orcherrors.ConcurrentModification{
			ID:       id,
			Expected: expectedVersion,
			Actual:   current.Version,
		}
	}

	updated := current.Clone()
	if err := mutate(updated); err != nil {
		return nil, fmt.Errorf("store: mutate task %q: %w", id, err)
	}
	updated.TaskID = id
	updated.Version = current.Version + 1
	updated.UpdatedAt = time.Now().UTC()

	if err := writeAtomic(s.taskPath(id), updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask removes a task's persisted record. Deleting a task that does
// not exist is not an error.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.taskPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete task %q: %w", id, err)
	}
	return nil
}
