package store

import (
	"context"
	"errors"
	"testing"

	"github.com/devforge/orchestrator/internal/orcherrors"
	"github.com/devforge/orchestrator/internal/task"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestCreateAndReadTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tk := &task.Task{TaskID: "t1", RepoPath: "/repo", State: task.Ready}
	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if tk.Version != 1 {
		t.Errorf("expected version 1 after create, got %d", tk.Version)
	}

	got, err := s.ReadTask(ctx, "t1")
	if err != nil {
		t.Fatalf("ReadTask: %v", err)
	}
	if got.TaskID != "t1" || got.State != task.Ready {
		t.Errorf("unexpected task: %+v", got)
	}
}

func TestCreateTaskDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tk := &task.Task{TaskID: "dup"}
	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.CreateTask(ctx, &task.Task{TaskID: "dup"}); err == nil {
		t.Error("expected error creating duplicate task, got nil")
	}
}

func TestReadTaskNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.ReadTask(ctx, "missing"); !errors.Is(err, orcherrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTaskCASSucceeds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tk := &task.Task{TaskID: "t1", State: task.Ready}
	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	updated, err := s.UpdateTaskCAS(ctx, "t1", 1, func(tt *task.Task) error {
		tt.State = task.Running
		tt.Owner = "worker-1"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateTaskCAS: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("expected version 2, got %d", updated.Version)
	}
	if updated.State != task.Running || updated.Owner != "worker-1" {
		t.Errorf("mutation not applied: %+v", updated)
	}
}

func TestUpdateTaskCASConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tk := &task.Task{TaskID: "t1", State: task.Ready}
	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	_, err := s.UpdateTaskCAS(ctx, "t1", 99, func(tt *task.Task) error {
		tt.State = task.Running
		return nil
	})
	var cm *orcherrors.ConcurrentModification
	if !errors.As(err, &cm) {
		t.Fatalf("expected ConcurrentModification, got %v", err)
	}
	if cm.Expected != 99 || cm.Actual != 1 {
		t.Errorf("unexpected fields: %+v", cm)
	}
}

func TestListTasksOrdered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"b", "a", "c"} {
		if err := s.CreateTask(ctx, &task.Task{TaskID: id}); err != nil {
			t.Fatalf("CreateTask(%s): %v", id, err)
		}
	}

	tasks, err := s.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	want := []string{"a", "b", "c"}
	for i, tk := range tasks {
		if tk.TaskID != want[i] {
			t.Errorf("tasks[%d] = %q, want %q", i, tk.TaskID, want[i])
		}
	}
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.CreateTask(ctx, &task.Task{TaskID: "gone"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.DeleteTask(ctx, "gone"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := s.ReadTask(ctx, "gone"); !errors.Is(err, orcherrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteTask(ctx, "gone"); err != nil {
		t.Errorf("deleting already-absent task should not error, got %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess := &Session{SessionID: "sess-1", RootSessionID: "sess-1", AgentType: "claude"}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.AgentType != "claude" || got.CreatedAt.IsZero() {
		t.Errorf("unexpected session: %+v", got)
	}
}
