package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devforge/orchestrator/internal/task"
)

// WriteMeta persists run metadata alongside its log file as
// <runID>.json under root.
func WriteMeta(root string, run *task.Run) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("runlog: create dir: %w", err)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("runlog: marshal run metadata: %w", err)
	}
	path := filepath.Join(root, run.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("runlog: write run metadata: %w", err)
	}
	return nil
}

// ReadMeta loads previously persisted run metadata by run id.
func ReadMeta(root, runID string) (*task.Run, error) {
	data, err := os.ReadFile(filepath.Join(root, runID+".json"))
	if err != nil {
		return nil, fmt.Errorf("runlog: read run metadata: %w", err)
	}
	var run task.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("runlog: unmarshal run metadata: %w", err)
	}
	return &run, nil
}
