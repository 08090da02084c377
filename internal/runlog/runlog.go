// Package runlog manages the append-only per-run transcript files the
// orchestrator writes while an agent works a task, plus the truncation
// helper the Judge uses to keep oversized transcripts within its context
// budget.
package runlog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MaxJudgeBytes bounds how much of a run log the Judge is shown. Logs
// larger than this are truncated to a head and tail slice with a marker in
// between, per the head/tail strategy used for oversized tool output.
const MaxJudgeBytes = 150 * 1024

// Writer appends raw agent output to a single run's log file. It is not
// safe for concurrent use by more than one goroutine; each run owns one
// Writer for its lifetime.
type Writer struct {
	f *os.File
}

// Open creates (or truncates) the log file for runID under root and
// returns a Writer appending to it.
func Open(root, runID string) (*Writer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("runlog: create dir: %w", err)
	}
	path := filepath.Join(root, runID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Path returns the filesystem path of the log being written.
func (w *Writer) Path() string {
	return w.f.Name()
}

// Write appends p to the log, satisfying io.Writer so callers can wire it
// directly as a stdout/stderr drain destination.
func (w *Writer) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// WriteLine appends s followed by a newline.
func (w *Writer) WriteLine(s string) error {
	_, err := fmt.Fprintln(w.f, s)
	return err
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Read returns the full contents of the log at path.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runlog: read %s: %w", path, err)
	}
	return data, nil
}

// ForJudge reads the log at path and truncates it to MaxJudgeBytes,
// keeping the first and last halves of the budget and replacing the
// excised middle with a marker line, so the Judge sees both the task's
// opening context and its final outcome even when the transcript is huge.
func ForJudge(path string) (string, error) {
	data, err := Read(path)
	if err != nil {
		return "", err
	}
	return TruncateForJudge(data), nil
}

// TruncateForJudge applies the head/tail truncation strategy to an
// in-memory transcript. Exposed standalone so callers that already have
// the bytes (e.g. from an in-progress Writer) don't need to round-trip
// through disk.
func TruncateForJudge(data []byte) string {
	if len(data) <= MaxJudgeBytes {
		return string(data)
	}

	headSize := MaxJudgeBytes / 2
	tailSize := MaxJudgeBytes - headSize

	var buf bytes.Buffer
	buf.Write(data[:headSize])
	fmt.Fprintf(&buf, "\n\n... [truncated %d bytes] ...\n\n", len(data)-headSize-tailSize)
	buf.Write(data[len(data)-tailSize:])
	return buf.String()
}

// CopyTo streams src into the writer w while also returning the bytes
// written, useful for tee-ing process stdout into both the run log and an
// in-memory buffer used to detect rate limits.
func CopyTo(w io.Writer, src io.Reader) (int64, error) {
	return io.Copy(w, src)
}
