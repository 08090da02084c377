package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// CodexRunner drives the `codex` CLI, parsing its newline-delimited JSON
// event stream for the thread id and final turn content.
type CodexRunner struct {
	threadID string
	workDir  string
	model    string
	started  bool
	procMgr  *ProcessManager
}

type codexEvent struct {
	Type string `json:"type"`
}

type codexThreadStarted struct {
	ThreadID string `json:"thread_id"`
}

type codexTurnCompleted struct {
	Content string `json:"content"`
}

// NewCodexRunner constructs a CodexRunner, optionally resuming cfg.SessionID
// as the initial thread id.
func NewCodexRunner(cfg Config, procMgr *ProcessManager) (*CodexRunner, error) {
	return &CodexRunner{
		threadID: cfg.SessionID,
		workDir:  cfg.WorkDir,
		model:    cfg.Model,
		started:  cfg.SessionID != "",
		procMgr:  procMgr,
	}, nil
}

func (c *CodexRunner) buildArgs(req Request) []string {
	var args []string
	if !c.started && c.threadID == "" {
		args = []string{"exec", req.Prompt, "--json"}
	} else {
		args = []string{"resume", c.threadID, req.Prompt, "--json"}
	}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	return args
}

func (c *CodexRunner) Run(ctx context.Context, req Request, logw io.Writer) (Result, error) {
	cmd := newCommand(ctx, "codex", c.buildArgs(req)...)
	cmd.Dir = c.workDir

	stdout, stderr, err := c.procMgr.runStreaming(cmd, logw)
	if err != nil {
		return Result{}, fmt.Errorf("agent: codex: %w (stderr: %s)", err, string(stderr))
	}

	threadID, content, err := parseCodexEvents(stdout)
	if err != nil {
		return Result{}, fmt.Errorf("agent: codex: parse events: %w", err)
	}
	if threadID != "" {
		c.threadID = threadID
	}
	c.started = true
	return Result{Content: content, SessionID: c.threadID}, nil
}

func parseCodexEvents(data []byte) (threadID, content string, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt codexEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			return "", "", fmt.Errorf("parse event type: %w", err)
		}
		switch evt.Type {
		case "ThreadStarted":
			var started codexThreadStarted
			if err := json.Unmarshal([]byte(line), &started); err != nil {
				return "", "", fmt.Errorf("parse ThreadStarted: %w", err)
			}
			threadID = started.ThreadID
		case "TurnCompleted":
			var completed codexTurnCompleted
			if err := json.Unmarshal([]byte(line), &completed); err != nil {
				return "", "", fmt.Errorf("parse TurnCompleted: %w", err)
			}
			content = completed.Content
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("scan events: %w", err)
	}
	return threadID, content, nil
}

func (c *CodexRunner) Close() error { return nil }

var _ Runner = (*CodexRunner)(nil)
