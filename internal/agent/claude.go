package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// ClaudeRunner drives the Claude Code CLI (`claude -p ... --output-format
// json`), resuming the same session across calls once one is established.
type ClaudeRunner struct {
	sessionID    string
	workDir      string
	model        string
	systemPrompt string
	started      bool
	procMgr      *ProcessManager
}

type claudeResponse struct {
	SessionID string `json:"session_id"`
	Result    struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
}

// NewClaudeRunner constructs a ClaudeRunner, generating a session id if cfg
// doesn't already carry one (e.g. for continuation runs).
func NewClaudeRunner(cfg Config, procMgr *ProcessManager) (*ClaudeRunner, error) {
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("agent: claude: getwd: %w", err)
		}
	}
	return &ClaudeRunner{
		sessionID:    sessionID,
		workDir:      workDir,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		started:      cfg.SessionID != "",
		procMgr:      procMgr,
	}, nil
}

func (a *ClaudeRunner) buildArgs(req Request) []string {
	args := []string{"-p", req.Prompt, "--output-format", "json"}
	if a.started {
		args = append(args, "--resume", a.sessionID)
	} else {
		args = append(args, "--session-id", a.sessionID)
	}
	if a.model != "" {
		args = append(args, "--model", a.model)
	}
	if a.systemPrompt != "" {
		args = append(args, "--system-prompt", a.systemPrompt)
	}
	return args
}

func (a *ClaudeRunner) Run(ctx context.Context, req Request, logw io.Writer) (Result, error) {
	cmd := newCommand(ctx, "claude", a.buildArgs(req)...)
	cmd.Dir = a.workDir

	stdout, stderr, err := a.procMgr.runStreaming(cmd, logw)
	if err != nil {
		return Result{}, fmt.Errorf("agent: claude: %w (stderr: %s)", err, string(stderr))
	}

	var cr claudeResponse
	if err := json.Unmarshal(stdout, &cr); err != nil {
		return Result{}, fmt.Errorf("agent: claude: parse response: %w", err)
	}

	var content string
	for _, item := range cr.Result.Content {
		if item.Type == "text" {
			content += item.Text
		}
	}

	a.started = true
	if cr.SessionID != "" {
		a.sessionID = cr.SessionID
	}
	return Result{Content: content, SessionID: a.sessionID}, nil
}

func (a *ClaudeRunner) Close() error { return nil }

var _ Runner = (*ClaudeRunner)(nil)
