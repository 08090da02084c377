package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// GooseRunner drives the `goose` CLI, which additionally supports local
// LLM providers (Ollama, LM Studio, llama.cpp) via --provider/--model.
type GooseRunner struct {
	sessionName  string
	workDir      string
	model        string
	provider     string
	systemPrompt string
	started      bool
	procMgr      *ProcessManager
}

type gooseResponse struct {
	Content string `json:"content"`
}

// NewGooseRunner constructs a GooseRunner, generating a session name of the
// form "orchestrator-<hex>" if cfg doesn't already carry one.
func NewGooseRunner(cfg Config, procMgr *ProcessManager) (*GooseRunner, error) {
	sessionName := cfg.SessionID
	if sessionName == "" {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("agent: goose: generate session name: %w", err)
		}
		sessionName = "orchestrator-" + hex.EncodeToString(b)
	}
	return &GooseRunner{
		sessionName:  sessionName,
		workDir:      cfg.WorkDir,
		model:        cfg.Model,
		provider:     cfg.Provider,
		systemPrompt: cfg.SystemPrompt,
		procMgr:      procMgr,
	}, nil
}

func (g *GooseRunner) buildArgs(req Request) []string {
	args := []string{"run", "--text", req.Prompt, "--output-format", "json"}
	if !g.started {
		args = append(args, "--name", g.sessionName)
	} else {
		args = append(args, "--resume")
	}
	if g.provider != "" {
		args = append(args, "--provider", g.provider)
	}
	if g.model != "" {
		args = append(args, "--model", g.model)
	}
	if g.systemPrompt != "" {
		args = append(args, "--system", g.systemPrompt)
	}
	return args
}

func (g *GooseRunner) Run(ctx context.Context, req Request, logw io.Writer) (Result, error) {
	cmd := newCommand(ctx, "goose", g.buildArgs(req)...)
	cmd.Dir = g.workDir

	stdout, stderr, err := g.procMgr.runStreaming(cmd, logw)
	if err != nil {
		return Result{}, fmt.Errorf("agent: goose: %w (stderr: %s)", err, string(stderr))
	}

	content, err := parseGooseResponse(stdout)
	if err != nil {
		// Goose's JSON output isn't always well-formed across versions;
		// fall back to raw stdout rather than failing the run.
		content = string(stdout)
	}

	g.started = true
	return Result{Content: content, SessionID: g.sessionName}, nil
}

func parseGooseResponse(data []byte) (string, error) {
	var single gooseResponse
	if err := json.Unmarshal(data, &single); err == nil {
		return single.Content, nil
	}

	var contents []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var lineResp gooseResponse
		if err := json.Unmarshal([]byte(line), &lineResp); err == nil && lineResp.Content != "" {
			contents = append(contents, lineResp.Content)
		}
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("agent: goose: no parseable JSON content")
	}
	return strings.Join(contents, ""), nil
}

func (g *GooseRunner) Close() error { return nil }

var _ Runner = (*GooseRunner)(nil)
