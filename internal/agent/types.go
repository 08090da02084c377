// Package agent is the orchestrator's LLM execution boundary: the
// AgentRunner interface, concrete CLI-backed adapters (Claude Code, Codex,
// Goose), subprocess lifecycle management, resilience wrapping (circuit
// breaker + exponential backoff), and dual-layer rate-limit detection.
package agent

import (
	"context"
	"io"
)

// Request is one turn sent to an agent.
type Request struct {
	Prompt       string
	WorkDir      string
	Model        string
	SystemPrompt string
	// SessionID resumes an existing conversation when non-empty.
	SessionID string
}

// Result is the outcome of one agent turn.
type Result struct {
	Content   string
	SessionID string
}

// Runner is the interface every backend adapter implements. Implementations
// stream raw subprocess output to Log as it's produced, in addition to
// returning the final parsed Result.
type Runner interface {
	// Run sends req to the agent, tee-ing raw transcript output to log, and
	// returns the parsed final response.
	Run(ctx context.Context, req Request, log io.Writer) (Result, error)

	// Close releases any resources held by the adapter (no-op for
	// subprocess-per-call backends).
	Close() error
}

// AgentType is the closed set of backend kinds the factory recognizes.
type AgentType string

const (
	TypeClaude AgentType = "claude"
	TypeCodex  AgentType = "codex"
	TypeGoose  AgentType = "goose"
)

// Config configures a Runner at construction time.
type Config struct {
	Type         AgentType
	WorkDir      string
	SessionID    string
	Model        string
	Provider     string // Goose local-LLM provider, e.g. "ollama"
	SystemPrompt string
}
