package agent

import "fmt"

// New constructs the Runner for cfg.Type, sharing procMgr across every
// adapter so subprocess tracking and shutdown is centralized.
func New(cfg Config, procMgr *ProcessManager) (Runner, error) {
	switch cfg.Type {
	case TypeClaude:
		return NewClaudeRunner(cfg, procMgr)
	case TypeCodex:
		return NewCodexRunner(cfg, procMgr)
	case TypeGoose:
		return NewGooseRunner(cfg, procMgr)
	default:
		return nil, fmt.Errorf("agent: unknown agent type %q", cfg.Type)
	}
}
