// Package worker implements WorkerOps: the task-execution lifecycle that
// sets up a worktree, runs the configured agent, commits and pushes the
// result, and tears the worktree down. Grounded on the worktree manager's
// git-shelling idiom and the backend adapters' subprocess execution
// pattern, generalized to the task-branch/base-branch-resolution semantics
// the scheduler requires.
package worker

import (
	"time"

	"github.com/devforge/orchestrator/internal/agent"
	"github.com/devforge/orchestrator/internal/gitfx"
	"github.com/devforge/orchestrator/internal/store"
)

// Outcome is the result of one execution attempt.
type Outcome struct {
	RunID        string
	Success      bool
	ErrorMessage string
	LogPath      string
	WorktreePath string
}

// RunnerFactory constructs an agent.Runner for a given agent type, wired
// to the orchestrator's shared ProcessManager.
type RunnerFactory func(agentType agent.AgentType, sessionID, workDir, model string) (agent.Runner, error)

// Config configures WorkerOps.
type Config struct {
	RepoPath     string
	WorktreeDir  string // relative to RepoPath, default ".worktrees"
	RunLogRoot   string
	DefaultAgent agent.AgentType
	DefaultModel string
	RunTimeout   time.Duration
}

// Ops implements the WorkerOps component.
type Ops struct {
	cfg      Config
	git      gitfx.Effects
	tasks    store.TaskStore
	newRun   RunnerFactory
	retry    agent.RetryConfig
	breakers *agent.BreakerRegistry
}

// New constructs WorkerOps.
func New(cfg Config, git gitfx.Effects, tasks store.TaskStore, newRun RunnerFactory) *Ops {
	if cfg.WorktreeDir == "" {
		cfg.WorktreeDir = ".worktrees"
	}
	return &Ops{
		cfg:      cfg,
		git:      git,
		tasks:    tasks,
		newRun:   newRun,
		retry:    agent.DefaultRetryConfig(),
		breakers: agent.NewBreakerRegistry(),
	}
}
