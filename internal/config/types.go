package config

// ProviderConfig defines a transport layer (CLI command, args, base settings).
// Providers are separate from agents -- multiple agents can share one provider.
type ProviderConfig struct {
	Command string   `json:"command"`          // CLI binary name (e.g., "claude", "codex", "goose")
	Args    []string `json:"args,omitempty"`   // Default args appended to every invocation
	Type    string   `json:"type"`             // Backend type matching agent.Config.Type: "claude", "codex", "goose"
}

// AgentConfig defines a role that uses a specific provider and model.
type AgentConfig struct {
	Provider     string   `json:"provider"`               // Key into Providers map
	Model        string   `json:"model,omitempty"`        // Model override (e.g., "opus-4", "gpt-4.1")
	SystemPrompt string   `json:"system_prompt,omitempty"` // Role-specific system prompt
	Tools        []string `json:"tools,omitempty"`         // Allowed tools for this role
}

// WorkflowStepConfig defines one step in a workflow pipeline.
type WorkflowStepConfig struct {
	Agent string `json:"agent"` // Key into Agents map
}

// WorkflowConfig defines a pipeline of agent steps (e.g., code -> review -> test).
type WorkflowConfig struct {
	Steps []WorkflowStepConfig `json:"steps"`
}

// SchedulingConfig carries the task-orchestration engine's tunables: worker
// capacity, the independent retry budgets for in-chain steps versus
// judgement continuations, and the Planner's quality-acceptance gate.
type SchedulingConfig struct {
	MaxWorkers               int     `json:"max_workers"`
	MaxTaskDuration          float64 `json:"max_task_duration"`
	SerialChainTaskRetries   int     `json:"serial_chain_task_retries"`
	PlannerQualityRetries    int     `json:"planner_quality_retries"`
	QualityThreshold         int     `json:"quality_threshold"`
	MaxIterations            int     `json:"max_iterations"`
	StrictContextValidation  bool    `json:"strict_context_validation"`
}

// OrchestratorConfig is the top-level configuration.
type OrchestratorConfig struct {
	Providers  map[string]ProviderConfig `json:"providers"`
	Agents     map[string]AgentConfig    `json:"agents"`
	Workflows  map[string]WorkflowConfig `json:"workflows"`
	Scheduling SchedulingConfig          `json:"scheduling"`
}
