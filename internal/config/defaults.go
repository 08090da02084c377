package config

// DefaultConfig returns the default configuration with built-in providers, agents, and workflows.
func DefaultConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		Providers: map[string]ProviderConfig{
			"claude": {
				Command: "claude",
				Type:    "claude",
			},
			"codex": {
				Command: "codex",
				Type:    "codex",
			},
			"goose": {
				Command: "goose",
				Type:    "goose",
			},
		},
		Agents: map[string]AgentConfig{
			"orchestrator": {
				Provider:     "claude",
				SystemPrompt: "You coordinate task planning and agent workflows.",
			},
			"coder": {
				Provider:     "claude",
				SystemPrompt: "You implement features and write production code.",
			},
			"reviewer": {
				Provider:     "claude",
				SystemPrompt: "You review code for correctness, style, and best practices.",
			},
			"tester": {
				Provider:     "claude",
				SystemPrompt: "You write comprehensive tests and validate functionality.",
			},
			"planner": {
				Provider:     "claude",
				SystemPrompt: "You decompose instructions into independently verifiable, dependency-annotated tasks.",
			},
			"quality_judge": {
				Provider:     "claude",
				SystemPrompt: "You score a proposed task breakdown on completeness and independence.",
			},
			"task_judge": {
				Provider:     "claude",
				SystemPrompt: "You judge whether a completed task run satisfies its acceptance criteria.",
			},
			"final_judge": {
				Provider:     "claude",
				SystemPrompt: "You judge whether an instruction's execution is fully complete.",
			},
		},
		Workflows: map[string]WorkflowConfig{
			"standard": {
				Steps: []WorkflowStepConfig{
					{Agent: "coder"},
					{Agent: "reviewer"},
					{Agent: "tester"},
				},
			},
		},
		Scheduling: SchedulingConfig{
			MaxWorkers:             3,
			MaxTaskDuration:        8,
			SerialChainTaskRetries: 3,
			PlannerQualityRetries:  5,
			QualityThreshold:       60,
			MaxIterations:          2,
		},
	}
}
