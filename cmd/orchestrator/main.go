package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/devforge/orchestrator/internal/agent"
	"github.com/devforge/orchestrator/internal/config"
	"github.com/devforge/orchestrator/internal/events"
	"github.com/devforge/orchestrator/internal/gitfx"
	"github.com/devforge/orchestrator/internal/judge"
	"github.com/devforge/orchestrator/internal/orchestrator"
	"github.com/devforge/orchestrator/internal/planner"
	"github.com/devforge/orchestrator/internal/schedulerops"
	"github.com/devforge/orchestrator/internal/store"
	"github.com/devforge/orchestrator/internal/tui"
	"github.com/devforge/orchestrator/internal/worker"
)

func main() {
	instruction := flag.String("instruction", "", "natural-language instruction to plan and execute; empty starts the TUI idle")
	repoPath := flag.String("repo", ".", "path to the git repository the orchestrator operates on")
	sessionID := flag.String("session", "", "session id namespacing this run's tasks; defaults to a generated id")
	flag.Parse()

	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create ProcessManager for subprocess tracking
	pm := agent.NewProcessManager()

	// Load configuration
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Determine config paths
	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
		os.Exit(1)
	}
	globalPath := filepath.Join(homeDir, ".orchestrator", "config.json")
	projectPath := filepath.Join(".orchestrator", "config.json")

	// Create event bus
	bus := events.NewEventBus()
	defer bus.Close()

	// Create TUI model
	model := tui.New(bus, cfg, globalPath, projectPath)

	// Start Bubble Tea program in a goroutine so main can handle shutdown
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	if *instruction != "" {
		orch, err := buildOrchestrator(cfg, pm, bus, *repoPath)
		if err != nil {
			log.Printf("orchestrator: setup failed: %v", err)
		} else {
			id := *sessionID
			if id == "" {
				id = fmt.Sprintf("session-%d", time.Now().Unix())
			}
			go func() {
				if _, err := orch.Run(ctx, id, *instruction); err != nil {
					log.Printf("orchestrator: run failed: %v", err)
				}
			}()
		}
	}

	// Handle shutdown
	select {
	case err := <-errChan:
		// Normal TUI exit (user pressed 'q' or TUI finished)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		// Signal received (Ctrl+C or SIGTERM)
		// Call stop() to restore default signal handling (double Ctrl+C = force exit)
		stop()

		log.Println("Shutdown signal received, cleaning up...")

		// Kill all tracked subprocesses
		if err := pm.KillAll(); err != nil {
			log.Printf("Error killing subprocesses: %v", err)
		}

		// Quit the TUI
		p.Quit()

		// Wait for TUI to exit with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		select {
		case err := <-errChan:
			if err != nil {
				log.Printf("TUI exit error: %v", err)
			}
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing exit")
		}
	}

	log.Println("Shutdown complete")
}

// runnerFor resolves role (a key into cfg.Agents) to a one-shot agent.Runner
// via its configured provider.
func runnerFor(cfg *config.OrchestratorConfig, pm *agent.ProcessManager, role string) (agent.Runner, error) {
	ac, ok := cfg.Agents[role]
	if !ok {
		return nil, fmt.Errorf("main: no agent configured for role %q", role)
	}
	pc, ok := cfg.Providers[ac.Provider]
	if !ok {
		return nil, fmt.Errorf("main: no provider %q for agent role %q", ac.Provider, role)
	}
	return agent.New(agent.Config{
		Type:         agent.AgentType(pc.Type),
		Model:        ac.Model,
		SystemPrompt: ac.SystemPrompt,
	}, pm)
}

// buildOrchestrator wires the task store, git effects, WorkerOps, JudgeOps,
// PlannerOps, and the top-level state machine from configuration.
func buildOrchestrator(cfg *config.OrchestratorConfig, pm *agent.ProcessManager, bus *events.EventBus, repoPath string) (*orchestrator.Orchestrator, error) {
	dataDir := filepath.Join(repoPath, ".orchestrator", "data")
	tasks, err := store.New(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}

	git := gitfx.New(2 * time.Minute)

	workerAgentCfg, ok := cfg.Agents["coder"]
	if !ok {
		return nil, fmt.Errorf("main: no agent configured for role %q", "coder")
	}
	workerProvider, ok := cfg.Providers[workerAgentCfg.Provider]
	if !ok {
		return nil, fmt.Errorf("main: no provider %q for agent role %q", workerAgentCfg.Provider, "coder")
	}

	newRun := func(agentType agent.AgentType, sessionID, workDir, model string) (agent.Runner, error) {
		return agent.New(agent.Config{
			Type:         agentType,
			SessionID:    sessionID,
			WorkDir:      workDir,
			Model:        model,
			SystemPrompt: workerAgentCfg.SystemPrompt,
		}, pm)
	}

	w := worker.New(worker.Config{
		RepoPath:     repoPath,
		RunLogRoot:   filepath.Join(repoPath, ".orchestrator", "runs"),
		DefaultAgent: agent.AgentType(workerProvider.Type),
		DefaultModel: workerAgentCfg.Model,
		RunTimeout:   time.Duration(cfg.Scheduling.MaxTaskDuration * float64(time.Hour)),
	}, git, tasks, newRun)

	judgeRunner, err := runnerFor(cfg, pm, "task_judge")
	if err != nil {
		return nil, err
	}
	judgeSched := schedulerops.New(tasks, schedulerops.NewState(cfg.Scheduling.MaxWorkers))
	j := judge.New(judge.Config{
		RunLogRoot: filepath.Join(repoPath, ".orchestrator", "runs"),
	}, tasks, judgeSched, judgeRunner)
	j.WithEventBus(bus)

	plannerRunner, err := runnerFor(cfg, pm, "planner")
	if err != nil {
		return nil, err
	}
	qualityRunner, err := runnerFor(cfg, pm, "quality_judge")
	if err != nil {
		return nil, err
	}
	finalRunner, err := runnerFor(cfg, pm, "final_judge")
	if err != nil {
		return nil, err
	}
	p := planner.New(planner.Config{
		MaxTaskDuration:  cfg.Scheduling.MaxTaskDuration,
		QualityRetries:   cfg.Scheduling.PlannerQualityRetries,
		QualityThreshold: cfg.Scheduling.QualityThreshold,
	}, tasks, plannerRunner, qualityRunner, finalRunner)
	p.WithEventBus(bus)

	orch := orchestrator.New(orchestrator.Config{
		RepoPath:           repoPath,
		MaxWorkers:         cfg.Scheduling.MaxWorkers,
		MaxIterations:      cfg.Scheduling.MaxIterations,
		SerialChainRetries: cfg.Scheduling.SerialChainTaskRetries,
	}, tasks, git, p, w, j)
	orch.WithEventBus(bus)

	return orch, nil
}
