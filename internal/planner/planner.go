// Package planner implements PlannerOps: LLM-driven decomposition of a
// natural-language instruction into a validated, dependency-annotated task
// list, gated by a second "Quality Judge" LLM call before the tasks are
// admitted to execution. It also implements the final-completion judge and
// continuation planning (planAdditionalTasks) that closes the
// Planner→Executor→Judge loop when a round of execution leaves work
// undone. Reuses the Judge's extract-JSON-from-mixed-content pattern,
// generalized to arrays of structured breakdowns, and composes prompts
// with the same structured-schema-prompt idiom the workflow execution
// path uses.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devforge/orchestrator/internal/agent"
	"github.com/devforge/orchestrator/internal/events"
	"github.com/devforge/orchestrator/internal/jsonextract"
	"github.com/devforge/orchestrator/internal/similarity"
	"github.com/devforge/orchestrator/internal/store"
	"github.com/devforge/orchestrator/internal/task"
)

var taskIDPattern = regexp.MustCompile(`^task-[1-9][0-9]*$`)

// TaskBreakdown is one task as emitted by the Planner agent, in its own
// session-local id namespace, before persistence assigns a globally unique
// id and resolves branch/dependency references into the store's
// namespace.
type TaskBreakdown struct {
	ID                string   `json:"id"`
	Description       string   `json:"description"`
	Branch            string   `json:"branch"`
	ScopePaths        []string `json:"scopePaths"`
	Acceptance        string   `json:"acceptance"`
	Type              string   `json:"type"`
	EstimatedDuration float64  `json:"estimatedDuration"`
	Context           string   `json:"context"`
	Dependencies      []string `json:"dependencies"`
	Summary           string   `json:"summary,omitempty"`
}

// QualityVerdict is the Quality Judge's score of a candidate task set.
type QualityVerdict struct {
	IsAcceptable bool     `json:"isAcceptable"`
	Score        int      `json:"score"`
	Issues       []string `json:"issues"`
	Suggestions  []string `json:"suggestions"`
}

// FinalCompletionVerdict is judgeFinalCompletionWithContext's result.
type FinalCompletionVerdict struct {
	IsComplete                bool     `json:"isComplete"`
	MissingAspects            []string `json:"missingAspects"`
	AdditionalTaskSuggestions []string `json:"additionalTaskSuggestions"`
	CompletionScore           int      `json:"completionScore"`
	CodeChangeAnalysis        string   `json:"codeChangeAnalysis,omitempty"`
}

// Config configures Ops.
type Config struct {
	DefaultModel     string
	MaxTaskDuration  float64 // default 8
	JSONRetries      int     // N_json, default 3
	QualityRetries   int     // plannerQualityRetries, default 5
	QualityThreshold int     // default 60
	MaxRetryTasks    int     // MAX_RETRY_TASKS, default 5
	DuplicateRetries int     // default 3
}

// Ops implements PlannerOps. The three agent.Runner fields are typically
// the same underlying backend configured with different roles/system
// prompts (planner, quality judge, final-completion judge), but are kept
// distinct so callers can route them to separate sessions.
type Ops struct {
	cfg          Config
	tasks        store.TaskStore
	planner      agent.Runner
	qualityJudge agent.Runner
	finalJudge   agent.Runner
	bus          *events.EventBus
}

// WithEventBus attaches an event bus that planning cycles publish
// PlannerCycleEvents to. Optional: a nil bus (the zero value) disables
// publishing.
func (o *Ops) WithEventBus(bus *events.EventBus) *Ops {
	o.bus = bus
	return o
}

func (o *Ops) publish(sessionID, stage, detail string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.TopicPlanner, events.PlannerCycleEvent{
		SessionID: sessionID, Stage: stage, Detail: detail, Timestamp: time.Now().UTC(),
	})
}

// New builds Ops.
func New(cfg Config, tasks store.TaskStore, plannerRunner, qualityJudgeRunner, finalJudgeRunner agent.Runner) *Ops {
	if cfg.JSONRetries == 0 {
		cfg.JSONRetries = 3
	}
	if cfg.QualityRetries == 0 {
		cfg.QualityRetries = 5
	}
	if cfg.QualityThreshold == 0 {
		cfg.QualityThreshold = 60
	}
	if cfg.MaxRetryTasks == 0 {
		cfg.MaxRetryTasks = 5
	}
	if cfg.DuplicateRetries == 0 {
		cfg.DuplicateRetries = 3
	}
	if cfg.MaxTaskDuration == 0 {
		cfg.MaxTaskDuration = 8
	}
	return &Ops{cfg: cfg, tasks: tasks, planner: plannerRunner, qualityJudge: qualityJudgeRunner, finalJudge: finalJudgeRunner}
}

// PlanTasks decomposes instruction into a persisted, validated task list.
// sessionID namespaces the persisted task/branch ids so concurrent
// planning sessions never collide. JSON-syntax failures retry up to
// cfg.JSONRetries without touching the quality budget; validation
// failures and Quality Judge rejections share cfg.QualityRetries.
func (o *Ops) PlanTasks(ctx context.Context, sessionID, instruction string) ([]*task.Task, error) {
	var feedback string
	jsonAttempts := 0
	qualityAttempts := 0

	for {
		result, err := o.planner.Run(ctx, agent.Request{Prompt: composePlannerPrompt(instruction, feedback, o.cfg.MaxTaskDuration), Model: o.cfg.DefaultModel}, io.Discard)
		if err != nil {
			return nil, fmt.Errorf("planner: agent call failed: %w", err)
		}

		breakdowns, perr := parseBreakdowns(result.Content)
		if perr != nil {
			jsonAttempts++
			if jsonAttempts > o.cfg.JSONRetries {
				return nil, fmt.Errorf("planner: exhausted JSON retries: %w", perr)
			}
			feedback = fmt.Sprintf("Your previous response was not valid JSON: %v. Respond with only the JSON array, no prose.", perr)
			continue
		}

		if verr := validateBreakdowns(breakdowns, o.cfg.MaxTaskDuration); verr != nil {
			qualityAttempts++
			if qualityAttempts > o.cfg.QualityRetries {
				return nil, fmt.Errorf("planner: exhausted quality retries: %w", verr)
			}
			feedback = fmt.Sprintf("Your task breakdown was invalid: %v. Fix the issue and resend the full JSON array.", verr)
			continue
		}

		verdict, err := o.judgeQuality(ctx, instruction, breakdowns)
		if err != nil {
			return nil, err
		}
		if verdict.IsAcceptable || verdict.Score >= o.cfg.QualityThreshold {
			o.publish(sessionID, "accepted", fmt.Sprintf("score %d, %d tasks", verdict.Score, len(breakdowns)))
			return o.persistBreakdowns(ctx, sessionID, breakdowns)
		}

		qualityAttempts++
		o.publish(sessionID, "quality_rejected", fmt.Sprintf("score %d (attempt %d/%d)", verdict.Score, qualityAttempts, o.cfg.QualityRetries))
		if qualityAttempts > o.cfg.QualityRetries {
			return nil, fmt.Errorf("planner: quality judge rejected the task set after %d attempts: score %d, issues: %s",
				qualityAttempts, verdict.Score, strings.Join(verdict.Issues, "; "))
		}
		feedback = composeQualityFeedback(verdict)
	}
}

func (o *Ops) judgeQuality(ctx context.Context, instruction string, breakdowns []TaskBreakdown) (*QualityVerdict, error) {
	payload, err := json.Marshal(breakdowns)
	if err != nil {
		return nil, fmt.Errorf("planner: marshal breakdowns for quality judge: %w", err)
	}
	prompt := fmt.Sprintf("Instruction:\n%s\n\nProposed task breakdown:\n%s\n\n"+
		"Score this breakdown 0-100 on whether it fully and efficiently decomposes the instruction into independently "+
		"verifiable tasks. Respond with a single JSON object: "+
		"{\"isAcceptable\": bool, \"score\": int, \"issues\": string[], \"suggestions\": string[]}.", instruction, payload)

	result, err := o.qualityJudge.Run(ctx, agent.Request{Prompt: prompt, Model: o.cfg.DefaultModel}, io.Discard)
	if err != nil {
		return nil, fmt.Errorf("planner: quality judge call failed: %w", err)
	}

	var v QualityVerdict
	if err := json.Unmarshal([]byte(result.Content), &v); err == nil {
		return &v, nil
	}
	extracted := jsonextract.FindObject(jsonextract.StripFence(result.Content))
	if extracted == "" {
		return nil, fmt.Errorf("planner: no JSON object found in quality judge response")
	}
	if err := json.Unmarshal([]byte(extracted), &v); err != nil {
		return nil, fmt.Errorf("planner: unmarshal quality judge response: %w", err)
	}
	return &v, nil
}

func composeQualityFeedback(v *QualityVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The Quality Judge scored your previous breakdown %d/100 and found it unacceptable.\n", v.Score)
	if len(v.Issues) > 0 {
		b.WriteString("Issues:\n")
		for _, issue := range v.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}
	if len(v.Suggestions) > 0 {
		b.WriteString("Suggestions:\n")
		for _, s := range v.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	b.WriteString("Resend the full, revised JSON array.\n")
	return b.String()
}

func composePlannerPrompt(instruction, feedback string, maxTaskDuration float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Decompose the following instruction into a JSON array of tasks.\n\nInstruction:\n%s\n\n", instruction)
	b.WriteString("Each task object must have these fields:\n")
	b.WriteString(`- id: string matching ^task-[1-9][0-9]*$` + "\n")
	b.WriteString("- description: string\n")
	b.WriteString("- branch: string, a short git branch name\n")
	b.WriteString("- scopePaths: string[], at least one path this task is expected to touch\n")
	b.WriteString("- acceptance: string, concrete verifiable acceptance criteria\n")
	b.WriteString("- type: one of \"implementation\", \"documentation\", \"investigation\", \"integration\"\n")
	fmt.Fprintf(&b, "- estimatedDuration: number in [0.5, %g] (hours)\n", maxTaskDuration)
	b.WriteString("- context: string, relevant background for whoever executes this task\n")
	b.WriteString("- dependencies: string[], ids of sibling tasks (in this same array) that must complete first, possibly empty\n")
	b.WriteString("- summary: optional string, at most 50 characters\n")
	b.WriteString("\nRespond with only the JSON array, no surrounding prose.\n")
	if feedback != "" {
		fmt.Fprintf(&b, "\n%s\n", feedback)
	}
	return b.String()
}

// parseBreakdowns extracts and unmarshals the Planner's JSON array,
// falling back from a direct unmarshal through a fenced-block/mixed-prose
// scan, same as the Judge's response parsing.
func parseBreakdowns(content string) ([]TaskBreakdown, error) {
	var breakdowns []TaskBreakdown
	if err := json.Unmarshal([]byte(content), &breakdowns); err == nil {
		return breakdowns, nil
	}

	extracted := jsonextract.Find(jsonextract.StripFence(content))
	if extracted == "" {
		return nil, fmt.Errorf("no JSON array found in planner response")
	}
	if err := json.Unmarshal([]byte(extracted), &breakdowns); err != nil {
		return nil, fmt.Errorf("unmarshal extracted planner response: %w", err)
	}
	return breakdowns, nil
}

// validBreakdownTypes is the closed set a breakdown's type must belong to
// before persistBreakdowns casts it raw into task.Type.
var validBreakdownTypes = map[string]bool{
	string(task.TypeImplementation): true,
	string(task.TypeDocumentation):  true,
	string(task.TypeInvestigation):  true,
	string(task.TypeIntegration):    true,
}

// validateBreakdowns checks the schema invariants planTasks step 3
// requires: id pattern, scopePaths non-empty, estimatedDuration range,
// type membership in the closed set, summary length, dependency
// references resolve within the set, and the dependency relation among
// the breakdowns is acyclic.
func validateBreakdowns(breakdowns []TaskBreakdown, maxTaskDuration float64) error {
	if len(breakdowns) == 0 {
		return fmt.Errorf("empty task breakdown")
	}

	ids := make(map[string]bool, len(breakdowns))
	for _, b := range breakdowns {
		if ids[b.ID] {
			return fmt.Errorf("duplicate task id %q", b.ID)
		}
		ids[b.ID] = true
	}

	for _, b := range breakdowns {
		if !taskIDPattern.MatchString(b.ID) {
			return fmt.Errorf("task id %q does not match ^task-[1-9][0-9]*$", b.ID)
		}
		if len(b.ScopePaths) == 0 {
			return fmt.Errorf("task %q: scopePaths must be non-empty", b.ID)
		}
		if b.EstimatedDuration < 0.5 {
			return fmt.Errorf("task %q: estimatedDuration %.2f below minimum 0.5", b.ID, b.EstimatedDuration)
		}
		if b.EstimatedDuration > maxTaskDuration {
			return fmt.Errorf("task %q: estimatedDuration %.2f exceeds maximum %.2f", b.ID, b.EstimatedDuration, maxTaskDuration)
		}
		if !validBreakdownTypes[b.Type] {
			return fmt.Errorf("task %q: type %q is not one of implementation, documentation, investigation, integration", b.ID, b.Type)
		}
		if len(b.Summary) > 50 {
			return fmt.Errorf("task %q: summary exceeds 50 characters", b.ID)
		}
		for _, dep := range b.Dependencies {
			if !ids[dep] {
				return fmt.Errorf("task %q: dependency %q does not reference a sibling task", b.ID, dep)
			}
		}
	}

	if cycle := findBreakdownCycle(breakdowns); cycle != nil {
		return fmt.Errorf("cyclic dependency: %s", strings.Join(cycle, " -> "))
	}
	return nil
}

func findBreakdownCycle(breakdowns []TaskBreakdown) []string {
	deps := make(map[string][]string, len(breakdowns))
	for _, b := range breakdowns {
		deps[b.ID] = b.Dependencies
	}

	const (
		white = iota
		gray
		black
	)
	colors := make(map[string]int, len(breakdowns))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = gray
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch colors[dep] {
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			case gray:
				for i, s := range stack {
					if s == dep {
						return append(append([]string(nil), stack[i:]...), dep)
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[id] = black
		return nil
	}

	for _, b := range breakdowns {
		if colors[b.ID] == white {
			if cycle := visit(b.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// persistBreakdowns assigns each breakdown a globally unique id (the
// planning session id composed with the breakdown's local id), transforms
// its branch name to include that id, resolves its dependencies to the
// newly assigned ids, and persists it via CreateTask.
func (o *Ops) persistBreakdowns(ctx context.Context, sessionID string, breakdowns []TaskBreakdown) ([]*task.Task, error) {
	idMap := make(map[string]string, len(breakdowns))
	for _, b := range breakdowns {
		idMap[b.ID] = fmt.Sprintf("%s-%s", sessionID, b.ID)
	}

	created := make([]*task.Task, 0, len(breakdowns))
	for _, b := range breakdowns {
		newID := idMap[b.ID]
		deps := make([]string, 0, len(b.Dependencies))
		for _, d := range b.Dependencies {
			deps = append(deps, idMap[d])
		}

		t := &task.Task{
			TaskID:            newID,
			Branch:            fmt.Sprintf("%s-%s", b.Branch, newID),
			ScopePaths:        b.ScopePaths,
			Acceptance:        b.Acceptance,
			Type:              task.Type(b.Type),
			EstimatedDuration: b.EstimatedDuration,
			Context:           b.Context,
			Dependencies:      deps,
			State:             task.Ready,
			Summary:           b.Summary,
			RootSessionID:     sessionID,
			SessionID:         sessionID,
		}
		if err := o.tasks.CreateTask(ctx, t); err != nil {
			return nil, fmt.Errorf("planner: persist task %q: %w", newID, err)
		}
		created = append(created, t)
	}
	return created, nil
}

// JudgeFinalCompletionWithContext asks whether instruction's execution is
// complete given everything that happened this round. A parse failure
// defaults to "complete" rather than surfacing an error, so a malformed
// Judge response can never drive the orchestrator into an infinite
// re-planning loop.
func (o *Ops) JudgeFinalCompletionWithContext(ctx context.Context, instruction string, completedDescriptions, failedDescriptions, runSummaries []string, codeDiffStat string) (*FinalCompletionVerdict, error) {
	prompt := composeFinalJudgePrompt(instruction, completedDescriptions, failedDescriptions, runSummaries, codeDiffStat)

	result, err := o.finalJudge.Run(ctx, agent.Request{Prompt: prompt, Model: o.cfg.DefaultModel}, io.Discard)
	if err != nil {
		return &FinalCompletionVerdict{IsComplete: true}, nil
	}

	var v FinalCompletionVerdict
	if err := json.Unmarshal([]byte(result.Content), &v); err == nil {
		return &v, nil
	}
	extracted := jsonextract.FindObject(jsonextract.StripFence(result.Content))
	if extracted == "" {
		return &FinalCompletionVerdict{IsComplete: true}, nil
	}
	if err := json.Unmarshal([]byte(extracted), &v); err != nil {
		return &FinalCompletionVerdict{IsComplete: true}, nil
	}
	return &v, nil
}

func composeFinalJudgePrompt(instruction string, completedDescriptions, failedDescriptions, runSummaries []string, codeDiffStat string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original instruction:\n%s\n\n", instruction)
	fmt.Fprintf(&b, "Completed tasks:\n%s\n\n", strings.Join(completedDescriptions, "\n"))
	fmt.Fprintf(&b, "Failed/blocked tasks:\n%s\n\n", strings.Join(failedDescriptions, "\n"))
	fmt.Fprintf(&b, "Run summaries:\n%s\n\n", strings.Join(runSummaries, "\n"))
	fmt.Fprintf(&b, "Code diff stat:\n%s\n\n", codeDiffStat)
	b.WriteString("Respond with a single JSON object: {\"isComplete\": bool, \"missingAspects\": string[], " +
		"\"additionalTaskSuggestions\": string[], \"completionScore\": int, \"codeChangeAnalysis\": string}.\n")
	return b.String()
}

// retryCandidate pairs a retryable task with the priority it sorts by:
// NEEDS_CONTINUATION tasks are retried before blocked ones, ties broken by
// task id.
type retryCandidate struct {
	task     *task.Task
	priority int
}

// collectRetryableTasks selects tasks eligible for continuation-planning
// retry: NEEDS_CONTINUATION, or BLOCKED with a retryable reason that
// hasn't already been retried once from the integration branch. Capped at
// cfg.MaxRetryTasks, NEEDS_CONTINUATION first then id-lex.
func (o *Ops) collectRetryableTasks(ctx context.Context) ([]*task.Task, error) {
	all, err := o.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []retryCandidate
	for _, t := range all {
		switch {
		case t.State == task.NeedsContinuation:
			candidates = append(candidates, retryCandidate{task: t, priority: 0})
		case t.State == task.Blocked && !t.IntegrationRetried &&
			(t.BlockReason == task.BlockMaxRetries || t.BlockReason == task.BlockSystemErrorTransient):
			candidates = append(candidates, retryCandidate{task: t, priority: 1})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].task.TaskID < candidates[j].task.TaskID
	})

	if len(candidates) > o.cfg.MaxRetryTasks {
		candidates = candidates[:o.cfg.MaxRetryTasks]
	}

	out := make([]*task.Task, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.task)
	}
	return out, nil
}

// resetForRetry CAS-transitions a retryable task back to READY, clearing
// its block reason, and marks integrationRetried when it was reset from a
// MAX_RETRIES/SYSTEM_ERROR_TRANSIENT block (the reset budget PlannerOps
// grants it is spent, whether or not the retry itself succeeds).
func (o *Ops) resetForRetry(ctx context.Context, t *task.Task) (*task.Task, error) {
	wasRetryableBlock := t.State == task.Blocked
	return o.tasks.UpdateTaskCAS(ctx, t.TaskID, t.Version, func(tk *task.Task) error {
		tk.State = task.Ready
		tk.Owner = ""
		tk.BlockReason = ""
		tk.BlockMessage = ""
		if wasRetryableBlock {
			tk.IntegrationRetried = true
		}
		return nil
	})
}

// PlanAdditionalTasks runs continuation planning: it resets the eligible
// retryable tasks to READY, prompts the Planner with the completed-task
// summaries, retryable-task ids, and missingAspects from the
// final-completion judge, and persists any new tasks it proposes under a
// fresh additional-session id prefix. An empty additional-task response is
// valid: it means the Planner has nothing more to add. Returns the
// combined set of reset-for-retry tasks and newly created tasks.
func (o *Ops) PlanAdditionalTasks(ctx context.Context, sessionID, instruction string, missingAspects []string) ([]*task.Task, error) {
	retryable, err := o.collectRetryableTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("planner: collect retryable tasks: %w", err)
	}

	reset := make([]*task.Task, 0, len(retryable))
	for _, t := range retryable {
		r, err := o.resetForRetry(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("planner: reset %q for retry: %w", t.TaskID, err)
		}
		reset = append(reset, r)
	}

	completed, err := o.completedTasks(ctx)
	if err != nil {
		return nil, err
	}

	retryIDs := make([]string, 0, len(reset))
	for _, t := range reset {
		retryIDs = append(retryIDs, t.TaskID)
	}

	additionalSessionID := fmt.Sprintf("%s-add-%s", sessionID, uuid.New().String()[:8])

	var feedback string
	for attempt := 0; ; attempt++ {
		prompt := composeAdditionalPrompt(instruction, completed, retryIDs, missingAspects, feedback, o.cfg.MaxTaskDuration)
		result, err := o.planner.Run(ctx, agent.Request{Prompt: prompt, Model: o.cfg.DefaultModel}, io.Discard)
		if err != nil {
			return nil, fmt.Errorf("planner: additional-tasks agent call failed: %w", err)
		}

		breakdowns, perr := parseBreakdowns(result.Content)
		if perr != nil {
			if isEmptyArrayResponse(result.Content) {
				o.publish(sessionID, "additional_tasks", "no additional work needed")
				return reset, nil
			}
			if attempt >= o.cfg.DuplicateRetries {
				return nil, fmt.Errorf("planner: exhausted additional-task retries: %w", perr)
			}
			feedback = fmt.Sprintf("Your previous response was not valid JSON: %v. Respond with a JSON array (or [] for no additional work).", perr)
			continue
		}
		if len(breakdowns) == 0 {
			o.publish(sessionID, "additional_tasks", "no additional work needed")
			return reset, nil
		}

		if verr := validateBreakdowns(breakdowns, o.cfg.MaxTaskDuration); verr != nil {
			if attempt >= o.cfg.DuplicateRetries {
				return nil, fmt.Errorf("planner: exhausted additional-task retries: %w", verr)
			}
			feedback = fmt.Sprintf("Invalid breakdown: %v. Fix and resend.", verr)
			continue
		}

		if derr := checkDuplicates(breakdowns, completed); derr != nil {
			if attempt >= o.cfg.DuplicateRetries {
				return nil, fmt.Errorf("planner: exhausted additional-task retries: %w", derr)
			}
			feedback = fmt.Sprintf("%v. These tasks already completed; propose different work.", derr)
			continue
		}

		created, err := o.persistBreakdowns(ctx, additionalSessionID, breakdowns)
		if err != nil {
			return nil, err
		}
		o.publish(sessionID, "additional_tasks", fmt.Sprintf("%d reset for retry, %d new", len(reset), len(created)))
		return append(reset, created...), nil
	}
}

func isEmptyArrayResponse(content string) bool {
	return strings.TrimSpace(jsonextract.StripFence(content)) == "[]"
}

// completedTasks returns every DONE task, for "do not recreate" context
// and duplicate-acceptance comparison.
func (o *Ops) completedTasks(ctx context.Context) ([]*task.Task, error) {
	all, err := o.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	var done []*task.Task
	for _, t := range all {
		if t.State == task.Done {
			done = append(done, t)
		}
	}
	return done, nil
}

// checkDuplicates flags a new breakdown whose acceptance is an exact match
// or Levenshtein-similar (> 0.9) to a completed task's acceptance, and
// rejects any breakdown missing its (required, in this context) summary.
func checkDuplicates(breakdowns []TaskBreakdown, completed []*task.Task) error {
	for _, b := range breakdowns {
		if b.Summary == "" {
			return fmt.Errorf("task %q: summary is required for additional tasks", b.ID)
		}
		for _, c := range completed {
			if b.Acceptance == c.Acceptance || similarity.IsDuplicate(b.Acceptance, c.Acceptance) {
				return fmt.Errorf("task %q duplicates completed task %q (acceptance too similar)", b.ID, c.TaskID)
			}
		}
	}
	return nil
}

func composeAdditionalPrompt(instruction string, completed []*task.Task, retryIDs, missingAspects []string, feedback string, maxTaskDuration float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original instruction:\n%s\n\n", instruction)
	b.WriteString("Already-completed tasks (do not recreate these):\n")
	for _, t := range completed {
		fmt.Fprintf(&b, "- %s: %s\n", t.TaskID, t.Acceptance)
	}
	fmt.Fprintf(&b, "\nTasks already queued for retry: %s\n\n", strings.Join(retryIDs, ", "))
	b.WriteString("Missing aspects identified by the completion judge:\n")
	for _, a := range missingAspects {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	fmt.Fprintf(&b, "\nPropose additional tasks (same schema as before, estimatedDuration in [0.5, %g], summary required and <=50 chars) "+
		"to address the missing aspects, or respond with [] if no additional work is needed.\n", maxTaskDuration)
	if feedback != "" {
		fmt.Fprintf(&b, "\n%s\n", feedback)
	}
	return b.String()
}
