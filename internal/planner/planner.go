// Package planner implements the outer control loop. The planner owns
// the todo list, a bounded window of recent executor feedback, and the
// supervision policy. It talks to the executor only by enqueueing
// commands; it never reaches into the inner loop's state.
package planner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/harrison/phonepilot/internal/models"
)

// Defaults for the supervision policy.
const (
	DefaultMaxFeedbackHistory = 2
	DefaultMaxInterventions   = 3
	DefaultMaxTaskRetries     = 3
)

// maxExecutionLog bounds the per-task notes kept for prompt optimization.
const maxExecutionLog = 50

// CommandSink is the planner's only handle on the executor.
type CommandSink interface {
	Enqueue(cmd models.Command)
}

// PromptStore is the prompt memory the planner reads at task start and
// writes after task end. Satisfied by *memory.Store.
type PromptStore interface {
	GetPrompt(ctx context.Context, taskType string) (string, error)
	Put(ctx context.Context, taskType, systemPrompt string) error
	MatchTaskType(ctx context.Context, description string) (string, error)
}

// Completer is the planning-model collaborator: corrective instructions,
// revised system prompts, and task decomposition.
type Completer interface {
	Complete(ctx context.Context, system string, user string) (string, error)
}

// Logger receives planner lifecycle events. May be nil.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Options configure the supervision policy. Zero values take defaults.
type Options struct {
	MaxFeedbackHistory int
	MaxInterventions   int
	MaxTaskRetries     int
}

// Planner is the outer loop. QueueUserInput and CollectFeedback may be
// called from the coordinator's goroutines; Tick must be called from a
// single loop.
type Planner struct {
	mu     sync.Mutex
	inputs []string
	window []models.Feedback

	sink      CommandSink
	completer Completer
	store     PromptStore
	logger    Logger
	opts      Options

	todos   *models.TodoList
	current *models.TodoItem

	// interventions counts consecutive corrective prompts for the
	// current attempt; reset on dispatch and escalation.
	interventions int

	// promptOverrides holds revised prompts that could not be persisted.
	// They stay authoritative for this process.
	promptOverrides map[string]string

	executionLog []string
	result       string
}

// New creates a planner. completer, store, and logger may each be nil;
// the planner degrades to canned corrections and no persistent memory.
func New(sink CommandSink, completer Completer, store PromptStore, opts Options, logger Logger) *Planner {
	if opts.MaxFeedbackHistory <= 0 {
		opts.MaxFeedbackHistory = DefaultMaxFeedbackHistory
	}
	if opts.MaxInterventions <= 0 {
		opts.MaxInterventions = DefaultMaxInterventions
	}
	if opts.MaxTaskRetries <= 0 {
		opts.MaxTaskRetries = DefaultMaxTaskRetries
	}
	return &Planner{
		sink:            sink,
		completer:       completer,
		store:           store,
		logger:          logger,
		opts:            opts,
		todos:           models.NewTodoList(),
		promptOverrides: make(map[string]string),
	}
}

// AddTodos preloads parsed plan items, typically before the loops start.
func (p *Planner) AddTodos(items []*models.TodoItem) {
	for _, item := range items {
		p.todos.AddItem(item)
	}
}

// QueueUserInput appends one user input for the next tick. Capacity is
// the coordinator's policy, not enforced here.
func (p *Planner) QueueUserInput(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, text)
}

// CollectFeedback appends one executor feedback to the bounded window,
// evicting the oldest entry beyond the cap.
func (p *Planner) CollectFeedback(fb models.Feedback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window = append(p.window, fb)
	if len(p.window) > p.opts.MaxFeedbackHistory {
		p.window = p.window[len(p.window)-p.opts.MaxFeedbackHistory:]
	}
}

// Todos returns the current todo items in dispatch order.
func (p *Planner) Todos() []*models.TodoItem {
	return p.todos.Items()
}

// Result returns the final user-facing message, once any task produced one.
func (p *Planner) Result() string {
	return p.result
}

// Done reports whether every todo item is terminal and no input is queued.
func (p *Planner) Done() bool {
	p.mu.Lock()
	pending := len(p.inputs)
	p.mu.Unlock()
	return pending == 0 && p.current == nil && p.todos.AllDone()
}

// Tick runs one planning cycle: fold at most one user input into the
// todo list, dispatch the next pending item if the executor is free,
// then run the supervision check over the feedback window.
func (p *Planner) Tick(ctx context.Context) {
	if input, ok := p.nextInput(); ok {
		p.fold(ctx, input)
	}

	p.supervise(ctx)

	if p.current == nil {
		p.dispatch(ctx)
	}
}

func (p *Planner) nextInput() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.inputs) == 0 {
		return "", false
	}
	input := p.inputs[0]
	p.inputs = p.inputs[1:]
	return input, true
}

// snapshotWindow copies the bounded window for supervision.
func (p *Planner) snapshotWindow() []models.Feedback {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Feedback, len(p.window))
	copy(out, p.window)
	return out
}

func (p *Planner) clearWindow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window = nil
}

// fold turns one user input into todo items, decomposed by the planning
// model when it reads like a multi-step plan. Items queue behind the
// running task and dispatch in order.
func (p *Planner) fold(ctx context.Context, input string) {
	steps := p.decompose(ctx, input)
	for _, step := range steps {
		taskType := p.classify(ctx, step)
		p.todos.AddItem(models.NewTodoItem(step, taskType, p.opts.MaxTaskRetries))
		p.infof("todo added (%s): %s", taskType, step)
	}
}

// decompose splits a plan-style request into individual tasks via the
// planning model. Single-step requests and model failures pass through
// as one item.
func (p *Planner) decompose(ctx context.Context, input string) []string {
	if p.completer == nil || !looksLikePlan(input) {
		return []string{input}
	}

	reply, err := p.completer.Complete(ctx, decomposeSystemPrompt, input)
	if err != nil {
		p.warnf("task decomposition failed, keeping single task: %v", err)
		return []string{input}
	}

	var steps []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			steps = append(steps, line)
		}
	}
	if len(steps) == 0 {
		return []string{input}
	}
	return steps
}

// classify picks a task type key for prompt-memory lookup.
func (p *Planner) classify(ctx context.Context, description string) string {
	if p.store != nil {
		if taskType, err := p.store.MatchTaskType(ctx, description); err == nil && taskType != "" {
			return taskType
		}
	}
	return "general"
}

// dispatch starts the next pending todo item, if any.
func (p *Planner) dispatch(ctx context.Context) {
	item := p.todos.NextPending()
	if item == nil {
		return
	}

	prompt := p.lookupPrompt(ctx, item.TaskType)
	item.Start()
	p.current = item
	p.interventions = 0
	p.executionLog = nil
	p.clearWindow()

	p.sink.Enqueue(models.StartTask(item.ID, item.Description, prompt))
	p.infof("dispatched %s (attempt %d): %s", item.ID, item.RetryCount+1, item.Description)
}

// lookupPrompt resolves the system prompt for a task type: in-process
// override first, then the persistent store.
func (p *Planner) lookupPrompt(ctx context.Context, taskType string) string {
	if prompt, ok := p.promptOverrides[taskType]; ok {
		return prompt
	}
	if p.store == nil {
		return ""
	}
	prompt, err := p.store.GetPrompt(ctx, taskType)
	if err != nil {
		p.warnf("prompt lookup for %q: %v", taskType, err)
		return ""
	}
	return prompt
}

// supervise inspects the bounded window and reacts to terminal states
// and stagnation.
func (p *Planner) supervise(ctx context.Context) {
	if p.current == nil {
		return
	}

	window := p.snapshotWindow()
	if len(window) == 0 {
		return
	}
	latest := window[len(window)-1]
	if latest.TaskID != p.current.ID {
		// Feedback from a previous attempt or task; ignore.
		return
	}

	p.recordExecution(latest)

	switch latest.Status.State {
	case models.StateCompleted:
		p.current.Complete()
		if latest.LastStep != nil && latest.LastStep.Message != "" {
			p.result = latest.LastStep.Message
		}
		p.infof("task done: %s", p.current.ID)
		p.optimizePrompt(ctx, p.current)
		p.current = nil
		return

	case models.StateFailed:
		p.retryOrFail(ctx, latest.Status.Reason)
		return
	}

	if p.stagnating(window, latest) {
		p.intervene(ctx, window)
	}
}

// stagnating reports whether the supervision trigger fires: the latest
// status is Stuck, or the two most recent feedbacks both saw an
// unchanged screen.
func (p *Planner) stagnating(window []models.Feedback, latest models.Feedback) bool {
	if latest.Status.State == models.StateStuck {
		return true
	}
	if len(window) < 2 {
		return false
	}
	a, b := window[len(window)-2], window[len(window)-1]
	return !a.ScreenChanged && !b.ScreenChanged
}

// intervene escalates: corrective prompts up to the intervention limit,
// then a context reset with a fresh attempt, then failure once the
// retry budget is spent.
func (p *Planner) intervene(ctx context.Context, window []models.Feedback) {
	p.interventions++
	// The window triggered once; start fresh so the same entries do not
	// re-trigger before new feedback arrives.
	p.clearWindow()

	if p.interventions < p.opts.MaxInterventions {
		correction := p.buildCorrection(ctx, window)
		p.sink.Enqueue(models.InjectPrompt(correction))
		p.warnf("intervention %d/%d for %s: injected correction",
			p.interventions, p.opts.MaxInterventions, p.current.ID)
		return
	}

	p.warnf("intervention limit reached for %s, resetting context", p.current.ID)
	p.sink.Enqueue(models.ResetContext())
	p.retryOrFail(ctx, "stagnation persisted past intervention limit")
}

// retryOrFail restarts the current item if budget remains, otherwise
// marks it failed and abandons it.
func (p *Planner) retryOrFail(ctx context.Context, reason string) {
	item := p.current
	if item.Retry() {
		prompt := p.lookupPrompt(ctx, item.TaskType)
		item.Start()
		p.interventions = 0
		p.executionLog = nil
		p.clearWindow()
		p.sink.Enqueue(models.StartTask(item.ID, item.Description, prompt))
		p.warnf("retrying %s (attempt %d): %s", item.ID, item.RetryCount+1, reason)
		return
	}

	item.Fail(reason)
	p.sink.Enqueue(models.Stop())
	p.errorf("task failed: %s: %s", item.ID, reason)
	p.optimizePrompt(ctx, item)
	p.current = nil
}

// buildCorrection renders a corrective instruction from the bounded
// window. The planning model refines it when available; the rendering is
// the fallback.
func (p *Planner) buildCorrection(ctx context.Context, window []models.Feedback) string {
	rendered := renderWindow(window)
	fallback := "The screen has not changed after your recent actions. " +
		"Re-examine the current screen and try a different approach."

	if p.completer == nil {
		return fallback
	}
	user := fmt.Sprintf("Task: %s\n\nRecent executor feedback:\n%s\n\n"+
		"Write one short corrective instruction for the execution agent.",
		p.current.Description, rendered)
	reply, err := p.completer.Complete(ctx, correctionSystemPrompt, user)
	if err != nil {
		p.warnf("corrective prompt generation failed, using fallback: %v", err)
		return fallback
	}
	return strings.TrimSpace(reply)
}

// recordExecution keeps a bounded per-task note trail for prompt
// optimization. Never the executor's full step log.
func (p *Planner) recordExecution(fb models.Feedback) {
	line := fmt.Sprintf("step %d: %s, screen_changed=%v", fb.StepCount, fb.Status.State, fb.ScreenChanged)
	if fb.LastStep != nil && fb.LastStep.ActionType != "" {
		line += ", action=" + fb.LastStep.ActionType
	}
	p.executionLog = append(p.executionLog, line)
	if len(p.executionLog) > maxExecutionLog {
		p.executionLog = p.executionLog[len(p.executionLog)-maxExecutionLog:]
	}
}

// optimizePrompt asks the planning model for a revised system prompt for
// the finished item's task type and persists it. Best-effort: failures
// are logged and the in-process value stays authoritative.
func (p *Planner) optimizePrompt(ctx context.Context, item *models.TodoItem) {
	if p.completer == nil {
		return
	}

	current := p.lookupPrompt(ctx, item.TaskType)
	user := fmt.Sprintf("Task type: %s\nTask: %s\nOutcome: %s\nCurrent system prompt:\n%s\n\nExecution notes:\n%s",
		item.TaskType, item.Description, item.Status, current, strings.Join(p.executionLog, "\n"))
	revised, err := p.completer.Complete(ctx, optimizeSystemPrompt, user)
	if err != nil {
		p.warnf("prompt optimization for %q failed: %v", item.TaskType, err)
		return
	}
	revised = strings.TrimSpace(revised)
	if revised == "" {
		return
	}

	p.promptOverrides[item.TaskType] = revised
	if p.store != nil {
		if err := p.store.Put(ctx, item.TaskType, revised); err != nil {
			p.warnf("persisting revised prompt for %q: %v", item.TaskType, err)
		}
	}
	p.infof("revised system prompt for %q", item.TaskType)
}

// looksLikePlan reports whether an input describes multiple steps.
func looksLikePlan(input string) bool {
	lower := strings.ToLower(input)
	return strings.Contains(input, "\n") ||
		strings.Contains(lower, " then ") ||
		strings.Contains(lower, " and then ") ||
		strings.Contains(lower, "; ")
}

// renderWindow produces the compact feedback rendering sent to the
// planning model.
func renderWindow(window []models.Feedback) string {
	var b strings.Builder
	for _, fb := range window {
		fmt.Fprintf(&b, "- step %d: status=%s screen_changed=%v", fb.StepCount, fb.Status.State, fb.ScreenChanged)
		if fb.LastStep != nil {
			if fb.LastStep.ActionType != "" {
				fmt.Fprintf(&b, " action=%s", fb.LastStep.ActionType)
			}
			if fb.LastStep.Thinking != "" {
				thinking := fb.LastStep.Thinking
				if len(thinking) > 100 {
					thinking = thinking[:100]
				}
				fmt.Fprintf(&b, " thinking=%q", thinking)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

const decomposeSystemPrompt = `You break a user's phone-automation request into a short ordered list of independent tasks.
Reply with one task per line, no numbering, no commentary. Reply with a single line if the request is already one task.`

const correctionSystemPrompt = `You supervise a phone-automation agent that has stopped making progress.
Given the task and recent feedback, reply with ONE short corrective instruction telling the agent what to try next. No commentary.`

const optimizeSystemPrompt = `You maintain system prompts for a phone-automation agent, one per task type.
Given the task outcome and execution notes, reply with a revised system prompt for this task type that would improve future attempts. Reply with the prompt text only.`

func (p *Planner) infof(format string, args ...any) {
	if p.logger != nil {
		p.logger.Infof("planner: "+format, args...)
	}
}

func (p *Planner) warnf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Warnf("planner: "+format, args...)
	}
}

func (p *Planner) errorf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Errorf("planner: "+format, args...)
	}
}
