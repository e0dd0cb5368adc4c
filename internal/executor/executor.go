// Package executor implements the inner control loop: one perceive/decide/
// act cycle per tick, driven entirely by commands from the planner and
// reporting back through feedback. The executor owns stagnation detection;
// the planner owns the response to it.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harrison/phonepilot/internal/device"
	"github.com/harrison/phonepilot/internal/model"
	"github.com/harrison/phonepilot/internal/models"
)

// DefaultStuckThreshold is the number of consecutive unchanged screens
// before the executor reports itself stuck.
const DefaultStuckThreshold = 3

// maxStepHistory bounds the compact step summaries fed back to the
// execution model on continuation steps.
const maxStepHistory = 8

// Logger receives executor lifecycle events. May be nil.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Executor wraps the device and execution-model collaborators behind the
// command/feedback protocol. Enqueue may be called from another
// goroutine; Tick must be called from a single loop.
type Executor struct {
	mu    sync.Mutex
	queue []models.Command

	dev     device.Device
	stepper model.Stepper
	logger  Logger

	stuckThreshold int

	status          models.ExecutorStatus
	taskID          string
	taskDescription string
	systemPrompt    string
	pendingPrompt   string

	stepCount int
	history   []string

	lastFingerprint string
	unchangedCount  int
}

// New creates an executor over the given collaborators. logger may be nil.
func New(dev device.Device, stepper model.Stepper, stuckThreshold int, logger Logger) *Executor {
	if stuckThreshold <= 0 {
		stuckThreshold = DefaultStuckThreshold
	}
	return &Executor{
		dev:            dev,
		stepper:        stepper,
		logger:         logger,
		stuckThreshold: stuckThreshold,
		status:         models.Idle(),
	}
}

// Enqueue appends a command to the FIFO queue. Commands are consumed at
// most one per tick, in issuance order.
func (e *Executor) Enqueue(cmd models.Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, cmd)
}

// Status returns the current executor status.
func (e *Executor) Status() models.ExecutorStatus {
	return e.status
}

// Tick dequeues at most one command, applies it, performs one step when
// running, and returns the tick's feedback. It never blocks waiting on
// the planner.
func (e *Executor) Tick(ctx context.Context) models.Feedback {
	if cmd, ok := e.dequeue(); ok {
		e.apply(cmd)
	}

	if e.status.State != models.StateRunning {
		return e.feedback(nil, true)
	}

	return e.step(ctx)
}

// dequeue pops the oldest pending command.
func (e *Executor) dequeue() (models.Command, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return models.Command{}, false
	}
	cmd := e.queue[0]
	e.queue = e.queue[1:]
	return cmd, true
}

// apply transitions the executor per one command.
func (e *Executor) apply(cmd models.Command) {
	switch cmd.Kind {
	case models.CmdStartTask:
		e.resetContext()
		e.taskID = cmd.TaskID
		e.taskDescription = cmd.Description
		e.systemPrompt = cmd.SystemPrompt
		e.status = models.Running()
		e.infof("task started: %s", cmd.TaskID)

	case models.CmdPause:
		if e.status.State == models.StateRunning {
			e.status = models.Paused()
			e.infof("paused")
		}

	case models.CmdResume:
		if e.status.State == models.StatePaused {
			e.status = models.Running()
			e.infof("resumed")
		}

	case models.CmdInjectPrompt:
		e.pendingPrompt = cmd.Content
		// Clear the stagnation counter and drop the baseline so the
		// next capture starts fresh.
		e.unchangedCount = 0
		e.lastFingerprint = ""
		switch e.status.State {
		case models.StateStuck:
			e.status = models.Running()
			e.infof("woken from stuck by injected prompt")
		case models.StateCompleted:
			// User disagrees that the task is done; resume it.
			e.status = models.Running()
			e.infof("resumed from completed by injected prompt")
		case models.StateIdle:
			if e.taskID != "" {
				e.status = models.Running()
				e.infof("resumed from idle by injected prompt")
			} else {
				e.warnf("prompt injected with no task context")
			}
		}

	case models.CmdResetContext:
		e.resetContext()
		e.infof("context reset")

	case models.CmdStop:
		e.resetContext()
		e.taskID = ""
		e.taskDescription = ""
		e.systemPrompt = ""
		e.status = models.Idle()
		e.infof("stopped")
	}
}

// resetContext drops accumulated step context and the stagnation state.
// The task identity and status are left to the caller.
func (e *Executor) resetContext() {
	e.stepCount = 0
	e.history = nil
	e.pendingPrompt = ""
	e.lastFingerprint = ""
	e.unchangedCount = 0
}

// step performs one perceive/decide/act cycle.
func (e *Executor) step(ctx context.Context) models.Feedback {
	snapshot, err := e.dev.CaptureState(ctx)
	if err != nil {
		e.status = models.Failed(fmt.Sprintf("capture state: %v", err))
		e.errorf("capture state: %v", err)
		return e.feedback(nil, true)
	}

	screenChanged := e.observeFingerprint(snapshot.Fingerprint())
	if !screenChanged {
		e.unchangedCount++
		if e.unchangedCount >= e.stuckThreshold {
			e.status = models.Stuck()
			e.warnf("stuck: %d consecutive unchanged screens", e.unchangedCount)
			return e.feedback(nil, false)
		}
	} else {
		e.unchangedCount = 0
	}

	instruction := ""
	if e.stepCount == 0 {
		instruction = e.taskDescription
	} else if e.pendingPrompt != "" {
		instruction = e.pendingPrompt
		e.pendingPrompt = ""
	}

	decision, err := e.stepper.Step(ctx, model.StepRequest{
		SystemPrompt: e.systemPrompt,
		Instruction:  instruction,
		Screen:       snapshot,
		History:      e.history,
	})
	if err != nil {
		e.status = models.Failed(fmt.Sprintf("model step: %v", err))
		e.errorf("model step: %v", err)
		return e.feedback(nil, screenChanged)
	}

	summary := &models.StepSummary{
		Success:  true,
		Finished: decision.Finished,
		Thinking: decision.Thinking,
		Message:  decision.Message,
	}

	if decision.Finished {
		e.status = models.Completed()
		e.infof("task completed: %s", e.taskID)
	} else {
		summary.ActionType = decision.Action.Kind.String()
		if err := e.dev.Perform(ctx, decision.Action); err != nil {
			e.status = models.Failed(fmt.Sprintf("perform %s: %v", decision.Action.Kind, err))
			e.errorf("perform %s: %v", decision.Action.Kind, err)
			summary.Success = false
			e.stepCount++
			return e.feedback(summary, screenChanged)
		}
	}

	e.stepCount++
	e.recordHistory(summary)
	return e.feedback(summary, screenChanged)
}

// observeFingerprint compares the capture against the previous tick's
// and retains it as the new baseline. An empty baseline (fresh task,
// reset, or injection) always counts as changed.
func (e *Executor) observeFingerprint(fp string) bool {
	changed := e.lastFingerprint == "" || e.lastFingerprint != fp
	e.lastFingerprint = fp
	return changed
}

// recordHistory keeps a bounded compact trail for continuation steps.
func (e *Executor) recordHistory(summary *models.StepSummary) {
	line := summary.ActionType
	if summary.Finished {
		line = "done"
	}
	if summary.Thinking != "" {
		thinking := summary.Thinking
		if len(thinking) > 120 {
			thinking = thinking[:120]
		}
		line = fmt.Sprintf("%s (%s)", line, thinking)
	}
	e.history = append(e.history, line)
	if len(e.history) > maxStepHistory {
		e.history = e.history[len(e.history)-maxStepHistory:]
	}
}

// feedback builds the tick's report. screenChanged is true when no
// perception happened this tick, so an idle executor never looks
// stagnant to the planner.
func (e *Executor) feedback(step *models.StepSummary, screenChanged bool) models.Feedback {
	return models.Feedback{
		TaskID:        e.taskID,
		StepCount:     e.stepCount,
		Status:        e.status,
		LastStep:      step,
		ScreenChanged: screenChanged,
		Timestamp:     time.Now(),
	}
}

func (e *Executor) infof(format string, args ...any) {
	if e.logger != nil {
		e.logger.Infof("executor: "+format, args...)
	}
}

func (e *Executor) warnf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Warnf("executor: "+format, args...)
	}
}

func (e *Executor) errorf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Errorf("executor: "+format, args...)
	}
}
