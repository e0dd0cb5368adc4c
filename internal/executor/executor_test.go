package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/harrison/phonepilot/internal/device"
	"github.com/harrison/phonepilot/internal/model"
	"github.com/harrison/phonepilot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice serves screens from a script. When the script runs out the
// last screen repeats, which is how a frozen UI looks to the executor.
type fakeDevice struct {
	screens    [][]byte
	idx        int
	captures   int
	actions    []device.Action
	captureErr error
	performErr error
}

func (d *fakeDevice) CaptureState(ctx context.Context) (*device.Snapshot, error) {
	if d.captureErr != nil {
		return nil, d.captureErr
	}
	d.captures++
	if d.idx >= len(d.screens) {
		return device.NewSnapshot(d.screens[len(d.screens)-1], time.Now()), nil
	}
	snap := device.NewSnapshot(d.screens[d.idx], time.Now())
	d.idx++
	return snap, nil
}

func (d *fakeDevice) Perform(ctx context.Context, action device.Action) error {
	if d.performErr != nil {
		return d.performErr
	}
	d.actions = append(d.actions, action)
	return nil
}

// fakeStepper records requests and replies with a fixed decision.
type fakeStepper struct {
	requests []model.StepRequest
	decision *model.StepDecision
	err      error
}

func (s *fakeStepper) Step(ctx context.Context, req model.StepRequest) (*model.StepDecision, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.decision != nil {
		return s.decision, nil
	}
	return &model.StepDecision{
		Action: device.Action{Kind: device.ActionTap, X: 1, Y: 2},
	}, nil
}

// changingScreens yields n distinct screen payloads.
func changingScreens(n int) [][]byte {
	screens := make([][]byte, n)
	for i := range screens {
		screens[i] = []byte(fmt.Sprintf("screen-%d", i))
	}
	return screens
}

func newRunning(t *testing.T, dev *fakeDevice, stepper *fakeStepper) *Executor {
	t.Helper()
	e := New(dev, stepper, 3, nil)
	e.Enqueue(models.StartTask("task-1", "open settings", ""))
	return e
}

func TestTickIdleWithoutCommands(t *testing.T) {
	e := New(&fakeDevice{}, &fakeStepper{}, 3, nil)
	fb := e.Tick(context.Background())
	assert.Equal(t, models.StateIdle, fb.Status.State)
	assert.Nil(t, fb.LastStep)
	assert.True(t, fb.ScreenChanged)
}

func TestTickConsumesOneCommandPerTick(t *testing.T) {
	dev := &fakeDevice{screens: changingScreens(10)}
	e := New(dev, &fakeStepper{}, 3, nil)

	e.Enqueue(models.StartTask("t", "do something", ""))
	e.Enqueue(models.Pause())

	fb := e.Tick(context.Background())
	assert.Equal(t, models.StateRunning, fb.Status.State)
	assert.Equal(t, 1, fb.StepCount)

	// Pause is still queued and applies on the next tick, before stepping.
	fb = e.Tick(context.Background())
	assert.Equal(t, models.StatePaused, fb.Status.State)
	assert.Equal(t, 1, fb.StepCount)
	assert.Equal(t, 1, dev.captures, "the pause tick must not perceive")
}

func TestPauseResumeRoundTrip(t *testing.T) {
	dev := &fakeDevice{screens: changingScreens(10)}
	e := newRunning(t, dev, &fakeStepper{})
	ctx := context.Background()

	e.Tick(ctx)
	e.Enqueue(models.Pause())
	fb := e.Tick(ctx)
	assert.Equal(t, models.StatePaused, fb.Status.State)

	captures := dev.captures
	e.Tick(ctx)
	assert.Equal(t, captures, dev.captures, "paused executor must not touch the device")

	e.Enqueue(models.Resume())
	fb = e.Tick(ctx)
	assert.Equal(t, models.StateRunning, fb.Status.State)
	assert.Equal(t, 2, fb.StepCount)
}

func TestFirstStepCarriesTaskDescription(t *testing.T) {
	stepper := &fakeStepper{}
	e := newRunning(t, &fakeDevice{screens: changingScreens(5)}, stepper)
	ctx := context.Background()

	e.Tick(ctx)
	e.Tick(ctx)

	require.Len(t, stepper.requests, 2)
	assert.Equal(t, "open settings", stepper.requests[0].Instruction)
	assert.Empty(t, stepper.requests[1].Instruction)
	assert.NotEmpty(t, stepper.requests[1].History)
}

func TestStuckAfterConsecutiveUnchangedScreens(t *testing.T) {
	// One changing screen, then frozen.
	dev := &fakeDevice{screens: changingScreens(1)}
	e := newRunning(t, dev, &fakeStepper{})
	ctx := context.Background()

	fb := e.Tick(ctx) // screen-0, changed
	assert.True(t, fb.ScreenChanged)
	assert.Equal(t, models.StateRunning, fb.Status.State)

	fb = e.Tick(ctx) // unchanged #1
	assert.False(t, fb.ScreenChanged)
	assert.Equal(t, models.StateRunning, fb.Status.State)

	fb = e.Tick(ctx) // unchanged #2
	assert.Equal(t, models.StateRunning, fb.Status.State)

	fb = e.Tick(ctx) // unchanged #3: threshold reached
	assert.Equal(t, models.StateStuck, fb.Status.State)
	assert.Nil(t, fb.LastStep, "no action taken on the stuck tick")

	// Stuck is sticky: further ticks act on nothing.
	actions := len(dev.actions)
	fb = e.Tick(ctx)
	assert.Equal(t, models.StateStuck, fb.Status.State)
	assert.Equal(t, actions, len(dev.actions))
}

func TestInjectPromptWakesStuckAndResetsCounter(t *testing.T) {
	dev := &fakeDevice{screens: changingScreens(1)}
	stepper := &fakeStepper{}
	e := newRunning(t, dev, stepper)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		e.Tick(ctx)
	}
	require.Equal(t, models.StateStuck, e.Status().State)

	e.Enqueue(models.InjectPrompt("try the back button"))
	fb := e.Tick(ctx)
	assert.Equal(t, models.StateRunning, fb.Status.State)
	// Baseline was dropped, so the same frozen screen counts as changed.
	assert.True(t, fb.ScreenChanged)

	last := stepper.requests[len(stepper.requests)-1]
	assert.Equal(t, "try the back button", last.Instruction)

	// The correction is consumed: the next step has no instruction.
	e.Tick(ctx)
	last = stepper.requests[len(stepper.requests)-1]
	assert.Empty(t, last.Instruction)
}

func TestResetContextClearsHistoryButKeepsTask(t *testing.T) {
	stepper := &fakeStepper{}
	e := newRunning(t, &fakeDevice{screens: changingScreens(10)}, stepper)
	ctx := context.Background()

	e.Tick(ctx)
	e.Tick(ctx)
	e.Enqueue(models.ResetContext())
	fb := e.Tick(ctx)

	// Step count restarted, so the task description is re-sent.
	assert.Equal(t, models.StateRunning, fb.Status.State)
	assert.Equal(t, 1, fb.StepCount)
	last := stepper.requests[len(stepper.requests)-1]
	assert.Equal(t, "open settings", last.Instruction)
	assert.Empty(t, last.History)
}

func TestCompletionFromDoneDecision(t *testing.T) {
	dev := &fakeDevice{screens: changingScreens(5)}
	stepper := &fakeStepper{decision: &model.StepDecision{
		Finished: true,
		Message:  "settings opened",
	}}
	e := newRunning(t, dev, stepper)

	fb := e.Tick(context.Background())
	assert.Equal(t, models.StateCompleted, fb.Status.State)
	require.NotNil(t, fb.LastStep)
	assert.True(t, fb.LastStep.Finished)
	assert.Equal(t, "settings opened", fb.LastStep.Message)
	assert.Empty(t, dev.actions, "no device action on the finishing step")
}

func TestDeviceCaptureFailureIsTerminal(t *testing.T) {
	dev := &fakeDevice{captureErr: fmt.Errorf("device offline")}
	e := newRunning(t, dev, &fakeStepper{})

	fb := e.Tick(context.Background())
	assert.Equal(t, models.StateFailed, fb.Status.State)
	assert.Contains(t, fb.Status.Reason, "device offline")
}

func TestModelFailureIsTerminal(t *testing.T) {
	stepper := &fakeStepper{err: fmt.Errorf("max retries exceeded")}
	e := newRunning(t, &fakeDevice{screens: changingScreens(2)}, stepper)

	fb := e.Tick(context.Background())
	assert.Equal(t, models.StateFailed, fb.Status.State)
	assert.Contains(t, fb.Status.Reason, "max retries exceeded")
}

func TestStopReturnsToIdleAndIsIdempotent(t *testing.T) {
	e := newRunning(t, &fakeDevice{screens: changingScreens(5)}, &fakeStepper{})
	ctx := context.Background()

	e.Tick(ctx)
	e.Enqueue(models.Stop())
	fb := e.Tick(ctx)
	assert.Equal(t, models.StateIdle, fb.Status.State)
	assert.Empty(t, fb.TaskID)

	e.Enqueue(models.Stop())
	fb = e.Tick(ctx)
	assert.Equal(t, models.StateIdle, fb.Status.State)
}

func TestStartTaskReplacesPreviousTask(t *testing.T) {
	stepper := &fakeStepper{}
	e := newRunning(t, &fakeDevice{screens: changingScreens(10)}, stepper)
	ctx := context.Background()

	e.Tick(ctx)
	e.Tick(ctx)

	e.Enqueue(models.StartTask("task-2", "check the weather", ""))
	fb := e.Tick(ctx)
	assert.Equal(t, "task-2", fb.TaskID)
	assert.Equal(t, 1, fb.StepCount)
	last := stepper.requests[len(stepper.requests)-1]
	assert.Equal(t, "check the weather", last.Instruction)
	assert.Empty(t, last.History)
}
