package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harrison/phonepilot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInner struct {
	mu    sync.Mutex
	ticks int
	cmds  []models.Command
}

func (f *fakeInner) Tick(ctx context.Context) models.Feedback {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks++
	return models.Feedback{StepCount: f.ticks, Status: models.Running(), ScreenChanged: true}
}

func (f *fakeInner) Enqueue(cmd models.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
}

func (f *fakeInner) tickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks
}

type fakeOuter struct {
	mu        sync.Mutex
	ticks     int
	inputs    []string
	collected []models.Feedback
	todos     []*models.TodoItem
	doneAfter int
}

func (f *fakeOuter) Tick(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks++
}

func (f *fakeOuter) QueueUserInput(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, text)
}

func (f *fakeOuter) CollectFeedback(fb models.Feedback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collected = append(f.collected, fb)
}

func (f *fakeOuter) Todos() []*models.TodoItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.todos
}

func (f *fakeOuter) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doneAfter > 0 && f.ticks >= f.doneAfter
}

func fastOptions() Options {
	return Options{
		ExecutorInterval: 5 * time.Millisecond,
		PlannerInterval:  10 * time.Millisecond,
	}
}

func TestRunStopsWhenAllTasksTerminal(t *testing.T) {
	inner := &fakeInner{}
	outer := &fakeOuter{
		todos:     []*models.TodoItem{models.NewTodoItem("x", "general", 3)},
		doneAfter: 3,
	}
	c := New(inner, outer, fastOptions(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, ctx.Err(), "run must stop on its own, not via the timeout")
	assert.GreaterOrEqual(t, outer.ticks, 3)
}

func TestRunObservesCancellation(t *testing.T) {
	inner := &fakeInner{}
	outer := &fakeOuter{}
	c := New(inner, outer, fastOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	assert.Greater(t, inner.tickCount(), 0, "executor loop ran before cancellation")
}

func TestInputAndFeedbackReachThePlanner(t *testing.T) {
	inner := &fakeInner{}
	outer := &fakeOuter{
		todos:     []*models.TodoItem{models.NewTodoItem("x", "general", 3)},
		doneAfter: 5,
	}
	c := New(inner, outer, fastOptions(), nil)

	require.True(t, c.SubmitInput("open settings"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	outer.mu.Lock()
	defer outer.mu.Unlock()
	assert.Equal(t, []string{"open settings"}, outer.inputs)
	assert.NotEmpty(t, outer.collected, "executor feedback must reach the planner")
}

func TestSubmitInputRejectsWhenFull(t *testing.T) {
	c := New(&fakeInner{}, &fakeOuter{}, fastOptions(), nil)

	for i := 0; i < inputCapacity; i++ {
		require.True(t, c.SubmitInput("x"))
	}
	assert.False(t, c.SubmitInput("overflow"))
}

func TestForwardDropsOldestOnOverflow(t *testing.T) {
	c := New(&fakeInner{}, &fakeOuter{}, fastOptions(), nil)

	for i := 0; i < feedbackCapacity; i++ {
		c.forward(models.Feedback{StepCount: i})
	}
	// Channel is full; the next forward evicts the oldest entry.
	c.forward(models.Feedback{StepCount: 99})

	first := <-c.feedback
	assert.Equal(t, 1, first.StepCount, "entry 0 was dropped")

	var last models.Feedback
	for len(c.feedback) > 0 {
		last = <-c.feedback
	}
	assert.Equal(t, 99, last.StepCount)
}
