// Package loop runs the two control loops. The coordinator owns one
// goroutine per loop, each driven by its own ticker, and the bounded
// channels that carry user input in and executor feedback across.
// Neither loop ever blocks on the other.
package loop

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/phonepilot/internal/models"
)

// Default tick intervals. The inner loop runs faster than the outer one.
const (
	DefaultExecutorInterval = 500 * time.Millisecond
	DefaultPlannerInterval  = 2 * time.Second
)

// Channel capacities. Feedback overflow drops the oldest entry; input
// overflow rejects the submission.
const (
	inputCapacity    = 16
	feedbackCapacity = 8
)

// InnerLoop is the executor as the coordinator sees it.
type InnerLoop interface {
	Tick(ctx context.Context) models.Feedback
	Enqueue(cmd models.Command)
}

// OuterLoop is the planner as the coordinator sees it.
type OuterLoop interface {
	Tick(ctx context.Context)
	QueueUserInput(text string)
	CollectFeedback(fb models.Feedback)
	Todos() []*models.TodoItem
	Done() bool
}

// Logger receives coordinator lifecycle events. May be nil.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Options configure tick intervals. Zero values take defaults.
type Options struct {
	ExecutorInterval time.Duration
	PlannerInterval  time.Duration
}

// Coordinator schedules the two loops and moves data between them.
type Coordinator struct {
	executor InnerLoop
	planner  OuterLoop
	logger   Logger
	opts     Options

	inputs   chan string
	feedback chan models.Feedback
}

// New creates a coordinator over the two loops. logger may be nil.
func New(executor InnerLoop, planner OuterLoop, opts Options, logger Logger) *Coordinator {
	if opts.ExecutorInterval <= 0 {
		opts.ExecutorInterval = DefaultExecutorInterval
	}
	if opts.PlannerInterval <= 0 {
		opts.PlannerInterval = DefaultPlannerInterval
	}
	return &Coordinator{
		executor: executor,
		planner:  planner,
		logger:   logger,
		opts:     opts,
		inputs:   make(chan string, inputCapacity),
		feedback: make(chan models.Feedback, feedbackCapacity),
	}
}

// SubmitInput hands one user input to the planner. Returns false when
// the input channel is full.
func (c *Coordinator) SubmitInput(text string) bool {
	select {
	case c.inputs <- text:
		return true
	default:
		if c.logger != nil {
			c.logger.Warnf("coordinator: input channel full, rejecting input")
		}
		return false
	}
}

// Run drives both loops until the context is cancelled or every todo
// item is terminal. Cancellation is observed between ticks; a tick in
// flight finishes first.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.executorLoop(ctx) })
	g.Go(func() error { return c.plannerLoop(ctx, cancel) })
	g.Go(func() error { return c.pump(ctx) })

	return g.Wait()
}

// executorLoop ticks the inner loop and forwards each feedback over the
// bounded channel, dropping the oldest entry on overflow.
func (c *Coordinator) executorLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.ExecutorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fb := c.executor.Tick(ctx)
			c.forward(fb)
		}
	}
}

// forward is the drop-oldest send. The newest feedback always wins.
func (c *Coordinator) forward(fb models.Feedback) {
	for {
		select {
		case c.feedback <- fb:
			return
		default:
		}
		select {
		case <-c.feedback:
			if c.logger != nil {
				c.logger.Debugf("coordinator: feedback channel full, dropped oldest")
			}
		default:
		}
	}
}

// plannerLoop ticks the outer loop. When every todo item is terminal
// and nothing is queued, it cancels the run.
func (c *Coordinator) plannerLoop(ctx context.Context, cancel context.CancelFunc) error {
	ticker := time.NewTicker(c.opts.PlannerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.planner.Tick(ctx)
			if len(c.planner.Todos()) > 0 && c.planner.Done() {
				if c.logger != nil {
					c.logger.Infof("coordinator: all tasks terminal, stopping")
				}
				cancel()
				return nil
			}
		}
	}
}

// pump moves user input and feedback into the planner's own queues,
// outside either loop's tick.
func (c *Coordinator) pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-c.inputs:
			c.planner.QueueUserInput(text)
		case fb := <-c.feedback:
			c.planner.CollectFeedback(fb)
		}
	}
}
