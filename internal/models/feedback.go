package models

import "time"

// StepSummary is the compact rendering of one perceive/decide/act cycle
// carried in feedback. It deliberately excludes screenshots and raw model
// output so the planner's supervision context stays small.
type StepSummary struct {
	Success    bool
	Finished   bool
	Thinking   string
	Message    string
	ActionType string
}

// Feedback is the executor's report to the planner, produced at most once
// per executor tick and immutable once emitted.
type Feedback struct {
	// TaskID identifies the task the executor was working on, empty when
	// idle.
	TaskID string
	// StepCount is the number of steps taken for the current task.
	StepCount int
	// Status is the executor status at the end of the tick.
	Status ExecutorStatus
	// LastStep summarizes the step performed this tick, nil when no step
	// was performed.
	LastStep *StepSummary
	// ScreenChanged reports whether the screen fingerprint differed from
	// the previous tick's.
	ScreenChanged bool
	// Timestamp is when the feedback was produced.
	Timestamp time.Time
}
