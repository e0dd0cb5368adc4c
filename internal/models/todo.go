package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TodoStatus enumerates the lifecycle of a todo item. Status only advances
// Pending -> Running -> Done/Failed; the sole regression is an explicit
// retry, which returns the item to Pending with RetryCount incremented.
type TodoStatus int

const (
	// TodoPending means the item is waiting to be dispatched.
	TodoPending TodoStatus = iota
	// TodoRunning means the item is dispatched to the executor.
	TodoRunning
	// TodoDone means the item completed successfully.
	TodoDone
	// TodoFailed means the item failed and exhausted its retry budget.
	TodoFailed
)

// String returns the lowercase name of the status.
func (s TodoStatus) String() string {
	switch s {
	case TodoPending:
		return "pending"
	case TodoRunning:
		return "running"
	case TodoDone:
		return "done"
	case TodoFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// TodoItem is a single unit of work owned exclusively by the planner and
// mutated only within the planner's own tick.
type TodoItem struct {
	ID          string
	Description string
	// TaskType is the category key used to select a stored system prompt
	// from prompt memory.
	TaskType   string
	Status     TodoStatus
	RetryCount int
	MaxRetries int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// Error records the most recent failure reason.
	Error string
}

// NewTodoItem creates a pending item with a generated ID.
func NewTodoItem(description, taskType string, maxRetries int) *TodoItem {
	now := time.Now()
	return &TodoItem{
		ID:          uuid.NewString(),
		Description: description,
		TaskType:    taskType,
		Status:      TodoPending,
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Start marks the item running.
func (t *TodoItem) Start() {
	t.Status = TodoRunning
	t.UpdatedAt = time.Now()
}

// Complete marks the item done.
func (t *TodoItem) Complete() {
	t.Status = TodoDone
	t.UpdatedAt = time.Now()
}

// Fail marks the item failed with the given reason.
func (t *TodoItem) Fail(reason string) {
	t.Status = TodoFailed
	t.Error = reason
	t.UpdatedAt = time.Now()
}

// CanRetry reports whether the retry budget allows another attempt.
func (t *TodoItem) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// Retry returns the item to pending with the retry count incremented.
// Returns false, leaving the item failed, when the budget is exhausted.
func (t *TodoItem) Retry() bool {
	t.RetryCount++
	t.UpdatedAt = time.Now()
	if t.RetryCount > t.MaxRetries {
		t.Status = TodoFailed
		return false
	}
	t.Status = TodoPending
	return true
}

// Terminal reports whether the item needs no further work.
func (t *TodoItem) Terminal() bool {
	return t.Status == TodoDone || t.Status == TodoFailed
}

// TodoList holds the planner's todo items in dispatch order.
type TodoList struct {
	items []*TodoItem
}

// NewTodoList creates an empty list.
func NewTodoList() *TodoList {
	return &TodoList{}
}

// Add appends a new pending item and returns its ID.
func (l *TodoList) Add(description, taskType string, maxRetries int) string {
	item := NewTodoItem(description, taskType, maxRetries)
	l.items = append(l.items, item)
	return item.ID
}

// AddItem appends an existing item (for plan-file imports).
func (l *TodoList) AddItem(item *TodoItem) {
	l.items = append(l.items, item)
}

// Get returns the item with the given ID, or nil.
func (l *TodoList) Get(id string) *TodoItem {
	for _, item := range l.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// Items returns all items in dispatch order.
func (l *TodoList) Items() []*TodoItem {
	return l.items
}

// NextPending returns the first pending item, or nil.
func (l *TodoList) NextPending() *TodoItem {
	for _, item := range l.items {
		if item.Status == TodoPending {
			return item
		}
	}
	return nil
}

// CurrentRunning returns the running item, or nil.
func (l *TodoList) CurrentRunning() *TodoItem {
	for _, item := range l.items {
		if item.Status == TodoRunning {
			return item
		}
	}
	return nil
}

// AllDone reports whether every item is terminal.
func (l *TodoList) AllDone() bool {
	for _, item := range l.items {
		if !item.Terminal() {
			return false
		}
	}
	return true
}

// TodoStats summarizes item counts by status.
type TodoStats struct {
	Total   int
	Pending int
	Running int
	Done    int
	Failed  int
}

// Stats counts items by status.
func (l *TodoList) Stats() TodoStats {
	var stats TodoStats
	for _, item := range l.items {
		stats.Total++
		switch item.Status {
		case TodoPending:
			stats.Pending++
		case TodoRunning:
			stats.Running++
		case TodoDone:
			stats.Done++
		case TodoFailed:
			stats.Failed++
		}
	}
	return stats
}
