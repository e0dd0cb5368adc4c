package models

import "fmt"

// CommandKind discriminates the planner-to-executor command union.
type CommandKind int

const (
	// CmdStartTask begins a new task, replacing any prior task context.
	CmdStartTask CommandKind = iota
	// CmdPause suspends stepping without losing task context.
	CmdPause
	// CmdResume continues a paused task.
	CmdResume
	// CmdInjectPrompt feeds a corrective instruction into the next step.
	CmdInjectPrompt
	// CmdResetContext drops accumulated step context and the stagnation
	// baseline while keeping the current task.
	CmdResetContext
	// CmdStop ends the current task and returns the executor to idle.
	CmdStop
)

// String returns the snake_case name of the command kind.
func (k CommandKind) String() string {
	switch k {
	case CmdStartTask:
		return "start_task"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdInjectPrompt:
		return "inject_prompt"
	case CmdResetContext:
		return "reset_context"
	case CmdStop:
		return "stop"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Command is a single instruction from the planner to the executor.
// Commands are consumed strictly FIFO, at most one per executor tick.
type Command struct {
	Kind CommandKind

	// TaskID, Description and SystemPrompt are set for CmdStartTask.
	// SystemPrompt may be empty when prompt memory has no entry for the
	// task's type.
	TaskID       string
	Description  string
	SystemPrompt string

	// Content is set for CmdInjectPrompt.
	Content string
}

// StartTask builds a start command for the given task.
func StartTask(taskID, description, systemPrompt string) Command {
	return Command{
		Kind:         CmdStartTask,
		TaskID:       taskID,
		Description:  description,
		SystemPrompt: systemPrompt,
	}
}

// Pause builds a pause command.
func Pause() Command { return Command{Kind: CmdPause} }

// Resume builds a resume command.
func Resume() Command { return Command{Kind: CmdResume} }

// InjectPrompt builds a prompt injection command.
func InjectPrompt(content string) Command {
	return Command{Kind: CmdInjectPrompt, Content: content}
}

// ResetContext builds a context reset command.
func ResetContext() Command { return Command{Kind: CmdResetContext} }

// Stop builds a stop command.
func Stop() Command { return Command{Kind: CmdStop} }
