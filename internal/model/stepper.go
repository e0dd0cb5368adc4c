package model

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/phonepilot/internal/device"
)

// StepRequest carries everything the execution model needs to decide one
// action: the current screen, the instruction for this step (task
// description on the first step, an injected correction, or empty on
// continuation), and compact summaries of prior steps.
type StepRequest struct {
	SystemPrompt string
	Instruction  string
	Screen       *device.Snapshot
	History      []string
}

// StepDecision is the execution model's verdict for one step.
type StepDecision struct {
	Action   device.Action
	Thinking string
	Message  string
	Finished bool
}

// Stepper is the execution-model collaborator owned by the executor:
// one screen in, one action plus completion signal out.
type Stepper interface {
	Step(ctx context.Context, req StepRequest) (*StepDecision, error)
}

// DefaultStepSystemPrompt instructs the model to answer with exactly one
// action line the stepper can parse.
const DefaultStepSystemPrompt = `You are a phone automation assistant. You see the current screen and decide ONE next action.

Reply with your reasoning, then a final line containing exactly one action:

  TAP <x> <y>
  SWIPE <x1> <y1> <x2> <y2>
  TEXT <string to type>
  KEY <back|home|enter|delete>
  WAIT
  DONE <final message to the user>

The action line must be the last line of your reply.`

// ChatStepper implements Stepper on top of an OpenAI-compatible client.
type ChatStepper struct {
	client *Client
}

// NewChatStepper wraps a client as the execution-model collaborator.
func NewChatStepper(client *Client) *ChatStepper {
	return &ChatStepper{client: client}
}

// Step sends the screen and instruction to the model and parses the
// trailing action line of the reply.
func (s *ChatStepper) Step(ctx context.Context, req StepRequest) (*StepDecision, error) {
	system := req.SystemPrompt
	if system == "" {
		system = DefaultStepSystemPrompt
	}

	var user strings.Builder
	if req.Instruction != "" {
		fmt.Fprintf(&user, "Instruction: %s\n\n", req.Instruction)
	}
	if len(req.History) > 0 {
		user.WriteString("Previous steps:\n")
		for i, h := range req.History {
			fmt.Fprintf(&user, "%d. %s\n", i+1, h)
		}
		user.WriteString("\n")
	}
	user.WriteString("Decide the next action for the attached screen.")

	content := []any{
		map[string]any{"type": "text", "text": user.String()},
	}
	if req.Screen != nil {
		content = append(content, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Screen.Raw),
			},
		})
	}

	reply, err := s.client.Chat(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: content},
	})
	if err != nil {
		return nil, err
	}

	decision, err := parseDecision(reply)
	if err != nil {
		return nil, fmt.Errorf("parse model reply: %w", err)
	}
	return decision, nil
}

// parseDecision extracts the trailing action line and keeps the rest as
// the model's thinking.
func parseDecision(reply string) (*StepDecision, error) {
	lines := strings.Split(strings.TrimSpace(reply), "\n")
	var actionLine string
	var actionIdx int
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		actionLine = trimmed
		actionIdx = i
		break
	}
	if actionLine == "" {
		return nil, fmt.Errorf("empty reply")
	}

	thinking := strings.TrimSpace(strings.Join(lines[:actionIdx], "\n"))
	fields := strings.Fields(actionLine)
	verb := strings.ToUpper(fields[0])

	decision := &StepDecision{Thinking: thinking}
	switch verb {
	case "TAP":
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed TAP: %q", actionLine)
		}
		x, errX := strconv.Atoi(fields[1])
		y, errY := strconv.Atoi(fields[2])
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("malformed TAP coordinates: %q", actionLine)
		}
		decision.Action = device.Action{Kind: device.ActionTap, X: x, Y: y}
	case "SWIPE":
		if len(fields) != 5 {
			return nil, fmt.Errorf("malformed SWIPE: %q", actionLine)
		}
		coords := make([]int, 4)
		for i := 0; i < 4; i++ {
			v, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return nil, fmt.Errorf("malformed SWIPE coordinates: %q", actionLine)
			}
			coords[i] = v
		}
		decision.Action = device.Action{
			Kind: device.ActionSwipe,
			X:    coords[0], Y: coords[1],
			X2: coords[2], Y2: coords[3],
			Duration: 300 * time.Millisecond,
		}
	case "TEXT":
		decision.Action = device.Action{
			Kind: device.ActionText,
			Text: strings.TrimSpace(strings.TrimPrefix(actionLine, fields[0])),
		}
	case "KEY":
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed KEY: %q", actionLine)
		}
		decision.Action = device.Action{Kind: device.ActionKey, Text: strings.ToLower(fields[1])}
	case "WAIT":
		decision.Action = device.Action{Kind: device.ActionWait, Duration: time.Second}
	case "DONE":
		decision.Finished = true
		decision.Message = strings.TrimSpace(strings.TrimPrefix(actionLine, fields[0]))
	default:
		return nil, fmt.Errorf("unknown action verb %q", verb)
	}
	return decision, nil
}
