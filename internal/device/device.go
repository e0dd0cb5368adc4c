// Package device provides the perception/action backend the executor
// drives: capture the current screen state and perform single input
// actions. The executor only ever compares snapshots by fingerprint.
package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ActionKind enumerates the input primitives a device supports.
type ActionKind int

const (
	// ActionTap taps at a point.
	ActionTap ActionKind = iota
	// ActionSwipe drags between two points.
	ActionSwipe
	// ActionText types a string.
	ActionText
	// ActionKey presses a named key (back, home, enter).
	ActionKey
	// ActionWait performs nothing for the step.
	ActionWait
)

// String returns the lowercase name of the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionTap:
		return "tap"
	case ActionSwipe:
		return "swipe"
	case ActionText:
		return "text"
	case ActionKey:
		return "key"
	case ActionWait:
		return "wait"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Action is a single typed input primitive. Parsing model output into
// actions happens at the model boundary, not here.
type Action struct {
	Kind ActionKind
	// X, Y are the target for taps and the start point for swipes.
	X, Y int
	// X2, Y2 are the swipe end point.
	X2, Y2 int
	// Duration applies to swipes and waits.
	Duration time.Duration
	// Text is the string to type or the key name to press.
	Text string
}

// Snapshot is one captured screen state. Only its fingerprint is used by
// the core; the raw bytes exist for collaborators that render or upload
// the screen.
type Snapshot struct {
	Raw        []byte
	CapturedAt time.Time

	fingerprint string
}

// NewSnapshot builds a snapshot and computes its content fingerprint.
func NewSnapshot(raw []byte, capturedAt time.Time) *Snapshot {
	sum := sha256.Sum256(raw)
	return &Snapshot{
		Raw:         raw,
		CapturedAt:  capturedAt,
		fingerprint: hex.EncodeToString(sum[:]),
	}
}

// Fingerprint returns the content hash of the screen, used only for
// equality comparison between consecutive ticks.
func (s *Snapshot) Fingerprint() string {
	return s.fingerprint
}

// Device is the perception/action collaborator owned by the executor.
// Errors from either method are terminal for the current task.
type Device interface {
	CaptureState(ctx context.Context) (*Snapshot, error)
	Perform(ctx context.Context, action Action) error
}
