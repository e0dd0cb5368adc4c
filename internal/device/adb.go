package device

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Key name to Android keycode mapping for ActionKey.
var keycodes = map[string]string{
	"back":   "4",
	"home":   "3",
	"enter":  "66",
	"delete": "67",
}

// ADB drives a device through the adb CLI. It follows the http.Client
// pattern: create once, use for every capture and action. Safe for
// concurrent use; each call spawns its own subprocess.
type ADB struct {
	// Path is the adb binary path. Defaults to "adb" (found in PATH).
	Path string

	// Serial selects a device in multi-device setups. Empty uses the
	// default device.
	Serial string

	// Timeout bounds each adb invocation. Zero means no per-call limit
	// beyond the caller's context.
	Timeout time.Duration
}

// NewADB creates an ADB backend with default settings.
func NewADB(serial string) *ADB {
	return &ADB{
		Path:    "adb",
		Serial:  serial,
		Timeout: 30 * time.Second,
	}
}

// CaptureState captures the current screen as a PNG via screencap.
func (a *ADB) CaptureState(ctx context.Context) (*Snapshot, error) {
	out, err := a.run(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, fmt.Errorf("screencap: %w", err)
	}
	return NewSnapshot(out, time.Now()), nil
}

// Perform executes one input primitive.
func (a *ADB) Perform(ctx context.Context, action Action) error {
	switch action.Kind {
	case ActionTap:
		_, err := a.run(ctx, "shell", "input", "tap",
			strconv.Itoa(action.X), strconv.Itoa(action.Y))
		if err != nil {
			return fmt.Errorf("tap (%d,%d): %w", action.X, action.Y, err)
		}
		return nil
	case ActionSwipe:
		durationMS := action.Duration.Milliseconds()
		if durationMS <= 0 {
			durationMS = 300
		}
		_, err := a.run(ctx, "shell", "input", "swipe",
			strconv.Itoa(action.X), strconv.Itoa(action.Y),
			strconv.Itoa(action.X2), strconv.Itoa(action.Y2),
			strconv.FormatInt(durationMS, 10))
		if err != nil {
			return fmt.Errorf("swipe: %w", err)
		}
		return nil
	case ActionText:
		_, err := a.run(ctx, "shell", "input", "text", escapeText(action.Text))
		if err != nil {
			return fmt.Errorf("input text: %w", err)
		}
		return nil
	case ActionKey:
		code, ok := keycodes[strings.ToLower(action.Text)]
		if !ok {
			return fmt.Errorf("unknown key %q", action.Text)
		}
		_, err := a.run(ctx, "shell", "input", "keyevent", code)
		if err != nil {
			return fmt.Errorf("keyevent %s: %w", action.Text, err)
		}
		return nil
	case ActionWait:
		wait := action.Duration
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		return fmt.Errorf("unsupported action kind %s", action.Kind)
	}
}

// run invokes adb with the device serial prepended when set.
func (a *ADB) run(ctx context.Context, args ...string) ([]byte, error) {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	full := args
	if a.Serial != "" {
		full = append([]string{"-s", a.Serial}, args...)
	}

	path := a.Path
	if path == "" {
		path = "adb"
	}

	cmd := exec.CommandContext(ctx, path, full...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("adb %s: %w (stderr: %s)",
				strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// escapeText quotes a string for `input text`, which treats space and
// shell metacharacters specially.
func escapeText(s string) string {
	replacer := strings.NewReplacer(
		" ", "%s",
		"&", `\&`,
		"<", `\<`,
		">", `\>`,
		"(", `\(`,
		")", `\)`,
		"'", `\'`,
		`"`, `\"`,
		";", `\;`,
	)
	return replacer.Replace(s)
}
