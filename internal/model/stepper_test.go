package model

import (
	"testing"

	"github.com/harrison/phonepilot/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecisionTap(t *testing.T) {
	decision, err := parseDecision("The wifi toggle is in the top right.\nTAP 880 120")
	require.NoError(t, err)
	assert.Equal(t, device.ActionTap, decision.Action.Kind)
	assert.Equal(t, 880, decision.Action.X)
	assert.Equal(t, 120, decision.Action.Y)
	assert.Equal(t, "The wifi toggle is in the top right.", decision.Thinking)
	assert.False(t, decision.Finished)
}

func TestParseDecisionSwipe(t *testing.T) {
	decision, err := parseDecision("SWIPE 500 1600 500 400")
	require.NoError(t, err)
	assert.Equal(t, device.ActionSwipe, decision.Action.Kind)
	assert.Equal(t, 500, decision.Action.X)
	assert.Equal(t, 400, decision.Action.Y2)
}

func TestParseDecisionText(t *testing.T) {
	decision, err := parseDecision("Typing the query now.\nTEXT coffee near me")
	require.NoError(t, err)
	assert.Equal(t, device.ActionText, decision.Action.Kind)
	assert.Equal(t, "coffee near me", decision.Action.Text)
}

func TestParseDecisionDone(t *testing.T) {
	decision, err := parseDecision("Everything is set.\nDONE wifi is now enabled")
	require.NoError(t, err)
	assert.True(t, decision.Finished)
	assert.Equal(t, "wifi is now enabled", decision.Message)
}

func TestParseDecisionKeyAndWait(t *testing.T) {
	key, err := parseDecision("KEY back")
	require.NoError(t, err)
	assert.Equal(t, device.ActionKey, key.Action.Kind)
	assert.Equal(t, "back", key.Action.Text)

	wait, err := parseDecision("Screen is still loading.\nWAIT")
	require.NoError(t, err)
	assert.Equal(t, device.ActionWait, wait.Action.Kind)
}

func TestParseDecisionRejectsMalformed(t *testing.T) {
	_, err := parseDecision("")
	assert.Error(t, err)

	_, err = parseDecision("TAP 12")
	assert.Error(t, err)

	_, err = parseDecision("LAUNCH settings")
	assert.Error(t, err)

	_, err = parseDecision("TAP twelve forty")
	assert.Error(t, err)
}
