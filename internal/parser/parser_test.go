package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harrison/phonepilot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `# Morning routine

Some introduction text that is not a task.

## Task 1: Open the weather app

Type: navigation

Check today's forecast first.

## Task 2: Send a good morning message

Type: messaging

## Task 3: Disable the alarm
`

func TestParseExtractsTasksInOrder(t *testing.T) {
	items, err := NewPlanParser().Parse(strings.NewReader(samplePlan), 3)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Open the weather app", items[0].Description)
	assert.Equal(t, "navigation", items[0].TaskType)
	assert.Equal(t, "Send a good morning message", items[1].Description)
	assert.Equal(t, "messaging", items[1].TaskType)
	assert.Equal(t, "Disable the alarm", items[2].Description)
	assert.Equal(t, "general", items[2].TaskType, "missing Type line defaults to general")

	for _, item := range items {
		assert.Equal(t, models.TodoPending, item.Status)
		assert.Equal(t, 3, item.MaxRetries)
		assert.NotEmpty(t, item.ID)
	}
}

func TestParseIgnoresNonTaskHeadings(t *testing.T) {
	plan := "## Notes\n\nnothing here\n\n## Task 1: Real work\n"
	items, err := NewPlanParser().Parse(strings.NewReader(plan), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Real work", items[0].Description)
}

func TestParseRejectsPlanWithoutTasks(t *testing.T) {
	_, err := NewPlanParser().Parse(strings.NewReader("# Just a title\n\nprose only\n"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no task headings")
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.md")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0644))

	items, err := ParseFile(path, 2)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	_, err = ParseFile(filepath.Join(t.TempDir(), "plan.txt"), 2)
	assert.Error(t, err)
}

func TestIsPlanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.md")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0644))

	assert.True(t, IsPlanFile(path))
	assert.False(t, IsPlanFile("turn on wifi"))
	assert.False(t, IsPlanFile(filepath.Join(t.TempDir(), "missing.md")))
}
