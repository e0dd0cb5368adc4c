package cmd

import (
	"bytes"
	"testing"

	"github.com/harrison/phonepilot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "phonepilot", root.Use)
	assert.True(t, root.SilenceUsage)

	names := make([]string, 0)
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "memory")
}

func TestRunCommandRequiresArgs(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"run"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
}

func TestPrintTodoTable(t *testing.T) {
	done := models.NewTodoItem("open settings", "navigation", 3)
	done.Start()
	done.Complete()

	failed := models.NewTodoItem("buy a yacht", "shopping", 3)
	failed.Start()
	failed.Fail("retry budget exhausted")

	var buf bytes.Buffer
	printTodoTable(&buf, []*models.TodoItem{done, failed})

	out := buf.String()
	assert.Contains(t, out, "open settings")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "retry budget exhausted")
	assert.Contains(t, out, "2 tasks: 1 done, 1 failed")
}

func TestPrintTodoTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	printTodoTable(&buf, nil)
	assert.Contains(t, buf.String(), "No tasks were run")
}

func TestMemorySetAndShowRoundTrip(t *testing.T) {
	dbPath := t.TempDir() + "/prompts.db"

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"memory", "set", "wifi", "You toggle wifi.", "--memory-db", dbPath})
	require.NoError(t, root.Execute())

	root = NewRootCommand()
	out.Reset()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"memory", "show", "wifi", "--memory-db", dbPath})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "You toggle wifi.")

	root = NewRootCommand()
	out.Reset()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"memory", "clear", "--memory-db", dbPath})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "cleared")
}
