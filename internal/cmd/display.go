package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/phonepilot/internal/models"
)

// printTodoTable renders the final state of every todo item.
func printTodoTable(w io.Writer, items []*models.TodoItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No tasks were run")
		return
	}

	colorOutput := w == os.Stdout && isatty.IsTerminal(os.Stdout.Fd())

	fmt.Fprintf(w, "\n%-10s %-8s %-12s %s\n", "STATUS", "RETRIES", "TYPE", "TASK")
	for _, item := range items {
		status := item.Status.String()
		if colorOutput {
			status = colorStatus(item.Status)
		}
		fmt.Fprintf(w, "%-10s %-8d %-12s %s\n", status, item.RetryCount, item.TaskType, item.Description)
		if item.Error != "" {
			fmt.Fprintf(w, "%-10s %-8s %-12s   %s\n", "", "", "", item.Error)
		}
	}

	stats := todoStats(items)
	fmt.Fprintf(w, "\n%d tasks: %d done, %d failed\n", len(items), stats.done, stats.failed)
}

func colorStatus(status models.TodoStatus) string {
	switch status {
	case models.TodoDone:
		return color.New(color.FgGreen).Sprint(status.String())
	case models.TodoFailed:
		return color.New(color.FgRed).Sprint(status.String())
	case models.TodoRunning:
		return color.New(color.FgCyan).Sprint(status.String())
	default:
		return status.String()
	}
}

type statusCounts struct {
	done   int
	failed int
}

func todoStats(items []*models.TodoItem) statusCounts {
	var s statusCounts
	for _, item := range items {
		switch item.Status {
		case models.TodoDone:
			s.done++
		case models.TodoFailed:
			s.failed++
		}
	}
	return s
}
