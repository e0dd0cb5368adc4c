package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/phonepilot/internal/config"
	"github.com/harrison/phonepilot/internal/memory"
)

// NewMemoryCommand creates the 'phonepilot memory' parent command
func NewMemoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage the prompt memory store",
		Long: `Commands for viewing and managing the prompt memory.

The prompt memory holds one system prompt per task type. The planner
reads it when dispatching a task and revises it after each task ends.`,
	}

	cmd.PersistentFlags().String("memory-db", "", "Path to the prompt memory database")

	cmd.AddCommand(newMemoryShowCommand())
	cmd.AddCommand(newMemorySetCommand())
	cmd.AddCommand(newMemoryClearCommand())

	return cmd
}

// openStore resolves the database path and opens the store.
func openStore(cmd *cobra.Command) (*memory.Store, error) {
	dbPath, _ := cmd.Flags().GetString("memory-db")
	if dbPath == "" {
		cfg := config.DefaultConfig()
		var err error
		dbPath, err = cfg.ResolveMemoryDBPath()
		if err != nil {
			return nil, err
		}
	}

	store, err := memory.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt memory: %w", err)
	}
	return store, nil
}

func newMemoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [task-type]",
		Short: "Show stored prompts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			if len(args) == 1 {
				entry, found, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("no prompt stored for task type %q", args[0])
				}
				fmt.Fprintf(out, "Task type:    %s\n", entry.TaskType)
				fmt.Fprintf(out, "Last updated: %s\n\n", entry.LastUpdated.Format("2006-01-02 15:04:05"))
				fmt.Fprintln(out, entry.SystemPrompt)
				return nil
			}

			entries, err := store.List(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "Prompt memory is empty")
				return nil
			}
			fmt.Fprintf(out, "%-16s %-20s %s\n", "TASK TYPE", "LAST UPDATED", "PROMPT")
			for _, e := range entries {
				fmt.Fprintf(out, "%-16s %-20s %s\n",
					e.TaskType,
					e.LastUpdated.Format("2006-01-02 15:04:05"),
					truncate(e.SystemPrompt, 60))
			}
			return nil
		},
	}
}

func newMemorySetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <task-type> <prompt>",
		Short: "Store a system prompt for a task type",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			taskType := args[0]
			prompt := strings.Join(args[1:], " ")
			if err := store.Put(cmd.Context(), taskType, prompt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored prompt for %q\n", taskType)
			return nil
		},
	}
}

func newMemoryClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [task-type]",
		Short: "Delete one prompt, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				if err := store.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted prompt for %q\n", args[0])
				return nil
			}

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "Prompt memory cleared")
			return nil
		},
	}
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
