package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/phonepilot/internal/config"
	"github.com/harrison/phonepilot/internal/device"
	"github.com/harrison/phonepilot/internal/executor"
	"github.com/harrison/phonepilot/internal/logger"
	"github.com/harrison/phonepilot/internal/loop"
	"github.com/harrison/phonepilot/internal/memory"
	"github.com/harrison/phonepilot/internal/model"
	"github.com/harrison/phonepilot/internal/parser"
	"github.com/harrison/phonepilot/internal/planner"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <task-or-plan.md>",
		Short: "Run a task or a markdown plan on the device",
		Long: `Run a task described in free text, or a markdown plan file with one
"## Task N: ..." heading per task.

While the run is active, lines typed on stdin are queued as follow-up
user input for the planner.

Examples:
  phonepilot run "turn on wifi"
  phonepilot run morning-routine.md
  phonepilot run --serial emulator-5554 "open the camera"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: <home>/config.yaml)")
	cmd.Flags().String("serial", "", "adb device serial (default: the only connected device)")
	cmd.Flags().String("log-level", "", "Log verbosity: trace, debug, info, warn, error")
	cmd.Flags().String("memory-db", "", "Path to the prompt memory database")
	cmd.Flags().Int("stuck-threshold", 0, "Consecutive unchanged screens before the executor reports stuck")
	cmd.Flags().Int("max-retries", -1, "Per-task retry budget")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	var serial, level, memDB *string
	var threshold, retries *int
	if flags.Changed("serial") {
		v, _ := flags.GetString("serial")
		serial = &v
	}
	if flags.Changed("log-level") {
		v, _ := flags.GetString("log-level")
		level = &v
	}
	if flags.Changed("memory-db") {
		v, _ := flags.GetString("memory-db")
		memDB = &v
	}
	if flags.Changed("stuck-threshold") {
		v, _ := flags.GetInt("stuck-threshold")
		threshold = &v
	}
	if flags.Changed("max-retries") {
		v, _ := flags.GetInt("max-retries")
		retries = &v
	}
	cfg.MergeWithFlags(serial, level, memDB, threshold, retries)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// One supervisor per device.
	runLock, err := config.AcquireRunLock()
	if err != nil {
		return err
	}
	defer runLock.Unlock()

	logDir, err := cfg.ResolveLogDir()
	if err != nil {
		return err
	}
	fileLog, err := logger.NewFileLogger(logDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer fileLog.Close()
	log := logger.NewMultiLogger(logger.NewConsoleLogger(os.Stderr, cfg.LogLevel), fileLog)

	dbPath, err := cfg.ResolveMemoryDBPath()
	if err != nil {
		return err
	}
	store, err := memory.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open prompt memory: %w", err)
	}
	defer store.Close()

	dev := device.NewADB(cfg.DeviceSerial)
	if cfg.ADBPath != "" {
		dev.Path = cfg.ADBPath
	}

	stepper := model.NewChatStepper(model.NewClient(clientConfig(cfg.ExecutionModel)))
	completer := model.NewClient(clientConfig(cfg.PlanningModel))

	exec := executor.New(dev, stepper, cfg.StuckThreshold, log)
	plan := planner.New(exec, completer, store, planner.Options{
		MaxFeedbackHistory: cfg.MaxFeedbackHistory,
		MaxInterventions:   cfg.MaxInterventions,
		MaxTaskRetries:     cfg.MaxTaskRetries,
	}, log)

	coordinator := loop.New(exec, plan, loop.Options{
		ExecutorInterval: cfg.ExecutorInterval,
		PlannerInterval:  cfg.PlannerInterval,
	}, log)

	// A plan file preloads the todo list; free text goes through the
	// planner's own folding (classification, decomposition).
	if len(args) == 1 && parser.IsPlanFile(args[0]) {
		items, err := parser.ParseFile(args[0], cfg.MaxTaskRetries)
		if err != nil {
			return err
		}
		plan.AddTodos(items)
		log.Infof("loaded %d tasks from %s", len(items), args[0])
	} else {
		coordinator.SubmitInput(strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Follow-up input from stdin.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !coordinator.SubmitInput(line) {
				log.Warnf("input dropped, try again: %s", line)
			}
		}
	}()

	if err := coordinator.Run(ctx); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	printTodoTable(cmd.OutOrStdout(), plan.Todos())
	if result := plan.Result(); result != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\nResult: %s\n", result)
	}
	return nil
}

// loadConfig loads configuration from --config or the home directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}

	home, err := config.GetHome()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfigFromDir(home)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// clientConfig maps the config file's model section onto the client's.
func clientConfig(mc config.ModelConfig) model.Config {
	cfg := model.DefaultConfig()
	cfg.BaseURL = mc.BaseURL
	cfg.APIKey = mc.APIKey
	cfg.Model = mc.Model
	if mc.MaxTokens > 0 {
		cfg.MaxTokens = mc.MaxTokens
	}
	cfg.Temperature = mc.Temperature
	return cfg
}
