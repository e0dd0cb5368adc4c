package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelConfig represents one model endpoint configuration
type ModelConfig struct {
	// BaseURL is the OpenAI-compatible API base, e.g. http://localhost:8000/v1
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a bearer token; "EMPTY" works for local servers
	APIKey string `yaml:"api_key"`

	// Model is the model name passed in each request
	Model string `yaml:"model"`

	// MaxTokens caps each completion
	MaxTokens int `yaml:"max_tokens"`

	// Temperature for sampling (0 = deterministic)
	Temperature float64 `yaml:"temperature"`
}

// Config represents phonepilot configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs will be written
	LogDir string `yaml:"log_dir"`

	// DeviceSerial selects the adb device; empty uses the default device
	DeviceSerial string `yaml:"device_serial"`

	// ADBPath is the adb binary; empty resolves from PATH
	ADBPath string `yaml:"adb_path"`

	// ExecutorInterval is the inner loop tick period
	ExecutorInterval time.Duration `yaml:"executor_interval"`

	// PlannerInterval is the outer loop tick period
	PlannerInterval time.Duration `yaml:"planner_interval"`

	// StuckThreshold is the number of consecutive unchanged screens
	// before the executor reports Stuck
	StuckThreshold int `yaml:"stuck_threshold"`

	// MaxFeedbackHistory bounds the planner's feedback window
	MaxFeedbackHistory int `yaml:"max_feedback_history"`

	// MaxInterventions is the number of corrective prompts before the
	// planner resets the executor context
	MaxInterventions int `yaml:"max_interventions"`

	// MaxTaskRetries is the per-task retry budget
	MaxTaskRetries int `yaml:"max_task_retries"`

	// MemoryDBPath is the prompt memory database; empty uses the home dir
	MemoryDBPath string `yaml:"memory_db_path"`

	// ExecutionModel drives the inner loop's step decisions
	ExecutionModel ModelConfig `yaml:"execution_model"`

	// PlanningModel serves the outer loop's corrective and
	// prompt-optimization requests
	PlanningModel ModelConfig `yaml:"planning_model"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:           "info",
		LogDir:             "", // resolved under the home dir
		ExecutorInterval:   500 * time.Millisecond,
		PlannerInterval:    2 * time.Second,
		StuckThreshold:     3,
		MaxFeedbackHistory: 2,
		MaxInterventions:   3,
		MaxTaskRetries:     3,
		ExecutionModel: ModelConfig{
			BaseURL:   "http://localhost:8000/v1",
			APIKey:    "EMPTY",
			Model:     "autoglm-phone-9b",
			MaxTokens: 3000,
		},
		PlanningModel: ModelConfig{
			BaseURL:   "http://localhost:8000/v1",
			APIKey:    "EMPTY",
			Model:     "autoglm-phone-9b",
			MaxTokens: 2000,
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Temporary struct so durations accept "500ms"-style strings
	type yamlConfig struct {
		LogLevel           string      `yaml:"log_level"`
		LogDir             string      `yaml:"log_dir"`
		DeviceSerial       string      `yaml:"device_serial"`
		ADBPath            string      `yaml:"adb_path"`
		ExecutorInterval   string      `yaml:"executor_interval"`
		PlannerInterval    string      `yaml:"planner_interval"`
		StuckThreshold     int         `yaml:"stuck_threshold"`
		MaxFeedbackHistory int         `yaml:"max_feedback_history"`
		MaxInterventions   int         `yaml:"max_interventions"`
		MaxTaskRetries     int         `yaml:"max_task_retries"`
		MemoryDBPath       string      `yaml:"memory_db_path"`
		ExecutionModel     ModelConfig `yaml:"execution_model"`
		PlanningModel      ModelConfig `yaml:"planning_model"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply non-zero values from file (merging with defaults)
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.DeviceSerial != "" {
		cfg.DeviceSerial = yamlCfg.DeviceSerial
	}
	if yamlCfg.ADBPath != "" {
		cfg.ADBPath = yamlCfg.ADBPath
	}
	if yamlCfg.ExecutorInterval != "" {
		d, err := time.ParseDuration(yamlCfg.ExecutorInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid executor_interval %q: %w", yamlCfg.ExecutorInterval, err)
		}
		cfg.ExecutorInterval = d
	}
	if yamlCfg.PlannerInterval != "" {
		d, err := time.ParseDuration(yamlCfg.PlannerInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid planner_interval %q: %w", yamlCfg.PlannerInterval, err)
		}
		cfg.PlannerInterval = d
	}
	if yamlCfg.StuckThreshold != 0 {
		cfg.StuckThreshold = yamlCfg.StuckThreshold
	}
	if yamlCfg.MaxFeedbackHistory != 0 {
		cfg.MaxFeedbackHistory = yamlCfg.MaxFeedbackHistory
	}
	if yamlCfg.MaxInterventions != 0 {
		cfg.MaxInterventions = yamlCfg.MaxInterventions
	}
	if yamlCfg.MaxTaskRetries != 0 {
		cfg.MaxTaskRetries = yamlCfg.MaxTaskRetries
	}
	if yamlCfg.MemoryDBPath != "" {
		cfg.MemoryDBPath = yamlCfg.MemoryDBPath
	}

	mergeModel(&cfg.ExecutionModel, yamlCfg.ExecutionModel)
	mergeModel(&cfg.PlanningModel, yamlCfg.PlanningModel)

	return cfg, nil
}

// mergeModel applies non-zero model fields from the file over defaults.
func mergeModel(dst *ModelConfig, src ModelConfig) {
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.APIKey != "" {
		dst.APIKey = src.APIKey
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.MaxTokens != 0 {
		dst.MaxTokens = src.MaxTokens
	}
	if src.Temperature != 0 {
		dst.Temperature = src.Temperature
	}
}

// LoadConfigFromDir loads configuration from config.yaml in the given
// home directory. If the file doesn't exist, returns defaults.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, "config.yaml"))
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(serial *string, logLevel *string, memoryDBPath *string, stuckThreshold *int, maxTaskRetries *int) {
	if serial != nil {
		c.DeviceSerial = *serial
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if memoryDBPath != nil {
		c.MemoryDBPath = *memoryDBPath
	}
	if stuckThreshold != nil {
		c.StuckThreshold = *stuckThreshold
	}
	if maxTaskRetries != nil {
		c.MaxTaskRetries = *maxTaskRetries
	}
}

// Validate validates the configuration values.
// Returns an error if any values are invalid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.ExecutorInterval <= 0 {
		return fmt.Errorf("executor_interval must be > 0, got %v", c.ExecutorInterval)
	}
	if c.PlannerInterval <= 0 {
		return fmt.Errorf("planner_interval must be > 0, got %v", c.PlannerInterval)
	}
	if c.StuckThreshold <= 0 {
		return fmt.Errorf("stuck_threshold must be > 0, got %d", c.StuckThreshold)
	}
	if c.MaxFeedbackHistory <= 0 {
		return fmt.Errorf("max_feedback_history must be > 0, got %d", c.MaxFeedbackHistory)
	}
	if c.MaxInterventions <= 0 {
		return fmt.Errorf("max_interventions must be > 0, got %d", c.MaxInterventions)
	}
	if c.MaxTaskRetries < 0 {
		return fmt.Errorf("max_task_retries must be >= 0, got %d", c.MaxTaskRetries)
	}

	if c.ExecutionModel.BaseURL == "" {
		return fmt.Errorf("execution_model.base_url cannot be empty")
	}
	if c.PlanningModel.BaseURL == "" {
		return fmt.Errorf("planning_model.base_url cannot be empty")
	}

	return nil
}
