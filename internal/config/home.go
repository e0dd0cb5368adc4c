package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetHome returns the phonepilot home directory.
// Priority order:
//  1. PHONEPILOT_HOME environment variable (if set)
//  2. Repository root (detected by a .phonepilot-root marker or go.mod)
//  3. Current working directory (fallback)
//
// The directory is created if it doesn't exist.
func GetHome() (string, error) {
	if home := os.Getenv("PHONEPILOT_HOME"); home != "" {
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("create home directory: %w", err)
		}
		return home, nil
	}

	if root, err := findRepoRoot(); err == nil && root != "" {
		home := filepath.Join(root, ".phonepilot")
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("create home directory: %w", err)
		}
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	home := filepath.Join(cwd, ".phonepilot")
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create home directory: %w", err)
	}
	return home, nil
}

// findRepoRoot walks up from the working directory looking for a
// .phonepilot-root marker file or this module's go.mod.
func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	current := cwd
	for {
		markerPath := filepath.Join(current, ".phonepilot-root")
		if _, err := os.Stat(markerPath); err == nil {
			return current, nil
		}

		goModPath := filepath.Join(current, "go.mod")
		if data, err := os.ReadFile(goModPath); err == nil {
			if strings.Contains(string(data), "github.com/harrison/phonepilot") {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("repository root not found (looking for .phonepilot-root or go.mod with github.com/harrison/phonepilot)")
}

// ResolveMemoryDBPath resolves the prompt memory database path: the configured
// path when set, otherwise memory/prompts.db under the home dir.
func (c *Config) ResolveMemoryDBPath() (string, error) {
	if c.MemoryDBPath != "" {
		return c.MemoryDBPath, nil
	}
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "memory", "prompts.db"), nil
}

// ResolveLogDir resolves the run log directory: the configured path when
// set, otherwise logs/ under the home dir.
func (c *Config) ResolveLogDir() (string, error) {
	if c.LogDir != "" {
		return c.LogDir, nil
	}
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "logs"), nil
}
