package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigPath returns the default path for the config file.
//   - Windows: %USERPROFILE%\.config\photoup\config
//   - Unix: ~/.config/photoup/config
func DefaultConfigPath() (string, error) {
	var configDir string

	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		configDir = filepath.Join(userProfile, ".config", "photoup")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "photoup")
	}

	return filepath.Join(configDir, "config"), nil
}

// EnsureConfigDirectory creates the parent directory of path with 0700 permissions.
func EnsureConfigDirectory(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// LogDirectory returns the default directory for the rotating log file.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\photoup\logs
//   - Unix: ~/.config/photoup/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "photoup-logs")
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, "photoup", "logs")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "photoup-logs")
	}
	return filepath.Join(configDir, "photoup", "logs")
}

// ResolveLogFile expands a configured log file name. Bare names are placed
// in LogDirectory; absolute or relative paths with a directory are kept.
func ResolveLogFile(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) || filepath.Dir(name) != "." {
		return name
	}
	return filepath.Join(LogDirectory(), name)
}
