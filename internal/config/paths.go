package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDir = "chatrelay"

// GetEnv returns the value of the environment variable key or def when unset.
func GetEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// DefaultConfigPath is where the relay looks for name when neither
// CONFIG_FILE nor --config is given.
func DefaultConfigPath(name string) string {
	home, _ := os.UserHomeDir()
	return ResolveConfigPath(runtime.GOOS, home, os.Getenv("ProgramData"), name)
}

// ResolveConfigPath maps an OS and its base directories to the relay's config
// location: /etc on unix, Application Support on macOS, ProgramData on Windows.
func ResolveConfigPath(goos, home, programData, name string) string {
	var base string
	switch goos {
	case "darwin":
		base = filepath.Join(home, "Library", "Application Support")
	case "windows":
		base = strings.TrimRight(programData, `\/`)
		if base == "" {
			base = "C:/ProgramData"
		}
	default:
		base = "/etc"
	}
	return filepath.Join(base, appDir, name)
}
