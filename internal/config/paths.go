package config

import (
	"os"
	"path/filepath"
)

// DefaultWorkDir returns the per-user data directory for hearth. Falls
// back to the current directory when the user config dir is unknown.
func DefaultWorkDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "hearth-data"
	}
	return filepath.Join(base, "hearth")
}

// DefaultLogDir returns the log directory under workDir.
func DefaultLogDir(workDir string) string {
	return filepath.Join(workDir, "logs")
}
