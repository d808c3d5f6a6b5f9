// Package paths resolves where ocrpipe keeps its files.
//
// Layout:
//
//   - Config (XDG_CONFIG_HOME): config.yaml, engine settings
//   - Data (XDG_DATA_HOME): output/, visualization images written by the worker
//   - State (XDG_STATE_HOME): logs/
//
// Resolution order:
//  1. If ~/.ocrpipe/ exists, everything lives under it
//  2. If any XDG variable is set, use the XDG layout
//  3. Otherwise default to ~/.ocrpipe/
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

const appName = "ocrpipe"

var (
	mu       sync.Mutex
	resolved *resolvedPaths
)

type resolvedPaths struct {
	configDir string
	dataDir   string
	stateDir  string
	dotDir    bool
}

// resolve computes the layout once and caches it.
func resolve() (*resolvedPaths, error) {
	mu.Lock()
	defer mu.Unlock()

	if resolved != nil {
		return resolved, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dot := filepath.Join(home, "."+appName)
	if info, err := os.Stat(dot); err == nil && info.IsDir() {
		resolved = &resolvedPaths{configDir: dot, dataDir: dot, stateDir: dot, dotDir: true}
		return resolved, nil
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	xdgData := os.Getenv("XDG_DATA_HOME")
	xdgState := os.Getenv("XDG_STATE_HOME")

	if xdgConfig != "" || xdgData != "" || xdgState != "" {
		if xdgConfig == "" {
			xdgConfig = filepath.Join(home, ".config")
		}
		if xdgData == "" {
			xdgData = filepath.Join(home, ".local", "share")
		}
		if xdgState == "" {
			xdgState = filepath.Join(home, ".local", "state")
		}
		resolved = &resolvedPaths{
			configDir: filepath.Join(xdgConfig, appName),
			dataDir:   filepath.Join(xdgData, appName),
			stateDir:  filepath.Join(xdgState, appName),
		}
		return resolved, nil
	}

	resolved = &resolvedPaths{configDir: dot, dataDir: dot, stateDir: dot, dotDir: true}
	return resolved, nil
}

// ConfigDir returns the directory holding config.yaml.
func ConfigDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.configDir, nil
}

// DataDir returns the directory for persistent data.
func DataDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.dataDir, nil
}

// StateDir returns the directory for runtime state and logs.
func StateDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.stateDir, nil
}

// ConfigFilePath returns the full path to config.yaml.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// OutputDir returns the default directory for visualization output.
func OutputDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "output"), nil
}

// IsDotDirLayout returns true if everything lives under ~/.ocrpipe/.
func IsDotDirLayout() bool {
	r, err := resolve()
	if err != nil {
		return true
	}
	return r.dotDir
}

// Reset clears the cached resolution. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resolved = nil
}
