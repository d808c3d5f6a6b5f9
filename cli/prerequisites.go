// Package cli checks that the OCR engine and its helper tools are in place
// before a worker is started.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zhubert/ocrpipe/config"
)

// Kind says how a prerequisite is located.
type Kind int

const (
	KindCommand    Kind = iota // looked up in PATH
	KindExecutable             // a file path that must be executable
	KindDirectory              // a directory that must exist
)

// ReleasesURL is where the engine is downloaded from.
const ReleasesURL = "https://github.com/hiroi-sora/PaddleOCR-json/releases"

// Prerequisite is one thing the program needs on disk.
type Prerequisite struct {
	Name        string // Short label, or the command name for KindCommand
	Kind        Kind
	Path        string // Location checked for KindExecutable and KindDirectory
	Required    bool
	Description string
	Hint        string // How to fix it when missing
}

// EnginePrerequisites returns the checks for the engine described by cfg.
func EnginePrerequisites(cfg *config.Config) []Prerequisite {
	exe := cfg.ExecutablePath()

	prereqs := []Prerequisite{
		{
			Name:        "engine",
			Kind:        KindExecutable,
			Path:        exe,
			Required:    true,
			Description: "PaddleOCR-json engine",
			Hint:        "download a release from " + ReleasesURL + " or set executable in config.yaml",
		},
		{
			Name:        "models",
			Kind:        KindDirectory,
			Path:        modelsDir(cfg, exe),
			Required:    cfg.ModelsPath != "",
			Description: "engine model files",
			Hint:        "set models_path in config.yaml",
		},
	}

	if runtime.GOOS == "windows" {
		prereqs = append(prereqs, Prerequisite{
			Name: "tasklist", Kind: KindCommand,
			Description: "process listing (optional, for orphan cleanup)",
		})
	} else {
		prereqs = append(prereqs, Prerequisite{
			Name: "pgrep", Kind: KindCommand,
			Description: "process listing (optional, for orphan cleanup)",
			Hint:        "install procps",
		})
	}
	return prereqs
}

// modelsDir resolves the models directory the engine will use. Relative
// paths are taken from the worker's working directory.
func modelsDir(cfg *config.Config, exe string) string {
	dir := cfg.ModelsPath
	if dir == "" {
		dir = "models"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	base := cfg.WorkingDir
	if base == "" {
		base = filepath.Dir(exe)
	}
	return filepath.Join(base, dir)
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string // Resolved location when found
	Error        error
}

// Check verifies a single prerequisite.
func Check(prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	switch prereq.Kind {
	case KindCommand:
		path, err := exec.LookPath(prereq.Name)
		if err != nil {
			result.Error = fmt.Errorf("%s not found in PATH", prereq.Name)
			return result
		}
		result.Path = path

	case KindExecutable:
		path, err := exec.LookPath(prereq.Path)
		if err != nil {
			result.Error = describe(prereq.Path, err)
			return result
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		result.Path = path

	case KindDirectory:
		info, err := os.Stat(prereq.Path)
		if err != nil {
			result.Error = describe(prereq.Path, err)
			return result
		}
		if !info.IsDir() {
			result.Error = fmt.Errorf("%s is not a directory", prereq.Path)
			return result
		}
		result.Path = prereq.Path
	}

	result.Found = true
	return result
}

func describe(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s does not exist", path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s is not executable", path)
	}
	return fmt.Errorf("%s: %w", path, err)
}

// CheckAll runs every check in order.
func CheckAll(prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = Check(prereq)
	}
	return results
}

// ValidateRequired returns nil when every required prerequisite is found,
// otherwise an error listing what is missing and how to fix it.
func ValidateRequired(prereqs []Prerequisite) error {
	var missing []string

	for _, prereq := range prereqs {
		if !prereq.Required {
			continue
		}
		result := Check(prereq)
		if result.Found {
			continue
		}
		entry := fmt.Sprintf("  - %s (%s): %v", prereq.Name, prereq.Description, result.Error)
		if prereq.Hint != "" {
			entry += "\n    Fix: " + prereq.Hint
		}
		missing = append(missing, entry)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing prerequisites:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}

// FormatCheckResults renders results for display.
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("Prerequisites:\n")
	for _, r := range results {
		status := "✓"
		if !r.Found {
			if r.Prerequisite.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		fmt.Fprintf(&sb, "  %s %s", status, r.Prerequisite.Name)
		switch {
		case r.Found && r.Path != "":
			fmt.Fprintf(&sb, " (%s)", r.Path)
		case !r.Found && r.Prerequisite.Required:
			sb.WriteString(" [REQUIRED]")
		case !r.Found:
			sb.WriteString(" [optional]")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
