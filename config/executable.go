package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// ExecutableName is the file name of the PaddleOCR-json engine.
func ExecutableName() string {
	if runtime.GOOS == "windows" {
		return "PaddleOCR-json.exe"
	}
	return "PaddleOCR-json"
}

// DefaultExecutable returns the engine path used when none is configured:
// the engine binary placed next to the running program.
func DefaultExecutable() string {
	self, err := os.Executable()
	if err != nil {
		return ExecutableName()
	}
	if resolved, err := filepath.EvalSymlinks(self); err == nil {
		self = resolved
	}
	return filepath.Join(filepath.Dir(self), ExecutableName())
}

// SameExecutable reports whether a and b name the same file. Symlinks and
// case-insensitive filesystems are handled by comparing the files themselves.
// Paths that cannot be stat'd only match when the strings are equal.
func SameExecutable(a, b string) bool {
	if a == b {
		return true
	}
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	if errA != nil || errB != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}
