// Package process finds and cleans up PaddleOCR-json engines left running by
// a supervisor that died without killing its worker.
package process

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/zhubert/ocrpipe/config"
	pexec "github.com/zhubert/ocrpipe/exec"
	"github.com/zhubert/ocrpipe/logger"
)

// Worker is an engine process found in the process table.
type Worker struct {
	PID     int
	Command string // full command line, or the image name on Windows
}

// Argv0 returns the program part of the command line.
func (w Worker) Argv0() string {
	fields := strings.Fields(w.Command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Runs reports whether the worker was started from executable. Relative or
// bare program names match on the file name alone.
func (w Worker) Runs(executable string) bool {
	if w.Command == executable || strings.HasPrefix(w.Command, executable+" ") {
		return true
	}
	argv0 := w.Argv0()
	if argv0 == "" {
		return false
	}
	if filepath.IsAbs(argv0) && filepath.IsAbs(executable) {
		return config.SameExecutable(argv0, executable)
	}
	return imageName(argv0) == imageName(executable)
}

// imageName strips the directory and a Windows .exe suffix.
func imageName(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".exe") {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// exitCoder is satisfied by *os/exec.ExitError.
type exitCoder interface {
	ExitCode() int
}

// noMatches reports whether err is pgrep's "nothing matched" exit status.
func noMatches(err error) bool {
	var ec exitCoder
	return errors.As(err, &ec) && ec.ExitCode() == 1
}

// FindWorkers lists running processes whose program name matches executable.
func FindWorkers(ctx context.Context, executable string) ([]Worker, error) {
	log := logger.WithComponent("process")
	run := pexec.GetDefaultExecutor()
	name := imageName(executable)

	var workers []Worker
	switch runtime.GOOS {
	case "darwin", "linux":
		output, err := run.Output(ctx, "pgrep", "-f", name)
		if err != nil {
			if noMatches(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("pgrep: %w", err)
		}

		for _, pidStr := range strings.Fields(string(output)) {
			pid, err := strconv.Atoi(pidStr)
			if err != nil {
				continue
			}
			// The process may have exited between pgrep and ps.
			args, err := run.Output(ctx, "ps", "-p", pidStr, "-o", "args=")
			if err != nil {
				continue
			}
			w := Worker{PID: pid, Command: strings.TrimSpace(string(args))}
			if imageName(w.Argv0()) != name {
				continue
			}
			workers = append(workers, w)
		}

	case "windows":
		output, err := run.Output(ctx, "tasklist", "/FI", "IMAGENAME eq "+name+".exe", "/FO", "CSV", "/NH")
		if err != nil {
			return nil, fmt.Errorf("tasklist: %w", err)
		}
		workers = parseTasklist(string(output))
	}

	log.Debug("found engine processes", "name", name, "count", len(workers))
	return workers, nil
}

// parseTasklist reads `tasklist /FO CSV /NH` output. Lines that do not carry
// a numeric PID, such as the "no tasks" notice, are skipped.
func parseTasklist(output string) []Worker {
	var workers []Worker
	for line := range strings.Lines(output) {
		fields := strings.Split(strings.TrimSpace(line), ",")
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.Trim(strings.TrimSpace(fields[1]), `"`))
		if err != nil {
			continue
		}
		workers = append(workers, Worker{PID: pid, Command: strings.Trim(fields[0], `"`)})
	}
	return workers
}

// KillProcess force-kills pid.
func KillProcess(ctx context.Context, pid int) error {
	run := pexec.GetDefaultExecutor()
	switch runtime.GOOS {
	case "darwin", "linux":
		return run.Run(ctx, "kill", "-9", strconv.Itoa(pid))
	case "windows":
		return run.Run(ctx, "taskkill", "/F", "/PID", strconv.Itoa(pid))
	}
	return nil
}

// FindOrphanedWorkers returns engines started from executable whose PID is
// not in known. known holds the PIDs of workers this program supervises.
func FindOrphanedWorkers(ctx context.Context, executable string, known map[int]bool) ([]Worker, error) {
	workers, err := FindWorkers(ctx, executable)
	if err != nil {
		return nil, err
	}

	var orphans []Worker
	for _, w := range workers {
		if known[w.PID] || !w.Runs(executable) {
			continue
		}
		orphans = append(orphans, w)
	}
	return orphans, nil
}

// CleanupOrphaned kills orphaned engines and returns how many were killed.
// A failed kill is logged and does not stop the sweep.
func CleanupOrphaned(ctx context.Context, executable string, known map[int]bool) (int, error) {
	log := logger.WithComponent("process")

	orphans, err := FindOrphanedWorkers(ctx, executable, known)
	if err != nil {
		return 0, err
	}

	killed := 0
	for _, w := range orphans {
		log.Info("killing orphaned engine", "pid", w.PID, "command", w.Command)
		if err := KillProcess(ctx, w.PID); err != nil {
			log.Warn("failed to kill orphaned engine", "pid", w.PID, "error", err)
			continue
		}
		killed++
	}
	return killed, nil
}
