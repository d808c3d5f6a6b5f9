// Package worker owns the OCR worker subprocess: its stdin writer, its
// stdout line stream and its exit status.
package worker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// outputGrace is how long trailing output may keep arriving after the worker
// exits. A descendant that inherited stdout cannot hold the exit back longer.
const outputGrace = time.Second

// Options controls how the worker process is started.
type Options struct {
	// Dir is the working directory. Empty means the executable's own
	// directory, where the engine expects to find its models.
	Dir string

	// Env entries ("KEY=value") are appended to the parent environment.
	Env []string
}

// Process is a running worker.
//
// Goroutine model: readOutput is the only reader of stdout, drainStderr the
// only reader of stderr, and monitorExit the only caller of cmd.Wait(). Wait
// runs alongside the readers and returns at most outputGrace after the exit;
// monitorExit then closes both streams and waits for the readers, so every
// line the worker printed before it exited is delivered on Lines() before
// Done() closes.
type Process struct {
	path string
	cmd  *exec.Cmd
	log  *slog.Logger

	mu       sync.Mutex
	stdin    io.WriteCloser
	killed   bool
	exited   bool
	exitCode int
	exitOK   bool
	onExit   []func(code *int)

	// writeMu serializes WriteLine so request lines never interleave.
	writeMu sync.Mutex

	lines      chan string
	readDone   chan struct{}
	stderrDone chan struct{}
	done       chan struct{}

	wg sync.WaitGroup
}

// Spawn starts the worker executable with args.
// It returns a *SpawnError when the executable is missing or cannot be run.
func Spawn(path string, args []string, opts Options, log *slog.Logger) (*Process, error) {
	if log == nil {
		log = slog.Default()
	}

	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, &SpawnError{Path: path, Err: err}
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}

	cmd := exec.Command(resolved, args...)
	cmd.Dir = opts.Dir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(resolved)
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Path: resolved, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	// Output goes through in-process pipes so Wait can give up on a stream
	// held open by a descendant without losing what was already copied.
	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.WaitDelay = outputGrace

	log.Debug("starting worker", "command", resolved+" "+strings.Join(args, " "), "dir", cmd.Dir)

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutW.Close()
		stderrW.Close()
		log.Error("failed to start worker", "path", resolved, "error", err)
		return nil, &SpawnError{Path: resolved, Err: err}
	}

	p := &Process{
		path:       resolved,
		cmd:        cmd,
		log:        log.With("pid", cmd.Process.Pid),
		stdin:      stdin,
		lines:      make(chan string),
		readDone:   make(chan struct{}),
		stderrDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	p.log.Info("worker started", "path", resolved)

	p.wg.Go(func() { p.readOutput(stdout) })
	p.wg.Go(func() { p.drainStderr(stderr) })
	p.wg.Go(func() { p.monitorExit(stdoutW, stderrW) })

	return p, nil
}

// Pid returns the OS process id of the spawned executable.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Path returns the resolved executable path.
func (p *Process) Path() string {
	return p.path
}

// WriteLine writes text followed by a newline to the worker's stdin.
func (p *Process) WriteLine(text string) error {
	if strings.ContainsAny(text, "\r\n") {
		return &WriteError{Err: errMultiline}
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	stdin := p.stdin
	closed := p.killed || p.exited
	p.mu.Unlock()

	if closed || stdin == nil {
		return &WriteError{Err: ErrClosed}
	}
	if _, err := io.WriteString(stdin, text+"\n"); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// Lines returns the worker's stdout, one line per element, in arrival order.
// The channel is closed when stdout reaches EOF. There must be a single consumer.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit status. ok is false while the process is running
// or when it was terminated by a signal.
func (p *Process) ExitCode() (code int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exitOK
}

// OnExit registers fn to run once when the process exits. code is nil when no
// exit status is available. If the process already exited, fn runs immediately.
func (p *Process) OnExit(fn func(code *int)) {
	p.mu.Lock()
	if !p.exited {
		p.onExit = append(p.onExit, fn)
		p.mu.Unlock()
		return
	}
	code := p.exitCodePtrLocked()
	p.mu.Unlock()
	fn(code)
}

// Kill closes stdin and kills the process. Safe to call any number of times,
// before or after exit.
func (p *Process) Kill() error {
	p.mu.Lock()
	if p.killed || p.exited {
		p.mu.Unlock()
		return nil
	}
	p.killed = true
	stdin := p.stdin
	p.stdin = nil
	p.mu.Unlock()

	p.log.Debug("killing worker")
	if stdin != nil {
		stdin.Close()
	}
	if err := killProcess(p.cmd); err != nil {
		p.log.Error("failed to kill worker", "error", err)
		return fmt.Errorf("failed to kill worker: %w", err)
	}
	return nil
}

// Wait blocks until every goroutine owned by the process has returned.
func (p *Process) Wait() {
	p.wg.Wait()
}

// readOutput forwards stdout lines to the Lines channel.
func (p *Process) readOutput(stdout io.Reader) {
	defer close(p.readDone)

	if err := SplitLines(stdout, p.lines); err != nil {
		p.log.Debug("error reading worker stdout", "error", err)
		return
	}
	p.log.Debug("EOF on worker stdout")
}

// drainStderr logs the worker's stderr so it never blocks on a full pipe.
func (p *Process) drainStderr(stderr io.Reader) {
	defer close(p.stderrDone)

	err := ForEachLine(stderr, func(line string) {
		if line != "" {
			p.log.Debug("worker stderr", "line", line)
		}
	})
	if err != nil {
		p.log.Debug("error reading worker stderr", "error", err)
	}
}

// monitorExit reaps the process, then ends both output streams and waits
// for the readers to drain them.
func (p *Process) monitorExit(stdout, stderr io.Closer) {
	err := p.cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		p.log.Warn("worker output still held open after exit", "grace", outputGrace)
	}

	stdout.Close()
	stderr.Close()
	<-p.readDone
	<-p.stderrDone

	p.mu.Lock()
	p.exited = true
	p.stdin = nil
	if state := p.cmd.ProcessState; state != nil && state.ExitCode() >= 0 {
		p.exitCode = state.ExitCode()
		p.exitOK = true
	}
	code := p.exitCodePtrLocked()
	callbacks := p.onExit
	p.onExit = nil
	p.mu.Unlock()

	p.log.Info("worker exited", "exitCode", exitCodeAttr(code), "error", err)
	close(p.done)

	for _, fn := range callbacks {
		fn(code)
	}
}

// exitCodePtrLocked returns the exit code or nil. Caller must hold mu.
func (p *Process) exitCodePtrLocked() *int {
	if !p.exitOK {
		return nil
	}
	code := p.exitCode
	return &code
}

func exitCodeAttr(code *int) any {
	if code == nil {
		return "none"
	}
	return *code
}
