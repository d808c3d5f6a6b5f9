package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhubert/ocrpipe/paths"
)

// setupTestLogger initializes the logger on a temp file and returns its path.
func setupTestLogger(t *testing.T) string {
	t.Helper()
	Reset()
	t.Cleanup(Reset)

	logPath := filepath.Join(t.TempDir(), "test-debug.log")
	if err := Init(logPath); err != nil {
		t.Fatalf("Failed to init logger: %v", err)
	}
	return logPath
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestGet_StructuredLogging(t *testing.T) {
	logPath := setupTestLogger(t)

	Get().Info("exchange completed", "code", 100, "detections", 3)

	content := readLog(t, logPath)
	for _, want := range []string{"exchange completed", "code=100", "detections=3", "time="} {
		if !strings.Contains(content, want) {
			t.Errorf("log should contain %q, got:\n%s", want, content)
		}
	}
}

func TestInit_Idempotent(t *testing.T) {
	logPath := setupTestLogger(t)

	other := filepath.Join(t.TempDir(), "other.log")
	if err := Init(other); err != nil {
		t.Fatalf("second Init returned error: %v", err)
	}
	if Path() != logPath {
		t.Errorf("Path() = %q, want %q (second Init must be a no-op)", Path(), logPath)
	}
}

func TestReset(t *testing.T) {
	tmpDir := t.TempDir()
	logPath1 := filepath.Join(tmpDir, "log1.log")
	if err := Init(logPath1); err != nil {
		t.Fatalf("Failed to init logger: %v", err)
	}
	Get().Info("message to log1")

	Reset()

	logPath2 := filepath.Join(tmpDir, "log2.log")
	if err := Init(logPath2); err != nil {
		t.Fatalf("Failed to reinit logger: %v", err)
	}
	Get().Info("message to log2")
	Reset()

	content1 := readLog(t, logPath1)
	if !strings.Contains(content1, "message to log1") || strings.Contains(content1, "message to log2") {
		t.Errorf("log1 content unexpected:\n%s", content1)
	}
	content2 := readLog(t, logPath2)
	if !strings.Contains(content2, "message to log2") || strings.Contains(content2, "message to log1") {
		t.Errorf("log2 content unexpected:\n%s", content2)
	}
}

func TestLogLevel_Filtering(t *testing.T) {
	logPath := setupTestLogger(t)

	SetDebug(false)
	Get().Debug("debug-filtered")
	Get().Info("info-visible")

	SetDebug(true)
	Get().Debug("debug-visible")
	SetDebug(false)

	content := readLog(t, logPath)
	if strings.Contains(content, "debug-filtered") {
		t.Error("Debug message should be filtered at Info level")
	}
	if !strings.Contains(content, "info-visible") {
		t.Error("Info message should be visible at Info level")
	}
	if !strings.Contains(content, "debug-visible") {
		t.Error("Debug message should be visible after SetDebug(true)")
	}
}

func TestWithComponent(t *testing.T) {
	logPath := setupTestLogger(t)

	WithComponent("queue").Info("exchange transmitted", "exchangeID", "abc123")

	content := readLog(t, logPath)
	if !strings.Contains(content, "component=queue") {
		t.Error("Should contain 'component=queue' attribute")
	}
	if !strings.Contains(content, "exchangeID=abc123") {
		t.Error("Should contain 'exchangeID=abc123' attribute")
	}
}

func TestWithWorker(t *testing.T) {
	logPath := setupTestLogger(t)

	WithWorker(4242).With("component", "worker").Info("worker ready")

	content := readLog(t, logPath)
	if !strings.Contains(content, "workerPID=4242") {
		t.Error("Should contain 'workerPID=4242' attribute")
	}
	if !strings.Contains(content, "component=worker") {
		t.Error("Should contain 'component=worker' attribute")
	}
}

func TestEnsureInit_DefaultPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	paths.Reset()
	t.Cleanup(paths.Reset)
	Reset()
	t.Cleanup(Reset)

	Get().Info("default path test")

	want, err := DefaultLogPath()
	if err != nil {
		t.Fatal(err)
	}
	if Path() != want {
		t.Errorf("Path() = %q, want %q", Path(), want)
	}
	if !strings.Contains(readLog(t, want), "default path test") {
		t.Error("default log file should contain the message")
	}

	n, err := ClearLogs()
	if err != nil {
		t.Fatalf("ClearLogs: %v", err)
	}
	if n != 1 {
		t.Errorf("ClearLogs removed %d files, want 1", n)
	}
}

func TestConcurrent_InitAndGet(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	paths.Reset()
	t.Cleanup(paths.Reset)

	for range 10 {
		Reset()
		logPath := filepath.Join(t.TempDir(), "concurrent.log")

		done := make(chan bool, 15)
		for range 5 {
			go func() {
				_ = Init(logPath)
				done <- true
			}()
			go func() {
				Get().Info("concurrent get")
				done <- true
			}()
			go func() {
				WithComponent("comp").Info("concurrent component")
				done <- true
			}()
		}
		for range 15 {
			<-done
		}
	}
	Reset()
}
