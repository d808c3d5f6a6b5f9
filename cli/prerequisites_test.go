package cli

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/zhubert/ocrpipe/config"
)

// fakeEngine writes an executable engine stand-in with a models directory
// beside it.
func fakeEngine(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses unix file modes")
	}
	dir := t.TempDir()
	exe := filepath.Join(dir, "PaddleOCR-json")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "models"), 0o755); err != nil {
		t.Fatal(err)
	}
	return exe
}

func findPrereq(t *testing.T, prereqs []Prerequisite, name string) Prerequisite {
	t.Helper()
	for _, p := range prereqs {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("prerequisite %q not found", name)
	return Prerequisite{}
}

func TestEnginePrerequisites(t *testing.T) {
	cfg := config.Default()
	cfg.Executable = "/opt/ocr/PaddleOCR-json"

	prereqs := EnginePrerequisites(cfg)

	engine := findPrereq(t, prereqs, "engine")
	if !engine.Required || engine.Kind != KindExecutable || engine.Path != cfg.Executable {
		t.Errorf("unexpected engine prerequisite: %+v", engine)
	}

	models := findPrereq(t, prereqs, "models")
	if models.Required {
		t.Error("models should be optional when models_path is unset")
	}
	if want := filepath.Join("/opt/ocr", "models"); models.Path != want {
		t.Errorf("expected models path %q, got %q", want, models.Path)
	}

	for _, p := range prereqs {
		if p.Kind == KindCommand && p.Required {
			t.Errorf("process listing tool %q should be optional", p.Name)
		}
	}
}

func TestEnginePrerequisites_ModelsPath(t *testing.T) {
	tests := []struct {
		name       string
		modelsPath string
		workingDir string
		want       string
	}{
		{name: "absolute", modelsPath: "/data/models", want: "/data/models"},
		{name: "relative to exe dir", modelsPath: "m2", want: filepath.Join("/opt/ocr", "m2")},
		{name: "relative to working dir", modelsPath: "m2", workingDir: "/srv", want: filepath.Join("/srv", "m2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Executable = "/opt/ocr/PaddleOCR-json"
			cfg.ModelsPath = tt.modelsPath
			cfg.WorkingDir = tt.workingDir

			models := findPrereq(t, EnginePrerequisites(cfg), "models")
			if !models.Required {
				t.Error("models should be required when models_path is set")
			}
			if models.Path != tt.want {
				t.Errorf("expected %q, got %q", tt.want, models.Path)
			}
		})
	}
}

func TestCheck_Executable(t *testing.T) {
	exe := fakeEngine(t)
	dir := filepath.Dir(exe)

	plain := filepath.Join(dir, "not-executable")
	if err := os.WriteFile(plain, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		found   bool
		errText string
	}{
		{name: "present", path: exe, found: true},
		{name: "missing", path: filepath.Join(dir, "nope"), errText: "does not exist"},
		{name: "not executable", path: plain, errText: "is not executable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Check(Prerequisite{Name: "engine", Kind: KindExecutable, Path: tt.path, Required: true})
			if r.Found != tt.found {
				t.Fatalf("Found = %v, want %v (err %v)", r.Found, tt.found, r.Error)
			}
			if tt.found {
				if r.Path != tt.path {
					t.Errorf("expected path %q, got %q", tt.path, r.Path)
				}
				return
			}
			if r.Error == nil || !strings.Contains(r.Error.Error(), tt.errText) {
				t.Errorf("expected error containing %q, got %v", tt.errText, r.Error)
			}
		})
	}
}

func TestCheck_Directory(t *testing.T) {
	exe := fakeEngine(t)
	dir := filepath.Dir(exe)

	if r := Check(Prerequisite{Name: "models", Kind: KindDirectory, Path: filepath.Join(dir, "models")}); !r.Found {
		t.Errorf("models dir should be found: %v", r.Error)
	}
	if r := Check(Prerequisite{Name: "models", Kind: KindDirectory, Path: exe}); r.Found {
		t.Error("a file should not satisfy a directory check")
	}
	if r := Check(Prerequisite{Name: "models", Kind: KindDirectory, Path: filepath.Join(dir, "gone")}); r.Found {
		t.Error("missing directory should not be found")
	}
}

func TestCheck_Command(t *testing.T) {
	r := Check(Prerequisite{Name: "this-command-does-not-exist-12345", Kind: KindCommand})
	if r.Found {
		t.Error("nonexistent command should not be found")
	}
	if r.Error == nil || !strings.Contains(r.Error.Error(), "not found in PATH") {
		t.Errorf("unexpected error: %v", r.Error)
	}

	if runtime.GOOS == "windows" {
		return
	}
	r = Check(Prerequisite{Name: "sh", Kind: KindCommand})
	if !r.Found || r.Path == "" {
		t.Errorf("sh should be found with a path, got %+v", r)
	}
}

func TestValidateRequired(t *testing.T) {
	exe := fakeEngine(t)

	cfg := config.Default()
	cfg.Executable = exe
	if err := ValidateRequired(EnginePrerequisites(cfg)); err != nil {
		t.Errorf("expected no error with engine and models present, got %v", err)
	}

	cfg.ModelsPath = "missing-models"
	err := ValidateRequired(EnginePrerequisites(cfg))
	if err == nil {
		t.Fatal("expected error for missing required models dir")
	}
	if !strings.Contains(err.Error(), "models") || !strings.Contains(err.Error(), "Fix: set models_path") {
		t.Errorf("error should name the prerequisite and the fix: %v", err)
	}
}

func TestValidateRequired_OptionalMissing(t *testing.T) {
	prereqs := []Prerequisite{
		{Name: "this-command-does-not-exist-12345", Kind: KindCommand, Required: false},
	}
	if err := ValidateRequired(prereqs); err != nil {
		t.Errorf("optional prerequisites should not fail validation: %v", err)
	}
}

func TestFormatCheckResults(t *testing.T) {
	results := []CheckResult{
		{Prerequisite: Prerequisite{Name: "engine", Required: true}, Found: true, Path: "/opt/ocr/PaddleOCR-json"},
		{Prerequisite: Prerequisite{Name: "models", Required: true}, Found: false},
		{Prerequisite: Prerequisite{Name: "pgrep", Required: false}, Found: false},
	}

	out := FormatCheckResults(results)

	for _, want := range []string{
		"Prerequisites:",
		"✓ engine (/opt/ocr/PaddleOCR-json)",
		"✗ models [REQUIRED]",
		"○ pgrep [optional]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
