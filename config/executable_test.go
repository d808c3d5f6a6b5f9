package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSameExecutable(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "PaddleOCR-json")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "engine")
	if err := os.Symlink(exe, link); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(dir, "other")
	if err := os.WriteFile(other, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "identical strings skip stat", a: "/no/such/engine", b: "/no/such/engine", want: true},
		{name: "symlink", a: exe, b: link, want: true},
		{name: "dot segments", a: exe, b: filepath.Join(dir, ".", "PaddleOCR-json"), want: true},
		{name: "different files", a: exe, b: other, want: false},
		{name: "one missing", a: exe, b: filepath.Join(dir, "missing"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameExecutable(tt.a, tt.b); got != tt.want {
				t.Errorf("SameExecutable(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
