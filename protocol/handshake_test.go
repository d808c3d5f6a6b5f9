package protocol

import (
	"errors"
	"testing"
)

func TestParseHandshake(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		want     Identity
		wantAddr bool
	}{
		{
			name:     "pid and address",
			line:     "pid=12345, a=127.0.0.1:8080",
			want:     Identity{PID: 12345, Address: "127.0.0.1", Port: 8080},
			wantAddr: true,
		},
		{
			name: "pid only",
			line: "pid=12345",
			want: Identity{PID: 12345},
		},
		{
			name:     "bracketed ipv6",
			line:     "pid=7, a=[::1]:9000",
			want:     Identity{PID: 7, Address: "::1", Port: 9000},
			wantAddr: true,
		},
		{
			name:     "no spaces and reordered",
			line:     "a=0.0.0.0:1224,pid=99",
			want:     Identity{PID: 99, Address: "0.0.0.0", Port: 1224},
			wantAddr: true,
		},
		{
			name: "unknown tokens ignored",
			line: "pid=5, mode=pipe, banner",
			want: Identity{PID: 5},
		},
		{
			name: "malformed address ignored",
			line: "pid=5, a=localhost",
			want: Identity{PID: 5},
		},
		{
			name: "non numeric port ignored",
			line: "pid=5, a=127.0.0.1:http",
			want: Identity{PID: 5},
		},
		{
			name: "trailing carriage whitespace",
			line: "pid=42 ",
			want: Identity{PID: 42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHandshake(tt.line)
			if err != nil {
				t.Fatalf("ParseHandshake(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("ParseHandshake(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
			if got.HasAddress() != tt.wantAddr {
				t.Errorf("HasAddress() = %v, want %v", got.HasAddress(), tt.wantAddr)
			}
		})
	}
}

func TestParseHandshake_Errors(t *testing.T) {
	for _, line := range []string{
		"garbage",
		"",
		"a=127.0.0.1:8080",
		"pid=abc",
		"pid=",
		"pid=-3",
		"pid=0, a=127.0.0.1:8080",
		"OCR init completed.",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := ParseHandshake(line)
			if err == nil {
				t.Fatalf("ParseHandshake(%q) expected error", line)
			}
			var hsErr *HandshakeError
			if !errors.As(err, &hsErr) {
				t.Fatalf("error type = %T, want *HandshakeError", err)
			}
			if hsErr.Line != line {
				t.Errorf("HandshakeError.Line = %q, want %q", hsErr.Line, line)
			}
		})
	}
}

func TestIdentity_HostPort(t *testing.T) {
	if got := (Identity{PID: 1}).HostPort(); got != "" {
		t.Errorf("HostPort without address = %q, want empty", got)
	}
	if got := (Identity{PID: 1, Address: "127.0.0.1", Port: 8080}).HostPort(); got != "127.0.0.1:8080" {
		t.Errorf("HostPort = %q, want 127.0.0.1:8080", got)
	}
	if got := (Identity{PID: 1, Address: "::1", Port: 9}).HostPort(); got != "[::1]:9" {
		t.Errorf("HostPort = %q, want [::1]:9", got)
	}
}
