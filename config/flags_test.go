package config

import (
	"slices"
	"testing"
)

func TestFormatFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags map[string]any
		want  []string
	}{
		{name: "empty", flags: nil, want: []string{}},
		{name: "bool uses equals form", flags: map[string]any{"ensure_ascii": false}, want: []string{"--ensure_ascii=false"}},
		{name: "string", flags: map[string]any{"config_path": "models/config_en.txt"}, want: []string{"--config_path", "models/config_en.txt"}},
		{name: "int", flags: map[string]any{"cpu_threads": 4}, want: []string{"--cpu_threads", "4"}},
		{name: "float", flags: map[string]any{"cls_thresh": 0.9}, want: []string{"--cls_thresh", "0.9"}},
		{name: "null", flags: map[string]any{"benchmark": nil}, want: []string{"--benchmark"}},
		{
			name:  "sorted",
			flags: map[string]any{"use_gpu": true, "addr": "any", "port": 0},
			want:  []string{"--addr", "any", "--port", "0", "--use_gpu=true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatFlags(tt.flags); !slices.Equal(got, tt.want) {
				t.Errorf("FormatFlags() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   map[string]any
		wantErr bool
	}{
		{name: "unknown flags pass", flags: map[string]any{"rec_img_h": 48}},
		{name: "valid enum", flags: map[string]any{"limit_type": "max", "precision": "fp16"}},
		{name: "invalid enum", flags: map[string]any{"det_db_score_mode": "medium"}, wantErr: true},
		{name: "enum not a string", flags: map[string]any{"type": 1}, wantErr: true},
		{name: "port zero", flags: map[string]any{"port": 0}},
		{name: "port negative", flags: map[string]any{"port": -1}, wantErr: true},
		{name: "port string", flags: map[string]any{"port": "8080"}, wantErr: true},
		{name: "empty name", flags: map[string]any{"": true}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(tt.flags)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
