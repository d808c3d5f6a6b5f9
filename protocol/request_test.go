package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func TestArg_Encode(t *testing.T) {
	tests := []struct {
		name string
		arg  Arg
		want string
	}{
		{
			name: "path only",
			arg:  PathArg("/test/image.jpg"),
			want: `{"image_path":"/test/image.jpg"}`,
		},
		{
			name: "base64 only",
			arg:  Base64Arg("aGVsbG8="),
			want: `{"image_base64":"aGVsbG8="}`,
		},
		{
			name: "clipboard",
			arg:  ClipboardArg(),
			want: `{"image_path":"clipboard"}`,
		},
		{
			name: "all tuning fields",
			arg: Arg{
				ImagePath:    "/test/image.jpg",
				LimitSideLen: 960,
				LimitType:    LimitMax,
				Visualize:    true,
				Output:       "./output",
			},
			want: `{"image_path":"/test/image.jpg","limit_side_len":960,"limit_type":"max","visualize":true,"output":"./output"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.arg.Encode()
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode = %s\nwant     %s", got, tt.want)
			}
		})
	}
}

func TestArg_EncodeIsSingleLine(t *testing.T) {
	line, err := PathArg("C:\\images\\multi\nline.png").Encode()
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range line {
		if r == '\n' {
			t.Fatalf("encoded request contains a raw newline: %q", line)
		}
	}
}

func TestArg_Validate(t *testing.T) {
	tests := []struct {
		name    string
		arg     Arg
		wantErr error
	}{
		{"no image", Arg{LimitSideLen: 10}, ErrNoImage},
		{"both images", Arg{ImagePath: "a", ImageBase64: "b"}, ErrAmbiguousImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.arg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
			if _, err := tt.arg.Encode(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Encode() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := (Arg{ImagePath: "a", LimitType: "both"}).Validate(); err == nil {
		t.Error("Validate should reject unknown limit_type")
	}
	if err := (Arg{ImagePath: "a", LimitSideLen: -1}).Validate(); err == nil {
		t.Error("Validate should reject negative limit_side_len")
	}
	if err := (Arg{ImagePath: "a", LimitType: LimitMin}).Validate(); err != nil {
		t.Errorf("Validate rejected limit_type min: %v", err)
	}
}

func TestBytesArg(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	arg := BytesArg(raw)

	line, err := arg.Encode()
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		ImageBase64 string `json:"image_base64"`
	}
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatal(err)
	}
	got, err := base64.StdEncoding.DecodeString(decoded.ImageBase64)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(raw) {
		t.Errorf("decoded bytes = %v, want %v", got, raw)
	}
}

func TestArg_IsClipboard(t *testing.T) {
	if !ClipboardArg().IsClipboard() {
		t.Error("ClipboardArg().IsClipboard() = false")
	}
	if PathArg("clipboard.png").IsClipboard() {
		t.Error("PathArg(clipboard.png).IsClipboard() = true")
	}
	if (Arg{ImagePath: ClipboardPath, ImageBase64: "eA=="}).IsClipboard() {
		t.Error("an Arg with base64 data must not read the clipboard")
	}
}
