package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// LimitType controls how LimitSideLen is applied when the worker resizes.
type LimitType string

const (
	LimitMax LimitType = "max" // longest side is shrunk to LimitSideLen
	LimitMin LimitType = "min" // shortest side is grown to LimitSideLen
)

// Arg is one OCR request as written to the worker's stdin.
// Exactly one of ImagePath and ImageBase64 must be set.
type Arg struct {
	ImagePath    string    `json:"image_path,omitempty"`
	ImageBase64  string    `json:"image_base64,omitempty"`
	LimitSideLen int       `json:"limit_side_len,omitempty"`
	LimitType    LimitType `json:"limit_type,omitempty"`
	Visualize    bool      `json:"visualize,omitempty"`
	Output       string    `json:"output,omitempty"`
}

// PathArg returns an Arg that recognizes the image at path.
func PathArg(path string) Arg {
	return Arg{ImagePath: path}
}

// ClipboardPath is the image path that makes the engine read the system
// clipboard instead of a file. Failures are reported with the 21x codes.
const ClipboardPath = "clipboard"

// ClipboardArg returns an Arg that recognizes the clipboard content.
func ClipboardArg() Arg {
	return Arg{ImagePath: ClipboardPath}
}

// IsClipboard reports whether the Arg reads the clipboard.
func (a Arg) IsClipboard() bool {
	return a.ImagePath == ClipboardPath && a.ImageBase64 == ""
}

// Base64Arg returns an Arg carrying an already encoded image.
func Base64Arg(b64 string) Arg {
	return Arg{ImageBase64: b64}
}

// BytesArg returns an Arg carrying raw image bytes, base64 encoded.
func BytesArg(image []byte) Arg {
	return Arg{ImageBase64: base64.StdEncoding.EncodeToString(image)}
}

var (
	ErrNoImage        = errors.New("request has no image source")
	ErrAmbiguousImage = errors.New("request has both image_path and image_base64")
)

// Validate checks the Arg before it is queued.
func (a Arg) Validate() error {
	switch {
	case a.ImagePath == "" && a.ImageBase64 == "":
		return ErrNoImage
	case a.ImagePath != "" && a.ImageBase64 != "":
		return ErrAmbiguousImage
	}
	if a.LimitSideLen < 0 {
		return fmt.Errorf("limit_side_len must not be negative, got %d", a.LimitSideLen)
	}
	switch a.LimitType {
	case "", LimitMax, LimitMin:
	default:
		return fmt.Errorf("limit_type must be %q or %q, got %q", LimitMax, LimitMin, a.LimitType)
	}
	return nil
}

// Encode validates the Arg and renders it as a single request line,
// without the trailing newline.
func (a Arg) Encode() (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	return string(b), nil
}
