package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Point is one integer vertex of a detection box. It encodes as [x, y].
type Point struct {
	X, Y int
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var xy []int
	if err := json.Unmarshal(data, &xy); err != nil {
		return err
	}
	if len(xy) != 2 {
		return fmt.Errorf("point has %d coordinates, want 2", len(xy))
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// Detection is one recognized text region.
type Detection struct {
	Box   [4]Point `json:"box"`   // quadrilateral, clockwise from top-left
	Score float64  `json:"score"` // confidence in [0, 1]
	Text  string   `json:"text"`
	End   string   `json:"end,omitempty"` // separator after this block, set by text post-processing
}

// Response is one decoded worker reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    []Detection `json:"data"` // nil on failure, empty for CodeOKNone
}

// OK reports whether the worker processed the request successfully.
func (r *Response) OK() bool {
	return IsSuccess(r.Code)
}

// Err returns a *StatusError for failure codes and nil for success.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{Code: r.Code, Message: r.Message}
}

// Text joins the recognized text of all detections. Each block is followed by
// its End separator, or a newline when none was set.
func (r *Response) Text() string {
	var sb strings.Builder
	for i, d := range r.Data {
		sb.WriteString(d.Text)
		if d.End != "" {
			sb.WriteString(d.End)
		} else if i < len(r.Data)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// StatusError is a failure reported by the worker itself.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = CodeText(e.Code)
	}
	return fmt.Sprintf("ocr worker returned code %d: %s", e.Code, msg)
}

// ParseError is returned when a worker line does not decode as a response.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed worker response %q: %v", truncate(e.Line, 120), e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errMissingCode = errors.New(`missing "code" field`)

// rawResponse mirrors the wire shape before validation.
type rawResponse struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type rawDetection struct {
	Box   [][]int `json:"box"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
	End   string  `json:"end"`
}

// ParseResponse decodes one worker output line.
//
// The engine reports failures as {"code":N,"data":"<message>"}; a string data
// field is therefore taken as the message when no message field is present.
func ParseResponse(line string) (*Response, error) {
	var raw rawResponse
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, &ParseError{Line: line, Err: err}
	}
	if raw.Code == nil {
		return nil, &ParseError{Line: line, Err: errMissingCode}
	}

	resp := &Response{Code: *raw.Code, Message: raw.Message}

	data := bytes.TrimSpace(raw.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		if resp.Message == "" {
			resp.Message = s
		}
	case data[0] == '[':
		var dets []rawDetection
		if err := json.Unmarshal(data, &dets); err != nil {
			return nil, &ParseError{Line: line, Err: fmt.Errorf("data: %w", err)}
		}
		resp.Data = make([]Detection, 0, len(dets))
		for i, d := range dets {
			det, err := d.toDetection()
			if err != nil {
				return nil, &ParseError{Line: line, Err: fmt.Errorf("data[%d]: %w", i, err)}
			}
			resp.Data = append(resp.Data, det)
		}
	default:
		return nil, &ParseError{Line: line, Err: fmt.Errorf("data must be null, a list or a string")}
	}

	switch {
	case resp.Code == CodeOKNone:
		if resp.Data == nil {
			resp.Data = []Detection{}
		}
	case !resp.OK():
		resp.Data = nil
	}
	return resp, nil
}

func (d rawDetection) toDetection() (Detection, error) {
	if len(d.Box) != 4 {
		return Detection{}, fmt.Errorf("box has %d points, want 4", len(d.Box))
	}
	det := Detection{Score: d.Score, Text: d.Text, End: d.End}
	for i, pt := range d.Box {
		if len(pt) != 2 {
			return Detection{}, fmt.Errorf("box point %d has %d coordinates, want 2", i, len(pt))
		}
		det.Box[i] = Point{X: pt[0], Y: pt[1]}
	}
	return det, nil
}
