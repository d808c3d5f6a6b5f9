// Package textblock arranges recognized text blocks for reading. A Parser
// orders the detections of a response and sets the separator each block
// contributes to protocol.Response.Text.
package textblock

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/zhubert/ocrpipe/protocol"
)

// Parser names, as accepted by ByName.
const (
	NameNone       = "none"
	NameSingleLine = "single_line"
	NameMultiPara  = "multi_para"
)

const (
	// rowTolerance is how far apart two block tops may be and still sit on
	// the same row.
	rowTolerance = 20
	// paragraphGap is the vertical gap that starts a new paragraph.
	paragraphGap = 30
)

// Parser rearranges detections. Run returns a new slice and leaves its input
// untouched.
type Parser interface {
	Name() string
	Run(dets []protocol.Detection) []protocol.Detection
}

// ByName returns the parser registered under name.
func ByName(name string) (Parser, error) {
	switch name {
	case NameNone, "":
		return ParserNone{}, nil
	case NameSingleLine:
		return ParserSingleLine{}, nil
	case NameMultiPara:
		return ParserMultiPara{}, nil
	}
	return nil, fmt.Errorf("unknown text parser %q (want %s, %s or %s)", name, NameNone, NameSingleLine, NameMultiPara)
}

// Apply replaces resp's detections with p's arrangement of them.
func Apply(p Parser, resp *protocol.Response) {
	if resp == nil || len(resp.Data) == 0 {
		return
	}
	resp.Data = p.Run(resp.Data)
}

// ParserNone keeps the engine's order and ends every block that has no
// separator yet with a newline.
type ParserNone struct{}

func (ParserNone) Name() string { return NameNone }

func (ParserNone) Run(dets []protocol.Detection) []protocol.Detection {
	out := slices.Clone(dets)
	for i := range out {
		if out[i].End == "" {
			out[i].End = "\n"
		}
	}
	return out
}

// ParserSingleLine reads a single column top to bottom, one block per line.
type ParserSingleLine struct{}

func (ParserSingleLine) Name() string { return NameSingleLine }

func (ParserSingleLine) Run(dets []protocol.Detection) []protocol.Detection {
	out := slices.Clone(dets)
	slices.SortStableFunc(out, func(a, b protocol.Detection) int {
		return cmp.Compare(top(a), top(b))
	})
	for i := range out {
		out[i].End = "\n"
	}
	return out
}

// ParserMultiPara reads rows left to right, top to bottom. Blocks on one row
// are joined by a space and a large vertical gap starts a new paragraph.
type ParserMultiPara struct{}

func (ParserMultiPara) Name() string { return NameMultiPara }

func (ParserMultiPara) Run(dets []protocol.Detection) []protocol.Detection {
	if len(dets) == 0 {
		return nil
	}

	out := slices.Clone(dets)
	slices.SortStableFunc(out, func(a, b protocol.Detection) int {
		return cmp.Compare(top(a), top(b))
	})

	// Group into rows anchored at the first block's top, then order each row.
	for start := 0; start < len(out); {
		end := start + 1
		for end < len(out) && top(out[end])-top(out[start]) < rowTolerance {
			end++
		}
		slices.SortStableFunc(out[start:end], func(a, b protocol.Detection) int {
			return cmp.Compare(a.Box[0].X, b.Box[0].X)
		})
		start = end
	}

	for i := range len(out) - 1 {
		if top(out[i+1])-bottom(out[i]) > paragraphGap {
			out[i].End = "\n\n"
		} else {
			out[i].End = " "
		}
	}
	out[len(out)-1].End = "\n"
	return out
}

func top(d protocol.Detection) int    { return d.Box[0].Y }
func bottom(d protocol.Detection) int { return d.Box[2].Y }
