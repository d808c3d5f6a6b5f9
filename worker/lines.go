package worker

import (
	"bufio"
	"io"
	"strings"
)

// readerBufferSize is the initial read buffer. Lines longer than this are
// still delivered whole; bufio grows the result as needed.
const readerBufferSize = 64 * 1024

// ForEachLine reads r until EOF and calls fn for every complete line, with
// the trailing "\n" or "\r\n" removed. A final fragment without a newline is
// delivered as a line too. Returns nil on EOF.
func ForEachLine(r io.Reader, fn func(line string)) error {
	reader := bufio.NewReaderSize(r, readerBufferSize)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			fn(line)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// SplitLines forwards every line of r to out in arrival order and closes out
// when r is exhausted.
func SplitLines(r io.Reader, out chan<- string) error {
	defer close(out)
	return ForEachLine(r, func(line string) {
		out <- line
	})
}
