package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const maxEventSize = 1 << 20

// eventReader reads the data payloads of Server-Sent Events.
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &eventReader{scanner: scanner}
}

// next returns the data of the next event. Multi-line data is joined with
// newlines. Returns io.EOF when the body ends.
func (r *eventReader) next() (string, error) {
	var dataBuf strings.Builder
	var hasData bool

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			// Empty line signals end of event.
			if hasData {
				return dataBuf.String(), nil
			}
			continue
		}

		if data, ok := strings.CutPrefix(line, "data:"); ok {
			if hasData {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(strings.TrimPrefix(data, " "))
			hasData = true
		}
		// Ignore comments (lines starting with ':') and other fields.
	}

	if err := r.scanner.Err(); err != nil {
		return "", fmt.Errorf("client: %w", err)
	}
	if hasData {
		return dataBuf.String(), nil
	}
	return "", io.EOF
}
