package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxFrameBytes = 4 << 20

// SetStreamHeaders prepares a response for server push.
func SetStreamHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// WriteFrame writes one event as `data: <json>\n\n`.
func WriteFrame(w io.Writer, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	_, err = w.Write(buf)
	return err
}

// WriteComment writes an SSE comment line, ignored by decoders.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", strings.ReplaceAll(text, "\n", " "))
	return err
}

// Decoder reads events from an SSE body. Bare newline-delimited JSON lines are accepted too.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder constructs a Decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	return &Decoder{scanner: scanner}
}

// Next returns the next event. It returns io.EOF at a clean end of stream. Errors
// wrapping ErrUnknownType describe a skipped frame; callers may keep reading.
func (d *Decoder) Next() (Event, error) {
	var data bytes.Buffer
	for d.scanner.Scan() {
		line := d.scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			return decodeFrame(data.Bytes())
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "{") && data.Len() == 0:
			return decodeFrame([]byte(line))
		default:
			// event:, id:, retry: fields carry nothing this protocol uses.
		}
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	if data.Len() > 0 {
		return decodeFrame(data.Bytes())
	}
	return Event{}, io.EOF
}

func decodeFrame(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		if errors.Is(err, ErrUnknownType) {
			return Event{}, err
		}
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}
	return ev, nil
}
