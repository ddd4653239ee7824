// Package stream normalizes provider-native delta streams into canonical
// OpenAI-shaped chunks and handles the SSE wire format on both sides.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// doneSentinel is the literal terminating event of an OpenAI-style SSE stream.
const doneSentinel = "[DONE]"

// Scanner reads "data:" events from an upstream SSE body. It skips blank
// lines and non-data fields and reports the [DONE] sentinel as io.EOF, so
// adapters only ever see JSON payloads.
type Scanner struct {
	scanner *bufio.Scanner
	body    io.Closer
}

// NewScanner wraps an upstream SSE response body.
func NewScanner(body io.ReadCloser) *Scanner {
	sc := bufio.NewScanner(body)
	// Upstream events can exceed the default 64KB token limit.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Scanner{scanner: sc, body: body}
}

// Next returns the payload of the next data event. It returns io.EOF at
// end of stream or on the [DONE] sentinel.
func (s *Scanner) Next() ([]byte, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(line[len("data:"):])
		if len(payload) == 0 {
			continue
		}
		if string(payload) == doneSentinel {
			return nil, io.EOF
		}
		// Copy: the scanner reuses its buffer on the next Scan.
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close releases the underlying body.
func (s *Scanner) Close() error { return s.body.Close() }

// Writer emits SSE events to a client in the "data: <json>\n\n" format,
// flushing after every event.
type Writer struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewWriter prepares the response for SSE and returns a Writer. The
// returned flusher may be nil when the ResponseWriter does not support
// flushing (httptest recorders do).
func NewWriter(w http.ResponseWriter) *Writer {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	f, _ := w.(http.Flusher)
	return &Writer{w: w, f: f}
}

// Event marshals v and writes it as one data event.
func (w *Writer) Event(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.flush()
	return nil
}

// Done writes the [DONE] sentinel exactly once per stream; callers are
// responsible for calling it exactly once.
func (w *Writer) Done() error {
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", doneSentinel); err != nil {
		return err
	}
	w.flush()
	return nil
}

func (w *Writer) flush() {
	if w.f != nil {
		w.f.Flush()
	}
}
