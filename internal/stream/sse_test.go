package stream

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestScannerReadsDataEvents(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		": keep-alive\n" +
			"event: message\n" +
			"data: {\"a\":1}\n" +
			"\n" +
			"data: {\"b\":2}\n" +
			"\n" +
			"data: [DONE]\n" +
			"\n",
	))
	s := NewScanner(body)

	first, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(first) != `{"a":1}` {
		t.Errorf("first payload = %q", first)
	}

	second, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(second) != `{"b":2}` {
		t.Errorf("second payload = %q", second)
	}

	if _, err := s.Next(); err != io.EOF {
		t.Errorf("after [DONE]: err = %v, want io.EOF", err)
	}
}

func TestScannerEOFWithoutSentinel(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: {\"a\":1}\n\n"))
	s := NewScanner(body)

	if _, err := s.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestWriterFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	if err := w.Event(map[string]int{"n": 1}); err != nil {
		t.Fatalf("Event: %v", err)
	}
	if err := w.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	want := "data: {\"n\":1}\n\ndata: [DONE]\n\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}
