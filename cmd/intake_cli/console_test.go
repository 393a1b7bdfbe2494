package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"voice-match/internal/voice"
)

func TestConsoleCapabilityReadsNextLine(t *testing.T) {
	input := newLineReader(strings.NewReader("  I wake up early  \nsecond\n"))
	c := &consoleCapability{input: input, out: io.Discard}
	ctx := context.Background()

	if err := c.StartRecording(ctx, voice.RecordingParams{RecordingID: "r1", TimeoutMs: 30000}); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, err := c.StopRecording(ctx, "r1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got != "I wake up early" {
		t.Fatalf("expected trimmed line, got %q", got)
	}

	// un stop de otra grabacion no consume input
	got, err = c.StopRecording(ctx, "r1")
	if err != nil || got != "" {
		t.Fatalf("expected empty stop for inactive recording, got %q err=%v", got, err)
	}
	line, err := input.ReadLine(ctx)
	if err != nil || line != "second" {
		t.Fatalf("expected second line untouched, got %q err=%v", line, err)
	}
}

func TestLineReaderRespectsContextAndEOF(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	input := newLineReader(pr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := input.ReadLine(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	closed := newLineReader(strings.NewReader(""))
	if _, err := closed.ReadLine(context.Background()); !errors.Is(err, errInputClosed) {
		t.Fatalf("expected errInputClosed, got %v", err)
	}
	if !closed.Closed() {
		t.Fatalf("expected reader marked closed")
	}
}
