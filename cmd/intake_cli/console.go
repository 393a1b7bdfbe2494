package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"voice-match/internal/voice"
)

var errInputClosed = errors.New("input closed")

// lineReader lee stdin en una goroutine para que las lecturas puedan respetar el contexto.
type lineReader struct {
	lines  chan string
	closed atomic.Bool
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{lines: make(chan string)}
	go func() {
		defer func() {
			lr.closed.Store(true)
			close(lr.lines)
		}()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lr.lines <- scanner.Text()
		}
	}()
	return lr
}

func (lr *lineReader) Closed() bool {
	return lr.closed.Load()
}

func (lr *lineReader) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lr.lines:
		if !ok {
			return "", errInputClosed
		}
		return strings.TrimSpace(line), nil
	}
}

// consoleCapability simula el servicio de voz: la "grabacion" es la proxima linea tipeada.
type consoleCapability struct {
	input *lineReader
	out   io.Writer

	mu     sync.Mutex
	active string
}

var _ voice.Recorder = (*consoleCapability)(nil)

func (c *consoleCapability) IsAvailable(ctx context.Context) bool {
	return true
}

func (c *consoleCapability) StartRecording(ctx context.Context, params voice.RecordingParams) error {
	c.mu.Lock()
	c.active = params.RecordingID
	c.mu.Unlock()
	fmt.Fprintf(c.out, "[grabando, %ds] > ", params.TimeoutMs/1000)
	return nil
}

func (c *consoleCapability) StopRecording(ctx context.Context, recordingID string) (string, error) {
	c.mu.Lock()
	active := c.active
	c.active = ""
	c.mu.Unlock()
	if active != recordingID {
		return "", nil
	}

	line, err := c.input.ReadLine(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fmt.Fprintln(c.out, "\n(tiempo agotado)")
		}
		return "", err
	}
	return line, nil
}
