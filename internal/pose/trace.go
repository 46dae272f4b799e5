package pose

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// TraceDetector replays a recorded landmark trace instead of running pose
// inference. One trace line is returned per Detect call; the supplied image
// bytes are ignored. Used in dev mode and in tests, where real inference and
// a camera are unavailable.
type TraceDetector struct {
	mu     sync.Mutex
	frames []Frame
	index  int
	loop   bool
}

// NewTraceDetector parses a trace: one JSON-encoded Frame per line, blank
// lines and lines starting with '#' skipped. If loop is true the trace
// repeats from the start once exhausted; otherwise Detect returns an error at
// end of trace.
func NewTraceDetector(trace []byte, loop bool) (*TraceDetector, error) {
	var frames []Frame
	scan := bufio.NewScanner(bytes.NewReader(trace))
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scan.Scan() {
		line++
		text := bytes.TrimSpace(scan.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		var f Frame
		if err := json.Unmarshal(text, &f); err != nil {
			return nil, fmt.Errorf("trace line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan trace: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("trace contains no frames")
	}
	return &TraceDetector{frames: frames, loop: loop}, nil
}

// NewTraceDetectorFromFile loads a trace file from disk.
func NewTraceDetectorFromFile(path string, loop bool) (*TraceDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}
	return NewTraceDetector(data, loop)
}

// NewScriptedDetector wraps pre-built frames directly, for tests that
// construct landmark geometry in code.
func NewScriptedDetector(frames []Frame, loop bool) *TraceDetector {
	return &TraceDetector{frames: frames, loop: loop}
}

// Detect returns the next frame in the trace. Frame timestamps are rewritten
// to the current time so downstream elapsed-time logic behaves as it would
// with a live detector.
func (d *TraceDetector) Detect(_ []byte) (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index >= len(d.frames) {
		if !d.loop {
			return Frame{}, fmt.Errorf("trace exhausted after %d frames", len(d.frames))
		}
		d.index = 0
	}
	f := d.frames[d.index]
	d.index++
	f.Timestamp = time.Now()
	return f, nil
}

// Remaining reports how many frames are left before the trace wraps or ends.
func (d *TraceDetector) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames) - d.index
}
