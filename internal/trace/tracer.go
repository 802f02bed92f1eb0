package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Tracer receives trace events. Implementations are goroutine-safe.
type Tracer interface {
	Emit(ev *Event)
	Level() Level
	// Close flushes buffered output and releases it.
	Close() error
}

type nopTracer struct{}

func (nopTracer) Emit(*Event)  {}
func (nopTracer) Level() Level { return LevelOff }
func (nopTracer) Close() error { return nil }

// Nop discards every event.
var Nop Tracer = nopTracer{}

func enabled(t Tracer) bool { return t != nil && t.Level() > LevelOff }

// Config holds tracer configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer // takes precedence over OutputPath
	OutputPath string    // "-" or "" for stderr
}

// New builds a Tracer from cfg. FormatAuto picks NDJSON for .ndjson and
// .jsonl paths and text otherwise.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	format := cfg.Format
	if format == FormatAuto {
		format = FormatText
		if strings.HasSuffix(cfg.OutputPath, ".ndjson") || strings.HasSuffix(cfg.OutputPath, ".jsonl") {
			format = FormatNDJSON
		}
	}
	w := cfg.Output
	var closer io.Closer
	switch {
	case w != nil:
	case cfg.OutputPath == "" || cfg.OutputPath == "-":
		w = os.Stderr
	default:
		f, err := os.Create(cfg.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("open trace output: %w", err)
		}
		w, closer = f, f
	}
	return &StreamTracer{w: w, closer: closer, level: cfg.Level, format: format}, nil
}

// StreamTracer writes events to an io.Writer as they arrive.
type StreamTracer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer // set when the tracer opened the output itself
	level  Level
	format Format
	seq    uint64
}

func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	return &StreamTracer{w: w, level: level, format: format}
}

func (t *StreamTracer) Emit(ev *Event) {
	if ev.Kind != KindHeartbeat && !t.level.Admits(ev.Scope) {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	ev.Seq = t.seq
	// Trace output is best effort.
	_, _ = t.w.Write(encode(ev, t.format)) //nolint:errcheck
}

func (t *StreamTracer) Level() Level { return t.level }

func (t *StreamTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.closer = nil
	return err
}
