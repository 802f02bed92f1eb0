package trace_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blockspacer/spmdfy/internal/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid json %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestLevelAdmits(t *testing.T) {
	cases := []struct {
		level trace.Level
		scope trace.Scope
		want  bool
	}{
		{trace.LevelOff, trace.ScopeDriver, false},
		{trace.LevelPhase, trace.ScopePass, true},
		{trace.LevelPhase, trace.ScopeKernel, false},
		{trace.LevelDetail, trace.ScopeKernel, true},
		{trace.LevelDetail, trace.ScopeNode, false},
		{trace.LevelDebug, trace.ScopeNode, true},
	}
	for _, c := range cases {
		if got := c.level.Admits(c.scope); got != c.want {
			t.Errorf("%s admits %s = %v, want %v", c.level, c.scope, got, c.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"off", "phase", "DETAIL", "debug"} {
		l, err := trace.ParseLevel(name)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", name, err)
		}
		if l.String() != strings.ToLower(name) {
			t.Errorf("round trip of %q gave %q", name, l)
		}
	}
	if _, err := trace.ParseLevel("error"); err == nil {
		t.Error("ParseLevel accepted an unknown level")
	}
}

func TestLevelFiltersScopes(t *testing.T) {
	var buf bytes.Buffer
	tr := trace.NewStreamTracer(&buf, trace.LevelPhase, trace.FormatText)

	trace.Begin(tr, trace.ScopePass, "fission", 0).End("")
	trace.Begin(tr, trace.ScopeKernel, "kernel saxpy", 0).End("")
	trace.Point(tr, trace.ScopeNode, "insert", "Internal", 0)

	out := buf.String()
	if !strings.Contains(out, "000001 pass   begin     fission\n") {
		t.Fatalf("pass span missing:\n%s", out)
	}
	if strings.Contains(out, "saxpy") || strings.Contains(out, "insert") {
		t.Fatalf("finer scopes must be filtered at phase level:\n%s", out)
	}
}

func TestStartPropagatesParent(t *testing.T) {
	var buf bytes.Buffer
	ctx := trace.WithTracer(context.Background(), trace.NewStreamTracer(&buf, trace.LevelDebug, trace.FormatNDJSON))

	ctx, outer := trace.Start(ctx, trace.ScopePass, "linearize")
	if trace.CurrentSpan(ctx) != outer.ID() {
		t.Fatalf("context span = %d, want %d", trace.CurrentSpan(ctx), outer.ID())
	}
	_, inner := trace.Start(ctx, trace.ScopeKernel, "kernel k")
	inner.WithExtra("nodes", "7").End("")
	outer.End("ok")

	recs := decode(t, &buf)
	if len(recs) != 4 {
		t.Fatalf("got %d events, want 4", len(recs))
	}
	if recs[1]["parent"] != float64(outer.ID()) {
		t.Errorf("inner parent = %v, want %d", recs[1]["parent"], outer.ID())
	}
	extra, _ := recs[2]["extra"].(map[string]any)
	if extra["nodes"] != "7" {
		t.Errorf("inner end extra = %v", recs[2]["extra"])
	}
	if recs[3]["kind"] != "end" || recs[3]["detail"] != "ok" || recs[3]["seq"] != float64(4) {
		t.Errorf("unexpected record %v", recs[3])
	}
}

func TestDisabledSpansAreInert(t *testing.T) {
	ctx, s := trace.Start(context.Background(), trace.ScopeDriver, "translate")
	if s.ID() != 0 || trace.CurrentSpan(ctx) != 0 {
		t.Fatal("spans of the nop tracer must not be recorded")
	}
	if d := s.WithExtra("k", "v").End(""); d != 0 {
		t.Fatalf("inert span reported %v", d)
	}
	if trace.FromContext(context.Background()).Level() != trace.LevelOff {
		t.Fatal("default tracer must be off")
	}
}

func TestNewPicksFormatFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.ndjson")
	tr, err := trace.New(trace.Config{Level: trace.LevelPhase, OutputPath: path})
	if err != nil {
		t.Fatal(err)
	}
	trace.Begin(tr, trace.ScopeDriver, "translate", 0).End("")
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	recs := decode(t, bytes.NewBuffer(data))
	if len(recs) != 2 || recs[0]["name"] != "translate" {
		t.Fatalf("unexpected trace file:\n%s", data)
	}

	off, err := trace.New(trace.Config{Level: trace.LevelOff, OutputPath: path})
	if err != nil || off != trace.Nop {
		t.Fatalf("off level must yield Nop, got %v, %v", off, err)
	}
}

type chanTracer chan *trace.Event

func (c chanTracer) Emit(ev *trace.Event) {
	select {
	case c <- ev:
	default:
	}
}
func (chanTracer) Level() trace.Level { return trace.LevelPhase }
func (chanTracer) Close() error       { return nil }

func TestHeartbeat(t *testing.T) {
	if trace.StartHeartbeat(trace.Nop, time.Millisecond) != nil {
		t.Fatal("heartbeat must not start for a disabled tracer")
	}
	events := make(chanTracer, 4)
	h := trace.StartHeartbeat(events, time.Millisecond)
	select {
	case ev := <-events:
		if ev.Kind != trace.KindHeartbeat || ev.Detail != "1" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no heartbeat")
	}
	h.Stop()
	h.Stop()
	var none *trace.Heartbeat
	none.Stop()
}
