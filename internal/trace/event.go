package trace

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the type of a trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
	KindHeartbeat: "heartbeat",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event; lower values are coarser.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // command, file
	ScopePass                    // load, linearize, fission, emit
	ScopeKernel                  // one kernel or device function
	ScopeNode                    // one chain mutation
)

var scopeNames = [...]string{
	ScopeDriver: "driver",
	ScopePass:   "pass",
	ScopeKernel: "kernel",
	ScopeNode:   "node",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Level is the finest scope a tracer writes.
type Level uint8

const (
	LevelOff Level = iota
	LevelPhase
	LevelDetail
	LevelDebug
)

var levels = [...]struct {
	name   string
	finest Scope
}{
	LevelOff:    {"off", 0},
	LevelPhase:  {"phase", ScopePass},
	LevelDetail: {"detail", ScopeKernel},
	LevelDebug:  {"debug", ScopeNode},
}

func (l Level) String() string {
	if int(l) < len(levels) {
		return levels[l].name
	}
	return "unknown"
}

// Admits reports whether events of scope s are written at level l.
func (l Level) Admits(s Scope) bool {
	return int(l) < len(levels) && s <= levels[l].finest
}

// ParseLevel converts a flag value to a Level.
func ParseLevel(s string) (Level, error) {
	for l := range levels {
		if strings.EqualFold(s, levels[l].name) {
			return Level(l), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|phase|detail|debug)", s)
}

// Event is a single trace record.
type Event struct {
	Time     time.Time
	Seq      uint64 // assigned when written
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for roots
	Name     string // e.g. "fission", "kernel saxpy"
	Detail   string
	Extra    map[string]string
}
