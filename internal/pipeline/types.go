package pipeline

import "time"

// Stage describes one phase of translating a file.
type Stage string

const (
	// StageLoad reads the source and its clang AST.
	StageLoad Stage = "load"
	// StageLinearize builds one chain per function.
	StageLinearize Stage = "linearize"
	// StageFission restructures kernel chains around barriers.
	StageFission Stage = "fission"
	// StageEmit renders the target text.
	StageEmit Stage = "emit"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StageLoad, StageLinearize, StageFission, StageEmit}

// Status captures progress state within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
	// StatusCached marks a file served from the translation cache.
	StatusCached Status = "cached"
)

// Event reports progress for a file (or for the whole run when File is empty).
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Implementations must be safe for
// concurrent use; files are translated in parallel.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds stage durations of one file.
type Timings struct {
	stages map[Stage]time.Duration
}

func (t *Timings) ensure() {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] = dur
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	return t.stages[stage]
}

// Total sums every recorded stage.
func (t Timings) Total() time.Duration {
	var total time.Duration
	for _, d := range t.stages {
		total += d
	}
	return total
}
