package trace

import (
	"strconv"
	"sync"
	"time"
)

// Heartbeat emits a driver event every interval, so a stalled translation
// shows up as heartbeats with no span ends between them.
type Heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartHeartbeat returns nil when tracing is off or interval is not
// positive. Stop on nil is a no-op.
func StartHeartbeat(t Tracer, interval time.Duration) *Heartbeat {
	if !enabled(t) || interval <= 0 {
		return nil
	}
	h := &Heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(h.done)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for n := 1; ; n++ {
			select {
			case <-tick.C:
				t.Emit(&Event{Kind: KindHeartbeat, Scope: ScopeDriver, Name: "heartbeat", Detail: strconv.Itoa(n)})
			case <-h.stop:
				return
			}
		}
	}()
	return h
}

// Stop ends the ticker goroutine and waits for it.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
