// Package workspace holds the per-unit bookkeeping the restructuring pass
// and the emitter consult: file-scope declarations, the set of device
// functions, and the barrier call sites of each chain.
package workspace

import (
	"github.com/blockspacer/spmdfy/internal/chain"
	"github.com/blockspacer/spmdfy/internal/cuast"
)

// DefaultBarriers is the barrier callee set used when none is configured.
var DefaultBarriers = []string{"__syncthreads"}

// Workspace is read-only once built and may be shared by kernel workers.
type Workspace struct {
	Globals         []*cuast.VarDecl
	Structs         []*cuast.RecordDecl
	DeviceFunctions map[string]bool
	Sync            *Collector
}

// New scans the file-scope declarations of src.
func New(src *cuast.Unit, barriers []string) *Workspace {
	w := &Workspace{
		DeviceFunctions: make(map[string]bool),
		Sync:            NewCollector(barriers...),
	}
	if src == nil {
		return w
	}
	for _, d := range src.Decls {
		switch d.Kind {
		case cuast.DeclVar:
			if d.Var != nil {
				w.Globals = append(w.Globals, d.Var)
			}
		case cuast.DeclRecord:
			if d.Record != nil && d.Record.Complete {
				w.Structs = append(w.Structs, d.Record)
			}
		case cuast.DeclFunc:
			if d.Func != nil && d.Func.Kind == cuast.FuncDevice {
				w.DeviceFunctions[d.Func.Name] = true
			}
		}
	}
	return w
}

// Collector finds barrier call sites.
type Collector struct {
	barriers map[string]bool
}

// NewCollector returns a collector for the given callee names, or for
// DefaultBarriers when names is empty.
func NewCollector(names ...string) *Collector {
	if len(names) == 0 {
		names = DefaultBarriers
	}
	c := &Collector{barriers: make(map[string]bool, len(names))}
	for _, n := range names {
		if n != "" {
			c.barriers[n] = true
		}
	}
	return c
}

// IsBarrier reports whether n is an Internal node wrapping a call to a
// barrier.
func (c *Collector) IsBarrier(n *chain.Node) bool {
	if n == nil || n.Kind != chain.KindInternal || n.Expr == nil {
		return false
	}
	e := n.Expr
	for e != nil && (e.Kind == cuast.ExprParen || e.Kind == cuast.ExprImplicitCast) && len(e.Args) == 1 {
		e = e.Args[0]
	}
	return e != nil && e.Kind == cuast.ExprCall && c.barriers[e.Callee]
}

// Collect returns the barrier sites of ch in chain order.
func (c *Collector) Collect(ch *chain.Chain) (*Queue, error) {
	q := &Queue{}
	err := ch.Walk(func(id chain.NodeID, n *chain.Node) bool {
		if c.IsBarrier(n) {
			q.sites = append(q.sites, id)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Queue is an ordered list of barrier sites consumed front to back.
type Queue struct {
	sites []chain.NodeID
	pos   int
}

// NewQueue builds a queue over explicit sites.
func NewQueue(sites ...chain.NodeID) *Queue {
	return &Queue{sites: append([]chain.NodeID(nil), sites...)}
}

// Next pops the front site.
func (q *Queue) Next() (chain.NodeID, bool) {
	if q == nil || q.pos >= len(q.sites) {
		return chain.NoNodeID, false
	}
	id := q.sites[q.pos]
	q.pos++
	return id, true
}

// Len returns the number of sites not yet consumed.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.sites) - q.pos
}

// Total returns the number of sites the queue was built with.
func (q *Queue) Total() int {
	if q == nil {
		return 0
	}
	return len(q.sites)
}
