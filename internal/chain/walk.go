package chain

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/blockspacer/spmdfy/internal/source"
)

// Visitor is called for each node on a walk; returning false stops it.
type Visitor func(id NodeID, n *Node) bool

// Walk visits nodes from the entry to ScopeExit inclusive. It returns
// ErrBrokenChain when a successor is missing before ScopeExit or the walk
// exceeds the arena size.
func (c *Chain) Walk(visit Visitor) error {
	return c.walk(c.entry, visit, true)
}

// WalkBackward visits nodes from ScopeExit to the entry inclusive.
func (c *Chain) WalkBackward(visit Visitor) error {
	return c.walk(c.exit, visit, false)
}

func (c *Chain) walk(start NodeID, visit Visitor, forward bool) error {
	op := "walk"
	if !forward {
		op = "walk backward"
	}
	cur := start
	for steps := 0; ; steps++ {
		n := c.Node(cur)
		if n == nil {
			return nodeErr(op, cur, KindInvalid, ErrBrokenChain)
		}
		if steps > len(c.nodes) {
			return nodeErr(op, cur, n.Kind, fmt.Errorf("%w: cycle", ErrBrokenChain))
		}
		if !visit(cur, n) {
			return nil
		}
		var next NodeID
		var err error
		if forward {
			if n.Kind == KindScopeExit {
				return nil
			}
			next, err = n.Successor()
		} else {
			if n.Kind.IsEntry() {
				return nil
			}
			next, err = n.Predecessor()
		}
		if err != nil {
			return nodeErr(op, cur, n.Kind, err)
		}
		if next == NoNodeID {
			return nodeErr(op, cur, n.Kind, ErrBrokenChain)
		}
		cur = next
	}
}

// Validate checks the chain invariants and returns every violation joined:
// both walks terminate, they visit the same nodes in mirrored order, every
// edge on the path is complete and symmetric, no detached or orphaned node
// remains reachable, and region heads pair with their Reconverge markers.
func (c *Chain) Validate() error {
	var errs []error

	var forward []NodeID
	if err := c.Walk(func(id NodeID, _ *Node) bool {
		forward = append(forward, id)
		return true
	}); err != nil {
		errs = append(errs, err)
	}
	var backward []NodeID
	if err := c.WalkBackward(func(id NodeID, _ *Node) bool {
		backward = append(backward, id)
		return true
	}); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if len(forward) != len(backward) {
		errs = append(errs, fmt.Errorf("path asymmetry: %d nodes forward, %d backward", len(forward), len(backward)))
	} else {
		for i, id := range forward {
			if back := backward[len(backward)-1-i]; back != id {
				errs = append(errs, fmt.Errorf("path asymmetry at step %d: forward node %d, backward node %d", i, id, back))
				break
			}
		}
	}

	onPath := make(map[NodeID]bool, len(forward))
	for i, id := range forward {
		onPath[id] = true
		n := c.Node(id)
		if n.detached {
			errs = append(errs, nodeErr("validate", id, n.Kind, errors.New("removed node is reachable")))
		}
		if n.Kind.HasSuccessor() && n.Next.Kind != EdgeComplete {
			errs = append(errs, nodeErr("validate", id, n.Kind, errors.New("partial successor edge")))
		}
		if n.Kind.HasPredecessor() && n.Prev.Kind != EdgeComplete {
			errs = append(errs, nodeErr("validate", id, n.Kind, errors.New("partial predecessor edge")))
		}
		if i > 0 && n.Prev.Target != forward[i-1] {
			errs = append(errs, nodeErr("validate", id, n.Kind,
				fmt.Errorf("predecessor is %d, expected %d", n.Prev.Target, forward[i-1])))
		}
		if (n.Kind.IsEntry() || n.Kind == KindScopeExit) && i != 0 && i != len(forward)-1 {
			errs = append(errs, nodeErr("validate", id, n.Kind, errors.New("terminal node inside the path")))
		}
	}

	for i := range c.nodes {
		id := NodeID(i + 1) //nolint:gosec // bounded by arena size
		n := &c.nodes[i]
		if !n.detached && !onPath[id] {
			errs = append(errs, nodeErr("validate", id, n.Kind, errors.New("node is not on the entry-exit path")))
		}
		if n.detached || !onPath[id] {
			continue
		}
		switch n.Kind {
		case KindBranch, KindLoop:
			r := c.Node(n.Partner)
			if r == nil || r.Kind != KindReconverge || r.Partner != id || !onPath[n.Partner] {
				errs = append(errs, nodeErr("validate", id, n.Kind, errors.New("region head without matching Reconverge")))
			}
		case KindReconverge:
			h := c.Node(n.Partner)
			if h == nil || !h.Kind.IsRegionHead() || h.Partner != id {
				errs = append(errs, nodeErr("validate", id, n.Kind, errors.New("Reconverge without matching head")))
			}
		case KindElse:
			h := c.Node(n.Partner)
			if h == nil || h.Kind != KindBranch {
				errs = append(errs, nodeErr("validate", id, n.Kind, errors.New("Else without Branch")))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("chain %s: %w", c.Name, errors.Join(errs...))
}

// Dump writes one line per node in path order, indented by region depth.
// text resolves source spans and may be nil.
func (c *Chain) Dump(w io.Writer, text func(source.Span) string) error {
	depth := 0
	var werr error
	err := c.Walk(func(id NodeID, n *Node) bool {
		switch n.Kind {
		case KindReconverge, KindGridScopeClose, KindBlockScopeClose, KindScopeExit:
			depth = max(depth-1, 0)
		}
		indent := depth
		if n.Kind == KindElse {
			indent = max(depth-1, 0)
		}
		line := fmt.Sprintf("%4d %s%s", id, strings.Repeat("  ", indent), n.Kind)
		if d := n.describe(text); d != "" {
			line += "  " + d
		}
		if _, werr = fmt.Fprintln(w, line); werr != nil {
			return false
		}
		switch n.Kind {
		case KindKernelEntry, KindDeviceFunctionEntry, KindBranch, KindLoop, KindGridScopeOpen, KindBlockScopeOpen:
			depth++
		}
		return true
	})
	if werr != nil {
		return werr
	}
	return err
}

func (n *Node) describe(text func(source.Span) string) string {
	switch {
	case n.Func != nil:
		return n.Func.Name
	case n.Var != nil:
		return n.Var.Name
	case n.Record != nil:
		return n.Record.Name
	case n.Header != "":
		return n.Header
	}
	if text == nil {
		return ""
	}
	s := strings.Join(strings.Fields(text(n.Span)), " ")
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}
