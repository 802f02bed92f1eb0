package chain

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/source"
)

// Chain is the linearized body of one kernel or device function: a simple
// path from its entry node to a ScopeExit node. Nodes live in an arena and
// are addressed by NodeID.
type Chain struct {
	Name  string
	Func  *cuast.FuncDecl
	nodes []Node
	entry NodeID
	exit  NodeID
}

// New creates a chain for fn whose entry is pre-linked to a fresh ScopeExit.
// Kernels get a KernelEntry head, every other function a DeviceFunctionEntry.
func New(fn *cuast.FuncDecl) *Chain {
	entryKind := KindDeviceFunctionEntry
	name := ""
	if fn != nil {
		name = fn.Name
		if fn.Kind == cuast.FuncKernel {
			entryKind = KindKernelEntry
		}
	}
	c := &Chain{Name: name, Func: fn, nodes: make([]Node, 0, 32)}
	c.entry = c.NewNode(Node{Kind: entryKind, Func: fn, Span: funcSpan(fn)})
	c.exit = c.NewNode(Node{Kind: KindScopeExit})
	entry, exit := c.Node(c.entry), c.Node(c.exit)
	entry.Next = Edge{Target: c.exit, Kind: EdgeComplete}
	exit.Prev = Edge{Target: c.entry, Kind: EdgeComplete}
	return c
}

func funcSpan(fn *cuast.FuncDecl) (sp source.Span) {
	if fn != nil {
		sp = fn.Span
	}
	return sp
}

// IsKernel reports whether the chain is headed by a KernelEntry.
func (c *Chain) IsKernel() bool {
	return c.Node(c.entry).Kind == KindKernelEntry
}

// Entry returns the head node id.
func (c *Chain) Entry() NodeID { return c.entry }

// Exit returns the ScopeExit node id.
func (c *Chain) Exit() NodeID { return c.exit }

// NewNode allocates an unlinked node from proto. Edges in proto are ignored.
func (c *Chain) NewNode(proto Node) NodeID {
	proto.Next = Edge{}
	proto.Prev = Edge{}
	proto.detached = false
	c.nodes = append(c.nodes, proto)
	n, err := safecast.Conv[uint32](len(c.nodes))
	if err != nil {
		panic(fmt.Errorf("chain arena overflow: %w", err))
	}
	return NodeID(n)
}

// Node returns the node for id, or nil when id is out of range.
func (c *Chain) Node(id NodeID) *Node {
	if id == NoNodeID || int(id) > len(c.nodes) {
		return nil
	}
	return &c.nodes[id-1]
}

// Cap returns the number of nodes ever allocated, including removed ones.
func (c *Chain) Cap() int { return len(c.nodes) }

func (c *Chain) lookup(op string, id NodeID) (*Node, error) {
	n := c.Node(id)
	if n == nil {
		return nil, nodeErr(op, id, KindInvalid, ErrUnknownNode)
	}
	return n, nil
}

// Successor returns the successor of id.
func (c *Chain) Successor(id NodeID) (NodeID, error) {
	n, err := c.lookup("successor", id)
	if err != nil {
		return NoNodeID, err
	}
	next, err := n.Successor()
	if err != nil {
		return NoNodeID, nodeErr("successor", id, n.Kind, err)
	}
	return next, nil
}

// Predecessor returns the predecessor of id.
func (c *Chain) Predecessor(id NodeID) (NodeID, error) {
	n, err := c.lookup("predecessor", id)
	if err != nil {
		return NoNodeID, err
	}
	prev, err := n.Predecessor()
	if err != nil {
		return NoNodeID, nodeErr("predecessor", id, n.Kind, err)
	}
	return prev, nil
}

// SetSuccessor overwrites the successor edge of id. It does not touch the
// target's predecessor.
func (c *Chain) SetSuccessor(id, target NodeID, kind EdgeKind) error {
	n, err := c.lookup("set successor", id)
	if err != nil {
		return err
	}
	if !n.Kind.HasSuccessor() {
		return nodeErr("set successor", id, n.Kind, ErrUnsupportedOperation)
	}
	if target != NoNodeID && c.Node(target) == nil {
		return nodeErr("set successor", target, KindInvalid, ErrUnknownNode)
	}
	n.Next = Edge{Target: target, Kind: kind}
	return nil
}

// SetPredecessor overwrites the predecessor edge of id. It does not touch
// the target's successor.
func (c *Chain) SetPredecessor(id, target NodeID, kind EdgeKind) error {
	n, err := c.lookup("set predecessor", id)
	if err != nil {
		return err
	}
	if !n.Kind.HasPredecessor() {
		return nodeErr("set predecessor", id, n.Kind, ErrUnsupportedOperation)
	}
	if target != NoNodeID && c.Node(target) == nil {
		return nodeErr("set predecessor", target, KindInvalid, ErrUnknownNode)
	}
	n.Prev = Edge{Target: target, Kind: kind}
	return nil
}

// InsertAfter links n between anchor and anchor's successor and returns n
// as the new cursor. All preconditions are checked before any edge is
// written, so a failed call leaves the chain untouched.
func (c *Chain) InsertAfter(anchor, n NodeID) (NodeID, error) {
	const op = "insert after"
	a, err := c.lookup(op, anchor)
	if err != nil {
		return NoNodeID, err
	}
	nn, err := c.lookup(op, n)
	if err != nil {
		return NoNodeID, err
	}
	if a.detached {
		return NoNodeID, nodeErr(op, anchor, a.Kind, ErrBrokenChain)
	}
	if !a.Kind.HasSuccessor() {
		return NoNodeID, nodeErr(op, anchor, a.Kind, ErrUnsupportedOperation)
	}
	if !nn.Kind.HasSuccessor() || !nn.Kind.HasPredecessor() {
		return NoNodeID, nodeErr(op, n, nn.Kind, ErrUnsupportedOperation)
	}
	if anchor == n || nn.detached || nn.linked() {
		return NoNodeID, nodeErr(op, n, nn.Kind, ErrAlreadyLinked)
	}
	next := a.Next.Target
	if next == NoNodeID {
		return NoNodeID, nodeErr(op, anchor, a.Kind, ErrBrokenChain)
	}
	b := c.Node(next)
	if b == nil {
		return NoNodeID, nodeErr(op, next, KindInvalid, ErrUnknownNode)
	}
	if !b.Kind.HasPredecessor() {
		return NoNodeID, nodeErr(op, next, b.Kind, ErrUnsupportedOperation)
	}

	a.Next = Edge{Target: n, Kind: EdgeComplete}
	nn.Prev = Edge{Target: anchor, Kind: EdgeComplete}
	nn.Next = Edge{Target: next, Kind: EdgeComplete}
	b.Prev = Edge{Target: n, Kind: EdgeComplete}
	return n, nil
}

// InsertBefore links n between anchor's predecessor and anchor.
func (c *Chain) InsertBefore(anchor, n NodeID) (NodeID, error) {
	const op = "insert before"
	a, err := c.lookup(op, anchor)
	if err != nil {
		return NoNodeID, err
	}
	prev, err := a.Predecessor()
	if err != nil {
		return NoNodeID, nodeErr(op, anchor, a.Kind, err)
	}
	if prev == NoNodeID {
		return NoNodeID, nodeErr(op, anchor, a.Kind, ErrBrokenChain)
	}
	return c.InsertAfter(prev, n)
}

// Remove unlinks id, joining its predecessor and successor, and marks it
// detached. Entry and exit nodes cannot be removed.
func (c *Chain) Remove(id NodeID) error {
	const op = "remove"
	n, err := c.lookup(op, id)
	if err != nil {
		return err
	}
	if !n.Kind.HasSuccessor() || !n.Kind.HasPredecessor() {
		return nodeErr(op, id, n.Kind, ErrUnsupportedOperation)
	}
	if n.detached {
		return nodeErr(op, id, n.Kind, ErrAlreadyLinked)
	}
	prev, next := n.Prev.Target, n.Next.Target
	p, s := c.Node(prev), c.Node(next)
	if p == nil || s == nil || p.Next.Target != id || s.Prev.Target != id {
		return nodeErr(op, id, n.Kind, ErrBrokenChain)
	}

	p.Next = Edge{Target: next, Kind: EdgeComplete}
	s.Prev = Edge{Target: prev, Kind: EdgeComplete}
	n.Next = Edge{}
	n.Prev = Edge{}
	n.detached = true
	return nil
}

// Region returns the Reconverge node closing the region opened by head.
func (c *Chain) Region(head NodeID) (NodeID, error) {
	n, err := c.lookup("region", head)
	if err != nil {
		return NoNodeID, err
	}
	if !n.Kind.IsRegionHead() {
		return NoNodeID, nodeErr("region", head, n.Kind, ErrUnsupportedOperation)
	}
	if r := c.Node(n.Partner); r == nil || r.Kind != KindReconverge {
		return NoNodeID, nodeErr("region", head, n.Kind, ErrBrokenChain)
	}
	return n.Partner, nil
}

// Head returns the region head a Reconverge node closes.
func (c *Chain) Head(reconverge NodeID) (NodeID, error) {
	n, err := c.lookup("head", reconverge)
	if err != nil {
		return NoNodeID, err
	}
	if n.Kind != KindReconverge {
		return NoNodeID, nodeErr("head", reconverge, n.Kind, ErrUnsupportedOperation)
	}
	if h := c.Node(n.Partner); h == nil || !h.Kind.IsRegionHead() {
		return NoNodeID, nodeErr("head", reconverge, n.Kind, ErrBrokenChain)
	}
	return n.Partner, nil
}

// Len counts the nodes on the entry-to-exit path.
func (c *Chain) Len() int {
	count := 0
	// Walk only fails on broken chains; the partial count is still useful.
	_ = c.Walk(func(NodeID, *Node) bool { //nolint:errcheck
		count++
		return true
	})
	return count
}
