package chain

import (
	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/source"
)

// NodeID is a 1-based index into a chain's arena.
type NodeID uint32

// NoNodeID marks an absent link.
const NoNodeID NodeID = 0

// EdgeKind tags an edge. Only EdgeComplete is produced.
type EdgeKind uint8

const (
	EdgePartial EdgeKind = iota
	EdgeComplete
)

func (k EdgeKind) String() string {
	if k == EdgeComplete {
		return "complete"
	}
	return "partial"
}

// Edge is a directed link to Target.
type Edge struct {
	Target NodeID
	Kind   EdgeKind
}

// Node is a tagged chain element. Payload fields are set per Kind:
//
//	KindGlobalVariable        Var
//	KindStructureDeclaration  Record
//	KindKernelEntry           Func
//	KindDeviceFunctionEntry   Func
//	KindBranch, KindLoop      Stmt, Header, Partner (its Reconverge)
//	KindElse                  Partner (its Branch)
//	KindReconverge            Partner (its head), Header (do-loop trailer)
//	KindInternal              exactly one of Var, Stmt, Expr
type Node struct {
	Kind    Kind
	Next    Edge
	Prev    Edge
	Var     *cuast.VarDecl
	Stmt    *cuast.Stmt
	Expr    *cuast.Expr
	Record  *cuast.RecordDecl
	Func    *cuast.FuncDecl
	Header  string
	Partner NodeID
	Span    source.Span

	detached bool
}

// Successor returns the successor target, or ErrUnsupportedOperation when
// the node's kind has no successor edge.
func (n *Node) Successor() (NodeID, error) {
	if !n.Kind.HasSuccessor() {
		return NoNodeID, ErrUnsupportedOperation
	}
	return n.Next.Target, nil
}

// Predecessor returns the predecessor target, or ErrUnsupportedOperation
// when the node's kind has no predecessor edge.
func (n *Node) Predecessor() (NodeID, error) {
	if !n.Kind.HasPredecessor() {
		return NoNodeID, ErrUnsupportedOperation
	}
	return n.Prev.Target, nil
}

// Detached reports whether the node was removed from its chain.
func (n *Node) Detached() bool { return n.detached }

func (n *Node) linked() bool {
	return n.Next.Target != NoNodeID || n.Prev.Target != NoNodeID
}
