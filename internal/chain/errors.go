package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOperation is returned when a node is asked for an edge
	// its kind does not carry.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrBrokenChain is returned when a required link is missing.
	ErrBrokenChain = errors.New("broken chain")
	// ErrUnrecognizedBoundary is returned when a barrier walk stops at a node
	// that cannot bound a fission.
	ErrUnrecognizedBoundary = errors.New("unrecognized boundary")
	// ErrAlreadyLinked is returned when inserting a node that is already
	// part of a chain or was removed from one.
	ErrAlreadyLinked = errors.New("node already linked")
	// ErrUnknownNode is returned for ids outside the chain's arena.
	ErrUnknownNode = errors.New("unknown node")
)

// NodeError records the operation and node an error is about.
type NodeError struct {
	Op   string
	Node NodeID
	Kind Kind
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: node %d (%s): %v", e.Op, e.Node, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

func nodeErr(op string, id NodeID, kind Kind, err error) error {
	return &NodeError{Op: op, Node: id, Kind: kind, Err: err}
}
