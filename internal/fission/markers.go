package fission

import (
	"errors"
	"fmt"

	"github.com/blockspacer/spmdfy/internal/chain"
)

// CheckMarkers verifies the loop-nest markers of a restructured kernel:
// one grid scope enclosing alternating per-thread scope opens and closes,
// with no marker inside a branch or loop region.
func CheckMarkers(c *chain.Chain) error {
	var errs []error
	grid, block, regions := 0, false, 0
	seenGrid := false
	bad := func(id chain.NodeID, n *chain.Node, msg string) {
		errs = append(errs, &chain.NodeError{Op: "markers", Node: id, Kind: n.Kind, Err: errors.New(msg)})
	}
	err := c.Walk(func(id chain.NodeID, n *chain.Node) bool {
		if n.Kind.IsScopeMarker() && regions != 0 {
			bad(id, n, "marker inside a region")
		}
		switch n.Kind {
		case chain.KindGridScopeOpen:
			if grid != 0 || seenGrid {
				bad(id, n, "nested or repeated grid scope")
			}
			grid, seenGrid = 1, true
		case chain.KindGridScopeClose:
			if grid != 1 || block {
				bad(id, n, "grid scope closed while not open or with an open block scope")
			}
			grid = 0
		case chain.KindBlockScopeOpen:
			if grid != 1 || block {
				bad(id, n, "block scope opened outside the grid scope or twice")
			}
			block = true
		case chain.KindBlockScopeClose:
			if !block {
				bad(id, n, "block scope closed while not open")
			}
			block = false
		case chain.KindBranch, chain.KindLoop:
			regions++
		case chain.KindReconverge:
			regions--
		}
		return true
	})
	if err != nil {
		return err
	}
	switch {
	case !seenGrid:
		errs = append(errs, errors.New("no grid scope"))
	case grid != 0 || block:
		errs = append(errs, errors.New("scope left open at chain exit"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("kernel %s: %w", c.Name, errors.Join(errs...))
}
