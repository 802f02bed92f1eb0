// Package fission rewrites kernel chains so that every barrier becomes a
// loop-fission point.
//
// A kernel body runs inside a grid loop nest wrapping a per-thread loop
// nest. A barrier inside straight-line code closes the per-thread loop and
// reopens it after the barrier (point fission). A barrier nested in a
// branch or loop closes the per-thread loop before the outermost enclosing
// region and reopens it after that region, and the barrier itself is
// dropped (region fission).
package fission

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/blockspacer/spmdfy/internal/chain"
	"github.com/blockspacer/spmdfy/internal/ctxlog"
	"github.com/blockspacer/spmdfy/internal/trace"
	"github.com/blockspacer/spmdfy/internal/workspace"
)

// Stats counts the rewrites applied to one kernel.
type Stats struct {
	Point  int
	Region int
	// Refissioned counts barriers whose region was already split by an
	// earlier barrier; only the barrier was removed.
	Refissioned int
}

// Kernel restructures c in place, consuming every site in q. On error
// the chain is left partially rewritten and must be discarded.
func Kernel(ctx context.Context, c *chain.Chain, q *workspace.Queue) (Stats, error) {
	var st Stats
	if err := ctx.Err(); err != nil {
		return st, err
	}
	if !c.IsKernel() {
		entry := c.Node(c.Entry())
		return st, &chain.NodeError{Op: "fission", Node: c.Entry(), Kind: entry.Kind, Err: chain.ErrUnsupportedOperation}
	}
	ctx, span := trace.Start(ctx, trace.ScopeKernel, "fission "+c.Name)
	p := &pass{
		c:      c,
		log:    ctxlog.FromContext(ctx).With(zap.String("kernel", c.Name)),
		tracer: trace.FromContext(ctx),
		parent: span.ID(),
	}
	err := p.run(q, &st)
	detail := fmt.Sprintf("point=%d region=%d", st.Point, st.Region)
	if err != nil {
		detail = err.Error()
		p.log.Warn("restructuring aborted", zap.Error(err))
	} else {
		p.log.Debug("restructured", zap.Int("point", st.Point), zap.Int("region", st.Region), zap.Int("refissioned", st.Refissioned))
	}
	span.End(detail)
	if err != nil {
		return st, fmt.Errorf("fission %s: %w", c.Name, err)
	}
	return st, nil
}

type pass struct {
	c      *chain.Chain
	log    *zap.Logger
	tracer trace.Tracer
	parent uint64
}

func (p *pass) run(q *workspace.Queue, st *Stats) error {
	grid, err := p.insertAfter(p.c.Entry(), chain.KindGridScopeOpen)
	if err != nil {
		return err
	}
	if _, err := p.insertAfter(grid, chain.KindBlockScopeOpen); err != nil {
		return err
	}

	for site, ok := q.Next(); ok; site, ok = q.Next() {
		if err := p.site(site, st); err != nil {
			return err
		}
	}
	if q.Len() != 0 {
		return fmt.Errorf("%d barrier sites left unprocessed", q.Len())
	}

	closeBlock, err := p.insertBefore(p.c.Exit(), chain.KindBlockScopeClose)
	if err != nil {
		return err
	}
	_, err = p.insertAfter(closeBlock, chain.KindGridScopeClose)
	return err
}

func (p *pass) site(barrier chain.NodeID, st *Stats) error {
	n := p.c.Node(barrier)
	if n == nil {
		return &chain.NodeError{Op: "fission", Node: barrier, Kind: chain.KindInvalid, Err: chain.ErrUnknownNode}
	}
	if n.Detached() || n.Kind != chain.KindInternal {
		return &chain.NodeError{Op: "fission", Node: barrier, Kind: n.Kind, Err: chain.ErrBrokenChain}
	}
	region, err := p.boundary(barrier)
	if err != nil {
		return err
	}
	if region == chain.NoNodeID {
		if err := p.point(barrier); err != nil {
			return err
		}
		st.Point++
		return nil
	}
	split, err := p.region(region)
	if err != nil {
		return err
	}
	if split {
		st.Region++
	} else {
		st.Refissioned++
	}
	return p.c.Remove(barrier)
}

// boundary walks back from barrier to the per-thread scope opening it
// lives in. Completed regions are skipped through their head. It returns
// the outermost region head enclosing the barrier, or NoNodeID when the
// barrier sits directly in the per-thread scope.
func (p *pass) boundary(barrier chain.NodeID) (chain.NodeID, error) {
	outer := chain.NoNodeID
	cur, err := p.c.Predecessor(barrier)
	if err != nil {
		return chain.NoNodeID, err
	}
	for steps := 0; steps <= p.c.Cap(); steps++ {
		n := p.c.Node(cur)
		if n == nil {
			return chain.NoNodeID, &chain.NodeError{Op: "boundary", Node: cur, Kind: chain.KindInvalid, Err: chain.ErrBrokenChain}
		}
		if p.log.Core().Enabled(zap.DebugLevel) {
			p.log.Debug("walk back", zap.Uint32("node", uint32(cur)), zap.Stringer("kind", n.Kind))
		}
		next := cur
		switch n.Kind {
		case chain.KindBlockScopeOpen:
			p.log.Debug("boundary found",
				zap.Uint32("barrier", uint32(barrier)),
				zap.Uint32("region", uint32(outer)))
			return outer, nil
		case chain.KindBlockScopeClose:
			// Only reachable from inside a region that was split already.
			if outer == chain.NoNodeID {
				return chain.NoNodeID, &chain.NodeError{Op: "boundary", Node: cur, Kind: n.Kind, Err: chain.ErrUnrecognizedBoundary}
			}
			return outer, nil
		case chain.KindBranch, chain.KindLoop:
			outer = cur
		case chain.KindReconverge:
			head, err := p.c.Head(cur)
			if err != nil {
				return chain.NoNodeID, err
			}
			next = head
		case chain.KindInternal, chain.KindElse:
		default:
			return chain.NoNodeID, &chain.NodeError{Op: "boundary", Node: cur, Kind: n.Kind, Err: chain.ErrUnrecognizedBoundary}
		}
		prev, err := p.c.Predecessor(next)
		if err != nil {
			return chain.NoNodeID, err
		}
		if prev == chain.NoNodeID {
			k := p.c.Node(next).Kind
			return chain.NoNodeID, &chain.NodeError{Op: "boundary", Node: next, Kind: k, Err: chain.ErrBrokenChain}
		}
		cur = prev
	}
	return chain.NoNodeID, &chain.NodeError{Op: "boundary", Node: barrier, Kind: chain.KindInternal, Err: chain.ErrBrokenChain}
}

func (p *pass) point(barrier chain.NodeID) error {
	if _, err := p.insertBefore(barrier, chain.KindBlockScopeClose); err != nil {
		return err
	}
	_, err := p.insertAfter(barrier, chain.KindBlockScopeOpen)
	return err
}

// region splits the per-thread scope around the region opened by head.
// It reports false when the region is already bracketed by markers.
func (p *pass) region(head chain.NodeID) (bool, error) {
	rec, err := p.c.Region(head)
	if err != nil {
		return false, err
	}
	before, err := p.c.Predecessor(head)
	if err != nil {
		return false, err
	}
	after, err := p.c.Successor(rec)
	if err != nil {
		return false, err
	}
	if p.kindOf(before) == chain.KindBlockScopeClose && p.kindOf(after) == chain.KindBlockScopeOpen {
		return false, nil
	}
	if _, err := p.insertBefore(head, chain.KindBlockScopeClose); err != nil {
		return false, err
	}
	if _, err := p.insertAfter(rec, chain.KindBlockScopeOpen); err != nil {
		return false, err
	}
	return true, nil
}

func (p *pass) kindOf(id chain.NodeID) chain.Kind {
	if n := p.c.Node(id); n != nil {
		return n.Kind
	}
	return chain.KindInvalid
}

func (p *pass) insertAfter(anchor chain.NodeID, kind chain.Kind) (chain.NodeID, error) {
	id, err := p.c.InsertAfter(anchor, p.c.NewNode(chain.Node{Kind: kind}))
	if err == nil {
		trace.Point(p.tracer, trace.ScopeNode, "marker", kind.String(), p.parent)
	}
	return id, err
}

func (p *pass) insertBefore(anchor chain.NodeID, kind chain.Kind) (chain.NodeID, error) {
	id, err := p.c.InsertBefore(anchor, p.c.NewNode(chain.Node{Kind: kind}))
	if err == nil {
		trace.Point(p.tracer, trace.ScopeNode, "marker", kind.String(), p.parent)
	}
	return id, err
}
