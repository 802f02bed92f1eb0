package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/blockspacer/spmdfy/internal/chain"
	"github.com/blockspacer/spmdfy/internal/ctxlog"
	"github.com/blockspacer/spmdfy/internal/diag"
	"github.com/blockspacer/spmdfy/internal/linearize"
	"github.com/blockspacer/spmdfy/internal/source"
	"github.com/blockspacer/spmdfy/internal/workspace"
)

// DumpChains loads in and writes every function chain to w, kernels once
// as built and once after restructuring. Functions that cannot be built
// or restructured are reported in the returned result's Bag.
func DumpChains(ctx context.Context, req Request, in Input, w io.Writer) (*FileResult, error) {
	limit := req.MaxDiagnostics
	if limit <= 0 {
		limit = defaultMaxDiagnostics
	}
	t := &fileTask{
		req: &req,
		in:  in,
		res: &FileResult{Path: in.Path, Files: source.NewFileSet(), Bag: diag.NewBag(limit)},
		log: ctxlog.FromContext(ctx),
	}
	if err := t.load(ctx); err != nil {
		t.res.Err = err
		return t.res, err
	}
	ws := workspace.New(t.unit, req.Barriers)
	cu, failures := linearize.Unit(ctx, t.unit, linearize.Options{Reporter: diag.NewDedupReporter(diag.BagReporter{Bag: t.res.Bag})})
	for _, f := range failures {
		t.reportChainError(f.Func.Name, f.Func.Span, f.Err)
	}

	for _, c := range cu.Chains() {
		if err := dumpOne(w, t, c, "built"); err != nil {
			return t.res, err
		}
		if !c.IsKernel() {
			continue
		}
		r := restructureKernel(ctx, ws, c)
		t.res.Kernels = append(t.res.Kernels, r)
		if r.Err != nil {
			t.reportChainError(r.Name, c.Func.Span, r.Err)
			continue
		}
		label := fmt.Sprintf("restructured, point=%d region=%d", r.Stats.Point, r.Stats.Region)
		if err := dumpOne(w, t, c, label); err != nil {
			return t.res, err
		}
	}
	return t.res, ctx.Err()
}

func dumpOne(w io.Writer, t *fileTask, c *chain.Chain, label string) error {
	kind := "device"
	if c.IsKernel() {
		kind = "kernel"
	}
	if _, err := fmt.Fprintf(w, "%s %s (%s)\n", kind, c.Name, label); err != nil {
		return err
	}
	if err := c.Dump(w, t.unit.Text); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}
