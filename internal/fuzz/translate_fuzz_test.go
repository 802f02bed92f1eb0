package fuzztests

import (
	"context"
	"testing"

	"github.com/blockspacer/spmdfy/internal/backend/ispc"
	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/diag"
	"github.com/blockspacer/spmdfy/internal/fission"
	"github.com/blockspacer/spmdfy/internal/linearize"
	"github.com/blockspacer/spmdfy/internal/source"
	"github.com/blockspacer/spmdfy/internal/testkit"
	"github.com/blockspacer/spmdfy/internal/typemap"
	"github.com/blockspacer/spmdfy/internal/workspace"
)

const maxFuzzInput = 1 << 16

func FuzzParseType(f *testing.F) {
	addTypeSeeds(f)
	f.Fuzz(func(t *testing.T, spelling string) {
		ty, err := cuast.ParseType(spelling)
		if err != nil {
			return
		}
		if ty == nil {
			t.Fatalf("ParseType(%q) returned nil without error", spelling)
		}
		_ = ty.String()
		_ = ty.Canonical()
	})
}

func FuzzTranslateUnit(f *testing.F) {
	addUnitSeeds(f)
	f.Fuzz(func(t *testing.T, ast, src []byte) {
		if len(ast) > maxFuzzInput || len(src) > maxFuzzInput {
			return
		}
		ctx := context.Background()
		files := source.NewFileSet()
		unit, err := cuast.LoadClangJSON(ast, files, cuast.LoadOptions{Source: src})
		if err != nil {
			return
		}
		if err := testkit.CheckSpanInvariants(unit); err != nil {
			t.Logf("span invariants: %v", err)
		}

		bag := diag.NewBag(64)
		ws := workspace.New(unit, nil)
		cu, _ := linearize.Unit(ctx, unit, linearize.Options{Reporter: diag.BagReporter{Bag: bag}})
		for _, c := range cu.Chains() {
			if err := c.Validate(); err != nil {
				t.Fatalf("freshly built chain %s is invalid: %v", c.Name, err)
			}
		}
		for _, c := range cu.Kernels() {
			q, err := ws.Sync.Collect(c)
			if err != nil {
				continue
			}
			if _, err := fission.Kernel(ctx, c, q); err != nil {
				// The chain is left half rewritten; emitting it is meaningless.
				return
			}
			if err := fission.CheckMarkers(c); err != nil {
				t.Fatalf("kernel %s: unbalanced markers after restructuring: %v", c.Name, err)
			}
		}
		_, _ = ispc.EmitUnit(ctx, cu, ispc.Options{
			Tables:          typemap.Default(),
			DeviceFunctions: ws.DeviceFunctions,
		})
	})
}
