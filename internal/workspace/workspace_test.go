package workspace_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockspacer/spmdfy/internal/chain"
	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/cuast/cuasttest"
	"github.com/blockspacer/spmdfy/internal/linearize"
	"github.com/blockspacer/spmdfy/internal/workspace"
)

const src = `struct P { int x; };
__shared__ float tile[32];
__device__ void helper() { __syncwarp(); }
__global__ void k(float *a) {
  a[0] = 1.0f;
  __syncthreads();
  (__syncthreads());
  a[1] = 2.0f;
  __syncwarp();
}
`

func build(t *testing.T) (*cuasttest.Builder, *cuast.FuncDecl) {
	t.Helper()
	b := cuasttest.New("k.cu", src)
	b.Struct("P", b.Var("int x;", "x", "int", nil))
	b.Global(b.Shared("float tile[32]", "tile", "float [32]", nil))
	b.Device("void", "helper", nil, b.Compound(b.ExprStmt(b.Nth(1).Call("__syncwarp()", "__syncwarp"))))
	fn := b.Kernel("k", []*cuast.VarDecl{b.Param("float *a", "a", "float *")}, b.Compound(
		b.ExprStmt(b.Binary("a[0] = 1.0f", "=", b.Other("a[0]"), b.Float("1.0f"))),
		b.ExprStmt(b.Nth(1).Call("__syncthreads()", "__syncthreads")),
		b.ExprStmt(b.Other("(__syncthreads())", b.Call("__syncthreads()", "__syncthreads"))),
		b.ExprStmt(b.Binary("a[1] = 2.0f", "=", b.Other("a[1]"), b.Float("2.0f"))),
		b.ExprStmt(b.Nth(2).Call("__syncwarp()", "__syncwarp")),
	))
	return b, fn
}

func TestNewCollectsDeclarations(t *testing.T) {
	b, _ := build(t)
	w := workspace.New(b.Unit(), nil)
	require.Len(t, w.Structs, 1)
	require.Len(t, w.Globals, 1)
	assert.True(t, w.Globals[0].Shared)
	assert.Equal(t, map[string]bool{"helper": true}, w.DeviceFunctions)
}

func TestCollectDefaultBarrier(t *testing.T) {
	_, fn := build(t)
	c, err := linearize.Function(context.Background(), fn, linearize.Options{})
	require.NoError(t, err)

	q, err := workspace.NewCollector().Collect(c)
	require.NoError(t, err)
	require.Equal(t, 1, q.Total(), "only direct barrier calls are sites")

	id, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, "__syncthreads", c.Node(id).Expr.Callee)
	assert.Equal(t, 0, q.Len())
	_, ok = q.Next()
	assert.False(t, ok)
}

func TestCollectConfiguredBarriers(t *testing.T) {
	_, fn := build(t)
	c, err := linearize.Function(context.Background(), fn, linearize.Options{})
	require.NoError(t, err)

	q, err := workspace.NewCollector("__syncthreads", "__syncwarp").Collect(c)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Total())

	var order []string
	for id, ok := q.Next(); ok; id, ok = q.Next() {
		order = append(order, c.Node(id).Expr.Callee)
	}
	assert.Equal(t, []string{"__syncthreads", "__syncwarp"}, order)
}

func TestIsBarrierLooksThroughParens(t *testing.T) {
	col := workspace.NewCollector()
	call := &cuast.Expr{Kind: cuast.ExprCall, Callee: "__syncthreads"}
	paren := &cuast.Expr{Kind: cuast.ExprParen, Args: []*cuast.Expr{call}}

	assert.True(t, col.IsBarrier(&chain.Node{Kind: chain.KindInternal, Expr: paren}))
	assert.False(t, col.IsBarrier(&chain.Node{Kind: chain.KindBranch, Expr: call}))
	assert.False(t, col.IsBarrier(nil))
}
