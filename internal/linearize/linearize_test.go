package linearize_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockspacer/spmdfy/internal/chain"
	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/cuast/cuasttest"
	"github.com/blockspacer/spmdfy/internal/diag"
	"github.com/blockspacer/spmdfy/internal/linearize"
)

const barrierSrc = `__global__ void k(int *a, int *b, bool cond) {
  int i = 0;
  if (cond) {
    a[i] = 1;
    __syncthreads();
    b[i] = 2;
  }
}
`

func barrierKernel(b *cuasttest.Builder) *cuast.FuncDecl {
	return b.Kernel("k",
		[]*cuast.VarDecl{
			b.Param("int *a", "a", "int *"),
			b.Param("int *b", "b", "int *"),
			b.Param("bool cond", "cond", "bool"),
		},
		b.Compound(
			b.Decl(b.Var("int i = 0", "i", "int", b.Int("0"))),
			b.If("if (cond)", b.Ref("cond"), b.Compound(
				b.ExprStmt(b.Binary("a[i] = 1", "=", b.Other("a[i]"), b.Int("1"))),
				b.ExprStmt(b.Call("__syncthreads()", "__syncthreads")),
				b.ExprStmt(b.Binary("b[i] = 2", "=", b.Other("b[i]"), b.Int("2"))),
			), nil),
		))
}

func kinds(t *testing.T, c *chain.Chain) []chain.Kind {
	t.Helper()
	var out []chain.Kind
	require.NoError(t, c.Walk(func(_ chain.NodeID, n *chain.Node) bool {
		out = append(out, n.Kind)
		return true
	}))
	return out
}

func dump(t *testing.T, c *chain.Chain, u *cuast.Unit) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, c.Dump(&sb, u.Text))
	return sb.String()
}

func TestFunctionLinearizesInSourceOrder(t *testing.T) {
	b := cuasttest.New("k.cu", barrierSrc)
	fn := barrierKernel(b)

	c, err := linearize.Function(context.Background(), fn, linearize.Options{})
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, []chain.Kind{
		chain.KindKernelEntry,
		chain.KindInternal, // int i = 0
		chain.KindBranch,
		chain.KindInternal, // a[i] = 1
		chain.KindInternal, // __syncthreads()
		chain.KindInternal, // b[i] = 2
		chain.KindReconverge,
		chain.KindScopeExit,
	}, kinds(t, c))

	assert.Equal(t, ""+
		"   1 KernelEntry  k\n"+
		"   3   Internal  i\n"+
		"   4   Branch  if (cond)\n"+
		"   5     Internal  a[i] = 1\n"+
		"   6     Internal  __syncthreads()\n"+
		"   7     Internal  b[i] = 2\n"+
		"   8   Reconverge\n"+
		"   2 ScopeExit\n", dump(t, c, b.Unit()))
}

func TestFunctionIsDeterministic(t *testing.T) {
	b := cuasttest.New("k.cu", barrierSrc)
	fn := barrierKernel(b)

	c1, err := linearize.Function(context.Background(), fn, linearize.Options{})
	require.NoError(t, err)
	c2, err := linearize.Function(context.Background(), fn, linearize.Options{})
	require.NoError(t, err)
	assert.Equal(t, dump(t, c1, b.Unit()), dump(t, c2, b.Unit()))
}

func TestIfElseRegion(t *testing.T) {
	src := `__device__ int pick(int x) {
  if (x > 0) {
    x = x * 2;
  } else {
    x = -x;
  }
  return x;
}
`
	b := cuasttest.New("pick.cu", src)
	fn := b.Device("int", "pick", []*cuast.VarDecl{b.Param("int x", "x", "int")}, b.Compound(
		b.If("if (x > 0)", b.Binary("x > 0", ">", b.Ref("x"), b.Int("0")),
			b.Compound(b.ExprStmt(b.Binary("x = x * 2", "=", b.Ref("x"), b.Other("x * 2")))),
			b.Compound(b.ExprStmt(b.Binary("x = -x", "=", b.Ref("x"), b.Other("-x"))))),
		b.Return("return x", b.Ref("x")),
	))

	c, err := linearize.Function(context.Background(), fn, linearize.Options{})
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.False(t, c.IsKernel())
	assert.Equal(t, []chain.Kind{
		chain.KindDeviceFunctionEntry,
		chain.KindBranch,
		chain.KindInternal,
		chain.KindElse,
		chain.KindInternal,
		chain.KindReconverge,
		chain.KindInternal, // return
		chain.KindScopeExit,
	}, kinds(t, c))

	var branch, elseNode chain.NodeID
	require.NoError(t, c.Walk(func(id chain.NodeID, n *chain.Node) bool {
		switch n.Kind {
		case chain.KindBranch:
			branch = id
		case chain.KindElse:
			elseNode = id
		}
		return true
	}))
	assert.Equal(t, branch, c.Node(elseNode).Partner)
}

func TestLoopRegions(t *testing.T) {
	src := `__global__ void loops(float *out, int n) {
  for (int i = 0; i < n; ++i) {
    out[i] = 0.0f;
  }
  while (n > 0) {
    n--;
  }
  do {
    n += 2;
  } while (n < 10);
}
`
	b := cuasttest.New("loops.cu", src)
	fn := b.Kernel("loops",
		[]*cuast.VarDecl{b.Param("float *out", "out", "float *"), b.Param("int n)", "n", "int")},
		b.Compound(
			b.For("for (int i = 0; i < n; ++i)", b.Compound(
				b.ExprStmt(b.Binary("out[i] = 0.0f", "=", b.Other("out[i]"), b.Float("0.0f"))),
			)),
			b.While("while (n > 0)", b.Other("n > 0"), b.Compound(
				b.ExprStmt(b.Unary("n--", "--", b.Ref("n"))),
			)),
			b.Do("n < 10", b.Compound(
				b.ExprStmt(b.CompoundAssign("n += 2", "+=", b.Ref("n"), b.Int("2"))),
			)),
		))

	c, err := linearize.Function(context.Background(), fn, linearize.Options{})
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	var headers, trailers []string
	require.NoError(t, c.Walk(func(_ chain.NodeID, n *chain.Node) bool {
		switch n.Kind {
		case chain.KindLoop:
			headers = append(headers, n.Header)
		case chain.KindReconverge:
			trailers = append(trailers, n.Header)
		}
		return true
	}))
	assert.Equal(t, []string{"for (int i = 0; i < n; ++i)", "while (n > 0)", "do"}, headers)
	assert.Equal(t, []string{"", "", "while (n < 10);"}, trailers)
}

func TestDeclarationsAndSkippedStatements(t *testing.T) {
	src := `__global__ void d() {
  int x = 1, y = 2;
  ;
  goto done;
  for (;;) { break; }
}
`
	b := cuasttest.New("d.cu", src)
	fn := b.Kernel("d", nil, b.Compound(
		b.Decl(b.Var("int x = 1", "x", "int", b.Int("1")), b.Var("y = 2", "y", "int", b.Int("2"))),
		b.Null(),
		b.Stmt("goto done", "GotoStmt"),
		b.For("for (;;)", b.Compound(b.Stmt("break", "BreakStmt"))),
	))

	bag := diag.NewBag(8)
	c, err := linearize.Function(context.Background(), fn, linearize.Options{Reporter: diag.BagReporter{Bag: bag}})
	require.NoError(t, err)
	assert.Equal(t, []chain.Kind{
		chain.KindKernelEntry,
		chain.KindInternal, // x
		chain.KindInternal, // y
		chain.KindInternal, // goto
		chain.KindLoop,
		chain.KindInternal, // break
		chain.KindReconverge,
		chain.KindScopeExit,
	}, kinds(t, c))

	items := bag.Items()
	require.Len(t, items, 1, "only goto is reported")
	assert.Equal(t, diag.InputUnsupportedConstruct, items[0].Code)
	assert.Equal(t, "d", items[0].Subject)
}

func TestUnitCollectsItemsInOrder(t *testing.T) {
	src := `struct Pair { int a; int b; };
__constant__ float scale = 2.0f;
__device__ int twice(int v) { return v * 2; }
__global__ void k(int *a, int *b, bool cond) {
  int i = 0;
  if (cond) {
    a[i] = 1;
    __syncthreads();
    b[i] = 2;
  }
}
void host() { }
`
	b := cuasttest.New("unit.cu", src)
	b.Struct("Pair", b.Var("int a;", "a", "int", nil), b.Var("int b;", "b", "int", nil))
	b.Global(b.Var("float scale = 2.0f", "scale", "float", b.Float("2.0f")))
	b.Device("int", "twice", []*cuast.VarDecl{b.Param("int v", "v", "int")},
		b.Compound(b.Return("return v * 2", b.Other("v * 2"))))
	barrierKernel(b)
	b.Host("void", "host", nil, b.Compound())
	b.Unit().Decls = append(b.Unit().Decls, &cuast.Decl{Kind: cuast.DeclFunc, Name: "proto",
		Func: &cuast.FuncDecl{Name: "proto", Kind: cuast.FuncKernel}})

	u, failures := linearize.Unit(context.Background(), b.Unit(), linearize.Options{})
	require.Empty(t, failures)
	require.Len(t, u.Items, 4)

	assert.Equal(t, chain.KindStructureDeclaration, u.Items[0].Decl.Kind)
	assert.Equal(t, chain.KindGlobalVariable, u.Items[1].Decl.Kind)
	assert.Equal(t, "twice", u.Items[2].Chain.Name)
	assert.Equal(t, "k", u.Items[3].Chain.Name)
	assert.Equal(t, map[string]bool{"twice": true}, u.DeviceFunctions())
}

func TestFunctionHonoursCancellation(t *testing.T) {
	b := cuasttest.New("k.cu", barrierSrc)
	fn := barrierKernel(b)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := linearize.Function(ctx, fn, linearize.Options{})
	require.ErrorIs(t, err, context.Canceled)
}
