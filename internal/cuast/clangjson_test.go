package cuast

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockspacer/spmdfy/internal/source"
)

func loadFixture(t *testing.T) *Unit {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "kernel.json"))
	require.NoError(t, err)
	src, err := os.ReadFile(filepath.Join("testdata", "kernel.cu"))
	require.NoError(t, err)
	u, err := LoadClangJSON(data, source.NewFileSet(), LoadOptions{Source: src})
	require.NoError(t, err)
	return u
}

func TestLoadClangJSONDeclarations(t *testing.T) {
	u := loadFixture(t)
	assert.Equal(t, "kernel.cu", u.Path())
	require.Len(t, u.Decls, 5, "implicit declarations are dropped")

	rec := u.Decls[0]
	require.Equal(t, DeclRecord, rec.Kind)
	assert.Equal(t, "P", rec.Record.Name)
	assert.True(t, rec.Record.Complete)
	require.Len(t, rec.Record.Fields, 1)
	assert.Equal(t, "x", rec.Record.Fields[0].Name)
	assert.Equal(t, "struct P { int x; }", u.Text(rec.Span))

	tile := u.Decls[1]
	require.Equal(t, DeclVar, tile.Kind)
	assert.True(t, tile.Var.Shared)
	assert.True(t, tile.Var.Type.IsConstantArray())
	assert.Equal(t, int64(4), tile.Var.Type.Len)

	k := u.Decls[2].Func
	require.NotNil(t, k)
	assert.Equal(t, FuncKernel, k.Kind)
	assert.Equal(t, "void", k.Result.Name)
	require.Len(t, k.Params, 2)
	assert.True(t, k.Params[0].Param)
	assert.True(t, k.Params[0].Type.IsPointer())
	assert.Equal(t, "int *a", u.Text(k.Params[0].Span))
}

func TestLoadClangJSONStatements(t *testing.T) {
	u := loadFixture(t)
	body := u.Decls[2].Func.Body
	require.NotNil(t, body)
	require.Equal(t, StmtCompound, body.Kind)

	var got []StmtKind
	for _, s := range body.Body {
		got = append(got, s.Kind)
	}
	assert.Equal(t, []StmtKind{StmtDecl, StmtIf, StmtFor, StmtWhile, StmtDo, StmtReturn}, got)

	decl := body.Body[0]
	require.Len(t, decl.Decls, 1)
	assert.Equal(t, "i", decl.Decls[0].Name)
	require.NotNil(t, decl.Decls[0].Init)
	assert.Equal(t, ExprIntLit, decl.Decls[0].Init.Kind)
	assert.Equal(t, "0", decl.Decls[0].Init.Value)

	ifs := body.Body[1]
	assert.Equal(t, "if (n > 0)", ifs.Header)
	assert.Equal(t, ExprBinary, ifs.Cond.Kind)
	assert.Equal(t, ">", ifs.Cond.Op)
	require.Len(t, ifs.Then.Body, 2)
	call := ifs.Then.Body[1].Expr
	require.Equal(t, ExprCall, call.Kind)
	assert.Equal(t, "__syncthreads", call.Callee)
	assert.Empty(t, call.Args)
	assert.Equal(t, "__syncthreads()", u.Text(call.Span))

	require.NotNil(t, ifs.Else)
	assert.Equal(t, StmtExpr, ifs.Else.Kind)
	char := ifs.Else.Expr.Args[1].StripImplicitCasts()
	assert.Equal(t, ExprCharLit, char.Kind)
	assert.Equal(t, "99", char.Value)
	assert.Equal(t, "'c'", u.Text(char.Span))

	loop := body.Body[2]
	assert.Equal(t, "for (; i < n; ++i)", loop.Header)
	assert.Equal(t, ExprCompoundAssign, loop.Loop.Expr.Kind)
	assert.Equal(t, "a[i] += 2", u.Text(loop.Loop.Span))

	assert.Equal(t, "while (n)", body.Body[3].Header)

	do := body.Body[4]
	assert.Equal(t, "do", do.Header)
	assert.Equal(t, "while (n > 2);", do.Trailer)

	assert.Equal(t, "return", u.Text(body.Body[5].Span))
}

func TestLoadClangJSONNullPointerSpellings(t *testing.T) {
	u := loadFixture(t)
	tests := []struct {
		decl  int
		name  string
		text  string
		inner ExprKind
	}{
		{decl: 3, name: "gp", text: "0", inner: ExprIntLit},
		{decl: 4, name: "gq", text: "NULL", inner: ExprNull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := u.Decls[tt.decl].Var
			require.NotNil(t, v)
			assert.Equal(t, tt.name, v.Name)
			assert.True(t, v.Type.IsPointer())
			require.NotNil(t, v.Init)
			assert.Equal(t, ExprImplicitCast, v.Init.Kind)
			assert.Equal(t, "NullToPointer", v.Init.CastKind)
			assert.True(t, v.Init.IsNullPointer())
			assert.Equal(t, tt.inner, v.Init.StripImplicitCasts().Kind)
			assert.Equal(t, tt.text, u.Text(v.Init.Span), "macro expansions map to the expansion site")
		})
	}
	assert.Equal(t, "int *gq = NULL", u.Text(u.Decls[4].Span))
	assert.False(t, u.Decls[0].Record.Fields[0].Init.IsNullPointer())
}

func TestLoadClangJSONRejectsOtherRoots(t *testing.T) {
	_, err := LoadClangJSON([]byte(`{"kind":"FunctionDecl"}`), source.NewFileSet(), LoadOptions{})
	require.ErrorIs(t, err, ErrNotTranslationUnit)

	_, err = LoadClangJSON([]byte(`{"kind":`), source.NewFileSet(), LoadOptions{})
	assert.Error(t, err)

	_, err = LoadClangJSON([]byte(`{"kind":"TranslationUnitDecl","inner":[]}`), source.NewFileSet(), LoadOptions{})
	assert.Error(t, err, "no located declarations")
}

func TestLoadClangJSONKeepsOnlyMainFile(t *testing.T) {
	data := []byte(`{"kind":"TranslationUnitDecl","inner":[
 {"kind":"FunctionDecl","name":"__syncthreads","loc":{"offset":0,"file":"shim.h","tokLen":4},
  "range":{"begin":{"offset":0,"tokLen":4},"end":{"offset":5,"tokLen":1}},"type":{"qualType":"void ()"}},
 {"kind":"VarDecl","name":"g","loc":{"offset":4,"file":"main.cu","tokLen":1},
  "range":{"begin":{"offset":0,"tokLen":3},"end":{"offset":4,"tokLen":1}},"type":{"qualType":"int"}}
]}`)
	u, err := LoadClangJSON(data, source.NewFileSet(), LoadOptions{MainFile: "main.cu", Source: []byte("int g;\n")})
	require.NoError(t, err)
	require.Len(t, u.Decls, 1)
	assert.Equal(t, "g", u.Decls[0].Name)
	assert.Equal(t, "int g", u.Text(u.Decls[0].Span))
}

func TestShimDeclaresBarrier(t *testing.T) {
	assert.Contains(t, string(Shim()), "__syncthreads")
}
