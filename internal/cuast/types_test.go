package cuast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in     string
		kind   TypeKind
		name   string
		quals  Qualifiers
		render string
	}{
		{"int", TypeBuiltin, "int", 0, "int"},
		{"unsigned", TypeBuiltin, "unsigned int", 0, "unsigned int"},
		{"long int", TypeBuiltin, "long", 0, "long"},
		{"unsigned long long", TypeBuiltin, "unsigned long long", 0, "unsigned long long"},
		{"short int", TypeBuiltin, "short", 0, "short"},
		{"signed char", TypeBuiltin, "signed char", 0, "signed char"},
		{"_Bool", TypeBuiltin, "bool", 0, "bool"},
		{"const float", TypeBuiltin, "float", QualConst, "const float"},
		{"struct Point", TypeRecord, "Point", 0, "Point"},
		{"dim3", TypeNamed, "dim3", 0, "dim3"},
		{"enum Mode", TypeNamed, "Mode", 0, "Mode"},
		{"void (int *, float)", TypeBuiltin, "void", 0, "void"},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.kind, got.Kind, tt.in)
		assert.Equal(t, tt.name, got.Name, tt.in)
		assert.Equal(t, tt.quals, got.Quals, tt.in)
		assert.Equal(t, tt.render, got.String(), tt.in)
	}
}

func TestParsePointersAndArrays(t *testing.T) {
	p, err := ParseType("const float *__restrict")
	require.NoError(t, err)
	require.True(t, p.IsPointer())
	assert.Equal(t, QualRestrict, p.Quals)
	assert.Equal(t, QualConst, p.Elem.Quals)
	assert.Equal(t, "const float *__restrict", p.String())

	pp, err := ParseType("int **")
	require.NoError(t, err)
	assert.Equal(t, "int **", pp.String())

	a, err := ParseType("float[16][8]")
	require.NoError(t, err)
	require.True(t, a.IsConstantArray())
	assert.Equal(t, int64(16), a.Len)
	assert.Equal(t, int64(8), a.Elem.Len)
	assert.Equal(t, "float [16][8]", a.String())

	inc, err := ParseType("int []")
	require.NoError(t, err)
	assert.Equal(t, TypeIncompleteArray, inc.Kind)
	assert.True(t, inc.IsIncomplete())

	ref, err := ParseType("const Point &")
	require.NoError(t, err)
	assert.Equal(t, TypeNamed, ref.Kind, "references are carried as their referee")
}

func TestParseTypeErrors(t *testing.T) {
	for _, in := range []string{"", "   ", "const", "int [x]", "int [4", "int [4] foo"} {
		_, err := ParseType(in)
		assert.Error(t, err, "%q", in)
	}
	anon, err := ParseType("struct (unnamed at k.cu:1:1)")
	require.NoError(t, err)
	assert.Equal(t, TypeNamed, anon.Kind)
}

func TestTypedefSugar(t *testing.T) {
	ty, err := ParseTypeWithSugar("const real *", "const float *")
	require.NoError(t, err)
	require.True(t, ty.IsPointer())
	elem := ty.Elem
	require.Equal(t, TypeNamed, elem.Kind)
	canon := elem.Canonical()
	assert.Equal(t, TypeBuiltin, canon.Kind)
	assert.Equal(t, "float", canon.Name)
	assert.Equal(t, QualConst, canon.Quals)

	same, err := ParseTypeWithSugar("int", "int")
	require.NoError(t, err)
	assert.Nil(t, same.Desugared)
}
