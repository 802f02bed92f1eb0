// Package cuasttest builds cuast trees over an in-memory source file for
// tests. Statement and declaration fragments are located in the source by
// exact text and must occur once (or be disambiguated with Nth); the
// expressions they own are then located inside them, left to right.
package cuasttest

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/source"
)

// Builder accumulates declarations over one source file.
type Builder struct {
	src     string
	files   *source.FileSet
	file    source.FileID
	unit    *cuast.Unit
	pending map[*cuast.Expr]string
	nth     int
}

// New registers src under path.
func New(path, src string) *Builder {
	files := source.NewFileSet()
	id := files.AddVirtual(path, []byte(src))
	return &Builder{
		src:     src,
		files:   files,
		file:    id,
		unit:    &cuast.Unit{Files: files, File: id},
		pending: make(map[*cuast.Expr]string),
	}
}

// Unit returns the unit built so far.
func (b *Builder) Unit() *cuast.Unit { return b.unit }

// T parses a type spelling, panicking on malformed input.
func T(spelling string) *cuast.Type {
	t, err := cuast.ParseType(spelling)
	if err != nil {
		panic(err)
	}
	return t
}

// Nth makes the next top-level fragment lookup pick the n-th occurrence
// (1-based) instead of requiring a unique one.
func (b *Builder) Nth(n int) *Builder {
	b.nth = n
	return b
}

func (b *Builder) span(start, end int) source.Span {
	s, err := safecast.Conv[uint32](start)
	if err != nil {
		panic(err)
	}
	e, err := safecast.Conv[uint32](end)
	if err != nil {
		panic(err)
	}
	return source.Span{File: b.file, Start: s, End: e}
}

// Find locates frag in the whole file.
func (b *Builder) Find(frag string) source.Span {
	nth := b.nth
	b.nth = 0
	count := strings.Count(b.src, frag)
	switch {
	case count == 0:
		panic(fmt.Sprintf("cuasttest: %q not found in source", frag))
	case nth == 0 && count > 1:
		panic(fmt.Sprintf("cuasttest: %q occurs %d times; use Nth", frag, count))
	case nth > count:
		panic(fmt.Sprintf("cuasttest: %q occurs %d times, wanted #%d", frag, count, nth))
	}
	if nth == 0 {
		nth = 1
	}
	off := -1
	for n := 0; n < nth; n++ {
		i := strings.Index(b.src[off+1:], frag)
		off += 1 + i
	}
	return b.span(off, off+len(frag))
}

// within locates frag at or after from inside outer.
func (b *Builder) within(outer source.Span, from uint32, frag string) source.Span {
	if from < outer.Start {
		from = outer.Start
	}
	i := strings.Index(b.src[from:outer.End], frag)
	if i < 0 {
		panic(fmt.Sprintf("cuasttest: %q not found inside %q", frag, b.src[outer.Start:outer.End]))
	}
	start := int(from) + i
	return b.span(start, start+len(frag))
}

// place resolves e at or after from inside outer and then its operands.
func (b *Builder) place(e *cuast.Expr, outer source.Span, from uint32) uint32 {
	if e == nil {
		return from
	}
	frag, ok := b.pending[e]
	if !ok {
		for _, arg := range e.Args {
			from = b.place(arg, outer, from)
		}
		return from
	}
	delete(b.pending, e)
	e.Span = b.within(outer, from, frag)
	next := e.Span.Start
	for _, arg := range e.Args {
		next = b.place(arg, e.Span, next)
	}
	return e.Span.End
}

func (b *Builder) expr(kind cuast.ExprKind, frag string, args ...*cuast.Expr) *cuast.Expr {
	e := &cuast.Expr{Kind: kind, Args: args}
	if frag != "" {
		b.pending[e] = frag
	}
	return e
}

// Other is an expression kept as text.
func (b *Builder) Other(frag string, args ...*cuast.Expr) *cuast.Expr {
	return b.expr(cuast.ExprOther, frag, args...)
}

// Call is a call to callee; frag is the full call text.
func (b *Builder) Call(frag, callee string, args ...*cuast.Expr) *cuast.Expr {
	e := b.expr(cuast.ExprCall, frag, args...)
	e.Callee = callee
	return e
}

func (b *Builder) Binary(frag, op string, lhs, rhs *cuast.Expr) *cuast.Expr {
	e := b.expr(cuast.ExprBinary, frag, lhs, rhs)
	e.Op = op
	return e
}

func (b *Builder) CompoundAssign(frag, op string, lhs, rhs *cuast.Expr) *cuast.Expr {
	e := b.expr(cuast.ExprCompoundAssign, frag, lhs, rhs)
	e.Op = op
	return e
}

func (b *Builder) Unary(frag, op string, operand *cuast.Expr) *cuast.Expr {
	e := b.expr(cuast.ExprUnary, frag, operand)
	e.Op = op
	return e
}

// Ref is a reference to a named declaration.
func (b *Builder) Ref(name string) *cuast.Expr {
	e := b.expr(cuast.ExprDeclRef, name)
	e.Value = name
	return e
}

func (b *Builder) Int(frag string) *cuast.Expr {
	e := b.expr(cuast.ExprIntLit, frag)
	e.Value = frag
	e.Type = T("int")
	return e
}

func (b *Builder) Float(frag string) *cuast.Expr {
	e := b.expr(cuast.ExprFloatLit, frag)
	e.Value = frag
	e.Type = T("float")
	return e
}

// Char is a character literal; value is its numeric code.
func (b *Builder) Char(frag, value string) *cuast.Expr {
	e := b.expr(cuast.ExprCharLit, frag)
	e.Value = value
	e.Type = T("char")
	return e
}

// NullPtr is a null pointer constant as clang reports it: an implicit
// NullToPointer conversion around the spelled token.
func (b *Builder) NullPtr(frag string) *cuast.Expr {
	return NullToPointer(b.expr(cuast.ExprNull, frag))
}

// NullToPointer wraps a null pointer constant such as a literal 0 in the
// conversion clang inserts for it.
func NullToPointer(inner *cuast.Expr) *cuast.Expr {
	return &cuast.Expr{Kind: cuast.ExprImplicitCast, CastKind: "NullToPointer", Args: []*cuast.Expr{inner}}
}

// Paren is a parenthesized expression.
func (b *Builder) Paren(frag string, inner *cuast.Expr) *cuast.Expr {
	return b.expr(cuast.ExprParen, frag, inner)
}

// Construct is a constructor call for typ; frag is the full initializer.
func (b *Builder) Construct(frag, typ string, args ...*cuast.Expr) *cuast.Expr {
	e := b.expr(cuast.ExprConstruct, frag, args...)
	e.Type = T(typ)
	return e
}

// Typed sets the type of e and returns it.
func Typed(e *cuast.Expr, spelling string) *cuast.Expr {
	e.Type = T(spelling)
	return e
}

// Var declares name of type typ; frag is the declaration text.
func (b *Builder) Var(frag, name, typ string, init *cuast.Expr) *cuast.VarDecl {
	sp := b.Find(frag)
	v := &cuast.VarDecl{Name: name, Type: T(typ), Init: init, Span: sp}
	b.place(init, sp, sp.Start)
	return v
}

// Shared declares a __shared__ variable.
func (b *Builder) Shared(frag, name, typ string, init *cuast.Expr) *cuast.VarDecl {
	v := b.Var(frag, name, typ, init)
	v.Shared = true
	return v
}

// Param declares a function parameter.
func (b *Builder) Param(frag, name, typ string) *cuast.VarDecl {
	v := b.Var(frag, name, typ, nil)
	v.Param = true
	return v
}

func cover(stmts ...*cuast.Stmt) source.Span {
	var sp source.Span
	for _, s := range stmts {
		if s == nil || s.Span.Empty() {
			continue
		}
		if sp.Empty() {
			sp = s.Span
			continue
		}
		sp = sp.Cover(s.Span)
	}
	return sp
}

func (b *Builder) Compound(stmts ...*cuast.Stmt) *cuast.Stmt {
	sp := cover(stmts...)
	sp.File = b.file
	return &cuast.Stmt{Kind: cuast.StmtCompound, Body: stmts, Span: sp}
}

func (b *Builder) Decl(vars ...*cuast.VarDecl) *cuast.Stmt {
	s := &cuast.Stmt{Kind: cuast.StmtDecl, Decls: vars, Span: source.Span{File: b.file}}
	for _, v := range vars {
		if s.Span.Empty() {
			s.Span = v.Span
		} else {
			s.Span = s.Span.Cover(v.Span)
		}
	}
	return s
}

// ExprStmt wraps e, locating its text in the file.
func (b *Builder) ExprStmt(e *cuast.Expr) *cuast.Stmt {
	frag, ok := b.pending[e]
	if !ok {
		panic("cuasttest: expression statement needs a text fragment")
	}
	sp := b.Find(frag)
	b.place(e, sp, sp.Start)
	return &cuast.Stmt{Kind: cuast.StmtExpr, Expr: e, Span: sp}
}

// If builds a conditional; header is the text up to the taken arm, e.g.
// "if (x > 0)". els may be nil.
func (b *Builder) If(header string, cond *cuast.Expr, then, els *cuast.Stmt) *cuast.Stmt {
	sp := b.Find(header)
	b.place(cond, sp, sp.Start)
	return &cuast.Stmt{
		Kind:   cuast.StmtIf,
		Header: header,
		Cond:   cond,
		Then:   then,
		Else:   els,
		Span:   sp.Cover(cover(then, els)),
	}
}

// For builds a for loop from its header text.
func (b *Builder) For(header string, body *cuast.Stmt) *cuast.Stmt {
	sp := b.Find(header)
	return &cuast.Stmt{Kind: cuast.StmtFor, Header: header, Loop: body, Span: sp.Cover(cover(body))}
}

func (b *Builder) While(header string, cond *cuast.Expr, body *cuast.Stmt) *cuast.Stmt {
	sp := b.Find(header)
	b.place(cond, sp, sp.Start)
	return &cuast.Stmt{Kind: cuast.StmtWhile, Header: header, Cond: cond, Loop: body, Span: sp.Cover(cover(body))}
}

// Do builds a do-while loop; condText is the controlling expression.
func (b *Builder) Do(condText string, body *cuast.Stmt) *cuast.Stmt {
	trailer := "while (" + condText + ");"
	sp := b.Find(trailer)
	cond := b.Other(condText)
	b.place(cond, sp, sp.Start)
	return &cuast.Stmt{
		Kind:    cuast.StmtDo,
		Header:  "do",
		Trailer: trailer,
		Cond:    cond,
		Loop:    body,
		Span:    cover(body).Cover(sp),
	}
}

// Return builds a return statement; frag excludes the semicolon.
func (b *Builder) Return(frag string, value *cuast.Expr) *cuast.Stmt {
	sp := b.Find(frag)
	b.place(value, sp, sp.Start)
	return &cuast.Stmt{Kind: cuast.StmtReturn, Expr: value, Span: sp}
}

// Stmt builds a statement the AST has no structure for.
func (b *Builder) Stmt(frag, construct string) *cuast.Stmt {
	return &cuast.Stmt{Kind: cuast.StmtOther, Construct: construct, Span: b.Find(frag)}
}

func (b *Builder) Null() *cuast.Stmt {
	return &cuast.Stmt{Kind: cuast.StmtNull, Span: source.Span{File: b.file}}
}

func (b *Builder) addFunc(fn *cuast.FuncDecl) *cuast.FuncDecl {
	fn.Span = source.Span{File: b.file}
	b.unit.Decls = append(b.unit.Decls, &cuast.Decl{Kind: cuast.DeclFunc, Name: fn.Name, Span: fn.Span, Func: fn})
	return fn
}

// Kernel appends a __global__ function.
func (b *Builder) Kernel(name string, params []*cuast.VarDecl, body *cuast.Stmt) *cuast.FuncDecl {
	return b.addFunc(&cuast.FuncDecl{Name: name, Kind: cuast.FuncKernel, Result: T("void"), Params: params, Body: body})
}

// Device appends a __device__ function returning ret.
func (b *Builder) Device(ret, name string, params []*cuast.VarDecl, body *cuast.Stmt) *cuast.FuncDecl {
	return b.addFunc(&cuast.FuncDecl{Name: name, Kind: cuast.FuncDevice, Result: T(ret), Params: params, Body: body})
}

// Host appends a host function.
func (b *Builder) Host(ret, name string, params []*cuast.VarDecl, body *cuast.Stmt) *cuast.FuncDecl {
	return b.addFunc(&cuast.FuncDecl{Name: name, Kind: cuast.FuncHost, Result: T(ret), Params: params, Body: body})
}

// Global appends a file-scope variable.
func (b *Builder) Global(v *cuast.VarDecl) *cuast.VarDecl {
	b.unit.Decls = append(b.unit.Decls, &cuast.Decl{Kind: cuast.DeclVar, Name: v.Name, Span: v.Span, Var: v})
	return v
}

// Struct appends a complete structure definition.
func (b *Builder) Struct(name string, fields ...*cuast.VarDecl) *cuast.RecordDecl {
	r := &cuast.RecordDecl{Name: name, Tag: "struct", Fields: fields, Complete: true, Span: source.Span{File: b.file}}
	b.unit.Decls = append(b.unit.Decls, &cuast.Decl{Kind: cuast.DeclRecord, Name: name, Span: r.Span, Record: r})
	return r
}
