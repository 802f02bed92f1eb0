// Package ispc renders restructured chains as ISPC source built on the
// loop-nest macros of the preamble.
package ispc

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/blockspacer/spmdfy/internal/chain"
	"github.com/blockspacer/spmdfy/internal/ctxlog"
	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/typemap"
)

const indentUnit = "    "

// Options configures emission.
type Options struct {
	// Tables maps type names and atomic intrinsics. Nil means typemap.Default.
	Tables *typemap.Tables
	// DeviceFunctions names the functions whose calls are routed through
	// ISPC_DEVICE_CALL.
	DeviceFunctions map[string]bool
	// NullToken replaces null pointer initializers. Default "NULL".
	NullToken string
	// SharedSize is the element count of dynamically sized shared arrays.
	// Default "shared_memory_size".
	SharedSize string
}

func (o Options) withDefaults() Options {
	if o.Tables == nil {
		o.Tables = typemap.Default()
	}
	if o.NullToken == "" {
		o.NullToken = "NULL"
	}
	if o.SharedSize == "" {
		o.SharedSize = "shared_memory_size"
	}
	return o
}

// Emitter renders items of one translation unit. It holds no state across
// calls and may be shared by goroutines.
type Emitter struct {
	src  *cuast.Unit
	opts Options
}

func New(src *cuast.Unit, opts Options) *Emitter {
	return &Emitter{src: src, opts: opts.withDefaults()}
}

// EmitUnit renders the preamble followed by every item of u in order.
func EmitUnit(ctx context.Context, u *chain.Unit, opts Options) (string, error) {
	if opts.DeviceFunctions == nil {
		opts.DeviceFunctions = u.DeviceFunctions()
	}
	e := New(u.Source, opts)
	var b strings.Builder
	b.WriteString(Preamble())
	for _, it := range u.Items {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := e.Item(ctx, it)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// Item renders one unit item followed by a blank line.
func (e *Emitter) Item(ctx context.Context, it chain.Item) (string, error) {
	switch {
	case it.Chain != nil:
		return e.Chain(ctx, it.Chain)
	case it.Decl != nil:
		return e.Decl(it.Decl), nil
	}
	return "", nil
}

// Decl renders a file-scope node.
func (e *Emitter) Decl(n *chain.Node) string {
	switch n.Kind {
	case chain.KindGlobalVariable:
		return e.Declaration(n.Var, scopeGlobal) + ";\n\n"
	case chain.KindStructureDeclaration:
		return e.Struct(n.Record) + "\n"
	}
	return ""
}

// Struct renders a structure definition.
func (e *Emitter) Struct(r *cuast.RecordDecl) string {
	var b strings.Builder
	fmt.Fprintf(&b, "struct %s{\n", r.Name)
	for _, f := range r.Fields {
		b.WriteString(indentUnit)
		b.WriteString(e.Declaration(f, scopeField))
		b.WriteString(";\n")
	}
	b.WriteString("};\n")
	return b.String()
}

// Chain renders a kernel or device function chain.
func (e *Emitter) Chain(ctx context.Context, c *chain.Chain) (string, error) {
	log := ctxlog.FromContext(ctx).With(zap.String("func", c.Name))
	w := &chainWriter{e: e}
	err := c.Walk(func(id chain.NodeID, n *chain.Node) bool {
		w.node(n)
		if log.Core().Enabled(zap.DebugLevel) {
			log.Debug("emit", zap.Uint32("node", uint32(id)), zap.Stringer("kind", n.Kind))
		}
		return true
	})
	if err != nil {
		return "", fmt.Errorf("emit %s: %w", c.Name, err)
	}
	w.b.WriteString("\n")
	return w.b.String(), nil
}

type chainWriter struct {
	e     *Emitter
	b     strings.Builder
	depth int
}

func (w *chainWriter) line(depth int, s string) {
	if s == "" {
		return
	}
	w.b.WriteString(strings.Repeat(indentUnit, max(depth, 0)))
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

func (w *chainWriter) open(s string) {
	w.line(w.depth, s)
	w.depth++
}

func (w *chainWriter) close(s string) {
	w.depth = max(w.depth-1, 0)
	w.line(w.depth, s)
}

func (w *chainWriter) node(n *chain.Node) {
	e := w.e
	switch n.Kind {
	case chain.KindKernelEntry:
		w.open(e.kernelHeader(n.Func))
	case chain.KindDeviceFunctionEntry:
		w.open(e.deviceHeader(n.Func))
	case chain.KindScopeExit:
		w.close("}")
	case chain.KindGridScopeOpen:
		w.open("ISPC_GRID_START")
	case chain.KindGridScopeClose:
		w.close("ISPC_GRID_END")
	case chain.KindBlockScopeOpen:
		w.open("ISPC_BLOCK_START")
	case chain.KindBlockScopeClose:
		w.close("ISPC_BLOCK_END")
	case chain.KindBranch, chain.KindLoop:
		w.open(flatten(n.Header) + " {")
	case chain.KindElse:
		w.line(w.depth-1, "} else {")
	case chain.KindReconverge:
		if n.Header != "" {
			w.close("} " + flatten(n.Header))
		} else {
			w.close("}")
		}
	case chain.KindInternal:
		w.line(w.depth, e.Internal(n))
	}
}

// Internal renders the statement an Internal node wraps.
func (e *Emitter) Internal(n *chain.Node) string {
	switch {
	case n.Var != nil:
		return e.Declaration(n.Var, scopeLocal) + ";"
	case n.Expr != nil:
		return flatten(e.Expr(n.Expr)) + ";"
	case n.Stmt != nil:
		text := flatten(e.stmtText(n.Stmt))
		if text == "" || strings.HasSuffix(text, ";") || strings.HasSuffix(text, "}") {
			return text
		}
		return text + ";"
	}
	return ""
}

func (e *Emitter) stmtText(s *cuast.Stmt) string {
	if s.Kind == cuast.StmtReturn && s.Expr != nil {
		return e.splice(s.Span, []*cuast.Expr{s.Expr})
	}
	return e.src.Text(s.Span)
}

func (e *Emitter) kernelHeader(fn *cuast.FuncDecl) string {
	if fn == nil {
		return ""
	}
	var params []string
	for _, p := range fn.Params {
		params = append(params, e.param(p))
	}
	return signatureMacro("ISPC_KERNEL", []string{fn.Name}, params) + "{"
}

func (e *Emitter) deviceHeader(fn *cuast.FuncDecl) string {
	if fn == nil {
		return ""
	}
	var params []string
	for _, p := range fn.Params {
		if p.Type.Canonical().IsPointer() {
			params = append(params, e.param(p))
			continue
		}
		params = append(params, e.Declaration(p, scopeParam))
	}
	return signatureMacro("ISPC_DEVICE_FUNCTION", []string{e.TypeString(fn.Result), fn.Name}, params) + "{"
}

// signatureMacro renders a call to one of the variadic preamble macros.
// An empty argument list selects the _NOARGS variant so the expansion has
// no trailing comma.
func signatureMacro(name string, fixed, args []string) string {
	if len(args) == 0 {
		name += "_NOARGS"
	}
	return name + "(" + strings.Join(append(fixed, args...), ", ") + ")"
}

// param renders pointers as uniform arrays of their pointee and every
// other parameter as a uniform declaration.
func (e *Emitter) param(p *cuast.VarDecl) string {
	if t := p.Type.Canonical(); t.IsPointer() {
		return "uniform " + e.TypeString(t.Elem) + " " + p.Name + "[]"
	}
	return "uniform " + e.Declaration(p, scopeParam)
}

// flatten joins multi-line source text into one line.
func flatten(s string) string {
	if !strings.ContainsAny(s, "\n\r\t") {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}
