package ispc

import (
	"slices"
	"strings"

	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/source"
)

// Expr renders an expression from its source text, rewriting atomic
// intrinsic calls and device function calls wherever they occur.
func (e *Emitter) Expr(x *cuast.Expr) string {
	if x == nil {
		return ""
	}
	if x.Kind == cuast.ExprCall {
		if s, ok := e.call(x); ok {
			return s
		}
	}
	if x.Span.Empty() {
		// Implicit nodes have no text of their own.
		if len(x.Args) == 1 {
			return e.Expr(x.Args[0])
		}
		return ""
	}
	return e.splice(x.Span, x.Args)
}

// splice returns the text of sp with each child's text replaced by its
// rendering.
func (e *Emitter) splice(sp source.Span, children []*cuast.Expr) string {
	text := e.src.Text(sp)
	if text == "" {
		return ""
	}
	var edits []edit
	e.collect(sp, children, &edits)
	if len(edits) == 0 {
		return text
	}
	slices.SortFunc(edits, func(a, b edit) int { return int(a.start) - int(b.start) })
	var b strings.Builder
	pos := uint32(0)
	for _, ed := range edits {
		if ed.start < pos {
			continue
		}
		b.WriteString(text[pos:ed.start])
		b.WriteString(ed.repl)
		pos = ed.end
	}
	b.WriteString(text[pos:])
	return b.String()
}

type edit struct {
	start, end uint32
	repl       string
}

// collect records replacements for the children of a node spanning sp.
// Children without text of their own are looked through.
func (e *Emitter) collect(sp source.Span, children []*cuast.Expr, edits *[]edit) {
	for _, c := range children {
		switch {
		case c == nil:
			continue
		case c.Span.Empty():
			if c.Kind == cuast.ExprCall {
				continue
			}
			e.collect(sp, c.Args, edits)
			continue
		case c.Span.File != sp.File || c.Span.Start < sp.Start || c.Span.End > sp.End:
			continue
		}
		repl := e.Expr(c)
		if repl == e.src.Text(c.Span) {
			continue
		}
		*edits = append(*edits, edit{c.Span.Start - sp.Start, c.Span.End - sp.Start, repl})
	}
}

// call rewrites atomic intrinsics through the atomic table and calls to
// device functions through ISPC_DEVICE_CALL.
func (e *Emitter) call(x *cuast.Expr) (string, bool) {
	if a, ok := e.opts.Tables.Atomic(x.Callee); ok && len(x.Args) >= a.Args {
		args := make([]string, a.Args)
		for i := range args {
			args[i] = e.Expr(x.Args[i])
		}
		return a.Name + "(" + strings.Join(args, ", ") + ")", true
	}
	if e.opts.DeviceFunctions[x.Callee] {
		var args []string
		for _, arg := range x.Args {
			args = append(args, e.Expr(arg))
		}
		return signatureMacro("ISPC_DEVICE_CALL", []string{x.Callee}, args), true
	}
	return "", false
}
