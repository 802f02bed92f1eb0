package ispc

import (
	"fmt"
	"strings"

	"github.com/blockspacer/spmdfy/internal/cuast"
)

type declScope uint8

const (
	scopeLocal declScope = iota
	scopeGlobal
	scopeParam
	scopeField
)

// Declaration renders a variable declaration without the terminating
// semicolon.
func (e *Emitter) Declaration(v *cuast.VarDecl, scope declScope) string {
	t := v.Type
	prefix := ""
	switch {
	case v.Shared:
		prefix = "uniform "
	case scope == scopeGlobal:
		prefix = "const uniform "
	}

	name := v.Name
	var base string
	canon := t.Canonical()
	switch {
	case canon != nil && canon.Kind == cuast.TypeIncompleteArray && v.Shared:
		elem := e.TypeString(canon.Elem)
		return fmt.Sprintf("%s%s * %s = uniform new uniform %s[%s]", prefix, elem, name, elem, e.opts.SharedSize)
	case canon.IsConstantArray():
		cur := canon
		for cur.IsConstantArray() {
			name += fmt.Sprintf("[%d]", cur.Len)
			cur = cur.Elem
		}
		base = e.TypeString(cur)
	default:
		base = e.TypeString(t)
	}

	if prefix == "const uniform " {
		base = strings.TrimPrefix(base, "const ")
	}
	decl := prefix + base + " " + name
	if scope == scopeField || scope == scopeParam {
		return decl
	}
	if init, ok := e.initializer(v, base); ok {
		decl += " = " + init
	}
	return decl
}

// initializer renders the initial value of v, applying the null-pointer,
// narrow character and constructor rewrites.
func (e *Emitter) initializer(v *cuast.VarDecl, base string) (string, bool) {
	if v.Init == nil {
		return "", false
	}
	canon := v.Type.Canonical()
	init := v.Init.StripImplicitCasts()
	switch {
	case canon.IsPointer() && v.Init.IsNullPointer():
		return e.opts.NullToken, true
	case strings.Contains(base, "int8") && init.Kind == cuast.ExprCharLit && init.Value != "":
		return init.Value, true
	case init.Kind == cuast.ExprConstruct && canon != nil && !canon.IsBuiltin():
		if len(init.Args) == 0 {
			return "", false
		}
		return e.construct(base, init), true
	}
	return flatten(e.Expr(v.Init)), true
}

// construct renders a constructor call as <base>_ctor_<argtypes>(args).
func (e *Emitter) construct(base string, c *cuast.Expr) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("_ctor")
	args := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		b.WriteByte('_')
		b.WriteString(identifier(a.Type.String()))
		args = append(args, flatten(e.Expr(a)))
	}
	b.WriteByte('(')
	b.WriteString(strings.Join(args, ", "))
	b.WriteByte(')')
	return b.String()
}

// identifier replaces every run of characters not allowed in an
// identifier with a single underscore.
func identifier(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.TrimSpace(s) {
		ok := r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
		if !ok {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte('_')
		}
		pending = false
		b.WriteRune(r)
	}
	return b.String()
}

// TypeString translates a source type: qualifiers first, then the mapped
// builtin, the pointee followed by "*", the record name, or the element
// type of an incomplete array.
func (e *Emitter) TypeString(t *cuast.Type) string {
	if t == nil {
		return ""
	}
	q := ""
	if t.Quals != 0 {
		q = t.Quals.String() + " "
	}
	switch t.Kind {
	case cuast.TypeBuiltin, cuast.TypeRecord:
		return q + e.opts.Tables.BaseType(t.Name)
	case cuast.TypePointer:
		return e.TypeString(t.Elem) + "*" + strings.TrimSuffix(" "+q, " ")
	case cuast.TypeIncompleteArray, cuast.TypeConstantArray:
		return q + e.TypeString(t.Elem)
	default:
		if mapped := e.opts.Tables.BaseType(t.Name); mapped != t.Name || t.Desugared == nil {
			return q + mapped
		}
		return q + e.TypeString(t.Desugared.Unqualified())
	}
}
