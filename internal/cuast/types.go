package cuast

import (
	"fmt"
	"strconv"
	"strings"
)

type TypeKind uint8

const (
	TypeNamed TypeKind = iota // typedef or otherwise unresolved name
	TypeBuiltin
	TypePointer
	TypeRecord
	TypeConstantArray
	TypeIncompleteArray
)

func (k TypeKind) String() string {
	switch k {
	case TypeBuiltin:
		return "builtin"
	case TypePointer:
		return "pointer"
	case TypeRecord:
		return "record"
	case TypeConstantArray:
		return "constant-array"
	case TypeIncompleteArray:
		return "incomplete-array"
	default:
		return "named"
	}
}

type Qualifiers uint8

const (
	QualConst Qualifiers = 1 << iota
	QualVolatile
	QualRestrict
)

// String renders qualifiers in declaration order, space separated.
func (q Qualifiers) String() string {
	parts := make([]string, 0, 3)
	if q&QualConst != 0 {
		parts = append(parts, "const")
	}
	if q&QualVolatile != 0 {
		parts = append(parts, "volatile")
	}
	if q&QualRestrict != 0 {
		parts = append(parts, "__restrict")
	}
	return strings.Join(parts, " ")
}

// Type is a source-level type as reported by the AST-provider.
type Type struct {
	Kind  TypeKind
	Name  string // builtin spelling, record or typedef name
	Quals Qualifiers
	Elem  *Type // pointee or array element
	Len   int64 // constant array length
	// Desugared is the canonical type behind a typedef, if known.
	Desugared *Type
}

func (t *Type) IsBuiltin() bool       { return t != nil && t.Kind == TypeBuiltin }
func (t *Type) IsPointer() bool       { return t != nil && t.Kind == TypePointer }
func (t *Type) IsConstantArray() bool { return t != nil && t.Kind == TypeConstantArray }

// IsIncomplete reports whether the type has no known size.
func (t *Type) IsIncomplete() bool {
	if t == nil {
		return false
	}
	if t.Kind == TypeIncompleteArray {
		return true
	}
	return t.Kind == TypeBuiltin && t.Name == "void"
}

// Unqualified returns a copy of t without top-level qualifiers.
func (t *Type) Unqualified() *Type {
	if t == nil || t.Quals == 0 {
		return t
	}
	cp := *t
	cp.Quals = 0
	return &cp
}

// Canonical follows typedef sugar down to the underlying type, keeping the
// qualifiers written on the sugared type.
func (t *Type) Canonical() *Type {
	cur := t
	for cur != nil && cur.Kind == TypeNamed && cur.Desugared != nil {
		next := *cur.Desugared
		next.Quals |= cur.Quals
		cur = &next
	}
	return cur
}

// String renders t in C declaration-specifier form, e.g. "const float *".
func (t *Type) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypePointer:
		s := t.Elem.String()
		if !strings.HasSuffix(s, "*") {
			s += " "
		}
		s += "*"
		if t.Quals != 0 {
			s += t.Quals.String()
		}
		return s
	case TypeConstantArray, TypeIncompleteArray:
		base, dims := t.arrayParts()
		return base.String() + " " + dims
	case TypeRecord:
		return withQuals(t.Quals, t.Name)
	default:
		return withQuals(t.Quals, t.Name)
	}
}

func (t *Type) arrayParts() (*Type, string) {
	var b strings.Builder
	cur := t
	for cur != nil && (cur.Kind == TypeConstantArray || cur.Kind == TypeIncompleteArray) {
		if cur.Kind == TypeConstantArray {
			fmt.Fprintf(&b, "[%d]", cur.Len)
		} else {
			b.WriteString("[]")
		}
		cur = cur.Elem
	}
	return cur, b.String()
}

func withQuals(q Qualifiers, name string) string {
	if q == 0 {
		return name
	}
	return q.String() + " " + name
}

var builtinWords = map[string]bool{
	"void": true, "bool": true, "_Bool": true, "char": true, "short": true,
	"int": true, "long": true, "float": true, "double": true, "signed": true,
	"unsigned": true, "__half": true, "half": true, "wchar_t": true,
	"char16_t": true, "char32_t": true, "__int128": true,
}

// ParseType parses a clang qualType spelling such as "const float *",
// "float [16][16]", "struct Point" or "unsigned int". Function types yield
// their result type. Spellings it cannot structure are returned as TypeNamed.
func ParseType(spelling string) (*Type, error) {
	s := strings.TrimSpace(spelling)
	if s == "" {
		return nil, fmt.Errorf("empty type spelling")
	}
	if strings.Contains(s, "(anonymous") || strings.Contains(s, "(unnamed") {
		return &Type{Kind: TypeNamed, Name: s}, nil
	}
	if i := strings.Index(s, "("); i >= 0 {
		// Function type "int (int *, float)" or a declarator we do not
		// model such as "int (*)[4]".
		if i > 0 && strings.HasSuffix(strings.TrimSpace(s), ")") && !strings.HasPrefix(s[i:], "(*") {
			return ParseType(s[:i])
		}
		return &Type{Kind: TypeNamed, Name: s}, nil
	}
	toks := tokenizeType(s)
	p := typeParser{toks: toks}
	return p.parse(s)
}

// ParseTypeWithSugar parses spelling and, when desugared is non-empty,
// attaches it as the canonical type behind a named spelling.
func ParseTypeWithSugar(spelling, desugared string) (*Type, error) {
	t, err := ParseType(spelling)
	if err != nil {
		return nil, err
	}
	if desugared == "" || desugared == spelling {
		return t, nil
	}
	d, err := ParseType(desugared)
	if err != nil {
		return nil, err
	}
	attachSugar(t, d)
	return t, nil
}

// attachSugar walks t and d in parallel and hangs the desugared leaf under
// the first named leaf of t.
func attachSugar(t, d *Type) {
	for t != nil && d != nil {
		if t.Kind == TypeNamed {
			leaf := *d
			leaf.Quals &^= t.Quals
			t.Desugared = &leaf
			return
		}
		if t.Kind != d.Kind || t.Elem == nil {
			return
		}
		t, d = t.Elem, d.Elem
	}
}

func tokenizeType(s string) []string {
	var toks []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '*' || c == '&' || c == '[' || c == ']':
			toks = append(toks, string(c))
			i++
		default:
			j := i
			for j < len(s) && !strings.ContainsRune(" \t*&[]", rune(s[j])) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks
}

type typeParser struct {
	toks []string
	pos  int
}

func (p *typeParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *typeParser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func qualifierOf(tok string) Qualifiers {
	switch tok {
	case "const":
		return QualConst
	case "volatile":
		return QualVolatile
	case "__restrict", "restrict", "__restrict__":
		return QualRestrict
	}
	return 0
}

func (p *typeParser) parse(spelling string) (*Type, error) {
	var quals Qualifiers
	var words []string
	tag := ""
	for {
		tok := p.peek()
		if tok == "" || tok == "*" || tok == "&" || tok == "[" {
			break
		}
		p.next()
		if q := qualifierOf(tok); q != 0 {
			quals |= q
			continue
		}
		switch tok {
		case "struct", "class", "union", "enum":
			tag = tok
			continue
		}
		words = append(words, tok)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("type %q: missing base type", spelling)
	}

	var t *Type
	switch {
	case tag != "" && tag != "enum":
		t = &Type{Kind: TypeRecord, Name: strings.Join(words, " ")}
	case tag == "enum":
		t = &Type{Kind: TypeNamed, Name: strings.Join(words, " ")}
	case allBuiltinWords(words):
		t = &Type{Kind: TypeBuiltin, Name: canonicalBuiltin(words)}
	default:
		t = &Type{Kind: TypeNamed, Name: strings.Join(words, " ")}
	}
	t.Quals = quals

	for {
		tok := p.peek()
		switch tok {
		case "*":
			p.next()
			t = &Type{Kind: TypePointer, Elem: t}
			for q := qualifierOf(p.peek()); q != 0; q = qualifierOf(p.peek()) {
				t.Quals |= q
				p.next()
			}
		case "&":
			// References are carried as their referee; the target model
			// passes uniforms by reference through the kernel macros.
			p.next()
		case "[":
			return p.parseArrays(t, spelling)
		case "":
			return t, nil
		default:
			return nil, fmt.Errorf("type %q: unexpected token %q", spelling, tok)
		}
	}
}

func (p *typeParser) parseArrays(elem *Type, spelling string) (*Type, error) {
	type dim struct {
		incomplete bool
		n          int64
	}
	var dims []dim
	for p.peek() == "[" {
		p.next()
		tok := p.next()
		if tok == "]" {
			dims = append(dims, dim{incomplete: true})
			continue
		}
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("type %q: bad array bound %q: %w", spelling, tok, err)
		}
		if p.next() != "]" {
			return nil, fmt.Errorf("type %q: unterminated array bound", spelling)
		}
		dims = append(dims, dim{n: n})
	}
	if p.peek() != "" {
		return nil, fmt.Errorf("type %q: trailing tokens after array bounds", spelling)
	}
	t := elem
	for i := len(dims) - 1; i >= 0; i-- {
		if dims[i].incomplete {
			t = &Type{Kind: TypeIncompleteArray, Elem: t}
		} else {
			t = &Type{Kind: TypeConstantArray, Elem: t, Len: dims[i].n}
		}
	}
	return t, nil
}

func allBuiltinWords(words []string) bool {
	for _, w := range words {
		if !builtinWords[w] {
			return false
		}
	}
	return true
}

// canonicalBuiltin normalises multi-word builtin spellings to the form the
// mapping tables are keyed by ("unsigned" -> "unsigned int",
// "long int" -> "long", "_Bool" -> "bool").
func canonicalBuiltin(words []string) string {
	var unsigned, signed bool
	var longs, shorts int
	var rest []string
	hasInt := false
	for _, w := range words {
		switch w {
		case "unsigned":
			unsigned = true
		case "signed":
			signed = true
		case "long":
			longs++
		case "short":
			shorts++
		case "int":
			hasInt = true
		case "_Bool":
			rest = append(rest, "bool")
		default:
			rest = append(rest, w)
		}
	}
	var parts []string
	if unsigned {
		parts = append(parts, "unsigned")
	}
	switch {
	case shorts > 0:
		parts = append(parts, "short")
	case longs > 0:
		for i := 0; i < longs; i++ {
			parts = append(parts, "long")
		}
	}
	if len(rest) > 0 {
		if signed && len(rest) == 1 && rest[0] == "char" {
			parts = append(parts, "signed")
		}
		parts = append(parts, rest...)
	} else if shorts == 0 && longs == 0 && (hasInt || unsigned || signed) {
		parts = append(parts, "int")
	}
	return strings.Join(parts, " ")
}
