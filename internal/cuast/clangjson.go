package cuast

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"github.com/blockspacer/spmdfy/internal/source"
)

// ErrNotTranslationUnit is returned when the JSON root is not a
// TranslationUnitDecl.
var ErrNotTranslationUnit = errors.New("clang AST root is not a TranslationUnitDecl")

// LoadOptions configures LoadClangJSON.
type LoadOptions struct {
	// MainFile is the path clang reported for the translated source. Only
	// declarations spelled in that file are kept. When empty, the file of the
	// last top-level declaration is used.
	MainFile string
	// Source is the main file content. When nil it is read from disk.
	Source []byte
}

type clangLoc struct {
	Offset       *int      `json:"offset"`
	File         string    `json:"file"`
	TokLen       int       `json:"tokLen"`
	SpellingLoc  *clangLoc `json:"spellingLoc"`
	ExpansionLoc *clangLoc `json:"expansionLoc"`

	file string // resolved file, clang omits repeats
}

type clangRange struct {
	Begin clangLoc `json:"begin"`
	End   clangLoc `json:"end"`
}

type clangType struct {
	QualType          string `json:"qualType"`
	DesugaredQualType string `json:"desugaredQualType"`
}

type clangNode struct {
	Kind               string          `json:"kind"`
	Name               string          `json:"name"`
	Loc                clangLoc        `json:"loc"`
	Range              clangRange      `json:"range"`
	Type               *clangType      `json:"type"`
	IsImplicit         bool            `json:"isImplicit"`
	Init               string          `json:"init"`
	Opcode             string          `json:"opcode"`
	Value              json.RawMessage `json:"value"`
	CastKind           string          `json:"castKind"`
	HasInit            bool            `json:"hasInit"`
	HasVar             bool            `json:"hasVar"`
	HasElse            bool            `json:"hasElse"`
	TagUsed            string          `json:"tagUsed"`
	CompleteDefinition bool            `json:"completeDefinition"`
	ReferencedDecl     *clangNode      `json:"referencedDecl"`
	Inner              []*clangNode    `json:"inner"`
}

func (n *clangNode) empty() bool { return n == nil || n.Kind == "" }

func (n *clangNode) file() string {
	if n.Loc.file != "" {
		return n.Loc.file
	}
	return n.Range.Begin.file
}

func (n *clangNode) hasAttr(kind string) bool {
	for _, in := range n.Inner {
		if in != nil && in.Kind == kind {
			return true
		}
	}
	return false
}

// LoadClangJSON converts the output of `clang -Xclang -ast-dump=json` into a
// Unit whose spans index the main file registered in files.
func LoadClangJSON(data []byte, files *source.FileSet, opts LoadOptions) (*Unit, error) {
	var root clangNode
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode clang AST: %w", err)
	}
	if root.Kind != "TranslationUnitDecl" {
		return nil, fmt.Errorf("%w (got %q)", ErrNotTranslationUnit, root.Kind)
	}

	cur := ""
	resolveFiles(&root, &cur)

	mainFile := opts.MainFile
	if mainFile == "" {
		for i := len(root.Inner) - 1; i >= 0; i-- {
			if n := root.Inner[i]; !n.empty() && !n.IsImplicit && n.file() != "" {
				mainFile = n.file()
				break
			}
		}
	}
	if mainFile == "" {
		return nil, fmt.Errorf("clang AST has no declarations with a source location")
	}

	content := opts.Source
	if content == nil {
		// #nosec G304 -- path is provided by the caller
		raw, err := os.ReadFile(mainFile)
		if err != nil {
			return nil, fmt.Errorf("read main file: %w", err)
		}
		content = raw
	}
	// Offsets index the bytes clang read, so the content is added verbatim.
	fileID := files.Add(mainFile, content, 0)

	l := &loader{files: files, fileID: fileID, mainFile: mainFile}
	unit := &Unit{Files: files, File: fileID}
	l.collectDecls(root.Inner, unit)
	return unit, nil
}

func resolveFiles(n *clangNode, cur *string) {
	if n == nil {
		return
	}
	resolveLoc(&n.Loc, cur)
	resolveLoc(&n.Range.Begin, cur)
	resolveLoc(&n.Range.End, cur)
	for _, in := range n.Inner {
		resolveFiles(in, cur)
	}
}

func resolveLoc(l *clangLoc, cur *string) {
	if l.SpellingLoc != nil || l.ExpansionLoc != nil {
		if l.SpellingLoc != nil {
			resolveLoc(l.SpellingLoc, cur)
		}
		if l.ExpansionLoc != nil {
			resolveLoc(l.ExpansionLoc, cur)
			l.file = l.ExpansionLoc.file
		}
		return
	}
	if l.File != "" {
		*cur = l.File
	}
	if l.Offset != nil {
		l.file = *cur
	}
}

type loader struct {
	files    *source.FileSet
	fileID   source.FileID
	mainFile string
}

func (l *loader) inMain(n *clangNode) bool {
	f := n.file()
	if f == "" {
		return false
	}
	if f == l.mainFile {
		return true
	}
	return filepath.Clean(f) == filepath.Clean(l.mainFile)
}

func (l *loader) collectDecls(nodes []*clangNode, unit *Unit) {
	for _, n := range nodes {
		if n.empty() || n.IsImplicit || !l.inMain(n) {
			continue
		}
		switch n.Kind {
		case "NamespaceDecl", "LinkageSpecDecl":
			unit.Decls = append(unit.Decls, &Decl{Kind: DeclNamespace, Name: n.Name, Span: l.span(n)})
			l.collectDecls(n.Inner, unit)
		default:
			if d := l.decl(n); d != nil {
				unit.Decls = append(unit.Decls, d)
			}
		}
	}
}

func (l *loader) decl(n *clangNode) *Decl {
	switch n.Kind {
	case "VarDecl":
		v := l.varDecl(n)
		return &Decl{Kind: DeclVar, Name: v.Name, Span: v.Span, Var: v}
	case "FunctionDecl":
		f := l.funcDecl(n)
		return &Decl{Kind: DeclFunc, Name: f.Name, Span: f.Span, Func: f}
	case "CXXRecordDecl", "RecordDecl":
		r := l.recordDecl(n)
		return &Decl{Kind: DeclRecord, Name: r.Name, Span: r.Span, Record: r}
	default:
		return &Decl{Kind: DeclOther, Name: n.Name, Span: l.span(n)}
	}
}

func (l *loader) varDecl(n *clangNode) *VarDecl {
	v := &VarDecl{
		Name:   n.Name,
		Type:   l.typeOf(n),
		Shared: n.hasAttr("CUDASharedAttr"),
		Param:  n.Kind == "ParmVarDecl",
		Span:   l.span(n),
	}
	if n.Init != "" {
		for _, in := range n.Inner {
			if in.empty() || strings.HasSuffix(in.Kind, "Attr") {
				continue
			}
			v.Init = l.expr(in)
			break
		}
	}
	return v
}

func (l *loader) funcDecl(n *clangNode) *FuncDecl {
	f := &FuncDecl{
		Name:   n.Name,
		Result: l.typeOf(n),
		Span:   l.span(n),
	}
	switch {
	case n.hasAttr("CUDAGlobalAttr"):
		f.Kind = FuncKernel
	case n.hasAttr("CUDADeviceAttr"):
		f.Kind = FuncDevice
	}
	for _, in := range n.Inner {
		switch {
		case in.empty():
		case in.Kind == "ParmVarDecl":
			f.Params = append(f.Params, l.varDecl(in))
		case in.Kind == "CompoundStmt":
			f.Body = l.stmt(in)
		}
	}
	return f
}

func (l *loader) recordDecl(n *clangNode) *RecordDecl {
	r := &RecordDecl{
		Name:     n.Name,
		Tag:      n.TagUsed,
		Complete: n.CompleteDefinition,
		Span:     l.span(n),
	}
	for _, in := range n.Inner {
		if !in.empty() && in.Kind == "FieldDecl" {
			r.Fields = append(r.Fields, l.varDecl(in))
		}
	}
	return r
}

func (l *loader) typeOf(n *clangNode) *Type {
	if n.Type == nil || n.Type.QualType == "" {
		return nil
	}
	t, err := ParseTypeWithSugar(n.Type.QualType, n.Type.DesugaredQualType)
	if err != nil {
		return &Type{Kind: TypeNamed, Name: n.Type.QualType}
	}
	return t
}

func (l *loader) offsetOf(loc *clangLoc) (int, int, bool) {
	if loc.ExpansionLoc != nil {
		loc = loc.ExpansionLoc
	}
	if loc.Offset == nil {
		return 0, 0, false
	}
	return *loc.Offset, loc.TokLen, true
}

func (l *loader) span(n *clangNode) source.Span {
	begin, _, ok := l.offsetOf(&n.Range.Begin)
	if !ok {
		return source.Span{File: l.fileID}
	}
	end, tokLen, ok := l.offsetOf(&n.Range.End)
	if !ok {
		return source.Span{File: l.fileID}
	}
	start, err := safecast.Conv[uint32](begin)
	if err != nil {
		return source.Span{File: l.fileID}
	}
	stop, err := safecast.Conv[uint32](end + tokLen)
	if err != nil || stop < start {
		return source.Span{File: l.fileID}
	}
	return source.Span{File: l.fileID, Start: start, End: stop}
}

func (l *loader) text(sp source.Span) string {
	f := l.files.Get(sp.File)
	if f == nil || sp.Empty() || int(sp.End) > len(f.Content) {
		return ""
	}
	return string(f.Content[sp.Start:sp.End])
}

// headerText is the source between the statement start and the start of
// its body, e.g. "for (int i = 0; i < n; ++i)".
func (l *loader) headerText(n, body *clangNode) string {
	sp := l.span(n)
	bodySpan := l.span(body)
	if sp.Empty() || bodySpan.Empty() || bodySpan.Start < sp.Start {
		return ""
	}
	return strings.TrimSpace(l.text(source.Span{File: sp.File, Start: sp.Start, End: bodySpan.Start}))
}

func (l *loader) stmt(n *clangNode) *Stmt {
	if n.empty() {
		return nil
	}
	s := &Stmt{Span: l.span(n)}
	switch n.Kind {
	case "CompoundStmt":
		s.Kind = StmtCompound
		for _, in := range n.Inner {
			if child := l.stmt(in); child != nil {
				s.Body = append(s.Body, child)
			}
		}
	case "DeclStmt":
		s.Kind = StmtDecl
		for _, in := range n.Inner {
			if !in.empty() && in.Kind == "VarDecl" {
				s.Decls = append(s.Decls, l.varDecl(in))
			}
		}
	case "IfStmt":
		s.Kind = StmtIf
		idx := 0
		if n.HasInit {
			idx++
		}
		if n.HasVar {
			idx++
		}
		if idx+1 >= len(n.Inner) {
			s.Kind = StmtOther
			s.Construct = n.Kind
			return s
		}
		s.Cond = l.expr(n.Inner[idx])
		thenNode := n.Inner[idx+1]
		s.Then = l.stmt(thenNode)
		if n.HasElse && idx+2 < len(n.Inner) {
			s.Else = l.stmt(n.Inner[idx+2])
		}
		s.Header = l.headerText(n, thenNode)
		if s.Header == "" {
			s.Header = "if (" + l.text(s.Cond.Span) + ")"
		}
	case "ForStmt":
		s.Kind = StmtFor
		if len(n.Inner) != 5 {
			s.Kind = StmtOther
			s.Construct = n.Kind
			return s
		}
		if !n.Inner[2].empty() {
			s.Cond = l.expr(n.Inner[2])
		}
		s.Loop = l.stmt(n.Inner[4])
		s.Header = l.headerText(n, n.Inner[4])
	case "WhileStmt":
		s.Kind = StmtWhile
		if len(n.Inner) < 2 {
			s.Kind = StmtOther
			s.Construct = n.Kind
			return s
		}
		body := n.Inner[len(n.Inner)-1]
		s.Cond = l.expr(n.Inner[len(n.Inner)-2])
		s.Loop = l.stmt(body)
		s.Header = l.headerText(n, body)
	case "DoStmt":
		s.Kind = StmtDo
		if len(n.Inner) != 2 {
			s.Kind = StmtOther
			s.Construct = n.Kind
			return s
		}
		s.Loop = l.stmt(n.Inner[0])
		s.Cond = l.expr(n.Inner[1])
		s.Header = "do"
		s.Trailer = "while (" + l.text(s.Cond.Span) + ");"
	case "ReturnStmt":
		s.Kind = StmtReturn
		if len(n.Inner) > 0 && !n.Inner[0].empty() {
			s.Expr = l.expr(n.Inner[0])
		}
	case "NullStmt":
		s.Kind = StmtNull
	default:
		if isExprKind(n.Kind) {
			s.Kind = StmtExpr
			s.Expr = l.expr(n)
			return s
		}
		s.Kind = StmtOther
		s.Construct = n.Kind
	}
	return s
}

func isExprKind(kind string) bool {
	return strings.HasSuffix(kind, "Expr") ||
		strings.HasSuffix(kind, "Operator") ||
		strings.HasSuffix(kind, "Literal")
}

var transparentExprs = map[string]bool{
	"ExprWithCleanups":         true,
	"ConstantExpr":             true,
	"MaterializeTemporaryExpr": true,
	"CXXBindTemporaryExpr":     true,
}

func (l *loader) expr(n *clangNode) *Expr {
	if n.empty() {
		return nil
	}
	if transparentExprs[n.Kind] && len(n.Inner) == 1 {
		return l.expr(n.Inner[0])
	}
	e := &Expr{Span: l.span(n), Type: l.typeOf(n)}
	switch n.Kind {
	case "CallExpr", "CUDAKernelCallExpr", "CXXMemberCallExpr":
		e.Kind = ExprCall
		if len(n.Inner) > 0 {
			e.Callee = calleeName(n.Inner[0])
			e.Args = l.exprs(n.Inner[1:])
		}
	case "CXXOperatorCallExpr":
		e.Kind = ExprOperatorCall
		e.Args = l.exprs(n.Inner)
	case "BinaryOperator":
		e.Kind = ExprBinary
		e.Op = n.Opcode
		e.Args = l.exprs(n.Inner)
	case "CompoundAssignOperator":
		e.Kind = ExprCompoundAssign
		e.Op = n.Opcode
		e.Args = l.exprs(n.Inner)
	case "UnaryOperator":
		e.Kind = ExprUnary
		e.Op = n.Opcode
		e.Args = l.exprs(n.Inner)
	case "DeclRefExpr":
		e.Kind = ExprDeclRef
		if n.ReferencedDecl != nil {
			e.Value = n.ReferencedDecl.Name
		}
	case "IntegerLiteral":
		e.Kind = ExprIntLit
		e.Value = rawValue(n.Value)
	case "FloatingLiteral":
		e.Kind = ExprFloatLit
		e.Value = rawValue(n.Value)
	case "CharacterLiteral":
		e.Kind = ExprCharLit
		e.Value = rawValue(n.Value)
	case "StringLiteral":
		e.Kind = ExprStringLit
		e.Value = rawValue(n.Value)
	case "CXXBoolLiteralExpr":
		e.Kind = ExprBoolLit
		e.Value = rawValue(n.Value)
	case "CXXNullPtrLiteralExpr", "GNUNullExpr":
		e.Kind = ExprNull
	case "ImplicitCastExpr":
		e.Kind = ExprImplicitCast
		e.CastKind = n.CastKind
		e.Args = l.exprs(n.Inner)
	case "CXXConstructExpr", "CXXTemporaryObjectExpr":
		e.Kind = ExprConstruct
		for _, in := range n.Inner {
			if in.empty() || in.Kind == "CXXDefaultArgExpr" {
				continue
			}
			e.Args = append(e.Args, l.expr(in))
		}
	case "ParenExpr":
		e.Kind = ExprParen
		e.Args = l.exprs(n.Inner)
	default:
		e.Kind = ExprOther
		e.Args = l.exprs(n.Inner)
	}
	return e
}

func (l *loader) exprs(nodes []*clangNode) []*Expr {
	out := make([]*Expr, 0, len(nodes))
	for _, in := range nodes {
		if in.empty() {
			continue
		}
		out = append(out, l.expr(in))
	}
	return out
}

func calleeName(n *clangNode) string {
	for n != nil {
		switch n.Kind {
		case "DeclRefExpr":
			if n.ReferencedDecl != nil {
				return n.ReferencedDecl.Name
			}
			return ""
		case "MemberExpr":
			return n.Name
		case "ImplicitCastExpr", "ParenExpr":
			if len(n.Inner) == 0 {
				return ""
			}
			n = n.Inner[0]
		default:
			return ""
		}
	}
	return ""
}

func rawValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		if s, err := strconv.Unquote(string(raw)); err == nil {
			return s
		}
	}
	return string(raw)
}
