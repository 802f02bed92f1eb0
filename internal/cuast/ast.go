package cuast

import (
	"github.com/blockspacer/spmdfy/internal/source"
)

// Unit is one parsed translation unit: the main file's file-scope
// declarations in source order plus the file set their spans point into.
type Unit struct {
	Files *source.FileSet
	File  source.FileID
	Decls []*Decl
}

// Text returns the source text covered by sp, or "" when sp is outside the
// loaded files.
func (u *Unit) Text(sp source.Span) string {
	if u == nil || u.Files == nil || sp.Empty() {
		return ""
	}
	f := u.Files.Get(sp.File)
	if f == nil || int(sp.End) > len(f.Content) || sp.Start > sp.End {
		return ""
	}
	return string(f.Content[sp.Start:sp.End])
}

// Path returns the main file path.
func (u *Unit) Path() string {
	if u == nil || u.Files == nil {
		return ""
	}
	if f := u.Files.Get(u.File); f != nil {
		return f.Path
	}
	return ""
}

type DeclKind uint8

const (
	DeclOther DeclKind = iota
	DeclVar
	DeclFunc
	DeclRecord
	DeclNamespace
)

func (k DeclKind) String() string {
	switch k {
	case DeclVar:
		return "var"
	case DeclFunc:
		return "func"
	case DeclRecord:
		return "record"
	case DeclNamespace:
		return "namespace"
	default:
		return "other"
	}
}

// Decl is a file-scope declaration. Exactly one of Var, Func, Record is set
// for the matching Kind.
type Decl struct {
	Kind   DeclKind
	Name   string
	Span   source.Span
	Var    *VarDecl
	Func   *FuncDecl
	Record *RecordDecl
}

// VarDecl covers globals, locals, parameters and record fields.
type VarDecl struct {
	Name   string
	Type   *Type
	Init   *Expr
	Shared bool // __shared__
	Param  bool
	Span   source.Span
}

type FuncKind uint8

const (
	FuncHost FuncKind = iota
	FuncKernel
	FuncDevice
)

func (k FuncKind) String() string {
	switch k {
	case FuncKernel:
		return "kernel"
	case FuncDevice:
		return "device"
	default:
		return "host"
	}
}

type FuncDecl struct {
	Name   string
	Kind   FuncKind
	Result *Type
	Params []*VarDecl
	Body   *Stmt // nil for prototypes
	Span   source.Span
}

type RecordDecl struct {
	Name     string
	Tag      string // struct, class, union
	Fields   []*VarDecl
	Complete bool
	Span     source.Span
}

type StmtKind uint8

const (
	StmtOther StmtKind = iota
	StmtCompound
	StmtDecl
	StmtExpr
	StmtIf
	StmtFor
	StmtWhile
	StmtDo
	StmtReturn
	StmtNull
)

func (k StmtKind) String() string {
	switch k {
	case StmtCompound:
		return "compound"
	case StmtDecl:
		return "decl"
	case StmtExpr:
		return "expr"
	case StmtIf:
		return "if"
	case StmtFor:
		return "for"
	case StmtWhile:
		return "while"
	case StmtDo:
		return "do"
	case StmtReturn:
		return "return"
	case StmtNull:
		return "null"
	default:
		return "other"
	}
}

// Stmt is a statement. Fields are populated per Kind:
//
//	StmtCompound  Body
//	StmtDecl      Decls
//	StmtExpr      Expr
//	StmtIf        Header, Cond, Then, Else (optional)
//	StmtFor       Header, Loop
//	StmtWhile     Header, Cond, Loop
//	StmtDo        Header ("do"), Trailer ("while (cond);"), Cond, Loop
//	StmtReturn    Expr (optional), text from Span
//	StmtOther     text from Span, Construct names the source construct
type Stmt struct {
	Kind      StmtKind
	Span      source.Span
	Construct string
	Body      []*Stmt
	Decls     []*VarDecl
	Expr      *Expr
	Cond      *Expr
	Then      *Stmt
	Else      *Stmt
	Loop      *Stmt
	Header    string
	Trailer   string
}

type ExprKind uint8

const (
	ExprOther ExprKind = iota
	ExprCall
	ExprBinary
	ExprCompoundAssign
	ExprUnary
	ExprDeclRef
	ExprIntLit
	ExprFloatLit
	ExprCharLit
	ExprStringLit
	ExprBoolLit
	ExprNull
	ExprImplicitCast
	ExprConstruct
	ExprParen
	ExprOperatorCall
)

func (k ExprKind) String() string {
	switch k {
	case ExprCall:
		return "call"
	case ExprBinary:
		return "binary"
	case ExprCompoundAssign:
		return "compound-assign"
	case ExprUnary:
		return "unary"
	case ExprDeclRef:
		return "declref"
	case ExprIntLit:
		return "int"
	case ExprFloatLit:
		return "float"
	case ExprCharLit:
		return "char"
	case ExprStringLit:
		return "string"
	case ExprBoolLit:
		return "bool"
	case ExprNull:
		return "null"
	case ExprImplicitCast:
		return "implicit-cast"
	case ExprConstruct:
		return "construct"
	case ExprParen:
		return "paren"
	case ExprOperatorCall:
		return "operator-call"
	default:
		return "other"
	}
}

// Expr is an expression. Args holds call/construct arguments and operator
// operands; a cast or paren keeps its operand in Args[0].
type Expr struct {
	Kind     ExprKind
	Span     source.Span
	Type     *Type
	Op       string
	Callee   string
	Value    string
	CastKind string
	Args     []*Expr
}

// StripImplicitCasts returns the expression as written, looking through
// compiler-inserted conversions.
func (e *Expr) StripImplicitCasts() *Expr {
	for e != nil && e.Kind == ExprImplicitCast && len(e.Args) == 1 {
		e = e.Args[0]
	}
	return e
}

// IsNullPointer reports whether e spells a null pointer constant
// (nullptr, NULL, or a literal 0 converted to a pointer).
func (e *Expr) IsNullPointer() bool {
	for e != nil {
		switch e.Kind {
		case ExprNull:
			return true
		case ExprImplicitCast:
			if e.CastKind == "NullToPointer" {
				return true
			}
			if len(e.Args) != 1 {
				return false
			}
			e = e.Args[0]
		case ExprParen:
			if len(e.Args) != 1 {
				return false
			}
			e = e.Args[0]
		default:
			return false
		}
	}
	return false
}
