// Package linearize turns parsed function bodies into chains.
//
// The builder keeps one cursor, starting at the entry node whose successor
// is the chain's ScopeExit, and inserts one node per statement after it in
// source order. Compound blocks add no node; loops and conditionals open a
// region with a head node and close it with a Reconverge marker. The AST
// is never modified, so building the same function twice yields identical
// chains.
package linearize

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/blockspacer/spmdfy/internal/chain"
	"github.com/blockspacer/spmdfy/internal/ctxlog"
	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/diag"
	"github.com/blockspacer/spmdfy/internal/trace"
)

// Options configures the builder.
type Options struct {
	// Reporter receives warnings for constructs kept verbatim. May be nil.
	Reporter diag.Reporter
}

// Failure records a function whose chain could not be built.
type Failure struct {
	Func *cuast.FuncDecl
	Err  error
}

// Translatable reports whether fn has a body the builder linearizes.
func Translatable(fn *cuast.FuncDecl) bool {
	return fn != nil && fn.Body != nil && fn.Kind != cuast.FuncHost
}

// Decl converts a file-scope declaration into a standalone unit node.
// Functions and unsupported declarations return false.
func Decl(d *cuast.Decl) (chain.Node, bool) {
	switch {
	case d == nil:
		return chain.Node{}, false
	case d.Kind == cuast.DeclVar && d.Var != nil:
		return chain.Node{Kind: chain.KindGlobalVariable, Var: d.Var, Span: d.Span}, true
	case d.Kind == cuast.DeclRecord && d.Record != nil && d.Record.Complete:
		return chain.Node{Kind: chain.KindStructureDeclaration, Record: d.Record, Span: d.Span}, true
	}
	return chain.Node{}, false
}

// Unit linearizes every declaration of src in order. Functions that fail
// are left out of the unit and returned as failures.
func Unit(ctx context.Context, src *cuast.Unit, opts Options) (*chain.Unit, []Failure) {
	out := &chain.Unit{Source: src}
	var failures []Failure
	for _, d := range src.Decls {
		if n, ok := Decl(d); ok {
			out.AddDecl(n)
			continue
		}
		if d.Kind != cuast.DeclFunc || !Translatable(d.Func) {
			continue
		}
		c, err := Function(ctx, d.Func, opts)
		if err != nil {
			failures = append(failures, Failure{Func: d.Func, Err: err})
			continue
		}
		out.AddChain(c)
	}
	return out, failures
}

// Function builds the chain for one kernel or device function. On error
// the partial chain is discarded.
func Function(ctx context.Context, fn *cuast.FuncDecl, opts Options) (*chain.Chain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn == nil || fn.Body == nil {
		return nil, fmt.Errorf("linearize: function has no body")
	}
	b := &builder{
		c:      chain.New(fn),
		log:    ctxlog.FromContext(ctx).With(zap.String("func", fn.Name)),
		tracer: trace.FromContext(ctx),
		parent: trace.CurrentSpan(ctx),
		opts:   opts,
	}
	b.cursor = b.c.Entry()
	if err := b.stmt(fn.Body); err != nil {
		b.log.Warn("chain construction aborted", zap.Error(err))
		return nil, fmt.Errorf("linearize %s: %w", fn.Name, err)
	}
	b.log.Debug("chain built", zap.Int("nodes", b.c.Len()))
	return b.c, nil
}

type builder struct {
	c      *chain.Chain
	cursor chain.NodeID
	log    *zap.Logger
	tracer trace.Tracer
	parent uint64
	opts   Options
}

// insert allocates proto and links it after the cursor, advancing it.
func (b *builder) insert(proto chain.Node) (chain.NodeID, error) {
	id := b.c.NewNode(proto)
	next, err := b.c.InsertAfter(b.cursor, id)
	if err != nil {
		return chain.NoNodeID, err
	}
	b.cursor = next
	if b.log.Core().Enabled(zap.DebugLevel) {
		b.log.Debug("node inserted", zap.Uint32("node", uint32(id)), zap.Stringer("kind", proto.Kind))
	}
	trace.Point(b.tracer, trace.ScopeNode, "insert", proto.Kind.String(), b.parent)
	return id, nil
}

func (b *builder) stmt(s *cuast.Stmt) error {
	if s == nil {
		return nil
	}
	switch s.Kind {
	case cuast.StmtCompound:
		for _, child := range s.Body {
			if err := b.stmt(child); err != nil {
				return err
			}
		}
		return nil

	case cuast.StmtDecl:
		for _, v := range s.Decls {
			if _, err := b.insert(chain.Node{Kind: chain.KindInternal, Var: v, Span: v.Span}); err != nil {
				return err
			}
		}
		return nil

	case cuast.StmtExpr:
		_, err := b.insert(chain.Node{Kind: chain.KindInternal, Expr: s.Expr, Span: s.Span})
		return err

	case cuast.StmtIf:
		return b.region(chain.KindBranch, s, "", func(head chain.NodeID) error {
			if err := b.stmt(s.Then); err != nil {
				return err
			}
			if s.Else == nil {
				return nil
			}
			if _, err := b.insert(chain.Node{Kind: chain.KindElse, Partner: head, Span: s.Else.Span}); err != nil {
				return err
			}
			return b.stmt(s.Else)
		})

	case cuast.StmtFor, cuast.StmtWhile:
		return b.region(chain.KindLoop, s, "", func(chain.NodeID) error { return b.stmt(s.Loop) })

	case cuast.StmtDo:
		return b.region(chain.KindLoop, s, s.Trailer, func(chain.NodeID) error { return b.stmt(s.Loop) })

	case cuast.StmtReturn:
		_, err := b.insert(chain.Node{Kind: chain.KindInternal, Stmt: s, Span: s.Span})
		return err

	case cuast.StmtNull:
		return nil

	default:
		if s.Construct != "BreakStmt" && s.Construct != "ContinueStmt" && b.opts.Reporter != nil {
			diag.ReportWarning(b.opts.Reporter, diag.InputUnsupportedConstruct, s.Span,
				fmt.Sprintf("%s is copied verbatim", constructName(s))).
				WithSubject(b.c.Name).
				Emit()
		}
		_, err := b.insert(chain.Node{Kind: chain.KindInternal, Stmt: s, Span: s.Span})
		return err
	}
}

// region inserts a head of kind, builds the body and closes it with a
// Reconverge marker that carries trailer.
func (b *builder) region(kind chain.Kind, s *cuast.Stmt, trailer string, body func(head chain.NodeID) error) error {
	head, err := b.insert(chain.Node{Kind: kind, Stmt: s, Header: s.Header, Span: s.Span})
	if err != nil {
		return err
	}
	if err := body(head); err != nil {
		return err
	}
	rec, err := b.insert(chain.Node{Kind: chain.KindReconverge, Partner: head, Header: trailer, Span: s.Span})
	if err != nil {
		return err
	}
	b.c.Node(head).Partner = rec
	return nil
}

func constructName(s *cuast.Stmt) string {
	if s.Construct != "" {
		return s.Construct
	}
	return "statement"
}
