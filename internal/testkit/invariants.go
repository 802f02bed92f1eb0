// Package testkit holds invariant checks shared by tests and fuzz harnesses.
package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/source"
)

// CheckSpanInvariants verifies the spans of a loaded unit:
//
//	every declaration span lies inside its file's content
//	every statement span of a function body lies inside the function span
//	nested statement spans lie inside their parent
//
// Empty spans are allowed; clang reports them for implicit nodes.
func CheckSpanInvariants(u *cuast.Unit) error {
	if u == nil || u.Files == nil {
		return fmt.Errorf("nil unit or file set")
	}
	for _, d := range u.Decls {
		if err := inFile(u.Files, d.Span); err != nil {
			return fmt.Errorf("decl %s: %w", d.Name, err)
		}
		if d.Kind != cuast.DeclFunc || d.Func == nil || d.Func.Body == nil {
			continue
		}
		if err := stmtWithin(d.Func.Body, d.Func.Span); err != nil {
			return fmt.Errorf("func %s: %w", d.Func.Name, err)
		}
	}
	return nil
}

func inFile(fs *source.FileSet, sp source.Span) error {
	if sp.Empty() {
		return nil
	}
	f := fs.Get(sp.File)
	if f == nil {
		return fmt.Errorf("span %v points to unknown file", sp)
	}
	n, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	if sp.End > n {
		return fmt.Errorf("span %v ends beyond content (%d bytes)", sp, n)
	}
	return nil
}

func contains(outer, inner source.Span) bool {
	if inner.Empty() || outer.Empty() {
		return true
	}
	return inner.File == outer.File && inner.Start >= outer.Start && inner.End <= outer.End
}

func stmtWithin(s *cuast.Stmt, parent source.Span) error {
	if s == nil {
		return nil
	}
	if !contains(parent, s.Span) {
		return fmt.Errorf("%s statement %v is outside %v", s.Kind, s.Span, parent)
	}
	children := append([]*cuast.Stmt(nil), s.Body...)
	children = append(children, s.Then, s.Else, s.Loop)
	for _, c := range children {
		if err := stmtWithin(c, s.Span); err != nil {
			return err
		}
	}
	return nil
}
