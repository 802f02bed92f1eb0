package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blockspacer/spmdfy/internal/source"
)

type shortDiagnostic struct {
	Severity string
	Code     string
	Path     string
	Line     uint32
	Column   uint32
	Message  string
}

// FormatShort renders diagnostics one per line as
// "severity CODE path:line:col [subject] message", sorted by position.
func FormatShort(diags []Diagnostic, fs *source.FileSet, includeNotes bool) string {
	if len(diags) == 0 {
		return ""
	}

	rendered := make([]shortDiagnostic, 0, len(diags))
	for i := range diags {
		d := &diags[i]
		msg := sanitizeMessage(d.Message)
		if d.Subject != "" {
			msg = d.Subject + ": " + msg
		}
		rendered = append(rendered, resolve(fs, d.Primary, d.Severity.String(), d.Code.ID(), msg))
		if !includeNotes {
			continue
		}
		for _, note := range d.Notes {
			rendered = append(rendered, resolve(fs, note.Span, SevNote.String(), d.Code.ID(), sanitizeMessage(note.Msg)))
		}
	}

	sort.SliceStable(rendered, func(i, j int) bool {
		di, dj := rendered[i], rendered[j]
		if di.Path != dj.Path {
			return di.Path < dj.Path
		}
		if di.Line != dj.Line {
			return di.Line < dj.Line
		}
		return di.Column < dj.Column
	})

	var b strings.Builder
	for i, d := range rendered {
		fmt.Fprintf(&b, "%s %s %s:%d:%d %s", d.Severity, d.Code, d.Path, d.Line, d.Column, d.Message)
		if i < len(rendered)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func resolve(fs *source.FileSet, span source.Span, sev, code, msg string) shortDiagnostic {
	out := shortDiagnostic{Severity: sev, Code: code, Message: msg, Path: "<unknown>"}
	if f := fs.Get(span.File); f != nil {
		start, _ := fs.Resolve(span)
		out.Path = f.Path
		out.Line = start.Line
		out.Column = start.Col
	}
	return out
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\r", "\n")
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.TrimSpace(msg)
}
