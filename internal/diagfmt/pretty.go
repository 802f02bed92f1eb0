// Package diagfmt renders diagnostic bags for humans and tools.
package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/blockspacer/spmdfy/internal/diag"
	"github.com/blockspacer/spmdfy/internal/source"
)

type palette struct {
	err, warn, info, note, loc, caret *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		err:   mk(color.FgRed, color.Bold),
		warn:  mk(color.FgYellow, color.Bold),
		info:  mk(color.FgCyan),
		note:  mk(color.FgBlue),
		loc:   mk(color.Bold),
		caret: mk(color.FgGreen, color.Bold),
	}
}

func (p palette) severity(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

// Pretty writes each diagnostic of bag as
//
//	<path>:<line>:<col>: <SEV> <CODE>: [subject: ]<message>
//
// followed by the source line and a ^~~~ underline of the primary span,
// then the notes in the same shape when requested.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	if bag == nil {
		return
	}
	p := newPalette(opts.Color)
	items := bag.Items()
	if opts.Max > 0 && opts.Max < len(items) {
		items = items[:opts.Max]
	}
	for _, d := range items {
		msg := d.Message
		if d.Subject != "" {
			msg = d.Subject + ": " + msg
		}
		fmt.Fprintf(w, "%s: %s %s: %s\n",
			p.loc.Sprint(position(fs, d.Primary)),
			p.severity(d.Severity).Sprint(d.Severity.String()),
			d.Code.ID(),
			msg)
		excerpt(w, fs, d.Primary, p)
		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			fmt.Fprintf(w, "%s: %s: %s\n", p.loc.Sprint(position(fs, n.Span)), p.note.Sprint(diag.SevNote.String()), n.Msg)
			excerpt(w, fs, n.Span, p)
		}
	}
}

func position(fs *source.FileSet, sp source.Span) string {
	if fs == nil || fs.Get(sp.File) == nil {
		return "<unknown>"
	}
	return fs.Position(sp)
}

// excerpt prints the first line of sp with the covered columns underlined.
func excerpt(w io.Writer, fs *source.FileSet, sp source.Span, p palette) {
	if fs == nil || sp.Empty() {
		return
	}
	f := fs.Get(sp.File)
	if f == nil {
		return
	}
	start, end := fs.Resolve(sp)
	line := f.GetLine(start.Line)
	if line == "" {
		return
	}
	width := 1
	if end.Line == start.Line && end.Col > start.Col {
		width = int(end.Col - start.Col)
	} else if rest := len(line) - int(start.Col) + 1; rest > 1 {
		width = rest
	}
	gutter := fmt.Sprintf("%d", start.Line)
	pad := strings.Repeat(" ", len(gutter))
	fmt.Fprintf(w, " %s | %s\n", gutter, strings.ReplaceAll(line, "\t", " "))
	fmt.Fprintf(w, " %s | %s%s\n", pad, strings.Repeat(" ", int(start.Col)-1), p.caret.Sprint("^"+strings.Repeat("~", width-1)))
}
