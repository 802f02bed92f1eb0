package diag

import (
	"github.com/blockspacer/spmdfy/internal/source"
)

type Note struct {
	Span source.Span
	Msg  string
}

// Diagnostic is one user-facing finding. Subject names the kernel or
// declaration the finding belongs to and may be empty.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Subject  string
	Primary  source.Span
	Notes    []Note
}
