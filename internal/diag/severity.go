package diag

import "strconv"

// Severity orders diagnostics; a larger value is more severe.
type Severity uint8

const (
	SevNote Severity = iota
	SevWarning
	SevError
)

var severityNames = [...]string{
	SevNote:    "note",
	SevWarning: "warning",
	SevError:   "error",
}

// String spells the severity the way clang does, so translator output
// reads like the compiler diagnostics next to it.
func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "severity(" + strconv.Itoa(int(s)) + ")"
}
