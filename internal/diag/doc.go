// Package diag defines the diagnostic model shared by the translation
// phases.
//
// A Diagnostic carries a Severity, a Code with a stable ID (SPM1002,
// IO4001, ...), a short message, the primary span and optional notes.
// Producers emit through a Reporter; the pipeline collects into a Bag and
// the CLI renders with FormatShort.
//
// Chain codes (SPM1xxx) correspond to the error kinds of internal/chain:
// unsupported navigation, broken links and unrecognized fission boundaries.
// Input codes (SPM2xxx) cover AST loading and constructs the linearizer
// cannot represent.
package diag
