package ispc

import _ "embed"

//go:embed preamble.ispc
var preamble string

// Preamble returns the fixed macro block every translation unit starts with.
func Preamble() string { return preamble }
