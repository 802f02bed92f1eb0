// Package fuzztests houses Go fuzz harnesses for the translation front end:
// clang type spellings and clang JSON ASTs are fed through loading, chain
// construction, restructuring and emission to guard against panics on
// arbitrary input.
package fuzztests
