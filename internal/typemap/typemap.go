// Package typemap holds the source-to-target name tables consulted by the
// emitter: builtin and record type names, and atomic intrinsics.
package typemap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// Atomic is the target spelling of an atomic intrinsic and the number of
// call arguments it forwards.
type Atomic struct {
	Name string
	Args int
}

var defaultTypes = map[string]string{
	"char":               "int8",
	"signed char":        "int8",
	"unsigned char":      "unsigned int8",
	"short":              "int16",
	"unsigned short":     "unsigned int16",
	"int":                "int32",
	"unsigned int":       "unsigned int32",
	"long":               "int64",
	"unsigned long":      "unsigned int64",
	"long long":          "int64",
	"unsigned long long": "unsigned int64",
	"half":               "float16",
	"__half":             "float16",
	"dim3":               "Dim3",
}

var defaultAtomics = map[string]Atomic{
	"atomicAdd":  {Name: "atomic_add_global", Args: 2},
	"atomicSub":  {Name: "atomic_subtract_global", Args: 2},
	"atomicMin":  {Name: "atomic_min_global", Args: 2},
	"atomicMax":  {Name: "atomic_max_global", Args: 2},
	"atomicAnd":  {Name: "atomic_and_global", Args: 2},
	"atomicOr":   {Name: "atomic_or_global", Args: 2},
	"atomicXor":  {Name: "atomic_xor_global", Args: 2},
	"atomicExch": {Name: "atomic_swap_global", Args: 2},
	"atomicCAS":  {Name: "atomic_compare_exchange_global", Args: 3},
}

// Tables maps source names to target names. A Tables value is never
// modified after construction and is safe for concurrent use.
type Tables struct {
	types   map[string]string
	atomics map[string]Atomic
}

// Default returns the built-in tables.
func Default() *Tables {
	return &Tables{types: maps.Clone(defaultTypes), atomics: maps.Clone(defaultAtomics)}
}

// Overrides are user-supplied table entries, as found in the [types] and
// [atomics] sections of a manifest.
type Overrides struct {
	Types   map[string]string `toml:"types"`
	Atomics map[string]string `toml:"atomics"`
}

// ParseOverrides decodes a TOML document carrying [types] and [atomics].
func ParseOverrides(data []byte) (Overrides, error) {
	var o Overrides
	if _, err := toml.Decode(string(data), &o); err != nil {
		return Overrides{}, fmt.Errorf("typemap: %w", err)
	}
	return o, nil
}

// With returns a copy of t with o applied. An empty target name deletes
// the entry. Atomic overrides keep the argument count of the entry they
// replace; new entries forward two arguments, or three for
// compare-and-exchange targets.
func (t *Tables) With(o Overrides) *Tables {
	out := &Tables{types: maps.Clone(t.types), atomics: maps.Clone(t.atomics)}
	for from, to := range o.Types {
		if to == "" {
			delete(out.types, from)
			continue
		}
		out.types[from] = to
	}
	for from, to := range o.Atomics {
		if to == "" {
			delete(out.atomics, from)
			continue
		}
		args := 2
		if prev, ok := out.atomics[from]; ok {
			args = prev.Args
		} else if strings.Contains(to, "compare_exchange") {
			args = 3
		}
		out.atomics[from] = Atomic{Name: to, Args: args}
	}
	return out
}

// BaseType maps a type name, returning it unchanged when there is no entry.
func (t *Tables) BaseType(name string) string {
	if to, ok := t.types[name]; ok {
		return to
	}
	return name
}

// Atomic looks up the target of an atomic intrinsic.
func (t *Tables) Atomic(callee string) (Atomic, bool) {
	a, ok := t.atomics[callee]
	return a, ok
}

// Fingerprint identifies the table contents.
func (t *Tables) Fingerprint() string {
	h := sha256.New()
	for _, k := range sortedKeys(t.types) {
		fmt.Fprintf(h, "t %s=%s\n", k, t.types[k])
	}
	for _, k := range sortedKeys(t.atomics) {
		a := t.atomics[k]
		fmt.Fprintf(h, "a %s=%s/%d\n", k, a.Name, a.Args)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
