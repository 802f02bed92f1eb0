package trace

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Format is the output encoding of a stream tracer.
type Format uint8

const (
	FormatAuto Format = iota
	FormatText
	FormatNDJSON
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	}
	return FormatAuto, fmt.Errorf("invalid trace format: %q (expected: auto|text|ndjson)", s)
}

type record struct {
	Time   string            `json:"time"`
	Seq    uint64            `json:"seq"`
	Kind   string            `json:"kind"`
	Scope  string            `json:"scope"`
	Span   uint64            `json:"span,omitempty"`
	Parent uint64            `json:"parent,omitempty"`
	Name   string            `json:"name"`
	Detail string            `json:"detail,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// encode renders ev as one line.
func encode(ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		data, err := json.Marshal(record{
			Time:   ev.Time.Format("2006-01-02T15:04:05.000000Z07:00"),
			Seq:    ev.Seq,
			Kind:   ev.Kind.String(),
			Scope:  ev.Scope.String(),
			Span:   ev.SpanID,
			Parent: ev.ParentID,
			Name:   ev.Name,
			Detail: ev.Detail,
			Extra:  ev.Extra,
		})
		if err != nil {
			return nil
		}
		return append(data, '\n')
	}

	// 000012 pass   begin fission (detail) k=v
	var b strings.Builder
	fmt.Fprintf(&b, "%06d %-6s %-9s %s", ev.Seq, ev.Scope, ev.Kind, ev.Name)
	if ev.Detail != "" {
		fmt.Fprintf(&b, " (%s)", ev.Detail)
	}
	for _, k := range sortedKeys(ev.Extra) {
		fmt.Fprintf(&b, " %s=%s", k, ev.Extra[k])
	}
	b.WriteByte('\n')
	return []byte(b.String())
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
