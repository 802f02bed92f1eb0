// Package trace writes span and point events for a translation run to a
// stream, as text or NDJSON.
//
//	spmdfy translate --trace=run.ndjson --trace-level=detail kernels.cu
//
// Every event has a scope. The level selects the finest scope written:
// phase keeps driver and pass events, detail adds kernels, debug adds
// individual chain mutations. The tracer travels in the context:
//
//	ctx, span := trace.Start(ctx, trace.ScopePass, "fission")
//	defer span.End("")
package trace
