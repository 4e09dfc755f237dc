// Package kernel runs WebAssembly functions as combinational stream stages.
//
// A Kernel is a compiled and instantiated core WebAssembly module. A Map
// applies one of its exports, with signature (i64) -> i64, to the payload of
// every beat passing through it. Payloads on either side may be at most 64
// bits wide; results are truncated to the output layout.
//
//	k, err := kernel.Compile(ctx, wasmBytes, nil)
//	defer k.Close(ctx)
//	m, err := kernel.NewMap(ctx, k, "scramble", in, out)
//	circuit.Add(m)
//
// Results are memoized per input value, so an export must be a pure function
// of its argument.
package kernel
