// Package bitvec provides fixed-width bit vectors used as packed stream payloads.
//
// A Vector is an immutable value: every operation that changes bits returns a
// new Vector. Bit 0 is the least significant bit. Bits at and above the width
// are always zero, so two vectors of the same width compare word by word.
//
// This package is internal to the gateware module.
package bitvec
