// Package errors provides structured error types for the gateware module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Configuration errors are raised while a circuit is being elaborated, before any
// tick runs; they are always fatal to circuit assembly. Protocol violations are
// caller preconditions and are only reported by the stream protocol checker.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseElaborate, errors.KindWidthRatio).
//		Path("converter", "data").
//		Detail("width 12 is not a multiple of 8").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ReservedName(path, "valid")
//	err := errors.OutOfRange(errors.PhaseSimulate, path, 3, 2)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
