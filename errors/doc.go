// Package errors provides structured error types for hotswap.
//
// Errors are categorized by Phase (where in the load/reload lifecycle the
// error occurred) and Kind (error category), and carry a Severity that tells
// the host runtime how to react:
//
//	SeverityFatal        startup cannot proceed (first load only)
//	SeverityRecoverable  a reload attempt failed; the old version keeps running
//	SeverityNone         call-time failures inside a unit, surfaced unmasked
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBind, errors.KindMissingEntryPoint).
//		Export("hotswap_view").
//		Artifact("build/counter.wasm").
//		Detail("required entry point not exported").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ContractMismatch(contract.Version, got)
//	err := errors.IncompleteArtifact(path, "size changed while reading")
//
// Classification survives wrapping with fmt.Errorf("...: %w", err):
//
//	if errors.IsRecoverable(err) { log and keep running }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
