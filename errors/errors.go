package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the load/reload lifecycle the error occurred
type Phase string

const (
	PhaseLocate      Phase = "locate"      // artifact path resolution
	PhaseRead        Phase = "read"        // reading artifact bytes
	PhaseCompile     Phase = "compile"     // wasm compilation
	PhaseInstantiate Phase = "instantiate" // module instantiation
	PhaseBind        Phase = "bind"        // export resolution
	PhaseValidate    Phase = "validate"    // contract checks
	PhaseInit        Phase = "init"        // initialize entry point
	PhaseCall        Phase = "call"        // update/view/unload calls
	PhaseReload      Phase = "reload"      // swap protocol
	PhaseConfig      Phase = "config"      // configuration loading
	PhaseDecode      Phase = "decode"      // contract codec
)

// Kind categorizes the error
type Kind string

const (
	KindMissingArtifact    Kind = "missing_artifact"
	KindIncompleteArtifact Kind = "incomplete_artifact"
	KindMissingEntryPoint  Kind = "missing_entry_point"
	KindSignatureMismatch  Kind = "signature_mismatch"
	KindContractMismatch   Kind = "contract_mismatch"
	KindLayoutMismatch     Kind = "layout_mismatch"
	KindTimeout            Kind = "timeout"
	KindTrap               Kind = "trap"
	KindClosed             Kind = "closed"
	KindInvalidData        Kind = "invalid_data"
	KindInvalidInput       Kind = "invalid_input"
	KindInvalidState       Kind = "invalid_state"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindInstantiation      Kind = "instantiation"
	KindCompilation        Kind = "compilation"
)

// Severity tells the host how to react to an error.
type Severity uint8

const (
	// SeverityNone is used for call-time errors the core does not classify.
	SeverityNone Severity = iota
	// SeverityRecoverable errors leave the running version in place.
	SeverityRecoverable
	// SeverityFatal errors abort startup.
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityRecoverable:
		return "recoverable"
	case SeverityFatal:
		return "fatal"
	default:
		return "none"
	}
}

// Error is the structured error type used throughout hotswap
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Artifact string
	Export   string
	Detail   string
	Severity Severity
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Severity != SeverityNone {
		b.WriteString(e.Severity.String())
		b.WriteByte(' ')
	}
	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Export != "" {
		b.WriteString(" at export ")
		b.WriteString(e.Export)
	}

	if e.Artifact != "" {
		b.WriteString(" in ")
		b.WriteString(e.Artifact)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// An empty Phase or Kind on the target matches any value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return true
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Artifact sets the artifact path
func (b *Builder) Artifact(path string) *Builder {
	b.err.Artifact = path
	return b
}

// Export sets the export (entry point) name
func (b *Builder) Export(name string) *Builder {
	b.err.Export = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Severity sets the severity
func (b *Builder) Severity(s Severity) *Builder {
	b.err.Severity = s
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// MissingArtifact creates an error for an artifact that does not exist
func MissingArtifact(path string, cause error) *Error {
	return &Error{
		Phase:    PhaseLocate,
		Kind:     KindMissingArtifact,
		Artifact: path,
		Cause:    cause,
	}
}

// IncompleteArtifact creates an error for an artifact that is still being written
func IncompleteArtifact(path, detail string) *Error {
	return &Error{
		Phase:    PhaseRead,
		Kind:     KindIncompleteArtifact,
		Artifact: path,
		Detail:   detail,
	}
}

// MissingEntryPoint creates an error for a required export that is absent
func MissingEntryPoint(export string) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindMissingEntryPoint,
		Export: export,
		Detail: "required entry point not exported",
	}
}

// SignatureMismatch creates an error for an export with the wrong function type
func SignatureMismatch(export, want, got string) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindSignatureMismatch,
		Export: export,
		Detail: fmt.Sprintf("want %s, got %s", want, got),
	}
}

// ContractMismatch creates an error for a contract version tag mismatch
func ContractMismatch(want, got uint32) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindContractMismatch,
		Detail: fmt.Sprintf("host contract version %d, artifact version %d", want, got),
		Value:  got,
	}
}

// LayoutMismatch creates an error for a state block whose size changed
func LayoutMismatch(want, got uint32) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindLayoutMismatch,
		Detail: fmt.Sprintf("state size %d bytes, artifact declares %d bytes", want, got),
		Value:  got,
	}
}

// OutOfBounds creates an error for a guest pointer outside linear memory
func OutOfBounds(phase Phase, what string, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("%s [%d, %d) exceeds memory size %d", what, offset, uint64(offset)+uint64(length), size),
	}
}

// Timeout creates a timeout error
func Timeout(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTimeout,
		Detail: what + " timed out",
		Cause:  cause,
	}
}

// Trap creates an error for a failed call into guest code
func Trap(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTrap,
		Export: export,
		Cause:  cause,
	}
}

// Closed creates an error for a call into an already released unit
func Closed(export string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindClosed,
		Export: export,
		Detail: "unit already closed",
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidState creates an error for an operation not allowed in the current lifecycle phase
func InvalidState(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Fatal marks err as fatal. Structured errors keep their phase and kind;
// anything else is wrapped.
func Fatal(err error) error {
	return withSeverity(err, SeverityFatal)
}

// Recoverable marks err as recoverable.
func Recoverable(err error) error {
	return withSeverity(err, SeverityRecoverable)
}

func withSeverity(err error, s Severity) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		cp := *e
		cp.Severity = s
		return &cp
	}
	return &Error{
		Phase:    PhaseReload,
		Kind:     KindInvalidState,
		Cause:    err,
		Severity: s,
	}
}

// SeverityOf returns the severity of the outermost structured error in err's chain.
func SeverityOf(err error) Severity {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Severity
	}
	return SeverityNone
}

// IsFatal reports whether err aborts startup
func IsFatal(err error) bool {
	return SeverityOf(err) == SeverityFatal
}

// IsRecoverable reports whether err left the running version in place
func IsRecoverable(err error) bool {
	return SeverityOf(err) == SeverityRecoverable
}

// KindOf returns the kind of the outermost structured error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is forwards to the standard library so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As forwards to the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
