package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseElaborate Phase = "elaborate" // circuit construction
	PhaseSimulate  Phase = "simulate"  // tick evaluation
	PhaseConfig    Phase = "config"    // configuration loading
	PhaseParse     Phase = "parse"     // CSV/YAML parsing
	PhaseBus       Phase = "bus"       // register access
	PhaseKernel    Phase = "kernel"    // WebAssembly kernel loading and calls
)

// Kind categorizes the error
type Kind string

const (
	KindWidthRatio        Kind = "width_ratio"
	KindInvalidWidth      Kind = "invalid_width"
	KindReservedName      Kind = "reserved_name"
	KindDuplicateName     Kind = "duplicate_name"
	KindLayoutMismatch    Kind = "layout_mismatch"
	KindUnsupported       Kind = "unsupported"
	KindOutOfRange        Kind = "out_of_range"
	KindInvalidDepth      Kind = "invalid_depth"
	KindProtocolViolation Kind = "protocol_violation"
	KindCombinationalLoop Kind = "combinational_loop"
	KindTimeout           Kind = "timeout"
	KindNotFound          Kind = "not_found"
	KindAccessDenied      Kind = "access_denied"
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidData       Kind = "invalid_data"
	KindInstantiation     Kind = "instantiation"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
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

// Path sets the signal or field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
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

// IsConfiguration reports whether err is a configuration error, i.e. one
// raised while assembling a circuit or loading its configuration.
func IsConfiguration(err error) bool {
	var e *Error
	if !As(err, &e) {
		return false
	}
	return e.Phase == PhaseElaborate || e.Phase == PhaseConfig
}

// IsKind reports whether any error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// As finds the first *Error in err's chain.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Convenience constructors for common error patterns

// WidthRatio creates an error for widths that do not divide evenly
func WidthRatio(path []string, from, to int) *Error {
	return &Error{
		Phase:  PhaseElaborate,
		Kind:   KindWidthRatio,
		Path:   path,
		Detail: fmt.Sprintf("width %d is not an integer multiple of width %d", max(from, to), min(from, to)),
		Value:  [2]int{from, to},
	}
}

// InvalidWidth creates an error for a non-positive field width
func InvalidWidth(path []string, width int) *Error {
	return &Error{
		Phase:  PhaseElaborate,
		Kind:   KindInvalidWidth,
		Path:   path,
		Detail: fmt.Sprintf("width %d must be positive", width),
		Value:  width,
	}
}

// ReservedName creates an error for a field using a reserved signal name
func ReservedName(path []string, name string) *Error {
	return &Error{
		Phase:  PhaseElaborate,
		Kind:   KindReservedName,
		Path:   path,
		Detail: fmt.Sprintf("%q cannot be used in an endpoint layout", name),
		Value:  name,
	}
}

// DuplicateName creates an error for a repeated field name
func DuplicateName(path []string, name string) *Error {
	return &Error{
		Phase:  PhaseElaborate,
		Kind:   KindDuplicateName,
		Path:   path,
		Detail: fmt.Sprintf("%q already attributed in payload layout", name),
		Value:  name,
	}
}

// LayoutMismatch creates an error for two layouts that cannot be bridged
func LayoutMismatch(path []string, detail string) *Error {
	return &Error{
		Phase:  PhaseElaborate,
		Kind:   KindLayoutMismatch,
		Path:   path,
		Detail: detail,
	}
}

// Unsupported creates an unsupported option error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfRange creates an out of range error
func OutOfRange(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfRange,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of range [0, %d)", index, length),
		Value:  index,
	}
}

// InvalidDepth creates an error for an unusable buffer depth
func InvalidDepth(path []string, depth int, detail string) *Error {
	return &Error{
		Phase:  PhaseElaborate,
		Kind:   KindInvalidDepth,
		Path:   path,
		Detail: fmt.Sprintf("depth %d: %s", depth, detail),
		Value:  depth,
	}
}

// ProtocolViolation creates an error describing a broken handshake rule
func ProtocolViolation(path []string, cycle uint64, detail string) *Error {
	return &Error{
		Phase:  PhaseSimulate,
		Kind:   KindProtocolViolation,
		Path:   path,
		Detail: fmt.Sprintf("cycle %d: %s", cycle, detail),
		Value:  cycle,
	}
}

// CombinationalLoop creates an error for logic that never settles
func CombinationalLoop(cycle uint64, passes int) *Error {
	return &Error{
		Phase:  PhaseSimulate,
		Kind:   KindCombinationalLoop,
		Detail: fmt.Sprintf("cycle %d: signals still changing after %d passes", cycle, passes),
		Value:  cycle,
	}
}

// Timeout creates an error for a run that hit its tick limit
func Timeout(cycle uint64, limit int) *Error {
	return &Error{
		Phase:  PhaseSimulate,
		Kind:   KindTimeout,
		Detail: fmt.Sprintf("condition not reached after %d ticks (cycle %d)", limit, cycle),
		Value:  cycle,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// AccessDenied creates an error for a register accessed against its mode
func AccessDenied(name, mode, op string) *Error {
	return &Error{
		Phase:  PhaseBus,
		Kind:   KindAccessDenied,
		Path:   []string{name},
		Detail: fmt.Sprintf("register mode %q is not %s", mode, op),
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

// Instantiation creates an error for a kernel module that failed to start
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseKernel,
		Kind:   KindInstantiation,
		Detail: "instantiate kernel module",
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
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
