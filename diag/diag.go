// Package diag defines the structured diagnostics shared by every code-generation
// component. A diagnostic always carries enough information to print the
// one-line "severity, subsystem code, position, summary" format the driver
// is responsible for, and enough structure for a logger to attach fields to
// it instead of string-matching an error message.
package diag

import "fmt"

// Severity classifies how serious a diagnostic is.
type Severity int

const (
	// SeverityError indicates a fatal condition; compilation of the affected root cannot continue.
	SeverityError Severity = iota
	// SeverityWarning indicates a non-fatal condition worth surfacing to the user.
	SeverityWarning
)

// String returns the human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// Position locates a diagnostic in the original source, as carried by the
// detailed tree's nodes. The lexer/parser that produced these positions are
// out of scope for this module; we only ever forward what the input tree gives us.
type Position struct {
	File   string
	Line   int
	Column int
}

// String renders the position as "file:line:column", or "<unknown>" if no file is set.
func (p Position) String() string {
	if p.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Subsystem identifies which component of the code generator raised a diagnostic.
type Subsystem string

// Subsystem codes, one per component in the system overview.
const (
	SubsystemMangle    Subsystem = "mangle"
	SubsystemTypes     Subsystem = "types"
	SubsystemScope     Subsystem = "scope"
	SubsystemCast      Subsystem = "cast"
	SubsystemLifecycle Subsystem = "lifecycle"
	SubsystemClass     Subsystem = "class"
	SubsystemCompiler  Subsystem = "compiler"
	SubsystemDriver    Subsystem = "driver"
)

// Error is a structured diagnostic. It implements the error interface so it
// can be returned and wrapped exactly like any other Go error, while still
// giving the driver and the logger access to its fields.
type Error struct {
	Severity  Severity
	Subsystem Subsystem
	Pos       Position
	Summary   string
	// Detail holds an optional multi-line elaboration of Summary.
	Detail string
}

// Error renders the single-line form required by the error handling design:
// "severity subsystem position: summary".
func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s] %s: %s", e.Severity, e.Subsystem, e.Pos, e.Summary)
}

// New builds an Error-severity diagnostic for the given subsystem and position.
func New(sub Subsystem, pos Position, format string, args ...any) *Error {
	return &Error{Severity: SeverityError, Subsystem: sub, Pos: pos, Summary: fmt.Sprintf(format, args...)}
}

// Warnf builds a Warning-severity diagnostic for the given subsystem and position.
func Warnf(sub Subsystem, pos Position, format string, args ...any) *Error {
	return &Error{Severity: SeverityWarning, Subsystem: sub, Pos: pos, Summary: fmt.Sprintf(format, args...)}
}

// NotImplemented is raised by the Node Compiler for constructs that are
// stubbed per the specification (generators, async, try/catch, throw,
// yield, await, full lambda capture). It carries the node kind so the
// driver can report exactly what tripped it instead of a generic message.
type NotImplemented struct {
	Kind string
	Pos  Position
}

// Error implements the error interface.
func (n *NotImplemented) Error() string {
	return fmt.Sprintf("%s [%s] %s: %s is not implemented in this code generator", SeverityError, SubsystemCompiler, n.Pos, n.Kind)
}

// AsCompilerError adapts a NotImplemented into the common *Error shape so
// driver-level reporting doesn't need a type switch.
func (n *NotImplemented) AsCompilerError() *Error {
	return New(SubsystemCompiler, n.Pos, "%s is not implemented in this code generator", n.Kind)
}
