// Package cast implements the Cast Engine (§4.5): it walks a precomputed
// cast path — produced by semantic analysis — and emits the IR that
// realises it. This file defines the path's data shapes; engine.go holds
// the emission logic.
package cast

import "github.com/alta-lang/altac-codegen/typesys"

// StepKind enumerates the cast path step kinds, in the order §4.5's table lists them.
type StepKind int

// Cast path step kinds.
const (
	StepDestination StepKind = iota
	StepSimpleCoercion
	StepUpcast
	StepDowncast
	StepReference
	StepDereference
	StepWrap
	StepUnwrap
	StepWiden
	StepNarrow
	StepMulticast
	StepFrom
	StepTo
)

// String renders the step kind's name, for diagnostics.
func (k StepKind) String() string {
	switch k {
	case StepDestination:
		return "Destination"
	case StepSimpleCoercion:
		return "SimpleCoercion"
	case StepUpcast:
		return "Upcast"
	case StepDowncast:
		return "Downcast"
	case StepReference:
		return "Reference"
	case StepDereference:
		return "Dereference"
	case StepWrap:
		return "Wrap"
	case StepUnwrap:
		return "Unwrap"
	case StepWiden:
		return "Widen"
	case StepNarrow:
		return "Narrow"
	case StepMulticast:
		return "Multicast"
	case StepFrom:
		return "From"
	case StepTo:
		return "To"
	default:
		return "Unknown"
	}
}

// Step is one entry in a precomputed cast path.
type Step struct {
	Kind StepKind

	// From/To carry the step's source and destination types, when
	// meaningful for that kind (e.g. Upcast/Downcast/Widen/Narrow).
	From *typesys.Type
	To   *typesys.Type

	// TargetClass is the specific parent/child class for Upcast/Downcast steps.
	TargetClass *typesys.ClassRef

	// MulticastCases lists, for a StepMulticast step, the sub-path to run
	// for each viable union member (by member index into the source
	// union's Union slice). Members with no entry here are non-viable and
	// the emitted switch routes them to bad_cast.
	MulticastCases map[int][]Step

	// MethodName names the user-defined from/to conversion method for
	// StepFrom/StepTo steps.
	MethodName string
}

// CopyInfo carries the per-node copy hints the Cast Engine and Copy/Destroy
// Engine consult: whether a copy is still required, and whether the value
// currently lives in a register (and must be tmpified before a copy
// constructor can take its address).
type CopyInfo struct {
	// Copyable reports whether the source type admits copying at all.
	Copyable bool
	// IsRegisterValue reports whether the value is an r-value currently
	// held in an SSA register rather than addressable storage.
	IsRegisterValue bool
}
