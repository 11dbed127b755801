// Package typesys models the resolved data descriptors the code generator
// consumes: type descriptors (§3 "Type descriptor") and class descriptors
// (§3 "Class descriptor"). These are produced by the out-of-scope semantic
// analyser; this package only defines their shape and the small set of
// pure helpers (DestroyReferences, DestroyIndirection, Follow, Dereference)
// the rest of the code generator needs to reason about indirection levels.
package typesys

import "strings"

// Kind classifies a resolved type descriptor.
type Kind int

// The kinds of type a detailed-tree type descriptor may carry.
const (
	KindNative Kind = iota
	KindFunction
	KindClass
	KindUnion
	KindOptional
	KindBitfield
)

// NativeKind enumerates the native scalar types.
type NativeKind int

// Native scalar kinds. Width and signedness are carried by Modifiers, not
// by separate NativeKind values, per §3 ("Carries an ordered list of
// modifier flags... long, short, unsigned, signed").
const (
	NativeInt NativeKind = iota
	NativeByte
	NativeBool
	NativeVoid
	NativeFloat
	NativeDouble
	NativeUserNamed
)

// Modifier is a single entry in a type descriptor's ordered modifier list.
// Pointer and Reference may each appear more than once; every occurrence
// adds one level of indirection (§3: "Indirection level is pointer level
// plus reference level").
type Modifier int

// Modifier flags, matching §3 verbatim.
const (
	ModConst Modifier = iota
	ModPointer
	ModReference
	ModLong
	ModShort
	ModUnsigned
	ModSigned
)

// Modifiers is the ordered modifier list carried by a type descriptor.
type Modifiers []Modifier

// PointerLevel counts ModPointer entries.
func (m Modifiers) PointerLevel() int { return m.count(ModPointer) }

// ReferenceLevel counts ModReference entries.
func (m Modifiers) ReferenceLevel() int { return m.count(ModReference) }

// IndirectionLevel is the sum of pointer and reference levels.
func (m Modifiers) IndirectionLevel() int { return m.PointerLevel() + m.ReferenceLevel() }

// IsConst reports whether the const modifier is present.
func (m Modifiers) IsConst() bool { return m.has(ModConst) }

// IsLong reports whether the long modifier is present.
func (m Modifiers) IsLong() bool { return m.has(ModLong) }

// IsShort reports whether the short modifier is present.
func (m Modifiers) IsShort() bool { return m.has(ModShort) }

// IsUnsigned reports whether the unsigned modifier is present.
func (m Modifiers) IsUnsigned() bool { return m.has(ModUnsigned) }

// IsSigned reports whether the signed modifier is present.
func (m Modifiers) IsSigned() bool { return m.has(ModSigned) }

func (m Modifiers) count(target Modifier) int {
	n := 0
	for _, mod := range m {
		if mod == target {
			n++
		}
	}
	return n
}

func (m Modifiers) has(target Modifier) bool {
	for _, mod := range m {
		if mod == target {
			return true
		}
	}
	return false
}

// withoutLast drops the last occurrence (from the end) of any modifier in targets.
func (m Modifiers) withoutLast(targets ...Modifier) Modifiers {
	for i := len(m) - 1; i >= 0; i-- {
		for _, t := range targets {
			if m[i] == t {
				out := make(Modifiers, 0, len(m)-1)
				out = append(out, m[:i]...)
				out = append(out, m[i+1:]...)
				return out
			}
		}
	}
	return m
}

// withoutAll drops every occurrence of any modifier in targets.
func (m Modifiers) withoutAll(targets ...Modifier) Modifiers {
	out := make(Modifiers, 0, len(m))
	for _, mod := range m {
		skip := false
		for _, t := range targets {
			if mod == t {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, mod)
		}
	}
	return out
}

// Type is a resolved type descriptor as produced by semantic analysis.
type Type struct {
	Kind      Kind
	Modifiers Modifiers

	// Native is valid when Kind == KindNative.
	Native NativeKind
	// NativeName carries the user-facing alias name for NativeUserNamed.
	NativeName string

	// Function is valid when Kind == KindFunction.
	Function *FunctionType

	// Class is valid when Kind == KindClass.
	Class *ClassRef

	// Union is the ordered set of member types when Kind == KindUnion.
	Union []*Type

	// Optional is the target type when Kind == KindOptional.
	Optional *Type

	// Bitfield is valid when Kind == KindBitfield.
	Bitfield *BitfieldType
}

// ClassRef is a (possibly not-yet-resolved) reference to a class descriptor.
// The detailed tree names classes by their mangled-stable name; Resolve is
// filled in by whatever owns the class registry (see classgen.Registry).
type ClassRef struct {
	Name    string
	Resolve func() *Class
}

// Descriptor dereferences the class reference, panicking if it was never bound.
func (c *ClassRef) Descriptor() *Class {
	if c.Resolve == nil {
		panic("typesys: unresolved class reference " + c.Name)
	}
	return c.Resolve()
}

// VariadicKind distinguishes the two ways a variadic parameter may be lowered.
type VariadicKind int

const (
	// VariadicNative marks a C-style `...` vararg (native.vararg attribute).
	VariadicNative VariadicKind = iota
	// VariadicCountData marks the (count: i64, data: T*) pair lowering.
	VariadicCountData
)

// VariadicParam describes a trailing variadic Alta parameter.
type VariadicParam struct {
	Kind    VariadicKind
	Element *Type
}

// Parameter is a single function parameter descriptor.
type Parameter struct {
	Name string
	Type *Type
}

// FunctionType describes either a raw function pointer or a closure.
type FunctionType struct {
	Return     *Type
	Parameters []Parameter
	Variadic   *VariadicParam

	// IsRaw marks a bare function pointer (no closure state); false means
	// the value is a closure (basic_function with a state pointer).
	IsRaw bool

	// MethodOf is set when this signature belongs to an instance method;
	// the Type Translator prepends a hidden `self` parameter for it.
	MethodOf *ClassRef
}

// BitfieldEntry is one named bit range within a bitfield's underlying integer.
type BitfieldEntry struct {
	Name  string
	Start int
	End   int // inclusive
}

// BitfieldType describes the underlying integer type and its named bit ranges.
type BitfieldType struct {
	Underlying *Type
	Entries    []BitfieldEntry
}

// DestroyReferences strips only the reference-level modifiers, leaving
// pointer levels intact.
func (t *Type) DestroyReferences() *Type {
	clone := *t
	clone.Modifiers = t.Modifiers.withoutAll(ModReference)
	return &clone
}

// DestroyIndirection strips every pointer and reference modifier, leaving
// the bare addressable-value-free type.
func (t *Type) DestroyIndirection() *Type {
	clone := *t
	clone.Modifiers = t.Modifiers.withoutAll(ModPointer, ModReference)
	return &clone
}

// Follow strips exactly one level of indirection (the outermost pointer or
// reference modifier), if any is present.
func (t *Type) Follow() *Type {
	if t.Modifiers.IndirectionLevel() == 0 {
		return t
	}
	clone := *t
	clone.Modifiers = t.Modifiers.withoutLast(ModPointer, ModReference)
	return &clone
}

// Dereference strips exactly one pointer level (loading through a pointer).
func (t *Type) Dereference() *Type {
	if t.Modifiers.PointerLevel() == 0 {
		return t
	}
	clone := *t
	clone.Modifiers = t.Modifiers.withoutLast(ModPointer)
	return &clone
}

// String renders a compact form of the descriptor. Besides diagnostics and
// test failure messages, irgen and lifecycle pass it to the mangler to
// build their memoisation keys.
func (t *Type) String() string {
	var b strings.Builder
	for _, m := range t.Modifiers {
		switch m {
		case ModConst:
			b.WriteString("const ")
		case ModPointer:
			b.WriteString("*")
		case ModReference:
			b.WriteString("&")
		case ModLong:
			b.WriteString("long ")
		case ModShort:
			b.WriteString("short ")
		case ModUnsigned:
			b.WriteString("unsigned ")
		case ModSigned:
			b.WriteString("signed ")
		}
	}
	switch t.Kind {
	case KindNative:
		b.WriteString(nativeName(t.Native, t.NativeName))
	case KindFunction:
		b.WriteString("function")
	case KindClass:
		b.WriteString(t.Class.Name)
	case KindUnion:
		b.WriteString("union")
	case KindOptional:
		b.WriteString("optional<")
		b.WriteString(t.Optional.String())
		b.WriteString(">")
	case KindBitfield:
		b.WriteString("bitfield")
	}
	return b.String()
}

func nativeName(k NativeKind, userName string) string {
	switch k {
	case NativeInt:
		return "int"
	case NativeByte:
		return "byte"
	case NativeBool:
		return "bool"
	case NativeVoid:
		return "void"
	case NativeFloat:
		return "float"
	case NativeDouble:
		return "double"
	default:
		return userName
	}
}
