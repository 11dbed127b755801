package tree

import (
	"github.com/alta-lang/altac-codegen/cast"
	"github.com/alta-lang/altac-codegen/typesys"
)

// IntegerLiteral is a literal integer expression.
type IntegerLiteral struct {
	exprBase
	Value int64
}

// FloatLiteral is a literal floating-point expression (float or double,
// distinguished by ResolvedType).
type FloatLiteral struct {
	exprBase
	Value float64
}

// BooleanLiteral is a literal `true`/`false` expression.
type BooleanLiteral struct {
	exprBase
	Value bool
}

// StringLiteral is a literal string expression.
type StringLiteral struct {
	exprBase
	Value string
}

// NullptrLiteral is the `nullptr` literal.
type NullptrLiteral struct {
	exprBase
}

// SizeofExpression computes the store size of a type at compile time.
type SizeofExpression struct {
	exprBase
	Operand *typesys.Type
}

// PrefixExpression is a unary prefix operator: `!`, `-`, `+`, `~`, `++`, `--`.
type PrefixExpression struct {
	exprBase
	Operator string
	Right    Expression
}

// PostfixExpression is a unary postfix operator: `++`, `--`.
type PostfixExpression struct {
	exprBase
	Operator string
	Left     Expression
}

// InfixExpression is a binary operator expression (arithmetic, comparison,
// logical, bitwise). Pointer arithmetic is distinguished by the operand
// types' indirection level, not by a separate operator set.
type InfixExpression struct {
	exprBase
	Operator string
	Left     Expression
	Right    Expression
}

// Identifier is a bare name reference resolved by semantic analysis to a
// specific Symbol (global, parameter, local, function, or `this`).
type Identifier struct {
	exprBase
	Value  string
	Symbol Symbol
}

// SymbolScope classifies what an Identifier's Symbol resolved to.
type SymbolScope int

// The kinds of thing an Identifier may resolve to.
const (
	SymbolGlobal SymbolScope = iota
	SymbolLocal
	SymbolParameter
	SymbolThis
	SymbolFunction
)

// Symbol is the resolved binding behind an Identifier, as attached by
// semantic analysis — this module never performs name resolution itself.
type Symbol struct {
	Scope SymbolScope
	// Index is the parameter/local slot index when applicable (`this` is
	// always parameter 0 of a method, per §4.8's Fetch rule).
	Index int
	// MangledName is the already-mangled identifier for SymbolGlobal and
	// SymbolFunction references.
	MangledName string
}

// SpecialFetchKind enumerates the non-identifier special fetches §4.8 lists.
type SpecialFetchKind int

// Special fetch kinds.
const (
	// SpecialInvalidValue fetches the "invalid value" sentinel for a
	// declared type (the `invalid T` attribute, null of that type).
	SpecialInvalidValue SpecialFetchKind = iota
	// SpecialScheduler fetches the module scheduler global.
	SpecialScheduler
	// SpecialCoroutineHandle fetches the active coroutine handle.
	SpecialCoroutineHandle
)

// SpecialFetch is one of the non-identifier special fetches (§4.8).
type SpecialFetch struct {
	exprBase
	Kind SpecialFetchKind
}

// AccessorKind distinguishes the four member-access shapes §4.8 describes.
type AccessorKind int

const (
	// AccessorMember is a plain GEP into precomputed parent-chain indices.
	AccessorMember AccessorKind = iota
	// AccessorBitfield reads `(x & mask) >> start`.
	AccessorBitfield
	// AccessorReadMethod calls a read-accessor method.
	AccessorReadMethod
	// AccessorSuper obtains the root-instance pointer before a super-class
	// virtual-table access.
	AccessorSuper
)

// Accessor is a member-access expression: `target.Member`.
type Accessor struct {
	exprBase
	Kind   AccessorKind
	Target Expression
	Member string
	// ParentChainIndices is precomputed by semantic analysis: the ordered
	// aggregate-index path from Target's type down to the sub-object that
	// owns Member.
	ParentChainIndices []int
	// BitfieldEntry is valid when Kind == AccessorBitfield.
	BitfieldEntry *typesys.BitfieldEntry
}

// CastExpression applies a precomputed cast path (§4.5) to Operand.
type CastExpression struct {
	exprBase
	Operand    Expression
	Path       []cast.Step
	CopyInfo   cast.CopyInfo
	ManualCast bool
}

// Argument is one call argument: either a single expression, or (for a
// variadic parameter slot) an ordered list of expressions, per §6's
// argument-adjustment descriptors.
type Argument struct {
	Single Expression
	// List is used instead of Single when this argument slot is variadic.
	List []Expression
}

// CallExpression is a function or method call.
type CallExpression struct {
	exprBase
	Function  Expression
	Arguments []Argument
	// IsMethodCall marks a call whose Function is an Accessor resolving to
	// a method; the compiler prepends the target's address as the hidden
	// first argument. The method is looked up on the target's own class and
	// the pointer is passed without an upcast to a declaring parent.
	IsMethodCall bool
}

// AssignmentTargetKind distinguishes how an Assignment's left-hand side is
// realised in IR.
type AssignmentTargetKind int

const (
	// AssignPlain stores through a computed address.
	AssignPlain AssignmentTargetKind = iota
	// AssignBitfield read-modify-writes the underlying integer.
	AssignBitfield
	// AssignOperatorMethod calls an operator-method instead of storing.
	AssignOperatorMethod
)

// Assignment is `lhs = rhs` (or a compound form already desugared by
// semantic analysis into plain assignment plus an InfixExpression).
type Assignment struct {
	exprBase
	Kind   AssignmentTargetKind
	Target Expression
	Value  Expression
	// Strict marks an assignment that must not destruct the prior value
	// (e.g. initialising storage that held no live value yet).
	Strict bool
}

// ClassInstantiation constructs a new instance of a class.
type ClassInstantiation struct {
	exprBase
	Class *typesys.ClassRef
	// ConstructorName selects which overload to invoke ("" for the default).
	ConstructorName string
	Arguments       []Argument
	// Persistent requests heap allocation (the `_persistent_` entry point)
	// instead of a stack value.
	Persistent bool
	// IsSuperCall marks a constructor invocation of a parent class from
	// within another constructor's body.
	IsSuperCall bool
}

// ConditionalExpression is the `cond ? yes : no` ternary form.
type ConditionalExpression struct {
	exprBase
	Condition   Expression
	Consequent  Expression
	Alternative Expression
}

// InstanceofExpression tests a value's runtime type.
type InstanceofExpression struct {
	exprBase
	Target Expression
	// Against is the type being tested against; for a union Target this is
	// a tag comparison, otherwise a class-graph reachability check.
	Against *typesys.Type
}

// LambdaExpression is an inline closure literal. Its body is compiled as a
// nested function (§4.8); capture handling beyond simple free-variable
// copy is out of this core's scope (§9 design notes).
type LambdaExpression struct {
	exprBase
	Parameters []Parameter
	Body       *Block
	// Captures lists the free variables the lambda closes over, resolved
	// by semantic analysis.
	Captures []Identifier
}
