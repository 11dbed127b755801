package tree

import "github.com/alta-lang/altac-codegen/typesys"

// Parameter is one function parameter as it appears in a detailed tree
// (name, resolved type, and optional default-value expression).
type Parameter struct {
	Name    string
	Type    *typesys.Type
	Default Expression // nil if the parameter has no default value
}

// FunctionDefinition is a named (or anonymous, for Name == "") function or
// method declaration. A parameter's default expression is carried in
// Parameter.Default; the Node Compiler emits only the full-arity entry
// point and no per-default trampoline.
type FunctionDefinition struct {
	stmtBase
	Name       string
	MangledID  string
	Parameters []Parameter
	ReturnType *typesys.Type
	Body       *Block

	// MethodOf is set for instance methods; `this` is implicitly parameter 0.
	MethodOf *typesys.ClassRef

	// Variadic describes a trailing variadic parameter, if any.
	Variadic *typesys.VariadicParam

	// NativeLinkName, when non-empty, is a `native.link name` attribute
	// pinning the emitted symbol's linkage name instead of mangling it.
	NativeLinkName string
}

// VariableDefinition declares a new binding: `let name = value` at either
// module scope (a global) or inside a function body (a local/alloca).
type VariableDefinition struct {
	stmtBase
	Name  string
	Type  *typesys.Type
	Value Expression // nil requests default-construction or zero-init
	// IsGlobal marks a module-root declaration.
	IsGlobal bool
}

// ReturnStatement returns from the innermost enclosing function.
type ReturnStatement struct {
	stmtBase
	Value Expression // nil for a bare `return;`
}

// ConditionalStatement is the statement form of `if`/`else if`/`else`.
type ConditionalStatement struct {
	stmtBase
	Condition   Expression
	Consequence *Block
	Alternative Statement // *Block, or another *ConditionalStatement, or nil
}

// RangedForDirection distinguishes counting up from counting down.
type RangedForDirection int

// Ranged-for counting directions.
const (
	RangedForUp RangedForDirection = iota
	RangedForDown
)

// RangedForStatement lowers `for x in a..b` / `a...b` loops (§4.8).
type RangedForStatement struct {
	stmtBase
	CounterName string
	CounterType *typesys.Type
	Start       Expression
	End         Expression
	Inclusive   bool // `...` vs `..`
	Direction   RangedForDirection
	Body        *Block
}

// BreakStatement exits the innermost enclosing loop.
type BreakStatement struct {
	stmtBase
	Label string // "" for the innermost loop
}

// ContinueStatement continues the innermost enclosing loop.
type ContinueStatement struct {
	stmtBase
	Label string
}

// EnumerationMember is one member of an Enumeration; Value is nil when the
// member takes the previous member's value plus one.
type EnumerationMember struct {
	Name  string
	Value Expression
}

// Enumeration declares a set of named integer constants, each compiled to a
// module-internal global.
type Enumeration struct {
	stmtBase
	Name       string
	Underlying *typesys.Type
	Members    []EnumerationMember
}

// ClassDefinition declares a class: its layout, constructors, destructor,
// accessors, and operators. The Class Emitter (package classgen) is what
// actually lowers this node; the Node Compiler only dispatches to it.
type ClassDefinition struct {
	stmtBase
	Descriptor   *typesys.Class
	Constructors []*ConstructorDefinition
	Destructor   *Block // nil if the class declares none
	Accessors    []*AccessorDefinition
	Operators    []*OperatorDefinition
}

// ConstructorDefinition is one user-defined constructor body.
type ConstructorDefinition struct {
	Descriptor *typesys.Constructor
	Parameters []Parameter
	// SuperArguments are the arguments passed to a base-class constructor
	// in the initialiser list, keyed by parent class name.
	SuperArguments map[string][]Argument
	Body           *Block
}

// AccessorDefinition is one user-defined read-accessor body.
type AccessorDefinition struct {
	Descriptor *typesys.Accessor
	Body       *Block
}

// OperatorDefinition is one user-defined operator-overload body.
type OperatorDefinition struct {
	Descriptor *typesys.Operator
	Parameters []Parameter
	Body       *Block
}

// UnimplementedKind enumerates the stubbed constructs (§4.8, §7): each
// compiles to a structured diag.NotImplemented error carrying this kind
// and the node's position, rather than silently miscompiling.
type UnimplementedKind string

// Stubbed construct kinds.
const (
	KindThrow     UnimplementedKind = "throw"
	KindTry       UnimplementedKind = "try"
	KindAwait     UnimplementedKind = "await"
	KindYield     UnimplementedKind = "yield"
	KindGenerator UnimplementedKind = "generator"
)

// Unimplemented stands in for any of the stubbed node kinds above.
type Unimplemented struct {
	stmtBase
	Kind UnimplementedKind
}

func (*Unimplemented) expressionNode() {}

// Type reports void for an Unimplemented node used in expression position;
// the compiler never actually reads it, since compiling this node always
// raises before producing a value.
func (u *Unimplemented) Type() *typesys.Type {
	return &typesys.Type{Kind: typesys.KindNative, Native: typesys.NativeVoid}
}
