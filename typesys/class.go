package typesys

// ParentRef is one entry in a class's ordered parent list. AggregateIndex
// is this parent's position among the parent sub-objects of the aggregate
// layout, counting from 0; the field index in the aggregate is one higher
// when the class has an instance-info header. Semantic analysis computes
// this once so the code generator never has to re-derive it.
type ParentRef struct {
	Class          *Class
	AggregateIndex int
}

// Member is a single member variable: a name and its resolved type, in
// declaration order.
type Member struct {
	Name           string
	Type           *Type
	HasInitializer bool
}

// Constructor describes one constructor overload. The default copy
// constructor (synthesised when the class declares none of its own) is
// represented by IsDefaultCopy == true with no Name.
type Constructor struct {
	Name          string
	Parameters    []Parameter
	IsDefaultCopy bool
	// IsCast marks a single-parameter constructor usable as a conversion.
	// The Class Emitter builds no separate `from` entry point for it.
	IsCast bool
}

// Destructor describes a class's (optional) user-defined destructor.
type Destructor struct{}

// Accessor describes a read accessor method for a member.
type Accessor struct {
	Name string
	Type *Type
}

// Operator describes an operator overload method (e.g. `+`, `==`, assignment).
type Operator struct {
	Symbol     string
	Parameters []Parameter
	Return     *Type
}

// Class is a resolved class descriptor (§3 "Class descriptor").
type Class struct {
	Name    string
	Parents []ParentRef
	Members []Member

	Constructors []*Constructor
	Destructor   *Destructor
	Accessors    []*Accessor
	Operators    []*Operator

	// IsStructure marks a POD-like aggregate with no instance-info header.
	IsStructure bool
	// IsBitfield marks a class that is actually a bitfield wrapper.
	IsBitfield bool
	// IsCapture marks closure (lambda) capture state.
	IsCapture bool
}

// HasUserDestructor reports whether the class declares a destructor.
func (c *Class) HasUserDestructor() bool { return c.Destructor != nil }

// DefaultCopyConstructor returns the class's copy constructor, synthesising
// a descriptor for the default one if the class declared no constructors
// at all matching IsDefaultCopy. Class descriptors coming from semantic
// analysis are expected to already include the default copy constructor
// per §3's invariant that it is always defined; this is a defensive fallback
// for hand-built test fixtures.
func (c *Class) DefaultCopyConstructor() *Constructor {
	for _, ctor := range c.Constructors {
		if ctor.IsDefaultCopy {
			return ctor
		}
	}
	return &Constructor{IsDefaultCopy: true, Parameters: []Parameter{{Name: "source", Type: &Type{Kind: KindClass, Class: &ClassRef{Name: c.Name, Resolve: func() *Class { return c }}}}}}
}

// SubObjects walks the inheritance graph depth-first in declaration order
// and returns one entry per sub-object: the class itself first, then each
// parent's sub-objects recursively. Diamond inheritance produces repeated
// entries for the shared ancestor — each is a distinct sub-object in the
// aggregate layout, which is exactly what offset_to_next linkage needs to
// thread together. maxDepth guards against malformed (cyclic) input trees;
// a well-formed class graph is a DAG and never approaches it.
func (c *Class) SubObjects() []*Class {
	var out []*Class
	var walk func(cl *Class, depth int)
	walk = func(cl *Class, depth int) {
		if depth > 1<<16 {
			return
		}
		out = append(out, cl)
		for _, p := range cl.Parents {
			walk(p.Class, depth+1)
		}
	}
	walk(c, 0)
	return out
}
