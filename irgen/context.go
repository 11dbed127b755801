// Package irgen implements the Type Translator (§4.2) and the Layout &
// Runtime Descriptors (§4.3) on top of github.com/llir/llvm, the pure-Go
// LLVM IR builder this backend targets (§1: "LLVM itself is assumed
// available as an IR builder"). A Context is created once per module
// compilation and owns every cache the rest of the code generator needs:
// the memoised type table, the fixed runtime descriptor types, and the
// class-info global registry the Class Emitter populates lazily.
package irgen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"

	"github.com/alta-lang/altac-codegen/mangle"
	"github.com/alta-lang/altac-codegen/typesys"
)

// Context is the per-module translation state. Two compilations in the
// same process never share a Context, per §9's note that the module-scoped
// caches must be replicated per compiler instance.
type Context struct {
	Module  *ir.Module
	Mangler *mangle.Mangler

	// typeCache memoises translate() results by mangled type key (§4.2 P2).
	typeCache map[string]types.Type

	// classTypes memoises the named opaque struct for each class, broken
	// out from typeCache because class layout is filled in lazily and
	// needs to be looked up by *typesys.Class identity, not just by key.
	classTypes map[*typesys.Class]*types.StructType

	// funcs memoises function declarations by mangled id (§3 Lifecycles:
	// "At most one declaration per semantic function identifier").
	funcs map[string]*ir.Func

	// cstrings memoises private string-literal globals by caller-chosen label.
	cstrings map[string]*ir.Global

	// Descriptors holds the fixed runtime layout types (§4.3), built once
	// in NewContext.
	Descriptors Descriptors
}

// Descriptors holds the fixed LLVM types defined once per module, before
// compilation starts (§4.3).
type Descriptors struct {
	ClassDestructor  *types.FuncType   // fn(ptr) -> void
	ClassInfo        *types.StructType // {i8*, class_destructor*, i8*, i64, i64, i64, i64}
	InstanceInfo     *types.StructType // {class_info*}
	BasicClass       *types.StructType // {instance_info}
	BasicFunction    *types.StructType // {ptr, ptr}
	BasicLambdaState *types.StructType // {i64}
}

// NewContext creates a Context for a fresh module compilation, with the
// layout and runtime descriptor types populated per §4.3.
func NewContext(moduleName string) *Context {
	m := ir.NewModule()
	m.SourceFilename = moduleName

	c := &Context{
		Module:     m,
		Mangler:    mangle.New(),
		typeCache:  make(map[string]types.Type),
		classTypes: make(map[*typesys.Class]*types.StructType),
		funcs:      make(map[string]*ir.Func),
		cstrings:   make(map[string]*ir.Global),
	}
	c.Descriptors = buildDescriptors(m)
	return c
}

func buildDescriptors(m *ir.Module) Descriptors {
	i8ptr := types.NewPointer(types.I8)

	classDtor := types.NewFunc(types.Void, i8ptr)

	classInfo := types.NewStruct(
		i8ptr,                       // type name
		types.NewPointer(classDtor), // destructor (may be null)
		i8ptr,                       // child-class name, or null
		types.I64,                   // offset_from_real
		types.I64,                   // offset_from_base
		types.I64,                   // offset_from_owner
		types.I64,                   // offset_to_next
	)
	classInfoNamed := m.NewTypeDef("alta.class_info", classInfo)

	instanceInfo := m.NewTypeDef("alta.instance_info", types.NewStruct(types.NewPointer(classInfoNamed)))
	basicClass := m.NewTypeDef("alta.basic_class", types.NewStruct(instanceInfo))
	basicFunction := m.NewTypeDef("alta.basic_function", types.NewStruct(i8ptr, i8ptr))
	basicLambdaState := m.NewTypeDef("alta.basic_lambda_state", types.NewStruct(types.I64))

	return Descriptors{
		ClassDestructor:  classDtor,
		ClassInfo:        classInfoNamed,
		InstanceInfo:     instanceInfo,
		BasicClass:       basicClass,
		BasicFunction:    basicFunction,
		BasicLambdaState: basicLambdaState,
	}
}

// DeclareFunc returns the existing declaration for mangledID, or creates an
// empty one with the given signature (§3 Lifecycles: function declarations
// are created on first reference; bodies filled in when the defining node
// is compiled).
func (c *Context) DeclareFunc(mangledID string, retType types.Type, params ...*ir.Param) *ir.Func {
	if fn, ok := c.funcs[mangledID]; ok {
		return fn
	}
	fn := c.Module.NewFunc(mangledID, retType, params...)
	c.funcs[mangledID] = fn
	return fn
}

// LookupFunc returns a previously declared function, if any.
func (c *Context) LookupFunc(mangledID string) (*ir.Func, bool) {
	fn, ok := c.funcs[mangledID]
	return fn, ok
}

// CString defines a private global holding s as a NUL-terminated i8 array
// and returns a pointer to its first byte, memoised by label so repeated
// calls for the same logical string (e.g. the same diagnostic site) share
// one global.
func (c *Context) CString(label, s string) *ir.Global {
	if g, ok := c.cstrings[label]; ok {
		return g
	}
	data := constant.NewCharArrayFromString(s + "\x00")
	g := c.Module.NewGlobalDef(c.Mangler.MangleType("cstr."+label), data)
	g.Immutable = true
	g.Linkage = enum.LinkagePrivate
	c.cstrings[label] = g
	return g
}

// ClassType returns the class's named opaque/filled struct type, creating
// the opaque form on first reference. Package classgen uses this to obtain
// the struct to fill via FinishClassLayout once it has computed the field
// list; other packages use it (via Translate) purely as an opaque handle.
func (c *Context) ClassType(cl *typesys.Class) *types.StructType {
	return c.classOpaque(cl)
}

// classOpaque returns (creating if necessary) the named opaque struct type
// for cl, breaking translation cycles between mutually-referencing classes
// per §4.2 ("cycles are broken by inserting a named opaque struct first").
func (c *Context) classOpaque(cl *typesys.Class) *types.StructType {
	if st, ok := c.classTypes[cl]; ok {
		return st
	}
	name := fmt.Sprintf("class.%s", c.Mangler.MangleType(cl.Name))
	st := c.Module.NewTypeDef(name, types.NewStruct())
	c.classTypes[cl] = st
	return st
}
