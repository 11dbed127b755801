// Package abi declares the fixed set of runtime entry points a generated
// object file depends on (§6 "Generated-program runtime ABI"): diagnostic,
// class-graph descent, process-lifetime bracketing, and error-unwinding
// scaffolding symbols, backed by a small accompanying runtime the compiler
// itself does not emit. Declaring them (rather than defining them) mirrors
// how the teacher's vm package referenced builtins by name without owning
// their implementation.
package abi

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/alta-lang/altac-codegen/irgen"
)

// Runtime holds the declared (never defined) runtime ABI functions for one
// module compilation.
type Runtime struct {
	IR *irgen.Context

	BadCast             *ir.Func
	GetChild            *ir.Func
	InitGlobalRuntime   *ir.Func
	UnwindGlobalRuntime *ir.Func
	ObjectStackPush     *ir.Func
	ObjectStackPop      *ir.Func
	GenericStackPush    *ir.Func
	GenericStackPop     *ir.Func
	ObjectDestroy       *ir.Func
	PushErrorHandler    *ir.Func
	PopErrorHandler     *ir.Func
	ResetError          *ir.Func
	SaveState           *ir.Func
	RestoreState        *ir.Func
}

// Declare declares every §6 runtime ABI symbol against c. These use their
// literal C names directly as extern symbols, never mangled, since the
// accompanying runtime is written against this exact fixed name list —
// each is still memoised through c.DeclareFunc, so a second Declare call
// against the same Context returns the same functions rather than
// redeclaring them.
func Declare(c *irgen.Context) *Runtime {
	i8ptr := types.NewPointer(types.I8)
	voidFn := func(id string, params ...*ir.Param) *ir.Func {
		return c.DeclareFunc(id, types.Void, params...)
	}

	getChild := c.DeclareFunc("_Alta_get_child", i8ptr,
		ir.NewParam("instance", i8ptr), ir.NewParam("depth", types.I64))
	getChild.Sig.Variadic = true

	return &Runtime{
		IR: c,

		BadCast: voidFn("_Alta_bad_cast",
			ir.NewParam("from", i8ptr), ir.NewParam("to", i8ptr)),
		GetChild:            getChild,
		InitGlobalRuntime:   voidFn("_Alta_init_global_runtime"),
		UnwindGlobalRuntime: voidFn("_Alta_unwind_global_runtime"),
		ObjectStackPush:     voidFn("_Alta_object_stack_push", ir.NewParam("v", i8ptr)),
		ObjectStackPop:      c.DeclareFunc("_Alta_object_stack_pop", i8ptr),
		GenericStackPush:    voidFn("_Alta_generic_stack_push", ir.NewParam("v", i8ptr)),
		GenericStackPop:     c.DeclareFunc("_Alta_generic_stack_pop", i8ptr),
		ObjectDestroy:       voidFn("_Alta_object_destroy", ir.NewParam("v", i8ptr)),
		PushErrorHandler:    voidFn("_Alta_push_error_handler", ir.NewParam("handler", i8ptr)),
		PopErrorHandler:     voidFn("_Alta_pop_error_handler"),
		ResetError:          voidFn("_Alta_reset_error"),
		SaveState:           c.DeclareFunc("_Alta_save_state", i8ptr),
		RestoreState:        voidFn("_Alta_restore_state", ir.NewParam("state", i8ptr)),
	}
}

// BadCastCall implements cast.BadCastFunc against the runtime's bad_cast
// entry point, building private string-literal globals for the type names.
func (r *Runtime) BadCastCall(block *ir.Block, fromType, toType string) {
	fromStr := r.stringPtr(block, "badcast.from."+fromType, fromType)
	toStr := r.stringPtr(block, "badcast.to."+toType, toType)
	block.NewCall(r.BadCast, fromStr, toStr)
}

// ChildLookup implements cast.ChildLookupFunc against the runtime's
// get_child entry point for a single-parent-name lookup (the common case);
// multi-step downcasts are expressed by the Node Compiler as nested calls.
func (r *Runtime) ChildLookup(block *ir.Block, instance value.Value, wantClass string) value.Value {
	name := r.stringPtr(block, "downcast.target."+wantClass, wantClass)
	return block.NewCall(r.GetChild, instance, constant.NewInt(types.I64, 1), name)
}

func (r *Runtime) stringPtr(block *ir.Block, label, s string) value.Value {
	g := r.IR.CString(label, s)
	arrType := g.ContentType
	return block.NewGetElementPtr(arrType, g, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
}
