// Package lifecycle implements the Copy/Destroy Engine (§4.6): the rules
// for copying and destroying a value of any of the kinds the Type
// Translator knows about, dispatching to generated per-type helpers for
// unions and optionals, to class copy constructors/destructors for
// classes, and to atomic reference-count updates for closures.
package lifecycle

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/alta-lang/altac-codegen/irgen"
	"github.com/alta-lang/altac-codegen/typesys"
)

// Engine implements Copy and Destroy against an irgen.Context.
type Engine struct {
	IR *irgen.Context
}

// Copy emits the copy of v (of type t), returning the block control
// continues in and the resulting value. isRegisterValue marks an r-value
// currently held in an SSA register, which must be tmpified into
// addressable storage before a copy constructor can take its address
// (§4.6: "it is first tmpified into addressable storage").
func (e *Engine) Copy(cur *ir.Block, v value.Value, t *typesys.Type, isRegisterValue bool) (*ir.Block, value.Value) {
	if t.Modifiers.IndirectionLevel() > 0 {
		return cur, v // pointer/reference: no-op
	}

	switch t.Kind {
	case typesys.KindNative, typesys.KindBitfield:
		return cur, v

	case typesys.KindFunction:
		if t.Function.IsRaw {
			return cur, v
		}
		return e.copyClosure(cur, v)

	case typesys.KindUnion:
		return e.callGenerated(cur, v, t, "copy")

	case typesys.KindOptional:
		return e.callGenerated(cur, v, t, "copy")

	case typesys.KindClass:
		return e.copyClass(cur, v, t, isRegisterValue)

	default:
		return cur, v
	}
}

// copyClosure atomically increments the lambda state's reference count, if
// the state pointer is non-null (§4.6).
func (e *Engine) copyClosure(cur *ir.Block, v value.Value) (*ir.Block, value.Value) {
	fn := cur.Parent
	stateSlot := cur.NewExtractValue(v, 1)
	stateTyped := cur.NewBitCast(stateSlot, types.NewPointer(e.IR.Descriptors.BasicLambdaState))

	isNull := cur.NewICmp(enum.IPredEQ, stateSlot, constant.NewNull(types.NewPointer(types.I8)))
	incBlock := newBlock(fn, "closure.copy.inc")
	cont := newBlock(fn, "closure.copy.cont")
	cur.NewCondBr(isNull, cont, incBlock)

	refCountPtr := incBlock.NewGetElementPtr(e.IR.Descriptors.BasicLambdaState, stateTyped,
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	incBlock.NewAtomicRMW(enum.AtomicOpAdd, refCountPtr, constant.NewInt(types.I64, 1), enum.AtomicOrderingRelease)
	incBlock.NewBr(cont)

	return cont, v
}

// copyClass calls the class's copy constructor (the user-defined one, or
// the synthesised default), tmpifying v first if it is a register value.
func (e *Engine) copyClass(cur *ir.Block, v value.Value, t *typesys.Type, isRegisterValue bool) (*ir.Block, value.Value) {
	if isRegisterValue {
		classIR := e.IR.Translate(t, false)
		slot := cur.NewAlloca(classIR)
		cur.NewStore(v, slot)
		v = slot
	}

	cl := t.Class.Descriptor()
	mangledID := e.IR.Mangler.MangleType(fmt.Sprintf("ctor.copy.%s", cl.Name))
	classPtr := types.NewPointer(e.IR.Translate(t, false))
	fn := e.IR.DeclareFunc(mangledID, types.Void,
		ir.NewParam("this", classPtr),
		ir.NewParam("source", classPtr),
	)
	result := cur.NewAlloca(e.IR.Translate(t, false))
	cur.NewCall(fn, result, v)
	return cur, cur.NewLoad(e.IR.Translate(t, false), result)
}

// Destroy emits the destruction of v (of type t), returning the block
// control continues in. force bypasses the pointer-level guard that
// otherwise makes raw pointers non-destructible (§4.6).
func (e *Engine) Destroy(cur *ir.Block, v value.Value, t *typesys.Type, force bool) *ir.Block {
	if t.Modifiers.IndirectionLevel() > 0 && !force {
		return cur
	}

	switch t.Kind {
	case typesys.KindNative, typesys.KindBitfield:
		return cur

	case typesys.KindFunction:
		if t.Function.IsRaw {
			return cur
		}
		return e.destroyClosure(cur, v)

	case typesys.KindUnion, typesys.KindOptional:
		block, _ := e.callGenerated(cur, v, t, "dtor")
		return block

	case typesys.KindClass:
		return e.destroyClass(cur, v, t)

	default:
		return cur
	}
}

// destroyClosure decrements the lambda state's reference count and frees
// it (and whatever it owns) when it reaches zero (§4.6).
func (e *Engine) destroyClosure(cur *ir.Block, v value.Value) *ir.Block {
	fn := cur.Parent
	stateSlot := cur.NewExtractValue(v, 1)
	stateTyped := cur.NewBitCast(stateSlot, types.NewPointer(e.IR.Descriptors.BasicLambdaState))

	isNull := cur.NewICmp(enum.IPredEQ, stateSlot, constant.NewNull(types.NewPointer(types.I8)))
	decBlock := newBlock(fn, "closure.destroy.dec")
	freeBlock := newBlock(fn, "closure.destroy.free")
	cont := newBlock(fn, "closure.destroy.cont")
	cur.NewCondBr(isNull, cont, decBlock)

	refCountPtr := decBlock.NewGetElementPtr(e.IR.Descriptors.BasicLambdaState, stateTyped,
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	old := decBlock.NewAtomicRMW(enum.AtomicOpSub, refCountPtr, constant.NewInt(types.I64, 1), enum.AtomicOrderingRelease)
	isZero := decBlock.NewICmp(enum.IPredEQ, old, constant.NewInt(types.I64, 1))
	decBlock.NewCondBr(isZero, freeBlock, cont)

	freeFn, _ := e.IR.LookupFunc(e.IR.Mangler.MangleType("runtime.free"))
	if freeFn != nil {
		freeBlock.NewCall(freeFn, stateSlot)
	}
	freeBlock.NewBr(cont)

	return cont
}

// destroyClass walks the instance-info header to the real class's
// class-info, loads its destructor pointer, and calls it with the
// root-instance pointer (§4.6). The generated destructor (package
// classgen) is itself responsible for recursing into members and parents.
func (e *Engine) destroyClass(cur *ir.Block, v value.Value, t *typesys.Type) *ir.Block {
	cl := t.Class.Descriptor()
	if !cl.HasUserDestructor() && len(cl.Parents) == 0 && allTrivial(cl) {
		return cur
	}

	classIR := e.IR.Translate(t, false)
	instanceInfoPtr := cur.NewGetElementPtr(classIR, v, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	classInfoPtrPtr := cur.NewGetElementPtr(e.IR.Descriptors.InstanceInfo, instanceInfoPtr,
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	classInfoPtr := cur.NewLoad(types.NewPointer(e.IR.Descriptors.ClassInfo), classInfoPtrPtr)

	dtorPtrPtr := cur.NewGetElementPtr(e.IR.Descriptors.ClassInfo, classInfoPtr,
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	dtorPtr := cur.NewLoad(types.NewPointer(e.IR.Descriptors.ClassDestructor), dtorPtrPtr)

	offsetFromBasePtr := cur.NewGetElementPtr(e.IR.Descriptors.ClassInfo, classInfoPtr,
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 4))
	offsetFromBase := cur.NewLoad(types.I64, offsetFromBasePtr)

	asInt := cur.NewPtrToInt(v, types.I64)
	rootInt := cur.NewSub(asInt, offsetFromBase)
	root := cur.NewIntToPtr(rootInt, types.NewPointer(types.I8))

	cur.NewCall(dtorPtr, root)
	return cur
}

func allTrivial(cl *typesys.Class) bool {
	for _, m := range cl.Members {
		if m.Type.Kind == typesys.KindClass || m.Type.Kind == typesys.KindUnion || m.Type.Kind == typesys.KindOptional {
			return false
		}
		if m.Type.Kind == typesys.KindFunction && !m.Type.Function.IsRaw {
			return false
		}
	}
	return true
}

// callGenerated invokes the generated copy_<mangle(T)> or dtor_<mangle(T)>
// helper for a union or optional type.
func (e *Engine) callGenerated(cur *ir.Block, v value.Value, t *typesys.Type, prefix string) (*ir.Block, value.Value) {
	mangledType := e.IR.Mangler.MangleType(t.String())
	mangledID := e.IR.Mangler.MangleType(prefix + "." + mangledType)

	irType := e.IR.Translate(t, true)
	var fn *ir.Func
	if prefix == "copy" {
		fn = e.IR.DeclareFunc(mangledID, irType, ir.NewParam("source", irType))
	} else {
		fn = e.IR.DeclareFunc(mangledID, types.Void, ir.NewParam("target", irType))
	}

	call := cur.NewCall(fn, v)
	return cur, call
}

func newBlock(parent *ir.Func, name string) *ir.Block {
	b := ir.NewBlock(name)
	parent.Blocks = append(parent.Blocks, b)
	return b
}
