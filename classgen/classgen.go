// Package classgen implements the Class Emitter (§4.7): for each class
// descriptor it builds the aggregate layout, the init function that
// populates per-instance class-info bookkeeping, constructor wrappers, the
// default copy constructor, and the destructor. It is grounded in the
// teacher's object-construction code (compiler/compiler.go's function
// compilation, generalised from a flat bytecode body to init/ctor/dtor
// triples laid out the way a native ABI expects them).
package classgen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/alta-lang/altac-codegen/irgen"
	"github.com/alta-lang/altac-codegen/lifecycle"
	"github.com/alta-lang/altac-codegen/typesys"
)

// Emitter builds the generated functions backing one class descriptor.
type Emitter struct {
	IR        *irgen.Context
	Lifecycle *lifecycle.Engine
}

// NewEmitter creates an Emitter. lc may be nil for layout-only callers
// (e.g. tests that only need FillLayout).
func NewEmitter(c *irgen.Context, lc *lifecycle.Engine) *Emitter {
	return &Emitter{IR: c, Lifecycle: lc}
}

func fieldKey(prefix string, cl *typesys.Class) string {
	return fmt.Sprintf("%s.%s", prefix, cl.Name)
}

func (e *Emitter) mangled(prefix string, cl *typesys.Class) string {
	return e.IR.Mangler.MangleType(fieldKey(prefix, cl))
}

// FillLayout sets the class's aggregate struct body to
// [instance_info?, parent1, parent2, ..., member1, member2, ...], per §4.7.
// Structures and bitfields omit the instance_info header.
func (e *Emitter) FillLayout(cl *typesys.Class) *types.StructType {
	st := e.IR.ClassType(cl)
	if len(st.Fields) > 0 {
		return st // already filled
	}

	var fields []types.Type
	if !cl.IsStructure && !cl.IsBitfield {
		fields = append(fields, e.IR.Descriptors.InstanceInfo)
	}
	for _, p := range cl.Parents {
		// Recurse rather than e.IR.ClassType(p.Class): a parent referenced
		// only as a field here would otherwise stay the empty opaque struct
		// ClassType hands back on first reference, which breaks any GEP
		// that walks down into the parent's own fields (classinfo offset
		// computation, accessor chains through inherited members).
		fields = append(fields, e.FillLayout(p.Class))
	}
	for _, m := range cl.Members {
		fields = append(fields, e.IR.Translate(m.Type, true))
	}
	e.IR.FinishClassLayout(cl, fields)
	return st
}

// EmitInit builds the class's init(self, is_root, should_init_members)
// function per §4.7: when is_root, it populates every sub-object's
// class-info record and the instance-info header pointing at it, then
// (always) dispatches member initialisation.
func (e *Emitter) EmitInit(cl *typesys.Class) *ir.Func {
	classIR := e.FillLayout(cl)
	classPtr := types.NewPointer(classIR)

	mangledID := e.mangled("init", cl)
	if fn, ok := e.IR.LookupFunc(mangledID); ok {
		return fn
	}

	selfParam := ir.NewParam("self", classPtr)
	isRootParam := ir.NewParam("is_root", types.I1)
	shouldInitParam := ir.NewParam("should_init_members", types.I1)
	fn := e.IR.DeclareFunc(mangledID, types.Void, selfParam, isRootParam, shouldInitParam)

	entry := newBlock(fn, "entry")
	infoBlock := newBlock(fn, "init.infos")
	membersBlock := newBlock(fn, "init.members.dispatch")
	entry.NewCondBr(isRootParam, infoBlock, membersBlock)

	infoBlock = e.emitInfoPopulation(infoBlock, cl, selfParam)
	infoBlock.NewBr(membersBlock)

	e.emitMemberDispatch(fn, membersBlock, cl, selfParam, shouldInitParam)
	return fn
}

// infoEntry is one sub-object's static layout facts within cl's hierarchy,
// computed entirely on the Go side since the class hierarchy is fully known
// at codegen time (no runtime walk is needed to find them).
type infoEntry struct {
	class           *typesys.Class
	child           *typesys.Class // the sub-object that contains this one, or nil at the root
	path            []int64        // self -> ... -> this sub-object's field-index route
	offsetFromBase  constant.Constant
	offsetFromOwner constant.Constant
}

// collectInfoEntries walks cl's full parent hierarchy post-order (every
// parent, recursively, before the sub-object that owns them), matching the
// original compiler's info-stack traversal order
// (_examples/original_source/src/altall/compiler.cpp's
// compileClassDefinitionNode), so that repeated occurrences of the same
// class along a diamond get recorded, and hence linked via offset_to_next,
// in the same order the teacher's compiler produces.
func (e *Emitter) collectInfoEntries(cl *typesys.Class) []infoEntry {
	clStruct := e.FillLayout(cl)

	var entries []infoEntry
	var walk func(c, child *typesys.Class, path []int64)
	walk = func(c, child *typesys.Class, path []int64) {
		for i, p := range c.Parents {
			fieldIdx := int64(i)
			if !c.IsStructure && !c.IsBitfield {
				fieldIdx++ // instance_info occupies field 0
			}
			childPath := append(append([]int64{}, path...), fieldIdx)
			walk(p.Class, c, childPath)
		}

		if c.IsStructure || c.IsBitfield {
			return // no instance_info header, hence no class-info record
		}

		var ownerPath []int64
		ownerStruct := clStruct
		if child != nil {
			ownerPath = []int64{path[len(path)-1]}
			ownerStruct = e.FillLayout(child)
		}

		entries = append(entries, infoEntry{
			class:           c,
			child:           child,
			path:            path,
			offsetFromBase:  offsetOf(clStruct, path),
			offsetFromOwner: offsetOf(ownerStruct, ownerPath),
		})
	}
	walk(cl, nil, nil)
	return entries
}

// offsetOf builds the "LLVMOffsetOfElement"-equivalent constant expression
// for path within structTy: a GEP from a null pointer down to that field,
// ptrtoint'd to i64. This lets LLVM's own target-datalayout-aware constant
// folding compute the byte offset, rather than this package hand-computing
// field sizes.
func offsetOf(structTy types.Type, path []int64) constant.Constant {
	indices := []constant.Constant{constant.NewInt(types.I32, 0)}
	for _, idx := range path {
		indices = append(indices, constant.NewInt(types.I32, idx))
	}
	gep := constant.NewGetElementPtr(structTy, constant.NewNull(types.NewPointer(structTy)), indices...)
	return constant.NewPtrToInt(gep, types.I64)
}

// infoOccurrence tracks the most recently emitted class-info global for one
// class along the walk, so a later occurrence of the same class can
// back-patch this one's offset_to_next field.
type infoOccurrence struct {
	global  *ir.Global
	base    constant.Constant
	members []constant.Constant
}

// emitInfoPopulation fills in every sub-object's class-info global and
// stores its address into the matching nested instance-info header of self,
// per §4.7: the destructor field always references this class's own
// generated destructor (EmitDestructor(cl), never a sub-object's own class),
// since destruction must dispatch through the outermost/real class
// regardless of which sub-object pointer triggers it.
func (e *Emitter) emitInfoPopulation(cur *ir.Block, cl *typesys.Class, self value.Value) *ir.Block {
	dtorConst := constant.Constant(constant.NewBitCast(e.EmitDestructor(cl), types.NewPointer(e.IR.Descriptors.ClassDestructor)))
	clStruct := e.IR.ClassType(cl)
	i8ptr := types.NewPointer(types.I8)

	seen := make(map[*typesys.Class]*infoOccurrence)
	count := 0
	for _, en := range e.collectInfoEntries(cl) {
		nameG := e.IR.CString(fieldKey("classinfo.name", en.class), en.class.Name)
		nameConst := constant.Constant(constant.NewGetElementPtr(nameG.ContentType, nameG, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0)))

		childNameConst := constant.Constant(constant.NewNull(i8ptr))
		if en.child != nil {
			childG := e.IR.CString(fieldKey("classinfo.name", en.child), en.child.Name)
			childNameConst = constant.NewGetElementPtr(childG.ContentType, childG, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
		}

		prior, repeated := seen[en.class]
		offsetFromReal := constant.Constant(constant.NewInt(types.I64, 0))
		if repeated {
			offsetFromReal = constant.NewSub(en.offsetFromBase, prior.base)
		}

		members := []constant.Constant{
			nameConst,
			dtorConst,
			childNameConst,
			offsetFromReal,
			en.offsetFromBase,
			en.offsetFromOwner,
			constant.NewInt(types.I64, 0), // offset_to_next: patched below once/if a later occurrence appears
		}

		name := e.IR.Mangler.MangleType(fmt.Sprintf("classinfo.%s.%d", cl.Name, count))
		count++
		g := e.IR.Module.NewGlobalDef(name, constant.NewStruct(e.IR.Descriptors.ClassInfo, members...))
		g.Linkage = enum.LinkageInternal

		if repeated {
			patched := append([]constant.Constant{}, prior.members...)
			patched[6] = constant.NewSub(en.offsetFromBase, prior.base)
			prior.global.Init = constant.NewStruct(e.IR.Descriptors.ClassInfo, patched...)
		}
		seen[en.class] = &infoOccurrence{global: g, base: en.offsetFromBase, members: members}

		indices := []value.Value{constant.NewInt(types.I32, 0)}
		for _, idx := range en.path {
			indices = append(indices, constant.NewInt(types.I32, idx))
		}
		indices = append(indices, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
		slot := cur.NewGetElementPtr(clStruct, self, indices...)
		cur.NewStore(g, slot)
	}
	return cur
}

// emitMemberDispatch calls each parent's init (info population suppressed,
// member initialisation passed through only for the first real occurrence
// along a diamond), then initialises cl's own members, per §4.7.
func (e *Emitter) emitMemberDispatch(fn *ir.Func, cur *ir.Block, cl *typesys.Class, self, shouldInit value.Value) *ir.Block {
	for _, p := range cl.Parents {
		parentIdx := p.AggregateIndex
		parentFieldOffset := parentIdx
		if !cl.IsStructure && !cl.IsBitfield {
			parentFieldOffset++ // instance_info occupies field 0
		}
		parentPtr := cur.NewGetElementPtr(e.IR.ClassType(cl), self, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(parentFieldOffset)))

		parentInitFn := e.EmitInit(p.Class)

		// Only the first real occurrence of a class initialises its members:
		// that sub-object's class-info has offset_from_real == 0.
		var parentShouldInit value.Value = shouldInit
		if !p.Class.IsStructure && !p.Class.IsBitfield {
			infoSlot := cur.NewGetElementPtr(e.FillLayout(p.Class), parentPtr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
			info := cur.NewLoad(types.NewPointer(e.IR.Descriptors.ClassInfo), infoSlot)
			realSlot := cur.NewGetElementPtr(e.IR.Descriptors.ClassInfo, info, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 3))
			isReal := cur.NewICmp(enum.IPredEQ, cur.NewLoad(types.I64, realSlot), constant.NewInt(types.I64, 0))
			parentShouldInit = cur.NewAnd(shouldInit, isReal)
		}

		cur.NewCall(parentInitFn, parentPtr, constant.NewBool(false), parentShouldInit)
	}

	// should_init_members is a runtime i1 (it depends on whether this
	// sub-object is the first real occurrence of its class along a
	// diamond-inheritance path), so member initialisation is guarded by an
	// actual branch rather than decided at emission time.
	if c, ok := shouldInit.(*constant.Int); ok && c.X.Sign() != 0 {
		cur = e.emitMemberInit(fn, cur, cl)
	} else if _, ok := shouldInit.(*constant.Int); !ok {
		initBlock := newBlock(fn, "init.members")
		skipBlock := newBlock(fn, "init.members.skip")
		cur.NewCondBr(shouldInit, initBlock, skipBlock)

		initBlock = e.emitMemberInit(fn, initBlock, cl)
		initBlock.NewBr(skipBlock)
		cur = skipBlock
	}

	cur.NewRet(nil)
	return cur
}

func (e *Emitter) emitMemberInit(fn *ir.Func, cur *ir.Block, cl *typesys.Class) *ir.Block {
	classIR := e.IR.ClassType(cl)
	baseFieldIdx := len(cl.Parents)
	if !cl.IsStructure && !cl.IsBitfield {
		baseFieldIdx++
	}

	self := fn.Params[0]
	for i, m := range cl.Members {
		slot := cur.NewGetElementPtr(classIR, self, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(baseFieldIdx+i)))
		if !m.HasInitializer {
			memberIR := e.IR.Translate(m.Type, true)
			cur.NewStore(constant.NewZeroInitializer(memberIR), slot)
		}
		// Member initialiser expressions and default-constructor calls are
		// emitted by the Node Compiler (package compiler), which has
		// access to the detailed tree this package never sees; classgen
		// only guarantees every member slot is at least zero-initialised.
	}
	return cur
}

// EmitConstructor builds the _internal_/stack/persistent entry points for
// one user constructor, per §4.7. No separate `from` entry is built for a
// cast constructor (Constructor.IsCast); it gets the same three entries.
// body is the Node Compiler's callback to fill the internal entry's body
// once its block and parameters are ready.
func (e *Emitter) EmitConstructor(cl *typesys.Class, ctor *typesys.Constructor, body func(fn *ir.Func, entry *ir.Block)) (internalFn, stackFn, persistentFn *ir.Func) {
	classIR := e.FillLayout(cl)
	classPtr := types.NewPointer(classIR)

	internalID := e.mangled("ctor.internal."+ctor.Name, cl)
	params := []*ir.Param{ir.NewParam("self", classPtr)}
	for _, p := range ctor.Parameters {
		params = append(params, ir.NewParam(p.Name, e.IR.Translate(p.Type, true)))
	}
	internalFn = e.IR.DeclareFunc(internalID, types.Void, params...)
	if body != nil {
		entry := newBlock(internalFn, "entry")
		body(internalFn, entry)
	}

	stackID := e.mangled("ctor.stack."+ctor.Name, cl)
	stackParams := params[1:]
	stackFn = e.IR.DeclareFunc(stackID, classIR, stackParams...)
	if len(stackFn.Blocks) == 0 {
		entry := newBlock(stackFn, "entry")
		selfSlot := entry.NewAlloca(classIR)
		initFn := e.EmitInit(cl)
		entry.NewCall(initFn, selfSlot, constant.NewBool(true), constant.NewBool(true))

		args := []value.Value{selfSlot}
		for _, p := range stackFn.Params {
			args = append(args, p)
		}
		entry.NewCall(internalFn, args...)
		entry.NewRet(entry.NewLoad(classIR, selfSlot))
	}

	persistentID := e.mangled("ctor.persistent."+ctor.Name, cl)
	persistentFn = e.IR.DeclareFunc(persistentID, classPtr, stackParams...)
	if len(persistentFn.Blocks) == 0 {
		entry := newBlock(persistentFn, "entry")
		heapFn := e.allocFunc()
		// The size of classIR, as a GEP one element past a null pointer.
		sizeOf := constant.NewPtrToInt(constant.NewGetElementPtr(classIR, constant.NewNull(classPtr), constant.NewInt(types.I32, 1)), types.I64)
		raw := entry.NewCall(heapFn, sizeOf)
		selfPtr := entry.NewBitCast(raw, classPtr)
		initFn := e.EmitInit(cl)
		entry.NewCall(initFn, selfPtr, constant.NewBool(true), constant.NewBool(true))

		args := []value.Value{selfPtr}
		for _, p := range persistentFn.Params {
			args = append(args, p)
		}
		entry.NewCall(internalFn, args...)
		entry.NewRet(selfPtr)
	}

	return internalFn, stackFn, persistentFn
}

func (e *Emitter) allocFunc() *ir.Func {
	id := e.IR.Mangler.MangleType("runtime.alloc")
	if fn, ok := e.IR.LookupFunc(id); ok {
		return fn
	}
	return e.IR.DeclareFunc(id, types.NewPointer(types.I8), ir.NewParam("size", types.I64))
}

// EmitDefaultCopyConstructor builds the synthesised default copy
// constructor: dispatch to each parent's copy constructor, recurse into
// copy for each zero-indirection member, byte-copy everything else, per
// §4.6/§4.7.
func (e *Emitter) EmitDefaultCopyConstructor(cl *typesys.Class) *ir.Func {
	classIR := e.FillLayout(cl)
	classPtr := types.NewPointer(classIR)

	id := e.IR.Mangler.MangleType(fmt.Sprintf("ctor.copy.%s", cl.Name))
	if fn, ok := e.IR.LookupFunc(id); ok {
		return fn
	}

	self := ir.NewParam("this", classPtr)
	source := ir.NewParam("source", classPtr)
	fn := e.IR.DeclareFunc(id, types.Void, self, source)
	entry := newBlock(fn, "entry")

	baseFieldIdx := len(cl.Parents)
	if !cl.IsStructure && !cl.IsBitfield {
		baseFieldIdx++
	}

	for i, p := range cl.Parents {
		fieldIdx := i
		if !cl.IsStructure && !cl.IsBitfield {
			fieldIdx++
		}
		parentSelf := entry.NewGetElementPtr(classIR, self, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(fieldIdx)))
		parentSource := entry.NewGetElementPtr(classIR, source, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(fieldIdx)))
		parentCopyFn := e.EmitDefaultCopyConstructor(p.Class)
		entry.NewCall(parentCopyFn, parentSelf, parentSource)
	}

	cur := entry
	for i, m := range cl.Members {
		fieldIdx := baseFieldIdx + i
		dstSlot := cur.NewGetElementPtr(classIR, self, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(fieldIdx)))
		srcSlot := cur.NewGetElementPtr(classIR, source, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(fieldIdx)))
		memberIR := e.IR.Translate(m.Type, true)

		if m.Type.Modifiers.IndirectionLevel() == 0 && e.Lifecycle != nil {
			srcVal := cur.NewLoad(memberIR, srcSlot)
			var copied value.Value
			cur, copied = e.Lifecycle.Copy(cur, srcVal, m.Type, false)
			cur.NewStore(copied, dstSlot)
		} else {
			srcVal := cur.NewLoad(memberIR, srcSlot)
			cur.NewStore(srcVal, dstSlot)
		}
	}
	cur.NewRet(nil)
	return fn
}

// EmitDestructor builds the class's destructor: destroy members, then
// call each parent's destructor on its sub-object, per §4.7.
func (e *Emitter) EmitDestructor(cl *typesys.Class) *ir.Func {
	classIR := e.FillLayout(cl)
	classPtr := types.NewPointer(classIR)

	id := e.mangled("dtor.class", cl)
	if fn, ok := e.IR.LookupFunc(id); ok {
		return fn
	}

	self := ir.NewParam("self", classPtr)
	fn := e.IR.DeclareFunc(id, types.Void, self)
	entry := newBlock(fn, "entry")

	baseFieldIdx := len(cl.Parents)
	if !cl.IsStructure && !cl.IsBitfield {
		baseFieldIdx++
	}

	cur := entry
	for i := len(cl.Members) - 1; i >= 0; i-- {
		m := cl.Members[i]
		fieldIdx := baseFieldIdx + i
		slot := cur.NewGetElementPtr(classIR, self, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(fieldIdx)))
		memberIR := e.IR.Translate(m.Type, true)
		if e.Lifecycle != nil {
			v := cur.NewLoad(memberIR, slot)
			cur = e.Lifecycle.Destroy(cur, v, m.Type, false)
		}
	}

	for i, p := range cl.Parents {
		fieldIdx := i
		if !cl.IsStructure && !cl.IsBitfield {
			fieldIdx++
		}
		parentPtr := cur.NewGetElementPtr(classIR, self, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(fieldIdx)))
		parentDtor := e.EmitDestructor(p.Class)
		cur.NewCall(parentDtor, parentPtr)
	}

	cur.NewRet(nil)
	return fn
}

func newBlock(parent *ir.Func, name string) *ir.Block {
	b := ir.NewBlock(name)
	parent.Blocks = append(parent.Blocks, b)
	return b
}
