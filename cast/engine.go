package cast

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/alta-lang/altac-codegen/diag"
	"github.com/alta-lang/altac-codegen/irgen"
	"github.com/alta-lang/altac-codegen/scope"
	"github.com/alta-lang/altac-codegen/typesys"
)

// CopyFunc emits a copy-constructor call for v (of type t) at the end of
// block, returning the block control continues in and the copied value.
// The Node Compiler supplies this, backed by package lifecycle, so that
// cast does not import lifecycle directly (lifecycle's own copy logic
// casts member values, which would otherwise form an import cycle).
type CopyFunc func(block *ir.Block, v value.Value, t *typesys.Type) (*ir.Block, value.Value)

// ChildLookupFunc emits the runtime child-class lookup used by a Downcast
// step (walking offset_to_next by class name, per §4.5), returning a
// pointer that is null on failure.
type ChildLookupFunc func(block *ir.Block, instance value.Value, wantClass string) value.Value

// BadCastFunc emits the call to the generated program's non-returning
// bad_cast runtime entry point, used by a failed Multicast dispatch.
type BadCastFunc func(block *ir.Block, fromType, toType string)

// Engine walks precomputed cast paths and emits the IR realising them.
type Engine struct {
	IR    *irgen.Context
	Scope *scope.Stack

	Copy        CopyFunc
	ChildLookup ChildLookupFunc
	BadCast     BadCastFunc
}

// Request is one cast operation's inputs, matching §4.5's input list.
type Request struct {
	Block      *ir.Block
	Value      value.Value
	SourceType *typesys.Type
	DestType   *typesys.Type
	Path       []Step
	Copy       bool
	CopyInfo   CopyInfo
	Manual     bool
	Pos        diag.Position
}

// Result is the outcome of walking a cast path.
type Result struct {
	Block *ir.Block
	Value value.Value
	Type  *typesys.Type
}

// Run walks req.Path step by step, applying each one's effect and emitting
// a copy-constructor call between steps whenever one is still owed (§4.5).
// An empty path is a validation error, per §4.5's explicit failure case.
func (e *Engine) Run(req Request) (Result, error) {
	if len(req.Path) == 0 {
		return Result{}, diag.New(diag.SubsystemCast, req.Pos, "cast path is empty")
	}

	cur := req.Block
	val := req.Value
	typ := req.SourceType
	copyOwed := req.Copy

	for _, step := range req.Path {
		var err error
		cur, val, typ, err = e.applyStep(cur, val, typ, req.DestType, step, req.Pos)
		if err != nil {
			return Result{}, err
		}

		if copyOwed && req.CopyInfo.Copyable && admitsCopy(typ) {
			if e.Copy == nil {
				return Result{}, diag.New(diag.SubsystemCast, req.Pos, "copy requested but no copy emitter was configured")
			}
			cur, val = e.Copy(cur, val, typ)
			copyOwed = false
		}
	}

	return Result{Block: cur, Value: val, Type: typ}, nil
}

func admitsCopy(t *typesys.Type) bool {
	return t.Kind == typesys.KindClass && !t.Class.Descriptor().IsStructure
}

func (e *Engine) applyStep(cur *ir.Block, val value.Value, curType, destType *typesys.Type, step Step, pos diag.Position) (*ir.Block, value.Value, *typesys.Type, error) {
	switch step.Kind {
	case StepDestination:
		return cur, val, curType, nil

	case StepSimpleCoercion:
		return e.simpleCoercion(cur, val, curType, step)

	case StepUpcast:
		return e.upcast(cur, val, curType, step)

	case StepDowncast:
		return e.downcast(cur, val, curType, step)

	case StepReference:
		return e.reference(cur, val, curType)

	case StepDereference:
		return e.dereference(cur, val, curType)

	case StepWrap:
		return e.wrap(cur, val, curType, step)

	case StepUnwrap:
		return e.unwrap(cur, val, curType)

	case StepWiden:
		return e.widen(cur, val, curType, step)

	case StepNarrow:
		return e.narrow(cur, val, curType, step)

	case StepMulticast:
		return e.multicast(cur, val, curType, step, pos)

	case StepFrom, StepTo:
		return e.userConversion(cur, val, curType, step)

	default:
		return nil, nil, nil, diag.New(diag.SubsystemCast, pos, "unknown cast step kind %v", step.Kind)
	}
}

// simpleCoercion handles ptr<->int, fp<->fp, fp<->int, and int<->int
// coercions, special-casing native->boolean per §4.5 ("A native->boolean
// cast is special-cased to compare-not-zero... pointer values go via
// ptrtoint first").
func (e *Engine) simpleCoercion(cur *ir.Block, val value.Value, curType *typesys.Type, step Step) (*ir.Block, value.Value, *typesys.Type, error) {
	dst := step.To
	dstIR := e.IR.Translate(dst, true)

	if dst.Kind == typesys.KindNative && dst.Native == typesys.NativeBool {
		v := val
		if _, ok := val.Type().(*types.PointerType); ok {
			v = cur.NewPtrToInt(val, types.I64)
		}
		zero := constant.NewZeroInitializer(v.Type())
		cmp := cur.NewICmp(enum.IPredNE, v, zero)
		return cur, cmp, dst, nil
	}

	srcIR := val.Type()
	switch {
	case isPointer(srcIR) && isInt(dstIR):
		return cur, cur.NewPtrToInt(val, dstIR), dst, nil
	case isInt(srcIR) && isPointer(dstIR):
		return cur, cur.NewIntToPtr(val, dstIR.(*types.PointerType)), dst, nil
	case isFloat(srcIR) && isFloat(dstIR):
		if floatRank(dstIR) > floatRank(srcIR) {
			return cur, cur.NewFPExt(val, dstIR), dst, nil
		}
		return cur, cur.NewFPTrunc(val, dstIR), dst, nil
	case isFloat(srcIR) && isInt(dstIR):
		if curType.Modifiers.IsUnsigned() {
			return cur, cur.NewFPToUI(val, dstIR), dst, nil
		}
		return cur, cur.NewFPToSI(val, dstIR), dst, nil
	case isInt(srcIR) && isFloat(dstIR):
		if dst.Modifiers.IsUnsigned() {
			return cur, cur.NewUIToFP(val, dstIR), dst, nil
		}
		return cur, cur.NewSIToFP(val, dstIR), dst, nil
	case isInt(srcIR) && isInt(dstIR):
		srcBits, dstBits := srcIR.(*types.IntType).BitSize, dstIR.(*types.IntType).BitSize
		switch {
		case dstBits > srcBits && dst.Modifiers.IsUnsigned():
			return cur, cur.NewZExt(val, dstIR), dst, nil
		case dstBits > srcBits:
			return cur, cur.NewSExt(val, dstIR), dst, nil
		case dstBits < srcBits:
			return cur, cur.NewTrunc(val, dstIR), dst, nil
		default:
			return cur, val, dst, nil
		}
	default:
		return cur, val, dst, nil
	}
}

// upcast derives a pointer to a specific parent sub-object by GEP'ing into
// its inlined slot, per §4.5. The result is that inlined sub-object itself;
// it is not moved on to the parent class's real (first) occurrence when the
// parent appears more than once along a diamond.
func (e *Engine) upcast(cur *ir.Block, val value.Value, curType *typesys.Type, step Step) (*ir.Block, value.Value, *typesys.Type, error) {
	parentClass := step.TargetClass.Descriptor()
	srcStruct := e.IR.Translate(curType.DestroyIndirection(), false)

	var idx int
	if curType.Kind == typesys.KindClass {
		src := curType.Class.Descriptor()
		for _, p := range src.Parents {
			if p.Class == parentClass {
				idx = p.AggregateIndex
				if !src.IsStructure && !src.IsBitfield {
					idx++ // instance_info occupies field 0
				}
				break
			}
		}
	}

	ptr := cur.NewGetElementPtr(srcStruct, val,
		constant.NewInt(types.I32, 0),
		constant.NewInt(types.I32, int64(idx)),
	)
	return cur, ptr, step.To, nil
}

// downcast walks offset_to_next at runtime looking for the requested child
// class, yielding null on failure (§4.5).
func (e *Engine) downcast(cur *ir.Block, val value.Value, curType *typesys.Type, step Step) (*ir.Block, value.Value, *typesys.Type, error) {
	if e.ChildLookup == nil {
		return cur, constant.NewNull(types.NewPointer(types.I8)), step.To, nil
	}
	result := e.ChildLookup(cur, val, step.TargetClass.Name)
	return cur, result, step.To, nil
}

// reference tmpifies a register value into addressable storage.
func (e *Engine) reference(cur *ir.Block, val value.Value, curType *typesys.Type) (*ir.Block, value.Value, *typesys.Type, error) {
	slot := cur.NewAlloca(val.Type())
	cur.NewStore(val, slot)
	referenced := curType.DestroyReferences()
	referenced.Modifiers = append(append(typesys.Modifiers{}, curType.Modifiers...), typesys.ModReference)
	return cur, slot, referenced, nil
}

// dereference loads through a pointer.
func (e *Engine) dereference(cur *ir.Block, val value.Value, curType *typesys.Type) (*ir.Block, value.Value, *typesys.Type, error) {
	deref := curType.Dereference()
	elemType := e.IR.Translate(deref, true)
	return cur, cur.NewLoad(elemType, val), deref, nil
}

// wrap constructs an optional {true, v}.
func (e *Engine) wrap(cur *ir.Block, val value.Value, curType *typesys.Type, step Step) (*ir.Block, value.Value, *typesys.Type, error) {
	optType := e.IR.Translate(step.To, true).(*types.StructType)
	agg := value.Value(constant.NewZeroInitializer(optType))
	inserted := cur.NewInsertValue(agg, constant.NewInt(types.I1, 1), 0)
	inserted2 := cur.NewInsertValue(inserted, val, 1)
	return cur, inserted2, step.To, nil
}

// unwrap extracts an optional's payload (the caller is responsible for any
// presence check required by surrounding semantics; §4.5 lists Unwrap as a
// pure payload projection).
func (e *Engine) unwrap(cur *ir.Block, val value.Value, curType *typesys.Type) (*ir.Block, value.Value, *typesys.Type, error) {
	inner := curType.Optional
	extracted := cur.NewExtractValue(val, 1)
	return cur, extracted, inner, nil
}

// widen packs a value into a union's {tag, payload} overlay through a
// stack slot: it stores the tag, stores the value through a bitcast view
// of the payload bytes, and reloads the whole union, per §4.5.
func (e *Engine) widen(cur *ir.Block, val value.Value, curType *typesys.Type, step Step) (*ir.Block, value.Value, *typesys.Type, error) {
	unionIR := e.IR.Translate(step.To, true)
	slot := cur.NewAlloca(unionIR)

	memberIdx := memberIndex(step.To.Union, curType)
	tagBits := unionTagBitsFor(len(step.To.Union))
	tagSlot := cur.NewGetElementPtr(unionIR, slot, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	cur.NewStore(constant.NewInt(types.NewInt(int64(tagBits)), int64(memberIdx)), tagSlot)

	payloadSlot := cur.NewGetElementPtr(unionIR, slot, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	typedView := types.NewPointer(val.Type())
	cur.NewStore(val, bitcastGEP(cur, payloadSlot, typedView))

	loaded := cur.NewLoad(unionIR, slot)
	return cur, loaded, step.To, nil
}

// narrow projects a union's payload to a specific member with no tag
// check (§4.5: "project union payload to a specific member").
func (e *Engine) narrow(cur *ir.Block, val value.Value, curType *typesys.Type, step Step) (*ir.Block, value.Value, *typesys.Type, error) {
	unionIR := e.IR.Translate(curType, true)
	slot := cur.NewAlloca(unionIR)
	cur.NewStore(val, slot)

	payloadSlot := cur.NewGetElementPtr(unionIR, slot, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	memberIR := e.IR.Translate(step.To, true)
	typedView := bitcastGEP(cur, payloadSlot, types.NewPointer(memberIR))
	return cur, cur.NewLoad(memberIR, typedView), step.To, nil
}

// multicast dispatches a union to a non-union scalar by runtime tag, per
// §4.5: a switch over the tag, a default arm that calls bad_cast and
// unreachables, one block per viable member that narrows and recursively
// casts, and a phi merging the surviving blocks. The scope stack must
// bracket this with BeginBranch/EndBranch so arm temporaries destruct
// correctly; the caller (package compiler) does that around Run, since
// Engine has no notion of which Request it is nested inside.
func (e *Engine) multicast(cur *ir.Block, val value.Value, curType *typesys.Type, step Step, pos diag.Position) (*ir.Block, value.Value, *typesys.Type, error) {
	tagBits := unionTagBitsFor(len(curType.Union))
	tagType := types.NewInt(int64(tagBits))

	unionIR := e.IR.Translate(curType, true)
	slot := cur.NewAlloca(unionIR)
	cur.NewStore(val, slot)
	tagSlot := cur.NewGetElementPtr(unionIR, slot, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	tag := cur.NewLoad(tagType, tagSlot)

	parent := cur.Parent
	defaultBlock := newBlock(parent, "multicast.bad")
	merge := newBlock(parent, "multicast.merge")

	var cases []*ir.Case
	type arm struct {
		block *ir.Block
		value value.Value
	}
	var arms []arm

	for idx, members := range step.MulticastCases {
		armBlock := newBlock(parent, fmt.Sprintf("multicast.case%d", idx))
		cases = append(cases, ir.NewCase(constant.NewInt(tagType, int64(idx)), armBlock))

		memberType := curType.Union[idx]
		payloadSlot := armBlock.NewGetElementPtr(unionIR, slot, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
		memberIR := e.IR.Translate(memberType, true)
		typedView := bitcastGEP(armBlock, payloadSlot, types.NewPointer(memberIR))
		memberVal := armBlock.NewLoad(memberIR, typedView)

		armCur := armBlock
		armVal := value.Value(memberVal)
		for _, sub := range members {
			var err error
			armCur, armVal, memberType, err = e.applyStep(armCur, armVal, memberType, step.To, sub, pos)
			if err != nil {
				return nil, nil, nil, err
			}
		}
		armCur.NewBr(merge)
		arms = append(arms, arm{block: armCur, value: armVal})
	}

	cur.NewSwitch(tag, defaultBlock, cases...)

	if e.BadCast != nil {
		e.BadCast(defaultBlock, curType.String(), step.To.String())
	}
	defaultBlock.NewUnreachable()

	var incs []*ir.Incoming
	for _, a := range arms {
		incs = append(incs, ir.NewIncoming(a.value, a.block))
	}
	result := merge.NewPhi(incs...)
	return merge, result, step.To, nil
}

// userConversion invokes a user-defined constructor-from / conversion-to method.
func (e *Engine) userConversion(cur *ir.Block, val value.Value, curType *typesys.Type, step Step) (*ir.Block, value.Value, *typesys.Type, error) {
	fn, ok := e.IR.LookupFunc(step.MethodName)
	if !ok {
		return nil, nil, nil, diag.New(diag.SubsystemCast, diag.Position{}, "cast conversion method %q was never declared", step.MethodName)
	}
	call := cur.NewCall(fn, val)
	return cur, call, step.To, nil
}

func bitcastGEP(cur *ir.Block, ptr value.Value, want *types.PointerType) value.Value {
	return cur.NewBitCast(ptr, want)
}

func memberIndex(members []*typesys.Type, target *typesys.Type) int {
	for i, m := range members {
		if m == target {
			return i
		}
	}
	return 0
}

func unionTagBitsFor(memberCount int) int {
	bits := 1
	for (1 << bits) < memberCount {
		bits++
	}
	return bits
}

func newBlock(parent *ir.Func, name string) *ir.Block {
	b := ir.NewBlock(name)
	parent.Blocks = append(parent.Blocks, b)
	return b
}

func isPointer(t types.Type) bool { _, ok := t.(*types.PointerType); return ok }
func isInt(t types.Type) bool     { _, ok := t.(*types.IntType); return ok }
func isFloat(t types.Type) bool {
	return t == types.Float || t == types.Double
}
func floatRank(t types.Type) int {
	if t == types.Double {
		return 2
	}
	return 1
}
