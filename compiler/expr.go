package compiler

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/alta-lang/altac-codegen/cast"
	"github.com/alta-lang/altac-codegen/diag"
	"github.com/alta-lang/altac-codegen/tree"
	"github.com/alta-lang/altac-codegen/typesys"
)

// compileExpression dispatches one expression node to an r-value: for any
// addressable local (an alloca'd zero-indirection parameter/variable) this
// loads through the address; compileAddress is used instead wherever the
// node's storage location itself is needed (assignment targets, member
// access bases, method-call instance pointers).
func (c *Compiler) compileExpression(fc *funcCtx, cur *ir.Block, expr tree.Expression) (*ir.Block, value.Value, error) {
	switch e := expr.(type) {
	case *tree.IntegerLiteral:
		irType := c.IR.Translate(e.Type(), true)
		return cur, constant.NewInt(irType.(*types.IntType), e.Value), nil

	case *tree.FloatLiteral:
		irType := c.IR.Translate(e.Type(), true)
		return cur, constant.NewFloat(irType.(*types.FloatType), e.Value), nil

	case *tree.BooleanLiteral:
		return cur, constant.NewBool(e.Value), nil

	case *tree.StringLiteral:
		return c.compileStringLiteral(cur, e)

	case *tree.NullptrLiteral:
		irType := c.IR.Translate(e.Type(), true)
		pt, ok := irType.(*types.PointerType)
		if !ok {
			return nil, nil, diag.New(diag.SubsystemCompiler, e.Pos(), "nullptr literal resolved to a non-pointer type")
		}
		return cur, constant.NewNull(pt), nil

	case *tree.SizeofExpression:
		size := c.IR.SizeOf(e.Operand)
		return cur, constant.NewInt(types.I64, int64(size)), nil

	case *tree.Identifier:
		return c.compileIdentifier(fc, cur, e)

	case *tree.SpecialFetch:
		return c.compileSpecialFetch(fc, cur, e)

	case *tree.PrefixExpression:
		return c.compilePrefix(fc, cur, e)

	case *tree.PostfixExpression:
		return c.compilePostfix(fc, cur, e)

	case *tree.InfixExpression:
		return c.compileInfix(fc, cur, e)

	case *tree.Accessor:
		return c.compileAccessorRead(fc, cur, e)

	case *tree.CastExpression:
		return c.compileCast(fc, cur, e)

	case *tree.CallExpression:
		return c.compileCall(fc, cur, e)

	case *tree.Assignment:
		return c.compileAssignment(fc, cur, e)

	case *tree.ClassInstantiation:
		return c.compileClassInstantiation(fc, cur, e)

	case *tree.ConditionalExpression:
		return c.compileConditionalExpression(fc, cur, e)

	case *tree.InstanceofExpression:
		return c.compileInstanceof(fc, cur, e)

	case *tree.LambdaExpression:
		return c.compileLambda(fc, cur, e)

	case *tree.Unimplemented:
		return nil, nil, notImplemented(e.Kind, e.Pos())

	default:
		return nil, nil, diag.New(diag.SubsystemCompiler, expr.Pos(), "unhandled expression kind %T", expr)
	}
}

// compileAddress resolves expr to the address of its storage, for contexts
// that need to write through it or GEP further into it, rather than its
// current value.
func (c *Compiler) compileAddress(fc *funcCtx, cur *ir.Block, expr tree.Expression) (*ir.Block, value.Value, error) {
	switch e := expr.(type) {
	case *tree.Identifier:
		if e.Symbol.Scope == tree.SymbolGlobal {
			g, ok := c.globals[e.Symbol.MangledName]
			if !ok {
				return nil, nil, diag.New(diag.SubsystemCompiler, e.Pos(), "reference to undeclared global %q", e.Value)
			}
			return cur, g, nil
		}
		s, ok := fc.locals.lookup(e.Value)
		if !ok {
			return nil, nil, diag.New(diag.SubsystemCompiler, e.Pos(), "reference to unresolved name %q", e.Value)
		}
		if s.typ.Modifiers.IndirectionLevel() == 0 {
			return cur, s.value, nil
		}
		// Already a pointer (e.g. `this`, a reference parameter): its
		// address-of is itself for the purposes of further member GEPs.
		return cur, s.value, nil

	case *tree.Accessor:
		return c.compileAccessorAddress(fc, cur, e)

	default:
		// Anything else is an r-value; tmpify it so callers that need an
		// address (e.g. a cast's Reference step handles this itself, but a
		// bare address-of on a temporary) still get addressable storage.
		next, v, err := c.compileExpression(fc, cur, expr)
		if err != nil {
			return nil, nil, err
		}
		slot := next.NewAlloca(v.Type())
		next.NewStore(v, slot)
		return next, slot, nil
	}
}

// compileStringLiteral interns e.Value behind a content-hashed label, so
// identical literal text always shares one module-internal global thanks
// to irgen.Context.CString's own memoisation.
func (c *Compiler) compileStringLiteral(cur *ir.Block, e *tree.StringLiteral) (*ir.Block, value.Value, error) {
	label := c.IR.Mangler.MangleType("strlit." + e.Value)
	g := c.IR.CString(label, e.Value)
	ptr := cur.NewGetElementPtr(g.ContentType, g, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	return cur, ptr, nil
}

func (c *Compiler) compileIdentifier(fc *funcCtx, cur *ir.Block, id *tree.Identifier) (*ir.Block, value.Value, error) {
	switch id.Symbol.Scope {
	case tree.SymbolFunction:
		fn, ok := c.IR.LookupFunc(id.Symbol.MangledName)
		if !ok {
			return nil, nil, diag.New(diag.SubsystemCompiler, id.Pos(), "reference to undeclared function %q", id.Value)
		}
		return cur, fn, nil

	case tree.SymbolGlobal:
		g, ok := c.globals[id.Symbol.MangledName]
		if !ok {
			return nil, nil, diag.New(diag.SubsystemCompiler, id.Pos(), "reference to undeclared global %q", id.Value)
		}
		irType := c.IR.Translate(id.Type(), true)
		return cur, cur.NewLoad(irType, g), nil

	default: // SymbolLocal, SymbolParameter, SymbolThis
		s, ok := fc.locals.lookup(id.Value)
		if !ok {
			return nil, nil, diag.New(diag.SubsystemCompiler, id.Pos(), "reference to unresolved name %q", id.Value)
		}
		if s.typ.Modifiers.IndirectionLevel() == 0 {
			irType := c.IR.Translate(s.typ, true)
			return cur, cur.NewLoad(irType, s.value), nil
		}
		return cur, s.value, nil
	}
}

func (c *Compiler) compileSpecialFetch(fc *funcCtx, cur *ir.Block, sf *tree.SpecialFetch) (*ir.Block, value.Value, error) {
	switch sf.Kind {
	case tree.SpecialInvalidValue:
		irType := c.IR.Translate(sf.Type(), true)
		if pt, ok := irType.(*types.PointerType); ok {
			return cur, constant.NewNull(pt), nil
		}
		return cur, constant.NewZeroInitializer(irType), nil

	case tree.SpecialScheduler:
		g := c.schedulerGlobal()
		return cur, cur.NewLoad(g.ContentType, g), nil

	case tree.SpecialCoroutineHandle:
		s, ok := fc.locals.lookup("__coroutine_handle")
		if !ok {
			irType := c.IR.Translate(sf.Type(), true)
			return cur, constant.NewZeroInitializer(irType), nil
		}
		return cur, s.value, nil

	default:
		return nil, nil, diag.New(diag.SubsystemCompiler, sf.Pos(), "unhandled special fetch kind %v", sf.Kind)
	}
}

// schedulerGlobal lazily declares the module-wide scheduler handle, backed
// by the same opaque i8* storage the ABI runtime's state handles use.
func (c *Compiler) schedulerGlobal() *ir.Global {
	if g, ok := c.globals["__scheduler"]; ok {
		return g
	}
	id := c.IR.Mangler.MangleType("global.__scheduler")
	g := c.IR.Module.NewGlobalDef(id, constant.NewNull(types.NewPointer(types.I8)))
	c.globals["__scheduler"] = g
	return g
}

// compilePrefix lowers `!`, `-`, `+`, `~`, `++`, `--` applied before the
// operand.
func (c *Compiler) compilePrefix(fc *funcCtx, cur *ir.Block, e *tree.PrefixExpression) (*ir.Block, value.Value, error) {
	switch e.Operator {
	case "++", "--":
		return c.compileIncDec(fc, cur, e.Right, e.Operator, true)
	}

	next, v, err := c.compileExpression(fc, cur, e.Right)
	if err != nil {
		return nil, nil, err
	}
	cur = next

	switch e.Operator {
	case "!":
		return cur, cur.NewXor(v, constant.NewBool(true)), nil
	case "-":
		if isFloatValue(v) {
			return cur, cur.NewFNeg(v), nil
		}
		return cur, cur.NewSub(constant.NewZeroInitializer(v.Type()), v), nil
	case "+":
		return cur, v, nil
	case "~":
		allOnes := constant.NewInt(v.Type().(*types.IntType), -1)
		return cur, cur.NewXor(v, allOnes), nil
	default:
		return nil, nil, diag.New(diag.SubsystemCompiler, e.Pos(), "unknown prefix operator %q", e.Operator)
	}
}

func (c *Compiler) compilePostfix(fc *funcCtx, cur *ir.Block, e *tree.PostfixExpression) (*ir.Block, value.Value, error) {
	return c.compileIncDec(fc, cur, e.Left, e.Operator, false)
}

// compileIncDec reads, steps, and stores back through operand's address,
// returning the pre- or post-step value per prefix/postfix semantics.
func (c *Compiler) compileIncDec(fc *funcCtx, cur *ir.Block, operand tree.Expression, op string, isPrefix bool) (*ir.Block, value.Value, error) {
	cur, addr, err := c.compileAddress(fc, cur, operand)
	if err != nil {
		return nil, nil, err
	}
	irType := c.IR.Translate(operand.Type(), true)
	old := cur.NewLoad(irType, addr)

	var stepped value.Value
	one := stepOne(irType)
	if op == "++" {
		if isFloatValue(old) {
			stepped = cur.NewFAdd(old, one)
		} else {
			stepped = cur.NewAdd(old, one)
		}
	} else {
		if isFloatValue(old) {
			stepped = cur.NewFSub(old, one)
		} else {
			stepped = cur.NewSub(old, one)
		}
	}
	cur.NewStore(stepped, addr)

	if isPrefix {
		return cur, stepped, nil
	}
	return cur, old, nil
}

func stepOne(t types.Type) constant.Constant {
	if ft, ok := t.(*types.FloatType); ok {
		return constant.NewFloat(ft, 1)
	}
	return constant.NewInt(t.(*types.IntType), 1)
}

func isFloatValue(v value.Value) bool {
	_, ok := v.Type().(*types.FloatType)
	return ok
}

// compileInfix lowers arithmetic/comparison/bitwise/logical binary
// operators. `&&`/`||` are NOT short-circuited at this layer: both operands
// are always evaluated, in the input tree's order, then combined after
// casting each to i1. Short-circuiting, where the source calls for it, is
// already desugared into an explicit conditional by the detailed tree this
// package consumes.
func (c *Compiler) compileInfix(fc *funcCtx, cur *ir.Block, e *tree.InfixExpression) (*ir.Block, value.Value, error) {
	if e.Operator == "&&" || e.Operator == "||" {
		return c.compileLogicalOp(fc, cur, e)
	}

	cur, lhs, err := c.compileExpression(fc, cur, e.Left)
	if err != nil {
		return nil, nil, err
	}
	cur, rhs, err := c.compileExpression(fc, cur, e.Right)
	if err != nil {
		return nil, nil, err
	}

	floaty := isFloatValue(lhs)
	unsigned := e.Left.Type().Modifiers.IsUnsigned()

	switch e.Operator {
	case "+":
		if floaty {
			return cur, cur.NewFAdd(lhs, rhs), nil
		}
		return cur, cur.NewAdd(lhs, rhs), nil
	case "-":
		if floaty {
			return cur, cur.NewFSub(lhs, rhs), nil
		}
		return cur, cur.NewSub(lhs, rhs), nil
	case "*":
		if floaty {
			return cur, cur.NewFMul(lhs, rhs), nil
		}
		return cur, cur.NewMul(lhs, rhs), nil
	case "/":
		if floaty {
			return cur, cur.NewFDiv(lhs, rhs), nil
		}
		if unsigned {
			return cur, cur.NewUDiv(lhs, rhs), nil
		}
		return cur, cur.NewSDiv(lhs, rhs), nil
	case "%":
		if floaty {
			return cur, cur.NewFRem(lhs, rhs), nil
		}
		if unsigned {
			return cur, cur.NewURem(lhs, rhs), nil
		}
		return cur, cur.NewSRem(lhs, rhs), nil
	case "&":
		return cur, cur.NewAnd(lhs, rhs), nil
	case "|":
		return cur, cur.NewOr(lhs, rhs), nil
	case "^":
		return cur, cur.NewXor(lhs, rhs), nil
	case "<<":
		return cur, cur.NewShl(lhs, rhs), nil
	case ">>":
		if unsigned {
			return cur, cur.NewLShr(lhs, rhs), nil
		}
		return cur, cur.NewAShr(lhs, rhs), nil
	case "==", "!=", "<", "<=", ">", ">=":
		return c.compileComparison(cur, e.Operator, lhs, rhs, floaty, unsigned)
	default:
		return nil, nil, diag.New(diag.SubsystemCompiler, e.Pos(), "unknown infix operator %q", e.Operator)
	}
}

func (c *Compiler) compileComparison(cur *ir.Block, op string, lhs, rhs value.Value, floaty, unsigned bool) (*ir.Block, value.Value, error) {
	if floaty {
		var pred enum.FPred
		switch op {
		case "==":
			pred = enum.FPredOEQ
		case "!=":
			pred = enum.FPredONE
		case "<":
			pred = enum.FPredOLT
		case "<=":
			pred = enum.FPredOLE
		case ">":
			pred = enum.FPredOGT
		default:
			pred = enum.FPredOGE
		}
		return cur, cur.NewFCmp(pred, lhs, rhs), nil
	}

	var pred enum.IPred
	switch op {
	case "==":
		pred = enum.IPredEQ
	case "!=":
		pred = enum.IPredNE
	case "<":
		pred = signedOr(unsigned, enum.IPredSLT, enum.IPredULT)
	case "<=":
		pred = signedOr(unsigned, enum.IPredSLE, enum.IPredULE)
	case ">":
		pred = signedOr(unsigned, enum.IPredSGT, enum.IPredUGT)
	default:
		pred = signedOr(unsigned, enum.IPredSGE, enum.IPredUGE)
	}
	return cur, cur.NewICmp(pred, lhs, rhs), nil
}

// compileLogicalOp lowers `&&`/`||`: both operands are always evaluated, in
// order, cast to i1, then combined with a plain `and`/`or` (§4.8 — this is
// a deliberate departure from short-circuit evaluation at this layer).
func (c *Compiler) compileLogicalOp(fc *funcCtx, cur *ir.Block, e *tree.InfixExpression) (*ir.Block, value.Value, error) {
	cur, lhs, err := c.compileExpression(fc, cur, e.Left)
	if err != nil {
		return nil, nil, err
	}
	lhs = castToI1(cur, lhs)

	cur, rhs, err := c.compileExpression(fc, cur, e.Right)
	if err != nil {
		return nil, nil, err
	}
	rhs = castToI1(cur, rhs)

	if e.Operator == "&&" {
		return cur, cur.NewAnd(lhs, rhs), nil
	}
	return cur, cur.NewOr(lhs, rhs), nil
}

// castToI1 reduces v's truthiness to i1: unchanged if already i1, otherwise
// a not-equal-to-zero/null comparison against its type's zero value.
func castToI1(cur *ir.Block, v value.Value) value.Value {
	if v.Type() == types.I1 {
		return v
	}
	switch t := v.Type().(type) {
	case *types.FloatType:
		return cur.NewFCmp(enum.FPredONE, v, constant.NewFloat(t, 0))
	case *types.PointerType:
		return cur.NewICmp(enum.IPredNE, v, constant.NewNull(t))
	case *types.IntType:
		return cur.NewICmp(enum.IPredNE, v, constant.NewInt(t, 0))
	default:
		return v
	}
}

// compileAccessorRead evaluates an Accessor for its value; compileAccessorAddress
// (used for AccessorMember/AccessorSuper) is shared with compileAddress.
func (c *Compiler) compileAccessorRead(fc *funcCtx, cur *ir.Block, acc *tree.Accessor) (*ir.Block, value.Value, error) {
	switch acc.Kind {
	case tree.AccessorMember, tree.AccessorSuper:
		cur, addr, err := c.compileAccessorAddress(fc, cur, acc)
		if err != nil {
			return nil, nil, err
		}
		irType := c.IR.Translate(acc.Type(), true)
		return cur, cur.NewLoad(irType, addr), nil

	case tree.AccessorBitfield:
		return c.compileBitfieldRead(fc, cur, acc)

	case tree.AccessorReadMethod:
		return c.compileReadMethod(fc, cur, acc)

	default:
		return nil, nil, diag.New(diag.SubsystemCompiler, acc.Pos(), "unhandled accessor kind %v", acc.Kind)
	}
}

// compileAccessorAddress GEPs from Target's instance address down the
// precomputed parent-chain indices to Member's storage slot.
func (c *Compiler) compileAccessorAddress(fc *funcCtx, cur *ir.Block, acc *tree.Accessor) (*ir.Block, value.Value, error) {
	targetType := acc.Target.Type()
	cl := targetType.DestroyIndirection().Class.Descriptor()

	var cur2 *ir.Block
	var base value.Value
	var err error
	if targetType.Modifiers.IndirectionLevel() == 0 {
		cur2, base, err = c.compileAddress(fc, cur, acc.Target)
	} else {
		cur2, base, err = c.compileExpression(fc, cur, acc.Target)
	}
	if err != nil {
		return nil, nil, err
	}

	classType := c.IR.ClassType(cl)
	indices := []value.Value{constant.NewInt(types.I32, 0)}
	for _, idx := range acc.ParentChainIndices {
		indices = append(indices, constant.NewInt(types.I32, int64(idx)))
	}
	addr := cur2.NewGetElementPtr(classType, base, indices...)
	return cur2, addr, nil
}

func (c *Compiler) compileBitfieldRead(fc *funcCtx, cur *ir.Block, acc *tree.Accessor) (*ir.Block, value.Value, error) {
	cur, addr, err := c.compileAccessorAddress(fc, cur, acc)
	if err != nil {
		return nil, nil, err
	}
	bitfieldType := acc.Target.Type()
	underlying := c.IR.Translate(bitfieldType.Bitfield.Underlying, true).(*types.IntType)
	loaded := cur.NewLoad(underlying, addr)

	entry := acc.BitfieldEntry
	width := entry.End - entry.Start + 1
	mask := int64((1 << uint(width)) - 1)

	shifted := cur.NewLShr(loaded, constant.NewInt(underlying, int64(entry.Start)))
	masked := cur.NewAnd(shifted, constant.NewInt(underlying, mask))
	return cur, masked, nil
}

func (c *Compiler) compileReadMethod(fc *funcCtx, cur *ir.Block, acc *tree.Accessor) (*ir.Block, value.Value, error) {
	targetType := acc.Target.Type()
	cl := targetType.DestroyIndirection().Class.Descriptor()

	var instPtr value.Value
	var err error
	if targetType.Modifiers.IndirectionLevel() == 0 {
		cur, instPtr, err = c.compileAddress(fc, cur, acc.Target)
	} else {
		cur, instPtr, err = c.compileExpression(fc, cur, acc.Target)
	}
	if err != nil {
		return nil, nil, err
	}

	mangledID := c.IR.Mangler.MangleType(fmt.Sprintf("accessor.%s.%s", cl.Name, acc.Member))
	fn, ok := c.IR.LookupFunc(mangledID)
	if !ok {
		return nil, nil, diag.New(diag.SubsystemCompiler, acc.Pos(), "read accessor %s.%s was never declared", cl.Name, acc.Member)
	}
	return cur, cur.NewCall(fn, instPtr), nil
}

// compileCast runs the Cast Engine against e's precomputed path, bracketing
// it with a scope branch mark so any multicast arm's temporaries merge
// correctly (the Cast Engine itself only emits IR; bracketing the scope
// stack is the Node Compiler's job per cast.Engine.multicast's own doc
// comment).
func (c *Compiler) compileCast(fc *funcCtx, cur *ir.Block, e *tree.CastExpression) (*ir.Block, value.Value, error) {
	cur, v, err := c.compileExpression(fc, cur, e.Operand)
	if err != nil {
		return nil, nil, err
	}

	marker := fc.scope.BeginBranch()
	res, err := c.Cast.Run(cast.Request{
		Block:      cur,
		Value:      v,
		SourceType: e.Operand.Type(),
		DestType:   e.Type(),
		Path:       e.Path,
		Copy:       e.CopyInfo.Copyable,
		CopyInfo:   e.CopyInfo,
		Manual:     e.ManualCast,
		Pos:        e.Pos(),
	})
	if err != nil {
		return nil, nil, err
	}
	fc.scope.EndBranch(marker, res.Block, []*ir.Block{res.Block})
	return res.Block, res.Value, nil
}

// compileCall lowers a function or method call, materialising variadic
// argument slots into a (count, data) stack array where the callee expects
// one, and expanding them inline where the callee is a native vararg. The
// stack array is owned by the caller; the callee never destroys it.
func (c *Compiler) compileCall(fc *funcCtx, cur *ir.Block, e *tree.CallExpression) (*ir.Block, value.Value, error) {
	var callee value.Value
	var args []value.Value
	var err error

	if e.IsMethodCall {
		// Method FunctionDefinitions carry a MangledID resolved upstream
		// (the same contract function definitions always use); this
		// `method.<class>.<name>` key is the convention this module's own
		// fixtures follow when assigning one for an instance method, kept
		// here so a method call resolves to the exact symbol its
		// FunctionDefinition was declared under.
		acc, ok := e.Function.(*tree.Accessor)
		if !ok {
			return nil, nil, diag.New(diag.SubsystemCompiler, e.Pos(), "method call's Function must be an Accessor")
		}
		targetType := acc.Target.Type()
		var instPtr value.Value
		if targetType.Modifiers.IndirectionLevel() == 0 {
			cur, instPtr, err = c.compileAddress(fc, cur, acc.Target)
		} else {
			cur, instPtr, err = c.compileExpression(fc, cur, acc.Target)
		}
		if err != nil {
			return nil, nil, err
		}
		cl := targetType.DestroyIndirection().Class.Descriptor()
		mangledID := c.IR.Mangler.MangleType(fmt.Sprintf("method.%s.%s", cl.Name, acc.Member))
		fn, ok := c.IR.LookupFunc(mangledID)
		if !ok {
			return nil, nil, diag.New(diag.SubsystemCompiler, e.Pos(), "method %s.%s was never declared", cl.Name, acc.Member)
		}
		callee = fn
		args = append(args, instPtr)
	} else {
		var fnVal value.Value
		cur, fnVal, err = c.compileExpression(fc, cur, e.Function)
		if err != nil {
			return nil, nil, err
		}
		callee = fnVal
	}

	fnType := e.Function.Type()
	var variadic *typesys.VariadicParam
	if fnType.Kind == typesys.KindFunction {
		variadic = fnType.Function.Variadic
	}

	for i, arg := range e.Arguments {
		isLastVariadicSlot := variadic != nil && i == len(e.Arguments)-1 && arg.List != nil
		if !isLastVariadicSlot {
			cur, v, aerr := c.compileExpression(fc, cur, arg.Single)
			if aerr != nil {
				return nil, nil, aerr
			}
			args = append(args, v)
			continue
		}

		if variadic.Kind == typesys.VariadicNative {
			for _, sub := range arg.List {
				var v value.Value
				cur, v, err = c.compileExpression(fc, cur, sub)
				if err != nil {
					return nil, nil, err
				}
				args = append(args, v)
			}
			continue
		}

		elemIR := c.IR.Translate(variadic.Element, true)
		arrType := types.NewArray(uint64(len(arg.List)), elemIR)
		arrSlot := cur.NewAlloca(arrType)
		for idx, sub := range arg.List {
			var v value.Value
			cur, v, err = c.compileExpression(fc, cur, sub)
			if err != nil {
				return nil, nil, err
			}
			slot := cur.NewGetElementPtr(arrType, arrSlot, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(idx)))
			cur.NewStore(v, slot)
		}
		dataPtr := cur.NewGetElementPtr(arrType, arrSlot, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
		args = append(args, constant.NewInt(types.I64, int64(len(arg.List))), dataPtr)
	}

	isClosure := !e.IsMethodCall && fnType.Kind == typesys.KindFunction && fnType.Function != nil && !fnType.Function.IsRaw
	var result value.Value
	if isClosure {
		cur, result = c.compileClosureCall(fc, cur, fnType, callee, args)
	} else {
		result = cur.NewCall(callee, args...)
	}

	return cur, result, nil
}

// compileClosureCall invokes a basic_function value: extracts its code and
// state pointers, then branches on whether state is non-null into either the
// state-prepended entry or the raw entry, joining the two call results with a
// phi (§4.8). The callee's own type is a closure (Function.IsRaw == false),
// so it is translated here as a raw function signature instead, since the
// Type Translator hands back the basic_function struct type for anything
// that isn't raw.
func (c *Compiler) compileClosureCall(fc *funcCtx, cur *ir.Block, fnType *typesys.Type, callee value.Value, args []value.Value) (*ir.Block, value.Value) {
	rawType := &typesys.Type{
		Kind: typesys.KindFunction,
		Function: &typesys.FunctionType{
			Return:     fnType.Function.Return,
			Parameters: fnType.Function.Parameters,
			Variadic:   fnType.Function.Variadic,
			IsRaw:      true,
		},
	}
	rawSig := c.IR.Translate(rawType, false).(*types.FuncType)

	statePtrType := types.NewPointer(types.I8)
	stateParams := append([]types.Type{statePtrType}, rawSig.Params...)
	stateSig := types.NewFunc(rawSig.RetType, stateParams...)
	stateSig.Variadic = rawSig.Variadic

	codePtr := cur.NewExtractValue(callee, 0)
	statePtr := cur.NewExtractValue(callee, 1)

	isNull := cur.NewICmp(enum.IPredEQ, statePtr, constant.NewNull(statePtrType))
	stateBlock := newBlock(fc.fn, "closure.call.state")
	rawBlock := newBlock(fc.fn, "closure.call.raw")
	mergeBlock := newBlock(fc.fn, "closure.call.merge")
	cur.NewCondBr(isNull, rawBlock, stateBlock)

	stateFn := stateBlock.NewBitCast(codePtr, types.NewPointer(stateSig))
	stateArgs := append([]value.Value{statePtr}, args...)
	stateResult := stateBlock.NewCall(stateFn, stateArgs...)
	stateBlock.NewBr(mergeBlock)

	rawFn := rawBlock.NewBitCast(codePtr, types.NewPointer(rawSig))
	rawResult := rawBlock.NewCall(rawFn, args...)
	rawBlock.NewBr(mergeBlock)

	if _, void := rawSig.RetType.(*types.VoidType); void {
		return mergeBlock, rawResult
	}
	phi := mergeBlock.NewPhi(ir.NewIncoming(stateResult, stateBlock), ir.NewIncoming(rawResult, rawBlock))
	return mergeBlock, phi
}

func (c *Compiler) compileAssignment(fc *funcCtx, cur *ir.Block, a *tree.Assignment) (*ir.Block, value.Value, error) {
	switch a.Kind {
	case tree.AssignOperatorMethod:
		return c.compileOperatorAssignment(fc, cur, a)
	case tree.AssignBitfield:
		return c.compileBitfieldAssignment(fc, cur, a)
	default:
		return c.compilePlainAssignment(fc, cur, a)
	}
}

func (c *Compiler) compilePlainAssignment(fc *funcCtx, cur *ir.Block, a *tree.Assignment) (*ir.Block, value.Value, error) {
	cur, addr, err := c.compileAddress(fc, cur, a.Target)
	if err != nil {
		return nil, nil, err
	}
	cur, v, err := c.compileExpression(fc, cur, a.Value)
	if err != nil {
		return nil, nil, err
	}

	if !a.Strict {
		irType := c.IR.Translate(a.Target.Type(), true)
		old := cur.NewLoad(irType, addr)
		cur = c.Lifecycle.Destroy(cur, old, a.Target.Type(), false)
	}
	cur.NewStore(v, addr)
	return cur, v, nil
}

func (c *Compiler) compileBitfieldAssignment(fc *funcCtx, cur *ir.Block, a *tree.Assignment) (*ir.Block, value.Value, error) {
	acc, ok := a.Target.(*tree.Accessor)
	if !ok {
		return nil, nil, diag.New(diag.SubsystemCompiler, a.Pos(), "bitfield assignment target must be an accessor")
	}
	cur, addr, err := c.compileAccessorAddress(fc, cur, acc)
	if err != nil {
		return nil, nil, err
	}
	cur, v, err := c.compileExpression(fc, cur, a.Value)
	if err != nil {
		return nil, nil, err
	}

	underlying := c.IR.Translate(acc.Target.Type().Bitfield.Underlying, true).(*types.IntType)
	old := cur.NewLoad(underlying, addr)

	entry := acc.BitfieldEntry
	width := entry.End - entry.Start + 1
	mask := int64((1 << uint(width)) - 1)
	clearMask := constant.NewInt(underlying, ^(mask << uint(entry.Start)))

	cleared := cur.NewAnd(old, clearMask)
	extended := cur.NewZExt(v, underlying)
	shiftedIn := cur.NewShl(cur.NewAnd(extended, constant.NewInt(underlying, mask)), constant.NewInt(underlying, int64(entry.Start)))
	merged := cur.NewOr(cleared, shiftedIn)
	cur.NewStore(merged, addr)
	return cur, v, nil
}

func (c *Compiler) compileOperatorAssignment(fc *funcCtx, cur *ir.Block, a *tree.Assignment) (*ir.Block, value.Value, error) {
	cur, targetAddr, err := c.compileAddress(fc, cur, a.Target)
	if err != nil {
		return nil, nil, err
	}
	cur, v, err := c.compileExpression(fc, cur, a.Value)
	if err != nil {
		return nil, nil, err
	}

	cl := a.Target.Type().DestroyIndirection().Class.Descriptor()
	mangledID := c.IR.Mangler.MangleType(fmt.Sprintf("operator.%s.=", cl.Name))
	fn, ok := c.IR.LookupFunc(mangledID)
	if !ok {
		return nil, nil, diag.New(diag.SubsystemCompiler, a.Pos(), "assignment operator for %s was never declared", cl.Name)
	}
	result := cur.NewCall(fn, targetAddr, v)
	return cur, result, nil
}

func (c *Compiler) compileClassInstantiation(fc *funcCtx, cur *ir.Block, ci *tree.ClassInstantiation) (*ir.Block, value.Value, error) {
	cl := ci.Class.Descriptor()
	ctorName := ci.ConstructorName

	var args []value.Value
	for _, arg := range ci.Arguments {
		next, v, err := c.compileExpression(fc, cur, arg.Single)
		if err != nil {
			return nil, nil, err
		}
		cur = next
		args = append(args, v)
	}

	suffix := "internal." + ctorName
	if ci.IsSuperCall {
		// A super-call constructs the parent sub-object inside `self`: the
		// parent's internal constructor receives a pointer to that parent's
		// inlined slot in the subclass layout.
		selfSlot, ok := fc.locals.lookup("self")
		if !ok {
			return nil, nil, diag.New(diag.SubsystemCompiler, ci.Pos(), "super call used outside a constructor body")
		}
		mangledID := c.IR.Mangler.MangleType(fmt.Sprintf("ctor.%s.%s", suffix, cl.Name))
		fn, ok := c.IR.LookupFunc(mangledID)
		if !ok {
			return nil, nil, diag.New(diag.SubsystemCompiler, ci.Pos(), "super constructor for %s was never declared", cl.Name)
		}
		selfPtr := selfSlot.value
		if st := selfSlot.typ; st != nil && st.Kind == typesys.KindClass {
			sub := st.Class.Descriptor()
			for _, p := range sub.Parents {
				if p.Class == cl {
					idx := p.AggregateIndex
					if !sub.IsStructure && !sub.IsBitfield {
						idx++ // instance_info occupies field 0
					}
					selfPtr = cur.NewGetElementPtr(c.IR.ClassType(sub), selfPtr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(idx)))
					break
				}
			}
		}
		callArgs := append([]value.Value{selfPtr}, args...)
		cur.NewCall(fn, callArgs...)
		return cur, selfSlot.value, nil
	}

	var mangledID string
	if ci.Persistent {
		mangledID = c.IR.Mangler.MangleType(fmt.Sprintf("ctor.persistent.%s.%s", ctorName, cl.Name))
	} else {
		mangledID = c.IR.Mangler.MangleType(fmt.Sprintf("ctor.stack.%s.%s", ctorName, cl.Name))
	}
	fn, ok := c.IR.LookupFunc(mangledID)
	if !ok {
		return nil, nil, diag.New(diag.SubsystemCompiler, ci.Pos(), "constructor %s::%s was never declared", cl.Name, ctorName)
	}
	result := cur.NewCall(fn, args...)
	return cur, result, nil
}

func (c *Compiler) compileConditionalExpression(fc *funcCtx, cur *ir.Block, ce *tree.ConditionalExpression) (*ir.Block, value.Value, error) {
	cur, cond, err := c.compileExpression(fc, cur, ce.Condition)
	if err != nil {
		return nil, nil, err
	}

	thenBlock := newBlock(fc.fn, "ternary.then")
	elseBlock := newBlock(fc.fn, "ternary.else")
	merge := newBlock(fc.fn, "ternary.merge")
	cur.NewCondBr(cond, thenBlock, elseBlock)

	marker := fc.scope.BeginBranch()

	thenCur, thenVal, err := c.compileExpression(fc, thenBlock, ce.Consequent)
	if err != nil {
		return nil, nil, err
	}
	thenCur.NewBr(merge)

	elseCur, elseVal, err := c.compileExpression(fc, elseBlock, ce.Alternative)
	if err != nil {
		return nil, nil, err
	}
	elseCur.NewBr(merge)

	fc.scope.EndBranch(marker, merge, []*ir.Block{thenCur, elseCur})

	phi := merge.NewPhi(
		ir.NewIncoming(thenVal, thenCur),
		ir.NewIncoming(elseVal, elseCur),
	)
	return merge, phi, nil
}

func (c *Compiler) compileInstanceof(fc *funcCtx, cur *ir.Block, io *tree.InstanceofExpression) (*ir.Block, value.Value, error) {
	cur, v, err := c.compileExpression(fc, cur, io.Target)
	if err != nil {
		return nil, nil, err
	}

	targetType := io.Target.Type()
	if targetType.Kind == typesys.KindUnion {
		unionIR := c.IR.Translate(targetType, true)
		slot := cur.NewAlloca(unionIR)
		cur.NewStore(v, slot)
		tagSlot := cur.NewGetElementPtr(unionIR, slot, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
		tagType := types.NewInt(int64(unionTagBits(len(targetType.Union))))
		tag := cur.NewLoad(tagType, tagSlot)
		idx := unionMemberIndex(targetType.Union, io.Against)
		return cur, cur.NewICmp(enum.IPredEQ, tag, constant.NewInt(tagType, int64(idx))), nil
	}

	if c.ABI == nil {
		return cur, constant.NewBool(false), nil
	}
	i8ptr := cur.NewBitCast(v, types.NewPointer(types.I8))
	found := c.ABI.ChildLookup(cur, i8ptr, io.Against.Class.Name)
	nullPtr := constant.NewNull(types.NewPointer(types.I8))
	return cur, cur.NewICmp(enum.IPredNE, found, nullPtr), nil
}

func unionTagBits(memberCount int) int {
	bits := 1
	for (1 << bits) < memberCount {
		bits++
	}
	return bits
}

func unionMemberIndex(members []*typesys.Type, target *typesys.Type) int {
	for i, m := range members {
		if m == target {
			return i
		}
	}
	return 0
}
