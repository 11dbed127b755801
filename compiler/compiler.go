// Package compiler implements the Node Compiler (§4.8): the component that
// walks one detailed program tree and emits the LLVM IR realising it,
// dispatching on tree.Node instead of the teacher's Monkey ast.Node and
// wiring together every other package in this module (irgen, cast,
// lifecycle, classgen, scope, abi) exactly the way the teacher's own
// Compiler wired together code.Instructions, object.Object, and
// SymbolTable. Unbounded recursion on deeply nested function and lambda
// bodies is converted to heap-allocated iteration by running each nested
// function's compilation as its own coroutine (package coro) rather than a
// native Go call frame — the granularity at which the specification's
// unbounded-recursion risk actually concentrates; plain node-to-node
// dispatch inside one function body is ordinary Go recursion, bounded by
// that one function's tree depth (see DESIGN.md).
package compiler

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"go.uber.org/zap"

	"github.com/alta-lang/altac-codegen/abi"
	"github.com/alta-lang/altac-codegen/cast"
	"github.com/alta-lang/altac-codegen/classgen"
	"github.com/alta-lang/altac-codegen/coro"
	"github.com/alta-lang/altac-codegen/diag"
	"github.com/alta-lang/altac-codegen/irgen"
	"github.com/alta-lang/altac-codegen/lifecycle"
	"github.com/alta-lang/altac-codegen/scope"
	"github.com/alta-lang/altac-codegen/tree"
	"github.com/alta-lang/altac-codegen/typesys"
)

// Compiler is responsible for compiling a detailed program tree into LLVM
// IR and managing compilation state shared across every root (§5: "the IR
// module and its global tables... are mutated exclusively by the compiler
// instance").
type Compiler struct {
	IR        *irgen.Context
	Cast      *cast.Engine
	Lifecycle *lifecycle.Engine
	Classes   *classgen.Emitter
	ABI       *abi.Runtime
	Log       *zap.SugaredLogger

	moduleInit    *funcCtx
	moduleInitCur *ir.Block

	// enums memoises module-internal globals for enumeration members by
	// mangled name, so re-referencing the same enumeration across roots
	// doesn't redeclare it.
	enumGlobals map[string]*ir.Global

	// globals maps a global variable's Symbol.MangledName (as an Identifier
	// referencing it would carry) to the backing *ir.Global, per the
	// convention that VariableDefinition.Name is itself already the stable
	// key an upstream Identifier's Symbol.MangledName carries for
	// SymbolGlobal references (mirroring FunctionDefinition.MangledID being
	// pre-resolved).
	globals map[string]*ir.Global
}

// New wires a Compiler against c: the Cast Engine's copy/downcast/bad-cast
// callbacks are bound to the Lifecycle/ABI engines here, which is exactly
// where those three packages' deliberately decoupled function-type fields
// (cast.CopyFunc, cast.ChildLookupFunc, cast.BadCastFunc) get tied together
// without introducing an import cycle between them.
func New(c *irgen.Context, log *zap.SugaredLogger) *Compiler {
	lc := &lifecycle.Engine{IR: c}
	rt := abi.Declare(c)
	ce := &cast.Engine{
		IR: c,
		Copy: func(block *ir.Block, v value.Value, t *typesys.Type) (*ir.Block, value.Value) {
			return lc.Copy(block, v, t, false)
		},
		ChildLookup: rt.ChildLookup,
		BadCast:     rt.BadCastCall,
	}
	return &Compiler{
		IR:          c,
		Cast:        ce,
		Lifecycle:   lc,
		Classes:     classgen.NewEmitter(c, lc),
		ABI:         rt,
		Log:         log,
		enumGlobals: make(map[string]*ir.Global),
		globals:     make(map[string]*ir.Global),
	}
}

// funcCtx is the per-function-compilation state: its scope stack, its
// locals table, its block cursor, and whatever loop/return bookkeeping the
// current body needs.
type funcCtx struct {
	fn      *ir.Func
	scope   *scope.Stack
	locals  *locals
	retType *typesys.Type

	loops []loopFrame
}

type loopFrame struct {
	label     string
	breakTo   *ir.Block
	continue_ *ir.Block

	// scopeDepth is the scope stack's Depth() at loop entry, before the
	// loop's own Other frame was pushed. break/continue unwind every frame
	// opened since — including that Other frame — not just whichever frame
	// is innermost at the jump site, the same way return unwinds through
	// CleanupThroughFunction.
	scopeDepth int
}

func (c *Compiler) destroyer(fc *funcCtx) scope.Destroyer {
	return func(cur *ir.Block, item scope.Item) *ir.Block {
		return c.Lifecycle.Destroy(cur, item.Value, item.Type, false)
	}
}

// ModuleInitFunc returns the module-initialiser function, if any top-level
// statement required one, for the driver to finalise and register in the
// global-constructors array.
func (c *Compiler) ModuleInitFunc() (*ir.Func, bool) {
	if c.moduleInit == nil {
		return nil, false
	}
	return c.moduleInit.fn, true
}

// FinishModuleInit runs scope cleanup and emits the closing `ret void` for
// the module initialiser, per §4.9 ("finalise the module-initialiser... with
// ret void"). Safe to call even if no module initialiser was ever needed.
func (c *Compiler) FinishModuleInit() *ir.Func {
	if c.moduleInit == nil {
		return nil
	}
	cur := c.moduleInit.scope.Cleanup(c.moduleInit.fn, c.moduleInitCur, c.destroyer(c.moduleInit))
	cur.NewRet(nil)
	return c.moduleInit.fn
}

func (c *Compiler) moduleInitFunc() (*funcCtx, *ir.Block) {
	if c.moduleInit != nil {
		return c.moduleInit, c.moduleInitCur
	}
	id := c.IR.Mangler.MangleType("module.init")
	fn := c.IR.DeclareFunc(id, types.Void)
	entry := fn.NewBlock("entry")
	fc := &funcCtx{fn: fn, scope: scope.NewStack(), locals: newLocals()}
	fc.scope.PushFrame(scope.Function)
	c.moduleInit = fc
	c.moduleInitCur = entry
	return fc, entry
}

// CompileRoot compiles one independently-compilable root tree (§4.9: the
// Module Driver hands these in dependency order; this method trusts that
// ordering and does not itself re-check Root.Requires).
func (c *Compiler) CompileRoot(root *tree.Root) error {
	for _, stmt := range root.Body.Statements {
		if err := c.compileTopLevel(stmt); err != nil {
			return err
		}
	}
	return nil
}

// compileTopLevel dispatches a module-root statement: declarations
// (functions, classes, enumerations) are emitted directly; anything else
// (plain expression statements, non-global variable definitions written at
// module scope) runs inside the lazily-created module initialiser, per
// §4.8 ("If not inside any function, enter the module-initialiser function
// first").
func (c *Compiler) compileTopLevel(stmt tree.Statement) error {
	switch s := stmt.(type) {
	case *tree.FunctionDefinition:
		return c.compileFunctionDefinition(s)
	case *tree.ClassDefinition:
		return c.compileClassDefinition(s)
	case *tree.Enumeration:
		return c.compileEnumeration(s)
	default:
		fc, cur := c.moduleInitFunc()
		next, err := c.compileStatement(fc, cur, stmt)
		if err != nil {
			return err
		}
		c.moduleInitCur = next
		return nil
	}
}

// compileFunctionDefinition emits one function's full body, per §4.8's
// "Function definition" rule: declare (memoised), open an entry block, push
// a Function frame, tmpify zero-indirection parameters so destructors can
// run over them, compile the body, and close with an implicit `ret void` or
// `unreachable`. Nested/lambda bodies run this same logic on their own
// coroutine (see compileLambda) to keep unbounded tree nesting off the
// native Go stack.
func (c *Compiler) compileFunctionDefinition(def *tree.FunctionDefinition) error {
	fn, fc, entry, alreadyBuilt := c.declareFunction(def)
	if alreadyBuilt {
		return nil
	}

	cur := c.bindParameters(fc, entry, def)
	if def.Body != nil {
		var err error
		cur, err = c.compileBlock(fc, cur, def.Body)
		if err != nil {
			return err
		}
	}
	c.terminateFunction(fc, cur, fn)
	return nil
}

func (c *Compiler) declareFunction(def *tree.FunctionDefinition) (fn *ir.Func, fc *funcCtx, entry *ir.Block, alreadyBuilt bool) {
	params := c.paramList(def)
	retIR := c.IR.Translate(def.ReturnType, true)
	fn = c.IR.DeclareFunc(def.MangledID, retIR, params...)
	if len(fn.Blocks) > 0 {
		return fn, nil, nil, true
	}
	entry = fn.NewBlock("entry")
	fc = &funcCtx{fn: fn, scope: scope.NewStack(), locals: newLocals(), retType: def.ReturnType}
	fc.scope.PushFrame(scope.Function)
	return fn, fc, entry, false
}

func (c *Compiler) paramList(def *tree.FunctionDefinition) []*ir.Param {
	var params []*ir.Param
	if def.MethodOf != nil {
		params = append(params, ir.NewParam("this", types.NewPointer(c.IR.ClassType(def.MethodOf.Descriptor()))))
	}
	for _, p := range def.Parameters {
		params = append(params, ir.NewParam(p.Name, c.IR.Translate(p.Type, true)))
	}
	if def.Variadic != nil && def.Variadic.Kind == typesys.VariadicCountData {
		params = append(params, ir.NewParam("argc", types.I64), ir.NewParam("argv", types.NewPointer(c.IR.Translate(def.Variadic.Element, true))))
	}
	return params
}

// bindParameters tmpifies every zero-indirection parameter into addressable
// storage and registers it for destruction, so the body can take its
// address and so the scope stack runs its destructor on exit, per §4.8.
func (c *Compiler) bindParameters(fc *funcCtx, entry *ir.Block, def *tree.FunctionDefinition) *ir.Block {
	cur := entry
	idx := 0
	if def.MethodOf != nil {
		thisParam := fc.fn.Params[0]
		thisType := &typesys.Type{Kind: typesys.KindClass, Modifiers: typesys.Modifiers{typesys.ModPointer}, Class: def.MethodOf}
		fc.locals.define("this", thisParam, thisType)
		idx = 1
	}
	for i, p := range def.Parameters {
		irParam := fc.fn.Params[idx+i]
		if p.Type.Modifiers.IndirectionLevel() == 0 {
			slot := cur.NewAlloca(irParam.Type())
			cur.NewStore(irParam, slot)
			fc.locals.define(p.Name, slot, p.Type)
			fc.scope.PushItem(slot, p.Type, slot.Type(), cur)
		} else {
			fc.locals.define(p.Name, irParam, p.Type)
		}
	}
	return cur
}

func (c *Compiler) terminateFunction(fc *funcCtx, cur *ir.Block, fn *ir.Func) {
	if cur.Term != nil {
		return
	}
	cur = fc.scope.Cleanup(fn, cur, c.destroyer(fc))
	if cur.Term != nil {
		return
	}
	if _, void := fn.Sig.RetType.(*types.VoidType); void {
		cur.NewRet(nil)
	} else {
		cur.NewUnreachable()
	}
}

// compileEnumeration compiles each member in order; a member with no
// explicit value is the previous value plus one, per §4.8. Each becomes a
// module-internal global initialised to a constant.
func (c *Compiler) compileEnumeration(en *tree.Enumeration) error {
	underlyingIR := c.IR.Translate(en.Underlying, true)
	var prev int64 = -1
	for _, m := range en.Members {
		var val int64
		if m.Value != nil {
			lit, ok := m.Value.(*tree.IntegerLiteral)
			if !ok {
				return diag.New(diag.SubsystemCompiler, m.Value.Pos(), "enumeration member %q's value must be a compile-time integer", m.Name)
			}
			val = lit.Value
		} else {
			val = prev + 1
		}
		prev = val

		key := fmt.Sprintf("enum.%s.%s", en.Name, m.Name)
		id := c.IR.Mangler.MangleType(key)
		if _, ok := c.enumGlobals[id]; ok {
			continue
		}
		g := c.IR.Module.NewGlobalDef(id, constant.NewInt(underlyingIR.(*types.IntType), val))
		g.Immutable = true
		g.Linkage = enum.LinkageInternal
		c.enumGlobals[id] = g
	}
	return nil
}

// compileClassDefinition delegates layout, init, default copy constructor,
// and destructor to package classgen, and compiles each user-defined
// constructor/accessor/operator body against that layout, per §4.7/§4.8.
func (c *Compiler) compileClassDefinition(def *tree.ClassDefinition) error {
	cl := def.Descriptor
	c.Classes.FillLayout(cl)
	c.Classes.EmitInit(cl)
	c.Classes.EmitDefaultCopyConstructor(cl)
	c.Classes.EmitDestructor(cl)

	for _, ctorDef := range def.Constructors {
		if err := c.compileConstructor(cl, ctorDef); err != nil {
			return err
		}
	}
	for _, acc := range def.Accessors {
		if err := c.compileAccessor(cl, acc); err != nil {
			return err
		}
	}
	for _, op := range def.Operators {
		if err := c.compileOperator(cl, op); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileConstructor(cl *typesys.Class, def *tree.ConstructorDefinition) error {
	var bodyErr error
	_, _, _ = c.Classes.EmitConstructor(cl, def.Descriptor, func(fn *ir.Func, entry *ir.Block) {
		fc := &funcCtx{fn: fn, scope: scope.NewStack(), locals: newLocals()}
		fc.scope.PushFrame(scope.Function)
		classPtrType := &typesys.Type{Kind: typesys.KindClass, Modifiers: typesys.Modifiers{typesys.ModPointer}, Class: classRef(cl)}
		fc.locals.define("self", fn.Params[0], classPtrType)

		cur := entry
		for i, p := range def.Parameters {
			irParam := fn.Params[i+1]
			if p.Type.Modifiers.IndirectionLevel() == 0 {
				slot := cur.NewAlloca(irParam.Type())
				cur.NewStore(irParam, slot)
				fc.locals.define(p.Name, slot, p.Type)
				fc.scope.PushItem(slot, p.Type, slot.Type(), cur)
			} else {
				fc.locals.define(p.Name, irParam, p.Type)
			}
		}

		if def.Body != nil {
			var err error
			cur, err = c.compileBlock(fc, cur, def.Body)
			if err != nil {
				bodyErr = err
				return
			}
		}
		c.terminateFunction(fc, cur, fn)
	})
	return bodyErr
}

func (c *Compiler) compileAccessor(cl *typesys.Class, def *tree.AccessorDefinition) error {
	mangledID := c.IR.Mangler.MangleType(fmt.Sprintf("accessor.%s.%s", cl.Name, def.Descriptor.Name))
	classPtr := types.NewPointer(c.IR.ClassType(cl))
	retIR := c.IR.Translate(def.Descriptor.Type, true)
	fn := c.IR.DeclareFunc(mangledID, retIR, ir.NewParam("this", classPtr))
	if len(fn.Blocks) > 0 {
		return nil
	}
	entry := fn.NewBlock("entry")
	fc := &funcCtx{fn: fn, scope: scope.NewStack(), locals: newLocals(), retType: def.Descriptor.Type}
	fc.scope.PushFrame(scope.Function)
	classPtrType := &typesys.Type{Kind: typesys.KindClass, Modifiers: typesys.Modifiers{typesys.ModPointer}, Class: classRef(cl)}
	fc.locals.define("this", fn.Params[0], classPtrType)

	cur, err := c.compileBlock(fc, entry, def.Body)
	if err != nil {
		return err
	}
	c.terminateFunction(fc, cur, fn)
	return nil
}

func (c *Compiler) compileOperator(cl *typesys.Class, def *tree.OperatorDefinition) error {
	mangledID := c.IR.Mangler.MangleType(fmt.Sprintf("operator.%s.%s", cl.Name, def.Descriptor.Symbol))
	classPtr := types.NewPointer(c.IR.ClassType(cl))
	retIR := c.IR.Translate(def.Descriptor.Return, true)
	params := []*ir.Param{ir.NewParam("this", classPtr)}
	for _, p := range def.Parameters {
		params = append(params, ir.NewParam(p.Name, c.IR.Translate(p.Type, true)))
	}
	fn := c.IR.DeclareFunc(mangledID, retIR, params...)
	if len(fn.Blocks) > 0 {
		return nil
	}
	entry := fn.NewBlock("entry")
	fc := &funcCtx{fn: fn, scope: scope.NewStack(), locals: newLocals(), retType: def.Descriptor.Return}
	fc.scope.PushFrame(scope.Function)
	classPtrType := &typesys.Type{Kind: typesys.KindClass, Modifiers: typesys.Modifiers{typesys.ModPointer}, Class: classRef(cl)}
	fc.locals.define("this", fn.Params[0], classPtrType)
	for i, p := range def.Parameters {
		fc.locals.define(p.Name, fn.Params[i+1], p.Type)
	}

	cur, err := c.compileBlock(fc, entry, def.Body)
	if err != nil {
		return err
	}
	c.terminateFunction(fc, cur, fn)
	return nil
}

func classRef(cl *typesys.Class) *typesys.ClassRef {
	return &typesys.ClassRef{Name: cl.Name, Resolve: func() *typesys.Class { return cl }}
}

// compileBlock compiles a brace-delimited statement sequence under the
// current frame, per §4.8 ("compile statements in order under the current
// frame").
func (c *Compiler) compileBlock(fc *funcCtx, cur *ir.Block, blk *tree.Block) (*ir.Block, error) {
	for _, stmt := range blk.Statements {
		if cur.Term != nil {
			break
		}
		var err error
		cur, err = c.compileStatement(fc, cur, stmt)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// compileStatement dispatches one statement node. Deeply nested function
// and lambda bodies spawn their own coroutine (compileLambda); every other
// statement kind is ordinary recursive dispatch within the current
// function's single coroutine.
func (c *Compiler) compileStatement(fc *funcCtx, cur *ir.Block, stmt tree.Statement) (*ir.Block, error) {
	switch s := stmt.(type) {
	case *tree.Block:
		fc.scope.PushFrame(scope.Other)
		next, err := c.compileBlock(fc, cur, s)
		if err != nil {
			return nil, err
		}
		if next.Term == nil {
			next = fc.scope.Cleanup(fc.fn, next, c.destroyer(fc))
		}
		fc.scope.PopFrame()
		return next, nil

	case *tree.ExpressionStatement:
		fc.scope.PushFrame(scope.Temporary)
		next, _, err := c.compileExpression(fc, cur, s.Expression)
		if err != nil {
			return nil, err
		}
		if next.Term == nil {
			next = fc.scope.Cleanup(fc.fn, next, c.destroyer(fc))
		}
		fc.scope.PopFrame()
		return next, nil

	case *tree.VariableDefinition:
		return c.compileVariableDefinition(fc, cur, s)

	case *tree.ReturnStatement:
		return c.compileReturn(fc, cur, s)

	case *tree.ConditionalStatement:
		return c.compileConditionalStatement(fc, cur, s)

	case *tree.RangedForStatement:
		return c.compileRangedFor(fc, cur, s)

	case *tree.BreakStatement:
		return c.compileBreak(fc, cur, s)

	case *tree.ContinueStatement:
		return c.compileContinue(fc, cur, s)

	case *tree.Enumeration:
		return cur, c.compileEnumeration(s)

	case *tree.ClassDefinition:
		return cur, c.compileClassDefinition(s)

	case *tree.FunctionDefinition:
		co := coro.Spawn(func(_ *coro.Coroutine, _ any) (any, error) {
			return nil, c.compileFunctionDefinition(s)
		})
		_, _, err := co.Resume(nil)
		return cur, err

	case *tree.Unimplemented:
		return nil, notImplemented(s.Kind, s.Pos())

	default:
		return nil, diag.New(diag.SubsystemCompiler, stmt.Pos(), "unhandled statement kind %T", stmt)
	}
}

func notImplemented(kind tree.UnimplementedKind, pos diag.Position) error {
	return (&diag.NotImplemented{Kind: string(kind), Pos: pos}).AsCompilerError()
}

// compileVariableDefinition computes storage (a global at module root, an
// alloca otherwise) and evaluates/stores its initialiser, per §4.8. A local
// is pushed for destruction; a global is not. Without an initialiser the
// storage is zero-filled: no default constructor is called for a class.
func (c *Compiler) compileVariableDefinition(fc *funcCtx, cur *ir.Block, def *tree.VariableDefinition) (*ir.Block, error) {
	irType := c.IR.Translate(def.Type, true)

	if def.IsGlobal {
		id := c.IR.Mangler.MangleType("global." + def.Name)
		g := c.IR.Module.NewGlobalDef(id, constant.NewZeroInitializer(irType))
		c.globals[def.Name] = g
		if def.Value != nil {
			if lit, ok := constLiteral(def.Value); ok {
				g.Init = lit
			} else {
				ifc, icur := c.moduleInitFunc()
				next, v, err := c.compileExpression(ifc, icur, def.Value)
				if err != nil {
					return nil, err
				}
				next.NewStore(v, g)
				c.moduleInitCur = next
			}
		}
		return cur, nil
	}

	slot := cur.NewAlloca(irType)
	if def.Value != nil {
		next, v, err := c.compileExpression(fc, cur, def.Value)
		if err != nil {
			return nil, err
		}
		cur = next
		cur.NewStore(v, slot)
	} else {
		cur.NewStore(constant.NewZeroInitializer(irType), slot)
	}
	fc.locals.define(def.Name, slot, def.Type)
	fc.scope.PushItem(slot, def.Type, irType, cur)
	return cur, nil
}

func constLiteral(e tree.Expression) (constant.Constant, bool) {
	switch v := e.(type) {
	case *tree.IntegerLiteral:
		return constant.NewInt(types.I64, v.Value), true
	case *tree.BooleanLiteral:
		return constant.NewBool(v.Value), true
	default:
		return nil, false
	}
}

// compileReturn evaluates the return expression in a temporary frame, runs
// cleanup up through and including the enclosing Function frame, then
// emits `ret`, per §4.8. The value is returned as compiled: no cast to the
// function's return type is emitted, and a reference return type gets no
// special handling.
func (c *Compiler) compileReturn(fc *funcCtx, cur *ir.Block, ret *tree.ReturnStatement) (*ir.Block, error) {
	var retVal value.Value
	if ret.Value != nil {
		fc.scope.PushFrame(scope.Temporary)
		next, v, err := c.compileExpression(fc, cur, ret.Value)
		if err != nil {
			return nil, err
		}
		cur = next
		retVal = v
		cur = fc.scope.Cleanup(fc.fn, cur, c.destroyer(fc))
		fc.scope.PopFrame()
	}

	cur = fc.scope.CleanupThroughFunction(fc.fn, cur, c.destroyer(fc))

	if retVal == nil {
		cur.NewRet(nil)
	} else {
		cur.NewRet(retVal)
	}
	return cur, nil
}

// compileConditionalStatement lowers `if`/`else if`/`else` with
// begin_branch/end_branch bracketing, per §4.8.
func (c *Compiler) compileConditionalStatement(fc *funcCtx, cur *ir.Block, stmt *tree.ConditionalStatement) (*ir.Block, error) {
	cur, cond, err := c.compileExpression(fc, cur, stmt.Condition)
	if err != nil {
		return nil, err
	}

	thenBlock := newBlock(fc.fn, "if.then")
	elseBlock := newBlock(fc.fn, "if.else")
	merge := newBlock(fc.fn, "if.merge")
	cur.NewCondBr(cond, thenBlock, elseBlock)

	marker := fc.scope.BeginBranch()

	thenEnd, err := c.compileStatement(fc, thenBlock, stmt.Consequence)
	if err != nil {
		return nil, err
	}
	if thenEnd.Term == nil {
		thenEnd.NewBr(merge)
	}

	var elseEnd *ir.Block
	if stmt.Alternative != nil {
		elseEnd, err = c.compileStatement(fc, elseBlock, stmt.Alternative)
		if err != nil {
			return nil, err
		}
	} else {
		elseEnd = elseBlock
	}
	if elseEnd.Term == nil {
		elseEnd.NewBr(merge)
	}

	incoming := []*ir.Block{thenEnd, elseEnd}
	fc.scope.EndBranch(marker, merge, incoming)

	return merge, nil
}

// compileRangedFor lowers `x..y` / `x...y` into init/condition/body/exit
// blocks, choosing the comparison predicate from the counter type and
// inclusivity, per §4.8. The counter lives in an Other frame.
func (c *Compiler) compileRangedFor(fc *funcCtx, cur *ir.Block, stmt *tree.RangedForStatement) (*ir.Block, error) {
	counterIR := c.IR.Translate(stmt.CounterType, true)
	counterSlot := cur.NewAlloca(counterIR)

	cur, startVal, err := c.compileExpression(fc, cur, stmt.Start)
	if err != nil {
		return nil, err
	}
	cur.NewStore(startVal, counterSlot)

	condBlock := newBlock(fc.fn, "for.cond")
	bodyBlock := newBlock(fc.fn, "for.body")
	stepBlock := newBlock(fc.fn, "for.step")
	exitBlock := newBlock(fc.fn, "for.exit")
	cur.NewBr(condBlock)

	ccur, endVal, err := c.compileExpression(fc, condBlock, stmt.End)
	if err != nil {
		return nil, err
	}
	counter := ccur.NewLoad(counterIR, counterSlot)
	pred := rangedForPredicate(stmt.CounterType, stmt.Direction, stmt.Inclusive)
	cond := compareForPredicate(ccur, pred, counter, endVal, stmt.CounterType)
	ccur.NewCondBr(cond, bodyBlock, exitBlock)

	loopDepth := fc.scope.Depth()
	fc.scope.PushFrame(scope.Other)
	fc.locals.define(stmt.CounterName, counterSlot, stmt.CounterType)
	fc.loops = append(fc.loops, loopFrame{breakTo: exitBlock, continue_: stepBlock, scopeDepth: loopDepth})

	bodyEnd, err := c.compileStatement(fc, bodyBlock, stmt.Body)
	if err != nil {
		return nil, err
	}
	fc.loops = fc.loops[:len(fc.loops)-1]
	if bodyEnd.Term == nil {
		bodyEnd = fc.scope.Cleanup(fc.fn, bodyEnd, c.destroyer(fc))
		bodyEnd.NewBr(stepBlock)
	}
	fc.scope.PopFrame()

	counterNow := stepBlock.NewLoad(counterIR, counterSlot)
	one := constant.NewInt(counterIR.(*types.IntType), 1)
	var stepped value.Value
	if stmt.Direction == tree.RangedForUp {
		stepped = stepBlock.NewAdd(counterNow, one)
	} else {
		stepped = stepBlock.NewSub(counterNow, one)
	}
	stepBlock.NewStore(stepped, counterSlot)
	stepBlock.NewBr(condBlock)

	return exitBlock, nil
}

type forPredicate int

const (
	predLT forPredicate = iota
	predLE
	predGT
	predGE
)

func rangedForPredicate(t *typesys.Type, dir tree.RangedForDirection, inclusive bool) forPredicate {
	if dir == tree.RangedForUp {
		if inclusive {
			return predLE
		}
		return predLT
	}
	if inclusive {
		return predGE
	}
	return predGT
}

func compareForPredicate(cur *ir.Block, pred forPredicate, lhs, rhs value.Value, t *typesys.Type) value.Value {
	if t.Kind == typesys.KindNative && (t.Native == typesys.NativeFloat || t.Native == typesys.NativeDouble) {
		var fp enum.FPred
		switch pred {
		case predLT:
			fp = enum.FPredOLT
		case predLE:
			fp = enum.FPredOLE
		case predGT:
			fp = enum.FPredOGT
		default:
			fp = enum.FPredOGE
		}
		return cur.NewFCmp(fp, lhs, rhs)
	}
	unsigned := t.Modifiers.IsUnsigned()
	var ip enum.IPred
	switch pred {
	case predLT:
		ip = signedOr(unsigned, enum.IPredSLT, enum.IPredULT)
	case predLE:
		ip = signedOr(unsigned, enum.IPredSLE, enum.IPredULE)
	case predGT:
		ip = signedOr(unsigned, enum.IPredSGT, enum.IPredUGT)
	default:
		ip = signedOr(unsigned, enum.IPredSGE, enum.IPredUGE)
	}
	return cur.NewICmp(ip, lhs, rhs)
}

func signedOr(unsigned bool, signed, unsignedPred enum.IPred) enum.IPred {
	if unsigned {
		return unsignedPred
	}
	return signed
}

func (c *Compiler) compileBreak(fc *funcCtx, cur *ir.Block, stmt *tree.BreakStatement) (*ir.Block, error) {
	loop, ok := findLoop(fc.loops, stmt.Label)
	if !ok {
		return nil, diag.New(diag.SubsystemCompiler, stmt.Pos(), "break outside any loop")
	}
	cur = fc.scope.CleanupThroughDepth(loop.scopeDepth, fc.fn, cur, c.destroyer(fc))
	cur.NewBr(loop.breakTo)
	return cur, nil
}

func (c *Compiler) compileContinue(fc *funcCtx, cur *ir.Block, stmt *tree.ContinueStatement) (*ir.Block, error) {
	loop, ok := findLoop(fc.loops, stmt.Label)
	if !ok {
		return nil, diag.New(diag.SubsystemCompiler, stmt.Pos(), "continue outside any loop")
	}
	cur = fc.scope.CleanupThroughDepth(loop.scopeDepth, fc.fn, cur, c.destroyer(fc))
	cur.NewBr(loop.continue_)
	return cur, nil
}

func findLoop(loops []loopFrame, label string) (loopFrame, bool) {
	if label == "" {
		if len(loops) == 0 {
			return loopFrame{}, false
		}
		return loops[len(loops)-1], true
	}
	for i := len(loops) - 1; i >= 0; i-- {
		if loops[i].label == label {
			return loops[i], true
		}
	}
	return loopFrame{}, false
}

func newBlock(parent *ir.Func, name string) *ir.Block {
	b := ir.NewBlock(name)
	parent.Blocks = append(parent.Blocks, b)
	return b
}

// compileLambda compiles a lambda body on its own coroutine (package coro),
// per §4.8/§5: the coroutine's single yield point is "done", since a
// lambda's body is compiled eagerly start to finish once resumed — the
// suspend/resume boundary exists to keep this frame off the native Go
// stack for deeply nested lambda literals, not to model multiple
// continuations.
func (c *Compiler) compileLambda(fc *funcCtx, cur *ir.Block, lam *tree.LambdaExpression) (*ir.Block, value.Value, error) {
	type result struct {
		fn  *ir.Func
		err error
	}

	id := c.IR.Mangler.MangleType(fmt.Sprintf("lambda@%d.%d", lam.Pos().Line, lam.Pos().Column))
	var params []*ir.Param
	for _, p := range lam.Parameters {
		params = append(params, ir.NewParam(p.Name, c.IR.Translate(p.Type, true)))
	}
	retType := lam.Type().Function.Return
	fn := c.IR.DeclareFunc(id, c.IR.Translate(retType, true), params...)

	co := coro.Spawn(func(_ *coro.Coroutine, _ any) (any, error) {
		if len(fn.Blocks) > 0 {
			return result{fn: fn}, nil
		}
		entry := fn.NewBlock("entry")
		lfc := &funcCtx{fn: fn, scope: scope.NewStack(), locals: newLocals(), retType: retType}
		lfc.scope.PushFrame(scope.Function)
		for i, p := range lam.Parameters {
			lfc.locals.define(p.Name, fn.Params[i], p.Type)
		}
		for _, capture := range lam.Captures {
			if s, ok := fc.locals.lookup(capture.Value); ok {
				lfc.locals.define(capture.Value, s.value, s.typ)
			}
		}
		body, err := c.compileBlock(lfc, entry, lam.Body)
		if err != nil {
			return result{}, err
		}
		c.terminateFunction(lfc, body, fn)
		return result{fn: fn}, nil
	})

	_, done, err := co.Resume(nil)
	if err != nil {
		return nil, nil, err
	}
	_ = done

	state := constant.NewNull(types.NewPointer(types.I8))
	basicFn := value.Value(constant.NewZeroInitializer(c.IR.Descriptors.BasicFunction))
	fnPtrCast := cur.NewBitCast(fn, types.NewPointer(types.I8))
	agg := cur.NewInsertValue(basicFn, fnPtrCast, 0)
	agg2 := cur.NewInsertValue(agg, state, 1)
	return cur, agg2, nil
}
