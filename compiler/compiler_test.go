package compiler

import (
	"testing"

	"go.uber.org/zap"

	"github.com/alta-lang/altac-codegen/irgen"
	"github.com/alta-lang/altac-codegen/tree"
	"github.com/alta-lang/altac-codegen/typesys"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func intType() *typesys.Type {
	return &typesys.Type{Kind: typesys.KindNative, Native: typesys.NativeInt}
}

func ident(name string, scope tree.SymbolScope, t *typesys.Type) *tree.Identifier {
	id := &tree.Identifier{Value: name, Symbol: tree.Symbol{Scope: scope}}
	id.ResolvedType = t
	return id
}

// TestCompileRootAddFunction exercises §8 scenario 1: fn add(a: int, b: int)
// -> int { return a + b }, checking that the function is declared, given a
// body, and left with every block terminated.
func TestCompileRootAddFunction(t *testing.T) {
	a := tree.Parameter{Name: "a", Type: intType()}
	b := tree.Parameter{Name: "b", Type: intType()}
	body := &tree.Block{Statements: []tree.Statement{
		&tree.ReturnStatement{Value: &tree.InfixExpression{
			Operator: "+",
			Left:     ident("a", tree.SymbolParameter, intType()),
			Right:    ident("b", tree.SymbolParameter, intType()),
		}},
	}}
	def := &tree.FunctionDefinition{
		Name:       "add",
		MangledID:  "add",
		Parameters: []tree.Parameter{a, b},
		ReturnType: intType(),
		Body:       body,
	}
	root := &tree.Root{ID: "root.add", Body: &tree.Program{Statements: []tree.Statement{def}}}

	ctx := irgen.NewContext("scenario1")
	c := New(ctx, testLogger())
	if err := c.CompileRoot(root); err != nil {
		t.Fatalf("CompileRoot: %v", err)
	}

	fn, ok := ctx.LookupFunc("add")
	if !ok {
		t.Fatal("expected add to be declared")
	}
	if len(fn.Blocks) == 0 {
		t.Fatal("expected add to have a compiled body")
	}
	for _, blk := range fn.Blocks {
		if blk.Term == nil {
			t.Fatalf("block %s left unterminated", blk.Name())
		}
	}
}

// TestCompileRootDefaultValueParameter checks that a function declaring a
// trailing defaulted parameter still compiles its full-arity entry point
// (the defaulting trampoline itself is a semantic-analysis responsibility:
// by the time a detailed tree reaches this backend, a call site omitting
// the defaulted argument has already been desugared to an explicit one, so
// the Node Compiler only ever sees fully-applied calls; see DESIGN.md).
func TestCompileRootDefaultValueParameter(t *testing.T) {
	withDefault := tree.Parameter{
		Name:    "step",
		Type:    intType(),
		Default: &tree.IntegerLiteral{Value: 1},
	}
	required := tree.Parameter{Name: "base", Type: intType()}
	body := &tree.Block{Statements: []tree.Statement{
		&tree.ReturnStatement{Value: ident("base", tree.SymbolParameter, intType())},
	}}
	def := &tree.FunctionDefinition{
		Name:       "advance",
		MangledID:  "advance",
		Parameters: []tree.Parameter{required, withDefault},
		ReturnType: intType(),
		Body:       body,
	}
	root := &tree.Root{ID: "root.advance", Body: &tree.Program{Statements: []tree.Statement{def}}}

	ctx := irgen.NewContext("p10")
	c := New(ctx, testLogger())
	if err := c.CompileRoot(root); err != nil {
		t.Fatalf("CompileRoot: %v", err)
	}

	fn, ok := ctx.LookupFunc("advance")
	if !ok {
		t.Fatal("expected advance to be declared")
	}
	if len(fn.Blocks) == 0 {
		t.Fatal("expected advance to have a compiled body")
	}
}

// TestCompileRootClassDestructorChain exercises §8 scenario 2: a class with
// one member compiles an init function, a default copy constructor, and a
// destructor, without requiring a parent class to exist for the base case.
func TestCompileRootClassDestructorChain(t *testing.T) {
	cl := &typesys.Class{Name: "Counter"}
	cl.Members = []typesys.Member{{Name: "value", Type: intType()}}
	cl.Constructors = []*typesys.Constructor{{Parameters: []typesys.Parameter{{Name: "value", Type: intType()}}}}
	cl.Destructor = &typesys.Destructor{}

	ctorDef := &tree.ConstructorDefinition{
		Descriptor: cl.Constructors[0],
		Parameters: []tree.Parameter{{Name: "value", Type: intType()}},
		Body:       &tree.Block{},
	}
	classDef := &tree.ClassDefinition{
		Descriptor:   cl,
		Constructors: []*tree.ConstructorDefinition{ctorDef},
		Destructor:   &tree.Block{},
	}
	root := &tree.Root{ID: "root.counter", Body: &tree.Program{Statements: []tree.Statement{classDef}}}

	ctx := irgen.NewContext("scenario2")
	c := New(ctx, testLogger())
	if err := c.CompileRoot(root); err != nil {
		t.Fatalf("CompileRoot: %v", err)
	}

	if len(ctx.Module.Funcs) == 0 {
		t.Fatal("expected the class's init/constructor/destructor functions to be emitted")
	}
	for _, fn := range ctx.Module.Funcs {
		for _, blk := range fn.Blocks {
			if blk.Term == nil {
				t.Fatalf("function %s block %s left unterminated", fn.Name(), blk.Name())
			}
		}
	}
}

// TestModuleInitForGlobalVariable exercises the module initialiser path: a
// global variable with a non-constant initialiser forces ModuleInitFunc to
// report a function, and FinishModuleInit must close it with a terminator.
func TestModuleInitForGlobalVariable(t *testing.T) {
	one := &tree.IntegerLiteral{Value: 1}
	one.ResolvedType = intType()
	two := &tree.IntegerLiteral{Value: 2}
	two.ResolvedType = intType()
	def := &tree.VariableDefinition{
		Name:     "counter",
		Type:     intType(),
		Value:    &tree.InfixExpression{Operator: "+", Left: one, Right: two},
		IsGlobal: true,
	}
	root := &tree.Root{ID: "root.global", Body: &tree.Program{Statements: []tree.Statement{def}}}

	ctx := irgen.NewContext("moduleinit")
	c := New(ctx, testLogger())
	if err := c.CompileRoot(root); err != nil {
		t.Fatalf("CompileRoot: %v", err)
	}

	fn, ok := c.ModuleInitFunc()
	if !ok {
		t.Fatal("expected a non-constant global initialiser to require a module initialiser function")
	}
	finished := c.FinishModuleInit()
	if finished != fn {
		t.Fatal("FinishModuleInit should return the same function ModuleInitFunc reported")
	}
	for _, blk := range finished.Blocks {
		if blk.Term == nil {
			t.Fatalf("module init block %s left unterminated", blk.Name())
		}
	}
}
