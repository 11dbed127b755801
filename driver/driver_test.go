package driver

import (
	"os/exec"
	"testing"

	"go.uber.org/zap"

	"github.com/alta-lang/altac-codegen/diag"
	"github.com/alta-lang/altac-codegen/tree"
	"github.com/alta-lang/altac-codegen/typesys"
)

func intType() *typesys.Type {
	return &typesys.Type{Kind: typesys.KindNative, Native: typesys.NativeInt}
}

// addRoot builds §8 scenario 1's fixture: fn add(a: int, b: int) -> int {
// return a + b }, as a single root with no dependencies.
func addRoot() *tree.Root {
	a := tree.Parameter{Name: "a", Type: intType()}
	b := tree.Parameter{Name: "b", Type: intType()}
	body := &tree.Block{Statements: []tree.Statement{
		&tree.ReturnStatement{Value: &tree.InfixExpression{
			Operator: "+",
			Left:     identifier("a"),
			Right:    identifier("b"),
		}},
	}}
	def := &tree.FunctionDefinition{
		Name:       "add",
		MangledID:  "add",
		Parameters: []tree.Parameter{a, b},
		ReturnType: intType(),
		Body:       body,
	}
	program := &tree.Program{Statements: []tree.Statement{def}}
	return &tree.Root{ID: "root.add", Body: program}
}

func identifier(name string) *tree.Identifier {
	id := &tree.Identifier{Value: name, Symbol: tree.Symbol{Scope: tree.SymbolParameter}}
	// ResolvedType is promoted from tree's unexported exprBase; assigning it
	// directly stands in for what semantic analysis would have attached.
	id.ResolvedType = intType()
	return id
}

func TestTopoSortOrdersDependenciesFirst(t *testing.T) {
	leaf := &tree.Root{ID: "leaf", Body: &tree.Program{}}
	mid := &tree.Root{ID: "mid", Requires: []string{"leaf"}, Body: &tree.Program{}}
	top := &tree.Root{ID: "top", Requires: []string{"mid", "leaf"}, Body: &tree.Program{}}

	order, err := topoSort([]*tree.Root{top, mid, leaf})
	if err != nil {
		t.Fatalf("topoSort returned error: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, r := range order {
		pos[r.ID] = i
	}
	if pos["leaf"] > pos["mid"] || pos["mid"] > pos["top"] {
		t.Fatalf("dependency order violated: %v", idsOf(order))
	}
}

func TestTopoSortDetectsCycle(t *testing.T) {
	a := &tree.Root{ID: "a", Requires: []string{"b"}, Body: &tree.Program{}}
	b := &tree.Root{ID: "b", Requires: []string{"a"}, Body: &tree.Program{}}

	_, err := topoSort([]*tree.Root{a, b})
	if err == nil {
		t.Fatal("expected a cycle error, got nil")
	}
	if _, ok := err.(*diag.Error); !ok {
		t.Fatalf("want *diag.Error, got %T", err)
	}
}

func TestTopoSortUnknownDependency(t *testing.T) {
	a := &tree.Root{ID: "a", Requires: []string{"missing"}, Body: &tree.Program{}}
	if _, err := topoSort([]*tree.Root{a}); err == nil {
		t.Fatal("expected an error for an unresolvable dependency")
	}
}

func idsOf(roots []*tree.Root) []string {
	out := make([]string, len(roots))
	for i, r := range roots {
		out[i] = r.ID
	}
	return out
}

// TestCompileAddScenarioVerifies exercises §8 scenario 1 end to end through
// CompileRoot and the driver's own structural verifier, without shelling
// out to llc (kept as a separate, environment-gated test below), so it
// runs in any environment.
func TestCompileAddScenarioVerifies(t *testing.T) {
	log := zap.NewNop().Sugar()
	d := New("scenario1", Config{OutputPath: "scenario1.o"}, log)

	if err := d.Compiler.CompileRoot(addRoot()); err != nil {
		t.Fatalf("CompileRoot: %v", err)
	}
	if _, ok := d.Compiler.ModuleInitFunc(); ok {
		d.Compiler.FinishModuleInit()
	}
	if err := verifyModule(d.IR.Module); err != nil {
		t.Fatalf("verifyModule: %v", err)
	}

	fn, ok := d.IR.LookupFunc("add")
	if !ok {
		t.Fatal("expected a declared function for mangled id \"add\"")
	}
	if len(fn.Blocks) == 0 {
		t.Fatal("expected add to have a compiled body")
	}
}

// TestRunEmitsObjectFile exercises the full Driver.Run path including the
// os/exec handoff to llc; it is skipped when no LLVM toolchain is on PATH,
// since that handoff is this package's one genuinely external dependency.
func TestRunEmitsObjectFile(t *testing.T) {
	if _, err := exec.LookPath("llc"); err != nil {
		t.Skip("llc not found on PATH; skipping end-to-end object emission test")
	}

	dir := t.TempDir()
	log := zap.NewNop().Sugar()
	d := New("scenario1", Config{OutputPath: dir + "/scenario1.o"}, log)

	if err := d.Run([]*tree.Root{addRoot()}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
