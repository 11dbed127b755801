package cast

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/alta-lang/altac-codegen/diag"
	"github.com/alta-lang/altac-codegen/irgen"
	"github.com/alta-lang/altac-codegen/scope"
	"github.com/alta-lang/altac-codegen/typesys"
)

func intType() *typesys.Type {
	return &typesys.Type{Kind: typesys.KindNative, Native: typesys.NativeInt}
}

func classRef(name string) *typesys.ClassRef {
	cl := &typesys.Class{Name: name}
	return &typesys.ClassRef{Name: name, Resolve: func() *typesys.Class { return cl }}
}

func newFunc(name string) (*ir.Func, *ir.Block) {
	fn := ir.NewFunc(name, types.Void)
	entry := ir.NewBlock("entry")
	fn.Blocks = append(fn.Blocks, entry)
	entry.Parent = fn
	return fn, entry
}

// TestRunEmptyPathIsValidationError checks §4.5's explicit failure case.
func TestRunEmptyPathIsValidationError(t *testing.T) {
	c := irgen.NewContext("test")
	e := &Engine{IR: c, Scope: scope.NewStack()}

	_, entry := newFunc("f")
	v := entry.NewAlloca(types.I32)

	_, err := e.Run(Request{Block: entry, Value: v, SourceType: intType(), DestType: intType(), Path: nil})
	if err == nil {
		t.Fatalf("expected an error for an empty cast path")
	}
	if _, ok := err.(*diag.Error); !ok {
		t.Fatalf("expected a *diag.Error, got %T", err)
	}
}

// TestDowncastCallsChildLookup checks P5: downcasting delegates to the
// runtime child lookup, whose contract is to return null on failure — the
// engine itself only needs to wire the call through.
func TestDowncastCallsChildLookup(t *testing.T) {
	c := irgen.NewContext("test")
	var lookedUp string
	nullPtr := types.NewPointer(types.I8)
	e := &Engine{IR: c, Scope: scope.NewStack(), ChildLookup: func(block *ir.Block, instance value.Value, wantClass string) value.Value {
		lookedUp = wantClass
		return constant.NewNull(nullPtr)
	}}

	_, entry := newFunc("f")
	instancePtr := entry.NewAlloca(types.I8)

	src := &typesys.Type{Kind: typesys.KindClass, Class: classRef("A"), Modifiers: typesys.Modifiers{typesys.ModPointer}}
	step := Step{Kind: StepDowncast, TargetClass: classRef("B"), To: &typesys.Type{Kind: typesys.KindClass, Class: classRef("B"), Modifiers: typesys.Modifiers{typesys.ModPointer}}}

	_, result, _, err := e.applyStep(entry, instancePtr, src, step.To, step, diag.Position{})
	if err != nil {
		t.Fatalf("downcast failed: %v", err)
	}
	if lookedUp != "B" {
		t.Fatalf("want ChildLookup called with %q, got %q", "B", lookedUp)
	}
	if result == nil {
		t.Fatalf("want a result value from downcast")
	}
}

// TestMulticastBuildsOneCasePerViableMember checks P6: every viable member
// gets a switch case; the rest fall through to the default bad_cast block.
func TestMulticastBuildsOneCasePerViableMember(t *testing.T) {
	c := irgen.NewContext("test")

	var badCastCalls int
	e := &Engine{
		IR:    c,
		Scope: scope.NewStack(),
		BadCast: func(block *ir.Block, fromType, toType string) {
			badCastCalls++
		},
	}

	members := []*typesys.Type{intType(), intType(), intType()}
	unionType := &typesys.Type{Kind: typesys.KindUnion, Union: members}

	fn, entry := newFunc("f")
	slot := entry.NewAlloca(c.Translate(unionType, true))
	val := entry.NewLoad(c.Translate(unionType, true), slot)

	step := Step{
		Kind: StepMulticast,
		To:   intType(),
		MulticastCases: map[int][]Step{
			0: {{Kind: StepDestination}},
			2: {{Kind: StepDestination}},
		},
	}

	_, _, _, err := e.applyStep(entry, val, unionType, intType(), step, diag.Position{})
	if err != nil {
		t.Fatalf("applyStep failed: %v", err)
	}

	if badCastCalls != 1 {
		t.Fatalf("want exactly 1 BadCast call (once, in the default block), got %d", badCastCalls)
	}

	var caseBlocks int
	for _, b := range fn.Blocks {
		if len(b.Name()) >= len("multicast.case") && b.Name()[:len("multicast.case")] == "multicast.case" {
			caseBlocks++
		}
	}
	if caseBlocks != 2 {
		t.Fatalf("want 2 case blocks for 2 viable members, got %d", caseBlocks)
	}
}

// TestWidenNarrowRoundTrip checks P9: narrowing a widened value back to
// its original member type yields the same IR type, and the tag width
// matches ceil(log2(|members|)).
func TestWidenNarrowRoundTrip(t *testing.T) {
	c := irgen.NewContext("test")
	e := &Engine{IR: c, Scope: scope.NewStack()}

	members := []*typesys.Type{intType(), intType(), intType()}
	unionType := &typesys.Type{Kind: typesys.KindUnion, Union: members}

	fn, entry := newFunc("f")
	_ = fn
	src := entry.NewLoad(types.I32, entry.NewAlloca(types.I32))

	widenStep := Step{Kind: StepWiden, To: unionType}
	cur, widened, widenedType, err := e.applyStep(entry, src, intType(), unionType, widenStep, diag.Position{})
	if err != nil {
		t.Fatalf("widen failed: %v", err)
	}
	if widenedType != unionType {
		t.Fatalf("widen should report the union type")
	}
	st, ok := widened.Type().(*types.StructType)
	if !ok {
		t.Fatalf("want widened value of a union struct type, got %v", widened.Type())
	}
	if tag, ok := st.Fields[0].(*types.IntType); !ok || tag.BitSize != 2 {
		t.Fatalf("want a 2-bit tag for 3 members, got %v", st.Fields[0])
	}

	narrowStep := Step{Kind: StepNarrow, To: intType()}
	_, narrowed, narrowedType, err := e.applyStep(cur, widened, unionType, intType(), narrowStep, diag.Position{})
	if err != nil {
		t.Fatalf("narrow failed: %v", err)
	}
	if narrowed.Type() != types.I32 {
		t.Fatalf("want narrowed value of type i32, got %v", narrowed.Type())
	}
	if narrowedType != intType() && narrowedType.Kind != typesys.KindNative {
		t.Fatalf("want narrowed type to report as native int")
	}
}
