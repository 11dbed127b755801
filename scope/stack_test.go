package scope

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/alta-lang/altac-codegen/typesys"
)

func intType() *typesys.Type {
	return &typesys.Type{Kind: typesys.KindNative, Native: typesys.NativeInt}
}

// TestCleanupReverseOrder checks P3's ordering guarantee: items are
// destroyed in reverse declaration order.
func TestCleanupReverseOrder(t *testing.T) {
	fn := &ir.Func{}
	entry := ir.NewBlock("entry")
	fn.Blocks = append(fn.Blocks, entry)

	s := NewStack()
	s.PushFrame(Function)

	ptrType := types.NewPointer(types.I32)
	a := entry.NewAlloca(types.I32)
	b := entry.NewAlloca(types.I32)
	c := entry.NewAlloca(types.I32)

	s.PushItem(a, intType(), ptrType, entry)
	s.PushItem(b, intType(), ptrType, entry)
	s.PushItem(c, intType(), ptrType, entry)

	var order []string
	cur := s.Cleanup(fn, entry, func(block *ir.Block, item Item) *ir.Block {
		switch item.Value {
		case a:
			order = append(order, "a")
		case b:
			order = append(order, "b")
		case c:
			order = append(order, "c")
		}
		return block
	})

	if cur != entry {
		t.Fatalf("expected unconditional destroys to stay in the entry block")
	}
	want := []string{"c", "b", "a"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

// TestEndBranchGuardsNullable checks that EndBranch-rewritten items are
// destroyed behind a runtime null check, while untouched items are not.
func TestEndBranchGuardsNullable(t *testing.T) {
	fn := &ir.Func{}
	entry := ir.NewBlock("entry")
	thenArm := ir.NewBlock("then")
	merge := ir.NewBlock("merge")
	fn.Blocks = append(fn.Blocks, entry, thenArm, merge)

	s := NewStack()
	s.PushFrame(Function)

	ptrType := types.NewPointer(types.I32)
	unconditional := entry.NewAlloca(types.I32)
	s.PushItem(unconditional, intType(), ptrType, entry)

	marker := s.BeginBranch()
	branchy := thenArm.NewAlloca(types.I32)
	s.PushItem(branchy, intType(), ptrType, thenArm)
	s.EndBranch(marker, merge, []*ir.Block{entry, thenArm})

	destroyCalls := 0
	s.Cleanup(fn, merge, func(block *ir.Block, item Item) *ir.Block {
		destroyCalls++
		return block
	})

	// The nullable item's destroy call happens inside a synthesised
	// "scope.destroy" block, reached only through a conditional branch;
	// the unconditional item's destroy call happens inline.
	if destroyCalls != 2 {
		t.Fatalf("want 2 destroy calls, got %d", destroyCalls)
	}

	var sawGuard bool
	for _, b := range fn.Blocks {
		if b.Name() == "scope.destroy" {
			sawGuard = true
		}
	}
	if !sawGuard {
		t.Fatalf("expected a synthesised scope.destroy guard block for the branch-merged item")
	}
}

func TestNextTempPerFunctionFrame(t *testing.T) {
	s := NewStack()
	s.PushFrame(Function)

	if got := s.NextTemp(); got != "tmp.0" {
		t.Fatalf("want tmp.0, got %s", got)
	}
	if got := s.NextTemp(); got != "tmp.1" {
		t.Fatalf("want tmp.1, got %s", got)
	}

	s.PushFrame(Function)
	if got := s.NextTemp(); got != "tmp.0" {
		t.Fatalf("nested Function frame should restart its own counter, got %s", got)
	}
}
