package abi

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/alta-lang/altac-codegen/irgen"
)

func newFunc(c *irgen.Context, name string) (*ir.Func, *ir.Block) {
	fn := c.Module.NewFunc(name, types.Void)
	blk := fn.NewBlock("entry")
	return fn, blk
}

func TestDeclareIsMemoised(t *testing.T) {
	c := irgen.NewContext("test")
	r1 := Declare(c)
	r2 := Declare(c)
	if r1.BadCast != r2.BadCast {
		t.Fatalf("expected second Declare call to reuse the same _Alta_bad_cast function")
	}
}

func TestGetChildIsVariadic(t *testing.T) {
	c := irgen.NewContext("test")
	r := Declare(c)
	if !r.GetChild.Sig.Variadic {
		t.Fatalf("_Alta_get_child should be declared variadic")
	}
}

func TestBadCastCallEmitsCall(t *testing.T) {
	c := irgen.NewContext("test")
	r := Declare(c)
	_, blk := newFunc(c, "f")

	r.BadCastCall(blk, "Foo", "Bar")

	found := false
	for _, inst := range blk.Insts {
		if call, ok := inst.(*ir.InstCall); ok && call.Callee == r.BadCast {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a call to _Alta_bad_cast in the block")
	}
}

func TestChildLookupReturnsCallResult(t *testing.T) {
	c := irgen.NewContext("test")
	r := Declare(c)
	fn, blk := newFunc(c, "g")
	i8ptr := types.NewPointer(types.I8)
	self := ir.NewParam("self", i8ptr)
	fn.Params = append(fn.Params, self)

	got := r.ChildLookup(blk, self, "Base")
	call, ok := got.(*ir.InstCall)
	if !ok {
		t.Fatalf("expected ChildLookup to return the call instruction, got %T", got)
	}
	if call.Callee != r.GetChild {
		t.Fatalf("expected call to target _Alta_get_child")
	}
}
