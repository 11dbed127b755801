package lifecycle

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/alta-lang/altac-codegen/irgen"
	"github.com/alta-lang/altac-codegen/typesys"
)

func closureType() *typesys.Type {
	return &typesys.Type{
		Kind: typesys.KindFunction,
		Function: &typesys.FunctionType{
			Return: &typesys.Type{Kind: typesys.KindNative, Native: typesys.NativeVoid},
			IsRaw:  false,
		},
	}
}

func newFunc(name string) (*ir.Func, *ir.Block) {
	fn := ir.NewFunc(name, types.Void)
	entry := ir.NewBlock("entry")
	fn.Blocks = append(fn.Blocks, entry)
	entry.Parent = fn
	return fn, entry
}

// TestCopyClosureEmitsGuardedIncrement checks P7's copy half: copying a
// closure is guarded by a null check and increments the refcount via an
// atomicrmw add, never unconditionally.
func TestCopyClosureEmitsGuardedIncrement(t *testing.T) {
	c := irgen.NewContext("test")
	e := &Engine{IR: c}

	fn, entry := newFunc("f")
	closure := entry.NewLoad(c.Descriptors.BasicFunction, entry.NewAlloca(c.Descriptors.BasicFunction))

	_, _ = e.Copy(entry, closure, closureType(), false)

	names := blockNames(fn)
	mustContain(t, names, "closure.copy.inc")
	mustContain(t, names, "closure.copy.cont")
}

// TestDestroyClosureEmitsGuardedDecrementAndFree checks P7's destroy half:
// destroying decrements the refcount and only frees on reaching zero.
func TestDestroyClosureEmitsGuardedDecrementAndFree(t *testing.T) {
	c := irgen.NewContext("test")
	e := &Engine{IR: c}

	fn, entry := newFunc("f")
	closure := entry.NewLoad(c.Descriptors.BasicFunction, entry.NewAlloca(c.Descriptors.BasicFunction))

	e.Destroy(entry, closure, closureType(), false)

	names := blockNames(fn)
	mustContain(t, names, "closure.destroy.dec")
	mustContain(t, names, "closure.destroy.free")
	mustContain(t, names, "closure.destroy.cont")
}

func blockNames(fn *ir.Func) []string {
	var out []string
	for _, b := range fn.Blocks {
		out = append(out, b.Name())
	}
	return out
}

func mustContain(t *testing.T, haystack []string, want string) {
	t.Helper()
	for _, h := range haystack {
		if h == want {
			return
		}
	}
	t.Fatalf("expected block %q among %v", want, haystack)
}
