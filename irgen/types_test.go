package irgen

import (
	"testing"

	"github.com/llir/llvm/ir/types"

	"github.com/alta-lang/altac-codegen/typesys"
)

func intType() *typesys.Type {
	return &typesys.Type{Kind: typesys.KindNative, Native: typesys.NativeInt}
}

// TestTranslateMemoises checks P2: two translations of equal types return
// the identical *types.IntType instance, not merely an equal one.
func TestTranslateMemoises(t *testing.T) {
	c := NewContext("test")

	a := c.Translate(intType(), true)
	b := c.Translate(intType(), true)

	if a != b {
		t.Fatalf("Translate did not memoise: got distinct instances %p and %p", a, b)
	}
}

func TestTranslateNativeWidths(t *testing.T) {
	c := NewContext("test")

	longInt := &typesys.Type{Kind: typesys.KindNative, Native: typesys.NativeInt, Modifiers: typesys.Modifiers{typesys.ModLong}}
	shortInt := &typesys.Type{Kind: typesys.KindNative, Native: typesys.NativeInt, Modifiers: typesys.Modifiers{typesys.ModShort}}

	if got := c.Translate(longInt, true); got != types.I64 {
		t.Fatalf("long int: want i64, got %v", got)
	}
	if got := c.Translate(shortInt, true); got != types.I8 {
		t.Fatalf("short int: want i8, got %v", got)
	}
	if got := c.Translate(intType(), true); got != types.I32 {
		t.Fatalf("plain int: want i32, got %v", got)
	}
}

func TestTranslatePointerIndirection(t *testing.T) {
	c := NewContext("test")

	ptrToInt := &typesys.Type{Kind: typesys.KindNative, Native: typesys.NativeInt, Modifiers: typesys.Modifiers{typesys.ModPointer}}
	got := c.Translate(ptrToInt, true)

	pt, ok := got.(*types.PointerType)
	if !ok {
		t.Fatalf("want *types.PointerType, got %T", got)
	}
	if pt.ElemType != types.I32 {
		t.Fatalf("want pointer to i32, got pointer to %v", pt.ElemType)
	}
}

func TestTranslateOptional(t *testing.T) {
	c := NewContext("test")

	opt := &typesys.Type{Kind: typesys.KindOptional, Optional: intType()}
	got := c.Translate(opt, true)

	st, ok := got.(*types.StructType)
	if !ok {
		t.Fatalf("want *types.StructType, got %T", got)
	}
	if len(st.Fields) != 2 || st.Fields[0] != types.I1 {
		t.Fatalf("want {i1, i32}, got %v", st.Fields)
	}
}

func TestTranslateUnionTagWidth(t *testing.T) {
	c := NewContext("test")

	members := []*typesys.Type{intType(), intType(), intType()}
	union := &typesys.Type{Kind: typesys.KindUnion, Union: members}
	got := c.Translate(union, true)

	st, ok := got.(*types.StructType)
	if !ok {
		t.Fatalf("want *types.StructType, got %T", got)
	}
	tag, ok := st.Fields[0].(*types.IntType)
	if !ok || tag.BitSize != 2 {
		t.Fatalf("want a 2-bit tag for 3 members, got %v", st.Fields[0])
	}
}

func TestTranslateClassOpaqueThenFilled(t *testing.T) {
	c := NewContext("test")
	cl := &typesys.Class{Name: "Widget"}

	first := c.translateClass(cl)
	st, ok := first.(*types.StructType)
	if !ok {
		t.Fatalf("want *types.StructType, got %T", first)
	}
	if len(st.Fields) != 0 {
		t.Fatalf("want freshly created class type to be opaque, got %d fields", len(st.Fields))
	}

	c.FinishClassLayout(cl, []types.Type{c.Descriptors.InstanceInfo, types.I32})

	second := c.translateClass(cl)
	if second != first {
		t.Fatalf("FinishClassLayout should fill the same named struct, got a distinct instance")
	}
	if len(st.Fields) != 2 {
		t.Fatalf("want 2 fields after FinishClassLayout, got %d", len(st.Fields))
	}
}
