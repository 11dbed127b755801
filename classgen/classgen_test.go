package classgen

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/alta-lang/altac-codegen/irgen"
	"github.com/alta-lang/altac-codegen/lifecycle"
	"github.com/alta-lang/altac-codegen/typesys"
)

func intType() *typesys.Type {
	return &typesys.Type{Kind: typesys.KindNative, Native: typesys.NativeInt}
}

// TestFillLayoutOrdersInstanceInfoParentsMembers checks §4.7's layout
// ordering: [instance_info, parents..., members...].
func TestFillLayoutOrdersInstanceInfoParentsMembers(t *testing.T) {
	c := irgen.NewContext("test")
	e := NewEmitter(c, nil)

	base := &typesys.Class{Name: "Base"}
	derived := &typesys.Class{
		Name:    "Derived",
		Parents: []typesys.ParentRef{{Class: base, AggregateIndex: 0}},
		Members: []typesys.Member{{Name: "extra", Type: intType()}},
	}

	st := e.FillLayout(derived)
	if len(st.Fields) != 3 {
		t.Fatalf("want 3 fields (instance_info, Base, extra), got %d", len(st.Fields))
	}
	if st.Fields[0] != types.Type(c.Descriptors.InstanceInfo) {
		t.Fatalf("field 0 should be instance_info, got %v", st.Fields[0])
	}
}

// TestFillLayoutOmitsHeaderForStructures checks that structures/bitfields
// have no instance_info header.
func TestFillLayoutOmitsHeaderForStructures(t *testing.T) {
	c := irgen.NewContext("test")
	e := NewEmitter(c, nil)

	cl := &typesys.Class{Name: "Pod", IsStructure: true, Members: []typesys.Member{{Name: "v", Type: intType()}}}
	st := e.FillLayout(cl)
	if len(st.Fields) != 1 {
		t.Fatalf("want 1 field for a structure with 1 member, got %d", len(st.Fields))
	}
}

// TestEmitDestructorWalksParentsAfterMembers checks §4.7's destructor
// order: members first, then parents.
func TestEmitDestructorWalksParentsAfterMembers(t *testing.T) {
	c := irgen.NewContext("test")
	lc := &lifecycle.Engine{IR: c}
	e := NewEmitter(c, lc)

	base := &typesys.Class{Name: "Base"}
	derived := &typesys.Class{
		Name:    "Derived",
		Parents: []typesys.ParentRef{{Class: base, AggregateIndex: 0}},
		Members: []typesys.Member{{Name: "x", Type: intType()}},
	}

	fn := e.EmitDestructor(derived)
	if len(fn.Blocks) == 0 {
		t.Fatalf("expected destructor body to be emitted")
	}

	baseDtor := e.EmitDestructor(base)
	memberAt, parentAt := -1, -1
	for i, inst := range fn.Blocks[0].Insts {
		switch inst := inst.(type) {
		case *ir.InstLoad:
			if memberAt < 0 {
				memberAt = i
			}
		case *ir.InstCall:
			if inst.Callee == baseDtor {
				parentAt = i
			}
		}
	}
	if memberAt < 0 || parentAt < memberAt {
		t.Fatalf("want member x handled before Base's destructor call, got member at %d, parent call at %d", memberAt, parentAt)
	}
}

// TestEmitConstructorProducesThreeEntryPoints checks §4.7's constructor
// wrapper triple: an internal entry, a stack-returning entry, and a
// persistent (heap-allocating) entry.
func TestEmitConstructorProducesThreeEntryPoints(t *testing.T) {
	c := irgen.NewContext("test")
	e := NewEmitter(c, nil)

	cl := &typesys.Class{Name: "Widget", Members: []typesys.Member{{Name: "v", Type: intType()}}}
	ctor := &typesys.Constructor{Name: "", Parameters: []typesys.Parameter{{Name: "v", Type: intType()}}}

	internal, stack, persistent := e.EmitConstructor(cl, ctor, func(fn *ir.Func, entry *ir.Block) {
		entry.NewRet(nil)
	})

	if internal == stack || stack == persistent || internal == persistent {
		t.Fatalf("expected three distinct functions, got internal=%p stack=%p persistent=%p", internal, stack, persistent)
	}
	if _, ok := persistent.Sig.RetType.(*types.PointerType); !ok {
		t.Fatalf("persistent entry should return a pointer, got %v", persistent.Sig.RetType)
	}
}
