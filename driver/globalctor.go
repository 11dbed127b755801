package driver

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"

	"github.com/alta-lang/altac-codegen/irgen"
)

// registerGlobalCtor appends fn to @llvm.global_ctors at the given
// priority, the standard mechanism a native object uses to run a
// module-scope initialiser before main (§3 Lifecycles: the module
// initialiser is "registered as a global constructor"; §4.9: "at priority
// 65535"). github.com/llir/llvm has no dedicated helper for this array —
// it is built by hand exactly as a C frontend's IR builder would: an
// appending array of {i32 priority, void()* ctor, i8* data}.
func registerGlobalCtor(c *irgen.Context, fn *ir.Func, priority int64) {
	i8ptr := types.NewPointer(types.I8)
	ctorFnType := types.NewPointer(types.NewFunc(types.Void))
	entryType := types.NewStruct(types.I32, ctorFnType, i8ptr)

	entry := constant.NewStruct(entryType,
		constant.NewInt(types.I32, priority),
		constant.NewBitCast(fn, ctorFnType),
		constant.NewNull(i8ptr),
	)

	arrType := types.NewArray(1, entryType)
	arr := constant.NewArray(arrType, entry)

	g := c.Module.NewGlobalDef("llvm.global_ctors", arr)
	g.Linkage = enum.LinkageAppending
}

// ModuleInitPriority is the fixed global-constructor priority the driver
// registers the module initialiser at (§4.9).
const ModuleInitPriority = 65535
