package irgen

import (
	"github.com/llir/llvm/ir/types"

	"github.com/alta-lang/altac-codegen/typesys"
)

// mangledKey builds the Type Translator's memoisation key: the type's
// mangled textual form (§4.2: "Results are memoised by the full mangled
// type key").
func (c *Context) mangledKey(t *typesys.Type) string {
	return c.Mangler.MangleType(t.String())
}

// Translate lowers a detailed-tree type descriptor to an LLVM type,
// prepending a function pointer's hidden `self` parameter for methods and
// choosing between a raw function pointer and a basic_function closure
// representation, per §4.2.
func (c *Context) Translate(t *typesys.Type, usePointerToFunctions bool) types.Type {
	key := c.mangledKey(t)
	if cached, ok := c.typeCache[key]; ok {
		return cached
	}

	base := c.translateBase(t, usePointerToFunctions)
	result := base
	for i := 0; i < t.Modifiers.IndirectionLevel(); i++ {
		result = types.NewPointer(result)
	}

	c.typeCache[key] = result
	return result
}

// translateBase lowers the unwrapped (indirection-free) shape of a type.
func (c *Context) translateBase(t *typesys.Type, usePointerToFunctions bool) types.Type {
	switch t.Kind {
	case typesys.KindNative:
		return c.translateNative(t)
	case typesys.KindFunction:
		return c.translateFunction(t.Function, usePointerToFunctions)
	case typesys.KindClass:
		return c.translateClass(t.Class.Descriptor())
	case typesys.KindUnion:
		return c.translateUnion(t.Union)
	case typesys.KindOptional:
		return c.translateOptional(t.Optional)
	case typesys.KindBitfield:
		return c.Translate(t.Bitfield.Underlying, usePointerToFunctions)
	default:
		panic("irgen: unknown type kind")
	}
}

// translateNative widens/narrows integers by modifier flags: long doubles a
// base 32-bit width up to 64; short halves down to 8 (§4.2).
func (c *Context) translateNative(t *typesys.Type) types.Type {
	switch t.Native {
	case typesys.NativeVoid:
		return types.Void
	case typesys.NativeBool:
		return types.I1
	case typesys.NativeByte:
		return types.I8
	case typesys.NativeFloat:
		return types.Float
	case typesys.NativeDouble:
		return types.Double
	case typesys.NativeInt:
		width := 32
		if t.Modifiers.IsLong() {
			width = 64
		}
		if t.Modifiers.IsShort() {
			width = 8
		}
		return types.NewInt(int64(width))
	default:
		// NativeUserNamed: a type alias resolved elsewhere by semantic
		// analysis to one of the above; default to the widest native width
		// a frontend would alias to (i64) rather than guess further.
		return types.I64
	}
}

// translateFunction lowers a raw function pointer or closure function type.
func (c *Context) translateFunction(f *typesys.FunctionType, usePointerToFunctions bool) types.Type {
	if !f.IsRaw {
		return c.Descriptors.BasicFunction
	}

	var params []types.Type
	if f.MethodOf != nil {
		params = append(params, types.NewPointer(c.translateClass(f.MethodOf.Descriptor())))
	}
	for _, p := range f.Parameters {
		params = append(params, c.Translate(p.Type, usePointerToFunctions))
	}

	if f.Variadic != nil {
		if f.Variadic.Kind == typesys.VariadicNative {
			sig := types.NewFunc(c.Translate(f.Return, usePointerToFunctions), params...)
			sig.Variadic = true
			return wrapIfPointer(sig, usePointerToFunctions)
		}
		// (count: i64, data: T*) pair lowering.
		params = append(params, types.I64, types.NewPointer(c.Translate(f.Variadic.Element, usePointerToFunctions)))
	}

	sig := types.NewFunc(c.Translate(f.Return, usePointerToFunctions), params...)
	return wrapIfPointer(sig, usePointerToFunctions)
}

func wrapIfPointer(sig *types.FuncType, usePointerToFunctions bool) types.Type {
	if usePointerToFunctions {
		return types.NewPointer(sig)
	}
	return sig
}

// translateUnion lowers {tag:iN, payload:[S x i8]} per §4.2/§3.
func (c *Context) translateUnion(members []*typesys.Type) types.Type {
	tagType := types.NewInt(int64(unionTagBits(len(members))))

	size, align := 0, 1
	for _, m := range members {
		s, a := c.storeSizeAndAlign(m)
		if s > size {
			size = s
		}
		if a > align {
			align = a
		}
	}
	if size == 0 {
		size = align
	}
	payload := types.NewArray(uint64(size), types.I8)
	return types.NewStruct(tagType, payload)
}

// translateOptional lowers {present:i1, value:T} per §4.2/§3.
func (c *Context) translateOptional(target *typesys.Type) types.Type {
	return types.NewStruct(types.I1, c.Translate(target, true))
}

// unionTagBits computes N = ceil(log2(|members|)), minimum 1 bit.
func unionTagBits(memberCount int) int {
	bits := 1
	for (1 << bits) < memberCount {
		bits++
	}
	if bits < 1 {
		bits = 1
	}
	return bits
}

// storeSizeAndAlign returns a conservative (size, alignment) in bytes for a
// member type, used to size a union's payload. Classes and aggregates
// delegate to their computed layout; natives use their bit width.
func (c *Context) storeSizeAndAlign(t *typesys.Type) (int, int) {
	if t.Modifiers.IndirectionLevel() > 0 {
		return 8, 8
	}
	switch t.Kind {
	case typesys.KindNative:
		switch t.Native {
		case typesys.NativeVoid:
			return 0, 1
		case typesys.NativeBool, typesys.NativeByte:
			return 1, 1
		case typesys.NativeFloat:
			return 4, 4
		case typesys.NativeDouble:
			return 8, 8
		case typesys.NativeInt:
			switch {
			case t.Modifiers.IsLong():
				return 8, 8
			case t.Modifiers.IsShort():
				return 1, 1
			default:
				return 4, 4
			}
		default:
			return 8, 8
		}
	case typesys.KindClass:
		return c.classSize(t.Class.Descriptor())
	case typesys.KindOptional:
		inner, align := c.storeSizeAndAlign(t.Optional)
		return inner + align, align // payload padded to inner's alignment after the i1
	case typesys.KindUnion:
		size, align := 0, 1
		for _, m := range t.Union {
			s, a := c.storeSizeAndAlign(m)
			if s > size {
				size = s
			}
			if a > align {
				align = a
			}
		}
		return size, align
	default:
		return 8, 8
	}
}

// classSize returns a conservative size/alignment for a class's aggregate,
// summing its instance-info header, parents, and members. This need only
// be conservative (an upper bound), since it is exclusively used to size
// union payload storage — the actual class layout is authoritative and
// built by package classgen.
func (c *Context) classSize(cl *typesys.Class) (int, int) {
	size, align := 0, 1
	pad := func(n, a int) int {
		if a <= 1 {
			return n
		}
		return (n + a - 1) / a * a
	}
	if !cl.IsStructure {
		size += 8
		align = 8
	}
	for _, p := range cl.Parents {
		s, a := c.classSize(p.Class)
		size = pad(size, a) + s
		if a > align {
			align = a
		}
	}
	for _, m := range cl.Members {
		s, a := c.storeSizeAndAlign(m.Type)
		size = pad(size, a) + s
		if a > align {
			align = a
		}
	}
	size = pad(size, align)
	if size == 0 {
		size = 1
	}
	return size, align
}

// translateClass returns the class's aggregate LLVM type, building it on
// first demand via the Class Emitter's layout (package classgen calls back
// into FinishClassLayout once it knows the field list).
func (c *Context) translateClass(cl *typesys.Class) types.Type {
	return c.classOpaque(cl)
}

// SizeOf returns the conservative store size, in bytes, the Type Translator
// computes for t. Used directly by the Node Compiler's `sizeof` lowering;
// internally it is the same estimate translateUnion/translateOptional use
// to size payload storage.
func (c *Context) SizeOf(t *typesys.Type) int {
	size, _ := c.storeSizeAndAlign(t)
	return size
}

// FinishClassLayout fills in a previously-opaque class struct's body, once
// the Class Emitter has computed the field list (§4.2: "cycles are broken
// by inserting a named opaque struct first and filling its body afterwards").
func (c *Context) FinishClassLayout(cl *typesys.Class, fields []types.Type) {
	st := c.classOpaque(cl)
	st.Fields = fields
}
