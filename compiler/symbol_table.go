package compiler

import (
	"github.com/llir/llvm/ir/value"

	"github.com/alta-lang/altac-codegen/typesys"
)

// slot is the concrete storage a resolved name maps to within one function
// compilation: the LLVM value backing it (a pointer for anything tmpified,
// a bare register for `this`, lambda parameters, and parameters whose
// indirection level is above zero) plus its logical type.
type slot struct {
	value value.Value
	typ   *typesys.Type
}

// locals tracks name -> storage bindings live within the function currently
// being compiled. Unlike the teacher's SymbolTable (which only resolved
// names to indices ahead of emission), every name here is already resolved
// by the upstream semantic analyser — tree.Identifier carries its own
// tree.Symbol with scope and index — so this table exists purely to look up
// the concrete IR value a given local/parameter name was materialised as,
// not to perform resolution itself.
type locals struct {
	byName map[string]slot
}

func newLocals() *locals {
	return &locals{byName: make(map[string]slot)}
}

func (l *locals) define(name string, v value.Value, t *typesys.Type) {
	l.byName[name] = slot{value: v, typ: t}
}

func (l *locals) lookup(name string) (slot, bool) {
	s, ok := l.byName[name]
	return s, ok
}
