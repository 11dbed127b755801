package mangle

import "testing"

// TestMangleDeterminism verifies P1: repeated mangling of the same symbol
// yields the same string.
func TestMangleDeterminism(t *testing.T) {
	sym := Symbol{
		ModuleName:     "core",
		ModuleVersion:  Version{Major: 1, Minor: 2, Patch: 3},
		Scopes:         []Scope{{Name: "Widget"}},
		Name:           "resize",
		ParameterTypes: []string{"int", "int"},
	}

	m := New()
	first := m.Mangle(sym)
	second := m.Mangle(sym)

	if first != second {
		t.Fatalf("mangling is not deterministic: %q != %q", first, second)
	}
}

// TestMangleDistinctSymbols verifies that differently-shaped symbols mangle
// to different identifiers.
func TestMangleDistinctSymbols(t *testing.T) {
	m := New()

	a := m.Mangle(Symbol{ModuleName: "core", Name: "resize", ParameterTypes: []string{"int"}})
	b := m.Mangle(Symbol{ModuleName: "core", Name: "resize", ParameterTypes: []string{"int", "int"}})

	if a == b {
		t.Fatalf("distinct overloads mangled identically: %q", a)
	}
}

// TestMangleCharset verifies only [A-Za-z0-9_] ever appears in a mangled identifier.
func TestMangleCharset(t *testing.T) {
	m := New()
	id := m.Mangle(Symbol{ModuleName: "пакет", Name: "föo-bar!"})

	for _, r := range id {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		if !ok {
			t.Fatalf("mangled identifier %q contains disallowed rune %q", id, r)
		}
	}
}

// TestMangleExternBypassesHash verifies that native.link-style extern
// symbols are returned verbatim, not hashed.
func TestMangleExternBypassesHash(t *testing.T) {
	m := New()
	id := m.Mangle(Symbol{Extern: "malloc"})
	if id != "malloc" {
		t.Fatalf("expected extern symbol to bypass hashing, got %q", id)
	}
}

// TestMappingRecordsOriginal verifies the shadow map preserves the
// human-readable name behind an emitted identifier.
func TestMappingRecordsOriginal(t *testing.T) {
	m := New()
	id := m.Mangle(Symbol{ModuleName: "core", Scopes: []Scope{{Name: "Widget"}}, Name: "resize"})

	mapping := m.Mapping()
	original, ok := mapping[id]
	if !ok {
		t.Fatalf("mapping missing entry for %q", id)
	}
	if original != "Widget.resize" {
		t.Fatalf("unexpected original name: %q", original)
	}
}
