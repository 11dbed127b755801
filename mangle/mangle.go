// Package mangle implements the Name Mangler (§4.1): a deterministic,
// one-way encoding from a resolved symbol or type to a stable textual
// identifier using only [A-Za-z0-9_]. It carries no state beyond a map of
// emitted identifiers back to their human-readable originals, which the
// driver later writes into the module as the alta.mapping metadata node.
package mangle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Reserved separators used while building the escaped textual form, before
// it is folded into its final hashed identifier. Each corresponds to one
// structural boundary in a mangled name, per §4.1.
const (
	SepScope           = "_0_"
	SepParameterType   = "_1_"
	SepGenericArgument = "_2_"
	SepModifier        = "_3_"
	SepAnonymousScope  = "_4_"
	SepPackageVersion  = "_5_"
	SepPrerelease      = "_6_"
	SepBuildMetadata   = "_7_"
	SepVariadicParam   = "_8_"
	SepParameterName   = "_9_"
	SepLambdaID        = "_10_"
	SepReturnType      = "_11_"
)

// hashPrefix tags every finalised, content-hashed identifier so it can
// never collide with a literal (extern) symbol name emitted verbatim.
const hashPrefix = "Alta_"

// Version is a module's semantic version, mangled as
// "major SepScope minor SepScope patch" plus optional prerelease/build.
type Version struct {
	Major, Minor, Patch int
	Prerelease          string
	Build               string
}

// Mangler produces stable identifiers for symbols and types and remembers
// the human-readable name behind each one it emits.
type Mangler struct {
	shadow map[string]string // mangled -> original
}

// New creates an empty Mangler.
func New() *Mangler {
	return &Mangler{shadow: make(map[string]string)}
}

// escape replaces every rune outside [A-Za-z0-9_] with its hex codepoint
// wrapped in underscores, guaranteeing the escaped form only ever uses the
// reserved character set.
func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, "_x%x_", r)
		}
	}
	return b.String()
}

// MangleVersion renders a module version's escaped textual form.
func MangleVersion(v Version) string {
	s := fmt.Sprintf("%d%s%d%s%d", v.Major, SepScope, v.Minor, SepScope, v.Patch)
	if v.Prerelease != "" {
		s += SepPrerelease + escape(v.Prerelease)
	}
	if v.Build != "" {
		s += SepBuildMetadata + escape(v.Build)
	}
	return s
}

// Scope is one qualifying segment of a symbol's path: a module, namespace,
// class, or function name. An empty Name marks an anonymous scope.
type Scope struct {
	Name string
}

// Symbol is everything the mangler needs to build a unique textual form for
// a non-literal (non-extern) Alta symbol.
type Symbol struct {
	ModuleName    string
	ModuleVersion Version
	Scopes        []Scope
	Name          string
	// ParameterTypes mangles overloaded functions distinctly.
	ParameterTypes []string
	// GenericArguments mangles template/generic instantiations distinctly.
	GenericArguments []string
	// ReturnType, when non-empty, disambiguates symbols that differ only
	// in return type (closures, overloaded operators).
	ReturnType string
	// LambdaID distinguishes anonymous lambda bodies declared in the same scope.
	LambdaID string
	// Extern marks a literal (non-mangled) linkage name, e.g. from a
	// native.link attribute — returned verbatim, bypassing the hash.
	Extern string
}

// escapedForm builds the full escaped textual form of a symbol, before hashing.
func escapedForm(s Symbol) string {
	var b strings.Builder
	b.WriteString(escape(s.ModuleName))
	b.WriteString(SepPackageVersion)
	b.WriteString(MangleVersion(s.ModuleVersion))

	for _, sc := range s.Scopes {
		b.WriteString(SepScope)
		if sc.Name == "" {
			b.WriteString(SepAnonymousScope)
		} else {
			b.WriteString(escape(sc.Name))
		}
	}

	b.WriteString(SepScope)
	b.WriteString(escape(s.Name))

	for _, pt := range s.ParameterTypes {
		b.WriteString(SepParameterType)
		b.WriteString(escape(pt))
	}
	for _, ga := range s.GenericArguments {
		b.WriteString(SepGenericArgument)
		b.WriteString(escape(ga))
	}
	if s.ReturnType != "" {
		b.WriteString(SepReturnType)
		b.WriteString(escape(s.ReturnType))
	}
	if s.LambdaID != "" {
		b.WriteString(SepLambdaID)
		b.WriteString(escape(s.LambdaID))
	}
	return b.String()
}

// Mangle returns the stable identifier for a symbol. Literal (extern)
// symbols are returned unescaped and unhashed; every other symbol is
// finalised through a 256-bit content hash into "Alta_<hex>", per §4.1,
// bounding length and collision probability regardless of how deep the
// scope chain or how many generic arguments it carries.
//
// The hash uses crypto/sha256 from the standard library: the specification
// mandates a 256-bit content hash specifically, and SHA-256 is the
// unambiguous standard-library implementation of one — see DESIGN.md for
// why no third-party hash package from the retrieval pack was substituted
// here.
func (m *Mangler) Mangle(s Symbol) string {
	if s.Extern != "" {
		m.shadow[s.Extern] = s.Extern
		return s.Extern
	}

	form := escapedForm(s)
	sum := sha256.Sum256([]byte(form))
	id := hashPrefix + hex.EncodeToString(sum[:])

	m.shadow[id] = humanReadable(s)
	return id
}

// MangleType returns the stable identifier for a type's mangled key, used
// by the Type Translator to memoise LLVM type translation. Types are always
// hashed (they have no extern/literal form).
func (m *Mangler) MangleType(key string) string {
	sum := sha256.Sum256([]byte(escape(key)))
	id := hashPrefix + hex.EncodeToString(sum[:])
	m.shadow[id] = key
	return id
}

// humanReadable renders the original fully-qualified name for the shadow map.
func humanReadable(s Symbol) string {
	var parts []string
	for _, sc := range s.Scopes {
		if sc.Name == "" {
			parts = append(parts, "<anonymous>")
		} else {
			parts = append(parts, sc.Name)
		}
	}
	parts = append(parts, s.Name)
	name := strings.Join(parts, ".")
	if len(s.ParameterTypes) > 0 {
		name += "(" + strings.Join(s.ParameterTypes, ", ") + ")"
	}
	return name
}

// Mapping returns the accumulated mangled-name -> original-name pairs, in
// the shape the driver writes out as the alta.mapping named metadata node.
// The order is not significant; callers that need determinism should sort
// the returned pairs themselves.
func (m *Mangler) Mapping() map[string]string {
	out := make(map[string]string, len(m.shadow))
	for k, v := range m.shadow {
		out[k] = v
	}
	return out
}
