package driver

import (
	"sort"

	"github.com/llir/llvm/ir/metadata"

	"github.com/alta-lang/altac-codegen/irgen"
)

// emitMapping writes the alta.mapping named metadata node (§6 "Output":
// "A named module metadata node alta.mapping lists pairs of (mangled name,
// original fully qualified name)"), built from the Name Mangler's
// accumulated shadow map (§4.1). Pairs are sorted by mangled name first so
// the emitted IR is deterministic across runs given the same input tree,
// matching P1's determinism guarantee at the metadata layer too.
func emitMapping(c *irgen.Context) {
	pairs := c.Mangler.Mapping()
	if len(pairs) == 0 {
		return
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	named := &metadata.NamedDef{Name: "alta.mapping"}
	var nextID int64
	for _, mangled := range keys {
		pair := &metadata.Tuple{
			MetadataID: nextID,
			Fields: []metadata.Field{
				&metadata.String{Value: mangled},
				&metadata.String{Value: pairs[mangled]},
			},
		}
		nextID++
		named.Nodes = append(named.Nodes, pair)
	}

	if c.Module.NamedMetadataDefs == nil {
		c.Module.NamedMetadataDefs = make(map[string]*metadata.NamedDef)
	}
	c.Module.NamedMetadataDefs[named.Name] = named
}
