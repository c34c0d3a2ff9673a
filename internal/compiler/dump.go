package compiler

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/animflow/internal/model"
)

// Dump renders a compiled flow as stable text. Map-valued sections are
// sorted by key.
func Dump(f *CompiledFlow, snap *model.Snapshot) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "composition: %s\n", f.CompositionID)

	b.WriteString("compute:\n")
	for i, id := range f.ToCompute {
		typ := "?"
		if n, ok := snap.Nodes[id]; ok {
			typ = n.Type.String()
		}
		fmt.Fprintf(&b, "  %d %s %s graph=%s\n", i, id, typ, f.NodeGraph[id])
	}

	writeListMap(&b, "next", " -> ", f.NodeToNext)
	writeListMap(&b, "affected_inputs", " -> ", f.PropertyIDToAffectedInputNodes)
	writeListMap(&b, "written", " <- ", f.WrittenProperties)

	b.WriteString("frame_index_nodes:\n")
	for _, id := range f.FrameIndexNodes {
		fmt.Fprintf(&b, "  %s\n", id)
	}

	b.WriteString("array_counts:\n")
	for _, k := range sortedKeys(f.ArrayModifierGroupToCount) {
		fmt.Fprintf(&b, "  %s -> %s\n", k, f.ArrayModifierGroupToCount[k])
	}

	b.WriteString("cross_graph_inputs:\n")
	cross := make([]string, 0, len(f.CrossGraphInputs))
	for id, ok := range f.CrossGraphInputs {
		if ok {
			cross = append(cross, id)
		}
	}
	sort.Strings(cross)
	for _, id := range cross {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	return b.Bytes()
}

func writeListMap(b *bytes.Buffer, title, sep string, m map[string][]string) {
	fmt.Fprintf(b, "%s:\n", title)
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(b, "  %s%s%s\n", k, sep, strings.Join(m[k], ", "))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
