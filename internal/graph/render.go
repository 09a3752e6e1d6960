package graph

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/chunkgraph/internal/ir"
)

// Render writes a deterministic, line-oriented dump of the graph: groups,
// then chunks, then block targets, each in key order. Equal graphs render to
// identical bytes.
func Render(g *ChunkGraph) []byte {
	var buf bytes.Buffer
	for _, cg := range g.Groups() {
		fmt.Fprintf(&buf, "group %d %s name=%s initial=%t runtime=%s parents=%s chunks=%s\n",
			cg.Ukey, cg.Kind, orDash(cg.Name), cg.Initial, orDash(cg.Runtime.Key()),
			joinKeys(cg.Parents()), joinKeys(cg.chunks))
	}
	for _, c := range g.Chunks() {
		fmt.Fprintf(&buf, "chunk %d %s name=%s runtime=%s groups=%s modules=%s",
			c.Ukey, c.Kind, orDash(c.Name), orDash(c.Runtime.Key()),
			joinKeys(c.Groups()), joinIDs(g.ChunkModules(c.Ukey)))
		if g.HasEntryModules(c.Ukey) {
			fmt.Fprintf(&buf, " entry=%s", joinIDs(g.EntryModules(c.Ukey)))
		}
		buf.WriteByte('\n')
	}
	for _, b := range g.Blocks() {
		fmt.Fprintf(&buf, "block %s -> %d\n", b, g.blockGroups[b])
	}
	return buf.Bytes()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinKeys[K ~uint32](keys []K) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprint(uint32(k))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func joinIDs(ids []ir.ModuleID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
