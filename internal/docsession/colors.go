package docsession

import "hash/fnv"

// palette is the fixed editor color table. Color assignment hashes the
// agent ID, so an agent keeps its color across reconnects.
var palette = [8]string{
	"#e06c75",
	"#61afef",
	"#98c379",
	"#e5c07b",
	"#c678dd",
	"#56b6c2",
	"#d19a66",
	"#abb2bf",
}

// ColorFor returns the deterministic editor color for an agent ID.
func ColorFor(agentID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agentID))
	return palette[h.Sum32()%uint32(len(palette))]
}
