package hmn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arclight-labs/maker/internal/model"
)

// formPatterns groups each file's L1 nodes into one L2 "module pattern"
// node once the file has at least minSize L1 entities (spec §4.4: "patterns
// (L2) are formed by grouping the L1 nodes of the same file whose count
// reaches a minimum (default 3)").
func formPatterns(state *model.CodeGraphState, minSize int) {
	byFile := make(map[string][]string)
	for id, node := range state.Nodes {
		if node.Level != model.LevelL1Entity {
			continue
		}
		byFile[node.Metadata.File] = append(byFile[node.Metadata.File], id)
	}

	for file, ids := range byFile {
		if len(ids) < minSize {
			continue
		}
		sort.Strings(ids)

		names := make([]string, 0, len(ids))
		for _, id := range ids {
			names = append(names, state.Nodes[id].Metadata.Name)
		}

		patternID := "pattern::" + file
		state.Nodes[patternID] = model.HMNNode{
			ID:          patternID,
			Level:       model.LevelL2Pattern,
			Content:     strings.Join(names, ", "),
			Name:        file,
			Description: fmt.Sprintf("Module pattern for %s: %d entities (%s)", file, len(ids), strings.Join(names, ", ")),
			ChildIDs:    ids,
			Modules:     []string{file},
		}

		for _, id := range ids {
			n := state.Nodes[id]
			n.ParentIDs = append(n.ParentIDs, patternID)
			state.Nodes[id] = n
		}
	}
}
