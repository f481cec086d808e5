package hmn

import (
	"sort"
	"strings"

	"github.com/arclight-labs/maker/internal/model"
)

const flowRelevanceFloor = 0.1

// QueryWithContext implements spec §4.4's query_with_context: rank L3 flows
// by keyword overlap plus weighted persistence, keep the top_k above a
// relevance floor, collect their L2 patterns and L1 entities, materialize a
// bounded number of L0 files, and report how much smaller that is than the
// full codebase. Results are memoised by (task, top_k).
func (n *Network) QueryWithContext(task string, topK int) model.QueryResult {
	if topK <= 0 {
		topK = 5
	}
	if cached, ok := n.cache.get(task, topK); ok {
		return cached
	}

	taskTokens := tokenize(task)

	type scoredFlow struct {
		node  model.HMNNode
		score float64
	}
	var flows []scoredFlow
	for _, node := range n.state.Nodes {
		if node.Level != model.LevelL3Flow {
			continue
		}
		overlap := jaccard(taskTokens, tokenize(node.Name+" "+node.Description))
		score := overlap + 0.5*node.PersistenceScore
		if score <= flowRelevanceFloor {
			continue
		}
		flows = append(flows, scoredFlow{node: node, score: score})
	}
	sort.Slice(flows, func(i, j int) bool {
		if flows[i].score != flows[j].score {
			return flows[i].score > flows[j].score
		}
		return flows[i].node.ID < flows[j].node.ID
	})
	if len(flows) > topK {
		flows = flows[:topK]
	}

	patternSet := make(map[string]bool)
	entitySet := make(map[string]bool)
	var narratives []string
	for _, f := range flows {
		narratives = append(narratives, f.node.Description)
		for _, child := range f.node.ChildIDs {
			if strings.HasPrefix(child, "pattern::") {
				patternSet[child] = true
			} else if node, ok := n.state.Nodes[child]; ok && node.Level == model.LevelL1Entity {
				entitySet[child] = true
			}
		}
	}

	patterns := sortedKeys(patternSet)
	for _, patternID := range patterns {
		for _, childID := range n.state.Nodes[patternID].ChildIDs {
			entitySet[childID] = true
		}
	}
	entities := sortedKeys(entitySet)

	files := make(map[string]bool)
	for _, id := range entities {
		if f := n.state.Nodes[id].Metadata.File; f != "" {
			files[f] = true
		}
	}
	fileList := sortedKeys(files)
	const maxMaterializedFiles = 20
	if len(fileList) > maxMaterializedFiles {
		fileList = fileList[:maxMaterializedFiles]
	}

	var codeBuilder strings.Builder
	originalSize := 0
	for _, f := range fileList {
		node, ok := n.state.Nodes[f]
		if !ok {
			continue
		}
		originalSize += len(node.Content)
		codeBuilder.WriteString(node.Content)
		codeBuilder.WriteString("\n")
	}

	patternText := strings.Join(patterns, "\n")
	entityText := make([]string, 0, len(entities))
	for _, id := range entities {
		entityText = append(entityText, n.state.Nodes[id].Content)
	}
	compressed := strings.Join(entityText, "\n") + "\n" + patternText + "\n" + strings.Join(narratives, "\n")

	result := model.QueryResult{
		Code:           codeBuilder.String(),
		Narratives:     narratives,
		Patterns:       patterns,
		Entities:       entities,
		OriginalSize:   originalSize,
		CompressedSize: len(compressed),
	}
	if originalSize > 0 {
		result.CompressionRatio = float64(result.CompressedSize) / float64(originalSize)
	}

	n.cache.put(task, topK, result)
	return result
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
