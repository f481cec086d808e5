package hmn

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/arclight-labs/maker/internal/model"
)

// detectMelodicLines implements spec §4.4's L3 "melodic line" pass: a
// theme-weighted PageRank over the undirected call graph, followed by
// weakly-connected-component extraction and per-component persistence
// scoring. Grounded on
// original_source/orchestrator/melodic_detector.py's Algorithm 3.1.
func detectMelodicLines(state *model.CodeGraphState, cfg Config) {
	nodeIDs, adjacency := buildUndirectedCallGraph(state)
	if len(nodeIDs) == 0 {
		return
	}

	rank := themeWeightedPageRank(nodeIDs, adjacency, state, cfg)
	components := weaklyConnectedComponents(nodeIDs, adjacency)

	for _, comp := range components {
		if len(comp) < cfg.MinComponentSize {
			continue
		}
		meanRank := 0.0
		for _, id := range comp {
			meanRank += rank[id]
		}
		meanRank /= float64(len(comp))
		if meanRank <= cfg.PersistenceThreshold {
			continue
		}

		emitFlow(state, comp, adjacency, cfg)
	}
}

// buildUndirectedCallGraph restricts the directed "calls" edges to pairs of
// L1 entity nodes (the graph melodic detection operates over, per spec
// §4.4 "Build a global call graph (undirected for detection)") and
// symmetrizes them.
func buildUndirectedCallGraph(state *model.CodeGraphState) ([]string, map[string]map[string]bool) {
	isL1 := func(id string) bool {
		n, ok := state.Nodes[id]
		return ok && n.Level == model.LevelL1Entity
	}

	adjacency := make(map[string]map[string]bool)
	nodeSet := make(map[string]bool)

	for _, e := range state.Edges {
		if e.Kind != model.EdgeCalls || !isL1(e.Caller) || !isL1(e.Callee) {
			continue
		}
		nodeSet[e.Caller] = true
		nodeSet[e.Callee] = true
		if adjacency[e.Caller] == nil {
			adjacency[e.Caller] = make(map[string]bool)
		}
		if adjacency[e.Callee] == nil {
			adjacency[e.Callee] = make(map[string]bool)
		}
		adjacency[e.Caller][e.Callee] = true
		adjacency[e.Callee][e.Caller] = true
	}

	ids := make([]string, 0, len(nodeSet))
	for id := range nodeSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, adjacency
}

var tokenSplit = regexp.MustCompile(`[A-Z]?[a-z0-9]+|[A-Z]+(?:[a-z0-9]*|$)`)

// tokenize splits a CamelCase/snake_case/dotted identifier into lowercase
// word tokens for the Jaccard thematic-weight comparison.
func tokenize(name string) map[string]bool {
	cleaned := strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(name)
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(cleaned) {
		for _, part := range tokenSplit.FindAllString(word, -1) {
			tokens[strings.ToLower(part)] = true
		}
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// themeWeight is spec §4.4's thematic-weight(u,v): Jaccard overlap of
// tokenised names, boosted 1.5x if same module (file), clamped to 1.
func themeWeight(state *model.CodeGraphState, u, v string) float64 {
	nu, nv := state.Nodes[u], state.Nodes[v]
	w := jaccard(tokenize(nu.Metadata.Name), tokenize(nv.Metadata.Name))
	if nu.Metadata.File != "" && nu.Metadata.File == nv.Metadata.File {
		w *= 1.5
	}
	if w > 1 {
		w = 1
	}
	return w
}

// themeWeightedPageRank implements spec §4.4's PageRank variant: transition
// probability between neighbours scaled by themeWeight, normalised by
// theme-weighted out-degree, damping 0.85, converging at 10^-6 or 100
// iterations.
func themeWeightedPageRank(nodeIDs []string, adjacency map[string]map[string]bool, state *model.CodeGraphState, cfg Config) map[string]float64 {
	n := len(nodeIDs)
	rank := make(map[string]float64, n)
	for _, id := range nodeIDs {
		rank[id] = 1.0 / float64(n)
	}

	weight := make(map[string]map[string]float64, n)
	outWeight := make(map[string]float64, n)
	for _, u := range nodeIDs {
		weight[u] = make(map[string]float64)
		for v := range adjacency[u] {
			w := themeWeight(state, u, v)
			weight[u][v] = w
			outWeight[u] += w
		}
	}

	damping := cfg.PageRankDamping
	base := (1 - damping) / float64(n)

	for iter := 0; iter < cfg.PageRankMaxIterations; iter++ {
		next := make(map[string]float64, n)
		for _, id := range nodeIDs {
			next[id] = base
		}
		for _, u := range nodeIDs {
			if outWeight[u] == 0 {
				continue
			}
			share := rank[u] / outWeight[u]
			for v, w := range weight[u] {
				next[v] += damping * share * w
			}
		}

		delta := 0.0
		for _, id := range nodeIDs {
			delta += math.Abs(next[id] - rank[id])
		}
		rank = next
		if delta < cfg.PageRankTolerance {
			break
		}
	}
	return rank
}

// weaklyConnectedComponents groups nodes reachable from each other ignoring
// edge direction (the adjacency map is already symmetrized).
func weaklyConnectedComponents(nodeIDs []string, adjacency map[string]map[string]bool) [][]string {
	visited := make(map[string]bool, len(nodeIDs))
	var components [][]string

	for _, start := range nodeIDs {
		if visited[start] {
			continue
		}
		var comp []string
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			neighbors := make([]string, 0, len(adjacency[cur]))
			for v := range adjacency[cur] {
				neighbors = append(neighbors, v)
			}
			sort.Strings(neighbors)
			for _, v := range neighbors {
				if !visited[v] {
					visited[v] = true
					queue = append(queue, v)
				}
			}
		}
		sort.Strings(comp)
		components = append(components, comp)
	}
	return components
}

// emitFlow builds one L3 node from a persistent component, per spec §4.4:
// "persistence_score = internal_edge_ratio + small boosts for module count
// and pattern count, clamped to [0,1]; name it from the longest common
// directory or dominant pattern; describe it from its top patterns."
func emitFlow(state *model.CodeGraphState, comp []string, adjacency map[string]map[string]bool, cfg Config) {
	moduleSet := make(map[string]bool)
	patternSet := make(map[string]bool)
	compSet := make(map[string]bool, len(comp))
	for _, id := range comp {
		compSet[id] = true
		node := state.Nodes[id]
		if node.Metadata.File != "" {
			moduleSet[node.Metadata.File] = true
		}
		for _, parent := range node.ParentIDs {
			if strings.HasPrefix(parent, "pattern::") {
				patternSet[parent] = true
			}
		}
	}

	internalEdges, totalEdges := 0, 0
	for _, id := range comp {
		for v := range adjacency[id] {
			totalEdges++
			if compSet[v] {
				internalEdges++
			}
		}
	}
	internalRatio := 0.0
	if totalEdges > 0 {
		internalRatio = float64(internalEdges) / float64(totalEdges)
	}

	score := internalRatio + 0.05*float64(len(moduleSet)) + 0.05*float64(len(patternSet))
	if score > 1 {
		score = 1
	}

	modules := make([]string, 0, len(moduleSet))
	for m := range moduleSet {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	patterns := make([]string, 0, len(patternSet))
	for p := range patternSet {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	name := longestCommonDir(modules)
	if name == "" && len(patterns) > 0 {
		name = strings.TrimPrefix(patterns[0], "pattern::")
	}
	if name == "" {
		name = fmt.Sprintf("flow-%d", len(state.Nodes))
	}

	description := "Flow spanning " + strings.Join(modules, ", ")
	if len(patterns) > 0 {
		description = "Flow built on patterns: " + strings.Join(patterns, ", ")
	}

	flowID := "flow::" + name
	state.Nodes[flowID] = model.HMNNode{
		ID:               flowID,
		Level:            model.LevelL3Flow,
		Name:             name,
		Description:      description,
		PersistenceScore: score,
		Modules:          modules,
		ChildIDs:         append(append([]string{}, comp...), patterns...),
	}
}

func longestCommonDir(files []string) string {
	if len(files) == 0 {
		return ""
	}
	common := strings.Split(filepath.Dir(files[0]), string(filepath.Separator))
	for _, f := range files[1:] {
		parts := strings.Split(filepath.Dir(f), string(filepath.Separator))
		common = commonPrefix(common, parts)
		if len(common) == 0 {
			return ""
		}
	}
	return strings.Join(common, string(filepath.Separator))
}

func commonPrefix(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
