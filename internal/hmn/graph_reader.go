package hmn

import (
	"sort"
	"strings"

	"github.com/arclight-labs/maker/internal/model"
)

// Callers implements codeservice.GraphReader: direct predecessors of symbol
// in the call graph, same-community callers surfaced first when community
// ids have been computed. Grounded on code_graph.py's find_callers_fast:
// exact node-id match if symbol already looks qualified (contains "::"),
// otherwise any node whose id ends in "::symbol".
func (n *Network) Callers(symbol string) ([]string, bool) {
	if len(n.state.Nodes) == 0 {
		return nil, false
	}

	targets := matchingNodeIDs(n.state, symbol)
	if len(targets) == 0 {
		return nil, true
	}

	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}

	callerSet := make(map[string]bool)
	for _, e := range n.state.Edges {
		if e.Kind == model.EdgeCalls && targetSet[e.Callee] {
			callerSet[e.Caller] = true
		}
	}

	callers := make([]string, 0, len(callerSet))
	for c := range callerSet {
		callers = append(callers, c)
	}

	if len(n.state.Communities) == 0 {
		sort.Strings(callers)
		return callers, true
	}

	targetCommunity, hasCommunity := -1, false
	for _, t := range targets {
		if cid, ok := n.state.Communities[t]; ok {
			targetCommunity, hasCommunity = cid, true
			break
		}
	}

	var sameCommunity, other []string
	for _, c := range callers {
		if hasCommunity && n.state.Communities[c] == targetCommunity {
			sameCommunity = append(sameCommunity, c)
		} else {
			other = append(other, c)
		}
	}
	sort.Strings(sameCommunity)
	sort.Strings(other)
	return append(sameCommunity, other...), true
}

// DescendantClosure implements codeservice.GraphReader: every symbol
// reachable from symbol by following "calls" edges forward, matching
// code_graph.py's impact_analysis (substring match against node ids, union
// of nx.descendants over every match).
func (n *Network) DescendantClosure(symbol string) ([]string, bool) {
	if len(n.state.Nodes) == 0 {
		return nil, false
	}

	roots := matchingNodeIDsSubstring(n.state, symbol)
	if len(roots) == 0 {
		return nil, true
	}

	adjacency := make(map[string][]string)
	for _, e := range n.state.Edges {
		if e.Kind == model.EdgeCalls {
			adjacency[e.Caller] = append(adjacency[e.Caller], e.Callee)
		}
	}

	visited := make(map[string]bool)
	var queue []string
	for _, r := range roots {
		if !visited[r] {
			visited[r] = true
			queue = append(queue, r)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, r := range roots {
		delete(visited, r)
	}

	descendants := make([]string, 0, len(visited))
	for id := range visited {
		descendants = append(descendants, id)
	}
	sort.Strings(descendants)
	return descendants, true
}

// matchingNodeIDs resolves a symbol to node ids for find_callers-style
// lookup: an exact id match if symbol is already qualified, else every id
// ending in "::symbol".
func matchingNodeIDs(state model.CodeGraphState, symbol string) []string {
	if strings.Contains(symbol, "::") {
		if _, ok := state.Nodes[symbol]; ok {
			return []string{symbol}
		}
		return nil
	}

	suffix := "::" + symbol
	var matches []string
	for id := range state.Nodes {
		if strings.HasSuffix(id, suffix) {
			matches = append(matches, id)
		}
	}
	sort.Strings(matches)
	return matches
}

// matchingNodeIDsSubstring resolves a symbol for impact_analysis-style
// lookup, matching code_graph.py's looser "symbol appears anywhere in the
// node id" rule.
func matchingNodeIDsSubstring(state model.CodeGraphState, symbol string) []string {
	var matches []string
	for id := range state.Nodes {
		if strings.Contains(id, symbol) {
			matches = append(matches, id)
		}
	}
	sort.Strings(matches)
	return matches
}
