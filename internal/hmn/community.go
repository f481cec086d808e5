package hmn

import (
	"sort"

	"github.com/arclight-labs/maker/internal/model"
)

// detectCommunities runs greedy modularity maximisation over the call graph
// once it has at least minNodes nodes, annotating state.Communities with a
// node id -> community id mapping (spec §4.4: "community detection ... runs
// only once the graph reaches a minimum size"). Grounded on
// original_source/orchestrator/code_graph.py's build_communities, which
// defers to NetworkX's greedy_modularity_communities; reimplemented here as
// the same Clauset-Newman-Moore style pairwise-merge since no networkx
// equivalent is wired into this module.
func detectCommunities(state *model.CodeGraphState, minNodes int) {
	nodeIDs, adjacency := buildUndirectedCallGraph(state)
	if len(nodeIDs) < minNodes {
		return
	}

	communities := greedyModularityCommunities(nodeIDs, adjacency)

	state.Communities = make(map[string]int, len(state.Nodes))
	for cid, members := range communities {
		for _, id := range members {
			state.Communities[id] = cid
		}
	}
}

// greedyModularityCommunities merges the pair of communities with the
// largest positive modularity gain until no merge would improve it, per the
// Clauset-Newman-Moore algorithm.
func greedyModularityCommunities(nodeIDs []string, adjacency map[string]map[string]bool) map[int][]string {
	totalEdges := 0
	for _, neighbors := range adjacency {
		totalEdges += len(neighbors)
	}
	m2 := float64(totalEdges) // sum of degrees = 2*|E| for a simple undirected graph
	if m2 == 0 {
		communities := make(map[int][]string, len(nodeIDs))
		for i, id := range nodeIDs {
			communities[i] = []string{id}
		}
		return communities
	}

	community := make(map[string]int, len(nodeIDs))
	for i, id := range nodeIDs {
		community[id] = i
	}
	degree := make(map[string]float64, len(nodeIDs))
	for _, id := range nodeIDs {
		degree[id] = float64(len(adjacency[id]))
	}

	for {
		best := 0.0
		bestA, bestB := -1, -1

		members := membersByCommunity(community)
		ids := make([]int, 0, len(members))
		for cid := range members {
			ids = append(ids, cid)
		}
		sort.Ints(ids)

		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				a, b := ids[i], ids[j]
				eAB := crossEdges(members[a], members[b], adjacency)
				if eAB == 0 {
					continue
				}
				aA := communityDegreeShare(members[a], degree, m2)
				aB := communityDegreeShare(members[b], degree, m2)
				deltaQ := 2 * (eAB/m2 - aA*aB)
				if deltaQ > best {
					best = deltaQ
					bestA, bestB = a, b
				}
			}
		}

		if bestA == -1 {
			break
		}
		for _, id := range members[bestB] {
			community[id] = bestA
		}
	}

	result := membersByCommunity(community)
	sort.Strings(nodeIDs) // stable ordering doesn't affect result, keeps inputs tidy
	return result
}

func membersByCommunity(community map[string]int) map[int][]string {
	members := make(map[int][]string)
	for id, cid := range community {
		members[cid] = append(members[cid], id)
	}
	for cid := range members {
		sort.Strings(members[cid])
	}
	return members
}

func crossEdges(a, b []string, adjacency map[string]map[string]bool) float64 {
	count := 0.0
	bSet := make(map[string]bool, len(b))
	for _, id := range b {
		bSet[id] = true
	}
	for _, u := range a {
		for v := range adjacency[u] {
			if bSet[v] {
				count++
			}
		}
	}
	return count
}

func communityDegreeShare(members []string, degree map[string]float64, m2 float64) float64 {
	sum := 0.0
	for _, id := range members {
		sum += degree[id]
	}
	return sum / m2
}
