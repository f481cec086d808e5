package hmn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/arclight-labs/maker/common/arangodb"
	"github.com/arclight-labs/maker/internal/astparse"
	"github.com/arclight-labs/maker/internal/kv"
	"github.com/arclight-labs/maker/internal/model"
)

// excludedDirs is spec §4.4's "same exclusion set as C3": VCS dirs, build
// output, caches, virtual-env dirs, data dirs.
var excludedDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "__pycache__": true,
	"dist": true, "build": true, ".venv": true, "venv": true, "env": true,
	"data": true, "datasets": true, ".cache": true,
}

// Ingest walks the codebase, builds the L0/L1 graph with call/import edges,
// then derives L2 patterns and L3 flows, persists the result, and returns
// the built state (spec §4.4).
func (n *Network) Ingest(ctx context.Context) (model.CodeGraphState, error) {
	state := model.CodeGraphState{
		Version: 1,
		Nodes:   make(map[string]model.HMNNode),
	}

	filesSeen := 0
	err := filepath.Walk(n.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != n.root && excludedDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if filesSeen >= n.cfg.MaxFiles {
			return nil
		}

		lang := astparse.LanguageForPath(path)
		if lang == astparse.LangUnknown {
			return nil
		}
		rel, relErr := filepath.Rel(n.root, path)
		if relErr != nil {
			rel = path
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		filesSeen++

		if err := n.ingestFile(ctx, &state, lang, rel, content); err != nil {
			return fmt.Errorf("hmn: ingest %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return model.CodeGraphState{}, err
	}

	formPatterns(&state, n.cfg.MinPatternSize)
	detectMelodicLines(&state, n.cfg)
	detectCommunities(&state, n.cfg.CommunityMinNodes)

	if err := n.Persist(ctx, state); err != nil {
		return model.CodeGraphState{}, err
	}
	// Persist assigns the committed version to its own copy; read it back.
	if raw, getErr := n.kv.Get(ctx, kv.CodeGraphVersionKey); getErr == nil {
		if v, convErr := strconv.Atoi(string(raw)); convErr == nil {
			state.Version = v
		}
	}
	n.state = state

	if n.arango != nil {
		n.writeThroughArango(ctx, state)
	}
	return state, nil
}

func (n *Network) ingestFile(ctx context.Context, state *model.CodeGraphState, lang astparse.Language, rel string, content []byte) error {
	// L0: raw file node.
	state.Nodes[rel] = model.HMNNode{
		ID:      rel,
		Level:   model.LevelL0Raw,
		Content: string(content),
		Metadata: model.HMNNodeMetadata{
			File: rel,
		},
	}

	entities, err := n.parser.ParseEntities(ctx, lang, content)
	if err != nil {
		// Non-fatal: a file with a grammar but a parse error still keeps
		// its L0 node, just contributes no L1 entities.
		return nil
	}

	fileEntityNames := make(map[string]bool, len(entities))
	lines := splitLines(string(content))
	l1IDs := make([]string, 0, len(entities))

	for _, e := range entities {
		id := rel + "::" + e.Name
		fileEntityNames[e.Name] = true
		l1IDs = append(l1IDs, id)

		state.Nodes[id] = model.HMNNode{
			ID:        id,
			Level:     model.LevelL1Entity,
			Content:   joinRange(lines, e.StartLine, e.EndLine),
			Metadata:  model.HMNNodeMetadata{File: rel, Line: e.StartLine, EntityKind: string(e.Kind), Name: e.Name},
			ParentIDs: []string{rel},
		}
	}

	// imports edges: file-module node -> imported-module node.
	imports := extractImports(lang, string(content))
	moduleID := rel + "::module"
	for _, imp := range imports {
		state.Edges = append(state.Edges, model.CodeGraphEdge{Caller: moduleID, Callee: imp.path, Kind: model.EdgeImports})
	}

	// calls edges: walk call sites inside each entity's span.
	tree, parseErr := n.parser.Parse(ctx, lang, content)
	if parseErr != nil {
		return nil
	}
	defer tree.Close()

	for i, e := range entities {
		sites := n.parser.CallsInRange(lang, tree.RootNode(), content, e.StartLine, e.EndLine)
		calleeIDs := make(map[string]bool)
		for _, site := range sites {
			calleeID, _ := resolveCallee(lang, site, fileEntityNames, imports)
			if calleeID == e.Name {
				continue // skip a trivial self-edge from recursive definitions
			}
			if calleeIDs[calleeID] {
				continue
			}
			calleeIDs[calleeID] = true

			resolvedID := calleeID
			if fileEntityNames[calleeID] {
				resolvedID = rel + "::" + calleeID
			}
			state.Edges = append(state.Edges, model.CodeGraphEdge{
				Caller: l1IDs[i],
				Callee: resolvedID,
				Kind:   model.EdgeCalls,
			})
		}
	}
	return nil
}

func splitLines(content string) []string {
	var lines []string
	start := 0
	for i, c := range content {
		if c == '\n' {
			lines = append(lines, content[start:i])
			start = i + 1
		}
	}
	lines = append(lines, content[start:])
	return lines
}

func joinRange(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	out := ""
	for i := start - 1; i < end; i++ {
		if i > start-1 {
			out += "\n"
		}
		out += lines[i]
	}
	return out
}

// writeThroughArango mirrors the in-memory graph into ArangoDB (DESIGN.md's
// domain-stack enrichment); errors from the Arango calls are discarded and
// never fail the ingest, since the KV-persisted state is the spec-mandated
// source of truth.
func (n *Network) writeThroughArango(ctx context.Context, state model.CodeGraphState) {
	ids := make([]string, 0, len(state.Nodes))
	for id := range state.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodes := make([]arangodb.Node, 0, len(ids))
	for _, id := range ids {
		node := state.Nodes[id]
		nodes = append(nodes, arangodb.Node{
			QName:    id,
			Name:     node.Metadata.Name,
			Kind:     node.Metadata.EntityKind,
			Filepath: node.Metadata.File,
		})
	}
	_ = n.arango.IngestNodes(ctx, "functions", nodes)

	edges := make([]arangodb.Edge, 0, len(state.Edges))
	for _, e := range state.Edges {
		edges = append(edges, arangodb.Edge{From: e.Caller, To: e.Callee})
	}
	_ = n.arango.IngestEdges(ctx, string(model.EdgeCalls), edges)
}
