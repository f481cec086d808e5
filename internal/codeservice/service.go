// Package codeservice implements the code service (spec §4.3): the set of
// read-only and subprocess tools an agent uses to explore a codebase. It is
// grounded on internal/brain/explore_tools.go's ExploreTools (the teacher's
// glob/grep/read/bash/codegraph tool surface), generalized from a fixed
// GitLab-repo-exploration tool set to the spec's named operations, and
// reusing the teacher's path-containment and bounded-output idioms.
package codeservice

import (
	"github.com/arclight-labs/maker/internal/astparse"
	"github.com/arclight-labs/maker/internal/worker"
)

// GraphReader is the read-only slice of the hierarchical memory network's
// persisted code graph that find_callers and impact_analysis need. It is
// defined here rather than depended on directly from internal/hmn so the
// code service and the HMN package don't import each other; internal/hmn
// implements it.
type GraphReader interface {
	// Callers returns the direct predecessors of symbol in the call graph,
	// same-community callers first if community ids are available. ok is
	// false if no graph has been persisted yet.
	Callers(symbol string) (callers []string, ok bool)

	// DescendantClosure returns every symbol reachable from symbol by
	// following call edges forward (spec §4.3 impact_analysis: "the full
	// descendant closure under the directed call graph").
	DescendantClosure(symbol string) (descendants []string, ok bool)
}

// Service implements every spec §4.3 operation against one codebase root.
type Service struct {
	root   string
	parser *astparse.Parser
	runner worker.CommandRunner
	graph  GraphReader
}

// New builds a Service rooted at root. graph may be nil until the
// hierarchical memory network has ingested the codebase at least once; in
// that case find_callers/impact_analysis report the absent-graph diagnostic
// spec §4.3 requires.
func New(root string, parser *astparse.Parser, runner worker.CommandRunner, graph GraphReader) *Service {
	return &Service{root: root, parser: parser, runner: runner, graph: graph}
}

// SetGraph attaches (or replaces) the graph reader once HMN ingest has run,
// without requiring callers to reconstruct the Service.
func (s *Service) SetGraph(graph GraphReader) {
	s.graph = graph
}
