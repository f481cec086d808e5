package codeservice

// CallerResult is find_callers' result.
type CallerResult struct {
	Callers    []string `json:"callers"`
	Diagnostic string   `json:"diagnostic,omitempty"`
}

// ImpactResult is impact_analysis' result.
type ImpactResult struct {
	Descendants []string `json:"descendants"`
	Diagnostic  string   `json:"diagnostic,omitempty"`
}

const noGraphDiagnostic = "no code graph has been persisted yet; run hierarchical memory ingest first"

// FindCallers implements find_callers(symbol) (spec §4.3): direct
// predecessors of symbol, same-community callers first when the graph
// carries community ids (internal/hmn's GraphReader implementation is
// responsible for that ordering).
func (s *Service) FindCallers(symbol string) CallerResult {
	if s.graph == nil {
		return CallerResult{Diagnostic: noGraphDiagnostic}
	}
	callers, ok := s.graph.Callers(symbol)
	if !ok {
		return CallerResult{Diagnostic: noGraphDiagnostic}
	}
	return CallerResult{Callers: callers}
}

// ImpactAnalysis implements impact_analysis(symbol) (spec §4.3): the full
// descendant closure under the directed call graph.
func (s *Service) ImpactAnalysis(symbol string) ImpactResult {
	if s.graph == nil {
		return ImpactResult{Diagnostic: noGraphDiagnostic}
	}
	descendants, ok := s.graph.DescendantClosure(symbol)
	if !ok {
		return ImpactResult{Diagnostic: noGraphDiagnostic}
	}
	return ImpactResult{Descendants: descendants}
}
