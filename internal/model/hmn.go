package model

// HMNLevel is one of the four compression levels of the hierarchical memory
// network (spec §3 "HMN node", §4.4).
type HMNLevel string

const (
	LevelL0Raw    HMNLevel = "L0-raw"
	LevelL1Entity HMNLevel = "L1-entity"
	LevelL2Pattern HMNLevel = "L2-pattern"
	LevelL3Flow   HMNLevel = "L3-flow"
)

// HMNNodeMetadata carries the level-dependent descriptive fields. Not every
// field is populated at every level: L0 sets File only; L1 sets File, Line,
// EntityKind, Name. L2/L3 nodes carry their name and description in
// HMNNode's own Name and Description fields instead.
type HMNNodeMetadata struct {
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	EntityKind string `json:"entity_kind,omitempty"`
	Name       string `json:"name,omitempty"`
}

// HMNNode is one node of the hierarchical memory network.
type HMNNode struct {
	ID          string          `json:"id"`
	Level       HMNLevel        `json:"level"`
	Content     string          `json:"content"`
	Metadata    HMNNodeMetadata `json:"metadata"`
	ParentIDs   []string        `json:"parent_ids,omitempty"`
	ChildIDs    []string        `json:"child_ids,omitempty"`
	AccessCount int             `json:"access_count"`

	// L2/L3 fields (module pattern, thematic flow / "melodic line"): both
	// levels set Name, Description and Modules; PersistenceScore is set only
	// on L3 flows.
	Name             string   `json:"name,omitempty"`
	Description      string   `json:"description,omitempty"`
	PersistenceScore float64  `json:"persistence_score,omitempty"`
	Modules          []string `json:"modules,omitempty"`
}

// EdgeKind distinguishes call edges from import edges in the code graph.
type EdgeKind string

const (
	EdgeCalls   EdgeKind = "calls"
	EdgeImports EdgeKind = "imports"
)

// CodeGraphEdge is one directed edge of the persisted code graph (spec §3
// "Code graph edge"). Caller is a `file::symbol` id (`file::module` for
// imports edges). A calls edge's Callee is `file::symbol` when it names an
// entity of the caller's file, and otherwise the name resolveCallee built
// (bare, qualifier-dotted, or import path plus name); the edge records no
// CalleeTag.
type CodeGraphEdge struct {
	Caller string   `json:"caller"`
	Callee string   `json:"callee"`
	Kind   EdgeKind `json:"kind"`
}

// CalleeTag marks how a callee id outside the local file was resolved.
type CalleeTag string

const (
	CalleeInternal CalleeTag = "internal"
	CalleeExternal CalleeTag = "external"
	CalleeStdlib   CalleeTag = "stdlib"
	CalleeLocal    CalleeTag = "local"
)

// CodeGraphState is the full persisted snapshot of the HMN's L0-derived call
// graph: versioned per spec §4.4 "Persistence". Persist bumps the version
// counter in an optimistic-lock transaction, retrying on conflict, and writes
// the state, v<N+1> and the latest pointer in the same retry loop, outside
// that transaction.
type CodeGraphState struct {
	Version      int                `json:"version"`
	Nodes        map[string]HMNNode `json:"nodes"`
	Edges        []CodeGraphEdge    `json:"edges"`
	Communities  map[string]int     `json:"communities,omitempty"` // node id -> community id
}

// QueryResult is query_with_context's answer (spec §4.4): the L3 flows
// matching a task description, their L2 patterns, their L1 entities, and a
// compressed subset of L0 file contents, plus the compression accounting
// that motivated serving this instead of the raw codebase.
type QueryResult struct {
	Code             string   `json:"code"`
	Narratives       []string `json:"narratives"`
	Patterns         []string `json:"patterns"`
	Entities         []string `json:"entities"`
	CompressionRatio float64  `json:"compression_ratio"`
	OriginalSize     int      `json:"original_size"`
	CompressedSize   int      `json:"compressed_size"`
}
