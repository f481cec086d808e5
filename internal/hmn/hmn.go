// Package hmn implements the hierarchical memory network (spec §4.4): a
// four-level compression of a codebase (L0 raw files, L1 function/class
// entities, L2 module patterns, L3 thematic "melodic line" flows) built by
// walking the codebase once and queried by keyword-plus-persistence
// ranking. The code graph is stored in the KV store and queried in memory;
// when an ArangoDB client is given, common/arangodb/client.go's node/edge
// ingestion receives a copy, which no query here reads back. The flow
// pass is grounded on
// original_source/orchestrator/melodic_detector.py's Algorithm 3.1 for the
// PageRank-plus-component-detection flow-finding pass, reimplemented here in
// Go over internal/astparse's tree-sitter entity/call extraction instead of
// the Python prototype's regex-based scanning.
package hmn

import (
	"time"

	"github.com/arclight-labs/maker/common/arangodb"
	"github.com/arclight-labs/maker/internal/astparse"
	"github.com/arclight-labs/maker/internal/kv"
	"github.com/arclight-labs/maker/internal/model"
)

// Config tunes the ingest/detection thresholds spec §4.4 names.
type Config struct {
	// MaxFiles bounds how many source files Ingest will walk, mirroring
	// spec §4.4's "bounded by a configurable file cap".
	MaxFiles int

	// MinPatternSize is the minimum L1-node count before a file's entities
	// form an L2 pattern (default 3, spec §4.4).
	MinPatternSize int

	// PageRankDamping, PageRankTolerance and PageRankMaxIterations
	// parameterize the theme-weighted PageRank pass (spec §4.4: "damping
	// 0.85 ... 10^-6 convergence or 100 iterations").
	PageRankDamping      float64
	PageRankTolerance    float64
	PageRankMaxIterations int

	// MinComponentSize and PersistenceThreshold gate which weakly-connected
	// components become L3 flows (spec §4.4: "components with >= 2 nodes
	// and mean PageRank above a threshold").
	MinComponentSize     int
	PersistenceThreshold float64

	// CommunityMinNodes is the graph-size floor for running community
	// detection (spec §4.4: "graphs of >= 10 nodes").
	CommunityMinNodes int

	// QueryCacheSize and QueryCacheTTLSeconds bound the LRU query-result
	// memoization (spec §4.4: "results with a time-to-live are memoised by
	// (task, top_k)").
	QueryCacheSize       int
	QueryCacheTTLSeconds int
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxFiles:              5000,
		MinPatternSize:        3,
		PageRankDamping:       0.85,
		PageRankTolerance:     1e-6,
		PageRankMaxIterations: 100,
		MinComponentSize:      2,
		PersistenceThreshold:  0.2,
		CommunityMinNodes:     10,
		QueryCacheSize:        64,
		QueryCacheTTLSeconds:  300,
	}
}

// Network is the hierarchical memory network over one codebase root.
type Network struct {
	root   string
	parser *astparse.Parser
	kv     kv.Store
	arango arangodb.Client // optional: nil is a valid, fully-functional mode
	cfg    Config

	cache *queryCache

	state model.CodeGraphState
}

// New builds a Network. arango may be nil; when absent, find_callers/
// impact_analysis/query_with_context all operate purely off the in-memory
// CodeGraphState loaded from (or persisted to) the KV store, which is all
// spec §4.4 requires. When present, ingest also writes nodes/edges through
// to ArangoDB; the queries still walk the in-memory edge list.
func New(root string, parser *astparse.Parser, store kv.Store, arango arangodb.Client, cfg Config) *Network {
	return &Network{
		root:   root,
		parser: parser,
		kv:     store,
		arango: arango,
		cfg:    cfg,
		cache:  newQueryCache(cfg.QueryCacheSize, time.Duration(cfg.QueryCacheTTLSeconds)*time.Second),
	}
}
