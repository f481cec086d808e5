package hmn

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-labs/maker/internal/astparse"
	"github.com/arclight-labs/maker/internal/model"
)

// memStore is a minimal in-memory kv.Store double: enough for Persist/Load
// round-trip tests, with no concurrent-writer conflict simulation.
type memStore struct {
	values map[string][]byte
}

func newMemStore() *memStore { return &memStore{values: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, errNotFound{key}
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.values[key] = value
	return nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func (m *memStore) Scan(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range m.values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memStore) Tx(ctx context.Context, key string, fn func(current []byte, found bool) ([]byte, time.Duration, error)) error {
	current, err := m.Get(ctx, key)
	found := err == nil
	next, ttl, err := fn(current, found)
	if err != nil {
		return err
	}
	return m.Set(ctx, key, next, ttl)
}

func (m *memStore) Close() error { return nil }

type errNotFound struct{ key string }

func (e errNotFound) Error() string { return "not found: " + e.key }

func newTestNetwork(t *testing.T, root string) (*Network, *memStore) {
	t.Helper()
	parser := astparse.New()
	t.Cleanup(parser.Close)

	store := newMemStore()
	return New(root, parser, store, nil, DefaultConfig()), store
}

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const sampleGoSource = `package sample

func Helper() int {
	return 1
}

func Middle() int {
	return Helper()
}

type Engine struct{}

func (e *Engine) Run() int {
	return Middle()
}
`

func TestIngest_BuildsL0L1AndCallEdges(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "sample.go", sampleGoSource)

	net, _ := newTestNetwork(t, dir)
	state, err := net.Ingest(context.Background())
	require.NoError(t, err)

	assert.Contains(t, state.Nodes, "sample.go")
	assert.Equal(t, model.LevelL0Raw, state.Nodes["sample.go"].Level)

	helperID := "sample.go::Helper"
	middleID := "sample.go::Middle"
	require.Contains(t, state.Nodes, helperID)
	require.Contains(t, state.Nodes, middleID)
	assert.Equal(t, model.LevelL1Entity, state.Nodes[middleID].Level)

	foundCall := false
	for _, e := range state.Edges {
		if e.Kind == model.EdgeCalls && e.Caller == middleID && e.Callee == helperID {
			foundCall = true
		}
	}
	assert.True(t, foundCall, "expected Middle -> Helper call edge, got %+v", state.Edges)
}

func TestFormPatterns_GroupsFileEntitiesAboveMinSize(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "sample.go", sampleGoSource)

	cfg := DefaultConfig()
	cfg.MinPatternSize = 3
	parser := astparse.New()
	defer parser.Close()
	net := New(dir, parser, newMemStore(), nil, cfg)

	state, err := net.Ingest(context.Background())
	require.NoError(t, err)

	patternID := "pattern::sample.go"
	require.Contains(t, state.Nodes, patternID)
	pattern := state.Nodes[patternID]
	assert.Equal(t, model.LevelL2Pattern, pattern.Level)
	// Helper, Middle, the Engine struct, and Engine.Run.
	assert.Len(t, pattern.ChildIDs, 4)
}

func TestPersistAndLoad_RoundTripsState(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "sample.go", sampleGoSource)

	net, store := newTestNetwork(t, dir)
	ctx := context.Background()

	state, err := net.Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Version)

	require.NotEmpty(t, store.values[versionKeyForTest()])

	loaded, err := net.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.Version, loaded.Version)
	assert.Equal(t, len(state.Nodes), len(loaded.Nodes))

	// A second ingest bumps the version, exercising the optimistic-lock
	// read-current/write-next path.
	state2, err := net.Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state2.Version)
}

func versionKeyForTest() string { return "code_graph:version" }

func TestQueryWithContext_RanksFlowsAndCachesByTaskAndTopK(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "sample.go", sampleGoSource)
	writeSource(t, dir, "other.go", `package sample

func Unrelated() int { return 42 }
`)

	net, _ := newTestNetwork(t, dir)
	_, err := net.Ingest(context.Background())
	require.NoError(t, err)

	result := net.QueryWithContext("engine run helper", 3)
	assert.LessOrEqual(t, len(result.Entities), 20)

	cached := net.QueryWithContext("engine run helper", 3)
	assert.Equal(t, result, cached)
}

func TestCallers_ReturnsDirectPredecessors(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "sample.go", sampleGoSource)

	net, _ := newTestNetwork(t, dir)
	_, err := net.Ingest(context.Background())
	require.NoError(t, err)

	callers, ok := net.Callers("Helper")
	require.True(t, ok)
	assert.Contains(t, callers, "sample.go::Middle")
}

func TestDescendantClosure_FollowsCallsTransitively(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "sample.go", sampleGoSource)

	net, _ := newTestNetwork(t, dir)
	_, err := net.Ingest(context.Background())
	require.NoError(t, err)

	descendants, ok := net.DescendantClosure("Helper")
	require.True(t, ok)
	assert.Empty(t, descendants, "Helper calls nothing else")

	descendants, ok = net.DescendantClosure("Engine.Run")
	require.True(t, ok)
	assert.Contains(t, descendants, "sample.go::Middle")
	assert.Contains(t, descendants, "sample.go::Helper")
}

func TestDetectCommunities_SkipsBelowMinNodes(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "sample.go", sampleGoSource)

	net, _ := newTestNetwork(t, dir)
	state, err := net.Ingest(context.Background())
	require.NoError(t, err)

	assert.Nil(t, state.Communities, "graph has far fewer than CommunityMinNodes entities")
}
