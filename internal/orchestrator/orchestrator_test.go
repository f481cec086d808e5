package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-labs/maker/common/llm"
	"github.com/arclight-labs/maker/internal/llmclient"
	"github.com/arclight-labs/maker/internal/maker"
	"github.com/arclight-labs/maker/internal/model"
)

// memStore is a minimal in-memory kv.Store double, enough to exercise
// task/session/clarification persistence without a real Redis.
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
		if strings.HasPrefix(k, prefix) {
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

// fakeAgentClient responds based on a system-prompt-prefix match, letting
// one client stand in for every role a test needs.
type fakeAgentClient struct {
	responses []fakeResponse
}

type fakeResponse struct {
	systemContains string
	content        string
}

func (f *fakeAgentClient) ChatWithTools(_ context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
	system := ""
	if len(req.Messages) > 0 {
		system = req.Messages[0].Content
	}
	for _, r := range f.responses {
		if strings.Contains(system, r.systemContains) {
			return &llm.AgentResponse{Content: r.content}, nil
		}
	}
	return &llm.AgentResponse{Content: ""}, nil
}

func (f *fakeAgentClient) Model() string { return "fake" }

func newTestRegistry(client llm.AgentClient) *llmclient.Registry {
	cfg := llmclient.EndpointConfig{Client: client}
	return llmclient.NewRegistry(map[llmclient.Role]llmclient.EndpointConfig{
		llmclient.RolePreprocessor: cfg,
		llmclient.RolePlanner:      cfg,
		llmclient.RoleCoder:        cfg,
		llmclient.RoleReviewer:     cfg,
		llmclient.RoleVoter:        cfg,
	})
}

func drainEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for e := range events {
		out = append(out, e)
	}
	return out
}

func TestRun_SimpleCodeClassification_CompletesDirectly(t *testing.T) {
	client := &fakeAgentClient{responses: []fakeResponse{
		{systemContains: "triage incoming requests", content: "SIMPLE_CODE"},
		{systemContains: "Write the minimal code change", content: "package main\n\nfunc Fixed() {}\n"},
	}}
	registry := newTestRegistry(client)
	store := newMemStore()

	o := New(DefaultConfig(), Deps{
		KV:     store,
		Agents: registry,
		Maker:  maker.New(registry),
	})

	events, err := o.Run(context.Background(), RunRequest{Input: "fix the off-by-one bug in the parser"})
	require.NoError(t, err)

	collected := drainEvents(t, events)
	require.NotEmpty(t, collected)

	last := collected[len(collected)-1]
	require.NotNil(t, last.Task)
	assert.Equal(t, model.TaskStatusComplete, last.Task.Status)
	assert.Equal(t, model.ReviewVerdictApproved, last.Task.ReviewVerdict)
	assert.Contains(t, last.Task.LatestCode, "Fixed")
}

func TestRun_AmbiguousShortInput_PausesForClarification(t *testing.T) {
	client := &fakeAgentClient{}
	registry := newTestRegistry(client)
	store := newMemStore()

	o := New(DefaultConfig(), Deps{KV: store, Agents: registry, Maker: maker.New(registry)})

	events, err := o.Run(context.Background(), RunRequest{Input: "check"})
	require.NoError(t, err)

	collected := drainEvents(t, events)
	require.NotEmpty(t, collected)

	found := false
	var taskID string
	for _, e := range collected {
		if e.Type == EventClarification {
			found = true
			taskID = e.Task.ID
		}
	}
	assert.True(t, found, "expected a clarification event")
	require.NotEmpty(t, taskID)

	raw, err := store.Get(context.Background(), "clarification:"+taskID)
	require.NoError(t, err)
	var clar model.Clarification
	require.NoError(t, json.Unmarshal(raw, &clar))
	assert.NotEmpty(t, clar.Questions)
}

func TestRuleBasedClassification(t *testing.T) {
	assert.Equal(t, model.ClassificationQuestion, ruleBasedClassification("What does this function do?"))
	assert.Equal(t, model.ClassificationSimpleCode, ruleBasedClassification("fix the null check in parse_config"))
	assert.Equal(t, model.ClassificationComplexCode, ruleBasedClassification(
		"Refactor the billing module to support multiple currencies and then update all call sites and then add tests and then update docs."))
}

func TestParseReviewVerdict_FallsBackToTextualMarkers(t *testing.T) {
	v := parseReviewVerdict("Looks good, approved, ship it.")
	assert.Equal(t, string(model.ReviewVerdictApproved), v.Status)

	v = parseReviewVerdict(`{"status":"failed","feedback":"missing error handling"}`)
	assert.Equal(t, string(model.ReviewVerdictFailed), v.Status)
	assert.Equal(t, "missing error handling", v.Feedback)
}

func TestIsAmbiguousShort(t *testing.T) {
	assert.True(t, isAmbiguousShort("help"))
	assert.True(t, isAmbiguousShort("check?"))
	assert.False(t, isAmbiguousShort("check the retry logic in the consumer"))
}
