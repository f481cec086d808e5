package maker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-labs/maker/common/llm"
	"github.com/arclight-labs/maker/internal/llmclient"
)

// stubAgentClient is a minimal llm.AgentClient for testing the Registry's
// dispatch without a real provider.
type stubAgentClient struct {
	mu        sync.Mutex
	responder func(callIndex int, req llm.AgentRequest) (*llm.AgentResponse, error)
	calls     int32
}

func (s *stubAgentClient) ChatWithTools(_ context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
	idx := int(atomic.AddInt32(&s.calls, 1)) - 1
	return s.responder(idx, req)
}

func newRegistry(coder, voter *stubAgentClient) *llmclient.Registry {
	return llmclient.NewRegistry(map[llmclient.Role]llmclient.EndpointConfig{
		llmclient.RoleCoder: {Client: coder, SemaphoreSize: 4},
		llmclient.RoleVoter: {Client: voter, SemaphoreSize: 4},
	})
}

func TestGenerateCandidates_DropsErrors(t *testing.T) {
	coder := &stubAgentClient{
		responder: func(idx int, req llm.AgentRequest) (*llm.AgentResponse, error) {
			if idx == 1 {
				return nil, errors.New("boom")
			}
			return &llm.AgentResponse{Content: fmt.Sprintf("candidate-%d", idx)}, nil
		},
	}
	engine := New(newRegistry(coder, &stubAgentClient{}))

	candidates := engine.GenerateCandidates(context.Background(), "sys", "user", 3)
	assert.Len(t, candidates, 2)
}

func TestGenerateCandidates_ZeroN(t *testing.T) {
	engine := New(newRegistry(&stubAgentClient{}, &stubAgentClient{}))
	candidates := engine.GenerateCandidates(context.Background(), "sys", "user", 0)
	assert.Empty(t, candidates)
}

func TestVote_ZeroCandidates(t *testing.T) {
	engine := New(newRegistry(&stubAgentClient{}, &stubAgentClient{}))
	result := engine.Vote(context.Background(), nil, "sys", "user", 2)
	assert.Empty(t, result.Winner)
}

func TestVote_SingleCandidateShortCircuits(t *testing.T) {
	engine := New(newRegistry(&stubAgentClient{}, &stubAgentClient{}))
	result := engine.Vote(context.Background(), []string{"only-one"}, "sys", "user", 2)
	assert.Equal(t, "only-one", result.Winner)
}

func TestVote_FirstToReachQuorumWins(t *testing.T) {
	voter := &stubAgentClient{
		responder: func(idx int, req llm.AgentRequest) (*llm.AgentResponse, error) {
			// 2k-1 = 3 voters for k=2; make all vote "B".
			return &llm.AgentResponse{Content: "B is clearly the best."}, nil
		},
	}
	engine := New(newRegistry(&stubAgentClient{}, voter))

	result := engine.Vote(context.Background(), []string{"cand-A", "cand-B"}, "sys", "user", 2)
	assert.Equal(t, "cand-B", result.Winner)
	assert.GreaterOrEqual(t, result.Tally["B"], 2)
}

func TestVote_TieBreaksByLabelOrder(t *testing.T) {
	var n int32
	voter := &stubAgentClient{
		responder: func(idx int, req llm.AgentRequest) (*llm.AgentResponse, error) {
			switch atomic.AddInt32(&n, 1) {
			case 1:
				return &llm.AgentResponse{Content: "A"}, nil
			case 2:
				return &llm.AgentResponse{Content: "B"}, nil
			}
			return &llm.AgentResponse{Content: "no preference"}, nil
		},
	}
	// k=2 -> 2k-1=3 voters: one votes A, one votes B, one names no label.
	// Neither label reaches 2 votes, so the winner falls to VoteTally's
	// tie-break, which prefers the earlier label.
	engine := New(newRegistry(&stubAgentClient{}, voter))
	result := engine.Vote(context.Background(), []string{"cand-A", "cand-B", "cand-C"}, "sys", "user", 2)
	require.NotEmpty(t, result.Winner)
	assert.Equal(t, "cand-A", result.Winner)
	assert.Equal(t, 1, result.Tally["B"])
}

func TestFirstCapitalLetterInSet(t *testing.T) {
	labels := []string{"A", "B", "C"}
	assert.Equal(t, "B", firstCapitalLetterInSet("I think candidate B is best because...", labels))
	assert.Equal(t, "", firstCapitalLetterInSet("no capital letters from the set here: xyz", labels))
}

func TestLabelFor(t *testing.T) {
	assert.Equal(t, "A", labelFor(0))
	assert.Equal(t, "Z", labelFor(25))
	assert.Equal(t, "AA", labelFor(26))
}
