package contextcompressor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-labs/maker/internal/model"
)

type stubSummarizer struct {
	fail bool
	got  [][]model.ConversationMessage
}

func (s *stubSummarizer) Summarize(_ context.Context, messages []model.ConversationMessage, _ string) (string, error) {
	s.got = append(s.got, messages)
	if s.fail {
		return "", assert.AnError
	}
	return "summary of " + string(rune(len(messages)+'0')) + " messages", nil
}

func newFilledCompressor(t *testing.T, cfg Config, summarizer Summarizer, n int) *Compressor {
	t.Helper()
	c := New("sess-1", cfg, summarizer)
	for i := 0; i < n; i++ {
		c.AddMessage(model.RoleUser, strings.Repeat("x", 40), time.Unix(int64(i), 0))
	}
	return c
}

func TestCompressIfNeeded_NoOpUnderBudget(t *testing.T) {
	cfg := Config{MaxContext: 10_000, RecentWindow: 5_000, SummaryChunkSize: 5}
	c := newFilledCompressor(t, cfg, &stubSummarizer{}, 3)

	ran, err := c.CompressIfNeeded(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Empty(t, c.compressedPrefix)
}

func TestCompressIfNeeded_SummarizesOlderMessages(t *testing.T) {
	cfg := Config{MaxContext: 20, RecentWindow: 10, SummaryChunkSize: 4}
	summarizer := &stubSummarizer{}
	c := newFilledCompressor(t, cfg, summarizer, 20)

	ran, err := c.CompressIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.NotEmpty(t, c.compressedPrefix)
	assert.NotEmpty(t, summarizer.got)

	stats := c.Stats()
	assert.LessOrEqual(t, stats.RecentTokens, cfg.RecentWindow+10) // 10 is one message's tokens margin
}

func TestCompressIfNeeded_FallsBackToTruncationOnSummarizeFailure(t *testing.T) {
	cfg := Config{MaxContext: 20, RecentWindow: 10, SummaryChunkSize: 4}
	summarizer := &stubSummarizer{fail: true}
	c := newFilledCompressor(t, cfg, summarizer, 20)

	ran, err := c.CompressIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.NotEmpty(t, c.compressedPrefix)
}

func TestGetContext_RecentTokensNeverExceedWindowAfterCall(t *testing.T) {
	cfg := Config{MaxContext: 20, RecentWindow: 10, SummaryChunkSize: 4}
	c := newFilledCompressor(t, cfg, &stubSummarizer{}, 50)

	_, err := c.GetContext(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, c.Stats().RecentTokens, cfg.RecentWindow+10)
}

func TestToStateFromState_RoundTrip(t *testing.T) {
	cfg := Config{MaxContext: 1000, RecentWindow: 500, SummaryChunkSize: 4}
	c := newFilledCompressor(t, cfg, &stubSummarizer{}, 5)
	c.SetCustomDirective("keep it terse")

	state := c.ToState()
	restored := FromState(state, cfg, &stubSummarizer{})

	assert.Equal(t, c.sessionID, restored.sessionID)
	assert.Equal(t, c.recent, restored.recent)
	assert.Equal(t, c.compressedPrefix, restored.compressedPrefix)
	assert.Equal(t, c.customDirective, restored.customDirective)
}
