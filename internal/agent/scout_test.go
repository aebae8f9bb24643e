package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kakaur/tensr-signal-agent/pkg/anthropic"
	"github.com/Kakaur/tensr-signal-agent/pkg/tavily"
)

// mockClient lets tests script CreateMessage responses per call.
type mockClient struct {
	calls     int
	responses []func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

func (m *mockClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if m.calls >= len(m.responses) {
		return nil, fmt.Errorf("unexpected call %d", m.calls+1)
	}
	fn := m.responses[m.calls]
	m.calls++
	return fn(req)
}

func textResponse(text string) func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return &anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		}, nil
	}
}

func signalsJSON(institutions ...string) string {
	out := "["
	for i, inst := range institutions {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"institution": %q, "signal_type": "hire", "source_url": "https://x/%d"}`, inst, i)
	}
	return out + "]"
}

func searchResults() []tavily.SearchResult {
	return []tavily.SearchResult{
		{Query: "q", Title: "t", URL: "https://x/0", Content: "Alfa hires a CTO."},
	}
}

func TestExtract_ParsesSignals(t *testing.T) {
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse(signalsJSON("Alfa", "Beta")),
	}}

	scout := NewScout(mc, "model-a", 4096, 2)
	signals, raw, err := scout.Extract(context.Background(), searchResults(), "", 1)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, "Alfa", signals[0].Institution)
	assert.Contains(t, raw, "Alfa")
	assert.Equal(t, 1, mc.calls, "no retry when minimum is met")
}

func TestExtract_ProfileGoesIntoPrompt(t *testing.T) {
	var prompt string
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			require.Len(t, req.Messages, 1)
			prompt = req.Messages[0].Content
			return textResponse(signalsJSON("Alfa"))(req)
		},
	}}

	scout := NewScout(mc, "model-a", 4096, 0)
	_, _, err := scout.Extract(context.Background(), searchResults(), `{"objective":"find pilots"}`, 1)
	require.NoError(t, err)
	assert.Contains(t, prompt, `"objective":"find pilots"`)
}

func TestExtract_RetriesBelowMinimumAndKeepsLargest(t *testing.T) {
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse(signalsJSON("Alfa")),
		textResponse(signalsJSON("Alfa", "Beta", "Gamma")),
	}}

	scout := NewScout(mc, "model-a", 4096, 2)
	signals, _, err := scout.Extract(context.Background(), searchResults(), "", 3)
	require.NoError(t, err)
	assert.Len(t, signals, 3)
	assert.Equal(t, 2, mc.calls, "stops retrying once minimum reached")
}

func TestExtract_RetryNeverShrinksBatch(t *testing.T) {
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse(signalsJSON("Alfa", "Beta")),
		textResponse(signalsJSON("Alfa")),
	}}

	scout := NewScout(mc, "model-a", 4096, 1)
	signals, _, err := scout.Extract(context.Background(), searchResults(), "", 5)
	require.NoError(t, err)
	assert.Len(t, signals, 2, "smaller retry batch is discarded")
}

func TestExtract_RetryFailureKeepsFirstBatch(t *testing.T) {
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse(signalsJSON("Alfa")),
		textResponse("sorry, I could not find more"),
	}}

	scout := NewScout(mc, "model-a", 4096, 1)
	signals, _, err := scout.Extract(context.Background(), searchResults(), "", 3)
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

func TestExtract_UnparsableFirstAttemptRetries(t *testing.T) {
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse("sorry, here is prose instead of structured output"),
		textResponse(signalsJSON("Alfa")),
	}}

	scout := NewScout(mc, "model-a", 4096, 2)
	signals, _, err := scout.Extract(context.Background(), searchResults(), "", 1)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "Alfa", signals[0].Institution)
	assert.Equal(t, 2, mc.calls, "parse failure spends a retry, not the run")
}

func TestExtract_UnparsableEveryAttemptIsError(t *testing.T) {
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse("no structured output here"),
		textResponse("still nothing usable"),
		textResponse("and nothing again"),
	}}

	scout := NewScout(mc, "model-a", 4096, 2)
	_, raw, err := scout.Extract(context.Background(), searchResults(), "", 1)
	require.Error(t, err)
	assert.Equal(t, 3, mc.calls, "retry budget is spent before giving up")
	assert.Equal(t, "no structured output here", raw, "raw text survives for diagnostics")
}

func TestExtract_UnparsableWithNoRetriesIsError(t *testing.T) {
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse("no structured output here"),
	}}

	scout := NewScout(mc, "model-a", 4096, 0)
	_, raw, err := scout.Extract(context.Background(), searchResults(), "", 1)
	require.Error(t, err)
	assert.Equal(t, "no structured output here", raw)
}

func TestNewScout_NegativeRetriesClamped(t *testing.T) {
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse(signalsJSON("Alfa")),
	}}

	scout := NewScout(mc, "model-a", 4096, -3)
	signals, _, err := scout.Extract(context.Background(), searchResults(), "", 10)
	require.NoError(t, err)
	assert.Len(t, signals, 1)
	assert.Equal(t, 1, mc.calls)
}
