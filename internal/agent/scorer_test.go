package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
	"github.com/Kakaur/tensr-signal-agent/pkg/anthropic"
)

func batch(n int) []model.Signal {
	out := make([]model.Signal, n)
	for i := range out {
		out[i] = model.Signal{
			Institution: string(rune('A' + i)),
			SignalType:  "hire",
			SourceURL:   "https://x/" + string(rune('a'+i)),
		}
	}
	return out
}

// classifiedJSON echoes the chunk back with enriched categorical fields.
func classifiedJSON(t *testing.T, chunk []model.Signal) string {
	t.Helper()
	out := make([]model.Signal, len(chunk))
	copy(out, chunk)
	for i := range out {
		out[i].InstitutionType = "mid-tier bank"
		out[i].Seniority = "vp"
		out[i].Domain = "digital_assets"
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	return string(data)
}

func TestClassify_EnrichesFields(t *testing.T) {
	signals := batch(2)
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse(classifiedJSON(t, signals)),
	}}

	scorer := NewScorer(mc, "model-b", 4096, 10)
	out, err := scorer.Classify(context.Background(), signals, "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "mid-tier bank", out[0].InstitutionType)
	assert.Equal(t, "vp", out[0].Seniority)
	assert.Equal(t, signals[0].Institution, out[0].Institution)
}

func TestClassify_ChunksByBatchSize(t *testing.T) {
	signals := batch(5)
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse(classifiedJSON(t, signals[0:2])),
		textResponse(classifiedJSON(t, signals[2:4])),
		textResponse(classifiedJSON(t, signals[4:5])),
	}}

	scorer := NewScorer(mc, "model-b", 4096, 2)
	out, err := scorer.Classify(context.Background(), signals, "")
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.Equal(t, 3, mc.calls)
	for i := range out {
		assert.Equal(t, signals[i].Institution, out[i].Institution, "order preserved across chunks")
	}
}

func TestClassify_UnparsableChunkKeepsInput(t *testing.T) {
	signals := batch(4)
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse("not json at all"),
		textResponse(classifiedJSON(t, signals[2:4])),
	}}

	scorer := NewScorer(mc, "model-b", 4096, 2)
	out, err := scorer.Classify(context.Background(), signals, "")
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Empty(t, out[0].Seniority, "failed chunk passes through unchanged")
	assert.Equal(t, "vp", out[2].Seniority)
}

func TestClassify_LengthMismatchKeepsInput(t *testing.T) {
	signals := batch(3)
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse(classifiedJSON(t, signals[0:2])), // dropped one
	}}

	scorer := NewScorer(mc, "model-b", 4096, 10)
	out, err := scorer.Classify(context.Background(), signals, "")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Empty(t, out[0].Seniority)
}

func TestClassify_IdentityChangeKeepsInput(t *testing.T) {
	signals := batch(2)
	tampered := make([]model.Signal, 2)
	copy(tampered, signals)
	tampered[1].Institution = "Fabricated Corp"
	data, err := json.Marshal(tampered)
	require.NoError(t, err)

	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse(string(data)),
	}}

	scorer := NewScorer(mc, "model-b", 4096, 10)
	out, err := scorer.Classify(context.Background(), signals, "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, signals[1].Institution, out[1].Institution)
}

func TestClassify_EmptyBatchNoCalls(t *testing.T) {
	mc := &mockClient{}
	scorer := NewScorer(mc, "model-b", 4096, 10)

	out, err := scorer.Classify(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, mc.calls)
}

func TestNewScorer_DefaultBatchSize(t *testing.T) {
	signals := batch(3)
	mc := &mockClient{responses: []func(anthropic.MessageRequest) (*anthropic.MessageResponse, error){
		textResponse(classifiedJSON(t, signals)),
	}}

	scorer := NewScorer(mc, "model-b", 4096, 0)
	out, err := scorer.Classify(context.Background(), signals, "")
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, 1, mc.calls, "batch size defaults large enough for one call")
}
