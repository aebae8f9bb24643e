package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
	"github.com/Kakaur/tensr-signal-agent/pkg/anthropic"
)

const scorerSystemPrompt = `You are a signal-qualification analyst. You are
given signal objects already extracted from verified sources. For each
signal, fill in or correct the categorical fields used for scoring:

- institution_type: one of "series a+ fintech", "regional/community bank",
  "mid-tier bank", "unknown".
- seniority: one of "c-suite", "md", "vp", "director", "senior", "manager",
  "unknown".
- domain: a lower_snake_case use-case tag.

Never change institution, source_url, signal_type, or signal_date. Never add
or remove signals. Respond with the full JSON array of signal objects in the
same order. No prose, no markdown fences.`

// Scorer enriches signal batches with categorical fields ahead of the
// deterministic scoring pass.
type Scorer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	batchSize int
}

// NewScorer builds a scoring agent. batchSize bounds signals per model call
// to respect output limits.
func NewScorer(client anthropic.Client, modelID string, maxTokens int64, batchSize int) *Scorer {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Scorer{client: client, model: modelID, maxTokens: maxTokens, batchSize: batchSize}
}

// Classify runs the batch through the model in chunks. A chunk whose output
// cannot be parsed, or that changes batch size or identity, falls back to
// its input signals unchanged: classification never fabricates or drops
// records.
func (s *Scorer) Classify(ctx context.Context, signals []model.Signal, profileJSON string) ([]model.Signal, error) {
	log := zap.L().With(zap.String("phase", "classify"))

	out := make([]model.Signal, 0, len(signals))
	for start := 0; start < len(signals); start += s.batchSize {
		end := start + s.batchSize
		if end > len(signals) {
			end = len(signals)
		}
		chunk := signals[start:end]

		classified, err := s.classifyChunk(ctx, chunk, profileJSON)
		if err != nil {
			log.Warn("chunk classification failed, keeping input fields",
				zap.Int("start", start), zap.Error(err))
			out = append(out, chunk...)
			continue
		}
		out = append(out, classified...)
	}

	log.Info("classification complete", zap.Int("signals", len(out)))
	return out, nil
}

func (s *Scorer) classifyChunk(ctx context.Context, chunk []model.Signal, profileJSON string) ([]model.Signal, error) {
	chunkJSON, err := json.MarshalIndent(chunk, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "agent: marshal chunk")
	}

	prompt := fmt.Sprintf("Classify these %d signals:\n\n%s", len(chunk), chunkJSON)
	if profileJSON != "" {
		prompt += "\n\nACTIVE PIPELINE PROFILE (prioritize this ranking intent):\n" + profileJSON
	}

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    []anthropic.SystemBlock{{Text: scorerSystemPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "agent: classification call")
	}
	resp.Usage.LogUsage(s.model, "classify")

	classified, err := model.ParseSignalsFromText(resp.Text())
	if err != nil {
		return nil, eris.Wrap(err, "agent: parse classification output")
	}
	if len(classified) != len(chunk) {
		return nil, eris.Errorf("agent: classification returned %d signals for a chunk of %d", len(classified), len(chunk))
	}
	for i := range classified {
		// Identity fields are immutable through classification.
		if classified[i].Institution != chunk[i].Institution ||
			classified[i].SourceURL != chunk[i].SourceURL {
			return nil, eris.Errorf("agent: classification altered signal identity at index %d", i)
		}
	}
	return classified, nil
}
