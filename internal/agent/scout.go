// Package agent drives the LLM extraction and scoring passes over the
// search results collected by the pipeline.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
	"github.com/Kakaur/tensr-signal-agent/pkg/anthropic"
	"github.com/Kakaur/tensr-signal-agent/pkg/tavily"
)

const scoutSystemPrompt = `You are a business-signal analyst. You are given a
set of verified web search results. Extract concrete institutional buying
signals: a named institution taking a concrete action (hire, partnership,
launch, pilot, filing, investment, conference, other).

Rules:
- Only use the provided search results. Never invent institutions or URLs.
- source_url must be copied verbatim from a provided result.
- institution must be a specific organization name, not a geography,
  demographic, or generic group label.
- signal_date is ISO YYYY-MM-DD or YYYY-MM when the text supports it;
  otherwise omit it.
- domain is a lower_snake_case business-use-case tag.

Respond with a JSON array of signal objects with keys: institution, country,
region, signal_type, signal_date, domain, institution_tier, institution_type,
seniority, source_url, summary. No prose, no markdown fences.`

// Scout extracts candidate signals from search results.
type Scout struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	retries   int
}

// NewScout builds an extraction agent. retries bounds the under-count
// re-prompts after the first attempt.
func NewScout(client anthropic.Client, modelID string, maxTokens int64, retries int) *Scout {
	if retries < 0 {
		retries = 0
	}
	return &Scout{client: client, model: modelID, maxTokens: maxTokens, retries: retries}
}

// Extract asks the model for candidate signals over the search results.
// When the parsed batch is below minCount it re-prompts up to the configured
// retry budget, keeping the largest batch seen. An unparsable attempt counts
// as zero signals and spends a retry; only when no attempt ever parses is
// the extraction an error, so the pipeline can treat it as zero records.
func (s *Scout) Extract(ctx context.Context, results []tavily.SearchResult, profileJSON string, minCount int) ([]model.Signal, string, error) {
	log := zap.L().With(zap.String("phase", "extract"))

	resultsJSON, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, "", eris.Wrap(err, "agent: marshal search results")
	}

	prompt := fmt.Sprintf("Here are %d verified search results:\n\n%s\n\nExtract all valid signals.", len(results), resultsJSON)
	if profileJSON != "" {
		prompt += "\n\nACTIVE PIPELINE PROFILE (use this as hard guidance):\n" + profileJSON
	}

	rawText, signals, firstErr := s.attempt(ctx, prompt)
	parsed := firstErr == nil
	if !parsed {
		log.Warn("extraction output did not parse, treating as zero signals",
			zap.Error(firstErr))
		signals = nil
	}

	for retry := 1; retry <= s.retries && (!parsed || len(signals) < minCount); retry++ {
		log.Warn("extraction below minimum, retrying",
			zap.Int("returned", len(signals)),
			zap.Int("min_count", minCount),
			zap.Int("retry", retry))

		retryPrompt := prompt + fmt.Sprintf(
			"\n\nIMPORTANT RETRY INSTRUCTION:\nYou previously returned %d signals.\nRe-scan ALL search results and return at least %d valid signal objects if possible.\nDo not stop early.",
			len(signals), minCount)

		retryText, retryParsed, err := s.attempt(ctx, retryPrompt)
		if err != nil {
			log.Warn("retry attempt failed", zap.Error(err))
			continue
		}
		if !parsed || len(retryParsed) > len(signals) {
			signals = retryParsed
			rawText = retryText
		}
		parsed = true
	}

	if !parsed {
		return nil, rawText, firstErr
	}

	log.Info("extraction complete", zap.Int("signals", len(signals)))
	return signals, rawText, nil
}

func (s *Scout) attempt(ctx context.Context, prompt string) (string, []model.Signal, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    []anthropic.SystemBlock{{Text: scoutSystemPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", nil, eris.Wrap(err, "agent: extraction call")
	}
	resp.Usage.LogUsage(s.model, "extract")

	text := resp.Text()
	signals, err := model.ParseSignalsFromText(text)
	if err != nil {
		return text, nil, eris.Wrap(err, "agent: parse extraction output")
	}
	return text, signals, nil
}
