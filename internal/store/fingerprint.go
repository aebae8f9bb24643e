package store

import (
	"strings"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

// Fingerprint returns a stable cross-run dedup key for a signal. URL-bearing
// signals key on the URL alone; the rest key on the
// institution|signal_type|signal_date triple. Derived only from identity
// fields, never from score fields.
func Fingerprint(sig model.Signal) string {
	norm := func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	}

	if url := norm(sig.SourceURL); url != "" {
		return "url::" + url
	}
	return "triple::" + norm(sig.Institution) + "|" + norm(sig.SignalType) + "|" + norm(sig.SignalDate)
}
