package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

func sig(institution string, overrides ...func(*model.Signal)) model.Signal {
	s := model.Signal{
		Institution: institution,
		SignalType:  "partnership",
		SourceURL:   "https://example.com/" + institution,
		Summary:     institution + " announced a strategic initiative.",
	}
	for _, o := range overrides {
		o(&s)
	}
	return s
}

func withURL(url string) func(*model.Signal)     { return func(s *model.Signal) { s.SourceURL = url } }
func withSummary(sum string) func(*model.Signal) { return func(s *model.Signal) { s.Summary = sum } }
func withDomain(d string) func(*model.Signal)    { return func(s *model.Signal) { s.Domain = d } }
func withDate(d string) func(*model.Signal)      { return func(s *model.Signal) { s.SignalDate = d } }

func TestFilterValidURLs(t *testing.T) {
	valid := map[string]bool{"https://news.example/a": true}
	signals := []model.Signal{
		sig("Alfa Bank", withURL("https://news.example/a")),
		sig("Beta Corp", withURL("https://fabricated.example/x")),
		sig("Gamma Ltd", withURL("")),
	}

	kept := FilterValidURLs(signals, valid)
	require.Len(t, kept, 1)
	assert.Equal(t, "Alfa Bank", kept[0].Institution)
}

func TestFilterTier1_BlocksNameAndTierField(t *testing.T) {
	signals := []model.Signal{
		sig("Goldman Sachs International"),
		sig("Deloitte Middle East"),
		sig("Oracle"),
		sig("PKO Bank Polski"),
	}
	signals = append(signals, func() model.Signal {
		s := sig("Regional Lender")
		s.InstitutionTier = "tier1"
		return s
	}())

	kept := FilterTier1(signals)
	require.Len(t, kept, 1)
	assert.Equal(t, "PKO Bank Polski", kept[0].Institution)
}

func TestFilterCryptoPrimary(t *testing.T) {
	signals := []model.Signal{
		sig("TokenMax", withSummary("TokenMax operates a crypto trading platform for retail users.")),
		sig("ChainDom", withDomain("crypto")),
		sig("Emirates NBD", withSummary("Emirates NBD pilots tokenized real-world asset custody.")),
	}

	kept := FilterCryptoPrimary(signals, 0)
	require.Len(t, kept, 1)
	assert.Equal(t, "Emirates NBD", kept[0].Institution)
}

func TestFilterCryptoPrimary_KeywordOutsideWindowIsKept(t *testing.T) {
	// The crypto keyword sits far after the institution's mention, outside
	// the local context window: it describes a partner, not the company.
	padding := ""
	for len(padding) < localContextWindow {
		padding += "expands tokenization services for industrial clients. "
	}
	buyer := sig("Emirates NBD",
		withSummary("Emirates NBD "+padding+"One partner runs a crypto exchange."))

	kept := FilterCryptoPrimary([]model.Signal{buyer}, 0)
	require.Len(t, kept, 1)
	assert.Equal(t, "Emirates NBD", kept[0].Institution)

	// A configured window wide enough to reach the keyword drops it again.
	kept = FilterCryptoPrimary([]model.Signal{buyer}, len(buyer.Summary))
	assert.Empty(t, kept)
}

func TestFilterAINativeVendors_KnownNames(t *testing.T) {
	signals := []model.Signal{
		sig("OpenAI"),
		sig("Mistral AI"),
		sig("Qatar National Bank"),
	}

	kept := FilterAINativeVendors(signals, 0)
	require.Len(t, kept, 1)
	assert.Equal(t, "Qatar National Bank", kept[0].Institution)
}

func TestFilterAINativeVendors_SelfDescription(t *testing.T) {
	vendor := sig("Synthia",
		withSummary("Synthia is an AI startup that builds foundation models for enterprises."))
	kept := FilterAINativeVendors([]model.Signal{vendor}, 0)
	assert.Empty(t, kept)
}

func TestFilterAINativeVendors_BuyerMentioningVendorIsKept(t *testing.T) {
	// The self-description phrase sits far after the institution's mention,
	// outside the local context window, so the buyer survives.
	padding := ""
	for len(padding) < localContextWindow {
		padding += "expands its regional operations with new hires and pilots. "
	}
	buyer := sig("Tatra Banka",
		withSummary("Tatra Banka "+padding+"Their partner is an AI company selling models."))

	kept := FilterAINativeVendors([]model.Signal{buyer}, 0)
	require.Len(t, kept, 1)
	assert.Equal(t, "Tatra Banka", kept[0].Institution)
}

func TestFilterStale(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	signals := []model.Signal{
		sig("Fresh Co", withDate("2025-06-20")),
		sig("Stale Co", withDate("2025-01-10")),
		sig("Noisy Co", withDate("mid-2025")), // unparsable: kept
		sig("Blank Co"),
	}

	kept := FilterStale(signals, 90, now)
	require.Len(t, kept, 3)
	names := []string{kept[0].Institution, kept[1].Institution, kept[2].Institution}
	assert.NotContains(t, names, "Stale Co")
	assert.Contains(t, names, "Noisy Co")
	assert.Contains(t, names, "Blank Co")
}

func TestFilterNonCompany(t *testing.T) {
	signals := []model.Signal{
		sig("Poland"),
		sig("Ministry of Finance"),
		sig("Saudi Central Bank"),
		sig(""),
		sig("Allegro Group"),
	}

	kept := FilterNonCompany(signals)
	require.Len(t, kept, 1)
	assert.Equal(t, "Allegro Group", kept[0].Institution)
}

func TestFilterGenericLabels(t *testing.T) {
	signals := []model.Signal{
		sig("UK Businesses"),
		sig("European Enterprises"),
		sig("The Companies"),
		sig("Emirates Steel Group"),     // hint token "group"
		sig("Allegro"),                  // single concrete name
		sig("Romanian Retailers"),       // generic group label
	}

	kept := FilterGenericLabels(signals)
	require.Len(t, kept, 2)
	assert.Equal(t, "Emirates Steel Group", kept[0].Institution)
	assert.Equal(t, "Allegro", kept[1].Institution)
}

func TestFilterGenericLabels_HintTokenRescuesGenericNoun(t *testing.T) {
	// "company" is generic, but an explicit corporate suffix marks a real name.
	kept := FilterGenericLabels([]model.Signal{sig("Saudi Basic Industries Corp")})
	require.Len(t, kept, 1)
}
