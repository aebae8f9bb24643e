package pipeline

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

// Filter drop reason codes.
const (
	ReasonInvalidURL     = "invalid_url"
	ReasonTier1          = "tier1_exclusion"
	ReasonCryptoPrimary  = "crypto_primary"
	ReasonAINativeVendor = "ai_native_vendor"
	ReasonStaleDate      = "stale_date"
	ReasonNonCompany     = "non_company"
	ReasonGenericLabel   = "generic_label"
)

// tier1Institutions blocks G-SIB banks, Big Tech, and top global consultancies.
var tier1Institutions = []string{
	"goldman sachs", "jp morgan", "jpmorgan", "citigroup", "citi",
	"bank of america", "wells fargo", "hsbc", "barclays", "bnp paribas",
	"deutsche bank", "credit suisse", "ubs", "societe generale",
	"morgan stanley", "blackrock", "fidelity", "vanguard",
	"microsoft", "apple", "google", "alphabet", "meta", "amazon", "aws",
	"mckinsey", "boston consulting group", "bcg", "bain", "deloitte",
	"pwc", "pricewaterhousecoopers", "kpmg", "ernst & young", "ey",
	"accenture",
}

// largeEnterpriseExclusions blocks large global platform vendors outside ICP.
var largeEnterpriseExclusions = []string{
	"adobe", "lenovo", "oracle", "sap", "ibm", "cisco", "salesforce",
	"servicenow", "workday", "intel", "amd", "nvidia", "dell", "hp",
	"hewlett packard", "hpe", "vmware", "palantir", "snowflake", "databricks",
}

var cryptoPrimaryKeywords = []string{
	"cryptocurrency", "crypto exchange", "nft marketplace", "web3 protocol",
	"defi protocol", "bitcoin miner", "crypto wallet provider",
	"token launchpad", "crypto trading platform",
}

var aiNativeInstitutions = []string{
	"openai", "anthropic", "cohere", "mistral ai", "hugging face",
	"stability ai", "midjourney", "perplexity", "character.ai", "xai",
	"deepmind",
}

var aiNativeSelfPatterns = []string{
	"is an ai startup",
	"is a ai startup",
	"is an artificial intelligence startup",
	"is an ai company",
	"is a generative ai company",
	"is an llm company",
	"builds ai models",
	"develops ai models",
	"develops foundation models",
	"builds foundation models",
	"llm provider",
	"model provider",
	"model lab",
	"ai lab",
	"ai platform provider",
	"ai software vendor",
	"offers ai software",
	"sells ai software",
	"ai-native company",
}

var nonCompanyTokens = []string{
	"region", "country", "ministry", "government", "agency", "department",
	"authority", "municipality", "city council", "county council",
	"national bank", "central bank", "public sector", "state", "federal",
	"parliament", "university", "school", "hospital", "ngo", "foundation",
	"association", "organization", "organisation",
}

var genericInstitutionNouns = map[string]bool{
	"enterprise": true, "enterprises": true,
	"business": true, "businesses": true,
	"company": true, "companies": true,
	"customer": true, "customers": true,
	"client": true, "clients": true,
	"executive": true, "executives": true,
	"employee": true, "employees": true,
	"retailer": true, "retailers": true,
	"manufacturer": true, "manufacturers": true,
	"institution": true, "institutions": true,
	"sector":   true,
	"industry": true, "industries": true,
	"market": true, "markets": true,
	"organization": true, "organizations": true,
	"organisation": true, "organisations": true,
}

var institutionFillerWords = map[string]bool{
	"the": true, "and": true, "of": true, "in": true, "for": true,
	"to": true, "from": true, "across": true,
	"global": true, "regional": true, "national": true,
	"international": true, "local": true,
	"middle": true, "east": true, "eastern": true, "europe": true,
	"africa": true, "gcc": true, "emea": true, "uk": true, "uae": true,
}

var companyHintTokens = map[string]bool{
	"inc": true, "corp": true, "corporation": true, "co": true,
	"company": true, "ltd": true, "limited": true, "llc": true, "plc": true,
	"group": true, "sa": true, "ag": true, "nv": true, "spa": true,
	"gmbh": true, "srl": true, "oyj": true, "asa": true, "ab": true,
	"holding": true, "holdings": true,
	"technologies": true, "technology": true, "systems": true,
	"solutions": true, "bank": true,
}

// localContextWindow is the default byte span, measured from the
// institution's first mention in the lowercased summary, within which
// business-description keywords are matched, so a buyer mentioning a vendor
// or a crypto partner mid-summary is not dropped.
const localContextWindow = 240

// institutionWindow slices the summary to windowBytes starting at the
// institution's first mention. A zero or negative windowBytes falls back to
// the default; a blank or absent institution leaves the whole summary.
func institutionWindow(summaryLow, instLow string, windowBytes int) string {
	if windowBytes <= 0 {
		windowBytes = localContextWindow
	}
	if instLow == "" {
		return summaryLow
	}
	start := strings.Index(summaryLow, instLow)
	if start < 0 {
		return summaryLow
	}
	end := start + windowBytes
	if end > len(summaryLow) {
		end = len(summaryLow)
	}
	return summaryLow[start:end]
}

var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

// FilterValidURLs drops signals whose source_url was not among the URLs the
// search pass actually returned.
func FilterValidURLs(signals []model.Signal, validURLs map[string]bool) []model.Signal {
	log := zap.L().With(zap.String("filter", ReasonInvalidURL))
	kept := make([]model.Signal, 0, len(signals))
	for _, sig := range signals {
		if validURLs[sig.SourceURL] {
			kept = append(kept, sig)
			continue
		}
		log.Info("dropped signal",
			zap.String("reason", ReasonInvalidURL),
			zap.String("institution", sig.Institution),
			zap.String("url", sig.SourceURL))
	}
	return kept
}

// FilterTier1 drops Tier-1 institutions and large global enterprises.
func FilterTier1(signals []model.Signal) []model.Signal {
	log := zap.L().With(zap.String("filter", ReasonTier1))
	kept := make([]model.Signal, 0, len(signals))
	for _, sig := range signals {
		low := strings.ToLower(sig.Institution)
		blocked := strings.EqualFold(sig.InstitutionTier, "tier1") ||
			containsAny(low, tier1Institutions) ||
			containsAny(low, largeEnterpriseExclusions)
		if blocked {
			log.Info("dropped signal",
				zap.String("reason", ReasonTier1),
				zap.String("institution", sig.Institution))
			continue
		}
		kept = append(kept, sig)
	}
	return kept
}

// FilterCryptoPrimary drops companies whose primary business is
// crypto/NFT/Web3, matching keywords only within the local context window of
// the institution's mention. Digital assets here means tokenized real-world
// assets and industrial IP, not speculative tokens.
func FilterCryptoPrimary(signals []model.Signal, windowBytes int) []model.Signal {
	log := zap.L().With(zap.String("filter", ReasonCryptoPrimary))
	kept := make([]model.Signal, 0, len(signals))
	for _, sig := range signals {
		instLow := strings.ToLower(strings.TrimSpace(sig.Institution))
		summaryLow := strings.ToLower(strings.TrimSpace(sig.Summary))
		window := institutionWindow(summaryLow, instLow, windowBytes)
		cryptoPrimary := strings.EqualFold(sig.Domain, "crypto") ||
			containsAny(window, cryptoPrimaryKeywords)
		if cryptoPrimary {
			log.Info("dropped signal",
				zap.String("reason", ReasonCryptoPrimary),
				zap.String("institution", sig.Institution))
			continue
		}
		kept = append(kept, sig)
	}
	return kept
}

// FilterAINativeVendors drops AI-native companies that build or sell the
// technology being tracked, by name allowlist and by self-description
// phrases within the local context window.
func FilterAINativeVendors(signals []model.Signal, windowBytes int) []model.Signal {
	log := zap.L().With(zap.String("filter", ReasonAINativeVendor))
	kept := make([]model.Signal, 0, len(signals))
	for _, sig := range signals {
		instLow := strings.ToLower(strings.TrimSpace(sig.Institution))
		summaryLow := strings.ToLower(strings.TrimSpace(sig.Summary))

		knownVendor := containsAny(instLow, aiNativeInstitutions)
		selfDescribed := containsAny(
			institutionWindow(summaryLow, instLow, windowBytes), aiNativeSelfPatterns)

		if knownVendor || selfDescribed {
			log.Info("dropped signal",
				zap.String("reason", ReasonAINativeVendor),
				zap.String("institution", sig.Institution))
			continue
		}
		kept = append(kept, sig)
	}
	return kept
}

// FilterStale drops signals dated earlier than cutoffDays before now.
// Unparsable dates are kept: formatting noise must not cause false drops.
func FilterStale(signals []model.Signal, cutoffDays int, now time.Time) []model.Signal {
	log := zap.L().With(zap.String("filter", ReasonStaleDate))
	cutoff := now.AddDate(0, 0, -cutoffDays)
	kept := make([]model.Signal, 0, len(signals))
	for _, sig := range signals {
		parsed, ok := model.ParseSignalDate(sig.SignalDate)
		if ok && parsed.Before(cutoff) {
			log.Info("dropped signal",
				zap.String("reason", ReasonStaleDate),
				zap.String("institution", sig.Institution),
				zap.String("signal_date", sig.SignalDate),
				zap.Int("cutoff_days", cutoffDays))
			continue
		}
		kept = append(kept, sig)
	}
	return kept
}

// FilterNonCompany drops signals whose institution is a geography label or a
// government/public-sector entity rather than a company.
func FilterNonCompany(signals []model.Signal) []model.Signal {
	log := zap.L().With(zap.String("filter", ReasonNonCompany))
	kept := make([]model.Signal, 0, len(signals))
	for _, sig := range signals {
		name := strings.TrimSpace(sig.Institution)
		low := strings.ToLower(name)
		if name == "" {
			log.Info("dropped signal", zap.String("reason", ReasonNonCompany))
			continue
		}
		if isGeographyName(low) {
			log.Info("dropped signal",
				zap.String("reason", ReasonNonCompany),
				zap.String("institution", name),
				zap.String("detail", "geography label"))
			continue
		}
		if containsAny(low, nonCompanyTokens) {
			log.Info("dropped signal",
				zap.String("reason", ReasonNonCompany),
				zap.String("institution", name),
				zap.String("detail", "non-company institution type"))
			continue
		}
		kept = append(kept, sig)
	}
	log.Info("company filter complete",
		zap.Int("kept", len(kept)), zap.Int("in", len(signals)))
	return kept
}

// FilterGenericLabels drops generic group labels ("UK Businesses",
// "European Enterprises") keeping only concrete company names.
func FilterGenericLabels(signals []model.Signal) []model.Signal {
	log := zap.L().With(zap.String("filter", ReasonGenericLabel))
	kept := make([]model.Signal, 0, len(signals))
	for _, sig := range signals {
		name := strings.TrimSpace(sig.Institution)
		low := strings.ToLower(name)

		var alphaTokens []string
		for _, t := range tokenSplitPattern.Split(low, -1) {
			if t != "" && strings.IndexFunc(t, isLetter) >= 0 {
				alphaTokens = append(alphaTokens, t)
			}
		}
		if len(alphaTokens) == 0 {
			log.Info("dropped signal",
				zap.String("reason", ReasonGenericLabel),
				zap.String("institution", name),
				zap.String("detail", "empty or invalid label"))
			continue
		}

		hasHint := false
		hasGeneric := false
		var reduced []string
		for _, t := range alphaTokens {
			if companyHintTokens[t] {
				hasHint = true
			}
			if genericInstitutionNouns[t] {
				hasGeneric = true
			}
			if !genericInstitutionNouns[t] && !institutionFillerWords[t] {
				reduced = append(reduced, t)
			}
		}

		if len(reduced) == 0 {
			log.Info("dropped signal",
				zap.String("reason", ReasonGenericLabel),
				zap.String("institution", name),
				zap.String("detail", "only generic or filler tokens"))
			continue
		}
		if hasGeneric && !hasHint && len(reduced) <= 2 {
			log.Info("dropped signal",
				zap.String("reason", ReasonGenericLabel),
				zap.String("institution", name),
				zap.String("detail", "generic group label"))
			continue
		}
		kept = append(kept, sig)
	}
	log.Info("generic-label filter complete",
		zap.Int("kept", len(kept)), zap.Int("in", len(signals)))
	return kept
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
