package preferences

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"reagent/server/internal/models"
	"reagent/server/internal/prices"
)

// patternRule is one entry in the fallback extraction ladder. Rules are
// evaluated in order; the first rule that matches for a preference type wins
// and later rules for the same type are skipped. Confidence is fixed per
// pattern family, not derived from match quality.
type patternRule struct {
	prefType   string
	re         *regexp.Regexp
	confidence float64
	value      func(groups []string) (string, bool)
}

var patternLadder = []patternRule{
	{
		prefType:   models.PrefLocation,
		re:         regexp.MustCompile(`\b(?:in|around|near)\s+([a-z][a-z\s]+)`),
		confidence: 0.6,
		value: func(groups []string) (string, bool) {
			location := strings.TrimSpace(groups[1])
			if len(location) <= 2 {
				return "", false
			}
			return titleCase(location), true
		},
	},
	{
		prefType:   models.PrefMaxPrice,
		re:         regexp.MustCompile(`under\s+£?(\d[\d,]*k?)`),
		confidence: 0.7,
		value:      priceValue,
	},
	{
		prefType:   models.PrefMaxPrice,
		re:         regexp.MustCompile(`max\w*[^\d£]*£?(\d[\d,]*k?)`),
		confidence: 0.7,
		value:      priceValue,
	},
	{
		prefType:   models.PrefMaxPrice,
		re:         regexp.MustCompile(`budget[^\d£]*£?(\d[\d,]*k?)`),
		confidence: 0.7,
		value:      priceValue,
	},
	{
		prefType:   models.PrefMinBedrooms,
		re:         regexp.MustCompile(`(\d+)\s*bed(?:room)?s?\b`),
		confidence: 0.8,
		value: func(groups []string) (string, bool) {
			return groups[1], true
		},
	},
	{
		prefType:   models.PrefPropertyType,
		re:         regexp.MustCompile(`\b(house|flat|apartment|studio|bungalow|cottage)\b`),
		confidence: 0.9,
		value: func(groups []string) (string, bool) {
			return groups[1], true
		},
	},
}

func priceValue(groups []string) (string, bool) {
	amount, err := prices.ParseAmount(groups[1])
	if err != nil {
		return "", false
	}
	return strconv.Itoa(amount), true
}

// ExtractWithPatterns is the degraded-mode extractor: keyword and regex
// matching with no external dependency. It is intentionally lower recall
// than the oracle extractor.
func ExtractWithPatterns(message string) []models.PreferenceCandidate {
	lower := strings.ToLower(message)

	var extracted []models.PreferenceCandidate
	matched := make(map[string]bool)

	for _, rule := range patternLadder {
		if matched[rule.prefType] {
			continue
		}

		groups := rule.re.FindStringSubmatch(lower)
		if groups == nil {
			continue
		}

		value, ok := rule.value(groups)
		if !ok {
			continue
		}

		matched[rule.prefType] = true
		extracted = append(extracted, models.PreferenceCandidate{
			Type:       rule.prefType,
			Value:      value,
			Confidence: rule.confidence,
			Explicit:   true,
			Context:    "Pattern match: " + groups[0],
		})
	}

	return extracted
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
