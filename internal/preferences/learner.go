package preferences

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"reagent/server/internal/database"
	"reagent/server/internal/models"
	"reagent/server/internal/oracle"
)

const extractionPrompt = `You are an expert at extracting property search preferences from natural language.

Extract preferences from the user message and classify them into these categories:

- location: specific areas, cities, postcodes, or regions
- max_price: maximum budget (extract numbers, convert to integer)
- min_price: minimum budget
- min_bedrooms: minimum number of bedrooms
- max_bedrooms: maximum number of bedrooms
- property_type: house, flat, apartment, studio, bungalow, etc.
- garden: yes, no, or specific requirements
- parking: yes, no, or specific requirements
- transport_links: proximity to stations, bus routes
- schools: proximity to good schools
- lifestyle: quiet area, vibrant area, family-friendly, etc.
- move_date: when they want to move
- specific_features: balcony, ensuite, modern kitchen, etc.

For each preference:
1. Determine if it's explicitly stated or implied
2. Assign confidence score (0.1-1.0):
   - 1.0: explicitly stated with certainty
   - 0.8: clearly mentioned
   - 0.6: strongly implied
   - 0.4: weakly implied
   - 0.2: very uncertain inference

Return JSON format:
{
    "preferences": [
        {
            "type": "location",
            "value": "London",
            "confidence": 0.9,
            "is_explicit": true,
            "context": "User said 'looking in London'"
        }
    ]
}

If no clear preferences are found, return empty preferences array.`

// Learner extracts preferences from free-text chat and merges them into the
// stored preference set with confidence arbitration.
type Learner struct {
	store     *database.Store
	completer oracle.Completer
	logger    *logrus.Logger
}

func NewLearner(store *database.Store, completer oracle.Completer, logger *logrus.Logger) *Learner {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Learner{
		store:     store,
		completer: completer,
		logger:    logger,
	}
}

type extractionResult struct {
	Preferences []models.PreferenceCandidate `json:"preferences"`
}

// ExtractAndMerge pulls preference candidates out of a user message and
// persists each one through the merge engine. Oracle failure or unusable
// output silently degrades to the pattern ladder; the caller always gets a
// usable candidate list, never an extraction error.
func (l *Learner) ExtractAndMerge(ctx context.Context, userID int64, message string) ([]models.PreferenceCandidate, error) {
	candidates := l.extract(ctx, message)

	for _, cand := range candidates {
		if err := l.Merge(userID, cand); err != nil {
			return nil, fmt.Errorf("failed to merge %s preference: %w", cand.Type, err)
		}
	}

	return candidates, nil
}

func (l *Learner) extract(ctx context.Context, message string) []models.PreferenceCandidate {
	reply, err := l.completer.Complete(ctx, extractionPrompt, []oracle.Message{
		{Role: "user", Content: fmt.Sprintf("Extract preferences from: '%s'", message)},
	})
	if err != nil {
		l.logger.WithError(err).Warn("Oracle extraction failed, falling back to patterns")
		return ExtractWithPatterns(message)
	}

	// The reply is untrusted: chat models wrap JSON in code fences or pad it
	// with prose, and any shape mismatch must degrade, not crash.
	var result extractionResult
	if err := json.Unmarshal([]byte(stripCodeFences(reply)), &result); err != nil {
		l.logger.WithError(err).Warn("Unparsable oracle extraction output, falling back to patterns")
		return ExtractWithPatterns(message)
	}

	valid := result.Preferences[:0]
	known := make(map[string]bool, len(models.PreferenceTypes))
	for _, t := range models.PreferenceTypes {
		known[t] = true
	}
	for _, cand := range result.Preferences {
		if !known[cand.Type] || cand.Value == "" {
			l.logger.WithField("type", cand.Type).Warn("Dropping unrecognized preference candidate")
			continue
		}
		cand.Confidence = clampConfidence(cand.Confidence)
		valid = append(valid, cand)
	}

	return valid
}

// Merge reconciles a candidate against the stored preference for the same
// (user, type) pair:
//
//  1. No stored preference: create it verbatim.
//  2. Higher confidence: replace value, confidence, and explicit flag.
//  3. Equal confidence, candidate explicit, stored inferred: replace value
//     and explicit flag, keep confidence.
//  4. Otherwise combine values per type; only write back when the combined
//     value differs, raising confidence to the max of the two.
//
// Confidence never decreases across any sequence of merges.
func (l *Learner) Merge(userID int64, cand models.PreferenceCandidate) error {
	return l.store.WithTx(func(tx *database.Store) error {
		existing, err := tx.GetPreference(userID, cand.Type)
		if err == database.ErrNotFound {
			return tx.SavePreference(&models.Preference{
				UserID:     userID,
				Type:       cand.Type,
				Value:      cand.Value,
				Confidence: clampConfidence(cand.Confidence),
				Explicit:   cand.Explicit,
			})
		}
		if err != nil {
			return err
		}

		switch {
		case cand.Confidence > existing.Confidence:
			existing.Value = cand.Value
			existing.Confidence = cand.Confidence
			existing.Explicit = cand.Explicit

		case cand.Confidence == existing.Confidence && cand.Explicit && !existing.Explicit:
			existing.Value = cand.Value
			existing.Explicit = cand.Explicit

		default:
			merged := combineValues(cand.Type, existing.Value, cand.Value)
			if merged == existing.Value {
				return nil
			}
			// Stored confidence already dominates in this branch, so
			// max(stored, new) leaves it unchanged.
			existing.Value = merged
		}

		return tx.SavePreference(existing)
	})
}

// combineValues merges two values for the same preference type when neither
// wins the confidence arbitration outright.
func combineValues(prefType, existing, new string) string {
	switch prefType {
	case models.PrefLocation:
		// Longer is assumed more specific
		if len(new) > len(existing) {
			return new
		}
		return existing

	case models.PrefMaxPrice, models.PrefMinPrice, models.PrefMinBedrooms, models.PrefMaxBedrooms:
		// Volatile numeric preferences: most recent wins
		return new

	case models.PrefSpecificFeatures:
		return unionFeatures(existing, new)

	default:
		return new
	}
}

func unionFeatures(existing, new string) string {
	seen := make(map[string]bool)
	var combined []string
	for _, raw := range append(strings.Split(existing, ","), strings.Split(new, ",")...) {
		feature := strings.TrimSpace(raw)
		if feature == "" || seen[feature] {
			continue
		}
		seen[feature] = true
		combined = append(combined, feature)
	}
	return strings.Join(combined, ", ")
}

func clampConfidence(c float64) float64 {
	if c < 0.1 {
		return 0.1
	}
	if c > 1.0 {
		return 1.0
	}
	return c
}

// Summary renders the stored preference set as a short natural-language
// description.
func (l *Learner) Summary(userID int64) (string, error) {
	prefs, err := l.store.ListPreferences(userID)
	if err != nil {
		return "", err
	}
	if len(prefs) == 0 {
		return "No preferences learned yet.", nil
	}

	parts := make([]string, 0, len(prefs))
	for _, pref := range prefs {
		confidence := "tentatively"
		if pref.Confidence > 0.7 {
			confidence = "confidently"
		}
		explicit := "inferred"
		if pref.Explicit {
			explicit = "explicitly stated"
		}
		parts = append(parts, fmt.Sprintf("%s: %s (%s, %s)", pref.Type, pref.Value, confidence, explicit))
	}

	return "User preferences: " + strings.Join(parts, "; "), nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
