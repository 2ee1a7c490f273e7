package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"reagent/server/internal/models"
	"reagent/server/internal/oracle"
)

// Fallback analysis used when the oracle cannot score a candidate.
var fallbackAnalysis = analysis{
	RelevanceScore: 0.5,
	Pros:           []string{"Matches your search criteria"},
	Cons:           []string{"Requires further evaluation"},
	Reasoning:      "Basic match based on search criteria",
}

type analysis struct {
	RelevanceScore float64  `json:"relevance_score"`
	Pros           []string `json:"pros"`
	Cons           []string `json:"cons"`
	Reasoning      string   `json:"reasoning"`
}

// Recommend scores up to maxRecommendations candidates against the user's
// merged preference set and returns them best first. Scoring failure for a
// candidate degrades to the fixed fallback analysis, so the result always
// matches the (capped) input length. Scored recommendations are persisted.
func (a *Agent) Recommend(ctx context.Context, userID int64, candidates []models.Property) []models.Recommendation {
	prefs, err := a.store.ListPreferences(userID)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to load preferences for scoring")
	}

	if len(candidates) > a.maxRecommendations {
		candidates = candidates[:a.maxRecommendations]
	}

	recommendations := make([]models.Recommendation, 0, len(candidates))
	for _, candidate := range candidates {
		result := a.scoreCandidate(ctx, candidate, prefs)
		recommendations = append(recommendations, models.Recommendation{
			UserID:    userID,
			Property:  candidate,
			Score:     result.RelevanceScore,
			Pros:      result.Pros,
			Cons:      result.Cons,
			Reasoning: result.Reasoning,
		})
	}

	// Stable so equal scores keep their aggregation order
	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Score > recommendations[j].Score
	})

	if err := a.store.SaveRecommendations(userID, recommendations); err != nil {
		a.logger.WithError(err).Error("Failed to persist recommendations")
	}

	return recommendations
}

func (a *Agent) scoreCandidate(ctx context.Context, candidate models.Property, prefs []models.Preference) analysis {
	prompt, err := buildScoringPrompt(candidate, prefs)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to build scoring prompt, using fallback")
		return fallbackAnalysis
	}

	reply, err := a.completer.Complete(ctx, "", []oracle.Message{{Role: "user", Content: prompt}})
	if err != nil {
		a.logger.WithError(err).Warn("Oracle scoring failed, using fallback")
		return fallbackAnalysis
	}

	var result analysis
	if err := json.Unmarshal([]byte(stripCodeFences(reply)), &result); err != nil {
		a.logger.WithError(err).Warn("Unparsable scoring output, using fallback")
		return fallbackAnalysis
	}

	if result.RelevanceScore < 0 {
		result.RelevanceScore = 0
	}
	if result.RelevanceScore > 1 {
		result.RelevanceScore = 1
	}
	return result
}

func buildScoringPrompt(candidate models.Property, prefs []models.Preference) (string, error) {
	prefsJSON, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return "", err
	}
	propJSON, err := json.MarshalIndent(candidate, "", "  ")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`Analyze this property for a user with these preferences:
%s

Property:
%s

Provide:
1. Relevance score (0-1)
2. 3-5 specific pros based on user preferences
3. 3-5 specific cons or considerations
4. Brief reasoning for the recommendation

Format as JSON:
{
    "relevance_score": 0.85,
    "pros": ["specific pro 1", "specific pro 2"],
    "cons": ["specific con 1", "specific con 2"],
    "reasoning": "brief explanation"
}`, prefsJSON, propJSON), nil
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
