package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"reagent/server/internal/database"
	"reagent/server/internal/models"
)

type PreferenceUpdate struct {
	Type       string   `json:"preference_type" binding:"required"`
	Value      string   `json:"preference_value" binding:"required"`
	Confidence *float64 `json:"confidence_score"`
	Explicit   *bool    `json:"is_explicit"`
}

type AnalyzeRequest struct {
	Text string `json:"text" binding:"required"`
}

var knownPreferenceTypes = func() map[string]bool {
	known := make(map[string]bool, len(models.PreferenceTypes))
	for _, t := range models.PreferenceTypes {
		known[t] = true
	}
	return known
}()

func (h *Handler) GetPreferences(c *gin.Context) {
	sessionID := c.Param("session_id")

	user, err := h.store.GetUser(sessionID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{
			"session_id":  sessionID,
			"preferences": []models.Preference{},
			"summary":     "No preferences learned yet.",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve preferences"})
		return
	}

	prefs, err := h.store.ListPreferences(user.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get preferences")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve preferences"})
		return
	}

	summary, err := h.learner.Summary(user.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to summarize preferences")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve preferences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":  sessionID,
		"preferences": prefs,
		"summary":     summary,
	})
}

// UpdatePreference overwrites a preference directly, bypassing confidence
// arbitration. Manual edits default to fully confident and explicit.
func (h *Handler) UpdatePreference(c *gin.Context) {
	sessionID := c.Param("session_id")

	var update PreferenceUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "preference_type and preference_value are required"})
		return
	}
	if !knownPreferenceTypes[update.Type] {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown preference type '%s'", update.Type)})
		return
	}

	confidence := 1.0
	if update.Confidence != nil {
		confidence = *update.Confidence
	}
	explicit := true
	if update.Explicit != nil {
		explicit = *update.Explicit
	}

	user, err := h.store.GetOrCreateUser(sessionID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update preference"})
		return
	}

	pref, err := h.store.GetPreference(user.ID, update.Type)
	if errors.Is(err, database.ErrNotFound) {
		pref = &models.Preference{UserID: user.ID, Type: update.Type}
	} else if err != nil {
		h.logger.WithError(err).Error("Failed to get preference")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update preference"})
		return
	}

	pref.Value = update.Value
	pref.Confidence = confidence
	pref.Explicit = explicit

	if err := h.store.SavePreference(pref); err != nil {
		h.logger.WithError(err).Error("Failed to save preference")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update preference"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"message":    fmt.Sprintf("Preference '%s' updated successfully", update.Type),
		"preference": pref,
	})
}

func (h *Handler) DeletePreference(c *gin.Context) {
	sessionID := c.Param("session_id")
	prefType := c.Param("preference_type")

	user, err := h.store.GetUser(sessionID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User session not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete preference"})
		return
	}

	err = h.store.DeletePreference(user.ID, prefType)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Preference not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete preference")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete preference"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Preference '%s' deleted successfully", prefType),
	})
}

func (h *Handler) ClearPreferences(c *gin.Context) {
	sessionID := c.Param("session_id")

	user, err := h.store.GetUser(sessionID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User session not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear preferences"})
		return
	}

	deleted, err := h.store.ClearPreferences(user.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to clear preferences")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear preferences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Cleared %d preferences successfully", deleted),
	})
}

func (h *Handler) AnalyzePreferences(c *gin.Context) {
	sessionID := c.Param("session_id")

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text is required"})
		return
	}

	user, err := h.store.GetOrCreateUser(sessionID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to analyze preferences"})
		return
	}

	extracted, err := h.learner.ExtractAndMerge(c.Request.Context(), user.ID, req.Text)
	if err != nil {
		h.logger.WithError(err).Error("Failed to analyze preferences")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to analyze preferences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                "success",
		"message":               fmt.Sprintf("Extracted %d preferences", len(extracted)),
		"extracted_preferences": extracted,
	})
}

func (h *Handler) GetPreferenceInsights(c *gin.Context) {
	sessionID := c.Param("session_id")

	user, err := h.store.GetUser(sessionID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User session not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate insights"})
		return
	}

	prefs, err := h.store.ListPreferences(user.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get preferences")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate insights"})
		return
	}

	if len(prefs) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"session_id":        sessionID,
			"total_preferences": 0,
			"insights":          "No preferences to analyze yet.",
		})
		return
	}

	var explicitCount, high, medium, low int
	var confidenceSum float64
	categories := make(map[string]int)
	for _, pref := range prefs {
		if pref.Explicit {
			explicitCount++
		}
		switch {
		case pref.Confidence >= 0.8:
			high++
		case pref.Confidence >= 0.5:
			medium++
		default:
			low++
		}
		confidenceSum += pref.Confidence
		categories[categorizePreference(pref.Type)]++
	}
	avgConfidence := confidenceSum / float64(len(prefs))

	c.JSON(http.StatusOK, gin.H{
		"session_id":           sessionID,
		"total_preferences":    len(prefs),
		"explicit_preferences": explicitCount,
		"implicit_preferences": len(prefs) - explicitCount,
		"confidence_distribution": gin.H{
			"high":   high,
			"medium": medium,
			"low":    low,
		},
		"average_confidence":    math.Round(avgConfidence*100) / 100,
		"preference_categories": categories,
		"insights":              generateInsights(avgConfidence, explicitCount, len(prefs)),
	})
}

func categorizePreference(prefType string) string {
	switch prefType {
	case models.PrefLocation:
		return "Location"
	case models.PrefMaxPrice, models.PrefMinPrice:
		return "Financial"
	case models.PrefPropertyType, models.PrefMinBedrooms, models.PrefMaxBedrooms:
		return "Property Specs"
	case models.PrefGarden, models.PrefParking, models.PrefSpecificFeatures:
		return "Features"
	case models.PrefLifestyle, models.PrefTransportLinks, models.PrefSchools:
		return "Lifestyle"
	default:
		return "Other"
	}
}

func generateInsights(avgConfidence float64, explicitCount, totalCount int) string {
	var insights []string

	switch {
	case avgConfidence >= 0.8:
		insights = append(insights, "You have very clear and well-defined preferences.")
	case avgConfidence >= 0.6:
		insights = append(insights, "Your preferences are fairly well established.")
	default:
		insights = append(insights, "Your preferences are still being learned and refined.")
	}

	explicitRatio := float64(explicitCount) / float64(totalCount)
	switch {
	case explicitRatio >= 0.7:
		insights = append(insights, "Most of your preferences have been explicitly stated.")
	case explicitRatio >= 0.4:
		insights = append(insights, "You have a good mix of explicit and inferred preferences.")
	default:
		insights = append(insights, "Many of your preferences have been inferred from conversation.")
	}

	switch {
	case totalCount >= 10:
		insights = append(insights, "REAgent has learned a comprehensive set of preferences about your ideal home.")
	case totalCount >= 5:
		insights = append(insights, "A good foundation of preferences has been established.")
	default:
		insights = append(insights, "Continue chatting to help REAgent learn more about your preferences.")
	}

	return strings.Join(insights, " ")
}
