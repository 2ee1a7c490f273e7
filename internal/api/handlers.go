package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reagent/server/internal/agent"
	"reagent/server/internal/database"
	"reagent/server/internal/models"
	"reagent/server/internal/platforms"
	"reagent/server/internal/preferences"
)

type Handler struct {
	store     *database.Store
	agent     *agent.Agent
	learner   *preferences.Learner
	platforms *platforms.Manager
	logger    *logrus.Logger
}

type ChatMessage struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

type FeedbackRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	PropertyID int64  `json:"property_id" binding:"required"`
	Feedback   string `json:"feedback" binding:"required"`
}

func NewHandler(store *database.Store, agent *agent.Agent, learner *preferences.Learner, manager *platforms.Manager, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		store:     store,
		agent:     agent,
		learner:   learner,
		platforms: manager,
		logger:    logger,
	}
}

func (h *Handler) SendMessage(c *gin.Context) {
	var msg ChatMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := h.agent.ProcessMessage(c.Request.Context(), sessionID, msg.Message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to process message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process message"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response":              reply.Response,
		"recommendations":       reply.Recommendations,
		"extracted_preferences": reply.Extracted,
		"conversation_id":       reply.UserID,
		"session_id":            sessionID,
	})
}

func (h *Handler) GetConversationHistory(c *gin.Context) {
	sessionID := c.Param("session_id")

	user, err := h.store.GetUser(sessionID)
	if errors.Is(err, database.ErrNotFound) {
		// Unknown sessions get an empty history rather than a 404
		c.JSON(http.StatusOK, gin.H{
			"conversations":    []models.Conversation{},
			"user_preferences": []models.Preference{},
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	turns, err := h.store.GetTurns(user.ID, 50)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get conversation history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	prefs, err := h.store.ListPreferences(user.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get preferences")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations":    turns,
		"user_preferences": prefs,
	})
}

func (h *Handler) ProvideFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id, property_id, and feedback are required"})
		return
	}

	user, err := h.store.GetUser(req.SessionID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User session not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record feedback"})
		return
	}

	err = h.store.SetRecommendationFeedback(user.ID, req.PropertyID, req.Feedback)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recommendation not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to record feedback")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record feedback"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Feedback recorded"})
}

func (h *Handler) ClearSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	err := h.store.DeleteSession(sessionID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User session not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to clear session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Session cleared"})
}

func (h *Handler) SearchProperties(c *gin.Context) {
	var criteria models.SearchCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid search criteria"})
		return
	}

	properties := h.platforms.Search(c.Request.Context(), criteria)

	c.JSON(http.StatusOK, gin.H{
		"properties":      properties,
		"total_count":     len(properties),
		"search_criteria": criteria,
	})
}

func (h *Handler) GetProperties(c *gin.Context) {
	criteria := models.SearchCriteria{
		Location:     c.Query("location"),
		PropertyType: c.Query("property_type"),
	}
	criteria.MaxPrice, _ = strconv.Atoi(c.Query("max_price"))
	criteria.MinPrice, _ = strconv.Atoi(c.Query("min_price"))
	criteria.MinBedrooms, _ = strconv.Atoi(c.Query("min_bedrooms"))
	criteria.MaxBedrooms, _ = strconv.Atoi(c.Query("max_bedrooms"))

	properties := h.platforms.Search(c.Request.Context(), criteria)

	c.JSON(http.StatusOK, gin.H{
		"properties":      properties,
		"total_count":     len(properties),
		"search_criteria": criteria,
	})
}

func (h *Handler) GetPropertyDetails(c *gin.Context) {
	externalID := c.Param("property_id")
	platform := c.Query("platform")
	if platform == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform is required"})
		return
	}

	prop, err := h.store.GetProperty(platform, externalID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property"})
		return
	}

	c.JSON(http.StatusOK, prop)
}

func (h *Handler) SaveProperty(c *gin.Context) {
	var prop models.Property
	if err := c.ShouldBindJSON(&prop); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property"})
		return
	}
	if prop.ExternalID == "" || prop.Platform == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "external_id and platform are required"})
		return
	}

	created, err := h.store.SaveProperty(&prop)
	if err != nil {
		h.logger.WithError(err).Error("Failed to save property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save property"})
		return
	}

	status := "exists"
	message := "Property already saved"
	if created {
		status = "saved"
		message = "Property saved successfully"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"property_id": prop.ID,
		"message":     message,
	})
}

func (h *Handler) GetRecommendations(c *gin.Context) {
	sessionID := c.Param("session_id")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}

	user, err := h.store.GetUser(sessionID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User session not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve recommendations"})
		return
	}

	recs, err := h.store.ListRecommendations(user.ID, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve recommendations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recommendations": recs,
		"total_count":     len(recs),
		"session_id":      sessionID,
	})
}
