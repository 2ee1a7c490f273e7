package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		chat := api.Group("/chat")
		{
			chat.POST("/message", handler.SendMessage)
			chat.GET("/history/:session_id", handler.GetConversationHistory)
			chat.POST("/feedback", handler.ProvideFeedback)
			chat.DELETE("/session/:session_id", handler.ClearSession)
		}

		prefs := api.Group("/preferences")
		{
			prefs.GET("/:session_id", handler.GetPreferences)
			prefs.POST("/:session_id/update", handler.UpdatePreference)
			prefs.POST("/:session_id/analyze", handler.AnalyzePreferences)
			prefs.GET("/:session_id/insights", handler.GetPreferenceInsights)
			prefs.DELETE("/:session_id", handler.ClearPreferences)
			prefs.DELETE("/:session_id/:preference_type", handler.DeletePreference)
		}

		properties := api.Group("/properties")
		{
			properties.POST("/search", handler.SearchProperties)
			properties.GET("", handler.GetProperties)
			properties.POST("/save", handler.SaveProperty)
			properties.GET("/recommendations/:session_id", handler.GetRecommendations)
			properties.GET("/:property_id", handler.GetPropertyDetails)
		}
	}
}
