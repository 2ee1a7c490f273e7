package main

import (
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"reagent/server/config"
	"reagent/server/internal/agent"
	"reagent/server/internal/api"
	"reagent/server/internal/database"
	"reagent/server/internal/oracle"
	"reagent/server/internal/platforms"
	"reagent/server/internal/preferences"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	logger.Infof("Using database at: %s", cfg.Database.Path)
	store, err := database.NewStore(cfg.Database.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	completer := oracle.NewClient(
		cfg.Oracle.APIKey,
		cfg.Oracle.BaseURL,
		cfg.Oracle.Model,
		cfg.Oracle.MaxTokens,
		time.Duration(cfg.Oracle.Timeout)*time.Second,
		logger,
	)

	learner := preferences.NewLearner(store, completer, logger)

	fetchers := []platforms.Fetcher{
		platforms.NewZooplaClient(
			cfg.Zoopla.APIKey,
			cfg.Zoopla.BaseURL,
			time.Duration(cfg.Zoopla.Timeout)*time.Second,
			logger,
		),
		platforms.NewRightmoveClient(
			cfg.Rightmove.BaseURL,
			cfg.Rightmove.Enabled,
			time.Duration(cfg.Rightmove.Timeout)*time.Second,
			logger,
		),
	}
	manager := platforms.NewManager(fetchers, cfg.Agent.MaxResults, logger)

	reagent := agent.New(store, learner, manager, completer, cfg.Agent.MaxHistory, cfg.Agent.MaxRecommendations, logger)

	router := gin.Default()
	router.Use(cors.Default())
	api.SetupRoutes(router, api.NewHandler(store, reagent, learner, manager, logger))

	logger.Infof("Starting server on port %s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}
