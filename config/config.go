package config

import "github.com/caarlos0/env/v6"

type Config struct {
	Server struct {
		// Port the HTTP API listens on
		Port string `env:"PORT" envDefault:"5250"`
	}

	Database struct {
		// Path to the sqlite database file
		Path string `env:"DATABASE_PATH" envDefault:"database/reagent.db"`
	}

	Oracle struct {
		// OpenAI-compatible completion endpoint credentials
		APIKey  string `env:"OPENAI_API_KEY"`
		BaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
		Model   string `env:"OPENAI_MODEL" envDefault:"gpt-4"`

		// Request timeout in seconds
		Timeout int `env:"ORACLE_TIMEOUT" envDefault:"30"`

		MaxTokens int `env:"ORACLE_MAX_TOKENS" envDefault:"500"`
	}

	Zoopla struct {
		// Empty key disables the Zoopla platform entirely
		APIKey  string `env:"ZOOPLA_API_KEY"`
		BaseURL string `env:"ZOOPLA_BASE_URL" envDefault:"https://api.zoopla.co.uk/api/v1"`
		Timeout int    `env:"ZOOPLA_TIMEOUT" envDefault:"15"`
	}

	Rightmove struct {
		BaseURL string `env:"RIGHTMOVE_BASE_URL" envDefault:"https://www.rightmove.co.uk"`
		Timeout int    `env:"RIGHTMOVE_TIMEOUT" envDefault:"15"`

		// Allows switching the scraper off without code changes
		Enabled bool `env:"RIGHTMOVE_ENABLED" envDefault:"true"`
	}

	Agent struct {
		// Number of past conversation turns fed back to the oracle
		MaxHistory int `env:"AGENT_MAX_HISTORY" envDefault:"50"`

		// Maximum aggregated search results after dedup and ranking
		MaxResults int `env:"AGENT_MAX_RESULTS" envDefault:"20"`

		// Number of top candidates sent for AI scoring
		MaxRecommendations int `env:"AGENT_MAX_RECOMMENDATIONS" envDefault:"5"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
