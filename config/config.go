package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every runtime parameter of the service.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	GameAPIBaseURL string
	GameAPIToken   string

	GuildAPIBaseURL string
	GuildBotToken   string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load reads configuration from environment variables, optionally seeded
// from a .env file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecretKey:      os.Getenv("JWT_SECRET_KEY"),
		GameAPIBaseURL:    os.Getenv("GAME_API_BASE_URL"),
		GameAPIToken:      os.Getenv("GAME_API_TOKEN"),
		GuildAPIBaseURL:   os.Getenv("GUILD_API_BASE_URL"),
		GuildBotToken:     os.Getenv("GUILD_BOT_TOKEN"),
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}
	if cfg.GameAPIBaseURL == "" || cfg.GameAPIToken == "" {
		return nil, fmt.Errorf("GAME_API_BASE_URL and GAME_API_TOKEN environment variables are required")
	}
	if cfg.GuildAPIBaseURL == "" || cfg.GuildBotToken == "" {
		return nil, fmt.Errorf("GUILD_API_BASE_URL and GUILD_BOT_TOKEN environment variables are required")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}
	cfg.ServerPort = port

	return cfg, nil
}
