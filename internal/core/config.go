package core

import (
	"os"
	"strings"

	"github.com/hookscope/hookscope/internal/auth"
)

// Config holds the application configuration
type Config struct {
	// Environment (development, production)
	Environment string

	// Server listening address
	ListenAddr string

	// Base URL for constructing capture URLs
	BaseURL string

	// Directory holding the SQLite database
	DataDir string

	// Secret for signing session tokens; empty disables auth entirely
	// (anonymous deployment)
	JWTSecret string

	// OAuth provider settings for the login flow
	OAuth auth.OAuthConfig

	// CORS allowed origins
	CORSOrigins []string

	// Enable debug logging
	Debug bool

	// Static files directory (for serving the viewer in combined deployment)
	StaticDir string
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() *Config {
	cfg := &Config{
		Environment: getEnv("HOOKSCOPE_ENV", "development"),
		ListenAddr:  getEnv("HOOKSCOPE_LISTEN_ADDR", ":8080"),
		BaseURL:     getEnv("HOOKSCOPE_BASE_URL", "http://localhost:8080"),
		DataDir:     getEnv("HOOKSCOPE_DATA_DIR", "./data"),
		JWTSecret:   getEnv("HOOKSCOPE_JWT_SECRET", ""),
		OAuth: auth.OAuthConfig{
			ClientID:     getEnv("HOOKSCOPE_OAUTH_CLIENT_ID", ""),
			ClientSecret: getEnv("HOOKSCOPE_OAUTH_CLIENT_SECRET", ""),
			AuthURL:      getEnv("HOOKSCOPE_OAUTH_AUTH_URL", ""),
			TokenURL:     getEnv("HOOKSCOPE_OAUTH_TOKEN_URL", ""),
			RedirectURL:  getEnv("HOOKSCOPE_OAUTH_REDIRECT_URL", ""),
			UserInfoURL:  getEnv("HOOKSCOPE_OAUTH_USERINFO_URL", "https://openidconnect.googleapis.com/v1/userinfo"),
		},
		CORSOrigins: getEnvList("HOOKSCOPE_CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		Debug:       getEnvBool("HOOKSCOPE_DEBUG", false),
		StaticDir:   getEnv("HOOKSCOPE_STATIC_DIR", ""),
	}

	return cfg
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// CaptureURL builds the externally visible capture address for an endpoint.
func (c *Config) CaptureURL(endpointID string) string {
	return c.BaseURL + "/api/endpoints/" + endpointID + "/capture"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.ToLower(value) == "true" || value == "1"
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.Split(value, ",")
}
