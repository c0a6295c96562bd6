package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Agent identity: the fixed user id the assistant posts messages as.
	// Turns addressed to any other recipient are rejected.
	AgentUserID string

	// Gemini AI
	GeminiAPIKey         string
	GeminiModel          string
	GeminiEmbedModel     string
	GeminiConcurrentReqs int

	// Agent loop
	AgentMaxIterations int

	// Google Cloud (Calendar + Text-to-Speech)
	GoogleCredentialsJSON string
	GoogleCalendarID      string
	GoogleTTSAPIKey       string
	TTSVoice              string

	// Local timezone convention the agent uses for calendar timestamps
	AgentTimezoneOffset string

	// Qdrant vector index
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Storage
	StoragePath string
	PublicURL   string

	// SMTP
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),

		AgentUserID: mustGetEnv("AGENT_USER_ID"),

		GeminiAPIKey:         mustGetEnv("GEMINI_API_KEY"),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-3-flash-preview"),
		GeminiEmbedModel:     getEnvOrDefault("GEMINI_EMBED_MODEL", "text-embedding-004"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),

		AgentMaxIterations: getEnvAsIntOrDefault("AGENT_MAX_ITERATIONS", 6),

		GoogleCredentialsJSON: getEnvOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
		GoogleCalendarID:      getEnvOrDefault("GOOGLE_CALENDAR_ID", "primary"),
		GoogleTTSAPIKey:       getEnvOrDefault("GOOGLE_TTS_API_KEY", ""),
		TTSVoice:              getEnvOrDefault("TTS_VOICE", "en-US-Neural2-F"),

		AgentTimezoneOffset: getEnvOrDefault("AGENT_TZ_OFFSET", "-03:00"),

		QdrantURL:        mustGetEnv("QDRANT_URL"),
		QdrantAPIKey:     getEnvOrDefault("QDRANT_API_KEY", ""),
		QdrantCollection: getEnvOrDefault("QDRANT_COLLECTION", "minerva-documents"),

		StoragePath: getEnvOrDefault("STORAGE_PATH", "./uploads"),
		PublicURL:   getEnvOrDefault("PUBLIC_URL", "http://localhost:8080"),

		SMTPHost: getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort: getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser: getEnvOrDefault("SMTP_USER", ""),
		SMTPPass: getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom: getEnvOrDefault("SMTP_FROM", "assistant@minerva.app"),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
