// Package config loads server configuration from the environment,
// optionally seeded by a .env file in the working directory.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server.
type Config struct {
	// HTTP
	Addr   string
	APIKey string // shared secret for the X-API-Key header

	// Notification channel
	WSToken string // shared token checked during the websocket handshake

	// Vector store
	ChromaURL string

	// Embedding
	OllamaURL        string
	EmbedModel       string
	EmbedConcurrency int // bounded pool for embedding calls

	// Chat model
	ChatProvider string // "ollama" or "gemini"
	ChatModel    string
	GeminiAPIKey string
	GeminiModel  string

	// Session memory
	SessionDBPath   string
	HistoryBudget   int // token budget before compaction kicks in
	KeepRecentTurns int // raw turns always kept out of the summary

	// Structured output
	MaxRepairRetries  int
	StringAwareScan   bool // string-aware brace scanning (naive when false)
	AccumulatePartial bool // partial events carry the full text so far
	FinalAttemptParse bool // parse a dangling object at end of stream

	// Retrieval defaults
	DefaultMaxResults int
	DefaultThreshold  float32

	// File import (disabled when NotesDir is empty)
	NotesDir         string
	ImportCollection string
	UnidocLicenseKey string

	ShutdownTimeout time.Duration
}

// Load reads the environment into a Config, applying defaults for
// anything unset. A missing .env file is not an error.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	return &Config{
		Addr:   getEnv("WEVN_ADDR", ":8000"),
		APIKey: getEnv("WEVN_API_KEY", "mysecretkey"),

		WSToken: getEnv("WEVN_WS_TOKEN", "api-token"),

		ChromaURL: getEnv("CHROMA_URL", "http://localhost:8001"),

		OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:       getEnv("EMBED_MODEL", "nomic-embed-text:v1.5"),
		EmbedConcurrency: getEnvInt("EMBED_CONCURRENCY", 4),

		ChatProvider: getEnv("CHAT_PROVIDER", "ollama"),
		ChatModel:    getEnv("CHAT_MODEL", "deepseek-r1:7b"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		SessionDBPath:   getEnv("SESSION_DB_PATH", "chat_memory.db"),
		HistoryBudget:   getEnvInt("HISTORY_TOKEN_BUDGET", 2048),
		KeepRecentTurns: getEnvInt("HISTORY_KEEP_TURNS", 4),

		MaxRepairRetries:  getEnvInt("MAX_REPAIR_RETRIES", 2),
		StringAwareScan:   getEnvBool("STRING_AWARE_SCAN", true),
		AccumulatePartial: getEnvBool("ACCUMULATE_PARTIAL", true),
		FinalAttemptParse: getEnvBool("FINAL_ATTEMPT_PARSE", false),

		DefaultMaxResults: getEnvInt("DEFAULT_MAX_RESULTS", 10),
		DefaultThreshold:  float32(getEnvFloat("DEFAULT_DISTANCE_THRESHOLD", 1.4)),

		NotesDir:         os.Getenv("NOTES_DIR"),
		ImportCollection: getEnv("IMPORT_COLLECTION", "imported"),
		UnidocLicenseKey: os.Getenv("UNIDOC_LICENSE_KEY"),

		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("CONFIG: ignoring invalid integer %s=%q", key, v)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("CONFIG: ignoring invalid float %s=%q", key, v)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("CONFIG: ignoring invalid boolean %s=%q", key, v)
	}
	return fallback
}
