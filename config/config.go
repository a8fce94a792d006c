package config

import (
	"os"
	"strconv"
)

const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

const (
	HistoryLocal   = "local"
	HistoryBackend = "backend"
)

type Config struct {
	BackendURL   string
	TopK         int
	UseFinetuned bool

	Store       string
	StorePath   string
	PostgresDSN string
	SessionID   string

	ListenAddr    string
	RunsLimit     int
	HistorySource string
}

func Load() Config {
	return Config{
		BackendURL:    getEnv("RAG_BACKEND_URL", "http://localhost:8000"),
		TopK:          getEnvInt("RAG_TOP_K", 3),
		UseFinetuned:  getEnvBool("RAG_USE_FINETUNED", false),
		Store:         getEnv("RAG_STORE", StoreFile),
		StorePath:     getEnv("RAG_STORE_PATH", ".rag-console"),
		PostgresDSN:   getEnv("RAG_POSTGRES_DSN", "postgres://localhost:5432/rag-console?sslmode=disable"),
		SessionID:     getEnv("RAG_SESSION_ID", "default"),
		ListenAddr:    getEnv("RAG_LISTEN_ADDR", ":8180"),
		RunsLimit:     getEnvInt("RAG_RUNS_LIMIT", 200),
		HistorySource: getEnv("RAG_HISTORY_SOURCE", HistoryBackend),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
