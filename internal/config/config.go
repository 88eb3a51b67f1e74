package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string
	FSPath      string // Physical directory for uploaded import files

	SessionTTLHours    int // Idle sessions older than this are cancelled by the sweep
	PreviewSampleLimit int // Per-classification preview sample cap
	CommitBatchSize    int // Row batch size for destination writes
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		JWTSecret:          getEnv("JWT_SECRET", "secret"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:             getEnv("DB_NAME", "go-mis"),
		SkipAuth:           getEnv("SKIP_AUTH", "false") == "true",
		Environment:        getEnv("ENVIRONMENT", "development"),
		AppId:              getEnv("APP_ID", "go-mis"),
		FSPath:             getEnv("FS_PATH", "./uploads"),
		SessionTTLHours:    getEnvInt("SESSION_TTL_HOURS", 24),
		PreviewSampleLimit: getEnvInt("PREVIEW_SAMPLE_LIMIT", 50),
		CommitBatchSize:    getEnvInt("COMMIT_BATCH_SIZE", 500),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
