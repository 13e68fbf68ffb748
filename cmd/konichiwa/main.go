package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mizuhq/konichiwa"
	"github.com/mizuhq/konichiwa/stores"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	// Load .env file if it exists (not present in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	store, err := stores.NewStore(stores.NewStoreConfig(
		getEnv("DB_TYPE", "sqlite"),
		getEnv("DB_CONNECTION", "konichiwa.sqlite"),
	))
	if err != nil {
		log.Fatalf("Failed to open record store: %v", err)
	}

	cfg := konichiwa.NewConfig().
		WithStore(store).
		WithOAuthBase(getEnv("OAUTH_AUTHORIZE_URL", ""))

	if schedule := getEnv("SESSION_PRUNE_SCHEDULE", ""); schedule != "" {
		cfg.WithPruneSchedule(schedule)
	}
	if hours := getEnv("SESSION_TTL_HOURS", ""); hours != "" {
		n, err := strconv.Atoi(hours)
		if err != nil {
			log.Fatalf("Invalid SESSION_TTL_HOURS: %v", err)
		}
		cfg.WithSessionTTL(time.Duration(n) * time.Hour)
	}

	// A deployed chat function takes precedence over direct model access.
	if endpoint := getEnv("CHAT_FUNCTION_URL", ""); endpoint != "" {
		cfg.WithFunctionEndpoint(endpoint, getEnv("CHAT_FUNCTION_KEY", ""))
	} else {
		cfg.WithGeminiModel(getEnv("GEMINI_MODEL", ""))
	}

	app, err := konichiwa.NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to assemble service: %v", err)
	}
	defer app.Close()

	addr := ":" + getEnv("PORT", "8080")
	log.Printf("Serving on %s", addr)
	if err := app.Run(addr); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
