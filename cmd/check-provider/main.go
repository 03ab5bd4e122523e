package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/mkravets/luminio/internal/ai"
	"github.com/mkravets/luminio/internal/config"
)

// check-provider verifies that the embedding provider is reachable and
// returning vectors of the configured dimensionality before anything
// gets enqueued against it.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	if cfg.Provider.APIKey == "" {
		log.Fatal("EMBEDDING_API_KEY is not set")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	client, err := ai.NewClient(ai.Config{
		APIKey:         cfg.Provider.APIKey,
		BaseURL:        cfg.Provider.BaseURL,
		EmbeddingModel: cfg.Provider.EmbeddingModel,
		Dimensions:     cfg.Provider.Dimensions,
		PollInterval:   cfg.Provider.PollInterval,
		PollTimeout:    cfg.Provider.PollTimeout,
	}, logger)
	if err != nil {
		log.Fatal("Failed to create embedding client:", err)
	}

	fmt.Println("Checking embedding provider")
	fmt.Println("===========================")
	fmt.Printf("Model:      %s\n", cfg.Provider.EmbeddingModel)
	fmt.Printf("Dimensions: %d\n", cfg.Provider.Dimensions)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	vec, err := client.EmbedText(ctx, "a dog playing on the beach at sunset")
	if err != nil {
		log.Fatal("Text embedding failed: ", err)
	}
	fmt.Printf("Text embedding OK: %d dimensions in %s\n", len(vec), time.Since(start).Round(time.Millisecond))

	if len(vec) != cfg.Provider.Dimensions {
		fmt.Printf("WARNING: provider returned %d dimensions, configuration expects %d\n",
			len(vec), cfg.Provider.Dimensions)
	}
}
