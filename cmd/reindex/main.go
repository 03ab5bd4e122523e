package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/mkravets/luminio/internal/config"
	"github.com/mkravets/luminio/internal/database"
	"github.com/mkravets/luminio/internal/ingest"
	"github.com/mkravets/luminio/internal/models"
	"github.com/mkravets/luminio/internal/queue"
)

// reindex pushes stuck or chosen media items back onto the ingestion
// queue. Without -id it re-enqueues everything still pending; with -id
// it resets that one item to pending first, so even a ready or failed
// item gets a fresh indexing pass.
func main() {
	var mediaID = flag.String("id", "", "Media ID to force back through indexing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	db, err := database.NewDB(database.Config{
		Type:       cfg.DB.Type,
		Host:       cfg.DB.Host,
		Port:       cfg.DB.Port,
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Name:       cfg.DB.Name,
		SQLitePath: cfg.DB.SQLitePath,
		Dimensions: cfg.Provider.Dimensions,
	})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	q, err := queue.New(queue.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Name:     cfg.Ingest.QueueName,
	})
	if err != nil {
		log.Fatal("Failed to connect to redis:", err)
	}
	defer q.Close()

	ctx := context.Background()
	mediaRepo := database.NewMediaRepository(db)

	if *mediaID != "" {
		item, err := mediaRepo.GetByID(ctx, *mediaID)
		if err != nil {
			log.Fatal("Failed to load media item:", err)
		}
		if err := mediaRepo.UpdateStatus(ctx, item.ID, models.StatusPending, ""); err != nil {
			log.Fatal("Failed to reset status:", err)
		}
		if err := q.Enqueue(ctx, queue.IngestTask{MediaID: item.ID}); err != nil {
			log.Fatal("Failed to enqueue:", err)
		}
		fmt.Printf("Re-enqueued %s (%s)\n", item.ID, item.Filename)
		return
	}

	count, err := ingest.ResumePending(ctx, mediaRepo, q, logger)
	if err != nil {
		log.Fatal("Failed to re-enqueue pending items:", err)
	}
	if count == 0 {
		fmt.Println("Nothing pending.")
		os.Exit(0)
	}
	fmt.Printf("Re-enqueued %d pending items\n", count)
}
