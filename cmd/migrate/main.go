package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/mkravets/luminio/internal/database"
)

// Opening the database creates the schema, so this tool doubles as a
// one-shot bootstrap for fresh deployments and a sanity check for
// existing ones.
func main() {
	var (
		dbType     = flag.String("db", "sqlite", "Database type (postgres or sqlite)")
		host       = flag.String("host", "localhost", "Database host")
		port       = flag.Int("port", 5432, "Database port")
		user       = flag.String("user", "luminio", "Database user")
		password   = flag.String("password", "luminio_dev", "Database password")
		dbName     = flag.String("name", "luminio", "Database name")
		sqlitePath = flag.String("path", "./luminio.db", "SQLite database path")
		dims       = flag.Int("dims", 1024, "Embedding vector dimensions")
		status     = flag.Bool("status", false, "Show table row counts only")
	)
	flag.Parse()

	config := database.Config{
		Type:       *dbType,
		Host:       *host,
		Port:       *port,
		User:       *user,
		Password:   *password,
		Name:       *dbName,
		SQLitePath: *sqlitePath,
		Dimensions: *dims,
	}

	// Environment variables override flags, matching the server.
	if env := os.Getenv("DB_TYPE"); env != "" {
		config.Type = env
	}
	if env := os.Getenv("DB_HOST"); env != "" {
		config.Host = env
	}
	if env := os.Getenv("DB_PORT"); env != "" {
		if p, err := strconv.Atoi(env); err == nil {
			config.Port = p
		}
	}
	if env := os.Getenv("DB_USER"); env != "" {
		config.User = env
	}
	if env := os.Getenv("DB_PASSWORD"); env != "" {
		config.Password = env
	}
	if env := os.Getenv("DB_NAME"); env != "" {
		config.Name = env
	}
	if env := os.Getenv("DB_PATH"); env != "" {
		config.SQLitePath = env
	}

	db, err := database.NewDB(config)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if !*status {
		fmt.Println("Schema is up to date.")
		return
	}

	tables := []string{"media_items", "video_chunks", "video_segments", "photo_vectors", "query_cache"}
	fmt.Println("Table Status:")
	fmt.Println("=============")
	for _, table := range tables {
		var count int
		if err := db.Conn().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			log.Fatalf("Failed to count %s: %v", table, err)
		}
		fmt.Printf("%-15s %d rows\n", table, count)
	}
}
