package database

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	conn   *sql.DB
	dbType string
	dims   int
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
	// Dimensions sizes the pgvector columns; ignored for sqlite, which
	// stores vectors as JSON text and scores them in-process.
	Dimensions int
}

func NewDB(config Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_foreign_keys=on", config.SQLitePath)
		conn, err = sql.Open("sqlite3", dsn)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.Dimensions <= 0 {
		config.Dimensions = 1024
	}

	db := &DB{conn: conn, dbType: config.Type, dims: config.Dimensions}

	if err := db.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

func (db *DB) createSchema() error {
	embeddingCol := "TEXT"
	if db.dbType == "postgres" {
		if _, err := db.conn.Exec("CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
		embeddingCol = fmt.Sprintf("vector(%d)", db.dims)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS media_items (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			album TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			duration REAL NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL,
			size INTEGER NOT NULL,
			storage_path TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			index_status TEXT NOT NULL DEFAULT 'pending',
			index_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS video_chunks (
			id TEXT PRIMARY KEY,
			media_id TEXT NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			chunk_count INTEGER NOT NULL,
			start_offset REAL NOT NULL,
			end_offset REAL NOT NULL,
			storage_path TEXT NOT NULL DEFAULT ''
		);`,
		// chunk_id uses '' instead of NULL for unchunked segments so the
		// uniqueness key stays effective (NULLs never collide in SQL).
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS video_segments (
			id TEXT PRIMARY KEY,
			media_id TEXT NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
			chunk_id TEXT NOT NULL DEFAULT '',
			segment_index INTEGER NOT NULL,
			start_time REAL NOT NULL,
			end_time REAL NOT NULL,
			embedding %s,
			model TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(media_id, chunk_id, segment_index)
		);`, embeddingCol),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS photo_vectors (
			id TEXT PRIMARY KEY,
			media_id TEXT NOT NULL UNIQUE REFERENCES media_items(id) ON DELETE CASCADE,
			embedding %s,
			model TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`, embeddingCol),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS query_cache (
			id TEXT PRIMARY KEY,
			query_text TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			embedding %s,
			model TEXT NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 1,
			last_used_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(query_text, user_id)
		);`, embeddingCol),
		`CREATE INDEX IF NOT EXISTS idx_media_owner ON media_items(owner_id);`,
		`CREATE INDEX IF NOT EXISTS idx_media_status ON media_items(index_status);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_media ON video_chunks(media_id);`,
		`CREATE INDEX IF NOT EXISTS idx_segments_media ON video_segments(media_id);`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Type() string {
	return db.dbType
}
